// Package calendar provides CalendarProvider implementations: an
// in-memory provider for local runs and tests, and an ICS-feed provider
// backed by a subscribed calendar feed.
package calendar

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// errMissingZone guards the invariant that every payload handed to a
// provider carries an explicit zone identifier
var errMissingZone = errors.New("calendar payload is missing an explicit timezone")

// MemoryCalendar is an in-memory implementation of the CalendarProvider
// interface
type MemoryCalendar struct {
	mu     sync.Mutex
	logger *zap.Logger
	zoneID string
	events map[string][]core.CalendarEvent // keyed by account
}

// NewMemoryCalendar creates a new in-memory calendar whose accounts all
// report the given zone
func NewMemoryCalendar(logger *zap.Logger, zoneID string) *MemoryCalendar {
	if zoneID == "" {
		zoneID = "UTC"
	}
	return &MemoryCalendar{
		logger: logger,
		zoneID: zoneID,
		events: make(map[string][]core.CalendarEvent),
	}
}

// CheckAvailability reports whether [start, end) is free of conflicts
func (c *MemoryCalendar) CheckAvailability(_ context.Context, account string, start, end core.ZonedTime) (*core.AvailabilityResult, error) {
	if start.ZoneID == "" || end.ZoneID == "" {
		return nil, errMissingZone
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var conflicts []core.CalendarEvent
	for _, ev := range c.events[account] {
		if ev.Start.Time.Before(end.Time) && ev.End.Time.After(start.Time) {
			conflicts = append(conflicts, ev)
		}
	}
	return &core.AvailabilityResult{
		Available: len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

// CreateEvent creates a calendar event and returns its id
func (c *MemoryCalendar) CreateEvent(_ context.Context, account string, event *core.CalendarEvent) (string, error) {
	if event.Start.ZoneID == "" || event.End.ZoneID == "" {
		return "", errMissingZone
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	c.events[account] = append(c.events[account], stored)

	c.logger.Debug("Created in-memory calendar event",
		zap.String("account", account),
		zap.String("event_id", stored.ID),
		zap.Bool("tentative", stored.Tentative))
	return stored.ID, nil
}

// UpdateEvent replaces the stored event with the same ID
func (c *MemoryCalendar) UpdateEvent(_ context.Context, account string, event *core.CalendarEvent) error {
	if event.ID == "" {
		return core.ErrNotFound
	}
	if event.Start.ZoneID == "" || event.End.ZoneID == "" {
		return errMissingZone
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ev := range c.events[account] {
		if ev.ID == event.ID {
			c.events[account][i] = *event
			c.logger.Debug("Updated in-memory calendar event",
				zap.String("account", account),
				zap.String("event_id", event.ID),
				zap.Bool("tentative", event.Tentative))
			return nil
		}
	}
	return core.ErrNotFound
}

// ListEvents returns events overlapping [start, end)
func (c *MemoryCalendar) ListEvents(_ context.Context, account string, start, end core.ZonedTime) ([]core.CalendarEvent, error) {
	if start.ZoneID == "" || end.ZoneID == "" {
		return nil, errMissingZone
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []core.CalendarEvent
	for _, ev := range c.events[account] {
		if ev.Start.Time.Before(end.Time) && ev.End.Time.After(start.Time) {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Timezone returns the IANA zone configured on the account
func (c *MemoryCalendar) Timezone(_ context.Context, _ string) (string, error) {
	return c.zoneID, nil
}
