package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// ICSCalendar implements CalendarProvider against a subscribed ICS feed.
// The feed supplies existing busy time; events created by the engine are
// kept in a local calendar serialized to disk, and both sides count
// toward availability.
type ICSCalendar struct {
	mu          sync.Mutex
	logger      *zap.Logger
	client      *http.Client
	feedURL     string
	localPath   string
	refresh     time.Duration
	feedEvents  []core.CalendarEvent
	feedZone    string
	lastFetched time.Time
	local       []core.CalendarEvent
}

// NewICSCalendar creates a new ICS-feed calendar provider. feedURL may be
// empty, in which case only locally created events exist. localPath is
// where created events are serialized.
func NewICSCalendar(feedURL, localPath string, refresh time.Duration, logger *zap.Logger) (*ICSCalendar, error) {
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}
	c := &ICSCalendar{
		logger:    logger,
		client:    &http.Client{Timeout: 30 * time.Second},
		feedURL:   feedURL,
		localPath: localPath,
		refresh:   refresh,
	}
	if err := c.loadLocal(); err != nil {
		logger.Warn("Failed to load local event calendar, starting empty",
			zap.String("path", localPath),
			zap.Error(err))
	}
	return c, nil
}

// CheckAvailability reports whether [start, end) is free of conflicts on
// both the subscribed feed and locally created events
func (c *ICSCalendar) CheckAvailability(ctx context.Context, account string, start, end core.ZonedTime) (*core.AvailabilityResult, error) {
	events, err := c.ListEvents(ctx, account, start, end)
	if err != nil {
		return nil, err
	}
	return &core.AvailabilityResult{
		Available: len(events) == 0,
		Conflicts: events,
	}, nil
}

// CreateEvent appends the event to the local calendar and rewrites the
// serialized ICS file
func (c *ICSCalendar) CreateEvent(_ context.Context, _ string, event *core.CalendarEvent) (string, error) {
	if event.Start.ZoneID == "" || event.End.ZoneID == "" {
		return "", errMissingZone
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	c.local = append(c.local, stored)

	if err := c.saveLocalLocked(); err != nil {
		// Keep the in-memory event; the next successful save persists it
		c.logger.Error("Failed to persist local event calendar",
			zap.String("path", c.localPath),
			zap.Error(err))
	}

	c.logger.Info("Created calendar event",
		zap.String("event_id", stored.ID),
		zap.String("zone", stored.Start.ZoneID),
		zap.Bool("tentative", stored.Tentative))
	return stored.ID, nil
}

// UpdateEvent replaces a locally created event and rewrites the
// serialized ICS file. Feed events belong to the subscribed calendar and
// cannot be updated here.
func (c *ICSCalendar) UpdateEvent(_ context.Context, _ string, event *core.CalendarEvent) error {
	if event.ID == "" {
		return core.ErrNotFound
	}
	if event.Start.ZoneID == "" || event.End.ZoneID == "" {
		return errMissingZone
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ev := range c.local {
		if ev.ID == event.ID {
			c.local[i] = *event
			if err := c.saveLocalLocked(); err != nil {
				c.logger.Error("Failed to persist local event calendar",
					zap.String("path", c.localPath),
					zap.Error(err))
			}
			c.logger.Info("Updated calendar event",
				zap.String("event_id", event.ID),
				zap.Bool("tentative", event.Tentative))
			return nil
		}
	}
	return core.ErrNotFound
}

// ListEvents returns feed and locally created events overlapping
// [start, end)
func (c *ICSCalendar) ListEvents(ctx context.Context, _ string, start, end core.ZonedTime) ([]core.CalendarEvent, error) {
	if start.ZoneID == "" || end.ZoneID == "" {
		return nil, errMissingZone
	}
	if err := c.refreshFeed(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var events []core.CalendarEvent
	for _, ev := range c.feedEvents {
		if ev.Start.Time.Before(end.Time) && ev.End.Time.After(start.Time) {
			events = append(events, ev)
		}
	}
	for _, ev := range c.local {
		if ev.Start.Time.Before(end.Time) && ev.End.Time.After(start.Time) {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Timezone returns the feed's X-WR-TIMEZONE property
func (c *ICSCalendar) Timezone(ctx context.Context, _ string) (string, error) {
	if err := c.refreshFeed(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedZone == "" {
		return "", fmt.Errorf("feed does not declare a timezone")
	}
	return c.feedZone, nil
}

// refreshFeed re-fetches the subscribed feed when the cached copy is
// older than the refresh interval
func (c *ICSCalendar) refreshFeed(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.feedURL == "" {
		return nil
	}
	if time.Since(c.lastFetched) < c.refresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build feed request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch ICS feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ICS feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ICS feed: %w", err)
	}

	events, zone, err := parseFeed(body)
	if err != nil {
		return fmt.Errorf("failed to parse ICS feed: %w", err)
	}

	c.feedEvents = events
	c.feedZone = zone
	c.lastFetched = time.Now()
	c.logger.Debug("Refreshed ICS feed",
		zap.Int("event_count", len(events)),
		zap.String("zone", zone))
	return nil
}

// parseFeed extracts events and the calendar-level timezone from an ICS
// payload. A malformed VEVENT is skipped, not fatal.
func parseFeed(body []byte) ([]core.CalendarEvent, string, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	zone := ""
	for _, prop := range cal.CalendarProperties {
		if prop.IANAToken == "X-WR-TIMEZONE" {
			zone = prop.Value
			break
		}
	}

	var events []core.CalendarEvent
	for _, ve := range cal.Events() {
		start, err := ve.GetStartAt()
		if err != nil {
			continue
		}
		end, err := ve.GetEndAt()
		if err != nil {
			// DTEND is optional; treat such entries as one hour long
			end = start.Add(time.Hour)
		}
		ev := core.CalendarEvent{
			ID:    propValue(ve, ical.ComponentPropertyUniqueId),
			Start: core.ZonedTime{Time: start, ZoneID: zoneOrUTC(zone)},
			End:   core.ZonedTime{Time: end, ZoneID: zoneOrUTC(zone)},
		}
		ev.Summary = propValue(ve, ical.ComponentPropertySummary)
		ev.Location = propValue(ve, ical.ComponentPropertyLocation)
		ev.Description = propValue(ve, ical.ComponentPropertyDescription)
		events = append(events, ev)
	}
	return events, zone, nil
}

func propValue(ve *ical.VEvent, key ical.ComponentProperty) string {
	if p := ve.GetProperty(key); p != nil {
		return p.Value
	}
	return ""
}

func zoneOrUTC(zone string) string {
	if zone == "" {
		return "UTC"
	}
	return zone
}

// loadLocal reads previously created events back from the serialized
// local calendar
func (c *ICSCalendar) loadLocal() error {
	if c.localPath == "" {
		return nil
	}
	body, err := os.ReadFile(c.localPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	events, _, err := parseFeed(body)
	if err != nil {
		return err
	}
	c.local = events
	return nil
}

// saveLocalLocked serializes every locally created event to the local ICS
// file. Caller holds the mutex.
func (c *ICSCalendar) saveLocalLocked() error {
	if c.localPath == "" {
		return nil
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	for _, ev := range c.local {
		ve := cal.AddEvent(ev.ID)
		ve.SetSummary(ev.Summary)
		ve.SetStartAt(ev.Start.Time)
		ve.SetEndAt(ev.End.Time)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Tentative {
			ve.SetStatus(ical.ObjectStatusTentative)
		} else {
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return os.WriteFile(c.localPath, []byte(cal.Serialize()), 0644)
}
