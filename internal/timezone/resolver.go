// Package timezone maps user identities to IANA zones and stamps calendar
// payloads with explicit zone identifiers. Every instant handed to the
// calendar provider must carry a zone; the host's local zone never leaks
// into a stored event.
package timezone

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"go.uber.org/zap"
)

// Resolver resolves user timezones and converts between wall-clock and
// absolute instants
type Resolver struct {
	calendar    core.CalendarProvider
	parser      *temporal.Parser
	logger      *zap.Logger
	defaultZone string
}

// NewResolver creates a new timezone resolver. defaultZone is the IANA
// zone used when the calendar account lookup fails.
func NewResolver(calendar core.CalendarProvider, parser *temporal.Parser, logger *zap.Logger, defaultZone string) *Resolver {
	if defaultZone == "" {
		defaultZone = "UTC"
	}
	return &Resolver{
		calendar:    calendar,
		parser:      parser,
		logger:      logger,
		defaultZone: defaultZone,
	}
}

// ResolveUserZone returns the IANA zone for a calendar account. Lookup
// failure degrades to the configured default zone with a warning; it never
// blocks the pipeline.
func (r *Resolver) ResolveUserZone(ctx context.Context, account string) string {
	zoneID, err := r.calendar.Timezone(ctx, account)
	if err != nil {
		r.logger.Warn("Timezone lookup failed, using default zone",
			zap.String("account", account),
			zap.String("default_zone", r.defaultZone),
			zap.Error(err))
		return r.defaultZone
	}
	if _, err := time.LoadLocation(zoneID); err != nil {
		r.logger.Warn("Calendar returned unknown zone, using default zone",
			zap.String("zone", zoneID),
			zap.String("default_zone", r.defaultZone))
		return r.defaultZone
	}
	return zoneID
}

// NewSession builds a request-scoped session for a user, resolving the
// account's zone once. The session is never shared across requests.
func (r *Resolver) NewSession(ctx context.Context, userID, account string) *core.Session {
	zoneID := r.ResolveUserZone(ctx, account)
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		loc = time.UTC
		zoneID = "UTC"
	}
	return &core.Session{
		UserID:   userID,
		Account:  account,
		Location: loc,
		ZoneID:   zoneID,
	}
}

// ParseInZone parses free text against the current moment in the given
// zone and returns the absolute instant together with its local rendering
func (r *Resolver) ParseInZone(text string, zoneID string, now time.Time) (core.ParsedInstant, string, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return core.ParsedInstant{Input: text, Error: "unknown zone"}, "", fmt.Errorf("unknown zone %q: %w", zoneID, err)
	}
	result := r.parser.Parse(text, now.In(loc))
	if !result.IsValid {
		return result, "", nil
	}
	return result, result.Instant.In(loc).Format("Monday, January 2 at 3:04 PM"), nil
}

// StampForCalendar converts an absolute instant into the explicit
// local-time + zone pair the calendar provider requires
func (r *Resolver) StampForCalendar(instant time.Time, zoneID string) (core.ZonedTime, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return core.ZonedTime{}, fmt.Errorf("unknown zone %q: %w", zoneID, err)
	}
	return core.ZonedTime{
		Time:   instant.In(loc),
		ZoneID: zoneID,
	}, nil
}
