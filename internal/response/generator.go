// Package response turns resolved availability into a reply action and
// assembles the reply payload. Sending the reply is an external concern
// gated on human approval.
package response

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/meeting-scheduler/internal/availability"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"go.uber.org/zap"
)

// Generator combines the extracted request, resolved availability and the
// sender relationship into a SchedulingResponse
type Generator struct {
	calendar core.CalendarProvider
	store    core.SchedulingStore
	slots    *availability.Resolver
	zones    *timezone.Resolver
	logger   *zap.Logger
	userName string
}

// NewGenerator creates a new response generator. userName appears after
// the closing; when empty the signature line is omitted.
func NewGenerator(
	calendar core.CalendarProvider,
	store core.SchedulingStore,
	slots *availability.Resolver,
	zones *timezone.Resolver,
	logger *zap.Logger,
	userName string,
) *Generator {
	return &Generator{
		calendar: calendar,
		store:    store,
		slots:    slots,
		zones:    zones,
		logger:   logger,
		userName: userName,
	}
}

// Generate picks the reply action for a meeting request: accept when the
// preferred time is free, suggest alternatives when it is not, or ask for
// more detail when no time was given. On accept a tentative calendar
// event is created so the slot is visible immediately; event-creation
// failure never blocks reply generation.
func (g *Generator) Generate(ctx context.Context, session *core.Session, email *core.Email, req *core.MeetingRequest, rel core.Relationship, hours core.BusinessHours) (*core.SchedulingResponse, error) {
	tone := g.preferredTone(ctx, req.SenderEmail)
	duration := time.Duration(req.DurationMinutes) * time.Minute

	resp := &core.SchedulingResponse{
		RequestID:   req.ID,
		Recipient:   req.SenderEmail,
		EventStatus: core.EventStatusNotCreated,
		GeneratedAt: time.Now(),
	}

	preferred := g.availablePreferredTime(ctx, session, req, duration)
	switch {
	case preferred != nil:
		resp.Action = core.ActionAccept
		resp.SuggestedTime = &core.TimeSlotSuggestion{
			Start:      *preferred,
			End:        preferred.Add(duration),
			Confidence: req.DetectionConfidence,
			Reason:     "requested time is available",
		}
		resp.Confidence = req.DetectionConfidence

		if eventID, err := g.createTentativeEvent(ctx, session, req, *preferred, duration); err != nil {
			g.logger.Warn("Tentative event creation failed, reply still generated",
				zap.String("request_id", req.ID),
				zap.Error(err))
		} else {
			resp.EventStatus = core.EventStatusCreated
			resp.EventID = eventID
		}

	default:
		alternatives, err := g.slots.SuggestSlots(ctx, session, duration, firstPreferredDate(req), hours, 3)
		if err != nil {
			g.logger.Warn("Alternative slot lookup failed",
				zap.String("request_id", req.ID),
				zap.Error(err))
		}
		if len(req.PreferredDates) > 0 && len(alternatives) > 0 {
			resp.Action = core.ActionSuggestAlternative
			resp.Alternatives = alternatives
			resp.Confidence = alternatives[0].Confidence
		} else if len(req.PreferredDates) == 0 && len(alternatives) > 0 {
			// No explicit time was given; offer options rather than guess
			resp.Action = core.ActionRequestMoreInfo
			resp.Alternatives = alternatives
			resp.Confidence = 50
		} else {
			resp.Action = core.ActionRequestMoreInfo
			resp.Confidence = 30
		}
	}

	resp.EmailContent = g.composeReply(resp, req, tone, rel, session.Location)

	g.logger.Info("Generated scheduling response",
		zap.String("request_id", req.ID),
		zap.String("action", string(resp.Action)),
		zap.String("event_status", string(resp.EventStatus)))

	return resp, nil
}

// availablePreferredTime returns the first preferred time that is free on
// both the provider calendar and the hold store, or nil
func (g *Generator) availablePreferredTime(ctx context.Context, session *core.Session, req *core.MeetingRequest, duration time.Duration) *time.Time {
	now := time.Now().In(session.Location)
	for _, d := range req.PreferredDates {
		t, err := time.Parse(time.RFC3339, d)
		if err != nil {
			continue
		}
		// A time already behind us cannot be accepted or booked
		if !t.After(now) {
			continue
		}
		end := t.Add(duration)

		held, err := g.store.HasOverlap(ctx, t, end)
		if err != nil || held {
			continue
		}

		start, err := g.zones.StampForCalendar(t, session.ZoneID)
		if err != nil {
			continue
		}
		zonedEnd, err := g.zones.StampForCalendar(end, session.ZoneID)
		if err != nil {
			continue
		}
		result, err := g.calendar.CheckAvailability(ctx, session.Account, start, zonedEnd)
		if err != nil {
			g.logger.Warn("Preferred time availability check failed",
				zap.Time("start", t),
				zap.Error(err))
			continue
		}
		if result.Available {
			return &t
		}
	}
	return nil
}

// createTentativeEvent books an optimistic tentative event for an
// accepted time. It only becomes authoritative once a human approves
// sending the reply.
func (g *Generator) createTentativeEvent(ctx context.Context, session *core.Session, req *core.MeetingRequest, start time.Time, duration time.Duration) (string, error) {
	zonedStart, err := g.zones.StampForCalendar(start, session.ZoneID)
	if err != nil {
		return "", err
	}
	zonedEnd, err := g.zones.StampForCalendar(start.Add(duration), session.ZoneID)
	if err != nil {
		return "", err
	}
	event := &core.CalendarEvent{
		Summary:     "[Tentative] " + eventSummary(req),
		Description: "Pending approval of reply to " + req.SenderEmail,
		Start:       zonedStart,
		End:         zonedEnd,
		Attendees:   req.Attendees,
		Location:    req.LocationPreference,
		Tentative:   true,
	}
	return g.calendar.CreateEvent(ctx, session.Account, event)
}

// preferredTone looks up the sender's stored tone signal, defaulting to
// professional
func (g *Generator) preferredTone(ctx context.Context, senderEmail string) core.Tone {
	prefs, err := g.store.GetPreferences(ctx, senderEmail)
	if err != nil || prefs.PreferredTone == "" {
		return core.ToneProfessional
	}
	return prefs.PreferredTone
}

// composeReply assembles the reply body from the tone/relationship tables
// and the chosen action
func (g *Generator) composeReply(resp *core.SchedulingResponse, req *core.MeetingRequest, tone core.Tone, rel core.Relationship, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(greetingFor(tone, rel, req.SenderEmail))
	b.WriteString("\n\n")

	switch resp.Action {
	case core.ActionAccept:
		b.WriteString(fmt.Sprintf("That works. %s is open on my calendar, so let's plan on it.",
			formatSlot(*resp.SuggestedTime, loc)))
		b.WriteString("\nI've penciled it in and will send a calendar invite once confirmed.")

	case core.ActionSuggestAlternative:
		b.WriteString("Unfortunately that time doesn't work for me. Here are a few alternatives that do:\n")
		for i, alt := range resp.Alternatives {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, formatSlot(alt, loc)))
		}
		b.WriteString("\n\nLet me know if any of these suit you.")

	default:
		b.WriteString("Happy to find a time to meet. Could you share a few days or times that work on your end")
		if req.DurationMinutes > 0 {
			b.WriteString(fmt.Sprintf(" for a %d-minute conversation", req.DurationMinutes))
		}
		b.WriteString("?")
		if len(resp.Alternatives) > 0 {
			b.WriteString(" A few windows that are open for me:\n")
			for i, alt := range resp.Alternatives {
				b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, formatSlot(alt, loc)))
			}
		}
	}

	b.WriteString("\n\n")
	b.WriteString(closingFor(tone))
	if g.userName != "" {
		b.WriteString("\n")
		b.WriteString(g.userName)
	}
	return b.String()
}

func firstPreferredDate(req *core.MeetingRequest) *time.Time {
	for _, d := range req.PreferredDates {
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return &t
		}
	}
	return nil
}

func eventSummary(req *core.MeetingRequest) string {
	if req.Subject != "" {
		return req.Subject
	}
	return "Meeting with " + req.SenderEmail
}
