package response

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/meeting-scheduler/internal/adapters/calendar"
	"github.com/mikey/meeting-scheduler/internal/adapters/store"
	"github.com/mikey/meeting-scheduler/internal/availability"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type generatorFixture struct {
	generator *Generator
	store     *store.MemoryStore
	calendar  *calendar.MemoryCalendar
	session   *core.Session
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryStore(logger)
	cal := calendar.NewMemoryCalendar(logger, "UTC")
	parser := temporal.NewParser(logger, 17)
	zones := timezone.NewResolver(cal, parser, logger, "UTC")
	slots := availability.NewResolver(cal, st, zones, logger)
	return &generatorFixture{
		generator: NewGenerator(cal, st, slots, zones, logger, "Mikey"),
		store:     st,
		calendar:  cal,
		session:   &core.Session{UserID: "user-1", Account: "primary", Location: time.UTC, ZoneID: "UTC"},
	}
}

func workingHours() core.BusinessHours {
	return core.BusinessHours{
		StartHour: 9,
		EndHour:   17,
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

// futureSlot returns a weekday morning at least two days out
func futureSlot() time.Time {
	now := time.Now().UTC()
	ahead := (int(time.Wednesday) - int(now.Weekday()) + 7) % 7
	if ahead < 2 {
		ahead += 7
	}
	d := now.AddDate(0, 0, ahead)
	return time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, time.UTC)
}

func meetingRequest(preferred []string) *core.MeetingRequest {
	return &core.MeetingRequest{
		ID:                  "req-1",
		SenderEmail:         "jane.doe@example.com",
		Subject:             "Quarterly review",
		MeetingType:         core.MeetingTypeRegular,
		DurationMinutes:     60,
		PreferredDates:      preferred,
		Attendees:           []string{"jane.doe@example.com"},
		Urgency:             core.UrgencyMedium,
		DetectionConfidence: 90,
		Status:              core.RequestStatusPending,
		CreatedAt:           time.Now(),
	}
}

func TestGenerateAcceptsFreePreferredTime(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()
	slot := futureSlot()
	req := meetingRequest([]string{slot.Format(time.RFC3339)})

	resp, err := f.generator.Generate(ctx, f.session, &core.Email{From: req.SenderEmail}, req, core.RelationshipKnownContact, workingHours())
	require.NoError(t, err)

	assert.Equal(t, core.ActionAccept, resp.Action)
	require.NotNil(t, resp.SuggestedTime)
	assert.True(t, resp.SuggestedTime.Start.Equal(slot))
	assert.Equal(t, core.EventStatusCreated, resp.EventStatus)
	assert.NotEmpty(t, resp.EventID)
	assert.Contains(t, resp.EmailContent, "That works.")
	assert.Contains(t, resp.EmailContent, "Mikey")

	// The optimistic booking is tentative until a human approves the reply
	events, err := f.calendar.ListEvents(ctx, "primary",
		core.ZonedTime{Time: slot.Add(-time.Hour), ZoneID: "UTC"},
		core.ZonedTime{Time: slot.Add(2 * time.Hour), ZoneID: "UTC"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "[Tentative] Quarterly review", events[0].Summary)
	assert.True(t, events[0].Tentative)
}

func TestGenerateSuggestsAlternativesWhenBusy(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()
	slot := futureSlot()

	_, err := f.calendar.CreateEvent(ctx, "primary", &core.CalendarEvent{
		Summary: "Existing meeting",
		Start:   core.ZonedTime{Time: slot, ZoneID: "UTC"},
		End:     core.ZonedTime{Time: slot.Add(time.Hour), ZoneID: "UTC"},
	})
	require.NoError(t, err)

	req := meetingRequest([]string{slot.Format(time.RFC3339)})
	resp, err := f.generator.Generate(ctx, f.session, &core.Email{From: req.SenderEmail}, req, core.RelationshipKnownContact, workingHours())
	require.NoError(t, err)

	assert.Equal(t, core.ActionSuggestAlternative, resp.Action)
	assert.Nil(t, resp.SuggestedTime)
	require.NotEmpty(t, resp.Alternatives)
	assert.LessOrEqual(t, len(resp.Alternatives), 3)
	for _, alt := range resp.Alternatives {
		overlaps := alt.Start.Before(slot.Add(time.Hour)) && slot.Before(alt.End)
		assert.False(t, overlaps, "alternative %v conflicts with the busy slot", alt.Start)
	}
	assert.Equal(t, core.EventStatusNotCreated, resp.EventStatus)
	assert.Contains(t, resp.EmailContent, "alternatives")
}

func TestGenerateNeverAcceptsPastPreferredTime(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-4 * time.Hour)
	req := meetingRequest([]string{past.Format(time.RFC3339)})

	resp, err := f.generator.Generate(ctx, f.session, &core.Email{From: req.SenderEmail}, req, core.RelationshipKnownContact, workingHours())
	require.NoError(t, err)

	assert.NotEqual(t, core.ActionAccept, resp.Action)
	assert.Equal(t, core.EventStatusNotCreated, resp.EventStatus)
	assert.Empty(t, resp.EventID)

	events, err := f.calendar.ListEvents(ctx, "primary",
		core.ZonedTime{Time: past.Add(-time.Hour), ZoneID: "UTC"},
		core.ZonedTime{Time: past.Add(2 * time.Hour), ZoneID: "UTC"})
	require.NoError(t, err)
	assert.Empty(t, events, "no event may be booked at a past instant")
}

func TestGenerateAsksForDetailWithoutPreferredTime(t *testing.T) {
	f := newGeneratorFixture(t)
	req := meetingRequest(nil)

	resp, err := f.generator.Generate(context.Background(), f.session, &core.Email{From: req.SenderEmail}, req, core.RelationshipNewContact, workingHours())
	require.NoError(t, err)

	assert.Equal(t, core.ActionRequestMoreInfo, resp.Action)
	assert.NotEmpty(t, resp.Alternatives, "open windows are offered alongside the question")
	assert.Equal(t, 50.0, resp.Confidence)
	assert.Equal(t, core.EventStatusNotCreated, resp.EventStatus)
	assert.Contains(t, resp.EmailContent, "Could you share a few days or times")
	assert.Contains(t, resp.EmailContent, "60-minute")
}

func TestGenerateAsksForDetailWhenNothingIsOpen(t *testing.T) {
	f := newGeneratorFixture(t)
	req := meetingRequest(nil)

	// No working days leaves no windows to offer
	resp, err := f.generator.Generate(context.Background(), f.session, &core.Email{From: req.SenderEmail}, req, core.RelationshipStranger, core.BusinessHours{StartHour: 9, EndHour: 17})
	require.NoError(t, err)

	assert.Equal(t, core.ActionRequestMoreInfo, resp.Action)
	assert.Empty(t, resp.Alternatives)
	assert.Equal(t, 30.0, resp.Confidence)
}

// failingCreateCalendar accepts availability checks but refuses writes
type failingCreateCalendar struct {
	inner core.CalendarProvider
}

func (c *failingCreateCalendar) CheckAvailability(ctx context.Context, account string, start, end core.ZonedTime) (*core.AvailabilityResult, error) {
	return c.inner.CheckAvailability(ctx, account, start, end)
}

func (c *failingCreateCalendar) CreateEvent(context.Context, string, *core.CalendarEvent) (string, error) {
	return "", errors.New("calendar write unavailable")
}

func (c *failingCreateCalendar) UpdateEvent(ctx context.Context, account string, event *core.CalendarEvent) error {
	return c.inner.UpdateEvent(ctx, account, event)
}

func (c *failingCreateCalendar) ListEvents(ctx context.Context, account string, start, end core.ZonedTime) ([]core.CalendarEvent, error) {
	return c.inner.ListEvents(ctx, account, start, end)
}

func (c *failingCreateCalendar) Timezone(ctx context.Context, account string) (string, error) {
	return c.inner.Timezone(ctx, account)
}

func TestGenerateAcceptSurvivesEventCreationFailure(t *testing.T) {
	logger := zap.NewNop()
	st := store.NewMemoryStore(logger)
	cal := &failingCreateCalendar{inner: calendar.NewMemoryCalendar(logger, "UTC")}
	parser := temporal.NewParser(logger, 17)
	zones := timezone.NewResolver(cal, parser, logger, "UTC")
	slots := availability.NewResolver(cal, st, zones, logger)
	gen := NewGenerator(cal, st, slots, zones, logger, "")
	session := &core.Session{UserID: "user-1", Account: "primary", Location: time.UTC, ZoneID: "UTC"}

	slot := futureSlot()
	req := meetingRequest([]string{slot.Format(time.RFC3339)})

	resp, err := gen.Generate(context.Background(), session, &core.Email{From: req.SenderEmail}, req, core.RelationshipKnownContact, workingHours())
	require.NoError(t, err)

	assert.Equal(t, core.ActionAccept, resp.Action)
	assert.Equal(t, core.EventStatusNotCreated, resp.EventStatus)
	assert.Empty(t, resp.EventID)
	assert.NotEmpty(t, resp.EmailContent)
}

func TestGenerateUsesStoredTone(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SavePreferences(ctx, &core.SchedulingPreferences{
		SenderEmail:   "jane.doe@example.com",
		PreferredTone: core.ToneCasual,
	}))

	req := meetingRequest(nil)
	resp, err := f.generator.Generate(ctx, f.session, &core.Email{From: req.SenderEmail}, req, core.RelationshipKnownContact, workingHours())
	require.NoError(t, err)

	assert.Contains(t, resp.EmailContent, "Hey Jane Doe!")
	assert.Contains(t, resp.EmailContent, "Cheers,")
}
