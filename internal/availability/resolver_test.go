package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/meeting-scheduler/internal/adapters/calendar"
	"github.com/mikey/meeting-scheduler/internal/adapters/store"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type resolverFixture struct {
	resolver *Resolver
	store    *store.MemoryStore
	calendar *calendar.MemoryCalendar
	session  *core.Session
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryStore(logger)
	cal := calendar.NewMemoryCalendar(logger, "UTC")
	parser := temporal.NewParser(logger, 17)
	zones := timezone.NewResolver(cal, parser, logger, "UTC")
	return &resolverFixture{
		resolver: NewResolver(cal, st, zones, logger),
		store:    st,
		calendar: cal,
		session:  &core.Session{UserID: "user-1", Account: "primary", Location: time.UTC, ZoneID: "UTC"},
	}
}

func businessWeek() core.BusinessHours {
	return core.BusinessHours{
		StartHour: 9,
		EndHour:   17,
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

// upcomingMonday is at least two days in the future so every slot on it
// survives the past-slot filter
func upcomingMonday() time.Time {
	now := time.Now().UTC()
	ahead := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if ahead < 2 {
		ahead += 7
	}
	d := now.AddDate(0, 0, ahead)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func TestSuggestSlotsRespectsBusinessHours(t *testing.T) {
	f := newResolverFixture(t)
	hours := businessWeek()

	suggestions, err := f.resolver.SuggestSlots(context.Background(), f.session, time.Hour, nil, hours, 10)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	for _, s := range suggestions {
		assert.True(t, hours.IsWorkingDay(s.Start.Weekday()), "slot on %s", s.Start.Weekday())
		assert.GreaterOrEqual(t, s.Start.Hour(), hours.StartHour)
		day := time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), 0, 0, 0, 0, time.UTC)
		closing := day.Add(time.Duration(hours.EndHour) * time.Hour)
		assert.False(t, s.End.After(closing), "slot %v runs past closing", s.Start)
		assert.Equal(t, time.Hour, s.End.Sub(s.Start))
		assert.True(t, s.Start.After(time.Now().UTC().Add(-time.Minute)))
		assert.NotEmpty(t, s.Reason)
	}
}

func TestSuggestSlotsRankedByConfidence(t *testing.T) {
	f := newResolverFixture(t)

	suggestions, err := f.resolver.SuggestSlots(context.Background(), f.session, time.Hour, nil, businessWeek(), 10)
	require.NoError(t, err)
	require.Greater(t, len(suggestions), 1)

	for i := 1; i < len(suggestions); i++ {
		prev, cur := suggestions[i-1], suggestions[i]
		if prev.Confidence == cur.Confidence {
			assert.True(t, prev.Start.Before(cur.Start), "equal scores must order by start time")
		} else {
			assert.Greater(t, prev.Confidence, cur.Confidence)
		}
	}

	// Mid-morning on a weekday is the best generic slot
	assert.Equal(t, 10, suggestions[0].Start.Hour())
	assert.Equal(t, "prime mid-morning slot", suggestions[0].Reason)
}

func TestSuggestSlotsPreferredDateRanksFirst(t *testing.T) {
	f := newResolverFixture(t)
	monday := upcomingMonday()

	suggestions, err := f.resolver.SuggestSlots(context.Background(), f.session, time.Hour, &monday, businessWeek(), 5)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	top := suggestions[0]
	assert.Equal(t, monday.Day(), top.Start.Day())
	assert.Equal(t, 10, top.Start.Hour())
	assert.Equal(t, 95.0, top.Confidence)
	assert.Contains(t, top.Reason, "matches requested date")
}

func TestSuggestSlotsSkipsCalendarConflicts(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	monday := upcomingMonday()

	busyStart := monday.Add(10 * time.Hour)
	busyEnd := busyStart.Add(time.Hour)
	_, err := f.calendar.CreateEvent(ctx, "primary", &core.CalendarEvent{
		Summary: "Standing sync",
		Start:   core.ZonedTime{Time: busyStart, ZoneID: "UTC"},
		End:     core.ZonedTime{Time: busyEnd, ZoneID: "UTC"},
	})
	require.NoError(t, err)

	suggestions, err := f.resolver.SuggestSlots(ctx, f.session, time.Hour, &monday, businessWeek(), 20)
	require.NoError(t, err)

	for _, s := range suggestions {
		overlaps := s.Start.Before(busyEnd) && busyStart.Before(s.End)
		assert.False(t, overlaps, "slot %v overlaps busy event", s.Start)
	}
}

func TestSuggestSlotsSkipsHeldSlots(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	monday := upcomingMonday()

	heldStart := monday.Add(14 * time.Hour)
	heldEnd := heldStart.Add(time.Hour)
	require.NoError(t, f.store.CreateHoldIfFree(ctx, &core.CalendarHold{
		ID:          uuid.NewString(),
		RequestID:   "req-1",
		Start:       heldStart,
		End:         heldEnd,
		HolderEmail: "bob@example.com",
		Status:      core.HoldStatusActive,
		ExpiresAt:   time.Now().Add(time.Hour),
		CreatedAt:   time.Now(),
	}))

	suggestions, err := f.resolver.SuggestSlots(ctx, f.session, time.Hour, &monday, businessWeek(), 20)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	for _, s := range suggestions {
		overlaps := s.Start.Before(heldEnd) && heldStart.Before(s.End)
		assert.False(t, overlaps, "slot %v overlaps held range", s.Start)
	}
}

func TestSuggestSlotsTruncatesToMax(t *testing.T) {
	f := newResolverFixture(t)

	suggestions, err := f.resolver.SuggestSlots(context.Background(), f.session, time.Hour, nil, businessWeek(), 2)
	require.NoError(t, err)
	assert.Len(t, suggestions, 2)

	t.Run("non-positive max falls back to default", func(t *testing.T) {
		suggestions, err := f.resolver.SuggestSlots(context.Background(), f.session, time.Hour, nil, businessWeek(), 0)
		require.NoError(t, err)
		assert.Len(t, suggestions, 3)
	})
}

func TestDaySlotsHoldWallClockHoursAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	hours := core.BusinessHours{StartHour: 9, EndHour: 17}

	// US spring-forward and fall-back days in 2026
	for _, day := range []time.Time{
		time.Date(2026, time.March, 8, 0, 0, 0, 0, ny),
		time.Date(2026, time.November, 1, 0, 0, 0, 0, ny),
	} {
		starts := daySlots(day, time.Hour, hours)
		require.NotEmpty(t, starts)
		first := starts[0].In(ny)
		last := starts[len(starts)-1].In(ny)
		assert.Equal(t, 9, first.Hour(), "opening slot on %s", day.Format("2006-01-02"))
		assert.Equal(t, 16, last.Hour(), "last slot must still fit before closing on %s", day.Format("2006-01-02"))
	}
}

func TestSuggestSlotsNoWorkingDays(t *testing.T) {
	f := newResolverFixture(t)

	suggestions, err := f.resolver.SuggestSlots(context.Background(), f.session, time.Hour, nil, core.BusinessHours{StartHour: 9, EndHour: 17}, 5)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}
