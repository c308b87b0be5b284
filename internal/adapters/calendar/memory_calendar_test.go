package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func zoned(t time.Time) core.ZonedTime {
	return core.ZonedTime{Time: t, ZoneID: "UTC"}
}

func TestMemoryCalendarAvailability(t *testing.T) {
	cal := NewMemoryCalendar(zap.NewNop(), "UTC")
	ctx := context.Background()
	base := time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC)

	id, err := cal.CreateEvent(ctx, "primary", &core.CalendarEvent{
		Summary: "Standup",
		Start:   zoned(base),
		End:     zoned(base.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	t.Run("overlapping range conflicts", func(t *testing.T) {
		result, err := cal.CheckAvailability(ctx, "primary", zoned(base.Add(30*time.Minute)), zoned(base.Add(90*time.Minute)))
		require.NoError(t, err)
		assert.False(t, result.Available)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, "Standup", result.Conflicts[0].Summary)
	})

	t.Run("adjacent range is free", func(t *testing.T) {
		result, err := cal.CheckAvailability(ctx, "primary", zoned(base.Add(time.Hour)), zoned(base.Add(2*time.Hour)))
		require.NoError(t, err)
		assert.True(t, result.Available)
	})

	t.Run("other account is unaffected", func(t *testing.T) {
		result, err := cal.CheckAvailability(ctx, "secondary", zoned(base), zoned(base.Add(time.Hour)))
		require.NoError(t, err)
		assert.True(t, result.Available)
	})
}

func TestMemoryCalendarListEvents(t *testing.T) {
	cal := NewMemoryCalendar(zap.NewNop(), "UTC")
	ctx := context.Background()
	base := time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * 2 * time.Hour)
		_, err := cal.CreateEvent(ctx, "primary", &core.CalendarEvent{
			Summary: "Block",
			Start:   zoned(start),
			End:     zoned(start.Add(time.Hour)),
		})
		require.NoError(t, err)
	}

	events, err := cal.ListEvents(ctx, "primary", zoned(base), zoned(base.Add(3*time.Hour)))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestMemoryCalendarUpdateEvent(t *testing.T) {
	cal := NewMemoryCalendar(zap.NewNop(), "UTC")
	ctx := context.Background()
	base := time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC)

	id, err := cal.CreateEvent(ctx, "primary", &core.CalendarEvent{
		Summary:   "[Tentative] Kickoff",
		Start:     zoned(base),
		End:       zoned(base.Add(time.Hour)),
		Tentative: true,
	})
	require.NoError(t, err)

	err = cal.UpdateEvent(ctx, "primary", &core.CalendarEvent{
		ID:      id,
		Summary: "Kickoff",
		Start:   zoned(base),
		End:     zoned(base.Add(time.Hour)),
	})
	require.NoError(t, err)

	events, err := cal.ListEvents(ctx, "primary", zoned(base), zoned(base.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Kickoff", events[0].Summary)
	assert.False(t, events[0].Tentative)

	t.Run("unknown id", func(t *testing.T) {
		err := cal.UpdateEvent(ctx, "primary", &core.CalendarEvent{
			ID:    "missing",
			Start: zoned(base),
			End:   zoned(base.Add(time.Hour)),
		})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestMemoryCalendarRejectsZonelessPayloads(t *testing.T) {
	cal := NewMemoryCalendar(zap.NewNop(), "UTC")
	ctx := context.Background()
	now := time.Now()

	_, err := cal.CreateEvent(ctx, "primary", &core.CalendarEvent{
		Start: core.ZonedTime{Time: now},
		End:   zoned(now.Add(time.Hour)),
	})
	assert.ErrorIs(t, err, errMissingZone)

	_, err = cal.CheckAvailability(ctx, "primary", core.ZonedTime{Time: now}, zoned(now.Add(time.Hour)))
	assert.ErrorIs(t, err, errMissingZone)

	_, err = cal.ListEvents(ctx, "primary", zoned(now), core.ZonedTime{Time: now.Add(time.Hour)})
	assert.ErrorIs(t, err, errMissingZone)
}

func TestMemoryCalendarTimezone(t *testing.T) {
	cal := NewMemoryCalendar(zap.NewNop(), "Asia/Tokyo")
	zone, err := cal.Timezone(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", zone)

	fallback := NewMemoryCalendar(zap.NewNop(), "")
	zone, err = fallback.Timezone(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, "UTC", zone)
}
