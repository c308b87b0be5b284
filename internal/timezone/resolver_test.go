package timezone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCalendar returns a fixed zone, or an error when zone is empty
type stubCalendar struct {
	zone string
}

func (s *stubCalendar) CheckAvailability(_ context.Context, _ string, _, _ core.ZonedTime) (*core.AvailabilityResult, error) {
	return &core.AvailabilityResult{Available: true}, nil
}

func (s *stubCalendar) CreateEvent(_ context.Context, _ string, _ *core.CalendarEvent) (string, error) {
	return "", nil
}

func (s *stubCalendar) UpdateEvent(_ context.Context, _ string, _ *core.CalendarEvent) error {
	return nil
}

func (s *stubCalendar) ListEvents(_ context.Context, _ string, _, _ core.ZonedTime) ([]core.CalendarEvent, error) {
	return nil, nil
}

func (s *stubCalendar) Timezone(_ context.Context, _ string) (string, error) {
	if s.zone == "" {
		return "", errors.New("account not found")
	}
	return s.zone, nil
}

func newResolver(zone string) *Resolver {
	parser := temporal.NewParser(zap.NewNop(), 17)
	return NewResolver(&stubCalendar{zone: zone}, parser, zap.NewNop(), "America/Chicago")
}

func TestResolveUserZone(t *testing.T) {
	t.Run("uses the calendar zone", func(t *testing.T) {
		r := newResolver("Europe/Berlin")
		assert.Equal(t, "Europe/Berlin", r.ResolveUserZone(context.Background(), "primary"))
	})

	t.Run("lookup failure degrades to default", func(t *testing.T) {
		r := newResolver("")
		assert.Equal(t, "America/Chicago", r.ResolveUserZone(context.Background(), "primary"))
	})

	t.Run("unknown zone name degrades to default", func(t *testing.T) {
		r := newResolver("Mars/Olympus_Mons")
		assert.Equal(t, "America/Chicago", r.ResolveUserZone(context.Background(), "primary"))
	})
}

func TestNewSession(t *testing.T) {
	r := newResolver("Asia/Tokyo")
	session := r.NewSession(context.Background(), "user-1", "primary")
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "primary", session.Account)
	assert.Equal(t, "Asia/Tokyo", session.ZoneID)
	require.NotNil(t, session.Location)
	assert.Equal(t, "Asia/Tokyo", session.Location.String())
}

func TestParseInZone(t *testing.T) {
	r := newResolver("America/New_York")
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	t.Run("round trip through a zone preserves the instant", func(t *testing.T) {
		result, rendered, err := r.ParseInZone("tomorrow", "America/New_York", now)
		require.NoError(t, err)
		require.True(t, result.IsValid)
		assert.NotEmpty(t, rendered)

		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		local := result.Instant.In(loc)
		assert.Equal(t, 11, local.Day())
		assert.Equal(t, 0, local.Hour())
		// Converting to another zone and back never changes the instant
		assert.True(t, result.Instant.Equal(result.Instant.In(time.UTC)))
	})

	t.Run("unknown zone is an error", func(t *testing.T) {
		_, _, err := r.ParseInZone("tomorrow", "Nowhere/Void", now)
		assert.Error(t, err)
	})

	t.Run("invalid text yields invalid result without error", func(t *testing.T) {
		result, rendered, err := r.ParseInZone("nonsense", "America/New_York", now)
		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Empty(t, rendered)
	})
}

func TestStampForCalendar(t *testing.T) {
	r := newResolver("America/New_York")

	t.Run("stamps the zone without shifting the instant", func(t *testing.T) {
		instant := time.Date(2026, time.July, 1, 18, 0, 0, 0, time.UTC)
		zoned, err := r.StampForCalendar(instant, "America/New_York")
		require.NoError(t, err)
		assert.Equal(t, "America/New_York", zoned.ZoneID)
		assert.True(t, zoned.Time.Equal(instant))
		assert.Equal(t, 14, zoned.Time.Hour()) // EDT is UTC-4
	})

	t.Run("unknown zone is an error", func(t *testing.T) {
		_, err := r.StampForCalendar(time.Now(), "Not/AZone")
		assert.Error(t, err)
	})
}
