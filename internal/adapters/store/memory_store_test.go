package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHold(requestID string, start, end time.Time) *core.CalendarHold {
	return &core.CalendarHold{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		Start:       start,
		End:         end,
		HolderEmail: "alice@example.com",
		Status:      core.HoldStatusActive,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
		CreatedAt:   time.Now(),
	}
}

func TestMeetingRequestLifecycle(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	req := &core.MeetingRequest{
		ID:          uuid.NewString(),
		SenderEmail: "alice@example.com",
		Status:      core.RequestStatusPending,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateMeetingRequest(ctx, req))

	got, err := s.GetMeetingRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	require.NoError(t, s.UpdateMeetingRequestStatus(ctx, req.ID, core.RequestStatusScheduled))
	got, err = s.GetMeetingRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RequestStatusScheduled, got.Status)

	_, err = s.GetMeetingRequest(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateHoldIfFreeRejectsOverlap(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()
	start := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	require.NoError(t, s.CreateHoldIfFree(ctx, newHold("req-1", start, end)))

	t.Run("identical range rejected", func(t *testing.T) {
		err := s.CreateHoldIfFree(ctx, newHold("req-2", start, end))
		assert.ErrorIs(t, err, core.ErrSlotTaken)
	})

	t.Run("partial overlap rejected", func(t *testing.T) {
		err := s.CreateHoldIfFree(ctx, newHold("req-2", start.Add(30*time.Minute), end.Add(30*time.Minute)))
		assert.ErrorIs(t, err, core.ErrSlotTaken)
	})

	t.Run("adjacent range allowed", func(t *testing.T) {
		assert.NoError(t, s.CreateHoldIfFree(ctx, newHold("req-2", end, end.Add(time.Hour))))
	})

	t.Run("cancelled hold frees the range", func(t *testing.T) {
		s2 := NewMemoryStore(zap.NewNop())
		h := newHold("req-1", start, end)
		require.NoError(t, s2.CreateHoldIfFree(ctx, h))
		require.NoError(t, s2.UpdateHoldStatus(ctx, h.ID, core.HoldStatusCancelled))
		assert.NoError(t, s2.CreateHoldIfFree(ctx, newHold("req-2", start, end)))
	})
}

func TestCreateHoldIfFreeUnderContention(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()
	start := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateHoldIfFree(ctx, newHold("req", start, end))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, core.ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, winners, "exactly one racer may hold the slot")
}

func TestExpireHolds(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()
	now := time.Now()

	stale := newHold("req-1", now.Add(-2*time.Hour), now.Add(-time.Hour))
	stale.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, s.CreateHoldIfFree(ctx, stale))

	fresh := newHold("req-2", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, s.CreateHoldIfFree(ctx, fresh))

	confirmed := newHold("req-3", now.Add(3*time.Hour), now.Add(4*time.Hour))
	require.NoError(t, s.CreateHoldIfFree(ctx, confirmed))
	require.NoError(t, s.UpdateHoldStatus(ctx, confirmed.ID, core.HoldStatusConfirmed))

	expired, err := s.ExpireHolds(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := s.GetHold(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, core.HoldStatusExpired, got.Status)

	t.Run("second sweep is a no-op", func(t *testing.T) {
		expired, err := s.ExpireHolds(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, expired)
	})

	t.Run("expired hold no longer blocks the range", func(t *testing.T) {
		held, err := s.HasOverlap(ctx, stale.Start, stale.End)
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("confirmed hold survives and still blocks", func(t *testing.T) {
		got, err := s.GetHold(ctx, confirmed.ID)
		require.NoError(t, err)
		assert.Equal(t, core.HoldStatusConfirmed, got.Status)
		held, err := s.HasOverlap(ctx, confirmed.Start, confirmed.End)
		require.NoError(t, err)
		assert.True(t, held)
	})
}

func TestWorkflowPersistence(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	wf := &core.SchedulingWorkflow{
		ID:         uuid.NewString(),
		RequestID:  "req-1",
		Type:       core.WorkflowNegotiateTime,
		Status:     core.WorkflowStatusActive,
		TotalSteps: 4,
		Context:    map[string]string{"k": "v"},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	require.NoError(t, s.UpdateWorkflowStep(ctx, wf.ID, "send_options", 2))
	require.NoError(t, s.UpdateWorkflowStatus(ctx, wf.ID, core.WorkflowStatusCompleted))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "send_options", got.CurrentStep)
	assert.Equal(t, 2, got.StepNumber)
	assert.Equal(t, core.WorkflowStatusCompleted, got.Status)
	assert.Equal(t, "v", got.Context["k"])

	t.Run("stored workflow is isolated from caller mutation", func(t *testing.T) {
		wf.Context["k"] = "mutated"
		got, err := s.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "v", got.Context["k"])
	})
}

func TestPreferencesFallback(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	_, err := s.GetPreferences(ctx, "alice@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)

	global := &core.SchedulingPreferences{
		SenderEmail:   "",
		PreferredTone: core.ToneProfessional,
	}
	require.NoError(t, s.SavePreferences(ctx, global))

	got, err := s.GetPreferences(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.ToneProfessional, got.PreferredTone)

	personal := &core.SchedulingPreferences{
		SenderEmail:   "alice@example.com",
		PreferredTone: core.ToneCasual,
	}
	require.NoError(t, s.SavePreferences(ctx, personal))

	got, err = s.GetPreferences(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.ToneCasual, got.PreferredTone)
}

func TestCountRequestsBySender(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	count, err := s.CountRequestsBySender(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Zero(t, count)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateMeetingRequest(ctx, &core.MeetingRequest{
			ID:          uuid.NewString(),
			SenderEmail: "alice@example.com",
		}))
	}
	require.NoError(t, s.CreateMeetingRequest(ctx, &core.MeetingRequest{
		ID:          uuid.NewString(),
		SenderEmail: "bob@example.com",
	}))

	count, err = s.CountRequestsBySender(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
