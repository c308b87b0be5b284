package store

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the SchedulingStore
// interface, used for local runs and tests
type MemoryStore struct {
	mu        sync.Mutex
	logger    *zap.Logger
	requests  map[string]*core.MeetingRequest
	holds     map[string]*core.CalendarHold
	workflows map[string]*core.SchedulingWorkflow
	prefs     map[string]*core.SchedulingPreferences
}

// NewMemoryStore creates a new in-memory scheduling store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:    logger,
		requests:  make(map[string]*core.MeetingRequest),
		holds:     make(map[string]*core.CalendarHold),
		workflows: make(map[string]*core.SchedulingWorkflow),
		prefs:     make(map[string]*core.SchedulingPreferences),
	}
}

// CreateMeetingRequest persists a new meeting request
func (s *MemoryStore) CreateMeetingRequest(_ context.Context, req *core.MeetingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *req
	s.requests[req.ID] = &copied
	return nil
}

// GetMeetingRequest retrieves a meeting request by id
func (s *MemoryStore) GetMeetingRequest(_ context.Context, id string) (*core.MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

// UpdateMeetingRequestStatus transitions a meeting request's status
func (s *MemoryStore) UpdateMeetingRequestStatus(_ context.Context, id string, status core.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return core.ErrNotFound
	}
	req.Status = status
	return nil
}

// CreateHoldIfFree atomically creates a hold unless the range is already
// occupied by an active or confirmed hold. The overlap check and the
// insert happen under one lock so two racing requests cannot both hold
// the same slot.
func (s *MemoryStore) CreateHoldIfFree(_ context.Context, hold *core.CalendarHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlapLocked(hold.Start, hold.End) {
		return core.ErrSlotTaken
	}
	copied := *hold
	s.holds[hold.ID] = &copied
	return nil
}

// GetHold retrieves a hold by id
func (s *MemoryStore) GetHold(_ context.Context, id string) (*core.CalendarHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *hold
	return &copied, nil
}

// GetHoldsByRequest returns all holds owned by a meeting request
func (s *MemoryStore) GetHoldsByRequest(_ context.Context, requestID string) ([]core.CalendarHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var holds []core.CalendarHold
	for _, h := range s.holds {
		if h.RequestID == requestID {
			holds = append(holds, *h)
		}
	}
	return holds, nil
}

// UpdateHoldStatus transitions a hold's status
func (s *MemoryStore) UpdateHoldStatus(_ context.Context, id string, status core.HoldStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok {
		return core.ErrNotFound
	}
	hold.Status = status
	return nil
}

// ExpireHolds marks active holds whose expiry has passed as expired
func (s *MemoryStore) ExpireHolds(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for _, h := range s.holds {
		if h.Status == core.HoldStatusActive && h.ExpiresAt.Before(now) {
			h.Status = core.HoldStatusExpired
			expired++
		}
	}
	return expired, nil
}

// HasOverlap reports whether any active or confirmed hold overlaps
// [start, end)
func (s *MemoryStore) HasOverlap(_ context.Context, start, end time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapLocked(start, end), nil
}

func (s *MemoryStore) overlapLocked(start, end time.Time) bool {
	for _, h := range s.holds {
		if h.Status != core.HoldStatusActive && h.Status != core.HoldStatusConfirmed {
			continue
		}
		if h.Start.Before(end) && h.End.After(start) {
			return true
		}
	}
	return false
}

// CreateWorkflow persists a new scheduling workflow
func (s *MemoryStore) CreateWorkflow(_ context.Context, wf *core.SchedulingWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *wf
	copied.Context = make(map[string]string, len(wf.Context))
	for k, v := range wf.Context {
		copied.Context[k] = v
	}
	s.workflows[wf.ID] = &copied
	return nil
}

// GetWorkflow retrieves a workflow by id
func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*core.SchedulingWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *wf
	return &copied, nil
}

// UpdateWorkflowStep advances a workflow to a named step
func (s *MemoryStore) UpdateWorkflowStep(_ context.Context, id string, step string, stepNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return core.ErrNotFound
	}
	wf.CurrentStep = step
	wf.StepNumber = stepNumber
	wf.UpdatedAt = time.Now()
	return nil
}

// UpdateWorkflowStatus transitions a workflow's status
func (s *MemoryStore) UpdateWorkflowStatus(_ context.Context, id string, status core.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return core.ErrNotFound
	}
	wf.Status = status
	wf.UpdatedAt = time.Now()
	return nil
}

// GetPreferences returns the preferences for a sender, falling back to
// the global defaults stored under the empty sender key
func (s *MemoryStore) GetPreferences(_ context.Context, senderEmail string) (*core.SchedulingPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[senderEmail]; ok {
		copied := *p
		return &copied, nil
	}
	if p, ok := s.prefs[""]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, core.ErrNotFound
}

// SavePreferences stores scheduling preferences
func (s *MemoryStore) SavePreferences(_ context.Context, prefs *core.SchedulingPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *prefs
	s.prefs[prefs.SenderEmail] = &copied
	return nil
}

// CountRequestsBySender returns how many requests a sender has made
func (s *MemoryStore) CountRequestsBySender(_ context.Context, senderEmail string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.requests {
		if r.SenderEmail == senderEmail {
			count++
		}
	}
	return count, nil
}
