// Package workflow drives the persisted step machine that moves a meeting
// request from detection to a scheduled or abandoned outcome. Holds block
// double-booking while a human approves; every step transition is written
// before the next external call so the machine can be resumed after a
// crash.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/meeting-scheduler/internal/availability"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/retry"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"go.uber.org/zap"
)

// maxHoldsPerRequest caps how many top suggestions get a hold
const maxHoldsPerRequest = 2

// autoConfirmSlotConfidence is the slot-ranking confidence (0-1) the top
// suggestion must reach before an auto-confirm is considered
const autoConfirmSlotConfidence = 0.9

// step names shared across workflow types
const (
	stepGenerateSuggestions  = "generate_suggestions"
	stepCreateHolds          = "create_holds"
	stepAutoConfirm          = "auto_confirm"
	stepAwaitingConfirmation = "awaiting_confirmation"
	stepSendOptions          = "send_options"
	stepAwaitSelection       = "await_selection"
	stepCollectConstraints   = "collect_constraints"
	stepAwaitCoordination    = "await_coordination"
)

// errRequestClosed signals that the owning request was cancelled or
// declined mid-workflow
var errRequestClosed = errors.New("meeting request was cancelled or declined")

// Config bounds the engine's behavior
type Config struct {
	HoldExpiry           time.Duration
	MaxSuggestions       int
	AutoConfirmThreshold float64 // default when no per-sender preference exists
	MaxRetries           int
}

// Engine classifies meeting requests into workflow variants and advances
// them step by step
type Engine struct {
	store       core.SchedulingStore
	calendar    core.CalendarProvider
	slots       *availability.Resolver
	zones       *timezone.Resolver
	logger      *zap.Logger
	retryPolicy retry.Policy
	cfg         Config
}

// NewEngine creates a new scheduling workflow engine
func NewEngine(
	store core.SchedulingStore,
	calendar core.CalendarProvider,
	slots *availability.Resolver,
	zones *timezone.Resolver,
	logger *zap.Logger,
	cfg Config,
) *Engine {
	if cfg.HoldExpiry <= 0 {
		cfg.HoldExpiry = 24 * time.Hour
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}
	if cfg.AutoConfirmThreshold <= 0 {
		cfg.AutoConfirmThreshold = 0.85
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Engine{
		store:    store,
		calendar: calendar,
		slots:    slots,
		zones:    zones,
		logger:   logger,
		retryPolicy: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
		cfg: cfg,
	}
}

// SelectWorkflowType picks the step sequence for a request: coordination
// for more than two attendees, direct scheduling for urgent requests with
// high detection confidence, negotiation otherwise.
func SelectWorkflowType(req *core.MeetingRequest) core.WorkflowType {
	if len(req.Attendees) > 2 {
		return core.WorkflowMultiRecipient
	}
	if req.Urgency == core.UrgencyHigh && req.DetectionConfidence >= 85 {
		return core.WorkflowDirectSchedule
	}
	return core.WorkflowNegotiateTime
}

// StartWorkflow creates and advances a workflow for a meeting request.
// The workflow is persisted before any step runs; a failed workflow leaves
// the request pending so a human can retry.
func (e *Engine) StartWorkflow(ctx context.Context, session *core.Session, req *core.MeetingRequest, hours core.BusinessHours) (*core.SchedulingWorkflow, error) {
	wfType := SelectWorkflowType(req)
	wf := &core.SchedulingWorkflow{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		Type:       wfType,
		Status:     core.WorkflowStatusActive,
		Context:    make(map[string]string),
		RetryCount: 0,
		MaxRetries: e.cfg.MaxRetries,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	switch wfType {
	case core.WorkflowDirectSchedule:
		wf.TotalSteps = 3
	case core.WorkflowMultiRecipient:
		wf.TotalSteps = 4
	default:
		wf.TotalSteps = 4
	}

	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}

	e.logger.Info("Started scheduling workflow",
		zap.String("workflow_id", wf.ID),
		zap.String("request_id", req.ID),
		zap.String("workflow_type", string(wfType)))

	var err error
	switch wfType {
	case core.WorkflowDirectSchedule:
		err = e.runDirectSchedule(ctx, session, wf, req, hours)
	case core.WorkflowMultiRecipient:
		err = e.runMultiRecipient(ctx, session, wf, req, hours)
	default:
		err = e.runNegotiateTime(ctx, session, wf, req, hours)
	}

	if err != nil {
		if errors.Is(err, errRequestClosed) {
			e.cancelWorkflow(ctx, wf)
			return wf, nil
		}
		e.failWorkflow(ctx, wf, err.Error())
		return wf, nil
	}
	return wf, nil
}

// StartAcceptedSchedule records the scheduling state for a request whose
// preferred time was already accepted in the drafted reply. The accepted
// slot itself is held so a later confirmation books exactly the time the
// reply promised, and the tentative event id travels in the workflow
// context so confirmation promotes that event instead of booking a
// second one.
func (e *Engine) StartAcceptedSchedule(ctx context.Context, session *core.Session, req *core.MeetingRequest, slot core.TimeSlotSuggestion, tentativeEventID string) (*core.SchedulingWorkflow, error) {
	wf := &core.SchedulingWorkflow{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		Type:       core.WorkflowDirectSchedule,
		Status:     core.WorkflowStatusActive,
		Context:    make(map[string]string),
		RetryCount: 0,
		MaxRetries: e.cfg.MaxRetries,
		TotalSteps: 2,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if tentativeEventID != "" {
		wf.Context["tentative_event_id"] = tentativeEventID
	}

	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}

	e.logger.Info("Started accepted-time workflow",
		zap.String("workflow_id", wf.ID),
		zap.String("request_id", req.ID),
		zap.Time("start", slot.Start))

	if err := e.holdAcceptedSlot(ctx, wf, req, slot); err != nil {
		if errors.Is(err, errRequestClosed) {
			e.cancelWorkflow(ctx, wf)
			return wf, nil
		}
		e.failWorkflow(ctx, wf, err.Error())
		return wf, nil
	}
	return wf, nil
}

// holdAcceptedSlot reserves the accepted slot and parks the workflow
// awaiting human confirmation
func (e *Engine) holdAcceptedSlot(ctx context.Context, wf *core.SchedulingWorkflow, req *core.MeetingRequest, slot core.TimeSlotSuggestion) error {
	if err := e.advance(ctx, wf, stepCreateHolds, 1, req.ID); err != nil {
		return err
	}

	hold := core.CalendarHold{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		Start:       slot.Start,
		End:         slot.End,
		HolderEmail: req.SenderEmail,
		Status:      core.HoldStatusActive,
		ExpiresAt:   time.Now().Add(e.cfg.HoldExpiry),
		Notes:       slot.Reason,
		CreatedAt:   time.Now(),
	}
	if err := e.store.CreateHoldIfFree(ctx, &hold); err != nil {
		if errors.Is(err, core.ErrSlotTaken) {
			return errors.New("accepted slot is no longer free")
		}
		return fmt.Errorf("hold creation failed: %w", err)
	}
	wf.Context["holds_created"] = "1"

	return e.advance(ctx, wf, stepAwaitingConfirmation, 2, req.ID)
}

// runDirectSchedule executes the three-step direct scheduling sequence:
// generate suggestions, hold the top candidates, then auto-confirm or wait
// for a human.
func (e *Engine) runDirectSchedule(ctx context.Context, session *core.Session, wf *core.SchedulingWorkflow, req *core.MeetingRequest, hours core.BusinessHours) error {
	suggestions, err := e.stepGenerate(ctx, session, wf, req, hours, 1)
	if err != nil {
		return err
	}

	holds, err := e.stepCreateHolds(ctx, session, wf, req, suggestions, 2)
	if err != nil {
		return err
	}

	prefs, prefErr := e.store.GetPreferences(ctx, req.SenderEmail)
	threshold := e.cfg.AutoConfirmThreshold
	if prefErr == nil && prefs.AutoConfirmThreshold > 0 {
		threshold = prefs.AutoConfirmThreshold
	}

	top := suggestions[0]
	if req.DetectionConfidence/100 >= threshold && top.Confidence/100 >= autoConfirmSlotConfidence {
		if err := e.advance(ctx, wf, stepAutoConfirm, 3, req.ID); err != nil {
			return err
		}
		if err := e.confirmHold(ctx, session, wf, req, &holds[0]); err != nil {
			return err
		}
		return e.completeWorkflow(ctx, wf)
	}

	// The decision belongs to a human; the holds keep the slots blocked
	// until they expire or are confirmed.
	if err := e.advance(ctx, wf, stepAwaitingConfirmation, 3, req.ID); err != nil {
		return err
	}
	return nil
}

// runNegotiateTime generates options and holds them, then parks awaiting
// the requester's selection. It never auto-confirms.
func (e *Engine) runNegotiateTime(ctx context.Context, session *core.Session, wf *core.SchedulingWorkflow, req *core.MeetingRequest, hours core.BusinessHours) error {
	suggestions, err := e.stepGenerate(ctx, session, wf, req, hours, 1)
	if err != nil {
		return err
	}
	if _, err := e.stepCreateHolds(ctx, session, wf, req, suggestions, 2); err != nil {
		return err
	}
	if err := e.advance(ctx, wf, stepSendOptions, 3, req.ID); err != nil {
		return err
	}
	return e.advance(ctx, wf, stepAwaitSelection, 4, req.ID)
}

// runMultiRecipient coordinates more than two attendees: constraints are
// collected externally, options generated and held, then the workflow
// parks awaiting coordination. It never auto-confirms.
func (e *Engine) runMultiRecipient(ctx context.Context, session *core.Session, wf *core.SchedulingWorkflow, req *core.MeetingRequest, hours core.BusinessHours) error {
	if err := e.advance(ctx, wf, stepCollectConstraints, 1, req.ID); err != nil {
		return err
	}
	suggestions, err := e.stepGenerate(ctx, session, wf, req, hours, 2)
	if err != nil {
		return err
	}
	if _, err := e.stepCreateHolds(ctx, session, wf, req, suggestions, 3); err != nil {
		return err
	}
	return e.advance(ctx, wf, stepAwaitCoordination, 4, req.ID)
}

// stepGenerate runs the suggestion step and fails the workflow when the
// calendar offers no free slots
func (e *Engine) stepGenerate(ctx context.Context, session *core.Session, wf *core.SchedulingWorkflow, req *core.MeetingRequest, hours core.BusinessHours, stepNumber int) ([]core.TimeSlotSuggestion, error) {
	if err := e.advance(ctx, wf, stepGenerateSuggestions, stepNumber, req.ID); err != nil {
		return nil, err
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	preferred := firstPreferredDate(req)
	suggestions, err := e.slots.SuggestSlots(ctx, session, duration, preferred, hours, e.cfg.MaxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("slot generation failed: %w", err)
	}
	if len(suggestions) == 0 {
		return nil, errors.New("no available slots")
	}
	return suggestions, nil
}

// stepCreateHolds reserves up to maxHoldsPerRequest of the top
// suggestions. A slot lost to a concurrent hold is expected control flow;
// the next candidate is tried.
func (e *Engine) stepCreateHolds(ctx context.Context, session *core.Session, wf *core.SchedulingWorkflow, req *core.MeetingRequest, suggestions []core.TimeSlotSuggestion, stepNumber int) ([]core.CalendarHold, error) {
	if err := e.advance(ctx, wf, stepCreateHolds, stepNumber, req.ID); err != nil {
		return nil, err
	}

	var holds []core.CalendarHold
	for _, s := range suggestions {
		if len(holds) >= maxHoldsPerRequest {
			break
		}
		hold := core.CalendarHold{
			ID:          uuid.NewString(),
			RequestID:   req.ID,
			Start:       s.Start,
			End:         s.End,
			HolderEmail: req.SenderEmail,
			Status:      core.HoldStatusActive,
			ExpiresAt:   time.Now().Add(e.cfg.HoldExpiry),
			Notes:       s.Reason,
			CreatedAt:   time.Now(),
		}
		err := e.store.CreateHoldIfFree(ctx, &hold)
		if errors.Is(err, core.ErrSlotTaken) {
			e.logger.Debug("Slot taken by concurrent hold, trying next candidate",
				zap.String("request_id", req.ID),
				zap.Time("start", s.Start))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hold creation failed: %w", err)
		}
		holds = append(holds, hold)
	}

	if len(holds) == 0 {
		return nil, errors.New("no available slots")
	}

	wf.Context["holds_created"] = strconv.Itoa(len(holds))
	e.logger.Info("Created calendar holds",
		zap.String("workflow_id", wf.ID),
		zap.String("request_id", req.ID),
		zap.Int("count", len(holds)))
	return holds, nil
}

// confirmHold books the real calendar event for a hold and promotes the
// hold and its request
func (e *Engine) confirmHold(ctx context.Context, session *core.Session, wf *core.SchedulingWorkflow, req *core.MeetingRequest, hold *core.CalendarHold) error {
	start, err := e.zones.StampForCalendar(hold.Start, session.ZoneID)
	if err != nil {
		return fmt.Errorf("failed to stamp event start: %w", err)
	}
	end, err := e.zones.StampForCalendar(hold.End, session.ZoneID)
	if err != nil {
		return fmt.Errorf("failed to stamp event end: %w", err)
	}

	event := &core.CalendarEvent{
		Summary:     eventSummary(req),
		Description: eventDescription(req),
		Start:       start,
		End:         end,
		Attendees:   req.Attendees,
		Location:    req.LocationPreference,
		Tentative:   false,
	}

	// A tentative event booked when the reply was drafted is promoted in
	// place rather than duplicated by a second booking
	eventID := wf.Context["tentative_event_id"]
	if eventID != "" {
		event.ID = eventID
		err = retry.Do(ctx, e.logger, e.retryPolicy, "calendar_update_event", func(ctx context.Context) error {
			return e.calendar.UpdateEvent(ctx, session.Account, event)
		})
		if err != nil {
			e.logger.Warn("Failed to promote tentative event, booking a fresh one",
				zap.String("event_id", eventID),
				zap.Error(err))
			eventID = ""
			event.ID = ""
		}
	}
	if eventID == "" {
		err = retry.Do(ctx, e.logger, e.retryPolicy, "calendar_create_event", func(ctx context.Context) error {
			var createErr error
			eventID, createErr = e.calendar.CreateEvent(ctx, session.Account, event)
			return createErr
		})
		if err != nil {
			return fmt.Errorf("event creation failed: %w", err)
		}
	}

	if err := e.store.UpdateHoldStatus(ctx, hold.ID, core.HoldStatusConfirmed); err != nil {
		return fmt.Errorf("failed to confirm hold: %w", err)
	}
	if err := e.store.UpdateMeetingRequestStatus(ctx, req.ID, core.RequestStatusScheduled); err != nil {
		return fmt.Errorf("failed to mark request scheduled: %w", err)
	}

	wf.Context["event_id"] = eventID
	e.logger.Info("Booked calendar event",
		zap.String("workflow_id", wf.ID),
		zap.String("request_id", req.ID),
		zap.String("event_id", eventID))
	return nil
}

// ConfirmScheduling is the human-approval entry point: it books the real
// event from the request's active hold, promotes the hold, marks the
// request scheduled and completes the workflow. Confirming an already
// completed workflow is a no-op and creates no duplicate event.
func (e *Engine) ConfirmScheduling(ctx context.Context, session *core.Session, workflowID string) error {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}
	if wf.Status == core.WorkflowStatusCompleted {
		e.logger.Debug("Workflow already completed, skipping confirmation",
			zap.String("workflow_id", workflowID))
		return nil
	}
	if wf.Status != core.WorkflowStatusActive {
		return fmt.Errorf("workflow %s is %s and cannot be confirmed", workflowID, wf.Status)
	}

	req, err := e.store.GetMeetingRequest(ctx, wf.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load meeting request: %w", err)
	}
	if req.Status == core.RequestStatusCancelled || req.Status == core.RequestStatusDeclined {
		e.cancelWorkflow(ctx, wf)
		return fmt.Errorf("meeting request %s is %s", req.ID, req.Status)
	}

	holds, err := e.store.GetHoldsByRequest(ctx, wf.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load holds: %w", err)
	}

	var active *core.CalendarHold
	for i := range holds {
		if holds[i].Status == core.HoldStatusActive {
			active = &holds[i]
			break
		}
	}
	if active == nil {
		return errors.New("no active hold to confirm")
	}

	if err := e.confirmHold(ctx, session, wf, req, active); err != nil {
		return err
	}

	// Release the remaining holds so their slots free up immediately
	for i := range holds {
		if holds[i].ID == active.ID || holds[i].Status != core.HoldStatusActive {
			continue
		}
		if err := e.store.UpdateHoldStatus(ctx, holds[i].ID, core.HoldStatusCancelled); err != nil {
			e.logger.Warn("Failed to release extra hold",
				zap.String("hold_id", holds[i].ID),
				zap.Error(err))
		}
	}

	return e.completeWorkflow(ctx, wf)
}

// advance persists a step transition. It re-reads the owning request
// first and refuses to proceed when the request was closed externally, so
// no calendar write follows a cancellation.
func (e *Engine) advance(ctx context.Context, wf *core.SchedulingWorkflow, step string, stepNumber int, requestID string) error {
	req, err := e.store.GetMeetingRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to re-read meeting request: %w", err)
	}
	if req.Status == core.RequestStatusCancelled || req.Status == core.RequestStatusDeclined {
		return errRequestClosed
	}

	if err := e.store.UpdateWorkflowStep(ctx, wf.ID, step, stepNumber); err != nil {
		return fmt.Errorf("failed to persist workflow step: %w", err)
	}
	wf.CurrentStep = step
	wf.StepNumber = stepNumber
	wf.UpdatedAt = time.Now()

	e.logger.Debug("Advanced workflow step",
		zap.String("workflow_id", wf.ID),
		zap.String("step", step),
		zap.Int("step_number", stepNumber))
	return nil
}

func (e *Engine) completeWorkflow(ctx context.Context, wf *core.SchedulingWorkflow) error {
	if err := e.store.UpdateWorkflowStatus(ctx, wf.ID, core.WorkflowStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete workflow: %w", err)
	}
	wf.Status = core.WorkflowStatusCompleted
	e.logger.Info("Workflow completed", zap.String("workflow_id", wf.ID))
	return nil
}

// failWorkflow marks the workflow failed with a reason. The meeting
// request stays pending with no side effects so a human can retry.
func (e *Engine) failWorkflow(ctx context.Context, wf *core.SchedulingWorkflow, reason string) {
	wf.Context["failure_reason"] = reason
	if err := e.store.UpdateWorkflowStatus(ctx, wf.ID, core.WorkflowStatusFailed); err != nil {
		e.logger.Error("Failed to mark workflow failed",
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
	}
	wf.Status = core.WorkflowStatusFailed
	e.logger.Warn("Workflow failed",
		zap.String("workflow_id", wf.ID),
		zap.String("reason", reason))
}

func (e *Engine) cancelWorkflow(ctx context.Context, wf *core.SchedulingWorkflow) {
	if err := e.store.UpdateWorkflowStatus(ctx, wf.ID, core.WorkflowStatusCancelled); err != nil {
		e.logger.Error("Failed to mark workflow cancelled",
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
	}
	wf.Status = core.WorkflowStatusCancelled
	e.logger.Info("Workflow cancelled", zap.String("workflow_id", wf.ID))
}

// firstPreferredDate returns the earliest parseable preferred date
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

func eventDescription(req *core.MeetingRequest) string {
	desc := "Scheduled from email request by " + req.SenderEmail
	if req.SpecialRequirements != "" {
		desc += "\n" + req.SpecialRequirements
	}
	return desc
}
