// Package scheduler orchestrates the per-email pipeline: detection,
// response drafting and the scheduling workflow. Each inbound email is an
// independent unit of work with its own request-scoped session.
package scheduler

import (
	"context"
	"fmt"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/extractor"
	"github.com/mikey/meeting-scheduler/internal/response"
	"github.com/mikey/meeting-scheduler/internal/sender"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"github.com/mikey/meeting-scheduler/internal/workflow"
	"go.uber.org/zap"
)

// Result is the outcome of processing one inbound email
type Result struct {
	Request  *core.MeetingRequest
	Response *core.SchedulingResponse
	Workflow *core.SchedulingWorkflow
}

// Service runs the scheduling pipeline for inbound emails
type Service struct {
	extractor *extractor.Extractor
	generator *response.Generator
	engine    *workflow.Engine
	senders   *sender.Classifier
	zones     *timezone.Resolver
	store     core.SchedulingStore
	logger    *zap.Logger
	userID    string
	account   string
	hours     core.BusinessHours
}

// NewService creates the scheduling pipeline service. userID and account
// identify the calendar owner whose mailbox is being processed; hours are
// the default business hours when a sender has no stored preferences.
func NewService(
	ext *extractor.Extractor,
	generator *response.Generator,
	engine *workflow.Engine,
	senders *sender.Classifier,
	zones *timezone.Resolver,
	store core.SchedulingStore,
	logger *zap.Logger,
	userID string,
	account string,
	hours core.BusinessHours,
) *Service {
	return &Service{
		extractor: ext,
		generator: generator,
		engine:    engine,
		senders:   senders,
		zones:     zones,
		store:     store,
		logger:    logger,
		userID:    userID,
		account:   account,
		hours:     hours,
	}
}

// ProcessEmail runs the full pipeline for one email. It returns nil when
// the email is not a meeting request. The drafted reply is persisted
// state only; sending it is gated on human approval.
func (s *Service) ProcessEmail(ctx context.Context, email *core.Email) (*Result, error) {
	// Session state is scoped to this invocation; nothing here is shared
	// across concurrent emails.
	session := s.zones.NewSession(ctx, s.userID, s.account)

	req, err := s.extractor.Detect(ctx, session, email)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	if req == nil {
		return nil, nil
	}

	if err := s.store.CreateMeetingRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist meeting request: %w", err)
	}

	hours := s.hours
	if prefs, err := s.store.GetPreferences(ctx, req.SenderEmail); err == nil && prefs.Hours.EndHour > prefs.Hours.StartHour {
		hours = prefs.Hours
	}

	rel := s.senders.Classify(ctx, req.SenderEmail)

	resp, err := s.generator.Generate(ctx, session, email, req, rel, hours)
	if err != nil {
		return nil, fmt.Errorf("response generation failed: %w", err)
	}

	result := &Result{Request: req, Response: resp}

	// Without any concrete time there is nothing to hold or book; the
	// reply just asks for detail.
	if resp.Action == core.ActionRequestMoreInfo {
		return result, nil
	}

	// An accepted preferred time is held as-is so confirmation books the
	// exact slot the reply promised; other actions generate fresh options.
	var wf *core.SchedulingWorkflow
	if resp.Action == core.ActionAccept && resp.SuggestedTime != nil {
		wf, err = s.engine.StartAcceptedSchedule(ctx, session, req, *resp.SuggestedTime, resp.EventID)
	} else {
		wf, err = s.engine.StartWorkflow(ctx, session, req, hours)
	}
	if err != nil {
		// The reply already exists; a workflow failure leaves the request
		// pending for manual handling.
		s.logger.Error("Scheduling workflow failed to start",
			zap.String("request_id", req.ID),
			zap.Error(err))
		return result, nil
	}
	result.Workflow = wf

	return result, nil
}

// ConfirmScheduling approves a parked workflow, booking the real calendar
// event from its active hold
func (s *Service) ConfirmScheduling(ctx context.Context, workflowID string) error {
	session := s.zones.NewSession(ctx, s.userID, s.account)
	return s.engine.ConfirmScheduling(ctx, session, workflowID)
}
