package core

import (
	"context"
	"time"
)

// IntentClassifier defines the interface for the external service that
// decides whether an email is a meeting request
type IntentClassifier interface {
	// Classify analyzes an email and returns the meeting-request verdict
	Classify(ctx context.Context, email *Email) (*IntentResult, error)
}

// CalendarProvider defines the interface for the external calendar account.
// Implementations never receive a zone-less instant; callers stamp start
// and end with an explicit IANA zone.
type CalendarProvider interface {
	// CheckAvailability reports whether [start, end) is free of conflicts
	CheckAvailability(ctx context.Context, account string, start, end ZonedTime) (*AvailabilityResult, error)

	// CreateEvent creates a calendar event and returns its id
	CreateEvent(ctx context.Context, account string, event *CalendarEvent) (string, error)

	// UpdateEvent replaces the stored event with the same ID. Returns
	// ErrNotFound when no such event exists.
	UpdateEvent(ctx context.Context, account string, event *CalendarEvent) error

	// ListEvents returns events overlapping [start, end)
	ListEvents(ctx context.Context, account string, start, end ZonedTime) ([]CalendarEvent, error)

	// Timezone returns the IANA zone configured on the account
	Timezone(ctx context.Context, account string) (string, error)
}

// SchedulingStore defines the persistence interface for meeting requests,
// holds, workflows and scheduling preferences
type SchedulingStore interface {
	// CreateMeetingRequest persists a new meeting request
	CreateMeetingRequest(ctx context.Context, req *MeetingRequest) error

	// GetMeetingRequest retrieves a meeting request by id
	GetMeetingRequest(ctx context.Context, id string) (*MeetingRequest, error)

	// UpdateMeetingRequestStatus transitions a meeting request's status
	UpdateMeetingRequestStatus(ctx context.Context, id string, status RequestStatus) error

	// CreateHoldIfFree atomically creates a hold for [hold.Start, hold.End)
	// unless an active hold or confirmed event already overlaps the range.
	// It returns ErrSlotTaken when the range is occupied.
	CreateHoldIfFree(ctx context.Context, hold *CalendarHold) error

	// GetHold retrieves a hold by id
	GetHold(ctx context.Context, id string) (*CalendarHold, error)

	// GetHoldsByRequest returns all holds owned by a meeting request
	GetHoldsByRequest(ctx context.Context, requestID string) ([]CalendarHold, error)

	// UpdateHoldStatus transitions a hold's status
	UpdateHoldStatus(ctx context.Context, id string, status HoldStatus) error

	// ExpireHolds marks every active hold whose expiry is before now as
	// expired, returning the number of holds transitioned. Idempotent.
	ExpireHolds(ctx context.Context, now time.Time) (int, error)

	// HasOverlap reports whether any active hold or confirmed hold overlaps
	// [start, end)
	HasOverlap(ctx context.Context, start, end time.Time) (bool, error)

	// CreateWorkflow persists a new scheduling workflow
	CreateWorkflow(ctx context.Context, wf *SchedulingWorkflow) error

	// GetWorkflow retrieves a workflow by id
	GetWorkflow(ctx context.Context, id string) (*SchedulingWorkflow, error)

	// UpdateWorkflowStep advances a workflow to a named step. The write
	// must be committed before the caller begins its next external call.
	UpdateWorkflowStep(ctx context.Context, id string, step string, stepNumber int) error

	// UpdateWorkflowStatus transitions a workflow's status
	UpdateWorkflowStatus(ctx context.Context, id string, status WorkflowStatus) error

	// GetPreferences returns the scheduling preferences for a sender,
	// falling back to the global defaults when none are stored
	GetPreferences(ctx context.Context, senderEmail string) (*SchedulingPreferences, error)

	// SavePreferences stores scheduling preferences
	SavePreferences(ctx context.Context, prefs *SchedulingPreferences) error

	// CountRequestsBySender returns how many requests a sender has made
	CountRequestsBySender(ctx context.Context, senderEmail string) (int, error)
}
