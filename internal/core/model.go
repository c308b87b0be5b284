package core

import (
	"time"
)

// Email represents an inbound email message
type Email struct {
	From    string
	To      []string
	Subject string
	Body    string
	Headers map[string][]string
}

// MeetingType classifies how a meeting request should be treated
type MeetingType string

const (
	MeetingTypeUrgent    MeetingType = "urgent"
	MeetingTypeRegular   MeetingType = "regular"
	MeetingTypeFlexible  MeetingType = "flexible"
	MeetingTypeRecurring MeetingType = "recurring"
)

// Urgency is the extracted priority of a meeting request
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// RequestStatus is the lifecycle status of a meeting request.
// Requests are never deleted, only status-transitioned.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusScheduled RequestStatus = "scheduled"
	RequestStatusDeclined  RequestStatus = "declined"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// MeetingRequest is the structured intent extracted from an inbound email
type MeetingRequest struct {
	ID                  string
	SenderEmail         string
	Subject             string
	MeetingType         MeetingType
	DurationMinutes     int
	PreferredDates      []string
	Attendees           []string
	LocationPreference  string
	SpecialRequirements string
	Urgency             Urgency
	DetectionConfidence float64 // 0-100
	Status              RequestStatus
	CreatedAt           time.Time
}

// ParsedInstant is the result of parsing a free-text date/time expression.
// Invariant: IsValid is true exactly when Instant is non-nil.
type ParsedInstant struct {
	Input      string
	Instant    *time.Time
	IsValid    bool
	Confidence float64 // 0-100
	Error      string
}

// TimeSlotSuggestion is a ranked candidate meeting slot. It is transient
// until a CalendarHold is created from it.
type TimeSlotSuggestion struct {
	Start      time.Time
	End        time.Time
	Confidence float64 // 0-100
	Reason     string
}

// HoldStatus is the lifecycle status of a calendar hold
type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusConfirmed HoldStatus = "confirmed"
	HoldStatusExpired   HoldStatus = "expired"
	HoldStatusCancelled HoldStatus = "cancelled"
)

// CalendarHold is a short-lived reservation against a time range, created
// only after a conflict check succeeds. It blocks double-booking while a
// human approves, and expires if never confirmed.
type CalendarHold struct {
	ID          string
	RequestID   string
	Start       time.Time
	End         time.Time
	HolderEmail string
	Status      HoldStatus
	ExpiresAt   time.Time
	Notes       string
	CreatedAt   time.Time
}

// WorkflowType selects the step sequence a scheduling workflow follows
type WorkflowType string

const (
	WorkflowDirectSchedule WorkflowType = "direct_schedule"
	WorkflowNegotiateTime  WorkflowType = "negotiate_time"
	WorkflowMultiRecipient WorkflowType = "multi_recipient"
)

// WorkflowStatus is the lifecycle status of a scheduling workflow
type WorkflowStatus string

const (
	WorkflowStatusActive    WorkflowStatus = "active"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// SchedulingWorkflow is the persisted state machine that moves one meeting
// request from detection to a scheduled (or abandoned) outcome. Steps
// advance monotonically; every transition is persisted before the next
// external call begins.
type SchedulingWorkflow struct {
	ID          string
	RequestID   string
	Type        WorkflowType
	CurrentStep string
	StepNumber  int
	TotalSteps  int
	Status      WorkflowStatus
	Context     map[string]string
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResponseAction is the action a generated reply takes
type ResponseAction string

const (
	ActionAccept             ResponseAction = "accept"
	ActionSuggestAlternative ResponseAction = "suggest_alternatives"
	ActionRequestMoreInfo    ResponseAction = "request_more_info"
	ActionDecline            ResponseAction = "decline_meeting"
)

// EventStatus reports whether a tentative calendar event was created
// alongside a generated reply
type EventStatus string

const (
	EventStatusCreated    EventStatus = "created"
	EventStatusNotCreated EventStatus = "not_created"
)

// SchedulingResponse is the assembled reply for a meeting request.
// Immutable after creation; sending it is an external concern.
type SchedulingResponse struct {
	RequestID     string
	Recipient     string
	Action        ResponseAction
	SuggestedTime *TimeSlotSuggestion
	Alternatives  []TimeSlotSuggestion
	Confidence    float64
	EmailContent  string
	EventStatus   EventStatus
	EventID       string
	GeneratedAt   time.Time
}

// Relationship classifies how well a sender is known to the user
type Relationship string

const (
	RelationshipStranger     Relationship = "stranger"
	RelationshipNewContact   Relationship = "new_contact"
	RelationshipKnownContact Relationship = "known_contact"
)

// Tone selects the phrasing register of a generated reply
type Tone string

const (
	ToneCasual       Tone = "casual"
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
)

// IntentResult is the external classifier's verdict on an email
type IntentResult struct {
	IsMeetingRequest bool
	Confidence       float64 // 0-1
	Details          IntentDetails
	ModelUsed        string
	ClassifiedAt     time.Time
}

// IntentDetails carries the optional structured fields the classifier
// extracted alongside its verdict
type IntentDetails struct {
	DurationMinutes int
	TimeFrame       string
	Purpose         string
	Attendees       []string
	Location        string
}

// BusinessHours bounds slot generation to a working window
type BusinessHours struct {
	StartHour   int
	EndHour     int
	WorkingDays []time.Weekday
}

// IsWorkingDay reports whether d falls on a configured working day
func (b BusinessHours) IsWorkingDay(d time.Weekday) bool {
	for _, wd := range b.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

// SchedulingPreferences are per-sender (or global) scheduling knobs
type SchedulingPreferences struct {
	SenderEmail          string // empty for the global defaults
	Hours                BusinessHours
	AutoConfirmThreshold float64 // 0-1, classifier confidence needed to auto-confirm
	PreferredTone        Tone
}

// CalendarEvent is a provider-side calendar entry
type CalendarEvent struct {
	ID          string
	Summary     string
	Description string
	Start       ZonedTime
	End         ZonedTime
	Attendees   []string
	Location    string
	Tentative   bool
}

// ZonedTime pairs a wall-clock time with an explicit IANA zone identifier.
// Payloads handed to a calendar provider must never rely on the process
// host's local zone.
type ZonedTime struct {
	Time   time.Time
	ZoneID string
}

// AvailabilityResult is the provider's answer to a conflict check
type AvailabilityResult struct {
	Available bool
	Conflicts []CalendarEvent
}

// Session carries per-invocation identity: the calendar account handle and
// the resolved zone for the user whose mail is being processed. It is
// created per inbound email and never shared across requests.
type Session struct {
	UserID   string
	Account  string
	Location *time.Location
	ZoneID   string
}
