// Package extractor turns inbound emails into structured meeting requests.
// A cheap keyword gate runs before the external intent classifier so
// obviously irrelevant mail never incurs a classifier call.
package extractor

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/retry"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"go.uber.org/zap"
)

// schedulingKeywords is the fixed gate set. An email containing none of
// these is rejected without consulting the classifier.
var schedulingKeywords = []string{
	"meeting", "meet", "call", "schedule", "availability", "available",
	"appointment", "sync", "catch up", "chat", "discuss", "calendar",
	"zoom", "get together", "connect",
}

// Extractor detects meeting requests and pulls structured fields from them
type Extractor struct {
	classifier      core.IntentClassifier
	parser          *temporal.Parser
	logger          *zap.Logger
	retryPolicy     retry.Policy
	minConfidence   float64
	defaultDuration int
}

// NewExtractor creates a new meeting request extractor. minConfidence is
// the classifier confidence below which detection is rejected.
func NewExtractor(
	classifier core.IntentClassifier,
	parser *temporal.Parser,
	logger *zap.Logger,
	retryPolicy retry.Policy,
	minConfidence float64,
	defaultDuration int,
) *Extractor {
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	if defaultDuration <= 0 {
		defaultDuration = 60
	}
	return &Extractor{
		classifier:      classifier,
		parser:          parser,
		logger:          logger,
		retryPolicy:     retryPolicy,
		minConfidence:   minConfidence,
		defaultDuration: defaultDuration,
	}
}

// Detect analyzes an email and returns a MeetingRequest, or nil when the
// email is not a meeting request. Classifier failure is treated as "not a
// meeting request" so a flaky classifier can never trigger scheduling
// actions. Sub-extraction failures degrade the affected field, never the
// whole detection.
func (e *Extractor) Detect(ctx context.Context, session *core.Session, email *core.Email) (*core.MeetingRequest, error) {
	text := email.Subject + "\n" + email.Body

	if !containsSchedulingKeyword(text) {
		e.logger.Debug("Email failed keyword gate", zap.String("sender", email.From))
		return nil, nil
	}

	var result *core.IntentResult
	err := retry.Do(ctx, e.logger, e.retryPolicy, "intent_classify", func(ctx context.Context) error {
		var classifyErr error
		result, classifyErr = e.classifier.Classify(ctx, email)
		return classifyErr
	})
	if err != nil {
		// Fail closed: skip automation rather than risk a false positive
		e.logger.Error("Intent classifier failed, treating as non-meeting email",
			zap.String("sender", email.From),
			zap.Error(err))
		return nil, nil
	}

	if !result.IsMeetingRequest || result.Confidence < e.minConfidence {
		e.logger.Debug("Classifier rejected email",
			zap.String("sender", email.From),
			zap.Bool("is_meeting_request", result.IsMeetingRequest),
			zap.Float64("confidence", result.Confidence))
		return nil, nil
	}

	now := time.Now().In(session.Location)

	req := &core.MeetingRequest{
		ID:                  uuid.NewString(),
		SenderEmail:         email.From,
		Subject:             email.Subject,
		MeetingType:         classifyMeetingType(text),
		DurationMinutes:     e.extractDuration(text, result.Details),
		PreferredDates:      e.extractDates(text, now),
		Attendees:           mergeAttendees(email.From, result.Details.Attendees),
		LocationPreference:  result.Details.Location,
		SpecialRequirements: result.Details.Purpose,
		Urgency:             classifyUrgency(text),
		DetectionConfidence: result.Confidence * 100,
		Status:              core.RequestStatusPending,
		CreatedAt:           time.Now(),
	}

	e.logger.Info("Detected meeting request",
		zap.String("request_id", req.ID),
		zap.String("sender", req.SenderEmail),
		zap.String("meeting_type", string(req.MeetingType)),
		zap.Int("duration_minutes", req.DurationMinutes),
		zap.Int("preferred_dates", len(req.PreferredDates)),
		zap.Float64("confidence", req.DetectionConfidence))

	return req, nil
}

func containsSchedulingKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range schedulingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var hourPhraseRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:hours?|hrs?)\b`)
var minutePhraseRe = regexp.MustCompile(`(?i)\b(\d+)\s*(?:minutes?|mins?)\b`)

// durationPhrases maps fixed expressions to minute counts, checked before
// numeric phrases
var durationPhrases = []struct {
	phrase  string
	minutes int
}{
	{"half an hour", 30},
	{"half hour", 30},
	{"quick chat", 15},
	{"quick call", 15},
	{"quick sync", 15},
	{"an hour and a half", 90},
	{"couple of hours", 120},
	{"an hour", 60},
	{"one hour", 60},
}

// extractDuration derives the requested duration from explicit phrases,
// falling back to the classifier's extraction, then the default
func (e *Extractor) extractDuration(text string, details core.IntentDetails) int {
	lower := strings.ToLower(text)
	for _, d := range durationPhrases {
		if strings.Contains(lower, d.phrase) {
			return d.minutes
		}
	}
	if m := hourPhraseRe.FindStringSubmatch(text); m != nil {
		if hours, err := strconv.ParseFloat(m[1], 64); err == nil && hours > 0 && hours <= 8 {
			return int(hours * 60)
		}
	}
	if m := minutePhraseRe.FindStringSubmatch(text); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil && minutes > 0 && minutes <= 480 {
			return minutes
		}
	}
	if details.DurationMinutes > 0 {
		return details.DurationMinutes
	}
	return e.defaultDuration
}

// extractDates resolves every date mention in the text, re-attaching any
// clock-time range found within the surrounding window, and additionally
// treats standalone clock times as referring to today
func (e *Extractor) extractDates(text string, now time.Time) []string {
	mentions := findDateMentions(text)
	seen := make(map[string]bool)
	var dates []string

	for _, m := range mentions {
		var parsed core.ParsedInstant
		if tw := findTimeWindow(text, m); tw != nil {
			parsed = e.parser.ParseWithTime(m.text, tw.startHour, tw.startMinute, now)
		} else {
			parsed = e.parser.Parse(m.text, now)
		}
		if !parsed.IsValid {
			e.logger.Debug("Skipping unparseable date mention",
				zap.String("mention", m.text),
				zap.String("reason", parsed.Error))
			continue
		}
		formatted := parsed.Instant.Format(time.RFC3339)
		if !seen[formatted] {
			seen[formatted] = true
			dates = append(dates, formatted)
		}
	}

	for _, tw := range findStandaloneTimes(text, mentions) {
		parsed := e.parser.ResolveClockTime(tw.startHour, tw.startMinute, now)
		if !parsed.IsValid {
			continue
		}
		formatted := parsed.Instant.Format(time.RFC3339)
		if !seen[formatted] {
			seen[formatted] = true
			dates = append(dates, formatted)
		}
	}

	return dates
}

var urgentKeywords = []string{"urgent", "asap", "as soon as possible", "emergency", "immediately", "right away"}
var recurringKeywords = []string{"recurring", "weekly", "every week", "biweekly", "monthly", "every month", "standing"}
var flexibleKeywords = []string{"flexible", "whenever", "anytime", "at your convenience", "sometime", "no rush", "no hurry", "work around you"}

func classifyMeetingType(text string) core.MeetingType {
	lower := strings.ToLower(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			return core.MeetingTypeUrgent
		}
	}
	for _, kw := range recurringKeywords {
		if strings.Contains(lower, kw) {
			return core.MeetingTypeRecurring
		}
	}
	for _, kw := range flexibleKeywords {
		if strings.Contains(lower, kw) {
			return core.MeetingTypeFlexible
		}
	}
	return core.MeetingTypeRegular
}

func classifyUrgency(text string) core.Urgency {
	lower := strings.ToLower(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			return core.UrgencyHigh
		}
	}
	for _, kw := range flexibleKeywords {
		if strings.Contains(lower, kw) {
			return core.UrgencyLow
		}
	}
	return core.UrgencyMedium
}

func mergeAttendees(sender string, extracted []string) []string {
	attendees := []string{sender}
	for _, a := range extracted {
		a = strings.TrimSpace(a)
		if a == "" || strings.EqualFold(a, sender) {
			continue
		}
		attendees = append(attendees, a)
	}
	return attendees
}
