package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/retry"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubClassifier returns a canned result, or fails every call
type stubClassifier struct {
	result *core.IntentResult
	err    error
	calls  int
}

func (s *stubClassifier) Classify(_ context.Context, _ *core.Email) (*core.IntentResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func testSession(t *testing.T) *core.Session {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return &core.Session{UserID: "user-1", Account: "primary", Location: loc, ZoneID: "America/New_York"}
}

func newTestExtractor(classifier core.IntentClassifier) *Extractor {
	parser := temporal.NewParser(zap.NewNop(), 17)
	return NewExtractor(classifier, parser, zap.NewNop(), fastPolicy(), 0.6, 60)
}

func meetingEmail(body string) *core.Email {
	return &core.Email{
		From:    "alice@example.com",
		To:      []string{"me@example.com"},
		Subject: "Meeting request",
		Body:    body,
	}
}

func positiveResult(confidence float64) *core.IntentResult {
	return &core.IntentResult{
		IsMeetingRequest: true,
		Confidence:       confidence,
		ModelUsed:        "stub",
		ClassifiedAt:     time.Now(),
	}
}

func TestDetectKeywordGate(t *testing.T) {
	classifier := &stubClassifier{result: positiveResult(0.9)}
	e := newTestExtractor(classifier)

	email := &core.Email{
		From:    "alice@example.com",
		Subject: "Invoice attached",
		Body:    "Please find the invoice for last month attached.",
	}
	req, err := e.Detect(context.Background(), testSession(t), email)
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, 0, classifier.calls, "gate must reject before the classifier is consulted")
}

func TestDetectClassifierFailureFailsClosed(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("upstream timeout")}
	e := newTestExtractor(classifier)

	req, err := e.Detect(context.Background(), testSession(t), meetingEmail("Can we meet tomorrow?"))
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, 2, classifier.calls, "classifier should be retried before giving up")
}

func TestDetectLowConfidenceRejected(t *testing.T) {
	classifier := &stubClassifier{result: positiveResult(0.4)}
	e := newTestExtractor(classifier)

	req, err := e.Detect(context.Background(), testSession(t), meetingEmail("Can we meet tomorrow?"))
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestDetectBuildsRequest(t *testing.T) {
	classifier := &stubClassifier{result: &core.IntentResult{
		IsMeetingRequest: true,
		Confidence:       0.92,
		Details: core.IntentDetails{
			Attendees: []string{"bob@example.com", "alice@example.com"},
			Location:  "Zoom",
			Purpose:   "quarterly review",
		},
	}}
	e := newTestExtractor(classifier)

	req, err := e.Detect(context.Background(), testSession(t), meetingEmail("Can we meet tomorrow at 2pm for an hour?"))
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "alice@example.com", req.SenderEmail)
	assert.InDelta(t, 92.0, req.DetectionConfidence, 0.001)
	assert.Equal(t, core.RequestStatusPending, req.Status)
	assert.Equal(t, 60, req.DurationMinutes)
	// Sender appears exactly once even though the classifier repeated it
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, req.Attendees)
	assert.Equal(t, "Zoom", req.LocationPreference)

	require.Len(t, req.PreferredDates, 1)
	parsed, err := time.Parse(time.RFC3339, req.PreferredDates[0])
	require.NoError(t, err)
	assert.Equal(t, 14, parsed.Hour())
}

func TestExtractDuration(t *testing.T) {
	e := newTestExtractor(&stubClassifier{})

	cases := []struct {
		text string
		want int
	}{
		{"let's have a quick chat", 15},
		{"do you have half an hour", 30},
		{"block out 2 hours please", 120},
		{"a 45 minute session", 45},
		{"an hour and a half to go deep", 90},
		{"no duration mentioned at all", 60},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, e.extractDuration(tc.text, core.IntentDetails{}), "text: %s", tc.text)
	}

	t.Run("classifier fallback", func(t *testing.T) {
		assert.Equal(t, 25, e.extractDuration("nothing explicit", core.IntentDetails{DurationMinutes: 25}))
	})

	t.Run("absurd values ignored", func(t *testing.T) {
		assert.Equal(t, 60, e.extractDuration("a 900 minute meeting", core.IntentDetails{}))
	})
}

func TestExtractDatesAttachesNearbyTime(t *testing.T) {
	e := newTestExtractor(&stubClassifier{})
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, loc)

	t.Run("time range near the date mention", func(t *testing.T) {
		dates := e.extractDates("are you free tomorrow 2-3pm?", now)
		require.Len(t, dates, 1)
		parsed, err := time.Parse(time.RFC3339, dates[0])
		require.NoError(t, err)
		assert.Equal(t, 11, parsed.Day())
		assert.Equal(t, 14, parsed.Hour())
	})

	t.Run("date without time stays at midnight", func(t *testing.T) {
		dates := e.extractDates("let's sync next week", now)
		require.Len(t, dates, 1)
		parsed, err := time.Parse(time.RFC3339, dates[0])
		require.NoError(t, err)
		assert.Equal(t, 0, parsed.Hour())
	})

	t.Run("standalone time means today", func(t *testing.T) {
		dates := e.extractDates("call me, anytime after lunch works, say 3pm", now)
		require.Len(t, dates, 1)
		parsed, err := time.Parse(time.RFC3339, dates[0])
		require.NoError(t, err)
		assert.Equal(t, 10, parsed.Day())
		assert.Equal(t, 15, parsed.Hour())
	})

	t.Run("standalone time in the evening rolls to tomorrow", func(t *testing.T) {
		evening := time.Date(2026, time.March, 10, 18, 30, 0, 0, loc)
		dates := e.extractDates("any chance of a quick call at 2pm?", evening)
		require.Len(t, dates, 1)
		parsed, err := time.Parse(time.RFC3339, dates[0])
		require.NoError(t, err)
		assert.Equal(t, 11, parsed.In(loc).Day())
		assert.Equal(t, 14, parsed.In(loc).Hour())
		assert.True(t, parsed.After(evening))
	})

	t.Run("duplicate mentions collapse", func(t *testing.T) {
		dates := e.extractDates("tomorrow works; yes tomorrow is good", now)
		assert.Len(t, dates, 1)
	})

	t.Run("unparseable mentions are skipped", func(t *testing.T) {
		dates := e.extractDates("no dates here at all, just words", now)
		assert.Empty(t, dates)
	})
}

func TestClassifyMeetingTypeAndUrgency(t *testing.T) {
	assert.Equal(t, core.MeetingTypeUrgent, classifyMeetingType("we need to meet ASAP"))
	assert.Equal(t, core.MeetingTypeRecurring, classifyMeetingType("a weekly sync"))
	assert.Equal(t, core.MeetingTypeFlexible, classifyMeetingType("whenever suits you"))
	assert.Equal(t, core.MeetingTypeRegular, classifyMeetingType("meet for coffee"))

	assert.Equal(t, core.UrgencyHigh, classifyUrgency("urgent: production issue"))
	assert.Equal(t, core.UrgencyLow, classifyUrgency("no rush on this"))
	assert.Equal(t, core.UrgencyMedium, classifyUrgency("meet next week"))
}

func TestFindTimeWindow(t *testing.T) {
	t.Run("shared meridiem across a range", func(t *testing.T) {
		text := "free tomorrow 2-3pm?"
		mentions := findDateMentions(text)
		require.Len(t, mentions, 1)
		tw := findTimeWindow(text, mentions[0])
		require.NotNil(t, tw)
		assert.Equal(t, 14, tw.startHour)
		assert.Equal(t, 60, tw.durationMinutes)
	})

	t.Run("single time phrase", func(t *testing.T) {
		text := "tomorrow at 10:30am"
		mentions := findDateMentions(text)
		require.Len(t, mentions, 1)
		tw := findTimeWindow(text, mentions[0])
		require.NotNil(t, tw)
		assert.Equal(t, 10, tw.startHour)
		assert.Equal(t, 30, tw.startMinute)
	})

	t.Run("no time near the mention", func(t *testing.T) {
		text := "tomorrow would be great"
		mentions := findDateMentions(text)
		require.Len(t, mentions, 1)
		assert.Nil(t, findTimeWindow(text, mentions[0]))
	})
}
