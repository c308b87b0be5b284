package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentResponse(t *testing.T) {
	t.Run("clean json", func(t *testing.T) {
		analysis, err := parseIntentResponse(`{"is_meeting_request": true, "confidence": 0.92, "duration_minutes": 30, "purpose": "standup", "attendees": ["a@example.com"], "location": "Zoom"}`)
		require.NoError(t, err)
		assert.True(t, analysis.IsMeetingRequest)
		assert.Equal(t, 0.92, analysis.Confidence)
		assert.Equal(t, 30, analysis.DurationMinutes)
		assert.Equal(t, "standup", analysis.Purpose)
		assert.Equal(t, []string{"a@example.com"}, analysis.Attendees)
		assert.Equal(t, "Zoom", analysis.Location)
	})

	t.Run("json wrapped in prose", func(t *testing.T) {
		analysis, err := parseIntentResponse("Sure, here is my analysis:\n```json\n{\"is_meeting_request\": false, \"confidence\": 0.1}\n```\nLet me know if you need more.")
		require.NoError(t, err)
		assert.False(t, analysis.IsMeetingRequest)
		assert.Equal(t, 0.1, analysis.Confidence)
	})

	t.Run("no json at all", func(t *testing.T) {
		_, err := parseIntentResponse("I cannot analyze this email.")
		assert.Error(t, err)
	})

	t.Run("malformed json inside braces", func(t *testing.T) {
		_, err := parseIntentResponse("{is_meeting_request: yes}")
		assert.Error(t, err)
	})
}
