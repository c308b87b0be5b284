package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

// mention is a date expression found in the email body, with its position
// so a nearby clock time can be re-attached to it
type mention struct {
	text  string
	start int
	end   int
}

// windowRadius is how far around a date mention the extractor scans for an
// explicit clock-time range
const windowRadius = 50

var dateMentionRe = regexp.MustCompile(`(?i)\b(` +
	`day after tomorrow|tomorrow|today|tonight|next week|` +
	`(?:next\s+|on\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues?|wed|thur?s?|fri|sat|sun)\b|` +
	`\d{4}-\d{2}-\d{2}|` +
	`\d{1,2}/\d{1,2}/\d{4}|` +
	`(?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept?|oct|nov|dec)\.?\s+\d{1,2}(?:st|nd|rd|th)?` +
	`)\b`)

// findDateMentions returns every date expression in the text, in order
func findDateMentions(text string) []mention {
	var mentions []mention
	for _, loc := range dateMentionRe.FindAllStringIndex(text, -1) {
		mentions = append(mentions, mention{
			text:  text[loc[0]:loc[1]],
			start: loc[0],
			end:   loc[1],
		})
	}
	return mentions
}

// timeWindow is a clock-time range recovered from text near a date mention
type timeWindow struct {
	startHour       int
	startMinute     int
	durationMinutes int // 0 when only a start time was found
}

// Range forms like "2-3pm", "10 to 11am", "from 2:30-4pm"
var timeRangeRe = regexp.MustCompile(`(?i)\b(?:from\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:-|–|to|until)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

// Single times like "at 2pm", "at 14:30", "around 10am"
var singleTimeRe = regexp.MustCompile(`(?i)\b(?:at|around|about|by)\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

// Bare meridiem times like "2pm", "11:30am"
var bareTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)

// findTimeWindow scans the ±windowRadius characters around a date mention
// for an explicit time range or single time. A single time defaults to a
// one hour span.
func findTimeWindow(text string, m mention) *timeWindow {
	lo := m.start - windowRadius
	if lo < 0 {
		lo = 0
	}
	hi := m.end + windowRadius
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]

	if r := timeRangeRe.FindStringSubmatch(window); r != nil {
		if tw, ok := windowFromRange(r); ok {
			return tw
		}
	}
	if s := singleTimeRe.FindStringSubmatch(window); s != nil {
		if tw, ok := windowFromSingle(s[1], s[2], s[3]); ok {
			return tw
		}
	}
	if b := bareTimeRe.FindStringSubmatch(window); b != nil {
		if tw, ok := windowFromSingle(b[1], b[2], b[3]); ok {
			return tw
		}
	}
	return nil
}

func windowFromRange(m []string) (*timeWindow, bool) {
	startMeridiem := strings.ToLower(m[3])
	endMeridiem := strings.ToLower(m[6])
	// "2-3pm" puts the meridiem only on the end time; it applies to both
	if startMeridiem == "" {
		startMeridiem = endMeridiem
	}
	startHour, startMin, ok := clockParts(m[1], m[2], startMeridiem)
	if !ok {
		return nil, false
	}
	endHour, endMin, ok := clockParts(m[4], m[5], endMeridiem)
	if !ok {
		return nil, false
	}
	duration := (endHour*60 + endMin) - (startHour*60 + startMin)
	if duration <= 0 {
		// "11-1pm" crossing noon with a shared meridiem guess; treat the
		// range as unusable and fall back to the start time alone
		duration = 0
	}
	return &timeWindow{startHour: startHour, startMinute: startMin, durationMinutes: duration}, true
}

func windowFromSingle(hourStr, minStr, meridiem string) (*timeWindow, bool) {
	hour, minute, ok := clockParts(hourStr, minStr, strings.ToLower(meridiem))
	if !ok {
		return nil, false
	}
	return &timeWindow{startHour: hour, startMinute: minute}, true
}

// clockParts converts hour/minute strings plus an optional meridiem into a
// 24-hour reading
func clockParts(hourStr, minStr, meridiem string) (int, int, bool) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, false
	}
	minute := 0
	if minStr != "" {
		minute, err = strconv.Atoi(minStr)
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}
	switch meridiem {
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

// findStandaloneTimes returns clock times that are not adjacent to any
// date mention; the extractor treats them as referring to today
func findStandaloneTimes(text string, mentions []mention) []timeWindow {
	var times []timeWindow
	for _, loc := range bareTimeRe.FindAllStringSubmatchIndex(text, -1) {
		adjacent := false
		for _, m := range mentions {
			if loc[0] >= m.start-windowRadius && loc[1] <= m.end+windowRadius {
				adjacent = true
				break
			}
		}
		if adjacent {
			continue
		}
		m := bareTimeRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil {
			continue
		}
		if tw, ok := windowFromSingle(m[1], m[2], m[3]); ok {
			times = append(times, *tw)
		}
	}
	return times
}
