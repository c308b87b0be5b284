package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rule is a single entry in the ordered parsing cascade. Each rule is
// independently testable; the cascade order is the Rules slice below,
// first match wins.
type Rule struct {
	Name       string
	Confidence float64
	Apply      func(text string, ref time.Time, cutoffHour int) (time.Time, bool)
}

// Rules is the full cascade, in evaluation order: relative keywords first,
// then standard layouts, then fuzzy fallbacks.
func Rules() []Rule {
	return []Rule{
		{Name: "relative_keyword", Confidence: 95, Apply: applyRelativeKeyword},
		{Name: "weekday_name", Confidence: 90, Apply: applyWeekdayName},
		{Name: "standard_layout", Confidence: 85, Apply: applyStandardLayout},
		{Name: "clock_time", Confidence: 75, Apply: applyClockTime},
		{Name: "month_day", Confidence: 70, Apply: applyMonthDay},
	}
}

// startOfDay truncates t to midnight in its own location
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func applyRelativeKeyword(text string, ref time.Time, _ int) (time.Time, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "today", "tonight":
		return startOfDay(ref), true
	case "tomorrow":
		return startOfDay(ref.AddDate(0, 0, 1)), true
	case "day after tomorrow":
		return startOfDay(ref.AddDate(0, 0, 2)), true
	case "next week":
		return startOfDay(ref.AddDate(0, 0, 7)), true
	}
	return time.Time{}, false
}

// weekdayAliases maps names and common abbreviations to weekdays
var weekdayAliases = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func applyWeekdayName(text string, ref time.Time, _ int) (time.Time, bool) {
	name := strings.ToLower(strings.TrimSpace(text))
	name = strings.TrimPrefix(name, "next ")
	name = strings.TrimPrefix(name, "on ")
	wd, ok := weekdayAliases[name]
	if !ok {
		return time.Time{}, false
	}
	// Always resolve to the upcoming occurrence; a bare weekday name never
	// refers to today.
	ahead := (int(wd) - int(ref.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return startOfDay(ref.AddDate(0, 0, ahead)), true
}

// standardLayouts are tried in order against the raw text
var standardLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2 2006",
}

func applyStandardLayout(text string, ref time.Time, _ int) (time.Time, bool) {
	trimmed := strings.TrimSpace(text)
	for _, layout := range standardLayouts {
		t, err := time.ParseInLocation(layout, trimmed, ref.Location())
		if err != nil {
			continue
		}
		// Sanity bound: reject nonsensical years such as two-digit parses
		if t.Year() < ref.Year()-1 || t.Year() > ref.Year()+5 {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

var clockTimeRe = regexp.MustCompile(`(?i)^\s*(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*$`)

func applyClockTime(text string, ref time.Time, cutoffHour int) (time.Time, bool) {
	m := clockTimeRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return time.Time{}, false
		}
	}
	meridiem := strings.ToLower(m[3])
	// A bare number with no meridiem and no minutes is too ambiguous to
	// treat as a time.
	if meridiem == "" && m[2] == "" {
		return time.Time{}, false
	}
	hour, ok := normalizeHour(hour, meridiem)
	if !ok {
		return time.Time{}, false
	}
	return resolveBareTime(hour, minute, ref, cutoffHour), true
}

// resolveBareTime anchors a clock time that carries no date words: today,
// or tomorrow once ref has passed the evening cutoff. The wall-clock hour
// is built with time.Date so it holds on DST-transition days.
func resolveBareTime(hour, minute int, ref time.Time, cutoffHour int) time.Time {
	day := ref
	// A bare clock time past the cutoff hour means tomorrow
	if ref.Hour() >= cutoffHour {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, ref.Location())
}

// normalizeHour converts a 12-hour clock reading to 24-hour
func normalizeHour(hour int, meridiem string) (int, bool) {
	switch meridiem {
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, false
		}
	}
	return hour, true
}

var monthAliases = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var monthDayRe = regexp.MustCompile(`(?i)^\s*([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*$`)
var dayMonthRe = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\s*$`)

func applyMonthDay(text string, ref time.Time, _ int) (time.Time, bool) {
	var monthName string
	var dayStr string
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		monthName, dayStr = m[1], m[2]
	} else if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		dayStr, monthName = m[1], m[2]
	} else {
		return time.Time{}, false
	}
	month, ok := monthAliases[strings.ToLower(monthName)]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(ref.Year(), month, day, 0, 0, 0, 0, ref.Location())
	// The date already passed this year, so it refers to next year
	if t.Before(startOfDay(ref)) {
		t = t.AddDate(1, 0, 0)
	}
	// Reject overflow like "February 30"
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
