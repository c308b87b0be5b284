// Package availability generates and ranks conflict-free candidate slots
// against the user's real calendar.
package availability

import (
	"context"
	"sort"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"go.uber.org/zap"
)

// slotStepMinutes is the candidate grid spacing inside business hours
const slotStepMinutes = 30

// Horizon lengths: a preferred date is explored for that day plus the
// following week; without one the search covers tomorrow plus two weeks.
const (
	preferredHorizonDays = 7
	defaultHorizonDays   = 14
)

// Resolver enumerates candidate meeting slots and validates each against
// the calendar provider and the hold store
type Resolver struct {
	calendar core.CalendarProvider
	store    core.SchedulingStore
	zones    *timezone.Resolver
	logger   *zap.Logger
}

// NewResolver creates a new availability resolver
func NewResolver(calendar core.CalendarProvider, store core.SchedulingStore, zones *timezone.Resolver, logger *zap.Logger) *Resolver {
	return &Resolver{
		calendar: calendar,
		store:    store,
		zones:    zones,
		logger:   logger,
	}
}

// SuggestSlots returns up to maxSuggestions conflict-free slots of the
// given duration, ranked by desirability. All generated slots lie within
// business hours on configured working days, in the session's zone. A
// provider error on an individual slot check skips that slot only.
func (r *Resolver) SuggestSlots(
	ctx context.Context,
	session *core.Session,
	duration time.Duration,
	preferredDate *time.Time,
	hours core.BusinessHours,
	maxSuggestions int,
) ([]core.TimeSlotSuggestion, error) {
	if maxSuggestions <= 0 {
		maxSuggestions = 3
	}

	now := time.Now().In(session.Location)
	firstDay, horizonDays := searchRange(now, preferredDate, session.Location)

	var suggestions []core.TimeSlotSuggestion
	for dayOffset := 0; dayOffset <= horizonDays; dayOffset++ {
		day := firstDay.AddDate(0, 0, dayOffset)
		if !hours.IsWorkingDay(day.Weekday()) {
			continue
		}
		for _, start := range daySlots(day, duration, hours) {
			if start.Before(now) {
				continue
			}
			if ok := r.isFree(ctx, session, start, start.Add(duration)); !ok {
				continue
			}
			confidence, reason := scoreSlot(start, hours)
			if preferredDate != nil && sameDay(start, preferredDate.In(session.Location)) {
				confidence += 15
				reason = "matches requested date, " + reason
			}
			suggestions = append(suggestions, core.TimeSlotSuggestion{
				Start:      start,
				End:        start.Add(duration),
				Confidence: confidence,
				Reason:     reason,
			})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].Start.Before(suggestions[j].Start)
	})

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	r.logger.Debug("Generated slot suggestions",
		zap.Int("count", len(suggestions)),
		zap.Duration("duration", duration),
		zap.Bool("has_preferred_date", preferredDate != nil))

	return suggestions, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// searchRange computes the first day and horizon length of the search
func searchRange(now time.Time, preferredDate *time.Time, loc *time.Location) (time.Time, int) {
	if preferredDate != nil {
		d := preferredDate.In(loc)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), preferredHorizonDays
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, loc), defaultHorizonDays
}

// daySlots generates candidate starts every slotStepMinutes whose full
// duration fits inside business hours. Opening and closing are built as
// wall-clock hours so they hold on DST-transition days.
func daySlots(day time.Time, duration time.Duration, hours core.BusinessHours) []time.Time {
	var starts []time.Time
	open := time.Date(day.Year(), day.Month(), day.Day(), hours.StartHour, 0, 0, 0, day.Location())
	closing := time.Date(day.Year(), day.Month(), day.Day(), hours.EndHour, 0, 0, 0, day.Location())
	for start := open; !start.Add(duration).After(closing); start = start.Add(slotStepMinutes * time.Minute) {
		starts = append(starts, start)
	}
	return starts
}

// isFree checks a candidate against both the provider calendar and the
// active-hold store. Errors are logged and the slot skipped rather than
// propagated.
func (r *Resolver) isFree(ctx context.Context, session *core.Session, start, end time.Time) bool {
	held, err := r.store.HasOverlap(ctx, start, end)
	if err != nil {
		r.logger.Warn("Hold overlap check failed, skipping slot",
			zap.Time("start", start),
			zap.Error(err))
		return false
	}
	if held {
		return false
	}

	zonedStart, err := r.zones.StampForCalendar(start, session.ZoneID)
	if err != nil {
		r.logger.Warn("Failed to stamp slot start, skipping slot", zap.Error(err))
		return false
	}
	zonedEnd, err := r.zones.StampForCalendar(end, session.ZoneID)
	if err != nil {
		r.logger.Warn("Failed to stamp slot end, skipping slot", zap.Error(err))
		return false
	}

	result, err := r.calendar.CheckAvailability(ctx, session.Account, zonedStart, zonedEnd)
	if err != nil {
		r.logger.Warn("Calendar availability check failed, skipping slot",
			zap.Time("start", start),
			zap.Error(err))
		return false
	}
	return result.Available
}

// scoreSlot ranks a candidate start by time-of-day and weekday
// desirability. The base score is 50.
func scoreSlot(start time.Time, hours core.BusinessHours) (float64, string) {
	score := 50.0
	reason := "available slot"

	hour := start.Hour()
	switch {
	case hour >= 10 && hour < 11:
		score += 20
		reason = "prime mid-morning slot"
	case hour >= 14 && hour < 15:
		score += 15
		reason = "early afternoon slot"
	case hour >= hours.StartHour && hour < hours.EndHour:
		score += 10
		reason = "within business hours"
	}

	switch start.Weekday() {
	case time.Saturday, time.Sunday:
	default:
		score += 10
	}

	if hour < 9 || hour > 16 {
		score -= 15
		reason = "outside preferred hours"
	}

	return score, reason
}
