// Package temporal converts free-text date/time expressions into validated
// instants. Parsing never panics and never returns an error value; bad
// input yields a ParsedInstant with IsValid=false and a description.
package temporal

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// Parser resolves free-text temporal expressions against a caller-supplied
// reference time. The reference carries the user's location; the process
// host's zone is never consulted.
type Parser struct {
	logger     *zap.Logger
	rules      []Rule
	cutoffHour int
}

// NewParser creates a new temporal parser. cutoffHour is the evening hour
// after which a bare clock time refers to tomorrow rather than today.
func NewParser(logger *zap.Logger, cutoffHour int) *Parser {
	if cutoffHour <= 0 || cutoffHour > 23 {
		cutoffHour = 17
	}
	return &Parser{
		logger:     logger,
		rules:      Rules(),
		cutoffHour: cutoffHour,
	}
}

// Parse resolves text to an absolute instant relative to ref. The cascade
// in Rules() is tried in order and the first matching rule wins; its
// static confidence becomes the result's confidence.
func (p *Parser) Parse(text string, ref time.Time) core.ParsedInstant {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return invalid(text, "empty input")
	}

	for _, rule := range p.rules {
		resolved, ok := rule.Apply(trimmed, ref, p.cutoffHour)
		if !ok {
			continue
		}
		if resolved.Before(ref.AddDate(-1, 0, 0)) || resolved.After(ref.AddDate(5, 0, 0)) {
			return invalid(text, fmt.Sprintf("resolved time %s is outside the acceptable range", resolved.Format(time.RFC3339)))
		}
		p.logger.Debug("Parsed temporal expression",
			zap.String("input", trimmed),
			zap.String("rule", rule.Name),
			zap.Time("resolved", resolved))
		return core.ParsedInstant{
			Input:      text,
			Instant:    &resolved,
			IsValid:    true,
			Confidence: rule.Confidence,
		}
	}

	return invalid(text, "unrecognized date/time expression")
}

// ParseWithTime resolves a date expression and attaches an explicit
// clock time to it, returning the combined instant. The extractor uses
// this to re-attach a time range found near a date mention.
func (p *Parser) ParseWithTime(dateText string, hour, minute int, ref time.Time) core.ParsedInstant {
	result := p.Parse(dateText, ref)
	if !result.IsValid {
		return result
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return invalid(dateText, fmt.Sprintf("invalid clock time %d:%02d", hour, minute))
	}
	base := *result.Instant
	combined := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, base.Location())
	result.Instant = &combined
	return result
}

// ResolveClockTime anchors a bare clock time that came with no date
// words, applying the same evening-cutoff roll as textual clock-time
// mentions.
func (p *Parser) ResolveClockTime(hour, minute int, ref time.Time) core.ParsedInstant {
	input := fmt.Sprintf("%d:%02d", hour, minute)
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return invalid(input, fmt.Sprintf("invalid clock time %d:%02d", hour, minute))
	}
	resolved := resolveBareTime(hour, minute, ref, p.cutoffHour)
	return core.ParsedInstant{
		Input:      input,
		Instant:    &resolved,
		IsValid:    true,
		Confidence: 75,
	}
}

func invalid(input, reason string) core.ParsedInstant {
	return core.ParsedInstant{
		Input:   input,
		IsValid: false,
		Error:   reason,
	}
}
