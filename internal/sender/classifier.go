// Package sender classifies how well a correspondent is known to the
// user, which drives reply phrasing and auto-confirm eligibility.
package sender

import (
	"context"
	"strings"

	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// Classifier decides a sender's relationship from configured known domains
// and stored request history
type Classifier struct {
	knownDomains []string
	store        core.SchedulingStore
	logger       *zap.Logger
}

// NewClassifier creates a new sender relationship classifier
func NewClassifier(knownDomains []string, store core.SchedulingStore, logger *zap.Logger) *Classifier {
	normalized := make([]string, 0, len(knownDomains))
	for _, domain := range knownDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			normalized = append(normalized, domain)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized sender classifier", zap.Strings("known_domains", normalized))
	}

	return &Classifier{
		knownDomains: normalized,
		store:        store,
		logger:       logger,
	}
}

// Classify returns the relationship for a sender address. A sender on a
// known domain or with prior request history is a known contact; a sender
// seen exactly once before is a new contact; anyone else is a stranger.
func (c *Classifier) Classify(ctx context.Context, senderEmail string) core.Relationship {
	if c.isKnownDomain(senderEmail) {
		return core.RelationshipKnownContact
	}

	count, err := c.store.CountRequestsBySender(ctx, senderEmail)
	if err != nil {
		c.logger.Warn("Sender history lookup failed, treating as stranger",
			zap.String("sender", senderEmail),
			zap.Error(err))
		return core.RelationshipStranger
	}

	switch {
	case count > 1:
		return core.RelationshipKnownContact
	case count == 1:
		return core.RelationshipNewContact
	default:
		return core.RelationshipStranger
	}
}

// isKnownDomain checks if the sender's domain is in the known set
func (c *Classifier) isKnownDomain(email string) bool {
	if len(c.knownDomains) == 0 {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	domain := strings.ToLower(parts[1])
	for _, known := range c.knownDomains {
		if known == domain {
			return true
		}
	}
	return false
}
