package response

import (
	"strings"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
)

// greetings is the fixed phrasing table keyed by tone and relationship
var greetings = map[core.Tone]map[core.Relationship]string{
	core.ToneCasual: {
		core.RelationshipStranger:     "Hi there,",
		core.RelationshipNewContact:   "Hey %s,",
		core.RelationshipKnownContact: "Hey %s!",
	},
	core.ToneFriendly: {
		core.RelationshipStranger:     "Hello,",
		core.RelationshipNewContact:   "Hi %s,",
		core.RelationshipKnownContact: "Hi %s,",
	},
	core.ToneProfessional: {
		core.RelationshipStranger:     "Dear %s,",
		core.RelationshipNewContact:   "Dear %s,",
		core.RelationshipKnownContact: "Hello %s,",
	},
}

var closings = map[core.Tone]string{
	core.ToneCasual:       "Cheers,",
	core.ToneFriendly:     "Best,",
	core.ToneProfessional: "Best regards,",
}

// greetingFor renders the greeting line for a sender. The %s placeholder
// takes the sender's display name derived from the address.
func greetingFor(tone core.Tone, rel core.Relationship, senderEmail string) string {
	byRel, ok := greetings[tone]
	if !ok {
		byRel = greetings[core.ToneProfessional]
	}
	template, ok := byRel[rel]
	if !ok {
		template = byRel[core.RelationshipStranger]
	}
	if !strings.Contains(template, "%s") {
		return template
	}
	return strings.Replace(template, "%s", displayName(senderEmail), 1)
}

func closingFor(tone core.Tone) string {
	if closing, ok := closings[tone]; ok {
		return closing
	}
	return closings[core.ToneProfessional]
}

// displayName derives a readable name from an email address local part
func displayName(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	words := strings.Fields(local)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return "there"
	}
	return strings.Join(words, " ")
}

// formatSlot renders a slot in the recipient's local time
func formatSlot(slot core.TimeSlotSuggestion, loc *time.Location) string {
	start := slot.Start.In(loc)
	end := slot.End.In(loc)
	return start.Format("Monday, January 2 from 3:04 PM") + " to " + end.Format("3:04 PM")
}
