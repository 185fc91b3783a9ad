package responder

import (
	"strings"

	"auto_responder/internal/config"
	"auto_responder/internal/model"
)

// Classify returns the first trigger, in priority order, that is enabled and
// matches ev. Only one trigger fires per event.
func Classify(ev model.Event, self model.Identity, enabled model.TriggerSet) (model.Trigger, bool) {
	for _, t := range model.TriggerPriority {
		if !enabled.Enabled(t) {
			continue
		}
		if matches(t, ev, self) {
			return t, true
		}
	}
	return "", false
}

func matches(t model.Trigger, ev model.Event, self model.Identity) bool {
	switch t {
	case model.TriggerDM:
		return ev.IsPrivate
	case model.TriggerMention:
		return mentions(ev.Text, self.Username)
	case model.TriggerReply:
		return ev.IsReply && ev.ReplyTo != nil && ev.ReplyTo.SenderID == self.ID
	}
	return false
}

// mentions reports whether text contains @handle, ignoring case.
func mentions(text, handle string) bool {
	if text == "" || handle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(handle))
}

// FormatResponse fills the template with the sender's display name.
func FormatResponse(template, username string) string {
	return strings.ReplaceAll(template, config.UsernamePlaceholder, username)
}
