package history

import (
	"strings"
	"time"
)

// KindChat marks a plain chat line. Command lines carry their command token
// (without prefix) as kind, e.g. "event".
const KindChat = "chat"

// KindEvent is the kind of lines that feed the narrative context.
const KindEvent = "event"

// KindRejectedEvent marks an event invocation that was refused (bot disabled,
// caller not authorized, or malformed). It is kept on every occurrence like
// chat but never feeds the narrative context.
const KindRejectedEvent = "event_rejected"

// Line is one observed chat message. Lines are never mutated after creation.
type Line struct {
	Channel   string
	User      string
	Text      string
	Kind      string
	Timestamp time.Time
}

// NormalizeChannel strips whitespace and the leading '#' marker and folds case.
func NormalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

// Classify returns the kind of text: KindChat unless the trimmed text starts
// with prefix, in which case the first whitespace-delimited token without the
// prefix.
func Classify(text, prefix string) string {
	t := strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(t, prefix) {
		return KindChat
	}
	fields := strings.Fields(t)
	token := strings.TrimPrefix(fields[0], prefix)
	if token == "" {
		return KindChat
	}
	return token
}

// Date renders the capture date as YYYY-MM-DD (UTC).
func (l Line) Date() string {
	return l.Timestamp.UTC().Format(time.DateOnly)
}
