package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "authd"

// Topics builds authd topic names under a configurable prefix.
//
//	topics := mqtt.NewTopics("authd")
//	topics.SessionEvent("login") // "authd/session/login"
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

func (t Topics) root() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// SessionEvent returns the topic for one session event type.
//
// Example: authd/session/rotated
func (t Topics) SessionEvent(eventType string) string {
	return t.root() + "/session/" + eventType
}

// AllSessionEvents returns a wildcard matching every session event.
//
// Example: authd/session/+
func (t Topics) AllSessionEvents() string {
	return t.root() + "/session/+"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: authd/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}
