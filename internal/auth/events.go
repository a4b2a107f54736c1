package auth

import (
	"context"
	"time"
)

// EventType names a session lifecycle event.
type EventType string

// Session events emitted by the Manager and the Service.
const (
	EventRegistered       EventType = "registered"
	EventLogin            EventType = "login"
	EventLoginFailed      EventType = "login_failed"
	EventRotated          EventType = "rotated"
	EventRotationRejected EventType = "rotation_rejected"
	EventRenewalExpired   EventType = "renewal_expired"
	EventLogout           EventType = "logout"
)

// Event describes one session lifecycle transition. It never carries token
// strings or password material.
type Event struct {
	Type      EventType `json:"type"`
	AccountID string    `json:"accountId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// EventSink receives session events. Record must not block for long and
// its failures must not affect the auth operation that produced the event.
type EventSink interface {
	Record(ctx context.Context, event Event)
}

type nopSink struct{}

func (nopSink) Record(context.Context, Event) {}
