package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/auth"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/mqtt"
)

// SourceAPI marks entries produced by the HTTP session endpoints.
const SourceAPI = "api"

// RepositoryWriter stores events in the audit_logs table.
type RepositoryWriter struct {
	repo   Repository
	source string
}

// NewRepositoryWriter returns a Writer backed by repo.
func NewRepositoryWriter(repo Repository, source string) *RepositoryWriter {
	if source == "" {
		source = SourceAPI
	}
	return &RepositoryWriter{repo: repo, source: source}
}

// Write implements Writer.
func (w *RepositoryWriter) Write(ctx context.Context, event auth.Event) error {
	return w.repo.Create(ctx, &AuditLog{
		Action:    string(event.Type),
		AccountID: event.AccountID,
		Email:     event.Email,
		Reason:    event.Reason,
		Source:    w.source,
		CreatedAt: event.At,
	})
}

// Publisher is the subset of *mqtt.Client used for events.
type Publisher interface {
	PublishEvent(topic string, payload []byte) error
}

// MQTTPublisher publishes events as JSON to {prefix}/session/{type}.
type MQTTPublisher struct {
	client Publisher
	topics mqtt.Topics
}

// NewMQTTPublisher returns a Writer publishing through client.
func NewMQTTPublisher(client Publisher, topics mqtt.Topics) *MQTTPublisher {
	return &MQTTPublisher{client: client, topics: topics}
}

// eventMessage is the MQTT wire format. Email is omitted: brokers are often
// readable by more parties than the audit table.
type eventMessage struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Write implements Writer.
func (p *MQTTPublisher) Write(_ context.Context, event auth.Event) error {
	payload, err := json.Marshal(eventMessage{
		Type:      string(event.Type),
		AccountID: event.AccountID,
		Reason:    event.Reason,
		Timestamp: event.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling session event: %w", err)
	}
	return p.client.PublishEvent(p.topics.SessionEvent(string(event.Type)), payload)
}

// PointWriter is the subset of *influxdb.Client used for events.
type PointWriter interface {
	WriteSessionEvent(eventType, reason, accountID string, at time.Time)
}

// InfluxWriter writes one session_events point per event.
type InfluxWriter struct {
	client PointWriter
}

// NewInfluxWriter returns a Writer backed by client.
func NewInfluxWriter(client PointWriter) *InfluxWriter {
	return &InfluxWriter{client: client}
}

// Write implements Writer. InfluxDB writes are batched; failures surface
// through the client's error callback, not here.
func (w *InfluxWriter) Write(_ context.Context, event auth.Event) error {
	w.client.WriteSessionEvent(string(event.Type), event.Reason, event.AccountID, event.At)
	return nil
}
