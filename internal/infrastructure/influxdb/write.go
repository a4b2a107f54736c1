package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementSessionEvents is the measurement written by WriteSessionEvent.
const MeasurementSessionEvents = "session_events"

// WriteSessionEvent records one session lifecycle event.
//
// The event type and reason are tags (low cardinality); the account id is a
// field so it does not explode series cardinality.
//
// Example:
//
//	client.WriteSessionEvent("rotation_rejected", "superseded", "acc-1", time.Now())
func (c *Client) WriteSessionEvent(eventType, reason, accountID string, at time.Time) {
	tags := map[string]string{"event": eventType}
	if reason != "" {
		tags["reason"] = reason
	}

	fields := map[string]interface{}{"count": 1}
	if accountID != "" {
		fields["account_id"] = accountID
	}

	c.WritePointWithTime(MeasurementSessionEvents, tags, fields, at)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
