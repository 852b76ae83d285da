package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field names every audit line is expected to carry.
const (
	FieldUserID    = "user_id"
	FieldAction    = "action"
	FieldEntityID  = "entity_id"
	FieldTimestamp = "timestamp"
)

// LogFields are the indexable fields extracted from one audit line.
// HasTimestamp is false when the line carried no usable timestamp.
type LogFields struct {
	UserID       string
	Action       string
	EntityID     string
	Timestamp    Timestamp
	HasTimestamp bool
}

// BufferedEntry is a raw audit line held in memory until the next flush.
type BufferedEntry struct {
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// AuditEvent is a convenience producer for well-formed audit lines.
type AuditEvent struct {
	UserID    string
	Action    string
	EntityID  string
	Timestamp time.Time
	Details   map[string]any
}

// FormatLine renders the event as a single-line JSON object with sorted keys.
// Details never override the four indexed fields.
func (e AuditEvent) FormatLine() (string, error) {
	fields := make(map[string]any, len(e.Details)+4)
	for k, v := range e.Details {
		fields[k] = v
	}
	fields[FieldUserID] = e.UserID
	fields[FieldAction] = e.Action
	if e.EntityID != "" {
		fields[FieldEntityID] = e.EntityID
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fields[FieldTimestamp] = ts.UTC().Unix()

	// encoding/json writes map keys in sorted order.
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal audit event: %w", err)
	}
	return string(data), nil
}
