package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Parameters holds the caller supplied, type specific inputs of a report.
// Values are arbitrary JSON; missing or mistyped keys fall back to defaults.
type Parameters map[string]any

// String returns the string value at key, or fallback when absent, empty, or not a string.
func (p Parameters) String(key, fallback string) string {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

// Value implements driver.Valuer so Parameters can be stored as JSONB.
func (p Parameters) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner for JSONB columns.
func (p *Parameters) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Parameters{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan parameters: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*p = Parameters{}
		return nil
	}
	out := Parameters{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan parameters: %w", err)
	}
	*p = out
	return nil
}

// QueueMessage is the body published to the durable queue for each submitted report.
type QueueMessage struct {
	JobID      string     `json:"jobId"`
	Type       ReportType `json:"type"`
	Parameters Parameters `json:"parameters"`
	OwnerID    string     `json:"ownerId"`
}

// ErrInvalidQueueMessage is returned when a delivery body cannot be decoded into a QueueMessage.
var ErrInvalidQueueMessage = errors.New("invalid queue message")

// NewQueueMessage builds the queue message for a persisted report.
func NewQueueMessage(r *Report) QueueMessage {
	return QueueMessage{
		JobID:      r.ID,
		Type:       r.Type,
		Parameters: r.Parameters,
		OwnerID:    r.OwnerID,
	}
}

// Encode serializes the message body.
func (m QueueMessage) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode queue message: %w", err)
	}
	return b, nil
}

// DecodeQueueMessage parses a delivery body. The job id is the only required field.
func DecodeQueueMessage(body []byte) (QueueMessage, error) {
	var m QueueMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return QueueMessage{}, fmt.Errorf("%w: %w", ErrInvalidQueueMessage, err)
	}
	if m.JobID == "" {
		return QueueMessage{}, fmt.Errorf("%w: missing jobId", ErrInvalidQueueMessage)
	}
	return m, nil
}

// Artifact is the JSON document written for a completed report.
type Artifact struct {
	JobID       string     `json:"jobId"`
	Type        ReportType `json:"type"`
	Parameters  Parameters `json:"parameters"`
	GeneratedAt string     `json:"generatedAt"`
	Data        any        `json:"data"`
}
