package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventLog is an ambient operational log row, independent of the
// persisted-state tables — used to record unit lifecycle events (unit
// started, unit toggled web search, unit timed out) for operational
// debugging without touching the citation-grounded schema.
type EventLog struct {
	ID        uuid.UUID `json:"id"`
	TaskID    int64     `json:"task_id"`
	Type      string    `json:"type"`
	Platform  string    `json:"platform,omitempty"`
	Message   string    `json:"message,omitempty"`
	Payload   JSONB     `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveEventLog inserts a new event_logs row.
func (c *Client) SaveEventLog(ctx context.Context, e *EventLog) error {
	if e == nil {
		return nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
        INSERT INTO event_logs (
            id, task_id, type, platform, message, payload, timestamp, seq, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (task_id, type, seq) WHERE seq IS NOT NULL DO NOTHING
    `, e.ID, e.TaskID, e.Type, nullIfEmpty(e.Platform), e.Message, e.Payload, e.Timestamp, e.Seq, e.CreatedAt)
	return err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
