package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
)

// Direction of a logged activity.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// LoggedActivity is one row of the activity log.
type LoggedActivity struct {
	Seq            int64            `json:"seq"`
	Direction      string           `json:"direction"`
	ConversationID string           `json:"conversationId"`
	Activity       *domain.Activity `json:"activity"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// ActivityLog records inbound and outbound activities.
type ActivityLog struct {
	db *DB
}

// NewActivityLog creates an activity log on db.
func NewActivityLog(db *DB) *ActivityLog {
	return &ActivityLog{db: db}
}

// Record appends an activity to the log.
func (l *ActivityLog) Record(ctx context.Context, direction string, a *domain.Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}
	_, err = l.db.sql.ExecContext(ctx,
		`INSERT INTO activities (activity_id, direction, type, conversation_id, from_id, text, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, direction, string(a.Type), a.Conversation.ID, a.From.ID, a.Text, string(payload),
		time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// List returns up to limit of the most recent activities of a
// conversation, oldest first.
func (l *ActivityLog) List(ctx context.Context, conversationID string, limit int) ([]LoggedActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT seq, direction, conversation_id, payload, created_at FROM (
			SELECT * FROM activities WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	var out []LoggedActivity
	for rows.Next() {
		var (
			row       LoggedActivity
			payload   string
			createdAt string
		)
		if err := rows.Scan(&row.Seq, &row.Direction, &row.ConversationID, &payload, &createdAt); err != nil {
			return nil, err
		}
		row.Activity = &domain.Activity{}
		if err := json.Unmarshal([]byte(payload), row.Activity); err != nil {
			return nil, fmt.Errorf("decoding activity %d: %w", row.Seq, err)
		}
		row.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Subscribe records every inbound activity and every delivered outbound
// activity published on bus.
func (l *ActivityLog) Subscribe(bus *events.Bus) {
	bus.OnActivity("activity-log", func(ctx context.Context, e events.ActivityEvent) error {
		return l.Record(ctx, DirectionIn, e.Activity)
	})
	bus.OnActivitySent("activity-log", func(ctx context.Context, e events.ActivitySentEvent) error {
		a := e.Activity
		if a.Conversation.ID == "" {
			a = a.Clone()
			a.Conversation = e.Ref.Conversation
		}
		return l.Record(ctx, DirectionOut, a)
	})
}
