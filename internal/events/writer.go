package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event types appended by the task service.
const (
	TaskAdded     = "task.added"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
	TaskExited    = "task.exited"
	TaskObsoleted = "task.obsoleted"
	ContentStored = "content.stored"
	APIKeyCreated = "apikey.created"
	taskOpPrefix  = "task."
	entityTask    = "task"
	entityContent = "content"
	entityAPIKey  = "api_key"
)

// Terminal lists the event types a process engine listens to.
var Terminal = []string{TaskCompleted, TaskFailed, TaskExited, TaskObsoleted}

// ForOperation returns the event type recorded for a lifecycle operation.
func ForOperation(op string) string {
	return taskOpPrefix + op
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// AppendTask records an event about a task inside tx.
func (w Writer) AppendTask(ctx context.Context, tx *sql.Tx, evtType string, taskID int64, actorID string, payload EventPayload) error {
	return w.Append(ctx, tx, evtType, entityTask, strconv.FormatInt(taskID, 10), actorID, payload)
}

// AppendContent records a stored content payload inside tx.
func (w Writer) AppendContent(ctx context.Context, tx *sql.Tx, contentID int64, actorID string, payload EventPayload) error {
	return w.Append(ctx, tx, ContentStored, entityContent, strconv.FormatInt(contentID, 10), actorID, payload)
}

// AppendAPIKey records an issued api key inside tx.
func (w Writer) AppendAPIKey(ctx context.Context, tx *sql.Tx, keyID, actorID string) error {
	return w.Append(ctx, tx, APIKeyCreated, entityAPIKey, keyID, actorID, nil)
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
