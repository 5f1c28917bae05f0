package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"humantask/internal/domain"
)

// EventsAfter returns up to limit events with id > cursor, oldest first,
// optionally restricted to the given types.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, types []string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if len(types) > 0 {
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", placeholders(len(types))))
		for _, t := range types {
			args = append(args, t)
		}
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEvents returns the newest n events, newest first.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event id, or 0.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}
