package repo

import (
	"context"
	"fmt"
	"strings"

	"humantask/internal/domain"
)

// Assignment selects which people list a query matches the actor against.
type Assignment int

const (
	AsPotentialOwner Assignment = iota
	AsRecipient
)

func (a Assignment) role() string {
	if a == AsRecipient {
		return roleRecipient
	}
	return rolePotentialOwner
}

// ListTasksAssignedAs returns tasks where the actor or one of its groups holds
// the given assignment, restricted to statuses. Excluded owners are left out of
// potential-owner results.
func (r Repo) ListTasksAssignedAs(ctx context.Context, as Assignment, actor domain.Actor, statuses []domain.Status) ([]domain.Task, error) {
	if len(statuses) == 0 {
		statuses = domain.ActiveStatuses
	}
	match := []string{"(p.entity_kind='user' AND p.entity_id=?)"}
	args := []any{as.role(), actor.UserID}
	if len(actor.GroupIDs) > 0 {
		match = append(match, fmt.Sprintf("(p.entity_kind='group' AND p.entity_id IN (%s))", placeholders(len(actor.GroupIDs))))
		for _, g := range actor.GroupIDs {
			args = append(args, g)
		}
	}
	clauses := []string{"p.role=?", "(" + strings.Join(match, " OR ") + ")"}
	clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", placeholders(len(statuses))))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	if as == AsPotentialOwner {
		excluded := []string{"(x.entity_kind='user' AND x.entity_id=?)"}
		args = append(args, roleExcludedOwner, actor.UserID)
		if len(actor.GroupIDs) > 0 {
			excluded = append(excluded, fmt.Sprintf("(x.entity_kind='group' AND x.entity_id IN (%s))", placeholders(len(actor.GroupIDs))))
			for _, g := range actor.GroupIDs {
				args = append(args, g)
			}
		}
		clauses = append(clauses, `NOT EXISTS (SELECT 1 FROM task_people x WHERE x.task_id=t.id AND x.role=? AND (`+strings.Join(excluded, " OR ")+`))`)
	}
	query := `SELECT DISTINCT t.id FROM tasks t JOIN task_people p ON p.task_id=t.id WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY t.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
