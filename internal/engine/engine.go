package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"humantask/internal/config"
	"humantask/internal/domain"
	"humantask/internal/engine/lifecycle"
	"humantask/internal/events"
	"humantask/internal/metrics"
	"humantask/internal/repo"
)

// Engine is the task service. Every task mutation goes through it.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	EventLog events.Writer
	Config   *config.Config
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       db,
		Repo:     repo.New(db),
		EventLog: events.Writer{Now: time.Now},
		Config:   cfg,
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) holdUnassigned() bool {
	return e.Config != nil && e.Config.Lifecycle.HoldUnassigned
}

// AddTask stores a new task, with its input document when given, and returns the assigned id.
// Initial status follows the potential owners: a single user reserves the task for that user.
func (e Engine) AddTask(ctx context.Context, task domain.Task, input *domain.ContentData) (int64, error) {
	if task.ID != 0 {
		return 0, ValidationError{Field: "id", Reason: "must be unset, the store assigns ids"}
	}
	if err := validatePeople(task.PeopleAssignments); err != nil {
		return 0, err
	}
	if err := validateContent("document", input); err != nil {
		return 0, err
	}
	actorID := "system"
	if task.CreatedBy != nil && task.CreatedBy.ID != "" {
		actorID = task.CreatedBy.ID
	}

	t := lifecycle.Initial(task, e.holdUnassigned())
	t.CreatedOn = e.timestamp()
	if t.Status != domain.StatusCreated {
		t.ActivationTime = t.CreatedOn
	}
	t.Document, t.Output, t.Fault = domain.EmptyRef(), domain.EmptyRef(), domain.EmptyRef()
	t.FaultName = ""

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if input != nil {
		contentID, err := e.Repo.InsertContent(ctx, tx, *input, t.CreatedOn)
		if err != nil {
			return 0, err
		}
		if err := e.EventLog.AppendContent(ctx, tx, contentID, actorID, events.EventPayload{"size": len(input.Content)}); err != nil {
			return 0, err
		}
		t.Document = domain.ContentRef{ContentID: contentID, Type: input.Type, AccessType: accessOrInline(input.AccessType)}
	}
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return 0, err
	}
	payload := events.EventPayload{"status": string(t.Status), "potential_owners": entityStrings(t.PotentialOwners)}
	if t.ActualOwner != nil {
		payload["actual_owner"] = t.ActualOwner.ID
	}
	if err := e.EventLog.AppendTask(ctx, tx, events.TaskAdded, id, actorID, payload); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.Metrics.TaskAdded()
	if input != nil {
		e.Metrics.ContentStored(len(input.Content))
	}
	e.logger().Info("task added", "task_id", id, "status", t.Status, "potential_owners", len(t.PotentialOwners))
	return id, nil
}

// GetTask returns a task by id.
func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

// GetContent returns a stored payload by id.
func (e Engine) GetContent(ctx context.Context, id int64) (domain.Content, error) {
	return e.Repo.GetContent(ctx, id)
}

// Operate runs one lifecycle operation. The command is validated against the
// committed task before anything is written; output or fault content is stored
// next, then the task is updated under its lock. A failed operation leaves the
// task untouched.
func (e Engine) Operate(ctx context.Context, taskID int64, cmd lifecycle.Command) (task domain.Task, err error) {
	started := e.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		e.Metrics.ObserveOperation(string(cmd.Op), outcome, e.now().Sub(started))
		if err != nil {
			e.logger().Debug("operation rejected", "op", cmd.Op, "task_id", taskID, "user_id", cmd.Actor.UserID, "error", err)
		}
	}()

	if strings.TrimSpace(cmd.Actor.UserID) == "" {
		return domain.Task{}, ValidationError{Field: "user_id", Reason: "required"}
	}
	if cmd.Output != nil {
		if err := validateContent("output", cmd.Output); err != nil {
			return domain.Task{}, err
		}
	}
	if cmd.Fault != nil {
		if err := validateContent("fault", &cmd.Fault.ContentData); err != nil {
			return domain.Task{}, err
		}
	}

	cur, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	cmd.OutputContentID, cmd.FaultContentID = domain.NoContent, domain.NoContent
	if _, err := lifecycle.Apply(cur, cmd); err != nil {
		return cur, err
	}

	if cmd.Output != nil {
		if cmd.OutputContentID, err = e.storeContent(ctx, *cmd.Output, cmd.Actor.UserID); err != nil {
			return cur, err
		}
	}
	if cmd.Fault != nil {
		if cmd.FaultContentID, err = e.storeContent(ctx, cmd.Fault.ContentData, cmd.Actor.UserID); err != nil {
			return cur, err
		}
	}

	var from domain.Status
	next, err := e.Repo.UpdateTask(ctx, taskID, func(tx *sql.Tx, cur domain.Task) (domain.Task, error) {
		from = cur.Status
		next, err := lifecycle.Apply(cur, cmd)
		if err != nil {
			return cur, err
		}
		if from == domain.StatusCreated && next.Status != domain.StatusCreated && next.ActivationTime == "" {
			next.ActivationTime = e.timestamp()
		}
		if err := e.appendOperationEvents(ctx, tx, cur, next, cmd); err != nil {
			return cur, err
		}
		return next, nil
	})
	if err != nil {
		return next, err
	}
	if next.Status.Terminal() && !from.Terminal() {
		e.Metrics.TerminalReached(string(next.Status))
	}
	e.logger().Info("task transition", "op", cmd.Op, "task_id", taskID, "user_id", cmd.Actor.UserID, "from", from, "to", next.Status)
	return next, nil
}

func (e Engine) appendOperationEvents(ctx context.Context, tx *sql.Tx, cur, next domain.Task, cmd lifecycle.Command) error {
	payload := events.EventPayload{"from": string(cur.Status), "to": string(next.Status)}
	if next.ActualOwner != nil {
		payload["actual_owner"] = next.ActualOwner.ID
	}
	if cmd.Target != nil {
		payload["target"] = cmd.Target.String()
	}
	if len(cmd.Entities) > 0 {
		payload["entities"] = entityStrings(cmd.Entities)
	}
	if err := e.EventLog.AppendTask(ctx, tx, events.ForOperation(string(cmd.Op)), next.ID, cmd.Actor.UserID, payload); err != nil {
		return err
	}
	if !next.Status.Terminal() || cur.Status.Terminal() {
		return nil
	}
	terminal := events.EventPayload{"status": string(next.Status)}
	if next.Output.Set() {
		terminal["output_content_id"] = next.Output.ContentID
	}
	if next.Fault.Set() {
		terminal["fault_content_id"] = next.Fault.ContentID
		terminal["fault_name"] = next.FaultName
	}
	if next.ActualOwner != nil {
		terminal["actual_owner"] = next.ActualOwner.ID
	}
	return e.EventLog.AppendTask(ctx, tx, terminalEvent(next.Status), next.ID, cmd.Actor.UserID, terminal)
}

func terminalEvent(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return events.TaskCompleted
	case domain.StatusFailed:
		return events.TaskFailed
	case domain.StatusExited:
		return events.TaskExited
	}
	return events.TaskObsoleted
}

func (e Engine) storeContent(ctx context.Context, data domain.ContentData, actorID string) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertContent(ctx, tx, data, e.timestamp())
	if err != nil {
		return 0, err
	}
	if err := e.EventLog.AppendContent(ctx, tx, id, actorID, events.EventPayload{"size": len(data.Content)}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.Metrics.ContentStored(len(data.Content))
	return id, nil
}

// TasksAssignedAsPotentialOwner lists tasks the actor or its groups may claim or own.
func (e Engine) TasksAssignedAsPotentialOwner(ctx context.Context, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error) {
	return e.summaries(ctx, repo.AsPotentialOwner, actor, locale, statuses)
}

// TasksAssignedAsRecipient lists tasks the actor or its groups receive notifications for.
func (e Engine) TasksAssignedAsRecipient(ctx context.Context, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error) {
	return e.summaries(ctx, repo.AsRecipient, actor, locale, statuses)
}

func (e Engine) summaries(ctx context.Context, as repo.Assignment, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, ValidationError{Field: "user_id", Reason: "required"}
	}
	for _, s := range statuses {
		if !s.Valid() {
			return nil, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
	}
	tasks, err := e.Repo.ListTasksAssignedAs(ctx, as, actor, statuses)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, domain.Summarize(t, locale))
	}
	return out, nil
}

// Events returns logged events after cursor. With terminalOnly set only the
// events a process engine reacts to are returned.
func (e Engine) Events(ctx context.Context, cursor int64, limit int, terminalOnly bool) ([]domain.Event, error) {
	var types []string
	if terminalOnly {
		types = events.Terminal
	}
	return e.Repo.EventsAfter(ctx, limit, cursor, types)
}

// CreateAPIKey issues a key for actorID. The plaintext key is returned once and only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID string, groupIDs []string, name string) (string, domain.APIKey, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", domain.APIKey{}, ValidationError{Field: "actor_id", Reason: "required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "ht_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		GroupIDs:  groupIDs,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := e.EventLog.AppendAPIKey(ctx, tx, key.ID, actorID); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, err
	}
	key.KeyHash = ""
	return plain, key, nil
}

func validatePeople(p domain.PeopleAssignments) error {
	lists := map[string]domain.EntityList{
		"potential_owners":        p.PotentialOwners,
		"business_administrators": p.BusinessAdministrators,
		"recipients":              p.Recipients,
		"excluded_owners":         p.ExcludedOwners,
		"task_stakeholders":       p.TaskStakeholders,
	}
	for field, list := range lists {
		for _, ent := range list {
			if strings.TrimSpace(ent.ID) == "" {
				return ValidationError{Field: field, Reason: "entity id is empty"}
			}
			if ent.Kind != domain.KindUser && ent.Kind != domain.KindGroup {
				return ValidationError{Field: field, Reason: fmt.Sprintf("entity %s has unknown kind", ent.ID)}
			}
		}
	}
	return nil
}

func validateContent(field string, c *domain.ContentData) error {
	if c == nil {
		return nil
	}
	switch c.AccessType {
	case "", domain.AccessInline, domain.AccessReference:
		return nil
	}
	return ValidationError{Field: field, Reason: fmt.Sprintf("unknown access type %q", c.AccessType)}
}

func accessOrInline(a domain.AccessType) domain.AccessType {
	if a == "" {
		return domain.AccessInline
	}
	return a
}

func entityStrings(l domain.EntityList) []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = e.String()
	}
	return out
}
