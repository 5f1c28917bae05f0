package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"humantask/internal/domain"
)

type Repo struct {
	DB    *sql.DB
	locks *keyedMutex
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the task changed underneath an update.
	ErrConflict = errors.New("concurrent modification")
)

// New returns a repo with its own per-task lock table.
func New(db *sql.DB) Repo {
	return Repo{DB: db, locks: newKeyedMutex()}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	rolePotentialOwner = "potential_owner"
	roleBusinessAdmin  = "business_administrator"
	roleRecipient      = "recipient"
	roleExcludedOwner  = "excluded_owner"
	roleStakeholder    = "task_stakeholder"

	textName        = "name"
	textSubject     = "subject"
	textDescription = "description"
)

const taskColumns = `id,version,priority,status,previous_status,actual_owner,created_by,skipable,
document_content_id,document_type,document_access_type,
output_content_id,output_type,output_access_type,
fault_content_id,fault_type,fault_access_type,fault_name,
created_on,activation_time`

// InsertTask stores a new task and returns its id. Ids are never reused.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(version,priority,status,previous_status,actual_owner,created_by,skipable,
document_content_id,document_type,document_access_type,
output_content_id,output_type,output_access_type,
fault_content_id,fault_type,fault_access_type,fault_name,
created_on,activation_time,updated_at) VALUES (1,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Priority, string(t.Status), statusPtr(t.PreviousStatus), entityID(t.ActualOwner), entityID(t.CreatedBy), t.Skipable,
		t.Document.ContentID, nullable(t.Document.Type), nullable(string(t.Document.AccessType)),
		t.Output.ContentID, nullable(t.Output.Type), nullable(string(t.Output.AccessType)),
		t.Fault.ContentID, nullable(t.Fault.Type), nullable(string(t.Fault.AccessType)), nullable(t.FaultName),
		t.CreatedOn, nullable(t.ActivationTime), now)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := insertTexts(ctx, tx, id, textName, t.Names); err != nil {
		return 0, err
	}
	if err := insertTexts(ctx, tx, id, textSubject, t.Subjects); err != nil {
		return 0, err
	}
	if err := insertTexts(ctx, tx, id, textDescription, t.Descriptions); err != nil {
		return 0, err
	}
	if err := writePeople(ctx, tx, id, t.PeopleAssignments); err != nil {
		return 0, err
	}
	return id, nil
}

// GetTask returns the committed state of a task.
func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

// UpdateTask runs fn on the current state of task id and stores its result.
// Calls for the same id are serialized; fn runs inside the write transaction and
// must not touch the database other than through tx. If fn fails nothing is written.
func (r Repo) UpdateTask(ctx context.Context, id int64, fn func(tx *sql.Tx, t domain.Task) (domain.Task, error)) (domain.Task, error) {
	unlock := r.lockTable().lock(id)
	defer unlock()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	cur, err := getTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	next, err := fn(tx, cur)
	if err != nil {
		return cur, err
	}
	next.ID = id
	next.Version = cur.Version
	if err := updateTask(ctx, tx, next); err != nil {
		return cur, err
	}
	if err := tx.Commit(); err != nil {
		return cur, err
	}
	next.Version = cur.Version + 1
	return next, nil
}

func (r Repo) lockTable() *keyedMutex {
	if r.locks != nil {
		return r.locks
	}
	return defaultLocks
}

func updateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET version=version+1,priority=?,status=?,previous_status=?,actual_owner=?,
output_content_id=?,output_type=?,output_access_type=?,
fault_content_id=?,fault_type=?,fault_access_type=?,fault_name=?,
activation_time=?,updated_at=? WHERE id=? AND version=?`,
		t.Priority, string(t.Status), statusPtr(t.PreviousStatus), entityID(t.ActualOwner),
		t.Output.ContentID, nullable(t.Output.Type), nullable(string(t.Output.AccessType)),
		t.Fault.ContentID, nullable(t.Fault.Type), nullable(string(t.Fault.AccessType)), nullable(t.FaultName),
		nullable(t.ActivationTime), now, t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_people WHERE task_id=?`, t.ID); err != nil {
		return err
	}
	return writePeople(ctx, tx, t.ID, t.PeopleAssignments)
}

func getTask(ctx context.Context, q querier, id int64) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if err := loadTexts(ctx, q, &t); err != nil {
		return domain.Task{}, err
	}
	if err := loadPeople(ctx, q, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var prev, owner, createdBy sql.NullString
	var docType, docAccess, outType, outAccess, faultType, faultAccess, faultName sql.NullString
	var activation sql.NullString
	err := row.Scan(&t.ID, &t.Version, &t.Priority, &status, &prev, &owner, &createdBy, &t.Skipable,
		&t.Document.ContentID, &docType, &docAccess,
		&t.Output.ContentID, &outType, &outAccess,
		&t.Fault.ContentID, &faultType, &faultAccess, &faultName,
		&t.CreatedOn, &activation)
	if err != nil {
		return t, err
	}
	t.Status = domain.Status(status)
	if prev.Valid {
		s := domain.Status(prev.String)
		t.PreviousStatus = &s
	}
	if owner.Valid {
		e := domain.User(owner.String)
		t.ActualOwner = &e
	}
	if createdBy.Valid {
		e := domain.User(createdBy.String)
		t.CreatedBy = &e
	}
	t.Document.Type, t.Document.AccessType = docType.String, domain.AccessType(docAccess.String)
	t.Output.Type, t.Output.AccessType = outType.String, domain.AccessType(outAccess.String)
	t.Fault.Type, t.Fault.AccessType = faultType.String, domain.AccessType(faultAccess.String)
	t.FaultName = faultName.String
	t.ActivationTime = activation.String
	return t, nil
}

func insertTexts(ctx context.Context, tx *sql.Tx, taskID int64, kind string, texts []domain.I18NText) error {
	for i, txt := range texts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_texts(task_id,kind,position,language,text) VALUES (?,?,?,?,?)`,
			taskID, kind, i, txt.Language, txt.Text); err != nil {
			return fmt.Errorf("insert task %s: %w", kind, err)
		}
	}
	return nil
}

func loadTexts(ctx context.Context, q querier, t *domain.Task) error {
	rows, err := q.QueryContext(ctx, `SELECT kind,language,text FROM task_texts WHERE task_id=? ORDER BY kind,position`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var txt domain.I18NText
		if err := rows.Scan(&kind, &txt.Language, &txt.Text); err != nil {
			return err
		}
		switch kind {
		case textName:
			t.Names = append(t.Names, txt)
		case textSubject:
			t.Subjects = append(t.Subjects, txt)
		case textDescription:
			t.Descriptions = append(t.Descriptions, txt)
		}
	}
	return rows.Err()
}

func writePeople(ctx context.Context, tx *sql.Tx, taskID int64, p domain.PeopleAssignments) error {
	groups := []struct {
		role string
		list domain.EntityList
	}{
		{rolePotentialOwner, p.PotentialOwners},
		{roleBusinessAdmin, p.BusinessAdministrators},
		{roleRecipient, p.Recipients},
		{roleExcludedOwner, p.ExcludedOwners},
		{roleStakeholder, p.TaskStakeholders},
	}
	for _, g := range groups {
		for i, e := range g.list {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_people(task_id,role,position,entity_kind,entity_id) VALUES (?,?,?,?,?)`,
				taskID, g.role, i, string(e.Kind), e.ID); err != nil {
				return fmt.Errorf("insert %s: %w", g.role, err)
			}
		}
	}
	return nil
}

func loadPeople(ctx context.Context, q querier, t *domain.Task) error {
	rows, err := q.QueryContext(ctx, `SELECT role,entity_kind,entity_id FROM task_people WHERE task_id=? ORDER BY role,position`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var role, kind, id string
		if err := rows.Scan(&role, &kind, &id); err != nil {
			return err
		}
		e := domain.OrganizationalEntity{Kind: domain.EntityKind(kind), ID: id}
		switch role {
		case rolePotentialOwner:
			t.PotentialOwners = append(t.PotentialOwners, e)
		case roleBusinessAdmin:
			t.BusinessAdministrators = append(t.BusinessAdministrators, e)
		case roleRecipient:
			t.Recipients = append(t.Recipients, e)
		case roleExcludedOwner:
			t.ExcludedOwners = append(t.ExcludedOwners, e)
		case roleStakeholder:
			t.TaskStakeholders = append(t.TaskStakeholders, e)
		}
	}
	return rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func statusPtr(s *domain.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func entityID(e *domain.OrganizationalEntity) any {
	if e == nil {
		return nil
	}
	return e.ID
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
