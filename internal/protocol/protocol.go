// Package protocol carries task service calls over a stream connection.
// Frames are JSON objects, one per request or response, correlated by id.
package protocol

import (
	"context"
	"errors"
	"fmt"

	"humantask/internal/domain"
	"humantask/internal/engine"
	"humantask/internal/engine/auth"
	"humantask/internal/engine/lifecycle"
)

// Ops that are not lifecycle operations.
const (
	OpAddTask                  = "addTask"
	OpGetTask                  = "getTask"
	OpGetContent               = "getContent"
	OpAssignedAsPotentialOwner = "getTasksAssignedAsPotentialOwner"
	OpAssignedAsRecipient      = "getTasksAssignedAsRecipient"
	OpEvents                   = "events"
)

// Request is one call from a client session.
type Request struct {
	ID        string                       `json:"id"`
	Op        string                       `json:"op"`
	TaskID    int64                        `json:"task_id,omitempty"`
	ContentID int64                        `json:"content_id,omitempty"`
	UserID    string                       `json:"user_id,omitempty"`
	GroupIDs  []string                     `json:"group_ids,omitempty"`
	Target    *domain.OrganizationalEntity `json:"target,omitempty"`
	Entities  domain.EntityList            `json:"entities,omitempty"`
	Task      *domain.Task                 `json:"task,omitempty"`
	Content   *domain.ContentData          `json:"content,omitempty"`
	Fault     *domain.FaultData            `json:"fault,omitempty"`
	Locale    string                       `json:"locale,omitempty"`
	Statuses  []domain.Status              `json:"statuses,omitempty"`
	Cursor    int64                        `json:"cursor,omitempty"`
	Limit     int                          `json:"limit,omitempty"`
	Terminal  bool                         `json:"terminal,omitempty"`
}

// Response answers the request with the same id.
type Response struct {
	ID        string               `json:"id"`
	Op        string               `json:"op"`
	TaskID    int64                `json:"task_id,omitempty"`
	Task      *domain.Task         `json:"task,omitempty"`
	Content   *domain.Content      `json:"content,omitempty"`
	Summaries []domain.TaskSummary `json:"summaries,omitempty"`
	Events    []domain.Event       `json:"events,omitempty"`
	Error     *ErrorPayload        `json:"error,omitempty"`
}

type ErrorPayload struct {
	Kind           engine.ErrorKind `json:"kind"`
	Message        string           `json:"message"`
	UserID         string           `json:"user_id,omitempty"`
	RequiredStatus []domain.Status  `json:"required_status,omitempty"`
}

// Service is the set of calls a session can make. The engine implements it
// locally and Client implements it over a connection.
type Service interface {
	AddTask(ctx context.Context, task domain.Task, input *domain.ContentData) (int64, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	GetContent(ctx context.Context, id int64) (domain.Content, error)
	Operate(ctx context.Context, taskID int64, cmd lifecycle.Command) (domain.Task, error)
	TasksAssignedAsPotentialOwner(ctx context.Context, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error)
	TasksAssignedAsRecipient(ctx context.Context, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error)
	Events(ctx context.Context, cursor int64, limit int, terminalOnly bool) ([]domain.Event, error)
}

var _ Service = engine.Engine{}

// Sentinels matched by RemoteError through errors.Is.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrStatusPrecondition = errors.New("status precondition failed")
	ErrNotFound           = errors.New("not found")
	ErrNotApplicable      = errors.New("operation not applicable")
	ErrBadRequest         = errors.New("bad request")
	ErrTimeout            = errors.New("request timed out")
	ErrClosed             = errors.New("connection closed")
)

// RemoteError is a failure reported by the server side of a session.
type RemoteError struct {
	Kind           engine.ErrorKind
	Message        string
	UserID         string
	RequiredStatus []domain.Status
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Kind == engine.KindPermissionDenied
	case ErrStatusPrecondition:
		return e.Kind == engine.KindStatusPrecondition
	case ErrNotFound:
		return e.Kind == engine.KindNotFound
	case ErrNotApplicable:
		return e.Kind == engine.KindNotApplicable
	case ErrBadRequest:
		return e.Kind == engine.KindBadRequest
	case ErrTimeout:
		return e.Kind == engine.KindTimeout
	}
	return false
}

func errorPayload(err error) *ErrorPayload {
	p := &ErrorPayload{Kind: engine.KindOf(err), Message: err.Error()}
	var pd auth.PermissionDeniedError
	var se lifecycle.StatusError
	switch {
	case errors.As(err, &pd):
		p.UserID = pd.UserID
	case errors.As(err, &se):
		p.UserID = se.UserID
		p.RequiredStatus = se.Required
	}
	if errors.Is(err, context.DeadlineExceeded) {
		p.Kind = engine.KindTimeout
	}
	return p
}

func (p *ErrorPayload) err() error {
	if p == nil {
		return nil
	}
	return &RemoteError{Kind: p.Kind, Message: p.Message, UserID: p.UserID, RequiredStatus: p.RequiredStatus}
}

// command turns a lifecycle request into an engine command.
func (r Request) command() (lifecycle.Command, error) {
	op, ok := domain.ParseOperation(r.Op)
	if !ok {
		return lifecycle.Command{}, unknownOp(r.Op)
	}
	cmd := lifecycle.Command{
		Op:              op,
		Actor:           domain.Actor{UserID: r.UserID, GroupIDs: r.GroupIDs},
		Target:          r.Target,
		Entities:        r.Entities,
		OutputContentID: domain.NoContent,
		FaultContentID:  domain.NoContent,
	}
	switch op {
	case domain.OpComplete:
		cmd.Output = r.Content
	case domain.OpFail:
		cmd.Fault = r.Fault
	}
	return cmd, nil
}

// requestFor is the inverse of command.
func requestFor(taskID int64, cmd lifecycle.Command) Request {
	return Request{
		Op:       string(cmd.Op),
		TaskID:   taskID,
		UserID:   cmd.Actor.UserID,
		GroupIDs: cmd.Actor.GroupIDs,
		Target:   cmd.Target,
		Entities: cmd.Entities,
		Content:  cmd.Output,
		Fault:    cmd.Fault,
	}
}

func unknownOp(op string) error {
	return engine.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown op %q", op)}
}
