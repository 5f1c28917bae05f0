package lifecycle

import (
	"fmt"
	"strings"

	"humantask/internal/domain"
	"humantask/internal/engine/auth"
)

// Command is one lifecycle operation requested by an actor.
type Command struct {
	Op       domain.Operation
	Actor    domain.Actor
	Target   *domain.OrganizationalEntity
	Entities domain.EntityList
	Output   *domain.ContentData
	Fault    *domain.FaultData

	// Content ids assigned once Output or Fault has been stored.
	OutputContentID int64
	FaultContentID  int64
}

// StatusError reports that the task is not in a status the operation accepts.
type StatusError struct {
	UserID    string
	Operation domain.Operation
	TaskID    int64
	Current   domain.Status
	Required  []domain.Status
}

func (e StatusError) Error() string {
	names := make([]string, len(e.Required))
	for i, s := range e.Required {
		names[i] = string(s)
	}
	req := strings.Join(names, ", ")
	if len(names) > 1 {
		req = "one of " + req
	}
	return fmt.Sprintf("user %s cannot %s task %d: status is %s, requires %s", e.UserID, e.Operation, e.TaskID, e.Current, req)
}

// RequiredStatus returns the first accepted status.
func (e StatusError) RequiredStatus() domain.Status {
	if len(e.Required) == 0 {
		return ""
	}
	return e.Required[0]
}

// NotApplicableError reports a request that is well formed but makes no sense for the task.
type NotApplicableError struct {
	Operation domain.Operation
	TaskID    int64
	Reason    string
}

func (e NotApplicableError) Error() string {
	return fmt.Sprintf("%s not applicable to task %d: %s", e.Operation, e.TaskID, e.Reason)
}

type effect func(t *domain.Task, cmd Command) error

var statusOrder = []domain.Status{
	domain.StatusCreated, domain.StatusReady, domain.StatusReserved, domain.StatusInProgress,
	domain.StatusSuspended, domain.StatusCompleted, domain.StatusFailed, domain.StatusExited,
	domain.StatusObsolete,
}

var nonTerminal = []domain.Status{
	domain.StatusCreated, domain.StatusReady, domain.StatusReserved, domain.StatusInProgress, domain.StatusSuspended,
}

var transitions = map[domain.Operation]map[domain.Status]effect{
	domain.OpClaim: {
		domain.StatusReady: func(t *domain.Task, cmd Command) error {
			t.Status = domain.StatusReserved
			t.ActualOwner = ownerOf(cmd.Actor)
			return nil
		},
	},
	domain.OpStart: {
		domain.StatusReady: func(t *domain.Task, cmd Command) error {
			t.Status = domain.StatusInProgress
			t.ActualOwner = ownerOf(cmd.Actor)
			return nil
		},
		domain.StatusReserved: to(domain.StatusInProgress),
	},
	domain.OpStop: {
		domain.StatusInProgress: to(domain.StatusReserved),
	},
	domain.OpRelease: {
		domain.StatusReserved:   release,
		domain.StatusInProgress: release,
	},
	domain.OpSuspend: {
		domain.StatusReady:      suspend,
		domain.StatusReserved:   suspend,
		domain.StatusInProgress: suspend,
	},
	domain.OpResume: {
		domain.StatusSuspended: func(t *domain.Task, cmd Command) error {
			prev := domain.StatusReady
			if t.PreviousStatus != nil {
				prev = *t.PreviousStatus
			}
			t.Status = prev
			t.PreviousStatus = nil
			return nil
		},
	},
	domain.OpSkip: {
		domain.StatusReady: func(t *domain.Task, cmd Command) error {
			t.Status = domain.StatusObsolete
			t.ActualOwner = nil
			return nil
		},
		domain.StatusReserved: to(domain.StatusObsolete),
	},
	domain.OpDelegate: {
		domain.StatusReady:    delegate,
		domain.StatusReserved: delegate,
	},
	domain.OpForward: {
		domain.StatusReady:    forward,
		domain.StatusReserved: forward,
	},
	domain.OpComplete: {
		domain.StatusInProgress: func(t *domain.Task, cmd Command) error {
			t.Status = domain.StatusCompleted
			if cmd.Output != nil {
				t.Output = domain.ContentRef{ContentID: cmd.OutputContentID, Type: cmd.Output.Type, AccessType: accessOf(cmd.Output.AccessType)}
			}
			return nil
		},
	},
	domain.OpFail: {
		domain.StatusInProgress: func(t *domain.Task, cmd Command) error {
			t.Status = domain.StatusFailed
			if cmd.Fault != nil {
				t.Fault = domain.ContentRef{ContentID: cmd.FaultContentID, Type: cmd.Fault.Type, AccessType: accessOf(cmd.Fault.AccessType)}
				t.FaultName = cmd.Fault.FaultName
			}
			return nil
		},
	},
	domain.OpExit: every(nonTerminal, func(t *domain.Task, cmd Command) error {
		t.Status = domain.StatusExited
		t.ActualOwner = nil
		t.PreviousStatus = nil
		return nil
	}),
	domain.OpNominate: {
		domain.StatusCreated: func(t *domain.Task, cmd Command) error {
			if len(cmd.Entities) == 0 {
				return NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: "no entities to nominate"}
			}
			var owners domain.EntityList
			for _, e := range cmd.Entities {
				owners = owners.Add(e)
			}
			t.PotentialOwners = owners
			assign(t, false)
			return nil
		},
	},
	domain.OpActivate: {
		domain.StatusCreated: func(t *domain.Task, cmd Command) error {
			assign(t, false)
			return nil
		},
	},
	domain.OpRegister: every(statusOrder, func(t *domain.Task, cmd Command) error {
		t.Recipients = t.Recipients.Add(cmd.Actor.Entity())
		return nil
	}),
	domain.OpRemove: every(statusOrder, func(t *domain.Task, cmd Command) error {
		me := cmd.Actor.Entity()
		if !t.Recipients.Contains(me) {
			return NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: fmt.Sprintf("user %s is not a recipient", cmd.Actor.UserID)}
		}
		t.Recipients = t.Recipients.Remove(me)
		return nil
	}),
}

// statusFirst operations report a wrong status before checking the actor.
var statusFirst = map[domain.Operation]bool{
	domain.OpNominate: true,
	domain.OpActivate: true,
}

// Apply validates cmd against t and returns the resulting task. t is not modified.
func Apply(t domain.Task, cmd Command) (domain.Task, error) {
	rows, ok := transitions[cmd.Op]
	if !ok {
		return t, NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: "unknown operation"}
	}
	fx, allowed := rows[t.Status]
	if statusFirst[cmd.Op] && !allowed {
		return t, statusError(t, cmd, rows)
	}
	if cmd.Op == domain.OpSkip && !t.Skipable {
		return t, NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: "task is not skipable"}
	}
	if err := auth.Check(t, cmd.Actor, cmd.Op); err != nil {
		return t, err
	}
	if !allowed {
		if cmd.Op == domain.OpClaim {
			return t, auth.Denied(t, cmd.Actor, cmd.Op, fmt.Sprintf("task is no longer claimable (status %s)", t.Status))
		}
		return t, statusError(t, cmd, rows)
	}
	next := t.Clone()
	if err := fx(&next, cmd); err != nil {
		return t, err
	}
	return next, nil
}

// Initial sets the status and owner of a freshly added task.
// With hold set, a task without potential owners stays Created.
func Initial(t domain.Task, hold bool) domain.Task {
	next := t.Clone()
	next.Status = domain.StatusCreated
	next.ActualOwner = nil
	next.PreviousStatus = nil
	for _, l := range []*domain.EntityList{
		&next.PotentialOwners, &next.BusinessAdministrators, &next.Recipients,
		&next.ExcludedOwners, &next.TaskStakeholders,
	} {
		*l = l.Compact()
	}
	assign(&next, hold)
	return next
}

func assign(t *domain.Task, hold bool) {
	switch {
	case len(t.PotentialOwners) == 1 && t.PotentialOwners[0].IsUser():
		owner := t.PotentialOwners[0]
		t.Status = domain.StatusReserved
		t.ActualOwner = &owner
	case len(t.PotentialOwners) == 0 && hold:
		t.Status = domain.StatusCreated
	default:
		t.Status = domain.StatusReady
		t.ActualOwner = nil
	}
}

// Allowed reports the statuses op accepts.
func Allowed(op domain.Operation) []domain.Status {
	rows := transitions[op]
	var out []domain.Status
	for _, s := range statusOrder {
		if _, ok := rows[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func statusError(t domain.Task, cmd Command, rows map[domain.Status]effect) error {
	return StatusError{
		UserID:    cmd.Actor.UserID,
		Operation: cmd.Op,
		TaskID:    t.ID,
		Current:   t.Status,
		Required:  Allowed(cmd.Op),
	}
}

func to(s domain.Status) effect {
	return func(t *domain.Task, _ Command) error {
		t.Status = s
		return nil
	}
}

func every(statuses []domain.Status, fx effect) map[domain.Status]effect {
	rows := make(map[domain.Status]effect, len(statuses))
	for _, s := range statuses {
		rows[s] = fx
	}
	return rows
}

func release(t *domain.Task, _ Command) error {
	t.Status = domain.StatusReady
	t.ActualOwner = nil
	return nil
}

func suspend(t *domain.Task, _ Command) error {
	prev := t.Status
	t.PreviousStatus = &prev
	t.Status = domain.StatusSuspended
	return nil
}

func delegate(t *domain.Task, cmd Command) error {
	if cmd.Target == nil || cmd.Target.ID == "" {
		return NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: "target required"}
	}
	if !cmd.Target.IsUser() {
		return NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: fmt.Sprintf("%s cannot own a task", cmd.Target)}
	}
	target := *cmd.Target
	t.PotentialOwners = t.PotentialOwners.Add(target)
	t.ActualOwner = &target
	return nil
}

func forward(t *domain.Task, cmd Command) error {
	if cmd.Target == nil || cmd.Target.ID == "" {
		return NotApplicableError{Operation: cmd.Op, TaskID: t.ID, Reason: "target required"}
	}
	t.PotentialOwners = t.PotentialOwners.Remove(cmd.Actor.Entity()).Add(*cmd.Target)
	t.ActualOwner = nil
	t.Status = domain.StatusReady
	return nil
}

func ownerOf(a domain.Actor) *domain.OrganizationalEntity {
	e := a.Entity()
	return &e
}

func accessOf(a domain.AccessType) domain.AccessType {
	if a == "" {
		return domain.AccessInline
	}
	return a
}
