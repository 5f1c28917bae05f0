package auth

import (
	"fmt"

	"humantask/internal/domain"
)

// PermissionDeniedError indicates the actor holds no role allowing the operation.
type PermissionDeniedError struct {
	UserID    string
	Operation domain.Operation
	TaskID    int64
	Reason    string
}

func (e PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("user %s is not allowed to %s task %d", e.UserID, e.Operation, e.TaskID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Denied builds a PermissionDeniedError for actor.
func Denied(t domain.Task, actor domain.Actor, op domain.Operation, reason string) error {
	return PermissionDeniedError{UserID: actor.UserID, Operation: op, TaskID: t.ID, Reason: reason}
}

// IsAdmin reports whether the actor is a business administrator of t.
func IsAdmin(t domain.Task, actor domain.Actor) bool {
	return actor.In(t.BusinessAdministrators)
}

// IsOwner reports whether the actor is the actual owner of t.
func IsOwner(t domain.Task, actor domain.Actor) bool {
	return t.ActualOwner != nil && actor.UserID != "" && t.ActualOwner.ID == actor.UserID
}

// IsPotentialOwner reports whether the actor may claim t. Excluded owners never qualify.
func IsPotentialOwner(t domain.Task, actor domain.Actor) bool {
	if actor.In(t.ExcludedOwners) {
		return false
	}
	return actor.In(t.PotentialOwners)
}

// Check decides whether actor may attempt op on t in its current state.
// It does not check status preconditions.
func Check(t domain.Task, actor domain.Actor, op domain.Operation) error {
	if actor.UserID == "" {
		return Denied(t, actor, op, "user id required")
	}
	admin := IsAdmin(t, actor)
	switch op {
	case domain.OpExit, domain.OpNominate, domain.OpActivate:
		if admin {
			return nil
		}
		return Denied(t, actor, op, "business administrator required")
	case domain.OpRegister, domain.OpRemove:
		return nil
	case domain.OpStop, domain.OpComplete, domain.OpFail, domain.OpRelease:
		if admin || IsOwner(t, actor) {
			return nil
		}
		return Denied(t, actor, op, "actual owner required")
	case domain.OpClaim:
		if admin || IsPotentialOwner(t, actor) {
			return nil
		}
		return Denied(t, actor, op, "potential owner required")
	case domain.OpStart, domain.OpSuspend, domain.OpResume, domain.OpSkip, domain.OpDelegate, domain.OpForward:
		if admin {
			return nil
		}
		if t.ActualOwner != nil {
			if IsOwner(t, actor) {
				return nil
			}
			return Denied(t, actor, op, "actual owner required")
		}
		if IsPotentialOwner(t, actor) {
			return nil
		}
		return Denied(t, actor, op, "potential owner required")
	}
	return Denied(t, actor, op, "unknown operation")
}
