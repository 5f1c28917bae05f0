package lifecycle

import "humantask/internal/domain"

func Claim(a domain.Actor) Command    { return Command{Op: domain.OpClaim, Actor: a} }
func Start(a domain.Actor) Command    { return Command{Op: domain.OpStart, Actor: a} }
func Stop(a domain.Actor) Command     { return Command{Op: domain.OpStop, Actor: a} }
func Release(a domain.Actor) Command  { return Command{Op: domain.OpRelease, Actor: a} }
func Suspend(a domain.Actor) Command  { return Command{Op: domain.OpSuspend, Actor: a} }
func Resume(a domain.Actor) Command   { return Command{Op: domain.OpResume, Actor: a} }
func Skip(a domain.Actor) Command     { return Command{Op: domain.OpSkip, Actor: a} }
func Exit(a domain.Actor) Command     { return Command{Op: domain.OpExit, Actor: a} }
func Activate(a domain.Actor) Command { return Command{Op: domain.OpActivate, Actor: a} }
func Register(a domain.Actor) Command { return Command{Op: domain.OpRegister, Actor: a} }
func Remove(a domain.Actor) Command   { return Command{Op: domain.OpRemove, Actor: a} }

func Delegate(a domain.Actor, target domain.OrganizationalEntity) Command {
	return Command{Op: domain.OpDelegate, Actor: a, Target: &target}
}

func Forward(a domain.Actor, target domain.OrganizationalEntity) Command {
	return Command{Op: domain.OpForward, Actor: a, Target: &target}
}

func Nominate(a domain.Actor, entities ...domain.OrganizationalEntity) Command {
	return Command{Op: domain.OpNominate, Actor: a, Entities: entities}
}

// Complete finishes the task. output may be nil.
func Complete(a domain.Actor, output *domain.ContentData) Command {
	return Command{Op: domain.OpComplete, Actor: a, Output: output, OutputContentID: domain.NoContent, FaultContentID: domain.NoContent}
}

// Fail marks the task failed. fault may be nil.
func Fail(a domain.Actor, fault *domain.FaultData) Command {
	return Command{Op: domain.OpFail, Actor: a, Fault: fault, OutputContentID: domain.NoContent, FaultContentID: domain.NoContent}
}
