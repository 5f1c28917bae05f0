package domain

// Operation names a lifecycle operation on a task.
type Operation string

const (
	OpClaim    Operation = "claim"
	OpStart    Operation = "start"
	OpStop     Operation = "stop"
	OpRelease  Operation = "release"
	OpSuspend  Operation = "suspend"
	OpResume   Operation = "resume"
	OpSkip     Operation = "skip"
	OpDelegate Operation = "delegate"
	OpForward  Operation = "forward"
	OpComplete Operation = "complete"
	OpFail     Operation = "fail"
	OpExit     Operation = "exit"
	OpNominate Operation = "nominate"
	OpActivate Operation = "activate"
	OpRegister Operation = "register"
	OpRemove   Operation = "remove"
)

// Operations lists every lifecycle operation.
var Operations = []Operation{
	OpClaim, OpStart, OpStop, OpRelease, OpSuspend, OpResume, OpSkip, OpDelegate,
	OpForward, OpComplete, OpFail, OpExit, OpNominate, OpActivate, OpRegister, OpRemove,
}

// ParseOperation returns the operation named s.
func ParseOperation(s string) (Operation, bool) {
	for _, op := range Operations {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}
