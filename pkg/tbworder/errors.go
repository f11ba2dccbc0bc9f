package tbworder

import "errors"

// Error kinds, as sentinel values. Wrap with fmt.Errorf("%w: ...", ErrX) at
// call sites and recover the kind with errors.Is, mirroring the teacher's
// pkg/services/errors.go sentinel set.
var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrContractViolation  = errors.New("contract violation")
	ErrBudgetExhausted    = errors.New("budget exhausted")
	ErrToolFailure        = errors.New("tool failure")
	ErrModelFailure       = errors.New("model failure")
	ErrCancelled          = errors.New("cancelled")
	ErrTimeout            = errors.New("timeout")
	ErrInternal           = errors.New("internal error")
)
