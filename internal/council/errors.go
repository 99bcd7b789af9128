package council

import "github.com/council-run/council/internal/core"

// Council-specific error codes, layered onto the shared DomainError taxonomy
// in internal/core/errors.go rather than introducing a parallel error type.
const (
	CodeInvalidTarget  = "INVALID_TARGET"
	CodeWorktreeFailed = "WORKTREE_FAILED"
	CodeCritiqueFailed = "CRITIQUE_FAILED"
	CodeChairRefusal   = "CHAIR_REFUSAL"
	CodePatchInvalid   = "PATCH_INVALID"
	CodeUnsafePath     = "UNSAFE_PATH"
	CodeApplyFailed    = "APPLY_FAILED"
	CodeRegression     = "REGRESSION"
	CodeCancelled      = "CANCELLED"
	CodeVerifyFailed   = "VERIFY_FAILED"
)

// ErrInvalidTarget reports an unsafe or missing target path.
func ErrInvalidTarget(message string) *core.DomainError {
	return core.ErrValidation(CodeInvalidTarget, message)
}

// ErrWorktreeFailed reports a failed worktree create/remove operation.
func ErrWorktreeFailed(message string) *core.DomainError {
	return core.ErrExecution(CodeWorktreeFailed, message)
}

// ErrCritiqueFailed reports that both critics failed to produce output.
func ErrCritiqueFailed(message string) *core.DomainError {
	return core.ErrExecution(CodeCritiqueFailed, message)
}

// ErrChairRefusal reports a chair <error> block in lieu of a plan.
func ErrChairRefusal(message string) *core.DomainError {
	return &core.DomainError{
		Category:  core.ErrCatConsensus,
		Code:      CodeChairRefusal,
		Message:   message,
		Retryable: false,
	}
}

// ErrPatchInvalid reports a patch that failed structural validation.
func ErrPatchInvalid(reason string) *core.DomainError {
	return core.ErrValidation(CodePatchInvalid, reason)
}

// ErrUnsafePath reports a patch header or target referencing an unsafe path.
func ErrUnsafePath(reason string) *core.DomainError {
	return core.ErrValidation(CodeUnsafePath, reason)
}

// ErrApplyFailed reports a non-zero exit from the external apply routine.
func ErrApplyFailed(message string) *core.DomainError {
	return core.ErrExecution(CodeApplyFailed, message)
}

// ErrRegression reports that the final verification produced more failures
// than the baseline.
func ErrRegression(message string) *core.DomainError {
	return core.ErrExecution(CodeRegression, message)
}

// ErrVerifyFailed reports an unrecoverable verifier setup failure (not an
// individual command's non-zero exit, which is recorded in VerifyResult).
func ErrVerifyFailed(message string) *core.DomainError {
	return core.ErrExecution(CodeVerifyFailed, message)
}
