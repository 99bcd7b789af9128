package council

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/council-run/council/internal/core"
)

func TestErrorConstructorsCarryExpectedCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *core.DomainError
		code string
	}{
		{"invalid target", ErrInvalidTarget("bad"), CodeInvalidTarget},
		{"worktree failed", ErrWorktreeFailed("bad"), CodeWorktreeFailed},
		{"critique failed", ErrCritiqueFailed("bad"), CodeCritiqueFailed},
		{"chair refusal", ErrChairRefusal("bad"), CodeChairRefusal},
		{"patch invalid", ErrPatchInvalid("bad"), CodePatchInvalid},
		{"unsafe path", ErrUnsafePath("bad"), CodeUnsafePath},
		{"apply failed", ErrApplyFailed("bad"), CodeApplyFailed},
		{"regression", ErrRegression("bad"), CodeRegression},
		{"verify failed", ErrVerifyFailed("bad"), CodeVerifyFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Contains(t, tc.err.Error(), "bad")
		})
	}
}

func TestErrWorktreeFailedWithCausePreservesCause(t *testing.T) {
	cause := errors.New("exit status 128")
	wrapped := ErrWorktreeFailed("git worktree add failed").WithCause(cause)
	assert.ErrorIs(t, wrapped, cause)
}
