package council

import "context"

// LLMClient is the capability interface the Runner depends on for each
// council role (chair, both critics, implementer). Production code uses
// httpLLMClient; tests substitute a fake.
type LLMClient interface {
	SendMessage(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// VerifierFunc runs a verification suite against workingRoot and returns the
// ordered results. Matches (*Verifier).RunAll's signature so the real
// Verifier satisfies this directly.
type VerifierFunc func(ctx context.Context, workingRoot string, targetRelPath string) []VerifyResult

// ApplyFunc applies patchContent against dir and returns captured
// stdout/stderr, or an error if the application failed. The Runner treats
// this as an external, black-box routine per spec.
type ApplyFunc func(ctx context.Context, dir, patchContent string) (stdout, stderr string, err error)
