// Package council implements the multi-agent review/repair job orchestrator:
// worktree isolation, context bundling, LLM-backed critique/plan/implement
// coordination, patch validation, and command-suite verification.
package council

import "time"

// Mode selects the top-level job behavior.
type Mode string

const (
	ModeReview Mode = "review"
	ModeFix    Mode = "fix"
)

// Severity classifies a parsed finding.
type Severity string

const (
	SeverityP0      Severity = "P0"
	SeverityP1      Severity = "P1"
	SeverityP2      Severity = "P2"
	SeverityP3      Severity = "P3"
	SeverityUnknown Severity = "Unknown"
)

// ParseSeverity maps a raw attribute value onto the known severities.
func ParseSeverity(raw string) Severity {
	switch Severity(raw) {
	case SeverityP0, SeverityP1, SeverityP2, SeverityP3:
		return Severity(raw)
	default:
		return SeverityUnknown
	}
}

// Finding is a single critic observation extracted from free-form LLM text.
type Finding struct {
	Severity Severity          `json:"severity"`
	Body     string            `json:"body"`
	Attrs    map[string]string `json:"attrs"`
}

// FileSnapshot is a point-in-time capture of one file's contents.
type FileSnapshot struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	IsTruncated bool   `json:"is_truncated"`
}

// Snippet is a line-indexed excerpt of a file referencing a target module.
type Snippet struct {
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Content   string `json:"content"`
}

// TruncationInfo records what context material was dropped and why.
type TruncationInfo struct {
	OmittedFiles []string `json:"omitted_files"`
	Reason       string   `json:"reason"`
}

// ContextBundle is the code-context payload handed to every LLM role.
type ContextBundle struct {
	TargetFiles    []FileSnapshot       `json:"target_files"`
	RelatedFiles   []FileSnapshot       `json:"related_files"`
	ReverseDeps    map[string][]Snippet `json:"reverse_deps"`
	TestFiles      []FileSnapshot       `json:"test_files"`
	TruncationInfo TruncationInfo       `json:"truncation_info"`
}

// VerifyResult captures the outcome of one verification command.
type VerifyResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// JobOutcome is the terminal disposition of a run.
type JobOutcome string

const (
	OutcomeSuccess   JobOutcome = "Success"
	OutcomeFailure   JobOutcome = "Failure"
	OutcomeCancelled JobOutcome = "Cancelled"
)

// JobMetadata is persisted as job_metadata.json at Isolation start.
type JobMetadata struct {
	JobID            string    `json:"job_id"`
	Mode             Mode      `json:"mode"`
	Target           string    `json:"target"`
	HeadSHAAtStart   string    `json:"head_sha_at_start"`
	RepoDirtyAtStart bool      `json:"repo_dirty_at_start"`
	PromptVersion    string    `json:"prompt_version"`
	Timestamp        time.Time `json:"timestamp"`
}

// Phase names a state in the Runner's closed phase enumeration.
type Phase string

const (
	PhaseInit           Phase = "Init"
	PhaseIsolation      Phase = "Isolation"
	PhaseContext        Phase = "Context"
	PhaseVerifyBaseline Phase = "VerifyBaseline"
	PhaseCriticism      Phase = "Criticism"
	PhasePlanning       Phase = "Planning"
	PhaseImplementation Phase = "Implementation"
	PhaseApply          Phase = "Apply"
	PhaseVerifyFinal    Phase = "VerifyFinal"
)
