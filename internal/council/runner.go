package council

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/council-run/council/internal/adapters/git"
	"github.com/council-run/council/internal/events"
	"github.com/council-run/council/internal/logging"
)

// RunnerConfig configures a single Runner invocation.
type RunnerConfig struct {
	RepoRoot         string
	Target           string // relative to RepoRoot
	Mode             Mode
	PromptVersion    string // "v1" or "v2"
	ChairModel       string
	CriticModelA     string
	CriticModelB     string
	ImplementerModel string
	TruncationBytes  int64
	VerifyTimeout    time.Duration
}

// Runner drives a single run through its closed phase state machine,
// emitting events and writing artifacts as it goes. Its collaborators
// (LLM clients, Verifier, apply routine) are capability interfaces so the
// whole state machine can be exercised against fakes in tests.
type Runner struct {
	cfg       RunnerConfig
	git       *git.Client
	logger    *logging.Logger
	llmFactory func(modelID string) LLMClient
	verify    VerifierFunc
	apply     ApplyFunc
	bus       *events.EventBus

	runID string
	ch     chan events.Event
}

// NewRunner constructs a Runner with production collaborators: an
// httpLLMClient factory keyed by API key environment variables, the real
// Verifier, and DefaultApply.
func NewRunner(cfg RunnerConfig, gitClient *git.Client, logger *logging.Logger) *Runner {
	verifier := NewVerifier()
	if cfg.VerifyTimeout > 0 {
		verifier.Timeout = cfg.VerifyTimeout
	}
	return &Runner{
		cfg:    cfg,
		git:    gitClient,
		logger: logger,
		llmFactory: func(modelID string) LLMClient {
			return NewLLMClient(modelID, apiKeyForModel(modelID))
		},
		verify: verifier.RunAll,
		apply:  DefaultApply,
	}
}

// WithCollaborators overrides the LLM client factory, verifier, and apply
// routine, for testing the state machine against fakes.
func (r *Runner) WithCollaborators(llmFactory func(modelID string) LLMClient, verify VerifierFunc, apply ApplyFunc) *Runner {
	if llmFactory != nil {
		r.llmFactory = llmFactory
	}
	if verify != nil {
		r.verify = verify
	}
	if apply != nil {
		r.apply = apply
	}
	return r
}

// WithEventBus attaches the shared events.EventBus. When set, every council
// event is published there in addition to the Runner's own dedicated
// channel, so other subscribers (e.g. a dashboard) observe the run
// alongside the caller draining Run()'s channel. The dedicated channel
// remains the source of truth for the strict JobStarted/JobFinished
// ordering invariant; the bus makes no such guarantee for its subscribers.
func (r *Runner) WithEventBus(bus *events.EventBus) *Runner {
	r.bus = bus
	return r
}

func apiKeyForModel(modelID string) string {
	if strings.Contains(modelID, "gemini") {
		return os.Getenv("GEMINI_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Run starts the job on its own goroutine and returns the event channel
// immediately. JobStarted is always the first event sent and JobFinished is
// always the last; the channel is closed exactly once, after JobFinished.
func (r *Runner) Run(ctx context.Context) <-chan events.Event {
	r.runID = fmt.Sprintf("run-%d", time.Now().Unix())
	r.ch = make(chan events.Event, 100)
	go r.runLogic(ctx)
	return r.ch
}

// RunID returns the run identifier assigned at Run().
func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) emit(e events.Event) {
	r.ch <- e
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func (r *Runner) finish(outcome JobOutcome, summary string) {
	r.emit(NewJobFinishedEvent(r.runID, outcome, summary))
	close(r.ch)
}

func (r *Runner) fail(phase Phase, err error) {
	r.emit(NewErrorEvent(r.runID, phase, err.Error()))
	r.finish(OutcomeFailure, err.Error())
}

func (r *Runner) runLogic(ctx context.Context) {
	dir := runDir(r.cfg.RepoRoot, r.runID)

	headSHA, _ := r.git.RevParse(ctx, "HEAD")
	clean, _ := r.git.IsClean(ctx)

	r.emit(NewJobStartedEvent(r.runID, r.cfg.Mode, r.cfg.Target))

	meta := JobMetadata{
		JobID:            r.runID,
		Mode:             r.cfg.Mode,
		Target:           r.cfg.Target,
		HeadSHAAtStart:   headSHA,
		RepoDirtyAtStart: !clean,
		PromptVersion:    r.cfg.PromptVersion,
		Timestamp:        time.Now(),
	}
	if path, err := writeJSONArtifact(dir, "job_metadata.json", meta); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseInit, path))
	}

	if err := validateRelPath(r.cfg.Target); err != nil {
		r.emit(NewErrorEvent(r.runID, PhaseContext, err.Error()))
		r.finish(OutcomeFailure, err.Error())
		return
	}
	if r.cfg.Target == "" {
		err := ErrInvalidTarget("target path must not be empty")
		r.emit(NewErrorEvent(r.runID, PhaseContext, err.Error()))
		r.finish(OutcomeFailure, err.Error())
		return
	}

	if r.isCancelled(ctx) {
		return
	}

	// --- Isolation ---
	r.emit(NewPhaseStartedEvent(r.runID, PhaseIsolation))
	wt, err := CreateWorktree(ctx, r.git, r.cfg.RepoRoot, r.runID)
	if err != nil {
		r.fail(PhaseIsolation, err)
		return
	}
	defer func() {
		removeCtx := context.Background()
		if rmErr := wt.Remove(removeCtx); rmErr != nil && r.logger != nil {
			r.logger.Warn("worktree removal failed", "run_id", r.runID, "error", rmErr)
		}
	}()

	if r.isCancelled(ctx) {
		return
	}

	// --- Context ---
	r.emit(NewPhaseStartedEvent(r.runID, PhaseContext))
	targetFull := filepath.Join(wt.Path, r.cfg.Target)
	if _, statErr := os.Stat(targetFull); statErr != nil {
		err := ErrInvalidTarget(fmt.Sprintf("target not present at HEAD: %s", r.cfg.Target))
		r.emit(NewErrorEvent(r.runID, PhaseContext, err.Error()))
		r.finish(OutcomeFailure, err.Error())
		return
	}

	builder := NewContextBuilder(wt.Path)
	if r.cfg.TruncationBytes > 0 {
		builder = builder.WithTruncationBytes(r.cfg.TruncationBytes)
	}
	bundle, err := builder.Build([]string{r.cfg.Target})
	if err != nil {
		r.fail(PhaseContext, err)
		return
	}
	if path, err := writeJSONArtifact(dir, "context_bundle.json", bundle); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseContext, path))
	}

	if r.isCancelled(ctx) {
		return
	}

	var baseline []VerifyResult
	if r.cfg.Mode == ModeFix {
		r.emit(NewPhaseStartedEvent(r.runID, PhaseVerifyBaseline))
		baseline = r.runVerify(ctx, PhaseVerifyBaseline, wt.Path)
		if path, err := writeJSONArtifact(dir, "verify_baseline.json", baseline); err == nil {
			r.emit(NewArtifactWrittenEvent(r.runID, PhaseVerifyBaseline, path))
		}
	}

	if r.isCancelled(ctx) {
		return
	}

	promptContext := r.buildPromptContext(wt.Path, bundle, baseline)

	chair := r.llmFactory(r.cfg.ChairModel)
	criticA := r.llmFactory(r.cfg.CriticModelA)
	criticB := r.llmFactory(r.cfg.CriticModelB)
	implementer := r.llmFactory(r.cfg.ImplementerModel)

	// --- Criticism (parallel fan-out, join) ---
	r.emit(NewPhaseStartedEvent(r.runID, PhaseCriticism))
	critiqueGPT, critiqueGemini, critErrA, critErrB := r.runCriticism(ctx, criticA, criticB, promptContext)

	if critErrA != nil {
		r.emit(NewWarningEvent(r.runID, PhaseCriticism, "critic A failed: "+critErrA.Error()))
	} else if path, err := writeTextArtifact(dir, "critique_gpt.md", critiqueGPT); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseCriticism, path))
		r.emit(NewPhaseNoteEvent(r.runID, PhaseCriticism, "critic gpt responded"))
	}
	if critErrB != nil {
		r.emit(NewWarningEvent(r.runID, PhaseCriticism, "critic B failed: "+critErrB.Error()))
	} else if path, err := writeTextArtifact(dir, "critique_gemini.md", critiqueGemini); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseCriticism, path))
		r.emit(NewPhaseNoteEvent(r.runID, PhaseCriticism, "critic gemini responded"))
	}
	writeDebugLog(dir, PhaseCriticism, "## prompt\n"+promptContext+"\n\n## critic gpt\n"+orEmpty(critiqueGPT, critErrA)+"\n\n## critic gemini\n"+orEmpty(critiqueGemini, critErrB))

	if critErrA != nil && critErrB != nil {
		err := ErrCritiqueFailed("both critics failed to produce output")
		r.emit(NewErrorEvent(r.runID, PhaseCriticism, err.Error()))
		r.finish(OutcomeFailure, err.Error())
		return
	}

	if r.cfg.Mode == ModeReview {
		r.finish(OutcomeSuccess, "Critique complete.")
		return
	}

	if r.isCancelled(ctx) {
		return
	}

	// --- Planning ---
	r.emit(NewPhaseStartedEvent(r.runID, PhasePlanning))
	critiqueSummary := fmt.Sprintf("## Critic GPT\n%s\n\n## Critic Gemini\n%s\n", orEmpty(critiqueGPT, critErrA), orEmpty(critiqueGemini, critErrB))
	planRaw, err := chair.SendMessage(ctx, systemPromptChair(), critiqueSummary+"\n\n"+promptContext)
	if err != nil {
		r.fail(PhasePlanning, err)
		return
	}
	if path, err := writeTextArtifact(dir, "plan_raw.md", planRaw); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhasePlanning, path))
	}

	plan := planRaw
	if r.cfg.PromptVersion == "v2" {
		if extracted, ok := ExtractPlan(planRaw); ok {
			plan = extracted
		} else if errBlock, ok := ExtractError(planRaw); ok {
			err := ErrChairRefusal("Chair refused plan: " + errBlock)
			r.emit(NewErrorEvent(r.runID, PhasePlanning, err.Error()))
			r.finish(OutcomeFailure, err.Error())
			return
		}
	}
	if path, err := writeTextArtifact(dir, "plan.md", plan); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhasePlanning, path))
	}
	writeDebugLog(dir, PhasePlanning, "## prompt\n"+critiqueSummary+"\n\n## raw\n"+planRaw+"\n\n## extracted plan\n"+plan)

	if r.isCancelled(ctx) {
		return
	}

	// --- Implementation ---
	r.emit(NewPhaseStartedEvent(r.runID, PhaseImplementation))
	implRaw, err := implementer.SendMessage(ctx, systemPromptImplementer(), plan+"\n\n"+promptContext)
	if err != nil {
		r.fail(PhaseImplementation, err)
		return
	}
	if path, err := writeTextArtifact(dir, "implementation.patch", implRaw); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseImplementation, path))
	}

	patchContent := extractPatchCandidate(implRaw)
	writeDebugLog(dir, PhaseImplementation, "## raw\n"+implRaw+"\n\n## extracted patch\n"+patchContent)

	if r.cfg.PromptVersion == "v2" && !LooksLikeApplyPatch(patchContent) {
		err := ErrPatchInvalid("implementer output does not look like a valid apply-patch payload")
		r.emit(NewErrorEvent(r.runID, PhaseImplementation, err.Error()))
		r.finish(OutcomeFailure, err.Error())
		return
	}
	if err := ValidatePatchPaths(patchContent); err != nil {
		r.emit(NewErrorEvent(r.runID, PhaseImplementation, err.Error()))
		r.finish(OutcomeFailure, err.Error())
		return
	}

	if r.isCancelled(ctx) {
		return
	}

	// --- Apply & final verify ---
	r.emit(NewPhaseStartedEvent(r.runID, PhaseApply))
	applyStdout, applyStderr, err := r.apply(ctx, wt.Path, patchContent)
	if p, werr := writeTextArtifact(dir, "apply_stdout.txt", applyStdout); werr == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseApply, p))
	}
	if p, werr := writeTextArtifact(dir, "apply_stderr.txt", applyStderr); werr == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseApply, p))
	}
	if err != nil {
		wrapped := ErrApplyFailed(err.Error())
		r.emit(NewErrorEvent(r.runID, PhaseApply, wrapped.Error()))
		r.finish(OutcomeFailure, wrapped.Error())
		return
	}

	r.emit(NewPhaseStartedEvent(r.runID, PhaseVerifyFinal))
	final := r.runVerify(ctx, PhaseVerifyFinal, wt.Path)
	if path, err := writeJSONArtifact(dir, "verify_final.json", final); err == nil {
		r.emit(NewArtifactWrittenEvent(r.runID, PhaseVerifyFinal, path))
	}

	baselineFailures := CountFailures(baseline)
	finalFailures := CountFailures(final)
	summary := fmt.Sprintf("Base failures: %d, Final failures: %d", baselineFailures, finalFailures)
	if finalFailures > baselineFailures {
		r.finish(OutcomeFailure, summary)
		return
	}
	r.finish(OutcomeSuccess, summary)
}

func orEmpty(text string, err error) string {
	if err != nil {
		return "(no response: " + err.Error() + ")"
	}
	return text
}

func extractPatchCandidate(text string) string {
	if patch, ok := ExtractPatch(text); ok {
		return patch
	}
	parts := strings.Split(text, "```")
	if len(parts) >= 3 {
		return strings.TrimSpace(parts[1])
	}
	return text
}

// runCriticism awaits both critics concurrently via errgroup.Group, the same
// join-both fan-out primitive used in context.go's reverse-dependency scan.
// Each goroutine always returns nil to the group: a critic's failure is
// captured in its own closure-local error instead of being returned to
// Wait, so one critic failing never cancels or short-circuits the other —
// errgroup.WithContext's cancel-on-first-error behavior is deliberately not
// used here.
func (r *Runner) runCriticism(ctx context.Context, a, b LLMClient, promptContext string) (outA, outB string, errA, errB error) {
	var g errgroup.Group
	g.Go(func() error {
		outA, errA = a.SendMessage(ctx, systemPromptCritic(), promptContext)
		return nil
	})
	g.Go(func() error {
		outB, errB = b.SendMessage(ctx, systemPromptCritic(), promptContext)
		return nil
	})
	_ = g.Wait()
	return
}

func (r *Runner) runVerify(ctx context.Context, phase Phase, workingRoot string) []VerifyResult {
	results := r.verify(ctx, workingRoot, r.cfg.Target)
	for _, res := range results {
		r.emit(NewCommandStartedEvent(r.runID, phase, res.Command))
		r.emit(NewCommandFinishedEvent(r.runID, phase, res.Command, res.Success))
		if !res.Success {
			r.emit(NewWarningEvent(r.runID, phase, "command failed: "+res.Command))
		}
	}
	return results
}

// buildPromptContext assembles the single string fed verbatim to every LLM
// call in the run: a target header, the bundle JSON with the worktree's
// absolute path stripped out (so temp-dir names never leak to a model), and
// the serialized baseline results.
func (r *Runner) buildPromptContext(worktreePath string, bundle *ContextBundle, baseline []VerifyResult) string {
	bundleJSON, _ := json.MarshalIndent(bundle, "", "  ")
	baselineJSON, _ := json.MarshalIndent(baseline, "", "  ")
	stripped := strings.ReplaceAll(string(bundleJSON), worktreePath, "")
	return fmt.Sprintf("Target: %s\n\nContext Bundle:\n%s\n\nBaseline Verification:\n%s", r.cfg.Target, stripped, string(baselineJSON))
}

func (r *Runner) isCancelled(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	r.finish(OutcomeCancelled, "Job cancelled by user.")
	return true
}
