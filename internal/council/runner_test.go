package council

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council-run/council/internal/adapters/git"
	"github.com/council-run/council/internal/events"
	"github.com/council-run/council/internal/logging"
	"github.com/council-run/council/internal/testutil"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) SendMessage(_ context.Context, _, _ string) (string, error) {
	return f.response, f.err
}

func newFakeFactory(responses map[string]*fakeLLM) func(modelID string) LLMClient {
	return func(modelID string) LLMClient {
		if r, ok := responses[modelID]; ok {
			return r
		}
		return &fakeLLM{response: "ok"}
	}
}

func setupRepo(t *testing.T) (*testutil.GitRepo, *git.Client) {
	t.Helper()
	repo := testutil.NewGitRepo(t)
	repo.WriteFile("main.go", "package main\n\nfunc main() {}\n")
	repo.Commit("initial")
	client, err := git.NewClient(repo.Path)
	require.NoError(t, err)
	return repo, client
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestRunnerReviewHappyPath(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	runner := NewRunner(RunnerConfig{
		RepoRoot:         client.RepoPath(),
		Target:           "main.go",
		Mode:             ModeReview,
		PromptVersion:    "v2",
		ChairModel:       "chair",
		CriticModelA:     "critic-a",
		CriticModelB:     "critic-b",
		ImplementerModel: "impl",
		VerifyTimeout:    5 * time.Second,
	}, client, logger)

	runner.WithCollaborators(newFakeFactory(map[string]*fakeLLM{
		"critic-a": {response: "<finding severity=\"P1\">looks fine</finding>"},
		"critic-b": {response: "<finding severity=\"P2\">minor nit</finding>"},
	}), nil, nil)

	events := drain(runner.Run(context.Background()))
	require.NotEmpty(t, events)

	_, ok := events[0].(JobStartedEvent)
	assert.True(t, ok, "first event must be JobStarted")

	last := events[len(events)-1]
	finished, ok := last.(JobFinishedEvent)
	require.True(t, ok, "last event must be JobFinished")
	assert.Equal(t, OutcomeSuccess, finished.Outcome)

	var sawCriticism bool
	for _, e := range events {
		if ps, ok := e.(PhaseStartedEvent); ok && ps.Phase == PhaseCriticism {
			sawCriticism = true
		}
		if _, ok := e.(PhaseStartedEvent); ok {
			if p := e.(PhaseStartedEvent).Phase; p == PhasePlanning || p == PhaseImplementation {
				t.Fatalf("review mode must not reach %s phase", p)
			}
		}
	}
	assert.True(t, sawCriticism)
}

func TestRunnerPublishesToSharedEventBus(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	bus := events.New(100)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	runner := NewRunner(RunnerConfig{
		RepoRoot:         client.RepoPath(),
		Target:           "main.go",
		Mode:             ModeReview,
		PromptVersion:    "v2",
		ChairModel:       "chair",
		CriticModelA:     "critic-a",
		CriticModelB:     "critic-b",
		ImplementerModel: "impl",
		VerifyTimeout:    5 * time.Second,
	}, client, logger).WithEventBus(bus)

	runner.WithCollaborators(newFakeFactory(map[string]*fakeLLM{
		"critic-a": {response: "<finding severity=\"P1\">looks fine</finding>"},
		"critic-b": {response: "<finding severity=\"P2\">minor nit</finding>"},
	}), nil, nil)

	evs := drain(runner.Run(context.Background()))
	require.NotEmpty(t, evs)

	var busEvents []events.Event
	for {
		select {
		case e := <-sub:
			busEvents = append(busEvents, e)
			continue
		default:
		}
		break
	}

	assert.Equal(t, len(evs), len(busEvents), "every channel event must also reach the shared bus")
	_, ok := busEvents[0].(JobStartedEvent)
	assert.True(t, ok, "bus's first observed event must be JobStarted")
}

func TestRunnerFixRegressionFails(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	runner := NewRunner(RunnerConfig{
		RepoRoot:         client.RepoPath(),
		Target:           "main.go",
		Mode:             ModeFix,
		PromptVersion:    "v2",
		ChairModel:       "chair",
		CriticModelA:     "critic-a",
		CriticModelB:     "critic-b",
		ImplementerModel: "impl",
		VerifyTimeout:    5 * time.Second,
	}, client, logger)

	plan := "<plan>rename main to run</plan>"
	patch := "<patch>*** Begin Patch\n*** Update File: main.go\n package main\n+\n+func extra() {}\n*** End Patch</patch>"

	runner.WithCollaborators(newFakeFactory(map[string]*fakeLLM{
		"critic-a": {response: "<finding severity=\"P1\">ok</finding>"},
		"critic-b": {response: "<finding severity=\"P1\">ok</finding>"},
		"chair":    {response: plan},
		"impl":     {response: patch},
	}), func(_ context.Context, _, _ string) []VerifyResult {
		return []VerifyResult{{Command: "go build ./...", Success: false, Stderr: "boom"}}
	}, nil)

	evs := drain(runner.Run(context.Background()))
	last := evs[len(evs)-1].(JobFinishedEvent)
	assert.Equal(t, OutcomeFailure, last.Outcome)
}

func TestRunnerFixSuccessPath(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	runner := NewRunner(RunnerConfig{
		RepoRoot:         client.RepoPath(),
		Target:           "main.go",
		Mode:             ModeFix,
		PromptVersion:    "v2",
		ChairModel:       "chair",
		CriticModelA:     "critic-a",
		CriticModelB:     "critic-b",
		ImplementerModel: "impl",
		VerifyTimeout:    5 * time.Second,
	}, client, logger)

	plan := "<plan>add a helper</plan>"
	patch := "<patch>*** Begin Patch\n*** Add File: extra.go\n+package main\n*** End Patch</patch>"

	applyCalls := 0
	runner.WithCollaborators(newFakeFactory(map[string]*fakeLLM{
		"critic-a": {response: "<finding severity=\"P3\">nit</finding>"},
		"critic-b": {response: "<finding severity=\"P3\">nit</finding>"},
		"chair":    {response: plan},
		"impl":     {response: patch},
	}), func(_ context.Context, _, _ string) []VerifyResult {
		return []VerifyResult{{Command: "go build ./...", Success: true}}
	}, func(_ context.Context, dir, patchContent string) (string, string, error) {
		applyCalls++
		return DefaultApply(context.Background(), dir, patchContent)
	})

	evs := drain(runner.Run(context.Background()))
	last := evs[len(evs)-1].(JobFinishedEvent)
	assert.Equal(t, OutcomeSuccess, last.Outcome)
	assert.Equal(t, 1, applyCalls)
}

func TestRunnerBothCriticsFailYieldsFailure(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	runner := NewRunner(RunnerConfig{
		RepoRoot:      client.RepoPath(),
		Target:        "main.go",
		Mode:          ModeReview,
		PromptVersion: "v2",
		ChairModel:    "chair",
		CriticModelA:  "critic-a",
		CriticModelB:  "critic-b",
	}, client, logger)

	runner.WithCollaborators(newFakeFactory(map[string]*fakeLLM{
		"critic-a": {err: fmt.Errorf("rate limited")},
		"critic-b": {err: fmt.Errorf("timeout")},
	}), nil, nil)

	evs := drain(runner.Run(context.Background()))
	last := evs[len(evs)-1].(JobFinishedEvent)
	assert.Equal(t, OutcomeFailure, last.Outcome)
}

func TestRunnerInvalidTargetFailsFast(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	runner := NewRunner(RunnerConfig{
		RepoRoot: client.RepoPath(),
		Target:   "../escape.go",
		Mode:     ModeReview,
	}, client, logger)

	evs := drain(runner.Run(context.Background()))
	last := evs[len(evs)-1].(JobFinishedEvent)
	assert.Equal(t, OutcomeFailure, last.Outcome)
	for _, e := range evs {
		if ps, ok := e.(PhaseStartedEvent); ok {
			t.Fatalf("unsafe target must fail before any phase starts, got phase %s", ps.Phase)
		}
	}
}

func TestRunnerChairRefusalYieldsFailure(t *testing.T) {
	_, client := setupRepo(t)
	logger := logging.NewNop()

	runner := NewRunner(RunnerConfig{
		RepoRoot:         client.RepoPath(),
		Target:           "main.go",
		Mode:             ModeFix,
		PromptVersion:    "v2",
		ChairModel:       "chair",
		CriticModelA:     "critic-a",
		CriticModelB:     "critic-b",
		ImplementerModel: "impl",
	}, client, logger)

	runner.WithCollaborators(newFakeFactory(map[string]*fakeLLM{
		"critic-a": {response: "<finding severity=\"P0\">dangerous</finding>"},
		"critic-b": {response: "<finding severity=\"P0\">dangerous</finding>"},
		"chair":    {response: "<error>cannot safely resolve conflicting critiques</error>"},
	}), func(_ context.Context, _, _ string) []VerifyResult { return nil }, nil)

	evs := drain(runner.Run(context.Background()))
	last := evs[len(evs)-1].(JobFinishedEvent)
	assert.Equal(t, OutcomeFailure, last.Outcome)
}
