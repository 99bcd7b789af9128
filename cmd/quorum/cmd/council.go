package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/council-run/council/internal/adapters/git"
	"github.com/council-run/council/internal/config"
	"github.com/council-run/council/internal/council"
	"github.com/council-run/council/internal/events"
	"github.com/council-run/council/internal/logging"
)

var councilRepoFlag string

// councilEventBus is the process-wide events.EventBus every run also
// publishes onto, alongside the per-run channel runCouncilJob drains for
// its own terminal output. A future subscriber (a dashboard, a log
// shipper) can call councilEventBus.Subscribe() to observe runs in
// progress without touching the CLI's own rendering loop.
var councilEventBus = events.New(100)

var councilCmd = &cobra.Command{
	Use:   "council",
	Short: "Multi-agent code review and repair council",
	Long: `council convenes two LLM critics, a chair, and an implementer to review
and, on request, fix a target file inside a version-controlled source tree.
Review critiques only; Fix also plans, implements, verifies, and leaves the
resulting patch for an explicit, separate Apply step.`,
}

var councilReviewCmd = &cobra.Command{
	Use:   "review <path>",
	Short: "Convene the council to critique a target file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCouncilJob(cmd, args[0], council.ModeReview)
	},
}

var councilFixCmd = &cobra.Command{
	Use:   "fix <path>",
	Short: "Convene the council to plan, implement, and verify a fix",
	Long: `fix runs the full plan-implement-verify loop. It never mutates the
working tree itself: the resulting patch sits in the run directory until
"council apply <run-id>" is invoked explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCouncilJob(cmd, args[0], council.ModeFix)
	},
}

var councilApplyCmd = &cobra.Command{
	Use:   "apply <run-id>",
	Short: "Apply a completed fix run's patch to the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := councilRepoRoot()
		if err != nil {
			return err
		}
		stdout, stderr, err := council.ApplyToRepo(cmd.Context(), repoRoot, args[0])
		fmt.Fprint(cmd.OutOrStdout(), stdout)
		if stderr != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), stderr)
		}
		return err
	},
}

var councilStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print a run's job_metadata.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showArtifact(cmd, args[0], "job_metadata.json")
	},
}

var councilShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "plan.md"
		switch {
		case showPatch:
			name = "implementation.patch"
		case showVerify:
			name = "verify_final.json"
		case showPlan:
			name = "plan.md"
		}
		return showArtifact(cmd, args[0], name)
	},
}

var councilCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old run directories and their worktrees",
	RunE: func(cmd *cobra.Command, _ []string) error {
		repoRoot, err := councilRepoRoot()
		if err != nil {
			return err
		}
		gitClient, err := git.NewClient(repoRoot)
		if err != nil {
			return err
		}
		logger := buildLogger()
		cfg := loadCouncilConfig()
		age, _ := time.ParseDuration(cfg.RetentionAge)
		council.CleanupOldJobs(cmd.Context(), gitClient, repoRoot, cfg.RetentionCount, age, logger.Logger)
		return nil
	},
}

var (
	showPlan   bool
	showPatch  bool
	showVerify bool
)

func init() {
	councilCmd.PersistentFlags().StringVar(&councilRepoFlag, "repo", "", "repository root (default: current directory)")
	councilShowCmd.Flags().BoolVar(&showPlan, "plan", false, "show plan.md")
	councilShowCmd.Flags().BoolVar(&showPatch, "patch", false, "show implementation.patch")
	councilShowCmd.Flags().BoolVar(&showVerify, "verify", false, "show verify_final.json")

	councilCmd.AddCommand(councilReviewCmd, councilFixCmd, councilApplyCmd, councilStatusCmd, councilShowCmd, councilCleanupCmd)
	rootCmd.AddCommand(councilCmd)
}

func councilRepoRoot() (string, error) {
	if councilRepoFlag != "" {
		return councilRepoFlag, nil
	}
	return os.Getwd()
}

func buildLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logLevel
	cfg.Format = logFormat
	return logging.New(cfg)
}

func loadCouncilConfig() config.CouncilConfig {
	var cfg config.CouncilConfig
	cfg.ChairModel = viper.GetString("council.chair_model")
	cfg.CriticModels = viper.GetStringSlice("council.critic_models")
	cfg.ImplementerModel = viper.GetString("council.implementer_model")
	cfg.PromptVersion = viper.GetString("council.prompt_version")
	cfg.RetentionCount = viper.GetInt("council.retention_count")
	cfg.RetentionAge = viper.GetString("council.retention_age")
	cfg.VerifyTimeout = viper.GetString("council.verify_timeout")
	cfg.TruncationBytes = viper.GetInt64("council.truncation_bytes")
	if cfg.ChairModel == "" {
		cfg.ChairModel = "gpt-4.1"
	}
	if len(cfg.CriticModels) != 2 {
		cfg.CriticModels = []string{"gpt-4.1", "gemini-2.5-pro"}
	}
	if cfg.ImplementerModel == "" {
		cfg.ImplementerModel = "gpt-4.1"
	}
	if cfg.PromptVersion == "" {
		cfg.PromptVersion = "v2"
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = council.DefaultRetentionCount
	}
	if cfg.RetentionAge == "" {
		cfg.RetentionAge = council.DefaultRetentionAge.String()
	}
	if cfg.VerifyTimeout == "" {
		cfg.VerifyTimeout = council.DefaultVerifyTimeout.String()
	}
	if cfg.TruncationBytes == 0 {
		cfg.TruncationBytes = council.DefaultTruncationBytes
	}
	return cfg
}

func runCouncilJob(cmd *cobra.Command, target string, mode council.Mode) error {
	repoRoot, err := councilRepoRoot()
	if err != nil {
		return err
	}
	gitClient, err := git.NewClient(repoRoot)
	if err != nil {
		return err
	}
	logger := buildLogger()
	cfg := loadCouncilConfig()

	age, _ := time.ParseDuration(cfg.RetentionAge)
	council.CleanupOldJobs(cmd.Context(), gitClient, repoRoot, cfg.RetentionCount, age, logger.Logger)

	verifyTimeout, _ := time.ParseDuration(cfg.VerifyTimeout)
	runner := council.NewRunner(council.RunnerConfig{
		RepoRoot:         repoRoot,
		Target:           target,
		Mode:             mode,
		PromptVersion:    cfg.PromptVersion,
		ChairModel:       cfg.ChairModel,
		CriticModelA:     cfg.CriticModels[0],
		CriticModelB:     cfg.CriticModels[1],
		ImplementerModel: cfg.ImplementerModel,
		TruncationBytes:  cfg.TruncationBytes,
		VerifyTimeout:    verifyTimeout,
	}, gitClient, logger).WithEventBus(councilEventBus)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	outcome := council.OutcomeFailure
	for ev := range runner.Run(ctx) {
		renderCouncilEvent(cmd, ev)
		if jf, ok := ev.(council.JobFinishedEvent); ok {
			outcome = jf.Outcome
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished: %s\n", runner.RunID(), outcome)
	if outcome != council.OutcomeSuccess {
		return fmt.Errorf("council job finished with outcome %s", outcome)
	}
	return nil
}

func renderCouncilEvent(cmd *cobra.Command, ev events.Event) {
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", ev.Timestamp().Format(time.RFC3339), ev.EventType())
}

func showArtifact(cmd *cobra.Command, runID, name string) error {
	repoRoot, err := councilRepoRoot()
	if err != nil {
		return err
	}
	path := repoRoot + "/.council/runs/" + runID + "/" + name
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
