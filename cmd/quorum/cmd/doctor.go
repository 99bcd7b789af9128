package cmd

import (
	"fmt"
	"os/exec"

	"github.com/council-run/council/internal/config"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system dependencies",
	Long:  "Verify that all required dependencies are installed and configured.",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	checks := []struct {
		name     string
		command  string
		args     []string
		required bool
	}{
		{"git", "git", []string{"--version"}, true},
		{"gh", "gh", []string{"--version"}, false},
	}

	fmt.Println("Checking dependencies...")
	fmt.Println()

	allOk := true
	requiredOk := true

	for _, check := range checks {
		status := checkCommand(check.command, check.args)
		icon := "✓"
		suffix := ""

		if !status {
			if check.required {
				icon = "✗"
				requiredOk = false
			} else {
				icon = "○"
				suffix = " (optional)"
			}
		}

		if !status && check.required {
			allOk = false
		}

		fmt.Printf("  %s %s%s\n", icon, check.name, suffix)
	}

	fmt.Println()

	// Validate quorum configuration (fail-fast check for phase consistency)
	fmt.Println("Validating quorum configuration...")
	fmt.Println()

	validationIssues := validateQuorumConfig()
	if len(validationIssues) > 0 {
		for _, issue := range validationIssues {
			fmt.Printf("  ✗ %s\n", issue)
		}
		fmt.Println()
		fmt.Println("Configuration errors must be fixed before running workflows.")
		fmt.Println("Edit .quorum/config.yaml to fix the issues above.")
		fmt.Println()
		allOk = false
	} else {
		fmt.Println("  ✓ Quorum configuration valid")
		fmt.Println()
	}

	if !requiredOk {
		fmt.Println("Some required dependencies are missing")
		return fmt.Errorf("dependency check failed")
	}

	if allOk {
		fmt.Println("All dependencies available and configuration valid")
	} else {
		fmt.Println("Required dependencies available, but some configuration issues found")
	}

	return nil
}

func checkCommand(name string, args []string) bool {
	cmd := exec.Command(name, args...)
	return cmd.Run() == nil
}

// validateQuorumConfig loads and validates the quorum configuration
func validateQuorumConfig() []string {
	var issues []string

	// Try to load config using the loader
	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		issues = append(issues, fmt.Sprintf("Cannot load config: %v", err))
		return issues
	}

	// Run full validation
	if err := config.ValidateConfig(cfg); err != nil {
		// Parse validation errors
		if verrs, ok := err.(config.ValidationErrors); ok {
			for _, verr := range verrs {
				issues = append(issues, verr.Error())
			}
		} else {
			issues = append(issues, err.Error())
		}
	}

	return issues
}
