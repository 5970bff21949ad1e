package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codecouncil-ai/codecouncil/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment",
	Long: `Verify that a review can run here: configuration, provider credentials
and reachability, the run-history store, and host resources.`,
	RunE: runDoctor,
}

var doctorJSON bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output as JSON")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	checks := diagnostics.NewDoctor(cfg, logger).Run(cmd.Context())

	if doctorJSON {
		if err := outputJSON(checks); err != nil {
			return err
		}
	} else {
		renderChecks(os.Stdout, checks)
	}

	if !diagnostics.Healthy(checks) {
		return fmt.Errorf("environment check failed")
	}
	return nil
}

func renderChecks(w io.Writer, checks []diagnostics.Check) {
	fmt.Fprintln(w, "Checking environment...")
	fmt.Fprintln(w)
	for _, check := range checks {
		icon := "✓"
		switch check.Status {
		case diagnostics.CheckWarn:
			icon = "⚠"
		case diagnostics.CheckFail:
			icon = "✗"
		}
		fmt.Fprintf(w, "  %s %s: %s\n", icon, check.Name, check.Detail)
	}
	fmt.Fprintln(w)
	if diagnostics.Healthy(checks) {
		fmt.Fprintln(w, "Ready to run reviews")
	} else {
		fmt.Fprintln(w, "Fix the failures above before running reviews")
	}
}
