package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codecouncil-ai/codecouncil/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize codecouncil in the current directory",
	Long: `Initialize codecouncil in the current directory.
Creates .codecouncil/config.yaml with a starter configuration and the
directories used for reports and run history.`,
	RunE: runInit,
}

var (
	initForce  bool
	initGlobal bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "Create the per-user config instead of a project config")
}

func runInit(cmd *cobra.Command, _ []string) error {
	if initGlobal {
		path, err := config.EnsureUserConfigFile()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "User configuration:", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Run 'codecouncil doctor' to verify setup")
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	configPath := filepath.Join(cwd, ".codecouncil", "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists, use --force to overwrite")
	}

	dirs := []string{
		".codecouncil",
		".codecouncil/reports",
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(cwd, dir), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(configPath, []byte(config.DefaultConfigYAML), 0o644); err != nil { //nolint:gosec // Config file needs to be readable
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Initialized codecouncil in", cwd)
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration file: .codecouncil/config.yaml")
	fmt.Fprintln(cmd.OutOrStdout(), "Run 'codecouncil doctor' to verify setup")

	return nil
}
