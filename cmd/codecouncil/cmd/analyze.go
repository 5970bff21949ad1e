package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/impact"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
	"github.com/codecouncil-ai/codecouncil/internal/report"
	"github.com/codecouncil-ai/codecouncil/internal/scan"
	"github.com/codecouncil-ai/codecouncil/internal/service"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Run the review council over a file or directory",
	Long: `Scan the given path, group the files into batches, and run every enabled
specialist agent over them. Agents then critique each other's findings before
the council's consensus, conflicts and recommendations are reported.

Examples:
  # Review the current directory
  codecouncil analyze

  # Review one service with a focus
  codecouncil analyze ./billing --objective "prepare for cloud migration"

  # Only the security and performance reviewers, report as markdown
  codecouncil analyze --agents security,performance --format markdown

  # Re-run the review whenever files change
  codecouncil analyze ./src --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeObjective string
	analyzeAgents    []string
	analyzeOutput    string
	analyzeFormat    string
	analyzeWatch     bool
	analyzeNoCache   bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeObjective, "objective", "",
		"review objective passed to every agent (e.g. \"modernization readiness\")")
	analyzeCmd.Flags().StringSliceVar(&analyzeAgents, "agents", nil,
		"comma-separated agent subset (default: all enabled in config)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"write the report to this file instead of stdout")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "auto",
		"report format (auto, terminal, markdown, json)")
	analyzeCmd.Flags().BoolVarP(&analyzeWatch, "watch", "w", false,
		"re-run the review when files under the path change")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false,
		"bypass the response cache for this run")
}

func runAnalyze(_ *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(analyzeAgents) > 0 {
		resolved, err := resolveAgents(analyzeAgents, knownAgents(cfg))
		if err != nil {
			return err
		}
		cfg.Agents.Enabled = resolved
	}
	if analyzeNoCache {
		cfg.Cache.Enabled = false
	}

	logger := newLogger(cfg)
	engine, _, err := buildCouncil(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := analyzeOnce(ctx, cfg, engine, logger, root); err != nil {
		return err
	}
	if !analyzeWatch {
		return nil
	}

	logger.Info("watching for changes", "path", root)
	return watchAndRerun(ctx, root, logger, func(ctx context.Context) {
		if err := analyzeOnce(ctx, cfg, engine, logger, root); err != nil && ctx.Err() == nil {
			logger.Error("re-analysis failed", "error", err)
		}
	})
}

// analyzeOnce performs a single scan-review-report cycle.
func analyzeOnce(ctx context.Context, cfg *config.Config, engine *service.Engine, logger *logging.Logger, root string) error {
	scanner := scan.NewScanner(cfg.Scan, logger)
	files, err := scanner.ScanPath(ctx, root)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, files, analyzeObjective)
	if err != nil {
		return err
	}

	if store, err := openRunStore(cfg); err != nil {
		logger.Warn("run history unavailable", "error", err)
	} else {
		if err := store.SaveRun(ctx, result); err != nil {
			logger.Warn("saving run failed", "run_id", result.RunID, "error", err)
		}
		if cfg.Store.MaxRuns > 0 {
			if _, err := store.PruneRuns(ctx, cfg.Store.MaxRuns, 0); err != nil {
				logger.Warn("pruning run history failed", "error", err)
			}
		}
		_ = store.Close()
	}

	return writeReport(cfg, result)
}

// writeReport renders the run result in the chosen format to stdout or the
// --output file.
func writeReport(cfg *config.Config, result *core.TeamAnalysisResult) error {
	rep := report.Report{
		Result: result,
		Impact: impact.Compute(result, cfg.Impact),
	}

	format := analyzeFormat
	if format == "" || format == "auto" {
		format = cfg.Report.Format
	}
	if analyzeOutput != "" {
		if format == "" || format == "auto" || format == "terminal" || format == "term" {
			format = formatForPath(analyzeOutput)
		}
		path := analyzeOutput
		if cfg.Report.OutputDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Report.OutputDir, path)
		}
		return report.WriteFile(path, &rep, format)
	}
	return report.Stdout(&rep, format)
}

func formatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "markdown"
}

// knownAgents lists every resolvable agent name: built-ins plus roster file
// entries.
func knownAgents(cfg *config.Config) []string {
	names := map[string]bool{}
	for _, profile := range service.DefaultProfiles() {
		names[profile.Name] = true
	}
	if cfg.Agents.RosterFile != "" {
		if custom, err := service.LoadRosterFile(cfg.Agents.RosterFile); err == nil {
			for _, profile := range custom {
				names[profile.Name] = true
			}
		}
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolveAgents matches each requested name against the known roster,
// suggesting the closest known agent on a miss.
func resolveAgents(requested, known []string) ([]string, error) {
	resolved := make([]string, 0, len(requested))
	for _, raw := range requested {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for _, k := range known {
			if name == k {
				found = true
				break
			}
		}
		if found {
			resolved = append(resolved, name)
			continue
		}
		if matches := fuzzy.Find(name, known); len(matches) > 0 {
			return nil, fmt.Errorf("unknown agent %q, did you mean %q? (known: %s)",
				raw, matches[0].Str, strings.Join(known, ", "))
		}
		return nil, fmt.Errorf("unknown agent %q (known: %s)", raw, strings.Join(known, ", "))
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("no agents selected")
	}
	return resolved, nil
}

// timestamp used by watch logs.
func shortTime(t time.Time) string { return t.Format("15:04:05") }
