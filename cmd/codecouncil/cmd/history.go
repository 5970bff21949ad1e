package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/impact"
	"github.com/codecouncil-ai/codecouncil/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored review runs",
	Long: `List, show and prune the run history.

Without a subcommand, recent runs are listed newest first.`,
	RunE: runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Render one stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs",
	RunE:  runHistoryPrune,
}

var (
	historyLimit int
	historyJSON  bool
	showFormat   string
	pruneKeep    int
	pruneMaxAge  time.Duration
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyPruneCmd)

	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to list")
		c.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	}
	historyShowCmd.Flags().StringVarP(&showFormat, "format", "f", "auto",
		"report format (auto, terminal, markdown, json)")
	historyPruneCmd.Flags().IntVar(&pruneKeep, "keep", 20, "newest runs to keep")
	historyPruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0,
		"also drop kept runs older than this (e.g. 720h; 0 disables)")
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		return outputJSON(summaries)
	}
	if len(summaries) == 0 {
		fmt.Println("No stored runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tFILES\tFINDINGS\tSTATUS\tOBJECTIVE")
	fmt.Fprintln(w, "---\t-------\t-----\t--------\t------\t---------")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.FileCount, s.FindingCount, s.Status, truncateObjective(s.Objective))
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.GetRun(cmd.Context(), core.RunID(args[0]))
	if err != nil {
		return err
	}
	rep := report.Report{
		Result: result,
		Impact: impact.Compute(result, cfg.Impact),
	}
	return report.Stdout(&rep, showFormat)
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.PruneRuns(cmd.Context(), pruneKeep, pruneMaxAge)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d run(s), kept up to %d\n", deleted, pruneKeep)
	return nil
}

func truncateObjective(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
