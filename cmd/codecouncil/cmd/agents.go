package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codecouncil-ai/codecouncil/internal/service"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the specialist reviewers",
	Long: `List every agent the council can seat, with specialty and confidence
threshold. Agents enabled in the current configuration are marked with an
asterisk (*).`,
	RunE: runAgents,
}

var agentsJSON bool

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "output as JSON")
}

func runAgents(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enabled := map[string]bool{}
	for _, name := range cfg.Agents.Enabled {
		enabled[name] = true
	}

	profiles := service.DefaultProfiles()
	if cfg.Agents.RosterFile != "" {
		custom, err := service.LoadRosterFile(cfg.Agents.RosterFile)
		if err != nil {
			return err
		}
		byName := map[string]int{}
		for i, p := range profiles {
			byName[p.Name] = i
		}
		for _, p := range custom {
			if i, ok := byName[p.Name]; ok {
				profiles[i] = p
			} else {
				profiles = append(profiles, p)
			}
		}
	}

	if agentsJSON {
		return outputJSON(profiles)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSPECIALTY\tTHRESHOLD\tENABLED")
	fmt.Fprintln(w, "-----\t---------\t---------\t-------")
	for _, p := range profiles {
		mark := ""
		if enabled[p.Name] {
			mark = "*"
		}
		threshold := p.ConfidenceThreshold
		if threshold == 0 {
			threshold = cfg.Agents.ConfidenceThreshold
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", p.Name, p.Specialty, threshold, mark)
	}
	return w.Flush()
}
