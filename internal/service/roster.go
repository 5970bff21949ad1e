package service

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// DefaultProfiles returns the built-in council members. A roster file can
// override any of them or add new specialties alongside.
func DefaultProfiles() []core.AgentProfile {
	return []core.AgentProfile{
		{
			Name:      "security",
			Specialty: "security",
			Persona: "You are a pragmatic application security reviewer. You hunt for hardcoded " +
				"credentials, injection paths (SQL, command, template), plaintext secrets, missing " +
				"authentication and rate limiting, and unsafe deserialization. You cite the exact " +
				"line or construct that creates the exposure and you rank exploitability over style.",
			ConfidenceThreshold: 0.7,
		},
		{
			Name:      "performance",
			Specialty: "performance",
			Persona: "You are a performance engineer reviewing for scalability cliffs. You look for " +
				"unbounded queries and missing pagination, N+1 access patterns, nested loops over the " +
				"same collection, chatty I/O inside loops, and unbounded in-memory growth. You estimate " +
				"how each issue behaves at ten times current load.",
			ConfidenceThreshold: 0.7,
		},
		{
			Name:      "architecture",
			Specialty: "architecture",
			Persona: "You are a software architect assessing long-term maintainability. You flag global " +
				"mutable state, missing layering between transport, domain and storage, god objects, " +
				"duplicated business rules, and coupling that will resist incremental modernization. " +
				"You weigh each finding by how much it blocks safe change.",
			ConfidenceThreshold: 0.7,
		},
	}
}

type rosterFile struct {
	Agents []core.AgentProfile `yaml:"agents"`
}

// LoadRosterFile reads agent profiles from a YAML file.
func LoadRosterFile(path string) ([]core.AgentProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster %s: %w", path, err)
	}
	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}
	for i, agent := range roster.Agents {
		if agent.Name == "" {
			return nil, core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("roster %s: agent %d has no name", path, i))
		}
	}
	return roster.Agents, nil
}

// BuildRoster resolves the enabled agent list against the built-in profiles
// and any roster file overrides. Order follows cfg.Enabled.
func BuildRoster(cfg config.AgentsConfig) ([]core.AgentProfile, error) {
	byName := make(map[string]core.AgentProfile)
	for _, profile := range DefaultProfiles() {
		byName[profile.Name] = profile
	}

	if cfg.RosterFile != "" {
		custom, err := LoadRosterFile(cfg.RosterFile)
		if err != nil {
			return nil, err
		}
		for _, profile := range custom {
			if base, ok := byName[profile.Name]; ok {
				// Partial overrides keep the built-in fields they omit.
				if profile.Specialty == "" {
					profile.Specialty = base.Specialty
				}
				if profile.Persona == "" {
					profile.Persona = base.Persona
				}
				if profile.ConfidenceThreshold == 0 {
					profile.ConfidenceThreshold = base.ConfidenceThreshold
				}
			}
			byName[profile.Name] = profile
		}
	}

	if len(cfg.Enabled) == 0 {
		return nil, core.ErrValidation(core.CodeNoAgents, "no agents enabled")
	}

	roster := make([]core.AgentProfile, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		profile, ok := byName[name]
		if !ok {
			return nil, core.ErrValidation(core.CodeNoAgents,
				fmt.Sprintf("unknown agent %q, known: %v", name, knownAgentNames(byName)))
		}
		if profile.Specialty == "" {
			profile.Specialty = profile.Name
		}
		if profile.ConfidenceThreshold == 0 {
			profile.ConfidenceThreshold = cfg.ConfidenceThreshold
		}
		roster = append(roster, profile)
	}
	return roster, nil
}

func knownAgentNames(byName map[string]core.AgentProfile) []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
