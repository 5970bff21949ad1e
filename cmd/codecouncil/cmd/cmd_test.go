package cmd

import (
	"strings"
	"testing"
)

func TestRootCmdStructure(t *testing.T) {
	if rootCmd.Use != "codecouncil" {
		t.Errorf("expected 'codecouncil', got '%s'", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty short description")
	}
	for _, flag := range []string{"config", "log-level", "log-format", "no-color", "quiet"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag %q not registered", flag)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"init":    false,
		"analyze": false,
		"serve":   false,
		"history": false,
		"agents":  false,
		"doctor":  false,
		"version": false,
	}
	for _, cmd := range rootCmd.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestHistorySubcommands(t *testing.T) {
	want := map[string]bool{"list": false, "show": false, "prune": false}
	for _, cmd := range historyCmd.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("history subcommand %q not registered", name)
		}
	}
}

func TestResolveAgents(t *testing.T) {
	known := []string{"architecture", "performance", "security"}

	tests := []struct {
		name      string
		requested []string
		want      []string
		wantErr   string
	}{
		{"exact", []string{"security"}, []string{"security"}, ""},
		{"multiple", []string{"security", "performance"}, []string{"security", "performance"}, ""},
		{"case and spaces", []string{" Security "}, []string{"security"}, ""},
		{"typo suggests", []string{"securty"}, nil, `did you mean "security"`},
		{"prefix suggests", []string{"perf"}, nil, `did you mean "performance"`},
		{"no match lists known", []string{"zzz"}, nil, "known: architecture, performance, security"},
		{"empty selection", []string{" ", ""}, nil, "no agents selected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveAgents(tt.requested, known)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, got)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("agent %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatForPath(t *testing.T) {
	if got := formatForPath("report.json"); got != "json" {
		t.Errorf("json path = %q", got)
	}
	if got := formatForPath("report.md"); got != "markdown" {
		t.Errorf("md path = %q", got)
	}
	if got := formatForPath("report"); got != "markdown" {
		t.Errorf("bare path = %q", got)
	}
}

func TestTruncateObjective(t *testing.T) {
	short := "modernize billing"
	if got := truncateObjective(short); got != short {
		t.Errorf("short objective changed: %q", got)
	}
	long := strings.Repeat("objective ", 10)
	got := truncateObjective(long)
	if len(got) != 48 || !strings.HasSuffix(got, "...") {
		t.Errorf("long objective = %q (len %d)", got, len(got))
	}
}
