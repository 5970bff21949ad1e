package core

import "testing"

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"Critical", SeverityCritical},
		{"BLOCKER", SeverityCritical},
		{"high", SeverityHigh},
		{"Major", SeverityHigh},
		{"medium", SeverityMedium},
		{" moderate ", SeverityMedium},
		{"low", SeverityLow},
		{"info", SeverityLow},
		{"whatever", SeverityMedium},
		{"", SeverityMedium},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSeverityRank_Ordering(t *testing.T) {
	if SeverityCritical.Rank() <= SeverityHigh.Rank() {
		t.Errorf("critical should outrank high")
	}
	if SeverityHigh.Rank() <= SeverityMedium.Rank() {
		t.Errorf("high should outrank medium")
	}
	if SeverityMedium.Rank() <= SeverityLow.Rank() {
		t.Errorf("medium should outrank low")
	}
}

func TestFindingsFor(t *testing.T) {
	results := []SpecialistResult{
		{
			AgentName: "security",
			Findings: []SpecialistFinding{
				{Category: "security", Location: "auth/login.go:42"},
				{Category: "security", Location: "auth/token.go"},
			},
		},
		{
			AgentName: "performance",
			Findings: []SpecialistFinding{
				{Category: "performance", Location: "auth/login.go:17"},
			},
		},
	}

	got := FindingsFor(results, "auth/login.go")
	if len(got) != 2 {
		t.Fatalf("FindingsFor returned %d findings, want 2", len(got))
	}
	if got := FindingsFor(results, "auth/token.go"); len(got) != 1 {
		t.Fatalf("bare-path location should match, got %d findings", len(got))
	}
	if got := FindingsFor(results, "missing.go"); len(got) != 0 {
		t.Fatalf("unknown file should have no findings, got %d", len(got))
	}
}

func TestLocationFile(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pkg/svc.go:120", "pkg/svc.go"},
		{"pkg/svc.go", "pkg/svc.go"},
		{"C.go:abc", "C.go:abc"},
		{"svc.go:", "svc.go:"},
	}
	for _, tt := range tests {
		if got := locationFile(tt.in); got != tt.want {
			t.Errorf("locationFile(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
