package service

import "testing"

type parsePayload struct {
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

func TestExtractStructured_Direct(t *testing.T) {
	var got parsePayload
	strategy := ExtractStructured(`{"summary": "clean", "score": 0.9}`, &got)
	if strategy != ParseDirect {
		t.Fatalf("strategy = %q, want %q", strategy, ParseDirect)
	}
	if got.Summary != "clean" || got.Score != 0.9 {
		t.Errorf("payload = %+v", got)
	}
}

func TestExtractStructured_FencedBlock(t *testing.T) {
	raw := "Here is my review:\n\n```json\n{\"summary\": \"fenced\", \"score\": 0.7}\n```\n\nLet me know if you need more detail."
	var got parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseFenced {
		t.Fatalf("strategy = %q, want %q", strategy, ParseFenced)
	}
	if got.Summary != "fenced" {
		t.Errorf("summary = %q, want %q", got.Summary, "fenced")
	}
}

func TestExtractStructured_UntaggedFence(t *testing.T) {
	raw := "```\n{\"summary\": \"untagged\", \"score\": 0.5}\n```"
	var got parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseFenced {
		t.Fatalf("strategy = %q, want %q", strategy, ParseFenced)
	}
	if got.Summary != "untagged" {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestExtractStructured_BalancedScanThroughProse(t *testing.T) {
	raw := `After careful review I concluded {"summary": "has {braces} and \"quotes\" inside", "score": 1} which covers it.`
	var got parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseBalanced {
		t.Fatalf("strategy = %q, want %q", strategy, ParseBalanced)
	}
	if got.Summary != `has {braces} and "quotes" inside` {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestExtractStructured_LargestSpanPreferred(t *testing.T) {
	raw := `Quick note {"x": 1} but the real result is {"summary": "the full assessment", "score": 0.8} here.`
	var got parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseBalanced {
		t.Fatalf("strategy = %q, want %q", strategy, ParseBalanced)
	}
	if got.Summary != "the full assessment" {
		t.Errorf("summary = %q, want the larger span's content", got.Summary)
	}
}

func TestExtractStructured_NestedInsideTruncatedObject(t *testing.T) {
	raw := `{"outer": "never closed, {"summary": "rescued", "score": 0.4}`
	var got parsePayload
	strategy := ExtractStructured(raw, &got)
	if strategy == ParseNone {
		t.Fatal("strategy = none, want a nested span to be rescued")
	}
	if got.Summary != "rescued" {
		t.Errorf("summary = %q, want %q", got.Summary, "rescued")
	}
}

func TestExtractStructured_CleanupRepairsTrailingCommasAndComments(t *testing.T) {
	raw := `{
  // model annotated its own output
  "summary": "repaired",
  "score": 0.6, /* confidence */
}`
	var got parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseCleanup {
		t.Fatalf("strategy = %q, want %q", strategy, ParseCleanup)
	}
	if got.Summary != "repaired" || got.Score != 0.6 {
		t.Errorf("payload = %+v", got)
	}
}

func TestExtractStructured_CleanupNormalizesSmartQuotes(t *testing.T) {
	raw := "{“summary”: “curly”, “score”: 1}"
	var got parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseCleanup {
		t.Fatalf("strategy = %q, want %q", strategy, ParseCleanup)
	}
	if got.Summary != "curly" {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestExtractStructured_ProseOnlyLeavesTargetUntouched(t *testing.T) {
	got := parsePayload{Summary: "preexisting"}
	if strategy := ExtractStructured("I was unable to analyze this file meaningfully.", &got); strategy != ParseNone {
		t.Fatalf("strategy = %q, want %q", strategy, ParseNone)
	}
	if got.Summary != "preexisting" {
		t.Errorf("target mutated on failed extraction: %+v", got)
	}
}

func TestExtractStructured_EmptyInput(t *testing.T) {
	var got parsePayload
	if strategy := ExtractStructured("   \n  ", &got); strategy != ParseNone {
		t.Errorf("strategy = %q, want %q", strategy, ParseNone)
	}
}

func TestExtractStructured_ArrayTarget(t *testing.T) {
	raw := "Findings below:\n```json\n[{\"summary\": \"a\", \"score\": 1}, {\"summary\": \"b\", \"score\": 2}]\n```"
	var got []parsePayload
	if strategy := ExtractStructured(raw, &got); strategy != ParseFenced {
		t.Fatalf("strategy = %q, want %q", strategy, ParseFenced)
	}
	if len(got) != 2 || got[1].Summary != "b" {
		t.Errorf("payload = %+v", got)
	}
}

func TestExtractStructured_NilTarget(t *testing.T) {
	if strategy := ExtractStructured(`{"summary": "x"}`, nil); strategy != ParseNone {
		t.Errorf("strategy with nil target = %q, want %q", strategy, ParseNone)
	}
}

func TestStripTrailingCommas_IgnoresCommasInStrings(t *testing.T) {
	in := `{"note": "keep, this," }`
	if got := stripTrailingCommas(in); got != in {
		t.Errorf("stripTrailingCommas(%q) = %q, want unchanged", in, got)
	}
}

func TestStripComments_IgnoresSlashesInStrings(t *testing.T) {
	in := `{"url": "https://example.com/path"}`
	if got := stripComments(in); got != in {
		t.Errorf("stripComments(%q) = %q, want unchanged", in, got)
	}
}
