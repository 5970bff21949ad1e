package logging

import (
	"regexp"
)

// Sanitizer redacts credentials from log output. The analysis pipeline
// handles untrusted source files and provider keys, so anything resembling a
// secret is scrubbed before it reaches a handler.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic (must precede the generic OpenAI pattern)
		`sk-ant-[a-zA-Z0-9-]{40,}`,
		// OpenAI
		`sk-[A-Za-z0-9]{20,}`,
		// Google AI
		`AIza[a-zA-Z0-9_-]{35}`,
		// AWS access key
		`AKIA[0-9A-Z]{16}`,
		// Bearer tokens
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Generic API keys, secrets, tokens, passwords in k=v or k: v form
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{16,}`,
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{16,}`,
		`(?i)token["'\s:=]+[a-zA-Z0-9._-]{16,}`,
		`(?i)password["'\s:=]+[^\s"']{8,}`,
		// PEM private key headers
		`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts credentials from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
