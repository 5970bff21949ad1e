// Package redact strips credential material from file previews before they
// are embedded in prompts. Redaction is deterministic, so cache fingerprints
// computed over redacted previews remain stable.
package redact

import (
	"path/filepath"
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret shapes.
var secretPatterns = []*regexp.Regexp{
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// AWS secret access keys in assignments
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// Generic secrets, tokens and passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential|api[_-]?key)\s*[:=]\s*["']([^"']{8,})["']`),
	// Passwords embedded in connection URLs
	regexp.MustCompile(`(?i)://[^:/\s]+:[^@/\s]+@`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Private key blocks
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// Anthropic and OpenAI API keys
	regexp.MustCompile(`sk-(ant-)?[A-Za-z0-9_-]{20,}`),
}

// sensitiveNames are file basenames whose whole content is withheld.
var sensitiveNames = []string{".env", ".env.*", "*.pem", "*.key", "id_rsa", "credentials", "*.pfx"}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllString(result, placeholder)
	}
	return result
}

// SensitivePath reports whether the file should be withheld entirely
// rather than previewed.
func SensitivePath(name string) bool {
	base := filepath.Base(name)
	for _, pattern := range sensitiveNames {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// Preview prepares a file preview for prompt embedding: sensitive files are
// withheld wholesale, everything else has inline secrets replaced.
func Preview(name, preview string) string {
	if SensitivePath(name) {
		return placeholder + " (content withheld by path policy)"
	}
	return Secrets(preview)
}

// Placeholder returns the substitution marker, for callers that need to
// detect redacted output.
func Placeholder() string { return placeholder }

// ContainsRedaction reports whether text carries the substitution marker.
func ContainsRedaction(text string) bool {
	return strings.Contains(text, placeholder)
}
