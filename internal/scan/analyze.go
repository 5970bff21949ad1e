package scan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// languageByExt covers the languages the review personas are tuned for.
// Unknown extensions are filtered out during scanning.
var languageByExt = map[string]string{
	".cs":    "csharp",
	".vb":    "vbnet",
	".java":  "java",
	".py":    "python",
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rb":    "ruby",
	".php":   "php",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".rs":    "rust",
	".kt":    "kotlin",
	".swift": "swift",
	".sql":   "sql",
	".sh":    "shell",
}

// LanguageFor maps a filename to its language, or "text" when unknown.
func LanguageFor(name string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return lang
	}
	return "text"
}

// decisionPoints are the branch keywords counted for the complexity score.
var decisionPoints = []string{
	"if ", "if(", "for ", "for(", "while ", "while(", "foreach", "switch",
	"case ", "catch", "elif ", "else if", "&&", "||", "?:",
}

// complexityScore approximates cyclomatic density: decision points per ten
// lines, clamped to [0, 10]. It is a scheduling signal, not a metric.
func complexityScore(content string) float64 {
	lines := strings.Count(content, "\n") + 1
	if strings.TrimSpace(content) == "" {
		return 0
	}
	points := 0
	for _, kw := range decisionPoints {
		points += strings.Count(content, kw)
	}
	score := float64(points) / float64(lines) * 10
	if score > 10 {
		score = 10
	}
	return score
}

var (
	funcPattern = regexp.MustCompile(`(?m)^\s*(?:public|private|protected|internal|static|async|def |func |function )`)
	typePattern = regexp.MustCompile(`(?m)\b(?:class|interface|struct|enum|module)\s+\w`)
	depPattern  = regexp.MustCompile(`(?m)^\s*(?:using|import|require|include|from)\b`)
)

// metadataSummary is the one-line structural digest embedded in prompts.
func metadataSummary(content, lang string) string {
	lines := strings.Count(content, "\n") + 1
	funcs := len(funcPattern.FindAllStringIndex(content, -1))
	types := len(typePattern.FindAllStringIndex(content, -1))
	deps := len(depPattern.FindAllStringIndex(content, -1))
	return fmt.Sprintf("%s, %d lines, %d declarations, %d types, %d imports", lang, lines, funcs, types, deps)
}

// legacyPatterns pair an indicator label with the pattern that triggers it.
// Labels surface verbatim in prompts and reports, so keep them readable.
var legacyPatterns = []struct {
	label   string
	pattern *regexp.Regexp
}{
	{"hardcoded credentials", regexp.MustCompile(`(?i)(?:password|passwd|secret|api[_-]?key|token)\s*[:=]\s*["'][^"']+["']`)},
	{"string-built SQL", regexp.MustCompile(`(?i)(?:SELECT|INSERT|UPDATE|DELETE)\b[^\n]*["']\s*(?:\+|%|\{)|f["'](?:SELECT|INSERT|UPDATE|DELETE)`)},
	{"plaintext password handling", regexp.MustCompile(`(?i)["']password["']\s*[:,]|\bpassword\b[^\n]*plain`)},
	{"global mutable state", regexp.MustCompile(`(?m)^\s*(?:public|internal)\s+static\s+(?:int|long|string|bool|var|List|Dictionary|Map)\b|^\s*global\s+\w`)},
	{"swallowed exceptions", regexp.MustCompile(`catch[^\n]*\)?\s*\{\s*\}|except[^\n]*:\s*(?:pass|\.\.\.)`)},
	{"TODO/FIXME backlog", regexp.MustCompile(`(?i)\b(?:TODO|FIXME|HACK|XXX)\b`)},
}

// legacyIndicators reports which risk patterns appear in the content, in a
// fixed order so identical files always carry identical indicators.
func legacyIndicators(content string) []string {
	var found []string
	for _, lp := range legacyPatterns {
		if lp.pattern.MatchString(content) {
			found = append(found, lp.label)
		}
	}
	sort.Strings(found)
	return found
}
