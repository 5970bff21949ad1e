package service

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// ParseStrategy identifies which extraction strategy produced a result.
type ParseStrategy string

const (
	ParseDirect   ParseStrategy = "direct"   // raw text was already valid
	ParseFenced   ParseStrategy = "fenced"   // pulled from a markdown code fence
	ParseBalanced ParseStrategy = "balanced" // balanced-delimiter scan over prose
	ParseCleanup  ParseStrategy = "cleanup"  // comments/commas/quotes repaired
	ParseNone     ParseStrategy = "none"     // nothing extractable
)

// ExtractStructured pulls structured data out of free-form model output and
// unmarshals it into v. Strategies run in order from cheapest to most
// aggressive; the first that yields something v accepts wins. On total
// failure v is left untouched and ParseNone is returned; callers degrade to
// heuristic extraction rather than propagate.
func ExtractStructured(raw string, v any) ParseStrategy {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParseNone
	}

	if isStructuredStart(trimmed) && tryUnmarshal(trimmed, v) {
		return ParseDirect
	}

	for _, block := range fencedBlocks(trimmed) {
		if isStructuredStart(block) && tryUnmarshal(block, v) {
			return ParseFenced
		}
	}

	for _, span := range balancedSpans(trimmed) {
		if tryUnmarshal(span, v) {
			return ParseBalanced
		}
	}

	cleaned := aggressiveCleanup(trimmed)
	if isStructuredStart(cleaned) && tryUnmarshal(cleaned, v) {
		return ParseCleanup
	}
	for _, span := range balancedSpans(cleaned) {
		if tryUnmarshal(span, v) {
			return ParseCleanup
		}
	}

	return ParseNone
}

// tryUnmarshal decodes into a fresh value of v's type and copies over only on
// success, so a failed attempt never leaves partial state behind.
func tryUnmarshal(data string, v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	fresh := reflect.New(rv.Type().Elem())
	if err := json.Unmarshal([]byte(data), fresh.Interface()); err != nil {
		return false
	}
	rv.Elem().Set(fresh.Elem())
	return true
}

func isStructuredStart(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// fencedBlocks returns the contents of every markdown code fence, json-tagged
// fences first since models usually label the payload fence.
func fencedBlocks(s string) []string {
	var tagged, untagged []string
	for rest := s; ; {
		open := strings.Index(rest, "```")
		if open < 0 {
			break
		}
		rest = rest[open+3:]
		newline := strings.IndexByte(rest, '\n')
		if newline < 0 {
			break
		}
		tag := strings.TrimSpace(rest[:newline])
		rest = rest[newline+1:]
		closing := strings.Index(rest, "```")
		if closing < 0 {
			// Unterminated fence: take everything after the opener.
			body := strings.TrimSpace(rest)
			if body != "" {
				untagged = append(untagged, body)
			}
			break
		}
		body := strings.TrimSpace(rest[:closing])
		rest = rest[closing+3:]
		if body == "" {
			continue
		}
		if strings.EqualFold(tag, "json") {
			tagged = append(tagged, body)
		} else {
			untagged = append(untagged, body)
		}
	}
	return append(tagged, untagged...)
}

// balancedSpans scans for top-level {...} and [...] spans, tracking string
// and escape state so delimiters inside string literals don't count. Spans
// are returned largest first.
func balancedSpans(s string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	var openChar, closeChar byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch {
		case ch == '"' && depth > 0:
			inString = true
		case depth == 0 && (ch == '{' || ch == '['):
			start = i
			depth = 1
			openChar = ch
			if ch == '{' {
				closeChar = '}'
			} else {
				closeChar = ']'
			}
		case depth > 0 && ch == openChar:
			depth++
		case depth > 0 && ch == closeChar:
			depth--
			if depth == 0 {
				spans = append(spans, s[start:i+1])
				start = -1
			}
		}
	}

	// An unterminated span may still contain complete nested spans; rescan
	// past its opener.
	if depth > 0 && start >= 0 && start+1 < len(s) {
		spans = append(spans, balancedSpans(s[start+1:])...)
	}

	sort.SliceStable(spans, func(i, j int) bool { return len(spans[i]) > len(spans[j]) })
	return spans
}

// aggressiveCleanup repairs the common ways models mangle structured output:
// line and block comments, trailing commas, and typographic quotes.
func aggressiveCleanup(s string) string {
	s = replaceSmartQuotes(s)
	s = stripComments(s)
	s = stripTrailingCommas(s)
	return strings.TrimSpace(s)
}

func replaceSmartQuotes(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, // left double
		"”", `"`, // right double
		"‘", "'", // left single
		"’", "'", // right single
	)
	return replacer.Replace(s)
}

// stripComments removes // and /* */ comments outside string literals.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch {
		case ch == '"':
			inString = true
			b.WriteByte(ch)
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++ // skip the closing '/'
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// stripTrailingCommas drops commas that directly precede a closing brace or
// bracket, ignoring whitespace between them.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}
