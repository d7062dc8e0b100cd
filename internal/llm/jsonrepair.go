package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LLM responses routinely wrap JSON in markdown fences or carry minor syntax
// damage (comments, trailing commas, raw control characters inside strings).
// ParseJSON applies a sequence of increasingly aggressive repairs, attempting
// a parse after each one, and only fails once every repair is exhausted.

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

type repairStep struct {
	name  string
	apply func(string) string
}

var repairSteps = []repairStep{
	{"strip_fences", stripFences},
	{"strip_comments", stripLineComments},
	{"strip_trailing_commas", stripTrailingCommas},
	{"escape_control_chars", escapeControlChars},
	{"extract_braces", extractOutermostBraces},
}

// ParseJSON unmarshals an LLM response into v, repairing common syntax damage
// first. On total failure it writes a debug bundle under debugDir (if
// non-empty) and returns the original parse error.
func ParseJSON(raw string, v any, debugDir string, logger *zap.Logger) error {
	cleaned := strings.TrimSpace(raw)

	firstErr := json.Unmarshal([]byte(cleaned), v)
	if firstErr == nil {
		return nil
	}

	for _, step := range repairSteps {
		repaired := step.apply(cleaned)
		if repaired == cleaned {
			continue
		}
		cleaned = repaired
		if err := json.Unmarshal([]byte(cleaned), v); err == nil {
			if logger != nil {
				logger.Debug("repaired LLM JSON", zap.String("step", step.name))
			}
			return nil
		}
	}

	finalErr := json.Unmarshal([]byte(cleaned), v)
	if finalErr == nil {
		return nil
	}

	if debugDir != "" {
		dumpParseFailure(debugDir, raw, cleaned, finalErr, logger)
	}
	return fmt.Errorf("parsing LLM response: %w", finalErr)
}

// stripFences extracts the body of the first markdown code fence. Text outside
// the fence is discarded.
func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

func stripLineComments(s string) string {
	return lineCommentRe.ReplaceAllString(s, "")
}

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// escapeControlChars escapes bare control characters inside string literals.
// Newlines and tabs inside strings are the usual offenders in model output.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case inString && r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r < 0x20:
			switch r {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// extractOutermostBraces returns the substring from the first { or [ to its
// matching close, dropping any prose the model wrapped around the JSON.
func extractOutermostBraces(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// dumpParseFailure writes the raw response, the cleaned attempt, and context
// around the parse error offset for offline inspection.
func dumpParseFailure(dir, raw, cleaned string, parseErr error, logger *zap.Logger) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	stamp := time.Now().UTC().Format("20060102T150405.000")
	base := filepath.Join(dir, "llm_parse_"+stamp)

	os.WriteFile(base+"_raw.txt", []byte(raw), 0o644)
	os.WriteFile(base+"_cleaned.txt", []byte(cleaned), 0o644)

	var report strings.Builder
	fmt.Fprintf(&report, "parse error: %v\n", parseErr)
	if syntaxErr, ok := parseErr.(*json.SyntaxError); ok {
		offset := int(syntaxErr.Offset)
		lo := max(0, offset-80)
		hi := min(len(cleaned), offset+80)
		fmt.Fprintf(&report, "offset: %d\ncontext:\n%s\n", offset, cleaned[lo:hi])
		fmt.Fprintf(&report, "hex around offset:\n% x\n", []byte(cleaned[lo:hi]))
	}
	os.WriteFile(base+"_error.txt", []byte(report.String()), 0o644)

	if logger != nil {
		logger.Warn("LLM response not parseable, debug bundle written",
			zap.String("path", base), zap.Error(parseErr))
	}
}
