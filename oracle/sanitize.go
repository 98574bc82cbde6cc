package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Local models wrap their answer in assorted non-JSON markup: reasoning
// blocks, markdown fences, chat-template tokens, and trailing commentary.
// Sanitation strips all of it before parsing; the tolerant parse below
// additionally repairs structural damage inside the JSON itself.

var (
	thinkBlock        = regexp.MustCompile(`(?s)<think>.*?</think>`)
	danglingThink     = regexp.MustCompile(`(?s)^.*</think>`)
	markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	chatTemplateToken = regexp.MustCompile(`<\|[a-z_]+\|>`)
	// strayElementMarker is a known artifact of local backends: a bare
	// marker token emitted between JSON elements, e.g.
	// {"K1": {...}} <sep> "K2": {...}.
	strayElementMarker = regexp.MustCompile(`\}\s*(?:<[a-z/][^>]*>|\n?\.\.\.\n?)\s*"`)
)

// Sanitize strips reasoning and wrapper markup and truncates trailing
// non-JSON content after the last closing brace.
func Sanitize(content string) string {
	content = strings.TrimSpace(content)

	// Reasoning blocks first: a complete <think>…</think> pair, or
	// everything up to a dangling closing tag.
	content = thinkBlock.ReplaceAllString(content, "")
	if strings.Contains(content, "</think>") {
		content = danglingThink.ReplaceAllString(content, "")
	}

	// Markdown code fences.
	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	// Chat-template control tokens.
	content = chatTemplateToken.ReplaceAllString(content, "")

	// Known stray-marker artifact between elements.
	content = strayElementMarker.ReplaceAllString(content, `}, "`)

	content = strings.TrimSpace(content)

	// Truncate anything after the last closing brace, and anything before
	// the first opening one.
	if start := strings.Index(content, "{"); start > 0 {
		content = content[start:]
	}
	if end := strings.LastIndex(content, "}"); end >= 0 && end < len(content)-1 {
		content = content[:end+1]
	}

	return content
}

// ParseResult parses a sanitized oracle response into a Result. Strict
// parse first; on failure, a structural-repair pass fixes the damage local
// models most often produce (missing commas between elements, invalid
// string escapes) and parses again.
func ParseResult(content string) (Result, error) {
	content = Sanitize(content)
	if content == "" {
		return nil, fmt.Errorf("empty response after sanitation")
	}

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err == nil {
		return res, nil
	}

	repaired := repairJSON(content)
	if err := json.Unmarshal([]byte(repaired), &res); err != nil {
		return nil, fmt.Errorf("parsing oracle response: %w (response: %s)", err, truncate(content, 300))
	}
	return res, nil
}

// repairJSON applies tolerant structural repairs: doubles invalid escape
// sequences inside strings and inserts commas between adjacent elements.
func repairJSON(content string) string {
	var fixed strings.Builder
	inQuote := false
	escaped := false

	for i := 0; i < len(content); i++ {
		c := content[i]

		if c == '"' && !escaped {
			inQuote = !inQuote
			fixed.WriteByte(c)
			continue
		}

		if inQuote && c == '\\' && !escaped {
			// Valid JSON escapes: \" \\ \/ \b \f \n \r \t \uXXXX.
			if i+1 < len(content) {
				next := content[i+1]
				if next == '"' || next == '\\' || next == '/' ||
					next == 'b' || next == 'f' || next == 'n' ||
					next == 'r' || next == 't' || next == 'u' {
					fixed.WriteByte(c)
					escaped = true
					continue
				}
			}
			// Invalid escape — double the backslash.
			fixed.WriteString(`\\`)
			continue
		}

		// Outside strings: a quote or brace directly following a closing
		// brace means a missing comma.
		if !inQuote && (c == '"' || c == '{') {
			if prev := lastNonSpace(&fixed); prev == '}' || prev == ']' {
				fixed.WriteByte(',')
			}
		}

		fixed.WriteByte(c)
		escaped = inQuote && c == '\\' && !escaped
	}

	return fixed.String()
}

// lastNonSpace returns the last non-whitespace byte written, or 0.
func lastNonSpace(b *strings.Builder) byte {
	s := b.String()
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
