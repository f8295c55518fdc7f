package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// parseJSON parses JSON from model output, with lightweight recovery for
// markdown code fences, surrounding prose, smart quotes, and trailing commas.
func parseJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	for _, base := range candidates[:len(candidates):len(candidates)] {
		if extracted := extractBalancedJSON(base); extracted != "" && extracted != base {
			candidates = append(candidates, extracted)
		}
	}
	for _, base := range candidates[:len(candidates):len(candidates)] {
		normalized := removeTrailingCommas(fixSwallowedKeyQuotes(normalizeQuotes(base)))
		if normalized != base {
			candidates = append(candidates, normalized)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize structured output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractBalancedJSON finds the first balanced top-level {...} or [...]
// in the content, tracking string literals and escapes.
func extractBalancedJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	start := -1
	var open, close byte
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if trimmed[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(trimmed); i++ {
		ch := trimmed[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == open:
			depth++
		case !inString && ch == close:
			depth--
			if depth == 0 {
				return strings.TrimSpace(trimmed[start : i+1])
			}
		}
	}
	return ""
}

// quoteReplacer maps typographic quotes emitted by some models to ASCII.
var quoteReplacer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"‘", "'", // left single
	"’", "'", // right single
)

// normalizeQuotes replaces typographic quotes with ASCII equivalents.
// Applied only as a late repair candidate, after the raw content fails to parse.
func normalizeQuotes(content string) string {
	return quoteReplacer.Replace(content)
}

// swallowedKeyQuote matches an object key whose closing quote was emitted
// after the colon ("key: "value") instead of before it. In well-formed
// JSON the quote directly follows the key, so the pattern cannot match.
var swallowedKeyQuote = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)\s*:\s*"`)

// fixSwallowedKeyQuotes restores the closing quote on keys written as
// "key: "value".
func fixSwallowedKeyQuotes(content string) string {
	return swallowedKeyQuote.ReplaceAllString(content, `"$1": "`)
}

// removeTrailingCommas strips commas that directly precede a closing brace
// or bracket, outside string literals.
func removeTrailingCommas(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	inString := false
	escaped := false
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if escaped {
			b.WriteByte(ch)
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			b.WriteByte(ch)
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			b.WriteByte(ch)
			continue
		}
		if ch == ',' && !inString {
			// Look ahead past whitespace for a closing delimiter.
			j := i + 1
			for j < len(content) && (content[j] == ' ' || content[j] == '\t' || content[j] == '\n' || content[j] == '\r') {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// RepairPrompt builds the single re-prompt sent when a structured response
// fails to parse or validate.
func RepairPrompt(schemaRaw json.RawMessage, lastOutput string, issue error) string {
	schemaText := string(schemaRaw)
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > 12000 {
		lastOutput = lastOutput[:12000] + "\n...[truncated]"
	}

	return fmt.Sprintf(`Return ONLY valid JSON (no markdown, no commentary) that strictly conforms to this schema.

Schema:
%s

Your previous output:
%s

Validation issue:
%v`, schemaText, lastOutput, issue)
}
