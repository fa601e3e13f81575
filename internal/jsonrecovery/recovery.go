// Package jsonrecovery implements the multi-strategy JSON recovery shared by
// every agent that parses LLM output (planner, web search query expansion,
// critic) — spec §7's content error category: "each agent applies
// multi-strategy JSON recovery (direct, code-fence extraction,
// brace-matching, repair), then falls back to a safe default value."
package jsonrecovery

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Parse attempts direct unmarshal, then code-fence stripping, then
// brace-matching extraction, then a gjson-based lenient repair pass. It
// returns the first strategy that succeeds, or the last error if all fail.
// Callers must fall back to their contract's safe default on error — this
// package never invents a default since that is contract-specific.
func Parse(raw string, out interface{}) error {
	var lastErr error

	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	} else {
		lastErr = err
	}

	if fenced := stripCodeFence(raw); fenced != raw {
		if err := json.Unmarshal([]byte(fenced), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if matched := braceMatch(raw); matched != "" {
		if err := json.Unmarshal([]byte(matched), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if repaired := repair(raw); repaired != "" {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return lastErr
}

// stripCodeFence removes a leading ```json / ``` fence and trailing ``` if
// present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// braceMatch extracts the first balanced {...} or [...] span, tolerating
// prose before/after the JSON payload (a common LLM habit).
func braceMatch(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// repair takes the brace-matched candidate (or the trimmed input), checks it
// with gjson.Valid, and when that fails removes a trailing comma written
// directly before a closing brace or bracket (",}" / ",]"). Other defects,
// such as single-quoted strings or a comma followed by whitespace before the
// closer, are not repaired.
func repair(s string) string {
	candidate := braceMatch(s)
	if candidate == "" {
		candidate = strings.TrimSpace(s)
	}
	if !gjson.Valid(candidate) {
		// gjson.Valid is strict JSON too; attempt a couple of cheap textual
		// fixes before giving up.
		candidate = strings.ReplaceAll(candidate, ",}", "}")
		candidate = strings.ReplaceAll(candidate, ",]", "]")
		if !gjson.Valid(candidate) {
			return ""
		}
	}
	result := gjson.Parse(candidate)
	normalized, err := json.Marshal(result.Value())
	if err != nil {
		return ""
	}
	return string(normalized)
}
