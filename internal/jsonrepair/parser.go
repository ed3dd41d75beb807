// Package jsonrepair turns loosely-structured LLM output into valid
// JSON, grounded on the original system's LLMJsonParser: a chain of
// increasingly permissive strategies, tried in order, the first
// success wins.
package jsonrepair

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Repairer is the optional last-resort strategy: ask an LLM to
// extract and fix the JSON embedded in text. Left nil, the chain
// simply stops after the cheaper strategies.
type Repairer interface {
	RepairJSON(ctx context.Context, text string) (string, error)
}

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")
	fencedBlock     = regexp.MustCompile("(?s)```\\s*\\n(.*?)\\n```")
	inlineBacktick  = regexp.MustCompile("`([^`]+)`")
	trailingComma   = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKey     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

var stripPrefixes = []string{"json:", "result:", "output:", "response:"}

// Parse turns text into v using each strategy in order until one
// succeeds. If every strategy fails and repairer is non-nil, the raw
// text is sent to it as a last resort.
func Parse(ctx context.Context, text string, v any, repairer Repairer) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("jsonrepair: empty input")
	}

	strategies := []func(string) (string, bool){
		tryDirect,
		tryFencedBlock,
		tryJSON5,
		tryCleanup,
	}

	for _, strategy := range strategies {
		candidate, ok := strategy(trimmed)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}

	if repairer == nil {
		return fmt.Errorf("jsonrepair: no strategy could parse input: %.200s", trimmed)
	}

	repaired, err := repairer.RepairJSON(ctx, trimmed)
	if err != nil {
		return fmt.Errorf("jsonrepair: llm repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("jsonrepair: llm repair produced invalid json: %w", err)
	}
	return nil
}

func tryDirect(text string) (string, bool) {
	return text, json.Valid([]byte(text))
}

func tryFencedBlock(text string) (string, bool) {
	for _, pattern := range []*regexp.Regexp{fencedJSONBlock, fencedBlock, inlineBacktick} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			candidate := strings.TrimSpace(m[1])
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}

func tryJSON5(text string) (string, bool) {
	var scratch any
	if err := json5.Unmarshal([]byte(text), &scratch); err != nil {
		return "", false
	}
	canonical, err := json.Marshal(scratch)
	if err != nil {
		return "", false
	}
	return string(canonical), true
}

func tryCleanup(text string) (string, bool) {
	cleaned := text
	lower := strings.ToLower(cleaned)
	for _, prefix := range stripPrefixes {
		if strings.HasPrefix(lower, prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			lower = strings.ToLower(cleaned)
		}
	}
	cleaned = strings.TrimSuffix(cleaned, "...")
	cleaned = strings.TrimSuffix(cleaned, ".")
	cleaned = fixFormatting(cleaned)
	return cleaned, json.Valid([]byte(cleaned))
}

// fixFormatting repairs the common mistakes LLMs make when asked for
// JSON: trailing commas and unquoted object keys. Unlike the Python
// original this does not attempt single-quote conversion, since Go's
// json5 fallback already accepts single-quoted strings.
func fixFormatting(text string) string {
	text = trailingComma.ReplaceAllString(text, "$1")
	text = unquotedKey.ReplaceAllString(text, `$1"$2"$3`)
	return text
}
