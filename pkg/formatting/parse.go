// Package formatting provides tolerant parsing of model output, which
// arrives as free text that usually, but not always, contains JSON.
package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when content cannot be parsed as JSON,
// either directly or from a markdown code fence.
var ErrParseFailed = errors.New("failed to parse response")

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// StripReasoning removes a leading reasoning block from model output.
// Models that emit <think>...</think> prefixes place the answer after the
// closing tag; content without the tag is returned unchanged.
func StripReasoning(content string) string {
	if idx := strings.LastIndex(content, "</think>"); idx != -1 {
		return content[idx+len("</think>"):]
	}
	return content
}

// Parse attempts to unmarshal content as JSON into T. A leading reasoning
// block is stripped first. If direct parsing fails, JSON is extracted from
// a markdown code fence and retried. Returns ErrParseFailed if both
// attempts fail.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(StripReasoning(content))

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	matches := jsonBlockRegex.FindStringSubmatch(content)
	if len(matches) >= 2 {
		cleaned := strings.TrimSpace(matches[1])
		if err := json.Unmarshal([]byte(cleaned), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, content)
}

// Result pairs a parse attempt with the raw response it came from. Parsed
// is nil when the response held no recoverable JSON; the raw text is kept
// either way so failed extractions remain inspectable.
type Result struct {
	Parsed any    `json:"parsed"`
	Raw    string `json:"raw_response"`
}

// ParseAny parses content into an arbitrary JSON value (object or array)
// and never fails: an unparseable response yields a Result with nil Parsed
// and the raw text preserved.
func ParseAny(content string) Result {
	parsed, err := Parse[any](content)
	if err != nil {
		return Result{Parsed: nil, Raw: content}
	}

	// A bare string is not a usable payload; treat it like a parse failure
	// so callers see the raw response instead.
	if _, ok := parsed.(string); ok {
		return Result{Parsed: nil, Raw: content}
	}

	return Result{Parsed: parsed, Raw: content}
}
