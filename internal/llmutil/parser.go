// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// fenceRegex matches an opening or closing markdown code fence, with an optional language tag.
// \x60 is a backtick; Go raw strings cannot contain one.
var fenceRegex = regexp.MustCompile("\x60\x60\x60[a-zA-Z]*")

// ErrNoJSONObject is returned when a response contains no balanced top-level object.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// ParseJSONResponse parses an LLM response into T. Code fences are stripped and the
// first balanced top-level JSON object is extracted before unmarshalling, so chatty
// preambles and trailing commentary are tolerated.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, err := ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(raw, 500))
	}
	return &result, nil
}

// StripCodeFences removes markdown fence markers but keeps their content.
func StripCodeFences(content string) string {
	return strings.TrimSpace(fenceRegex.ReplaceAllString(content, ""))
}

// ExtractJSONObject returns the first top-level {...} in s, matching braces while
// skipping over string literals.
func ExtractJSONObject(s string) (string, error) {
	s = StripCodeFences(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSONObject)
}

// truncateString shortens s for error messages.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
