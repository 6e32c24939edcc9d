package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when content holds no valid JSON, either bare
// or inside a markdown code fence.
var ErrParseFailed = errors.New("failed to parse response")

var fencePattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// ExtractJSON returns the JSON document in content. Bare JSON is returned
// as-is (trimmed); otherwise the first fenced block that holds valid JSON is
// used. Model output often wraps structured responses in a fence.
func ExtractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)

	if json.Valid([]byte(content)) {
		return json.RawMessage(content), nil
	}

	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		cleaned := strings.TrimSpace(m[1])
		if json.Valid([]byte(cleaned)) {
			return json.RawMessage(cleaned), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrParseFailed, truncate(content, 200))
}

// Parse extracts JSON from content and unmarshals it into T.
func Parse[T any](content string) (T, error) {
	var result T

	raw, err := ExtractJSON(content)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
