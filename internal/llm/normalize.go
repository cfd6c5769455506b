package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedResponse means no JSON object could be recovered from model text.
var ErrMalformedResponse = errors.New("malformed model response")

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```$")
)

// StripFences removes a surrounding markdown code fence, labeled or not.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractObject returns the substring from the first '{' to the last '}'.
func ExtractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// Normalize recovers a JSON object from raw model output.
func Normalize(raw string) (map[string]any, error) {
	body, ok := ExtractObject(StripFences(raw))
	if !ok {
		return nil, fmt.Errorf("%w: no object boundaries", ErrMalformedResponse)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// NormalizeOr never fails: it returns fallback, and false, when raw holds no
// decodable object.
func NormalizeOr(raw string, fallback map[string]any) (map[string]any, bool) {
	out, err := Normalize(raw)
	if err != nil {
		return fallback, false
	}
	return out, true
}
