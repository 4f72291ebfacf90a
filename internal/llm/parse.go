package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	apperrors "repo-leaderboard/internal/errors"
)

var (
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	// Flat objects only; nested arrays of strings are fine.
	objectRe = regexp.MustCompile(`\{[^{}]*\}`)
)

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// ExtractArray returns the first-'[' to last-']' span of text.
func ExtractArray(text string) (string, bool) {
	return span(text, '[', ']')
}

// ExtractObject returns the first-'{' to last-'}' span of text.
func ExtractObject(text string) (string, bool) {
	return span(text, '{', '}')
}

func span(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// DecodeArray parses an LLM reply holding a JSON array of objects.
// When the array cannot be decoded as a whole, complete objects are salvaged
// one at a time; salvaged reports whether that happened.
func DecodeArray[T any](text string) (items []T, salvaged bool, err error) {
	text = StripFences(text)

	if arr, ok := ExtractArray(text); ok {
		if err := json.Unmarshal([]byte(arr), &items); err == nil {
			return items, false, nil
		}
		items = nil
	}

	start := strings.IndexByte(text, '[')
	if start < 0 {
		return nil, false, &apperrors.ParseError{Source: "llm array", Reason: "reply has no JSON array"}
	}
	for _, obj := range objectRe.FindAllString(text[start:], -1) {
		var item T
		if json.Unmarshal([]byte(obj), &item) == nil {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, false, &apperrors.ParseError{Source: "llm array", Reason: "no complete objects to salvage"}
	}
	return items, true, nil
}

// DecodeObject parses an LLM reply holding a single JSON object.
func DecodeObject[T any](text string) (T, error) {
	var out T
	obj, ok := ExtractObject(StripFences(text))
	if !ok {
		return out, &apperrors.ParseError{Source: "llm object", Reason: "reply has no JSON object"}
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return out, &apperrors.ParseError{Source: "llm object", Reason: "invalid JSON", Err: err}
	}
	return out, nil
}
