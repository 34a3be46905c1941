package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls a JSON object out of raw LLM text: first it strips a
// fenced code block (```json ... ``` or ``` ... ```), falling back to
// bracket-matching the first balanced {...} span if no fence is present.
func extractJSON(raw string) (string, error) {
	if fenced, ok := stripFences(raw); ok {
		return fenced, nil
	}
	if bracketed, ok := bracketMatch(raw); ok {
		return bracketed, nil
	}
	return "", fmt.Errorf("planner: no JSON object found in response")
}

func stripFences(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start == -1 {
		return "", false
	}
	rest := raw[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || strings.EqualFold(firstLine, "json") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return body, true
}

func bracketMatch(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// parseResponse extracts and unmarshals a Response from raw LLM text.
func parseResponse(raw string) (Response, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal([]byte(jsonText), &resp); err != nil {
		return Response{}, fmt.Errorf("planner: unmarshaling response JSON: %w", err)
	}
	return resp, nil
}
