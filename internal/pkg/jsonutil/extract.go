package jsonutil

import (
	"strings"
)

const codeFence = "```"

// FencedBlock returns the body of the first ``` fenced block, without the
// optional language tag line (```json).
func FencedBlock(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	} else if tag := strings.TrimSpace(block); tag != "" && !strings.ContainsAny(tag, "[{") {
		return "", false
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	return block, true
}

// BraceSpan slices from the first '{' to the last '}'. It does no balancing;
// callers still have to validate the result as JSON.
func BraceSpan(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return strings.TrimSpace(raw[start : end+1]), true
}
