package llm

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse turns a model reply into a Result. A reasoning block ending in
// </think> and a surrounding code fence are removed first. When the rest is
// not a literal on its own, the first bracketed span that parses is used.
func Parse(text string) (Result, error) {
	body := stripFence(stripThink(text))

	if v, err := parseLiteral(body); err == nil {
		if res, ok := asResult(v); ok {
			return res, nil
		}
	}

	for _, span := range bracketSpans(body) {
		v, err := parseLiteral(span)
		if err != nil {
			continue
		}
		if res, ok := asResult(v); ok {
			return res, nil
		}
	}

	return nil, fmt.Errorf("%w: no dict or list in %q", ErrMalformedResponse, preview(text))
}

func stripThink(text string) string {
	if i := strings.LastIndex(text, "</think>"); i >= 0 {
		return text[i+len("</think>"):]
	}
	return text
}

// stripFence returns the body of the first ``` fence, dropping a language
// tag such as python, json or str. Text without a fence is returned trimmed.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	i := strings.Index(text, "```")
	if i < 0 {
		return text
	}
	rest := text[i+3:]

	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && isLangTag(rest[:nl]) {
		rest = rest[nl+1:]
	} else if isLangTag(rest) {
		rest = ""
	}
	if j := strings.Index(rest, "```"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

func isLangTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func asResult(v any) (Result, bool) {
	switch t := v.(type) {
	case map[string]any:
		return ObjectResult(t), true
	case []any:
		return ListResult(t), true
	}
	return nil, false
}

func preview(s string) string {
	const limit = 200
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
