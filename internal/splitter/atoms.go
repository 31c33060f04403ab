package splitter

import (
	"regexp"
	"strings"
	"unicode"
)

const sentenceEnders = "。！？!?"

// One or more blank lines; the blank lines may carry list markers or indentation.
var paragraphBreak = regexp.MustCompile(`(?:\n[ \t\-\*\x{2022}]*\n)+`)

type atomizer func(text string) []string

func atomizerFor(g Granularity) atomizer {
	switch g {
	case Char:
		return charAtoms
	case Sentence:
		return sentenceAtoms
	case Paragraph:
		return paragraphAtoms
	}
	return nil
}

func charAtoms(text string) []string {
	rs := []rune(text)
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func paragraphAtoms(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentenceAtoms splits at 。！？!? and at any '.' that is not part of a
// decimal number. A trailing piece without a terminator is kept as its own
// sentence.
func sentenceAtoms(text string) []string {
	rs := []rune(normalizeSentenceText(text))

	var out []string
	start := 0
	for i, r := range rs {
		if !isSentenceEnd(r) && !(r == '.' && !digitAt(rs, i-1) && !digitAt(rs, i+1)) {
			continue
		}
		if s := strings.TrimSpace(string(rs[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(rs[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// normalizeSentenceText turns soft line breaks into spaces and collapses
// runs of horizontal whitespace. A '\n' stays when it ends a sentence or
// starts a blank line.
func normalizeSentenceText(text string) string {
	rs := []rune(text)

	var b strings.Builder
	b.Grow(len(text))
	inSpace := false
	for i, r := range rs {
		if r == '\n' && (i == 0 || !isSentenceEnd(rs[i-1])) && (i+1 == len(rs) || rs[i+1] != '\n') {
			r = ' '
		}
		if isHorizontalSpace(r) {
			if !inSpace {
				b.WriteRune(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func isSentenceEnd(r rune) bool {
	return strings.ContainsRune(sentenceEnders, r)
}

func isHorizontalSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\u3000', '\v', '\f', '\r':
		return true
	}
	return false
}

func digitAt(rs []rune, i int) bool {
	return i >= 0 && i < len(rs) && unicode.IsDigit(rs[i])
}
