package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentenceAtoms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"no terminator", "just words", []string{"just words"}},
		{"cjk terminators", "你好。再见！真的吗？", []string{"你好。", "再见！", "真的吗？"}},
		{"decimal point is not a boundary", "Pi is 3.14 today. Yes", []string{"Pi is 3.14 today.", "Yes"}},
		{"version numbers stay whole", "Use v1.2.3 now! Ok", []string{"Use v1.2.3 now!", "Ok"}},
		{"soft break becomes space", "line one\nline two。\nnext", []string{"line one line two。", "next"}},
		{"whitespace collapses", "a\t\t b　　c.", []string{"a b c."}},
		{"repeated terminators", "Wait!! Go.", []string{"Wait!", "!", "Go."}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sentenceAtoms(tt.in))
		})
	}
}

func TestNormalizeSentenceText_KeepsBlankLines(t *testing.T) {
	// the first newline of a blank line survives; the second is a soft break
	assert.Equal(t, "a\n b", normalizeSentenceText("a\n\nb"))
}

func TestCharAtoms(t *testing.T) {
	assert.Equal(t, []string{"中", "a", " "}, charAtoms("中a "))
}
