// Package splitter divides text into size-bounded, overlapping chunks.
//
// Text is first cut into atoms (characters, sentences or paragraphs). Atoms
// are then packed greedily into chunks of at most ChunkSize runes, with the
// last Overlap atoms of a chunk repeated at the start of the next one. An atom
// longer than ChunkSize is cut on the right-most separator inside a
// ChunkSize window.
package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type Granularity string

const (
	Char      Granularity = "char"
	Sentence  Granularity = "sentence"
	Paragraph Granularity = "paragraph"
)

var (
	ErrInvalidChunkSize   = errors.New("chunk size must be positive")
	ErrInvalidOverlap     = errors.New("overlap units must be non-negative")
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// DefaultSeparators are tried in order when cutting an oversized atom.
// The empty separator means a hard cut at the window end.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Char, Sentence, Paragraph:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

type Option func(*Splitter)

// WithOverlap sets how many trailing atoms are repeated in the next chunk.
func WithOverlap(units int) Option {
	return func(s *Splitter) {
		s.overlap = units
	}
}

// WithSeparators replaces DefaultSeparators for cutting oversized atoms.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		s.separators = append([]string(nil), seps...)
	}
}

// WithSentinel appends a '.' to the input before splitting, so the last
// sentence always carries a terminator.
func WithSentinel(on bool) Option {
	return func(s *Splitter) {
		s.sentinel = on
	}
}

type Splitter struct {
	granularity Granularity
	chunkSize   int
	overlap     int
	separators  []string
	sentinel    bool
	atomize     atomizer
}

func New(g Granularity, chunkSize int, opts ...Option) (*Splitter, error) {
	s := &Splitter{
		granularity: g,
		chunkSize:   chunkSize,
		separators:  DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.atomize = atomizerFor(g); s.atomize == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGranularity, g)
	}
	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, s.chunkSize)
	}
	if s.overlap < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOverlap, s.overlap)
	}
	return s, nil
}

// Split is a one-shot helper around New and (*Splitter).Split.
func Split(text string, g Granularity, chunkSize, overlap int) ([]string, error) {
	s, err := New(g, chunkSize, WithOverlap(overlap))
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

func (s *Splitter) Granularity() Granularity { return s.granularity }
func (s *Splitter) ChunkSize() int           { return s.chunkSize }
func (s *Splitter) Overlap() int             { return s.overlap }

// Split returns the chunks of text in order. No chunk is blank.
func (s *Splitter) Split(text string) []string {
	if s.sentinel {
		text += "."
	}
	return s.assemble(s.atomize(text))
}

func (s *Splitter) glue() string {
	if s.granularity == Char {
		return ""
	}
	return " "
}

func (s *Splitter) join(units []string) string {
	return strings.Join(units, s.glue())
}

func (s *Splitter) joinedLen(units []string) int {
	n := 0
	for i, u := range units {
		n += utf8.RuneCountInString(u)
		if i > 0 {
			n += utf8.RuneCountInString(s.glue())
		}
	}
	return n
}

func (s *Splitter) assemble(units []string) []string {
	var (
		chunks []string
		buf    []string
		bufLen int
	)
	flush := func() {
		if len(buf) > 0 {
			chunks = append(chunks, s.join(buf))
		}
	}

	for _, u := range units {
		uLen := utf8.RuneCountInString(u)

		if uLen > s.chunkSize {
			flush()
			buf, bufLen = nil, 0

			parts := s.smartSplit(u)
			if s.granularity == Char && s.overlap > 0 && len(parts) > 1 {
				rs := []rune(u)
				k := min(s.overlap, len(rs))
				parts[0] = string(rs[:k]) + parts[0]
				parts[len(parts)-1] += string(rs[len(rs)-k:])
			}
			chunks = append(chunks, parts...)
			continue
		}

		extra := s.extra(buf)
		if bufLen+uLen+extra <= s.chunkSize {
			buf = append(buf, u)
			bufLen += uLen + extra
			continue
		}

		flush()
		buf = s.tail(buf)
		bufLen = s.joinedLen(buf)
		// Overlap atoms give way when they would push the next chunk past the bound.
		for len(buf) > 0 && bufLen+s.extra(buf)+uLen > s.chunkSize {
			buf = buf[1:]
			bufLen = s.joinedLen(buf)
		}
		extra = s.extra(buf)
		buf = append(buf, u)
		bufLen += uLen + extra
	}
	flush()

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Splitter) extra(buf []string) int {
	if len(buf) == 0 || s.granularity == Char {
		return 0
	}
	return 1
}

// tail returns a fresh copy of the last overlap atoms of units.
func (s *Splitter) tail(units []string) []string {
	if s.overlap == 0 || len(units) == 0 {
		return nil
	}
	k := min(s.overlap, len(units))
	return append([]string(nil), units[len(units)-k:]...)
}

// smartSplit cuts an oversized atom into windows of at most chunkSize runes,
// preferring the right-most separator inside each window.
func (s *Splitter) smartSplit(text string) []string {
	rs := []rune(text)
	if len(rs) <= s.chunkSize {
		return []string{text}
	}

	var parts []string
	start := 0
	for start < len(rs) {
		if len(rs)-start <= s.chunkSize {
			parts = append(parts, string(rs[start:]))
			break
		}

		windowEnd := start + s.chunkSize
		cut := windowEnd
		for _, sep := range s.separators {
			if idx := lastIndexRunes(rs, []rune(sep), start, windowEnd); idx > start {
				cut = idx + utf8.RuneCountInString(sep)
				break
			}
		}
		parts = append(parts, string(rs[start:cut]))
		if cut >= len(rs) {
			break
		}

		start = s.nextWindow(rs, start, cut)
	}
	return parts
}

// nextWindow returns where the window after rs[start:cut] begins. Char
// granularity backs up overlap runes. Sentence and paragraph granularity
// back up over the last overlap atoms of the emitted slice, but only when
// they are a strict suffix of it and the back-up stays within half a
// window; otherwise the next window starts at cut.
func (s *Splitter) nextWindow(rs []rune, start, cut int) int {
	if s.granularity == Char {
		return max(cut-s.overlap, start+1)
	}
	if s.overlap == 0 {
		return cut
	}

	atoms := s.atomize(string(rs[start:cut]))
	if len(atoms) <= s.overlap {
		return cut
	}
	tl := s.joinedLen(s.tail(atoms))
	if tl <= 0 || tl > s.chunkSize/2 || cut-tl <= start {
		return cut
	}
	return cut - tl
}

// lastIndexRunes finds the last sep fully inside rs[from:to]. An empty sep
// matches at to.
func lastIndexRunes(rs, sep []rune, from, to int) int {
	if len(sep) == 0 {
		return to
	}
	for i := to - len(sep); i >= from; i-- {
		match := true
		for j, r := range sep {
			if rs[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
