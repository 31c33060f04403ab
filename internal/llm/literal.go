package llm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// parseLiteral reads one Python literal (dict, list, tuple, set, str, int,
// float, bool, None) and also accepts JSON, which models emit just as often.
// Dicts become map[string]any, sequences []any, ints int64, floats float64.
// encoding/json rejects single quotes, tuples and True/None, so it cannot
// stand in here.
func parseLiteral(text string) (any, error) {
	p := &literalParser{src: []rune(text)}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

type literalParser struct {
	src []rune
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: at offset %d: %s", ErrMalformedResponse, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) eof() bool { return p.pos >= len(p.src) }

func (p *literalParser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for !p.eof() {
		r := p.src[p.pos]
		if r == '#' {
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return
		}
		p.pos++
	}
}

func (p *literalParser) value() (any, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}
	switch r := p.peek(); {
	case r == '{':
		return p.dictOrSet()
	case r == '[':
		return p.sequence('[', ']')
	case r == '(':
		return p.sequence('(', ')')
	case r == '"' || r == '\'':
		return p.stringSeq(false)
	case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
		return p.number()
	case unicode.IsLetter(r):
		return p.word()
	default:
		return nil, p.errorf("unexpected character %q", r)
	}
}

func (p *literalParser) sequence(open, close rune) ([]any, error) {
	p.pos++ // open
	out := []any{}
	for {
		p.skipSpace()
		if p.peek() == close {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case close:
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or %q", close)
		}
	}
}

func (p *literalParser) dictOrSet() (any, error) {
	p.pos++ // {
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return map[string]any{}, nil
	}

	first, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ':' {
		// {a, b} is a set; it reads as a list.
		items := []any{first}
		for {
			switch p.peek() {
			case ',':
				p.pos++
				p.skipSpace()
				if p.peek() == '}' {
					p.pos++
					return items, nil
				}
				v, err := p.value()
				if err != nil {
					return nil, err
				}
				items = append(items, v)
				p.skipSpace()
			case '}':
				p.pos++
				return items, nil
			default:
				return nil, p.errorf("expected ',' or '}' in set")
			}
		}
	}

	out := map[string]any{}
	key := first
	for {
		p.pos++ // :
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out[keyString(key)] = v
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			if p.peek() == '}' {
				p.pos++
				return out, nil
			}
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or '}' in dict")
		}
		if key, err = p.value(); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' in dict")
		}
	}
}

func keyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case nil:
		return "None"
	default:
		return fmt.Sprint(v)
	}
}

// stringSeq reads one or more adjacent string literals and concatenates them.
func (p *literalParser) stringSeq(raw bool) (string, error) {
	var b strings.Builder
	for {
		s, err := p.stringLiteral(raw)
		if err != nil {
			return "", err
		}
		b.WriteString(s)

		save := p.pos
		p.skipSpace()
		raw = false
		if r := p.peek(); (r == 'r' || r == 'R') && p.pos+1 < len(p.src) && isQuote(p.src[p.pos+1]) {
			raw = true
			p.pos++
		} else if r == 'u' || r == 'U' {
			if p.pos+1 < len(p.src) && isQuote(p.src[p.pos+1]) {
				p.pos++
			}
		}
		if !isQuote(p.peek()) {
			p.pos = save
			return b.String(), nil
		}
	}
}

func isQuote(r rune) bool { return r == '"' || r == '\'' }

func (p *literalParser) stringLiteral(raw bool) (string, error) {
	q := p.peek()
	triple := p.pos+2 < len(p.src) && p.src[p.pos+1] == q && p.src[p.pos+2] == q
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string")
		}
		r := p.src[p.pos]
		if r == q {
			if !triple {
				p.pos++
				return b.String(), nil
			}
			if p.pos+2 < len(p.src) && p.src[p.pos+1] == q && p.src[p.pos+2] == q {
				p.pos += 3
				return b.String(), nil
			}
		}
		if r == '\n' && !triple {
			return "", p.errorf("newline in string")
		}
		if r == '\\' && p.pos+1 < len(p.src) {
			if raw {
				b.WriteRune(r)
				b.WriteRune(p.src[p.pos+1])
				p.pos += 2
				continue
			}
			if err := p.escape(&b); err != nil {
				return "", err
			}
			continue
		}
		b.WriteRune(r)
		p.pos++
	}
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	r := p.src[p.pos]
	p.pos++
	switch r {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case 'a':
		b.WriteByte('\a')
	case '0':
		b.WriteByte(0)
	case '\\', '\'', '"', '/':
		b.WriteRune(r)
	case '\n':
		// line continuation
	case 'x', 'u', 'U':
		width := map[rune]int{'x': 2, 'u': 4, 'U': 8}[r]
		if p.pos+width > len(p.src) {
			return p.errorf("short \\%c escape", r)
		}
		code, err := strconv.ParseUint(string(p.src[p.pos:p.pos+width]), 16, 32)
		if err != nil {
			return p.errorf("bad \\%c escape", r)
		}
		p.pos += width
		if r == 'u' && utf16.IsSurrogate(rune(code)) {
			b.WriteRune(p.lowSurrogate(rune(code)))
			return nil
		}
		b.WriteRune(rune(code))
	default:
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return nil
}

// lowSurrogate combines hi with a directly following \uXXXX low surrogate.
// A lone surrogate decodes to U+FFFD.
func (p *literalParser) lowSurrogate(hi rune) rune {
	if p.pos+6 > len(p.src) || p.src[p.pos] != '\\' || p.src[p.pos+1] != 'u' {
		return utf8.RuneError
	}
	lo, err := strconv.ParseUint(string(p.src[p.pos+2:p.pos+6]), 16, 32)
	if err != nil {
		return utf8.RuneError
	}
	dec := utf16.DecodeRune(hi, rune(lo))
	if dec == utf8.RuneError {
		return dec
	}
	p.pos += 6
	return dec
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	if r := p.peek(); r == '-' || r == '+' {
		p.pos++
	}
	isFloat := false
scan:
	for !p.eof() {
		r := p.src[p.pos]
		switch {
		case unicode.IsDigit(r) || r == '_':
		case r == '.' || r == 'e' || r == 'E':
			isFloat = true
		case (r == '-' || r == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E'):
		default:
			break scan
		}
		p.pos++
	}
	lit := strings.ReplaceAll(string(p.src[start:p.pos]), "_", "")
	if !isFloat {
		if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, p.errorf("bad number %q", lit)
	}
	return f, nil
}

func (p *literalParser) word() (any, error) {
	start := p.pos
	for !p.eof() && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	w := string(p.src[start:p.pos])

	// string prefixes: r'..', u'..', b'..'
	if isQuote(p.peek()) {
		switch strings.ToLower(w) {
		case "r", "br", "rb":
			return p.stringSeq(true)
		case "u", "b":
			return p.stringSeq(false)
		}
	}

	switch w {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	}
	p.pos = start
	return nil, p.errorf("unknown name %q", w)
}

// bracketSpans returns the balanced {...} and [...] spans of text in order of
// their opening bracket, skipping brackets inside quoted strings.
func bracketSpans(text string) []string {
	rs := []rune(text)
	var spans []string
	for i := 0; i < len(rs); i++ {
		if rs[i] != '{' && rs[i] != '[' {
			continue
		}
		if end := matchBracket(rs, i); end > i {
			spans = append(spans, string(rs[i:end+1]))
		}
	}
	return spans
}

func matchBracket(rs []rune, open int) int {
	var stack []rune
	var quote rune
	for i := open; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			switch r {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != r {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
