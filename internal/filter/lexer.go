package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseError reports a malformed filter or path. Position is the 1-based
// character offset of the offending fragment in the input.
type ParseError struct {
	Fragment string
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("invalid filter at position %d: %s", e.Position, e.Message)
	}
	return fmt.Sprintf("invalid filter at position %d near %q: %s", e.Position, e.Fragment, e.Message)
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenWord
	tokenString
	tokenNumber
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenDot
)

type token struct {
	kind tokenKind
	text string
	pos  int // 1-based offset of the first character
}

// lexer produces tokens over a filter or path string. Words cover attribute
// names, URN prefixes, operators, and the bare literals true/false/null;
// the parser decides which is which from context.
type lexer struct {
	input string
	off   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) errorf(pos int, fragment, format string, args ...any) *ParseError {
	return &ParseError{Fragment: fragment, Position: pos, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, error) {
	for l.off < len(l.input) && l.input[l.off] == ' ' {
		l.off++
	}
	if l.off >= len(l.input) {
		return token{kind: tokenEOF, pos: len(l.input) + 1}, nil
	}
	start := l.off
	c := l.input[l.off]
	switch c {
	case '(':
		l.off++
		return token{kind: tokenLParen, text: "(", pos: start + 1}, nil
	case ')':
		l.off++
		return token{kind: tokenRParen, text: ")", pos: start + 1}, nil
	case '[':
		l.off++
		return token{kind: tokenLBracket, text: "[", pos: start + 1}, nil
	case ']':
		l.off++
		return token{kind: tokenRBracket, text: "]", pos: start + 1}, nil
	case '.':
		l.off++
		return token{kind: tokenDot, text: ".", pos: start + 1}, nil
	case '"':
		return l.lexString()
	}
	if c == '-' || (c >= '0' && c <= '9') {
		return l.lexNumber()
	}
	if isWordStart(rune(c)) {
		return l.lexWord()
	}
	return token{}, l.errorf(start+1, string(c), "unexpected character")
}

func (l *lexer) lexString() (token, error) {
	start := l.off
	l.off++ // opening quote
	var b strings.Builder
	for l.off < len(l.input) {
		c := l.input[l.off]
		switch c {
		case '"':
			l.off++
			return token{kind: tokenString, text: b.String(), pos: start + 1}, nil
		case '\\':
			l.off++
			if l.off >= len(l.input) {
				return token{}, l.errorf(start+1, l.input[start:], "unterminated string literal")
			}
			esc := l.input[l.off]
			switch esc {
			case '"', '\\', '/':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return token{}, l.errorf(l.off+1, string(esc), "unsupported escape sequence")
			}
			l.off++
		default:
			b.WriteByte(c)
			l.off++
		}
	}
	return token{}, l.errorf(start+1, l.input[start:], "unterminated string literal")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.off
	if l.input[l.off] == '-' {
		l.off++
	}
	seenDot := false
	for l.off < len(l.input) {
		c := l.input[l.off]
		if c >= '0' && c <= '9' {
			l.off++
			continue
		}
		if c == '.' && !seenDot {
			// A dot only belongs to the number when a digit follows;
			// otherwise it separates a sub-attribute.
			if l.off+1 < len(l.input) && l.input[l.off+1] >= '0' && l.input[l.off+1] <= '9' {
				seenDot = true
				l.off++
				continue
			}
		}
		break
	}
	text := l.input[start:l.off]
	if text == "-" {
		return token{}, l.errorf(start+1, text, "malformed number literal")
	}
	return token{kind: tokenNumber, text: text, pos: start + 1}, nil
}

// lexWord consumes an attribute name or URN segment. Colons are allowed so a
// fully-qualified path like urn:...:2.0:User:userName lexes as one word; the
// parser splits the prefix at the last colon.
func (l *lexer) lexWord() (token, error) {
	start := l.off
	for l.off < len(l.input) && isWordPart(rune(l.input[l.off])) {
		l.off++
	}
	// Trailing dots belong to sub-attribute separators handled by the parser,
	// but dots inside a URN (e.g. "2.0") must stay in the word. Consume
	// dot-led runs only while a colon appears later in the same run.
	for l.off < len(l.input) && l.input[l.off] == '.' {
		rest := l.input[l.off:]
		colon := strings.IndexByte(rest, ':')
		stop := strings.IndexAny(rest, " []()")
		if colon < 0 || (stop >= 0 && colon > stop) {
			break
		}
		l.off++
		for l.off < len(l.input) && isWordPart(rune(l.input[l.off])) {
			l.off++
		}
	}
	return token{kind: tokenWord, text: l.input[start:l.off], pos: start + 1}, nil
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isWordPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '$' || r == ':'
}
