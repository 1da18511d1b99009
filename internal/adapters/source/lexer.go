package source

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokPunct
	tokLiteral
)

type token struct {
	kind tokenKind
	text string
	line int
}

var (
	errUnterminatedComment = errors.New("unterminated block comment")
	errUnterminatedString  = errors.New("unterminated string literal")
)

// lexer splits C# source into identifiers, punctuation and opaque literals.
// Comments, preprocessor directives and literal contents are dropped, so braces
// inside them never reach the parser.
type lexer struct {
	src       []byte
	pos       int
	line      int
	lineStart bool
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src, line: 1, lineStart: true}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.lineStart = true
	}
	return c
}

func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, ok, err := l.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tok)
	}
}

func (l *lexer) next() (token, bool, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]

		switch {
		case c == '\n':
			l.advance()
			continue
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
			continue
		case c == '#' && l.lineStart:
			l.skipLine()
			continue
		case c == '/' && l.peekByte(1) == '/':
			l.skipLine()
			continue
		case c == '/' && l.peekByte(1) == '*':
			if err := l.skipBlockComment(); err != nil {
				return token{}, false, err
			}
			continue
		}

		l.lineStart = false
		line := l.line

		if tok, ok, err := l.literal(); ok || err != nil {
			return tok, ok, err
		}

		r, size := utf8.DecodeRune(l.src[l.pos:])
		if r == '_' || r == '@' || unicode.IsLetter(r) {
			start := l.pos
			l.pos += size
			for l.pos < len(l.src) {
				r, size = utf8.DecodeRune(l.src[l.pos:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				l.pos += size
			}
			text := string(l.src[start:l.pos])
			if len(text) > 1 && text[0] == '@' {
				text = text[1:]
			}
			return token{kind: tokIdent, text: text, line: line}, true, nil
		}

		if unicode.IsDigit(r) {
			for l.pos < len(l.src) {
				r, size = utf8.DecodeRune(l.src[l.pos:])
				if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				l.pos += size
			}
			return token{kind: tokLiteral, text: "0", line: line}, true, nil
		}

		l.pos += size
		text := string(r)
		if next := l.peekByte(0); next == '=' || (r == '=' && next == '>') {
			switch r {
			case '=', '!', '<', '>', '+', '-', '*', '/', '%', '&', '|', '^':
				text += string(next)
				l.pos++
			}
		}
		return token{kind: tokPunct, text: text, line: line}, true, nil
	}
	return token{}, false, nil
}

// literal consumes a string or character literal at the current position.
func (l *lexer) literal() (token, bool, error) {
	line := l.line
	start := l.pos

	// Prefixes: $, @, $@, @$, any number of $ before raw strings.
	i := l.pos
	dollars, verbatim := 0, false
	for i < len(l.src) && (l.src[i] == '$' || l.src[i] == '@') {
		if l.src[i] == '$' {
			dollars++
		} else {
			verbatim = true
		}
		i++
	}
	if i >= len(l.src) {
		return token{}, false, nil
	}

	switch l.src[i] {
	case '"':
		l.pos = i
		var err error
		switch {
		case !verbatim && l.peekByte(1) == '"' && l.peekByte(2) == '"':
			err = l.skipRawString()
		case verbatim:
			err = l.skipVerbatimString(dollars > 0)
		default:
			err = l.skipRegularString(dollars > 0)
		}
		if err != nil {
			return token{}, false, err
		}
		return token{kind: tokLiteral, text: `""`, line: line}, true, nil
	case '\'':
		if i != start {
			return token{}, false, nil
		}
		l.pos++
		for l.pos < len(l.src) {
			c := l.advance()
			if c == '\\' && l.pos < len(l.src) {
				l.advance()
				continue
			}
			if c == '\'' || c == '\n' {
				return token{kind: tokLiteral, text: "''", line: line}, true, nil
			}
		}
		return token{}, false, errUnterminatedString
	}
	return token{}, false, nil
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) skipBlockComment() error {
	l.pos += 2
	for l.pos < len(l.src) {
		if l.src[l.pos] == '*' && l.peekByte(1) == '/' {
			l.pos += 2
			return nil
		}
		l.advance()
	}
	return errUnterminatedComment
}

// skipRegularString consumes "..." with backslash escapes; interpolation holes may
// contain nested literals.
func (l *lexer) skipRegularString(interpolated bool) error {
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
		case c == '"':
			l.pos++
			return nil
		case c == '\n':
			return errUnterminatedString
		case interpolated && c == '{' && l.peekByte(1) == '{':
			l.pos += 2
		case interpolated && c == '{':
			if err := l.skipHole(); err != nil {
				return err
			}
		default:
			l.pos++
		}
	}
	return errUnterminatedString
}

// skipVerbatimString consumes @"..." where "" escapes a quote and newlines are allowed.
func (l *lexer) skipVerbatimString(interpolated bool) error {
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '"' && l.peekByte(1) == '"':
			l.pos += 2
		case c == '"':
			l.pos++
			return nil
		case interpolated && c == '{' && l.peekByte(1) == '{':
			l.pos += 2
		case interpolated && c == '{':
			if err := l.skipHole(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
	return errUnterminatedString
}

// skipRawString consumes a """ raw literal closed by the same number of quotes.
func (l *lexer) skipRawString() error {
	quotes := 0
	for l.pos < len(l.src) && l.src[l.pos] == '"' {
		quotes++
		l.pos++
	}
	for l.pos < len(l.src) {
		if l.src[l.pos] != '"' {
			l.advance()
			continue
		}
		run := 0
		for l.pos < len(l.src) && l.src[l.pos] == '"' {
			run++
			l.pos++
		}
		if run >= quotes {
			return nil
		}
	}
	return errUnterminatedString
}

// skipHole consumes an interpolation hole {expr}, including nested literals and braces.
func (l *lexer) skipHole() error {
	depth := 0
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '{':
			depth++
			l.pos++
		case '}':
			depth--
			l.pos++
			if depth == 0 {
				return nil
			}
		case '"', '$', '@', '\'':
			if _, ok, err := l.literal(); err != nil {
				return err
			} else if !ok {
				l.pos++
			}
		default:
			l.advance()
		}
	}
	return errUnterminatedString
}
