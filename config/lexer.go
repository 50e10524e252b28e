package config

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenWord
	tokenString
	tokenLBrace
	tokenRBrace
	tokenSemi
)

var tokenNames = map[tokenKind]string{
	tokenEOF:    "end of file",
	tokenWord:   "word",
	tokenString: "string",
	tokenLBrace: "'{'",
	tokenRBrace: "'}'",
	tokenSemi:   "';'",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

type token struct {
	kind tokenKind
	text string
	pos  Pos
}

func (t token) String() string {
	switch t.kind {
	case tokenWord:
		return fmt.Sprintf("word %q", t.text)
	case tokenString:
		return fmt.Sprintf("string %q", t.text)
	}
	return t.kind.String()
}

// lexer splits a configuration file into tokens. Words are runs of
// characters other than space, braces, semicolons, quotes and '#'.
type lexer struct {
	src  string
	file string
	off  int
	line int
	col  int
}

func newLexer(file, src string) *lexer {
	return &lexer{src: src, file: file, line: 1, col: 1}
}

func (l *lexer) pos() Pos {
	return Pos{File: l.file, Line: l.line, Col: l.col}
}

func (l *lexer) peekRune() (rune, int) {
	if l.off >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[l.off:])
}

func (l *lexer) advance() rune {
	r, n := l.peekRune()
	l.off += n
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		r, _ := l.peekRune()
		switch {
		case r == '#':
			for l.off < len(l.src) {
				if l.advance() == '\n' {
					break
				}
			}
		case unicode.IsSpace(r):
			l.advance()
		default:
			return
		}
	}
}

func isWordRune(r rune) bool {
	switch r {
	case '{', '}', ';', '"', '#':
		return false
	}
	return !unicode.IsSpace(r)
}

// next returns the next token. Malformed input yields an error positioned
// at the offending character.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	pos := l.pos()
	if l.off >= len(l.src) {
		return token{kind: tokenEOF, pos: pos}, nil
	}
	r, _ := l.peekRune()
	switch r {
	case '{':
		l.advance()
		return token{kind: tokenLBrace, text: "{", pos: pos}, nil
	case '}':
		l.advance()
		return token{kind: tokenRBrace, text: "}", pos: pos}, nil
	case ';':
		l.advance()
		return token{kind: tokenSemi, text: ";", pos: pos}, nil
	case '"':
		return l.quoted(pos)
	}
	start := l.off
	for l.off < len(l.src) {
		r, _ := l.peekRune()
		if !isWordRune(r) {
			break
		}
		l.advance()
	}
	return token{kind: tokenWord, text: l.src[start:l.off], pos: pos}, nil
}

func (l *lexer) quoted(pos Pos) (token, error) {
	l.advance()
	var b strings.Builder
	for {
		if l.off >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string")
		}
		r := l.advance()
		switch r {
		case '"':
			return token{kind: tokenString, text: b.String(), pos: pos}, nil
		case '\n':
			return token{}, fmt.Errorf("newline in string")
		case '\\':
			if l.off >= len(l.src) {
				return token{}, fmt.Errorf("unterminated string")
			}
			switch e := l.advance(); e {
			case '"', '\\':
				b.WriteRune(e)
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				return token{}, fmt.Errorf("unknown escape \\%c", e)
			}
		default:
			b.WriteRune(r)
		}
	}
}

// quote renders s so that the lexer reads it back as one string token.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
