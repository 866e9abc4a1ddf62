package parser

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/hwpipe/internal/ir"
)

// Lexer tokenizes the generic IR text.
type Lexer struct {
	file   string
	source string
	pos    int
	line   int
	column int
	tokens []Token
}

// NewLexer creates a new lexer for the given source. file is used for
// error locations only.
func NewLexer(file, source string) *Lexer {
	// Estimate ~1 token per 5 characters of source.
	est := len(source) / 5
	if est < 16 {
		est = 16
	}
	return &Lexer{
		file:   file,
		source: source,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, est),
	}
}

// Tokenize returns all tokens from the source, terminated by TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		l.skipSpaceAndComments()
		if l.isAtEnd() {
			break
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.tokens = append(l.tokens, Token{Kind: TokenEOF, Line: l.line, Column: l.column})
	return l.tokens, nil
}

func (l *Lexer) scanToken() error {
	line, col := l.line, l.column
	emit := func(kind TokenKind, text string) {
		l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: line, Column: col})
	}
	r := l.advance()
	switch r {
	case '(':
		emit(TokenLeftParen, "(")
	case ')':
		emit(TokenRightParen, ")")
	case '{':
		emit(TokenLeftBrace, "{")
	case '}':
		emit(TokenRightBrace, "}")
	case '[':
		emit(TokenLeftBracket, "[")
	case ']':
		emit(TokenRightBracket, "]")
	case '<':
		emit(TokenLess, "<")
	case '>':
		emit(TokenGreater, ">")
	case ',':
		emit(TokenComma, ",")
	case ':':
		emit(TokenColon, ":")
	case '=':
		emit(TokenEqual, "=")
	case '^':
		emit(TokenCaret, "^")
	case '%', '@', '!':
		name := l.identRest()
		if name == "" {
			return l.errorAt(line, col, "expected identifier after '%c'", r)
		}
		switch r {
		case '%':
			emit(TokenValueID, name)
		case '@':
			emit(TokenSymbolRef, name)
		default:
			emit(TokenDialectType, name)
		}
	case '"':
		text, err := l.stringLiteral(line, col)
		if err != nil {
			return err
		}
		emit(TokenString, text)
	case '-':
		if !isDigit(l.peek()) {
			return l.errorAt(line, col, "unexpected character '-'")
		}
		emit(TokenInt, "-"+l.digits())
	default:
		switch {
		case isDigit(r):
			emit(TokenInt, string(r)+l.digits())
		case r == '_' || unicode.IsLetter(r):
			emit(TokenIdent, string(r)+l.identRest())
		default:
			return l.errorAt(line, col, "unexpected character %q", r)
		}
	}
	return nil
}

func (l *Lexer) identRest() string {
	start := l.pos
	for !l.isAtEnd() {
		r := l.peek()
		if r == '_' || r == '$' || r == '.' || unicode.IsLetter(r) || isDigit(r) {
			l.advance()
			continue
		}
		break
	}
	return l.source[start:l.pos]
}

func (l *Lexer) digits() string {
	start := l.pos
	for isDigit(l.peek()) {
		l.advance()
	}
	return l.source[start:l.pos]
}

func (l *Lexer) stringLiteral(line, col int) (string, error) {
	start := l.pos - 1
	for {
		if l.isAtEnd() || l.peek() == '\n' {
			return "", l.errorAt(line, col, "unterminated string literal")
		}
		r := l.advance()
		if r == '\\' {
			if l.isAtEnd() {
				return "", l.errorAt(line, col, "unterminated string literal")
			}
			l.advance()
			continue
		}
		if r == '"' {
			break
		}
	}
	text, err := strconv.Unquote(l.source[start:l.pos])
	if err != nil {
		return "", l.errorAt(line, col, "invalid string literal: %v", err)
	}
	return text, nil
}

func (l *Lexer) skipSpaceAndComments() {
	for !l.isAtEnd() {
		r := l.peek()
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.advance()
		case r == '/' && l.peekNext() == '/':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.source[l.pos:])
	return r
}

func (l *Lexer) peekNext() rune {
	if l.isAtEnd() {
		return 0
	}
	_, size := utf8.DecodeRuneInString(l.source[l.pos:])
	if l.pos+size >= len(l.source) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.source[l.pos+size:])
	return r
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.source[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *Lexer) errorAt(line, col int, format string, args ...any) error {
	return newParseError(ir.FileLineCol(l.file, line, col), nil, format, args...)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
