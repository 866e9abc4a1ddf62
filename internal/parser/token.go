// Package parser reads the generic textual IR into a Module.
package parser

import "fmt"

// TokenKind represents the type of token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota

	TokenIdent       // firrtl.connect, true, loc, i8
	TokenValueID     // %name
	TokenSymbolRef   // @name
	TokenDialectType // !firrtl.uint
	TokenInt         // 42, -1
	TokenString      // "text"

	TokenLeftParen    // (
	TokenRightParen   // )
	TokenLeftBrace    // {
	TokenRightBrace   // }
	TokenLeftBracket  // [
	TokenRightBracket // ]
	TokenLess         // <
	TokenGreater      // >
	TokenComma        // ,
	TokenColon        // :
	TokenEqual        // =
	TokenCaret        // ^
)

var tokenNames = map[TokenKind]string{
	TokenEOF:          "end of input",
	TokenIdent:        "identifier",
	TokenValueID:      "value name",
	TokenSymbolRef:    "symbol reference",
	TokenDialectType:  "dialect type",
	TokenInt:          "integer",
	TokenString:       "string",
	TokenLeftParen:    "'('",
	TokenRightParen:   "')'",
	TokenLeftBrace:    "'{'",
	TokenRightBrace:   "'}'",
	TokenLeftBracket:  "'['",
	TokenRightBracket: "']'",
	TokenLess:         "'<'",
	TokenGreater:      "'>'",
	TokenComma:        "','",
	TokenColon:        "':'",
	TokenEqual:        "'='",
	TokenCaret:        "'^'",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexical token with its position.
// Text holds the identifier without its sigil (%, @, !) and strings
// already unquoted.
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Column int
}

func (t Token) describe() string {
	switch t.Kind {
	case TokenEOF:
		return t.Kind.String()
	case TokenValueID:
		return "'%" + t.Text + "'"
	case TokenSymbolRef:
		return "'@" + t.Text + "'"
	case TokenDialectType:
		return "'!" + t.Text + "'"
	case TokenString:
		return fmt.Sprintf("%q", t.Text)
	default:
		return "'" + t.Text + "'"
	}
}
