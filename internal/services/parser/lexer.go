package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Identifiers and literals
	TOKEN_IDENTIFIER
	TOKEN_STRING // String literals (quoted)

	// Keywords
	TOKEN_ENTITY
	TOKEN_TABLE
	TOKEN_KEY
	TOKEN_RELATION
	TOKEN_WITH
	TOKEN_WHERE
	TOKEN_AS

	// Operators
	TOKEN_ARROW // ->

	// Delimiters
	TOKEN_LBRACE
	TOKEN_RBRACE
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_DOT
	TOKEN_COMMA
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:    "ILLEGAL",
	TOKEN_EOF:        "EOF",
	TOKEN_IDENTIFIER: "IDENTIFIER",
	TOKEN_STRING:     "STRING",
	TOKEN_ENTITY:     "entity",
	TOKEN_TABLE:      "table",
	TOKEN_KEY:        "key",
	TOKEN_RELATION:   "relation",
	TOKEN_WITH:       "with",
	TOKEN_WHERE:      "where",
	TOKEN_AS:         "as",
	TOKEN_ARROW:      "->",
	TOKEN_LBRACE:     "{",
	TOKEN_RBRACE:     "}",
	TOKEN_LPAREN:     "(",
	TOKEN_RPAREN:     ")",
	TOKEN_DOT:        ".",
	TOKEN_COMMA:      ",",
}

var keywords = map[string]TokenType{
	"entity":   TOKEN_ENTITY,
	"table":    TOKEN_TABLE,
	"key":      TOKEN_KEY,
	"relation": TOKEN_RELATION,
	"with":     TOKEN_WITH,
	"where":    TOKEN_WHERE,
	"as":       TOKEN_AS,
}

// isKeyword reports whether t is one of the reserved words
func (t TokenType) isKeyword() bool {
	return t >= TOKEN_ENTITY && t <= TOKEN_AS
}

// Token represents a lexical token
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d:%d", typeName, t.Value, t.Line, t.Column)
}

// Lexer performs lexical analysis
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == ';' {
		l.readChar()
	}
}

// skipComment skips single-line comments starting with // or #
func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

func (l *Lexer) atComment() bool {
	return (l.ch == '/' && l.peekChar() == '/') || l.ch == '#'
}

// readIdentifier reads an identifier or keyword
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readString reads a string literal enclosed in double quotes.
// A backslash takes the next character literally.
func (l *Lexer) readString() (string, bool) {
	var sb strings.Builder
	for {
		l.readChar()
		switch l.ch {
		case 0:
			return sb.String(), false
		case '"':
			return sb.String(), true
		case '\\':
			l.readChar()
			if l.ch == 0 {
				return sb.String(), false
			}
			sb.WriteByte(l.ch)
		default:
			sb.WriteByte(l.ch)
		}
	}
}

// NextToken returns the next token
func (l *Lexer) NextToken() (*Token, error) {
	for {
		l.skipWhitespace()
		if !l.atComment() {
			break
		}
		l.skipComment()
	}

	var tok *Token
	line := l.line
	column := l.column

	switch l.ch {
	case '-':
		if l.peekChar() != '>' {
			return nil, fmt.Errorf("illegal character '-' at %d:%d, expected '->'", line, column)
		}
		l.readChar()
		tok = &Token{Type: TOKEN_ARROW, Value: "->", Line: line, Column: column}
		l.readChar()
	case '{':
		tok = &Token{Type: TOKEN_LBRACE, Value: "{", Line: line, Column: column}
		l.readChar()
	case '}':
		tok = &Token{Type: TOKEN_RBRACE, Value: "}", Line: line, Column: column}
		l.readChar()
	case '(':
		tok = &Token{Type: TOKEN_LPAREN, Value: "(", Line: line, Column: column}
		l.readChar()
	case ')':
		tok = &Token{Type: TOKEN_RPAREN, Value: ")", Line: line, Column: column}
		l.readChar()
	case '.':
		tok = &Token{Type: TOKEN_DOT, Value: ".", Line: line, Column: column}
		l.readChar()
	case ',':
		tok = &Token{Type: TOKEN_COMMA, Value: ",", Line: line, Column: column}
		l.readChar()
	case '"':
		value, ok := l.readString()
		if !ok {
			return nil, fmt.Errorf("unterminated string starting at %d:%d", line, column)
		}
		tok = &Token{Type: TOKEN_STRING, Value: value, Line: line, Column: column}
		l.readChar() // Skip closing quote
	case 0:
		tok = &Token{Type: TOKEN_EOF, Value: "", Line: line, Column: column}
	default:
		if isLetter(l.ch) {
			value := l.readIdentifier()
			tokenType := TOKEN_IDENTIFIER
			if kw, ok := keywords[value]; ok {
				tokenType = kw
			}
			return &Token{Type: tokenType, Value: value, Line: line, Column: column}, nil
		}
		ch := l.ch
		l.readChar()
		return nil, fmt.Errorf("illegal character '%c' at %d:%d", ch, line, column)
	}

	return tok, nil
}

// isLetter checks if a character may start an identifier
func isLetter(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch))
}

// isDigit checks if a character is a digit
func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}
