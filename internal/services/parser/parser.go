package parser

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Parser parses the model DSL into an AST
type Parser struct {
	lexer   *Lexer
	current *Token
	peek    *Token
	errors  *multierror.Error
}

// NewParser creates a new Parser
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{lexer: lexer}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

// Parse is a shorthand for NewParser(NewLexer(input)).Parse()
func Parse(input string) (*SchemaAST, error) {
	return NewParser(NewLexer(input)).Parse()
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		p.errors = multierror.Append(p.errors, err)
		p.peek = &Token{Type: TOKEN_EOF}
	} else {
		p.peek = tok
	}
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = multierror.Append(p.errors, fmt.Errorf(format, args...))
}

// currentTokenIs checks if the current token is of the given type
func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

// peekTokenIs checks if the peek token is of the given type
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peek != nil && p.peek.Type == t
}

// expectPeek checks if the next token is of the expected type and advances
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(tokenNames[t])
	return false
}

// expectName advances over an identifier. Keywords are accepted as names
// so that columns such as "key" or "table" can be referenced.
func (p *Parser) expectName() (string, bool) {
	if p.peekTokenIs(TOKEN_IDENTIFIER) || p.peek.Type.isKeyword() {
		p.nextToken()
		return p.current.Value, true
	}
	p.peekError("name")
	return "", false
}

// peekError adds an error for unexpected peek token
func (p *Parser) peekError(expected string) {
	p.errorf("expected next token to be %s, got %s instead at %d:%d",
		expected, tokenNames[p.peek.Type], p.peek.Line, p.peek.Column)
}

// Parse parses the entire model file
func (p *Parser) Parse() (*SchemaAST, error) {
	schema := &SchemaAST{
		Entities: []*EntityAST{},
	}

	for !p.currentTokenIs(TOKEN_EOF) {
		if p.currentTokenIs(TOKEN_ENTITY) {
			entity := p.parseEntity()
			if entity != nil {
				schema.Entities = append(schema.Entities, entity)
			} else {
				p.skipToNextEntity()
			}
		} else {
			p.errorf("unexpected token %s at %d:%d, expected 'entity'",
				tokenNames[p.current.Type], p.current.Line, p.current.Column)
			p.nextToken()
		}
	}

	if err := p.errors.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("parse errors: %w", err)
	}

	return schema, nil
}

// skipToNextEntity recovers from an error inside an entity block
func (p *Parser) skipToNextEntity() {
	p.nextToken()
	for !p.currentTokenIs(TOKEN_EOF) && !p.currentTokenIs(TOKEN_ENTITY) {
		p.nextToken()
	}
}

// parseEntity parses an entity definition
func (p *Parser) parseEntity() *EntityAST {
	entity := &EntityAST{
		Relations: []*RelationAST{},
		Line:      p.current.Line,
	}

	// Expect identifier (entity name)
	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return nil
	}
	entity.Name = p.current.Value

	if !p.expectPeek(TOKEN_LBRACE) {
		return nil
	}

	// Parse entity body
	p.nextToken()
	for !p.currentTokenIs(TOKEN_RBRACE) && !p.currentTokenIs(TOKEN_EOF) {
		ok := true
		switch {
		case p.currentTokenIs(TOKEN_TABLE):
			entity.Table, ok = p.expectName()
		case p.currentTokenIs(TOKEN_KEY):
			entity.Key, ok = p.expectName()
		case p.currentTokenIs(TOKEN_RELATION):
			var relation *RelationAST
			if relation, ok = p.parseRelation(); ok {
				entity.Relations = append(entity.Relations, relation)
			}
		case p.currentTokenIs(TOKEN_WITH):
			var paths []string
			if paths, ok = p.parseWith(); ok {
				entity.With = append(entity.With, paths...)
			}
		case p.currentTokenIs(TOKEN_ENTITY):
			p.errorf("entity %s: missing '}' before next entity at %d:%d",
				entity.Name, p.current.Line, p.current.Column)
			return nil
		default:
			p.errorf("unexpected token %s in entity at %d:%d",
				tokenNames[p.current.Type], p.current.Line, p.current.Column)
		}
		if !ok {
			return nil
		}
		p.nextToken()
	}

	if !p.currentTokenIs(TOKEN_RBRACE) {
		p.errorf("expected '}' at end of entity %s, got %s at %d:%d",
			entity.Name, tokenNames[p.current.Type], p.current.Line, p.current.Column)
		return nil
	}

	p.nextToken()
	return entity
}

// parseRelation parses a relation definition and leaves current on its last token
// Syntax: relation <name> <kind> [Target] [(a -> b) | (type, id)] [where "cel"] [as "value"]
func (p *Parser) parseRelation() (*RelationAST, bool) {
	relation := &RelationAST{Line: p.current.Line}

	name, ok := p.expectName()
	if !ok {
		return nil, false
	}
	relation.Name = name

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return nil, false
	}
	relation.Kind = p.current.Value

	if p.peekTokenIs(TOKEN_IDENTIFIER) {
		p.nextToken()
		relation.Target = p.current.Value
	}

	if p.peekTokenIs(TOKEN_LPAREN) {
		p.nextToken()
		if !p.parseColumns(relation) {
			return nil, false
		}
	}

	for p.peekTokenIs(TOKEN_WHERE) || p.peekTokenIs(TOKEN_AS) {
		p.nextToken()
		clause := p.current.Type
		if !p.expectPeek(TOKEN_STRING) {
			return nil, false
		}
		if clause == TOKEN_WHERE {
			relation.Where = p.current.Value
		} else {
			relation.As = p.current.Value
		}
	}

	return relation, true
}

// parseColumns parses "(a -> b)" or "(type, id)"; current is "("
func (p *Parser) parseColumns(relation *RelationAST) bool {
	first, ok := p.expectName()
	if !ok {
		return false
	}

	switch {
	case p.peekTokenIs(TOKEN_ARROW):
		p.nextToken()
		second, ok := p.expectName()
		if !ok {
			return false
		}
		relation.LocalKey, relation.ForeignKey = first, second
	case p.peekTokenIs(TOKEN_COMMA):
		p.nextToken()
		second, ok := p.expectName()
		if !ok {
			return false
		}
		relation.TypeColumn, relation.IDColumn = first, second
	default:
		p.peekError("'->' or ','")
		return false
	}

	return p.expectPeek(TOKEN_RPAREN)
}

// parseWith parses "with a, b.c" and leaves current on the last segment
func (p *Parser) parseWith() ([]string, bool) {
	var paths []string
	for {
		path, ok := p.parsePath()
		if !ok {
			return nil, false
		}
		paths = append(paths, path)
		if !p.peekTokenIs(TOKEN_COMMA) {
			return paths, true
		}
		p.nextToken()
	}
}

func (p *Parser) parsePath() (string, bool) {
	var segments []string
	for {
		seg, ok := p.expectName()
		if !ok {
			return "", false
		}
		segments = append(segments, seg)
		if !p.peekTokenIs(TOKEN_DOT) {
			return strings.Join(segments, "."), true
		}
		p.nextToken()
	}
}
