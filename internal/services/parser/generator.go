package parser

import (
	"fmt"
	"strings"
)

// Generator generates DSL from AST
type Generator struct {
	indent string
}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
	}
}

// Generate generates DSL string from SchemaAST
func (g *Generator) Generate(schema *SchemaAST) string {
	var sb strings.Builder

	for i, entity := range schema.Entities {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(g.generateEntity(entity))
	}
	if len(schema.Entities) > 0 {
		sb.WriteString("\n")
	}

	return sb.String()
}

// generateEntity generates DSL for an entity
func (g *Generator) generateEntity(entity *EntityAST) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("entity %s {\n", entity.Name))

	if entity.Table != "" {
		sb.WriteString(fmt.Sprintf("%stable %s\n", g.indent, entity.Table))
	}
	if entity.Key != "" {
		sb.WriteString(fmt.Sprintf("%skey %s\n", g.indent, entity.Key))
	}

	for _, relation := range entity.Relations {
		sb.WriteString(g.indent)
		sb.WriteString(g.generateRelation(relation))
		sb.WriteString("\n")
	}

	if len(entity.With) > 0 {
		sb.WriteString(fmt.Sprintf("%swith %s\n", g.indent, strings.Join(entity.With, ", ")))
	}

	sb.WriteString("}")

	return sb.String()
}

// generateRelation generates DSL for a relation
func (g *Generator) generateRelation(relation *RelationAST) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("relation %s %s", relation.Name, relation.Kind))
	if relation.Target != "" {
		sb.WriteString(" " + relation.Target)
	}

	switch {
	case relation.HasPair():
		sb.WriteString(fmt.Sprintf("(%s, %s)", relation.TypeColumn, relation.IDColumn))
	case relation.HasArrow():
		sb.WriteString(fmt.Sprintf("(%s -> %s)", relation.LocalKey, relation.ForeignKey))
	}

	if relation.Where != "" {
		sb.WriteString(" where " + quote(relation.Where))
	}
	if relation.As != "" {
		sb.WriteString(" as " + quote(relation.As))
	}

	return sb.String()
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
