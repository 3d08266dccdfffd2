package parser

import (
	"fmt"

	"github.com/jinzhu/inflection"
	"github.com/stoewer/go-strcase"

	"github.com/asakaida/polyload/internal/entities"
)

// DefaultKey is the primary key column used when an entity does not declare one
const DefaultKey = "id"

// ASTToSchemas converts a validated SchemaAST into entity schemas, filling in
// table names, keys and relationship columns that were left implicit
func ASTToSchemas(ast *SchemaAST) ([]*entities.EntitySchema, error) {
	keys := make(map[string]string, len(ast.Entities))
	for _, e := range ast.Entities {
		keys[e.Name] = entityKey(e)
	}

	schemas := make([]*entities.EntitySchema, 0, len(ast.Entities))
	for _, entityAST := range ast.Entities {
		schema, err := convertEntity(entityAST, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to convert entity %s: %w", entityAST.Name, err)
		}
		schemas = append(schemas, schema)
	}

	return schemas, nil
}

// SchemasToAST converts entity schemas back into an AST with every column explicit
func SchemasToAST(schemas []*entities.EntitySchema) *SchemaAST {
	ast := &SchemaAST{
		Entities: make([]*EntityAST, 0, len(schemas)),
	}

	for _, schema := range schemas {
		entity := &EntityAST{
			Name:      schema.Name,
			Table:     schema.Table,
			Key:       schema.PrimaryKey,
			Relations: make([]*RelationAST, 0, len(schema.Relationships)),
			With:      append([]string(nil), schema.With...),
		}
		for _, rel := range schema.Relationships {
			entity.Relations = append(entity.Relations, convertRelationToAST(rel))
		}
		ast.Entities = append(ast.Entities, entity)
	}

	return ast
}

// DefaultTable derives a table name from an entity name
// Example: "BlogPost" → "blog_posts", "Category" → "categories"
func DefaultTable(entityName string) string {
	return inflection.Plural(strcase.SnakeCase(entityName))
}

func entityKey(e *EntityAST) string {
	if e.Key != "" {
		return e.Key
	}
	return DefaultKey
}

// convertEntity converts EntityAST to entities.EntitySchema
func convertEntity(ast *EntityAST, keys map[string]string) (*entities.EntitySchema, error) {
	schema := &entities.EntitySchema{
		Name:          ast.Name,
		Table:         ast.Table,
		PrimaryKey:    entityKey(ast),
		Relationships: make([]*entities.Relationship, 0, len(ast.Relations)),
		With:          append([]string(nil), ast.With...),
	}
	if schema.Table == "" {
		schema.Table = DefaultTable(ast.Name)
	}

	for _, relAST := range ast.Relations {
		rel, err := convertRelation(ast, relAST, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to convert relation %s: %w", relAST.Name, err)
		}
		schema.Relationships = append(schema.Relationships, rel)
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// convertRelation applies column defaults
//
//	to_one X      (<name>_id -> X key)
//	to_many X     (owner key -> <owner>_id)
//	morph_to      (<name>_type, <name>_id)
func convertRelation(owner *EntityAST, ast *RelationAST, keys map[string]string) (*entities.Relationship, error) {
	kind, err := entities.ParseRelationKind(ast.Kind)
	if err != nil {
		return nil, err
	}

	rel := &entities.Relationship{
		Name:       ast.Name,
		Kind:       kind,
		Target:     ast.Target,
		LocalKey:   ast.LocalKey,
		ForeignKey: ast.ForeignKey,
		MorphValue: ast.As,
		Where:      ast.Where,
	}

	switch kind {
	case entities.KindToOne:
		if rel.LocalKey == "" {
			rel.LocalKey = strcase.SnakeCase(ast.Name) + "_id"
		}
		if rel.ForeignKey == "" {
			rel.ForeignKey = targetKey(ast.Target, keys)
		}
	case entities.KindToMany:
		if rel.LocalKey == "" {
			rel.LocalKey = entityKey(owner)
		}
		if rel.ForeignKey == "" {
			rel.ForeignKey = strcase.SnakeCase(owner.Name) + "_id"
		}
	case entities.KindMorphOne, entities.KindMorphMany:
		rel.LocalKey = entityKey(owner)
		rel.TypeColumn = ast.TypeColumn
		rel.ForeignKey = ast.IDColumn
	case entities.KindMorphTo:
		base := strcase.SnakeCase(ast.Name)
		rel.TypeColumn = ast.TypeColumn
		rel.LocalKey = ast.IDColumn
		if rel.TypeColumn == "" {
			rel.TypeColumn = base + "_type"
		}
		if rel.LocalKey == "" {
			rel.LocalKey = base + "_id"
		}
	}

	return rel, nil
}

func targetKey(target string, keys map[string]string) string {
	if k, ok := keys[target]; ok {
		return k
	}
	return DefaultKey
}

// convertRelationToAST writes every column explicitly
func convertRelationToAST(rel *entities.Relationship) *RelationAST {
	ast := &RelationAST{
		Name:   rel.Name,
		Kind:   string(rel.Kind),
		Target: rel.Target,
		Where:  rel.Where,
		As:     rel.MorphValue,
	}
	switch rel.Kind {
	case entities.KindMorphOne, entities.KindMorphMany:
		ast.TypeColumn, ast.IDColumn = rel.TypeColumn, rel.ForeignKey
	case entities.KindMorphTo:
		ast.TypeColumn, ast.IDColumn = rel.TypeColumn, rel.LocalKey
	default:
		ast.LocalKey, ast.ForeignKey = rel.LocalKey, rel.ForeignKey
	}
	return ast
}
