package parser

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/asakaida/polyload/internal/entities"
)

// Validator validates the parsed schema AST
type Validator struct {
	schema   *SchemaAST
	errors   *multierror.Error
	entities map[string]*EntityAST
}

// NewValidator creates a new Validator
func NewValidator(schema *SchemaAST) *Validator {
	entities := make(map[string]*EntityAST)
	for _, entity := range schema.Entities {
		if _, ok := entities[entity.Name]; !ok {
			entities[entity.Name] = entity
		}
	}
	return &Validator{
		schema:   schema,
		entities: entities,
	}
}

// Validate validates the schema and returns every problem found
func (v *Validator) Validate() error {
	v.validateUniqueEntityNames()
	for _, entity := range v.schema.Entities {
		v.validateUniqueRelationNames(entity)
		for _, relation := range entity.Relations {
			v.validateRelation(entity, relation)
		}
		v.validateWith(entity)
	}

	if err := v.errors.ErrorOrNil(); err != nil {
		return fmt.Errorf("validation errors: %w", err)
	}
	return nil
}

func (v *Validator) errorf(format string, args ...interface{}) {
	v.errors = multierror.Append(v.errors, fmt.Errorf(format, args...))
}

// validateUniqueEntityNames checks for duplicate entity names
func (v *Validator) validateUniqueEntityNames() {
	seen := make(map[string]bool)
	for _, entity := range v.schema.Entities {
		if seen[entity.Name] {
			v.errorf("duplicate entity name: %s", entity.Name)
		}
		seen[entity.Name] = true
	}
}

func (v *Validator) validateUniqueRelationNames(entity *EntityAST) {
	seen := make(map[string]bool)
	for _, relation := range entity.Relations {
		if seen[relation.Name] {
			v.errorf("entity %s: duplicate relation name: %s", entity.Name, relation.Name)
		}
		seen[relation.Name] = true
	}
}

// validateRelation checks kind, target and column form of one relation
func (v *Validator) validateRelation(entity *EntityAST, relation *RelationAST) {
	where := fmt.Sprintf("entity %s: relation %s", entity.Name, relation.Name)

	kind, err := entities.ParseRelationKind(relation.Kind)
	if err != nil {
		v.errorf("%s: %v", where, err)
		return
	}

	if kind == entities.KindMorphTo {
		if relation.Target != "" {
			v.errorf("%s: morph_to takes no target, got %s", where, relation.Target)
		}
	} else {
		if relation.Target == "" {
			v.errorf("%s: target entity is required", where)
		} else if _, ok := v.entities[relation.Target]; !ok {
			v.errorf("%s: undefined target entity: %s", where, relation.Target)
		}
	}

	switch kind {
	case entities.KindToOne, entities.KindToMany:
		if relation.HasPair() {
			v.errorf("%s: %s expects (local -> foreign), got (%s, %s)", where, kind, relation.TypeColumn, relation.IDColumn)
		}
	case entities.KindMorphOne, entities.KindMorphMany:
		if !relation.HasPair() {
			v.errorf("%s: %s requires (type_column, id_column)", where, kind)
		}
	case entities.KindMorphTo:
		if relation.HasArrow() {
			v.errorf("%s: morph_to expects (type_column, id_column)", where)
		}
	}

	if relation.As != "" && kind != entities.KindMorphOne && kind != entities.KindMorphMany {
		v.errorf("%s: 'as' is only allowed on morph_one and morph_many", where)
	}
	if strings.TrimSpace(relation.Where) == "" && relation.Where != "" {
		v.errorf("%s: where expression is blank", where)
	}
}

// validateWith checks that default paths resolve up to the first morph_to
func (v *Validator) validateWith(entity *EntityAST) {
	for _, path := range entity.With {
		current := entity
		for _, seg := range strings.Split(path, ".") {
			relation := findRelation(current, seg)
			if relation == nil {
				v.errorf("entity %s: with %s: %s does not declare relation %s", entity.Name, path, current.Name, seg)
				break
			}
			if relation.Kind == string(entities.KindMorphTo) {
				break
			}
			next, ok := v.entities[relation.Target]
			if !ok {
				break
			}
			current = next
		}
	}
}

func findRelation(entity *EntityAST, name string) *RelationAST {
	for _, r := range entity.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}
