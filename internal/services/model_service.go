package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/asakaida/polyload/internal/entities"
	"github.com/asakaida/polyload/internal/registry"
	"github.com/asakaida/polyload/internal/repositories"
	"github.com/asakaida/polyload/internal/services/eagerload"
	"github.com/asakaida/polyload/internal/services/parser"
	"go.uber.org/zap"
)

// ErrUnknownEntity is returned when a root entity is not registered
var ErrUnknownEntity = errors.New("unknown entity")

// ModelServiceInterface defines the interface for model loading operations
type ModelServiceInterface interface {
	LoadSchema(ctx context.Context, dsl string) ([]string, error)
	ValidateSchema(ctx context.Context, dsl string) error
	Find(ctx context.Context, entity string, keys []interface{}, with ...string) ([]*entities.Record, error)
	All(ctx context.Context, entity string, with ...string) ([]*entities.Record, error)
	Load(ctx context.Context, records []*entities.Record, with ...string) error
	Relation(ctx context.Context, record *entities.Record, name string) (entities.LoadedRelation, error)
	Plan(entity string, with ...string) (*eagerload.PlanNode, error)
	CheckPaths(entity string, with ...string) error
}

// ModelService ties the registry, the row store and the eager loader together
type ModelService struct {
	registry *registry.Registry
	store    repositories.RowStore
	filter   *eagerload.RowFilter
	loader   *eagerload.Loader
	logger   *zap.Logger
}

// NewModelService creates a new ModelService.
// opts are passed to the loader after the service's own filter and logger.
func NewModelService(reg *registry.Registry, store repositories.RowStore, logger *zap.Logger, opts ...eagerload.Option) (*ModelService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	filter, err := eagerload.NewRowFilter()
	if err != nil {
		return nil, fmt.Errorf("failed to create row filter: %w", err)
	}

	loaderOpts := append([]eagerload.Option{
		eagerload.WithFilter(filter),
		eagerload.WithLogger(logger),
	}, opts...)

	return &ModelService{
		registry: reg,
		store:    store,
		filter:   filter,
		loader:   eagerload.NewLoader(reg, store, loaderOpts...),
		logger:   logger,
	}, nil
}

// Loader returns the underlying eager loader
func (s *ModelService) Loader() *eagerload.Loader {
	return s.loader
}

// LoadSchema parses model DSL, validates it and registers every entity.
// Nothing is registered when any step fails.
func (s *ModelService) LoadSchema(ctx context.Context, dsl string) ([]string, error) {
	schemas, err := s.compileSchema(dsl)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(schemas))
	for _, schema := range schemas {
		if err := s.registry.Register(schema); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", schema.Name, err)
		}
		names = append(names, schema.Name)
	}

	s.logger.Info("schema loaded", zap.Strings("entities", names))
	return names, nil
}

// ValidateSchema checks model DSL without registering anything
func (s *ModelService) ValidateSchema(ctx context.Context, dsl string) error {
	_, err := s.compileSchema(dsl)
	return err
}

func (s *ModelService) compileSchema(dsl string) ([]*entities.EntitySchema, error) {
	if dsl == "" {
		return nil, fmt.Errorf("schema DSL is required")
	}

	ast, err := parser.Parse(dsl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSL: %w", err)
	}

	if err := parser.NewValidator(ast).Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	schemas, err := parser.ASTToSchemas(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}

	for _, schema := range schemas {
		for _, rel := range schema.Relationships {
			if rel.Where == "" {
				continue
			}
			if err := s.filter.Validate(rel.Where); err != nil {
				return nil, fmt.Errorf("%s.%s: invalid where: %w", schema.Name, rel.Name, err)
			}
		}
	}
	return schemas, nil
}

// Plan returns the compiled plan for entity: its default paths merged with with.
// Segments the schemas do not declare stay in the plan; the loader skips them.
func (s *ModelService) Plan(entity string, with ...string) (*eagerload.PlanNode, error) {
	_, plan, err := s.prepare(entity, with)
	return plan, err
}

// CheckPaths reports the first segment of the plan for entity that a
// statically known schema does not declare, as ErrRelationshipNotDeclared.
// Loading never calls it.
func (s *ModelService) CheckPaths(entity string, with ...string) error {
	schema, plan, err := s.prepare(entity, with)
	if err != nil {
		return err
	}
	return eagerload.CheckPlan(schema, plan, s.registry)
}

func (s *ModelService) prepare(entity string, with []string) (*entities.EntitySchema, *eagerload.PlanNode, error) {
	schema, ok := s.registry.Lookup(entity)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	plan, err := eagerload.PlanFor(schema, with...)
	if err != nil {
		return nil, nil, err
	}
	return schema, plan, nil
}

// Find fetches the roots of entity by primary key and eager loads them.
// Roots come back ordered by primary key; missing keys are skipped.
func (s *ModelService) Find(ctx context.Context, entity string, keys []interface{}, with ...string) ([]*entities.Record, error) {
	schema, plan, err := s.prepare(entity, with)
	if err != nil {
		return nil, err
	}

	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return []*entities.Record{}, nil
	}

	rows, err := s.store.FetchByKeys(ctx, &repositories.FetchRequest{
		Table:   schema.Table,
		Column:  schema.PrimaryKey,
		Keys:    keys,
		OrderBy: schema.PrimaryKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", entity, err)
	}

	return s.loadRoots(ctx, schema, plan, rows)
}

// All fetches every row of entity and eager loads them
func (s *ModelService) All(ctx context.Context, entity string, with ...string) ([]*entities.Record, error) {
	schema, plan, err := s.prepare(entity, with)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.FetchAll(ctx, schema.Table, schema.PrimaryKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", entity, err)
	}

	return s.loadRoots(ctx, schema, plan, rows)
}

func (s *ModelService) loadRoots(ctx context.Context, schema *entities.EntitySchema, plan *eagerload.PlanNode, rows []repositories.Row) ([]*entities.Record, error) {
	records := make([]*entities.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, entities.NewRecord(schema, row))
	}

	if err := s.loader.Execute(ctx, records, plan); err != nil {
		return nil, fmt.Errorf("failed to eager load %s: %w", schema.Name, err)
	}
	return records, nil
}

// Load eager loads paths onto records the caller already holds.
// Records may be of mixed entity types.
func (s *ModelService) Load(ctx context.Context, records []*entities.Record, with ...string) error {
	return s.loader.Load(ctx, records, with...)
}

// Relation returns one relation of record, loading it when needed
func (s *ModelService) Relation(ctx context.Context, record *entities.Record, name string) (entities.LoadedRelation, error) {
	return s.loader.Relation(ctx, record, name)
}

// Entities returns the registered entity names, sorted
func (s *ModelService) Entities() []string {
	return s.registry.Names()
}

func uniqueKeys(keys []interface{}) []interface{} {
	seen := make(map[string]bool, len(keys))
	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		if k == nil {
			continue
		}
		norm := repositories.NormalizeKey(k)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, k)
	}
	return out
}
