// Package eagerload compiles dotted relationship paths into plan trees and
// resolves them against batches of records in as few fetches as possible.
package eagerload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/asakaida/polyload/internal/entities"
	"github.com/asakaida/polyload/internal/repositories"
)

// SchemaLookup resolves a discriminator to its schema
type SchemaLookup interface {
	Lookup(name string) (*entities.EntitySchema, bool)
}

// Observer receives loader events. Implementations must be safe for concurrent use.
type Observer interface {
	// ObserveFetch is called after every row store fetch
	ObserveFetch(table string, rows int, duration time.Duration, err error)

	// ObserveSkip is called when a schema in the batch does not declare the requested relationship
	ObserveSkip(entity, relation string, records int)

	// ObserveUnresolved is called when a discriminator has no registered schema
	ObserveUnresolved(relation, discriminator string, records int)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, int, time.Duration, error) {}
func (nopObserver) ObserveSkip(string, string, int)                {}
func (nopObserver) ObserveUnresolved(string, string, int)          {}

// Loader walks eager-load plans over record batches
type Loader struct {
	schemas     SchemaLookup
	store       repositories.RowStore
	logger      *zap.Logger
	observer    Observer
	concurrency int

	filterOnce sync.Once
	filter     *RowFilter
	filterErr  error
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger (default: no-op)
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver sets the event observer
func WithObserver(o Observer) Option {
	return func(l *Loader) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithFilter sets the row filter used for relationship where expressions
func WithFilter(f *RowFilter) Option {
	return func(l *Loader) {
		if f != nil {
			l.filterOnce.Do(func() { l.filter = f })
		}
	}
}

// WithConcurrency resolves up to n sibling relationships at once.
// n <= 1 keeps resolution sequential.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		l.concurrency = n
	}
}

// NewLoader creates a new Loader
func NewLoader(schemas SchemaLookup, store repositories.RowStore, opts ...Option) *Loader {
	l := &Loader{
		schemas:     schemas,
		store:       store,
		logger:      zap.NewNop(),
		observer:    nopObserver{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// loadContext carries per-invocation state
type loadContext struct {
	id  string
	log *zap.Logger
}

func (l *Loader) newLoadContext() *loadContext {
	id := uuid.NewString()
	return &loadContext{id: id, log: l.logger.With(zap.String("load_id", id))}
}

// Load compiles paths and resolves them on records.
// A malformed path fails before any fetch is issued.
func (l *Loader) Load(ctx context.Context, records []*entities.Record, paths ...string) error {
	plan, err := Compile(paths...)
	if err != nil {
		return err
	}
	return l.Execute(ctx, records, plan)
}

// Execute resolves every node of plan on records.
// Row store errors are returned as they were received.
func (l *Loader) Execute(ctx context.Context, records []*entities.Record, plan *PlanNode) error {
	if plan == nil || plan.IsLeaf() || len(records) == 0 {
		return nil
	}

	lc := l.newLoadContext()
	start := time.Now()
	lc.log.Debug("eager load started",
		zap.Int("records", len(records)),
		zap.Strings("paths", plan.Paths()),
	)

	if err := l.walk(ctx, lc, records, plan); err != nil {
		lc.log.Error("eager load failed", zap.Error(err))
		return err
	}

	lc.log.Debug("eager load finished", zap.Duration("duration", time.Since(start)))
	return nil
}

// Relation returns the relationship name of record, fetching it only when it
// has not been loaded yet
func (l *Loader) Relation(ctx context.Context, record *entities.Record, name string) (entities.LoadedRelation, error) {
	if rel, ok := record.Relation(name); ok {
		return rel, nil
	}

	schema := record.Schema()
	decl, ok := schema.GetRelationship(name)
	if !ok {
		return entities.LoadedRelation{}, fmt.Errorf("%w: %s.%s", ErrRelationshipNotDeclared, schema.Name, name)
	}

	lc := l.newLoadContext()
	if err := l.resolve(ctx, lc, schema, decl, []*entities.Record{record}); err != nil {
		return entities.LoadedRelation{}, err
	}

	rel, _ := record.Relation(name)
	return rel, nil
}

// walk resolves the children of node on owners and recurses
func (l *Loader) walk(ctx context.Context, lc *loadContext, owners []*entities.Record, node *PlanNode) error {
	children := node.Children()
	if len(owners) == 0 || len(children) == 0 {
		return nil
	}

	if l.concurrency <= 1 || len(children) == 1 {
		for _, child := range children {
			if err := l.loadNode(ctx, lc, owners, child); err != nil {
				return err
			}
		}
		return nil
	}

	p := pool.New().
		WithMaxGoroutines(l.concurrency).
		WithErrors().
		WithContext(ctx).
		WithFirstError().
		WithCancelOnError()
	for _, child := range children {
		child := child
		p.Go(func(ctx context.Context) error {
			return l.loadNode(ctx, lc, owners, child)
		})
	}
	return p.Wait()
}

// loadNode resolves one relationship on every owner that declares it, then
// recurses into the records it attached
func (l *Loader) loadNode(ctx context.Context, lc *loadContext, owners []*entities.Record, node *PlanNode) error {
	var next []*entities.Record

	for _, group := range groupBySchema(owners) {
		rel, ok := group.schema.GetRelationship(node.Name())
		if !ok {
			lc.log.Debug("relationship not declared, skipping",
				zap.String("entity", group.schema.Name),
				zap.String("relation", node.Name()),
				zap.Int("records", len(group.records)),
			)
			l.observer.ObserveSkip(group.schema.Name, node.Name(), len(group.records))
			continue
		}

		if pending := notLoaded(group.records, rel.Name); len(pending) > 0 {
			if err := l.resolve(ctx, lc, group.schema, rel, pending); err != nil {
				return err
			}
		}

		next = append(next, attached(group.records, rel.Name)...)
	}

	if node.IsLeaf() {
		return nil
	}
	return l.walk(ctx, lc, dedupe(next), node)
}

func (l *Loader) rowFilter() (*RowFilter, error) {
	l.filterOnce.Do(func() {
		l.filter, l.filterErr = NewRowFilter()
	})
	return l.filter, l.filterErr
}

type schemaGroup struct {
	schema  *entities.EntitySchema
	records []*entities.Record
}

// groupBySchema keeps the order in which schemas first appear
func groupBySchema(records []*entities.Record) []*schemaGroup {
	var groups []*schemaGroup
	index := make(map[*entities.EntitySchema]*schemaGroup)
	for _, r := range records {
		g, ok := index[r.Schema()]
		if !ok {
			g = &schemaGroup{schema: r.Schema()}
			index[r.Schema()] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}
	return groups
}

func notLoaded(records []*entities.Record, name string) []*entities.Record {
	var out []*entities.Record
	for _, r := range records {
		if !r.IsLoaded(name) {
			out = append(out, r)
		}
	}
	return out
}

// attached collects the records held by relation name on every owner
func attached(records []*entities.Record, name string) []*entities.Record {
	var out []*entities.Record
	for _, r := range records {
		if rel, ok := r.Relation(name); ok {
			out = append(out, rel.Records()...)
		}
	}
	return out
}

func dedupe(records []*entities.Record) []*entities.Record {
	seen := make(map[*entities.Record]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
