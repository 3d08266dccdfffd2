package eagerload

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/asakaida/polyload/internal/entities"
	"github.com/asakaida/polyload/internal/repositories"
)

// resolve fetches relationship rel for owners (all of schema owner) and attaches
// the result to every one of them, empty results included
func (l *Loader) resolve(ctx context.Context, lc *loadContext, owner *entities.EntitySchema, rel *entities.Relationship, owners []*entities.Record) error {
	switch rel.Kind {
	case entities.KindToOne, entities.KindToMany:
		return l.resolveDirect(ctx, lc, rel, owners, nil)
	case entities.KindMorphOne, entities.KindMorphMany:
		value := rel.MorphValue
		if value == "" {
			value = owner.Name
		}
		return l.resolveDirect(ctx, lc, rel, owners, map[string]interface{}{rel.TypeColumn: value})
	case entities.KindMorphTo:
		return l.resolveMorphTo(ctx, lc, rel, owners)
	}
	return fmt.Errorf("relationship %s: unsupported kind %s", rel.Name, rel.Kind)
}

// resolveDirect handles every kind whose target schema is fixed by the declaration
// SQL: SELECT * FROM <target> WHERE <foreign key> IN (<local keys>) [AND <type column> = <owner>]
func (l *Loader) resolveDirect(ctx context.Context, lc *loadContext, rel *entities.Relationship, owners []*entities.Record, equals map[string]interface{}) error {
	target, ok := l.schemas.Lookup(rel.Target)
	if !ok {
		lc.log.Debug("target not registered",
			zap.String("relation", rel.Name),
			zap.String("target", rel.Target),
		)
		l.observer.ObserveUnresolved(rel.Name, rel.Target, len(owners))
		attachEmpty(owners, rel)
		return nil
	}

	related, err := l.fetchRelated(ctx, lc, target, rel, &repositories.FetchRequest{
		Table:   target.Table,
		Column:  rel.ForeignKey,
		Keys:    distinctKeys(owners, rel.LocalKey),
		Equals:  equals,
		OrderBy: target.PrimaryKey,
	})
	if err != nil {
		return err
	}

	attachMatches(owners, rel, rel.LocalKey, indexBy(related, rel.ForeignKey))
	return nil
}

// resolveMorphTo groups owners by their discriminator and issues one fetch per
// distinct registered discriminator. Owners whose discriminator is empty or
// unregistered get an empty relation.
func (l *Loader) resolveMorphTo(ctx context.Context, lc *loadContext, rel *entities.Relationship, owners []*entities.Record) error {
	for _, group := range groupByDiscriminator(owners, rel.TypeColumn) {
		if group.value == "" {
			attachEmpty(group.records, rel)
			continue
		}

		target, ok := l.schemas.Lookup(group.value)
		if !ok {
			lc.log.Debug("discriminator not registered",
				zap.String("relation", rel.Name),
				zap.String("discriminator", group.value),
				zap.Int("records", len(group.records)),
			)
			l.observer.ObserveUnresolved(rel.Name, group.value, len(group.records))
			attachEmpty(group.records, rel)
			continue
		}

		column := rel.ForeignKey
		if column == "" {
			column = target.PrimaryKey
		}

		related, err := l.fetchRelated(ctx, lc, target, rel, &repositories.FetchRequest{
			Table:   target.Table,
			Column:  column,
			Keys:    distinctKeys(group.records, rel.LocalKey),
			OrderBy: target.PrimaryKey,
		})
		if err != nil {
			return err
		}

		attachMatches(group.records, rel, rel.LocalKey, indexBy(related, column))
	}
	return nil
}

// fetchRelated runs one batched fetch and turns the rows into records of target.
// No fetch is issued for an empty key set.
func (l *Loader) fetchRelated(ctx context.Context, lc *loadContext, target *entities.EntitySchema, rel *entities.Relationship, req *repositories.FetchRequest) ([]*entities.Record, error) {
	if len(req.Keys) == 0 {
		return nil, nil
	}

	start := time.Now()
	rows, err := l.store.FetchByKeys(ctx, req)
	elapsed := time.Since(start)
	l.observer.ObserveFetch(req.Table, len(rows), elapsed, err)
	if err != nil {
		lc.log.Error("row store fetch failed",
			zap.String("relation", rel.Name),
			zap.String("table", req.Table),
			zap.Error(err),
		)
		return nil, err
	}

	lc.log.Debug("fetched related rows",
		zap.String("relation", rel.Name),
		zap.String("table", req.Table),
		zap.String("column", req.Column),
		zap.Int("keys", len(req.Keys)),
		zap.Int("rows", len(rows)),
		zap.Duration("duration", elapsed),
	)

	if rel.Where != "" {
		filter, err := l.rowFilter()
		if err != nil {
			return nil, err
		}
		rows, err = filter.Apply(rel.Where, rows)
		if err != nil {
			return nil, fmt.Errorf("relationship %s: %w", rel.Name, err)
		}
	}

	records := make([]*entities.Record, len(rows))
	for i, row := range rows {
		records[i] = entities.NewRecord(target, row)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return repositories.CompareKeys(records[i].Key(), records[j].Key()) < 0
	})
	return records, nil
}

type discriminatorGroup struct {
	value   string
	records []*entities.Record
}

// groupByDiscriminator keeps the order in which values first appear.
// Absent and null discriminators share the "" group.
func groupByDiscriminator(records []*entities.Record, column string) []*discriminatorGroup {
	var groups []*discriminatorGroup
	index := make(map[string]*discriminatorGroup)
	for _, r := range records {
		var value string
		if v, ok := r.Get(column); ok && v != nil {
			value = repositories.NormalizeKey(v)
		}
		g, ok := index[value]
		if !ok {
			g = &discriminatorGroup{value: value}
			index[value] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}
	return groups
}

// distinctKeys returns the non-null values of column, first occurrence wins
func distinctKeys(records []*entities.Record, column string) []interface{} {
	seen := make(map[string]bool, len(records))
	var keys []interface{}
	for _, r := range records {
		v, ok := r.Get(column)
		if !ok || v == nil {
			continue
		}
		k := repositories.NormalizeKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}

// indexBy groups records by the normalised value of column, keeping order
func indexBy(records []*entities.Record, column string) map[string][]*entities.Record {
	index := make(map[string][]*entities.Record)
	for _, r := range records {
		v, ok := r.Get(column)
		if !ok || v == nil {
			continue
		}
		k := repositories.NormalizeKey(v)
		index[k] = append(index[k], r)
	}
	return index
}

func attachMatches(owners []*entities.Record, rel *entities.Relationship, localKey string, index map[string][]*entities.Record) {
	for _, owner := range owners {
		var matches []*entities.Record
		if v, ok := owner.Get(localKey); ok && v != nil {
			matches = index[repositories.NormalizeKey(v)]
		}
		owner.Attach(rel.Name, relationOf(rel, matches))
	}
}

func attachEmpty(owners []*entities.Record, rel *entities.Relationship) {
	for _, owner := range owners {
		owner.Attach(rel.Name, relationOf(rel, nil))
	}
}

func relationOf(rel *entities.Relationship, matches []*entities.Record) entities.LoadedRelation {
	if rel.Kind.IsMany() {
		return entities.ManyRelation(matches)
	}
	if len(matches) == 0 {
		return entities.EmptyRelation()
	}
	return entities.OneRelation(matches[0])
}
