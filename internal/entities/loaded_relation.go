package entities

// LoadedRelation is the resolved value of one relationship on one record:
// empty, a single record, or an ordered collection
type LoadedRelation struct {
	one  *Record
	many []*Record
	set  bool // true for collections, even empty ones
}

// EmptyRelation returns a relation that resolved to nothing
func EmptyRelation() LoadedRelation {
	return LoadedRelation{}
}

// OneRelation returns a relation holding a single record (empty when r is nil)
func OneRelation(r *Record) LoadedRelation {
	return LoadedRelation{one: r}
}

// ManyRelation returns a relation holding an ordered collection.
// The slice is copied so later changes by the caller are not observed.
func ManyRelation(rs []*Record) LoadedRelation {
	cp := make([]*Record, len(rs))
	copy(cp, rs)
	return LoadedRelation{many: cp, set: true}
}

// IsEmpty reports whether no record was resolved
func (l LoadedRelation) IsEmpty() bool {
	return l.one == nil && len(l.many) == 0
}

// IsCollection reports whether the relation was resolved as a collection
func (l LoadedRelation) IsCollection() bool {
	return l.set
}

// Record returns the single resolved record
func (l LoadedRelation) Record() (*Record, bool) {
	if l.one == nil {
		return nil, false
	}
	return l.one, true
}

// Records returns every resolved record in order
func (l LoadedRelation) Records() []*Record {
	if l.one != nil {
		return []*Record{l.one}
	}
	out := make([]*Record, len(l.many))
	copy(out, l.many)
	return out
}

// Len returns the number of resolved records
func (l LoadedRelation) Len() int {
	if l.one != nil {
		return 1
	}
	return len(l.many)
}
