package parser

// SchemaAST represents the parsed model file
type SchemaAST struct {
	Entities []*EntityAST
}

// EntityAST represents an entity definition in the AST
type EntityAST struct {
	Name      string
	Table     string // Empty when not declared
	Key       string // Empty when not declared
	Relations []*RelationAST
	With      []string // Dotted default eager-load paths
	Line      int
}

// RelationAST represents a relation definition in the AST
// Examples:
//
//	relation owner to_one User(user_id -> id)
//	relation likes morph_many Like(likeable_type, likeable_id) as "post"
//	relation likeable morph_to(likeable_type, likeable_id)
type RelationAST struct {
	Name   string
	Kind   string // to_one, to_many, morph_one, morph_many, morph_to
	Target string // Empty for morph_to

	// Arrow form: (LocalKey -> ForeignKey)
	LocalKey   string
	ForeignKey string

	// Pair form: (TypeColumn, IDColumn)
	TypeColumn string
	IDColumn   string

	Where string // CEL row filter
	As    string // Discriminator written by the owner side
	Line  int
}

// HasArrow reports whether the relation used the (local -> foreign) form
func (r *RelationAST) HasArrow() bool {
	return r.LocalKey != "" || r.ForeignKey != ""
}

// HasPair reports whether the relation used the (type, id) form
func (r *RelationAST) HasPair() bool {
	return r.TypeColumn != "" || r.IDColumn != ""
}
