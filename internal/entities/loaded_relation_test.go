package entities

import "testing"

func TestLoadedRelation(t *testing.T) {
	a := NewRecord(userSchema, map[string]interface{}{"id": int64(1)})
	b := NewRecord(userSchema, map[string]interface{}{"id": int64(2)})

	tests := []struct {
		name         string
		rel          LoadedRelation
		isEmpty      bool
		isCollection bool
		length       int
	}{
		{name: "empty", rel: EmptyRelation(), isEmpty: true},
		{name: "one nil", rel: OneRelation(nil), isEmpty: true},
		{name: "one", rel: OneRelation(a), length: 1},
		{name: "many empty", rel: ManyRelation(nil), isEmpty: true, isCollection: true},
		{name: "many", rel: ManyRelation([]*Record{a, b}), isCollection: true, length: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.rel.IsEmpty() != tt.isEmpty {
				t.Errorf("IsEmpty() = %v, want %v", tt.rel.IsEmpty(), tt.isEmpty)
			}
			if tt.rel.IsCollection() != tt.isCollection {
				t.Errorf("IsCollection() = %v, want %v", tt.rel.IsCollection(), tt.isCollection)
			}
			if tt.rel.Len() != tt.length || len(tt.rel.Records()) != tt.length {
				t.Errorf("Len() = %d, Records() = %d, want %d", tt.rel.Len(), len(tt.rel.Records()), tt.length)
			}
		})
	}
}

func TestManyRelation_CopiesSlice(t *testing.T) {
	a := NewRecord(userSchema, map[string]interface{}{"id": int64(1)})
	b := NewRecord(userSchema, map[string]interface{}{"id": int64(2)})

	src := []*Record{a, b}
	rel := ManyRelation(src)
	src[0] = b

	if rel.Records()[0] != a {
		t.Error("relation observed a change to the source slice")
	}

	out := rel.Records()
	out[1] = a
	if rel.Records()[1] != b {
		t.Error("relation observed a change to Records()")
	}
}
