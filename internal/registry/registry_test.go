package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/asakaida/polyload/internal/entities"
)

func schema(name string) *entities.EntitySchema {
	return &entities.EntitySchema{Name: name, Table: name + "s", PrimaryKey: "id"}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	for _, name := range []string{"Post", "Comment", "User"} {
		if err := r.Register(schema(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	if got, ok := r.Lookup("Post"); !ok || got.Name != "Post" {
		t.Errorf("Lookup(Post) = %v, %v", got, ok)
	}
	if _, ok := r.Lookup("Video"); ok {
		t.Error("Lookup(Video) should miss")
	}
	if _, ok := r.Lookup("post"); ok {
		t.Error("discriminators are case sensitive")
	}

	if want := []string{"Comment", "Post", "User"}; !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("Names() = %v, want %v", r.Names(), want)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := New()
	first := schema("Post")
	second := schema("Post")
	second.Table = "articles"

	_ = r.Register(first)
	_ = r.Register(second)

	got, _ := r.Lookup("Post")
	if got.Table != "articles" || r.Len() != 1 {
		t.Errorf("expected the second registration to replace the first, got %+v", got)
	}
}

func TestRegistry_RejectsInvalidSchemas(t *testing.T) {
	r := New()

	tests := []struct {
		name   string
		schema *entities.EntitySchema
	}{
		{name: "nil", schema: nil},
		{name: "no table", schema: &entities.EntitySchema{Name: "Post", PrimaryKey: "id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.schema); !errors.Is(err, entities.ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
	if r.Len() != 0 {
		t.Errorf("invalid schemas must not be stored, got %v", r.Names())
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		_ = r.Register(schema(fmt.Sprintf("Entity%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := r.Lookup(fmt.Sprintf("Entity%d", i%10)); !ok {
				t.Errorf("Lookup(Entity%d) missed", i%10)
			}
		}(i)
	}
	wg.Wait()
}
