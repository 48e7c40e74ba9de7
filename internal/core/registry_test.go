package core

import (
	"errors"
	"reflect"
	"testing"
)

func stubDef(key string, order int) TableDefinition {
	return TableDefinition{
		Info: TableInfo{Key: key, Order: order},
		FieldSpecs: []FieldSpec{
			{Name: "id", Required: true},
			{Name: "created", SourceColumn: "created_at"},
		},
		Build: func(row RawRow) (Record, error) { return nil, nil },
	}
}

// resetRegistry empties the registry for the duration of the test.
func resetRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = make(map[string]TableDefinition)
	registryMu.Unlock()

	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

func TestRegister(t *testing.T) {
	resetRegistry(t)

	Register(stubDef("b", 2))
	Register(stubDef("a", 2))
	Register(stubDef("z", 1))

	if TableCount() != 3 {
		t.Fatalf("TableCount() = %d, want 3", TableCount())
	}

	if got, want := Keys(), []string{"z", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	def, ok := Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	if got, want := def.Info.Columns, []string{"id", "created"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Columns = %v, want %v", got, want)
	}
	if got, want := def.Info.ConflictKey, []string{"id"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ConflictKey = %v, want %v", got, want)
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	resetRegistry(t)

	Register(stubDef("dup", 1))

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register(stubDef("dup", 1))
}

func TestLookup(t *testing.T) {
	resetRegistry(t)

	Register(stubDef("known", 1))

	if _, err := Lookup("known"); err != nil {
		t.Errorf("Lookup(known) error = %v", err)
	}
	if _, err := Lookup("nonexistent_table"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Lookup(nonexistent_table) error = %v, want ErrUnknownTable", err)
	}
}

func TestQuoting(t *testing.T) {
	if got := QualifiedName("content", "film_work"); got != `"content"."film_work"` {
		t.Errorf("QualifiedName() = %s", got)
	}
	if got := QualifiedName("", "genre"); got != `"genre"` {
		t.Errorf("QualifiedName() without schema = %s", got)
	}
	if got := QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdentifier() = %s", got)
	}
	if got := QuoteColumns([]string{"id", "name"}); got != `"id", "name"` {
		t.Errorf("QuoteColumns() = %s", got)
	}
}
