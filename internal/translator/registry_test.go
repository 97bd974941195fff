package translator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
)

// stubTranslator is a minimal TableTranslator for testing the registry.
type stubTranslator struct {
	table string
}

func (s *stubTranslator) TableName() string { return s.table }
func (s *stubTranslator) Integrate(_ context.Context, _ Writer, _ *omsync.SyncBufferRecord) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore creates a fresh in-memory store.
func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// integrate runs one record through the registry inside a transaction,
// the way the integrator does.
func integrate(t *testing.T, s *store.SQLiteStore, r *Registry, rec omsync.SyncBufferRecord) error {
	t.Helper()
	tr, ok := r.Get(rec.TableName)
	if !ok {
		t.Fatalf("no translator for %s", rec.TableName)
	}
	ctx := context.Background()
	return s.InTx(ctx, func(tx *store.Tx) error {
		return tr.Integrate(ctx, tx, &rec)
	})
}

func TestRegister_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTranslator{table: "location"})

	got, ok := r.Get("location")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.TableName() != "location" {
		t.Errorf("Get().TableName() = %q, want %q", got.TableName(), "location")
	}
	if _, ok := r.Get("invoice"); ok {
		t.Error("Get(unregistered) ok = true, want false")
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTranslator{table: "location"})

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("Register duplicate did not panic")
		}
		msg, ok := rec.(string)
		if !ok {
			t.Fatalf("panic value = %T(%v), want string", rec, rec)
		}
		if msg != "translator already registered: location" {
			t.Errorf("panic message = %q", msg)
		}
	}()

	r.Register(&stubTranslator{table: "location"})
}

func TestRegisterDocument_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.RegisterDocument("Patient", PatientHandler{})

	defer func() {
		if recover() == nil {
			t.Fatal("RegisterDocument duplicate did not panic")
		}
	}()
	r.RegisterDocument("Patient", PatientHandler{})
}

func TestNewDefaultRegistry_Tables(t *testing.T) {
	r := NewDefaultRegistry(discardLogger())

	want := []string{"asset_category", "document", "document_registry", "location", "name", "store", "vaccine_course"}
	got := r.RegisteredTables()
	if len(got) != len(want) {
		t.Fatalf("RegisteredTables() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RegisteredTables()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, c := range []types.DocumentCategory{types.CategoryPatient, types.CategoryProgramEnrolment, types.CategoryEncounter, types.CategoryCustom} {
		if _, ok := r.CategoryHandler(c); !ok {
			t.Errorf("no handler for category %s", c)
		}
	}
}

func TestSchemas_AllValid(t *testing.T) {
	for _, s := range Schemas() {
		if !s.Valid() {
			t.Errorf("schema %s is not valid", s.Name)
		}
	}
}
