package translator

import (
	"context"
	"encoding/json"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
)

// Writer is the store surface translators write through.
// Integration always passes a *store.Tx so a record's writes commit together.
type Writer interface {
	UpsertSchemaRow(ctx context.Context, schema store.TableSchema, recordID string, payload []byte) (*string, error)
	DeleteSchemaRow(ctx context.Context, schema store.TableSchema, recordID string) (*string, error)
	SchemaRowExists(ctx context.Context, schema store.TableSchema, recordID string) (bool, error)
	AppendChangelog(ctx context.Context, entry *omsync.ChangelogEntry) (int64, error)

	DocumentRegistryByType(ctx context.Context, documentType string) (*types.DocumentRegistryRow, error)
	InsertDocument(ctx context.Context, doc *types.Document) (bool, error)
	UpsertPatient(ctx context.Context, p *types.Patient) (bool, error)
	UpsertProgramEnrolment(ctx context.Context, e *types.ProgramEnrolment) error
	UpsertEncounter(ctx context.Context, e *types.Encounter) error
}

var _ Writer = (*store.Tx)(nil)

// TableTranslator converts buffered records of one table into domain rows.
type TableTranslator interface {
	// TableName returns the sync table name this translator handles.
	TableName() string

	// Integrate applies one buffered record. Returning an error leaves the
	// record pending with the error recorded against it.
	Integrate(ctx context.Context, w Writer, record *omsync.SyncBufferRecord) error
}

// DocumentHandler applies the derived-table effects of a document version.
type DocumentHandler interface {
	Integrate(ctx context.Context, w Writer, doc *types.Document) error
}

// DocumentHandlerFunc adapts a function to DocumentHandler.
type DocumentHandlerFunc func(ctx context.Context, w Writer, doc *types.Document) error

// Integrate calls f.
func (f DocumentHandlerFunc) Integrate(ctx context.Context, w Writer, doc *types.Document) error {
	return f(ctx, w, doc)
}

// recordChange appends a sync-originated changelog entry so push skips it.
func recordChange(ctx context.Context, w Writer, table, recordID string, action omsync.Action, payload json.RawMessage, storeID *string) error {
	_, err := w.AppendChangelog(ctx, &omsync.ChangelogEntry{
		TableName:    table,
		RecordID:     recordID,
		RowAction:    action,
		Payload:      payload,
		StoreID:      storeID,
		IsSyncUpdate: true,
	})
	return err
}
