package translator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// Schemas returns the central tables integrated column-for-column.
func Schemas() []store.TableSchema {
	return []store.TableSchema{
		{
			Name:    "name",
			Columns: []string{"id", "name", "code", "type", "updated_at"},
		},
		{
			Name:        "store",
			Columns:     []string{"id", "name_id", "code", "site_id", "updated_at"},
			StoreColumn: "id",
		},
		{
			Name:        "location",
			Columns:     []string{"id", "name", "code", "on_hold", "store_id", "updated_at"},
			StoreColumn: "store_id",
		},
		{
			Name:    "asset_category",
			Columns: []string{"id", "name", "class_id", "updated_at"},
		},
		{
			Name: "vaccine_course",
			Columns: []string{
				"id", "name", "program_id", "demographic_indicator_id", "coverage_rate",
				"is_active", "wastage_rate", "doses", "updated_at", "deleted_at",
			},
			SoftDelete: true,
		},
		{
			Name:    "document_registry",
			Columns: []string{"id", "document_type", "category", "context_id", "name", "updated_at"},
		},
	}
}

// SchemaTranslator integrates a table whose payload maps directly onto columns.
type SchemaTranslator struct {
	schema store.TableSchema
}

// NewSchemaTranslator creates a translator for schema.
func NewSchemaTranslator(schema store.TableSchema) *SchemaTranslator {
	return &SchemaTranslator{schema: schema}
}

// TableName returns the schema's table name.
func (t *SchemaTranslator) TableName() string {
	return t.schema.Name
}

// Integrate applies an upsert, delete or merge to the table.
func (t *SchemaTranslator) Integrate(ctx context.Context, w Writer, record *omsync.SyncBufferRecord) error {
	switch record.Action {
	case omsync.ActionUpsert:
		storeID, err := w.UpsertSchemaRow(ctx, t.schema, record.RecordID, record.Data)
		if err != nil {
			return err
		}
		return recordChange(ctx, w, t.schema.Name, record.RecordID, omsync.ActionUpsert, record.Data, storeID)

	case omsync.ActionDelete:
		return t.delete(ctx, w, record.RecordID)

	case omsync.ActionMerge:
		return t.merge(ctx, w, record.Data)

	default:
		return fmt.Errorf("%s: %w", record.Action, ErrUnsupportedAction)
	}
}

func (t *SchemaTranslator) delete(ctx context.Context, w Writer, recordID string) error {
	storeID, err := w.DeleteSchemaRow(ctx, t.schema, recordID)
	if err != nil {
		return err
	}
	return recordChange(ctx, w, t.schema.Name, recordID, omsync.ActionDelete, nil, storeID)
}

// merge removes the merged-away row once the kept row is present.
func (t *SchemaTranslator) merge(ctx context.Context, w Writer, payload json.RawMessage) error {
	var m omsync.MergeData
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMerge, err)
	}
	if m.KeepID == "" || m.DeleteID == "" {
		return fmt.Errorf("%w: merge_id_to_keep and merge_id_to_delete are required", ErrInvalidMerge)
	}
	if m.KeepID == m.DeleteID {
		return fmt.Errorf("%w: cannot merge %s into itself", ErrInvalidMerge, m.KeepID)
	}

	exists, err := w.SchemaRowExists(ctx, t.schema, m.KeepID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s %s to keep not found", ErrInvalidMerge, t.schema.Name, m.KeepID)
	}
	return t.delete(ctx, w, m.DeleteID)
}
