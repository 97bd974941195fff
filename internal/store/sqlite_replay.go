package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// UpsertSchemaRow inserts or updates a row of a schema-described table from a JSON payload.
// Uses INSERT ... ON CONFLICT(id) DO UPDATE SET to avoid cascade-deleting FK children.
// Returns the owning store id when the schema declares a StoreColumn.
func (q *queries) UpsertSchemaRow(ctx context.Context, schema TableSchema, recordID string, payload []byte) (*string, error) {
	if !schema.Valid() {
		return nil, fmt.Errorf("%s: %w", schema.Name, ErrUnknownSchema)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if payloadID, ok := data["id"].(string); ok && payloadID != recordID {
		return nil, fmt.Errorf("payload id %q, record id %q: %w", payloadID, recordID, ErrIDMismatch)
	}
	data["id"] = recordID

	if schema.hasColumn("updated_at") {
		data["updated_at"] = formatTime(time.Now())
	}

	// Columns absent from the payload keep their table default on insert
	// and their current value on update.
	cols := make([]string, 0, len(schema.Columns))
	args := make([]interface{}, 0, len(schema.Columns))
	updateClauses := make([]string, 0, len(schema.Columns))

	for _, col := range schema.Columns {
		v, ok := data[col]
		if !ok {
			continue
		}
		cols = append(cols, col)
		args = append(args, mapValueToSQL(v))
		if col != "id" {
			updateClauses = append(updateClauses, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	conflict := "DO NOTHING"
	if len(updateClauses) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updateClauses, ", ")
	}
	sqlStr := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) %s",
		schema.Name,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		conflict,
	)

	if _, err := q.conn.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("upsert %s row %s: %w", schema.Name, recordID, err)
	}

	if schema.StoreColumn == "" {
		return nil, nil
	}
	if storeID, ok := data[schema.StoreColumn].(string); ok && storeID != "" {
		return &storeID, nil
	}
	return nil, nil
}

// DeleteSchemaRow performs soft or hard delete based on the schema's SoftDelete flag.
// Returns the owning store id of the deleted row when known.
func (q *queries) DeleteSchemaRow(ctx context.Context, schema TableSchema, recordID string) (*string, error) {
	if !schema.Valid() {
		return nil, fmt.Errorf("%s: %w", schema.Name, ErrUnknownSchema)
	}

	storeID, err := q.schemaRowStoreID(ctx, schema, recordID)
	if err != nil {
		return nil, err
	}

	if schema.SoftDelete {
		now := formatTime(time.Now())
		sqlStr := fmt.Sprintf(
			"UPDATE %s SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
			schema.Name,
		)
		if _, err := q.conn.ExecContext(ctx, sqlStr, now, now, recordID); err != nil {
			return nil, fmt.Errorf("soft delete %s row %s: %w", schema.Name, recordID, err)
		}
	} else {
		sqlStr := fmt.Sprintf("DELETE FROM %s WHERE id = ?", schema.Name)
		if _, err := q.conn.ExecContext(ctx, sqlStr, recordID); err != nil {
			return nil, fmt.Errorf("delete %s row %s: %w", schema.Name, recordID, err)
		}
	}
	return storeID, nil
}

// SchemaRowExists reports whether a live row with the id exists.
func (q *queries) SchemaRowExists(ctx context.Context, schema TableSchema, recordID string) (bool, error) {
	if !schema.Valid() {
		return false, fmt.Errorf("%s: %w", schema.Name, ErrUnknownSchema)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", schema.Name)
	if schema.SoftDelete {
		query += " AND deleted_at IS NULL"
	}
	var n int
	if err := q.conn.QueryRowContext(ctx, query, recordID).Scan(&n); err != nil {
		return false, fmt.Errorf("check %s row %s: %w", schema.Name, recordID, err)
	}
	return n > 0, nil
}

func (q *queries) schemaRowStoreID(ctx context.Context, schema TableSchema, recordID string) (*string, error) {
	if schema.StoreColumn == "" {
		return nil, nil
	}
	var storeID *string
	err := q.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", schema.StoreColumn, schema.Name),
		recordID,
	).Scan(&storeID)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("lookup store of %s row %s: %w", schema.Name, recordID, err)
	}
	return storeID, nil
}

// mapValueToSQL converts Go interface{} values to SQL-safe parameters.
func mapValueToSQL(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return v
	}
}

// UpsertLocalRow applies a local edit and records it in the changelog for push.
// Returns the changelog sequence assigned.
func (s *SQLiteStore) UpsertLocalRow(ctx context.Context, schema TableSchema, recordID string, payload []byte) (int64, error) {
	var seq int64
	err := s.InTx(ctx, func(tx *Tx) error {
		storeID, err := tx.UpsertSchemaRow(ctx, schema, recordID, payload)
		if err != nil {
			return err
		}
		seq, err = tx.AppendChangelog(ctx, &omsync.ChangelogEntry{
			TableName: schema.Name,
			RecordID:  recordID,
			RowAction: omsync.ActionUpsert,
			Payload:   payload,
			StoreID:   storeID,
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("local upsert %s %s: %w", schema.Name, recordID, err)
	}
	return seq, nil
}
