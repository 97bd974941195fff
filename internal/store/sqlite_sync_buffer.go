package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
)

// DatetimeFilter matches a nullable timestamp column.
// Set fields are combined with AND.
type DatetimeFilter struct {
	IsNull *bool
	Before *time.Time
	After  *time.Time
}

// StringFilter matches a nullable text column.
type StringFilter struct {
	EqualTo *string
	IsNull  *bool
}

// SyncBufferFilter selects sync buffer rows. Zero-valued fields match everything.
type SyncBufferFilter struct {
	IntegrationDatetime *DatetimeFilter
	IntegrationError    *StringFilter
	Action              *omsync.Action
	TableNames          []string
	Limit               int
}

func boolPtr(b bool) *bool { return &b }

// PendingFilter selects rows that still need integration.
func PendingFilter() SyncBufferFilter {
	return SyncBufferFilter{IntegrationDatetime: &DatetimeFilter{IsNull: boolPtr(true)}}
}

// FailedFilter selects rows whose last integration attempt failed.
func FailedFilter() SyncBufferFilter {
	return SyncBufferFilter{IntegrationError: &StringFilter{IsNull: boolPtr(false)}}
}

// IntegratedFilter selects rows that were applied successfully.
func IntegratedFilter() SyncBufferFilter {
	return SyncBufferFilter{IntegrationDatetime: &DatetimeFilter{IsNull: boolPtr(false)}}
}

func (f SyncBufferFilter) where() (string, []any) {
	var clauses []string
	var args []any

	if d := f.IntegrationDatetime; d != nil {
		if d.IsNull != nil {
			if *d.IsNull {
				clauses = append(clauses, "integration_datetime IS NULL")
			} else {
				clauses = append(clauses, "integration_datetime IS NOT NULL")
			}
		}
		if d.Before != nil {
			clauses = append(clauses, "integration_datetime < ?")
			args = append(args, formatTime(*d.Before))
		}
		if d.After != nil {
			clauses = append(clauses, "integration_datetime > ?")
			args = append(args, formatTime(*d.After))
		}
	}
	if e := f.IntegrationError; e != nil {
		if e.EqualTo != nil {
			clauses = append(clauses, "integration_error = ?")
			args = append(args, *e.EqualTo)
		}
		if e.IsNull != nil {
			if *e.IsNull {
				clauses = append(clauses, "integration_error IS NULL")
			} else {
				clauses = append(clauses, "integration_error IS NOT NULL")
			}
		}
	}
	if f.Action != nil {
		clauses = append(clauses, "action = ?")
		args = append(args, string(*f.Action))
	}
	if len(f.TableNames) > 0 {
		clauses = append(clauses, "table_name IN ("+placeholders(len(f.TableNames))+")")
		for _, n := range f.TableNames {
			args = append(args, n)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const upsertSyncBufferSQL = `
	INSERT OR REPLACE INTO sync_buffer (
		record_id, received_datetime, integration_datetime, integration_error,
		table_name, action, data
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

func syncBufferArgs(r *omsync.SyncBufferRecord) []any {
	var integrationError any
	if r.IntegrationError != nil {
		integrationError = *r.IntegrationError
	}
	return []any{
		r.RecordID, formatTime(r.ReceivedAt), formatNullableTime(r.IntegratedAt),
		integrationError, r.TableName, string(r.Action), string(r.Data),
	}
}

// UpsertSyncBuffer inserts the record, replacing any row with the same record_id.
func (q *queries) UpsertSyncBuffer(ctx context.Context, record *omsync.SyncBufferRecord) error {
	if _, err := q.conn.ExecContext(ctx, upsertSyncBufferSQL, syncBufferArgs(record)...); err != nil {
		return fmt.Errorf("upsert sync buffer %s: %w", record.RecordID, err)
	}
	return nil
}

// UpsertSyncBufferMany upserts each record in order.
func (q *queries) UpsertSyncBufferMany(ctx context.Context, records []omsync.SyncBufferRecord) error {
	for i := range records {
		if err := q.UpsertSyncBuffer(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

// QuerySyncBuffer returns rows matching filter in received order.
func (q *queries) QuerySyncBuffer(ctx context.Context, filter SyncBufferFilter) ([]omsync.SyncBufferRecord, error) {
	where, args := filter.where()
	query := `
		SELECT record_id, received_datetime, integration_datetime, integration_error,
		       table_name, action, data
		FROM sync_buffer` + where + `
		ORDER BY received_datetime ASC, rowid ASC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync buffer: %w", err)
	}
	defer rows.Close()

	records := make([]omsync.SyncBufferRecord, 0)
	for rows.Next() {
		r, err := scanSyncBuffer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// GetSyncBuffer returns a single row by record id.
func (q *queries) GetSyncBuffer(ctx context.Context, recordID string) (*omsync.SyncBufferRecord, error) {
	row := q.conn.QueryRowContext(ctx, `
		SELECT record_id, received_datetime, integration_datetime, integration_error,
		       table_name, action, data
		FROM sync_buffer WHERE record_id = ?`, recordID)

	r, err := scanSyncBuffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// scanSyncBuffer scans a row into a SyncBufferRecord, parsing timestamps.
func scanSyncBuffer(scanner interface{ Scan(...any) error }) (*omsync.SyncBufferRecord, error) {
	var r omsync.SyncBufferRecord
	var receivedAt, action, data string
	var integratedAt, integrationError sql.NullString

	err := scanner.Scan(&r.RecordID, &receivedAt, &integratedAt, &integrationError,
		&r.TableName, &action, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync buffer row: %w", err)
	}

	if r.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return nil, fmt.Errorf("parse received_datetime of %s: %w", r.RecordID, err)
	}
	if r.IntegratedAt, err = parseNullableTime(integratedAt); err != nil {
		return nil, fmt.Errorf("parse integration_datetime of %s: %w", r.RecordID, err)
	}
	if integrationError.Valid {
		msg := integrationError.String
		r.IntegrationError = &msg
	}
	r.Action = omsync.Action(action)
	r.Data = json.RawMessage(data)
	return &r, nil
}

// MarkIntegrated records a successful integration and clears any previous error.
func (q *queries) MarkIntegrated(ctx context.Context, recordID string, at time.Time) error {
	_, err := q.conn.ExecContext(ctx, `
		UPDATE sync_buffer SET integration_datetime = ?, integration_error = NULL
		WHERE record_id = ?
	`, formatTime(at), recordID)
	if err != nil {
		return fmt.Errorf("mark integrated %s: %w", recordID, err)
	}
	return nil
}

// MarkIntegrationError records a failed integration. The row stays pending.
func (q *queries) MarkIntegrationError(ctx context.Context, recordID string, message string) error {
	_, err := q.conn.ExecContext(ctx, `
		UPDATE sync_buffer SET integration_datetime = NULL, integration_error = ?
		WHERE record_id = ?
	`, message, recordID)
	if err != nil {
		return fmt.Errorf("mark integration error %s: %w", recordID, err)
	}
	return nil
}

// ClearSyncBuffer removes every buffered row. Returns the number removed.
func (q *queries) ClearSyncBuffer(ctx context.Context) (int64, error) {
	result, err := q.conn.ExecContext(ctx, `DELETE FROM sync_buffer`)
	if err != nil {
		return 0, fmt.Errorf("clear sync buffer: %w", err)
	}
	return result.RowsAffected()
}

// SyncBufferStats counts buffered rows by integration outcome.
func (q *queries) SyncBufferStats(ctx context.Context) (*types.BufferStats, error) {
	var s types.BufferStats
	err := q.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN integration_datetime IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN integration_datetime IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN integration_error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM sync_buffer
	`).Scan(&s.Total, &s.Pending, &s.Integrated, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("sync buffer stats: %w", err)
	}
	return &s, nil
}
