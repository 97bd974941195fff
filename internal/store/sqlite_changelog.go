package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

const insertChangelogSQL = `
	INSERT INTO changelog (table_name, record_id, row_action, payload, store_id, is_sync_update, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// ChangelogFilter selects changelog entries for push.
type ChangelogFilter struct {
	AfterSequence int64

	// When ScopeToStores is set only entries of StoreIDs, or entries
	// with no store, match. An empty StoreIDs then matches only storeless entries.
	ScopeToStores bool
	StoreIDs      []string

	ExcludeSyncUpdates bool
	Limit              int
}

// AppendChangelog appends a single entry to the changelog.
// Returns the assigned sequence number.
func (q *queries) AppendChangelog(ctx context.Context, entry *omsync.ChangelogEntry) (int64, error) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var storeID any
	if entry.StoreID != nil {
		storeID = *entry.StoreID
	}

	result, err := q.conn.ExecContext(ctx, insertChangelogSQL,
		entry.TableName, entry.RecordID, string(entry.RowAction),
		nullablePayload(entry.Payload), storeID, entry.IsSyncUpdate,
		formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("append changelog: %w", err)
	}
	return result.LastInsertId()
}

func (f ChangelogFilter) where() (string, []any) {
	clauses := []string{"sequence > ?"}
	args := []any{f.AfterSequence}

	if f.ScopeToStores {
		if len(f.StoreIDs) == 0 {
			clauses = append(clauses, "store_id IS NULL")
		} else {
			clauses = append(clauses, "(store_id IS NULL OR store_id IN ("+placeholders(len(f.StoreIDs))+"))")
			for _, id := range f.StoreIDs {
				args = append(args, id)
			}
		}
	}
	if f.ExcludeSyncUpdates {
		clauses = append(clauses, "is_sync_update = 0")
	}
	return strings.Join(clauses, " AND "), args
}

// CountChangelog returns the number of entries matching filter, ignoring Limit.
func (q *queries) CountChangelog(ctx context.Context, filter ChangelogFilter) (int64, error) {
	where, args := filter.where()
	var n int64
	if err := q.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM changelog WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changelog: %w", err)
	}
	return n, nil
}

// QueryChangelog returns entries matching filter in sequence order.
func (q *queries) QueryChangelog(ctx context.Context, filter ChangelogFilter) ([]omsync.ChangelogEntry, error) {
	where, args := filter.where()
	query := `
		SELECT sequence, table_name, record_id, row_action, payload, store_id, is_sync_update, created_at
		FROM changelog
		WHERE ` + where + `
		ORDER BY sequence ASC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	defer rows.Close()

	entries := make([]omsync.ChangelogEntry, 0)
	for rows.Next() {
		var e omsync.ChangelogEntry
		var action, createdAt string
		var payload, storeID sql.NullString

		if err := rows.Scan(&e.Sequence, &e.TableName, &e.RecordID, &action,
			&payload, &storeID, &e.IsSyncUpdate, &createdAt); err != nil {
			return nil, fmt.Errorf("scan changelog entry: %w", err)
		}

		e.RowAction = omsync.Action(action)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		if storeID.Valid {
			id := storeID.String
			e.StoreID = &id
		}
		var parseErr error
		if e.CreatedAt, parseErr = parseTime(createdAt); parseErr != nil {
			slog.Warn("changelog: failed to parse created_at", "value", createdAt, "error", parseErr)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestChangelogSequence returns the highest sequence number in the changelog.
// Returns 0 if the changelog is empty.
func (q *queries) LatestChangelogSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := q.conn.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM changelog`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get latest sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// nullablePayload converts a json.RawMessage to a sql-friendly value.
// Returns nil for empty/null payloads, string otherwise.
func nullablePayload(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
