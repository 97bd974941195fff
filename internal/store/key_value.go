package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetInt64 returns the integer stored under key, or nil when unset.
func (q *queries) GetInt64(ctx context.Context, key string) (*int64, error) {
	var v sql.NullInt64
	err := q.conn.QueryRowContext(ctx,
		`SELECT value_int FROM key_value_store WHERE id = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Int64, nil
}

// SetInt64 stores value under key. A nil value clears it.
func (q *queries) SetInt64(ctx context.Context, key string, value *int64) error {
	var arg any
	if value != nil {
		arg = *value
	}
	_, err := q.conn.ExecContext(ctx, `
		INSERT INTO key_value_store (id, value_int) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value_int = excluded.value_int
	`, key, arg)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetString returns the string stored under key, or nil when unset.
func (q *queries) GetString(ctx context.Context, key string) (*string, error) {
	var v sql.NullString
	err := q.conn.QueryRowContext(ctx,
		`SELECT value_string FROM key_value_store WHERE id = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.String, nil
}

// SetString stores value under key. A nil value clears it.
func (q *queries) SetString(ctx context.Context, key string, value *string) error {
	var arg any
	if value != nil {
		arg = *value
	}
	_, err := q.conn.ExecContext(ctx, `
		INSERT INTO key_value_store (id, value_string) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value_string = excluded.value_string
	`, key, arg)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
