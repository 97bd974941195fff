package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ria8651/open-msupply/internal/types"
)

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// SaveSyncLog inserts or fully replaces the sync log row with the same id.
func (q *queries) SaveSyncLog(ctx context.Context, l *types.SyncLog) error {
	_, err := q.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_log (
			id, started_datetime, finished_datetime,
			pull_central_started, pull_central_finished, pull_central_total, pull_central_done,
			integration_started, integration_finished, integration_total, integration_done,
			push_remote_started, push_remote_finished, push_remote_total, push_remote_done,
			error_stage, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, formatTime(l.StartedAt), formatNullableTime(l.FinishedAt),
		formatNullableTime(l.PullCentral.StartedAt), formatNullableTime(l.PullCentral.FinishedAt),
		nullableInt(l.PullCentral.Total), nullableInt(l.PullCentral.Done),
		formatNullableTime(l.Integration.StartedAt), formatNullableTime(l.Integration.FinishedAt),
		nullableInt(l.Integration.Total), nullableInt(l.Integration.Done),
		formatNullableTime(l.PushRemote.StartedAt), formatNullableTime(l.PushRemote.FinishedAt),
		nullableInt(l.PushRemote.Total), nullableInt(l.PushRemote.Done),
		l.ErrorStage, l.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("save sync log %s: %w", l.ID, err)
	}
	return nil
}

// LatestSyncLog returns the most recently started sync log.
func (q *queries) LatestSyncLog(ctx context.Context) (*types.SyncLog, error) {
	var l types.SyncLog
	var started string
	var finished sql.NullString
	var steps [3]struct {
		started, finished sql.NullString
		total, done       sql.NullInt64
	}

	err := q.conn.QueryRowContext(ctx, `
		SELECT id, started_datetime, finished_datetime,
			pull_central_started, pull_central_finished, pull_central_total, pull_central_done,
			integration_started, integration_finished, integration_total, integration_done,
			push_remote_started, push_remote_finished, push_remote_total, push_remote_done,
			error_stage, error_message
		FROM sync_log ORDER BY started_datetime DESC, id DESC LIMIT 1
	`).Scan(&l.ID, &started, &finished,
		&steps[0].started, &steps[0].finished, &steps[0].total, &steps[0].done,
		&steps[1].started, &steps[1].finished, &steps[1].total, &steps[1].done,
		&steps[2].started, &steps[2].finished, &steps[2].total, &steps[2].done,
		&l.ErrorStage, &l.ErrorMessage,
	)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest sync log: %w", err)
	}

	if l.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("parse started_datetime of %s: %w", l.ID, err)
	}
	if l.FinishedAt, err = parseNullableTime(finished); err != nil {
		return nil, fmt.Errorf("parse finished_datetime of %s: %w", l.ID, err)
	}

	out := []*types.SyncLogStep{&l.PullCentral, &l.Integration, &l.PushRemote}
	for i, s := range steps {
		if out[i].StartedAt, err = parseNullableTime(s.started); err != nil {
			return nil, fmt.Errorf("parse step started of %s: %w", l.ID, err)
		}
		if out[i].FinishedAt, err = parseNullableTime(s.finished); err != nil {
			return nil, fmt.Errorf("parse step finished of %s: %w", l.ID, err)
		}
		if s.total.Valid {
			v := s.total.Int64
			out[i].Total = &v
		}
		if s.done.Valid {
			v := s.done.Int64
			out[i].Done = &v
		}
	}
	return &l, nil
}
