package synchroniser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/ria8651/open-msupply/internal/central"
	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// PushResult summarises one push run.
type PushResult struct {
	Batches int
	Pushed  int
	Cursor  int64
}

// RemotePusher sends local changelog entries to central.
type RemotePusher struct {
	store  *store.SQLiteStore
	client central.Client
	logger *slog.Logger
}

// NewRemotePusher creates a pusher.
func NewRemotePusher(st *store.SQLiteStore, client central.Client, logger *slog.Logger) *RemotePusher {
	return &RemotePusher{store: st, client: client, logger: logger}
}

// Push sends changelog entries after the push cursor in batches until none
// remain. Central acknowledges the highest contiguous accepted sequence and
// the cursor moves to it. A partial acknowledgement moves the cursor as far
// as central accepted and fails with *omsync.PartialAckError; the rest is
// re-sent on the next cycle.
func (p *RemotePusher) Push(ctx context.Context, siteID int64, active *ActiveStores, batchSize int, progress ProgressReporter) (*PushResult, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid push batch size %d", batchSize)
	}

	cursor, err := p.cursor(ctx)
	if err != nil {
		return nil, err
	}
	result := &PushResult{Cursor: cursor}

	total, err := p.countRemaining(ctx, active, cursor)
	if err != nil {
		return result, err
	}
	if err := progress.Progress(ctx, omsync.StepPushRemote, total); err != nil {
		return result, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entries, err := p.store.QueryChangelog(ctx, active.PushChangelogFilter(cursor, batchSize))
		if err != nil {
			return result, fmt.Errorf("query changelog: %w", err)
		}
		if len(entries) == 0 {
			return result, nil
		}

		req := &omsync.PushRequest{
			PushID:  ulid.Make().String(),
			SiteID:  siteID,
			Records: make([]omsync.PushRecord, len(entries)),
		}
		for i, e := range entries {
			req.Records[i] = omsync.PushRecord{
				Sequence:  e.Sequence,
				TableName: e.TableName,
				RecordID:  e.RecordID,
				StoreID:   e.StoreID,
				Action:    e.RowAction,
				Data:      e.Payload,
			}
		}
		lastSent := entries[len(entries)-1].Sequence

		ack, err := p.client.Push(ctx, req)
		if err != nil {
			return result, err
		}
		result.Batches++

		next := ack.AcceptedUpTo
		if next > lastSent {
			next = lastSent
		}
		if next > cursor {
			if err := p.setCursor(ctx, next); err != nil {
				return result, err
			}
			for _, e := range entries {
				if e.Sequence <= next {
					result.Pushed++
				}
			}
			cursor = next
			result.Cursor = cursor
		}

		p.logger.Debug("pushed changelog batch",
			"component", "remote_pusher",
			"push_id", req.PushID,
			"records", len(entries),
			"accepted_up_to", ack.AcceptedUpTo,
		)

		remaining, err := p.countRemaining(ctx, active, cursor)
		if err != nil {
			return result, err
		}
		if err := progress.Progress(ctx, omsync.StepPushRemote, remaining); err != nil {
			return result, err
		}

		if cursor < lastSent {
			return result, &omsync.PartialAckError{
				AcceptedUpTo: ack.AcceptedUpTo,
				LastSent:     lastSent,
				Errors:       ack.Errors,
			}
		}
	}
}

func (p *RemotePusher) countRemaining(ctx context.Context, active *ActiveStores, cursor int64) (int64, error) {
	return p.store.CountChangelog(ctx, active.PushChangelogFilter(cursor, 0))
}

func (p *RemotePusher) cursor(ctx context.Context) (int64, error) {
	v, err := p.store.GetInt64(ctx, omsync.KeyPushCursor)
	if err != nil {
		return 0, fmt.Errorf("read push cursor: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

func (p *RemotePusher) setCursor(ctx context.Context, cursor int64) error {
	if err := p.store.SetInt64(context.WithoutCancel(ctx), omsync.KeyPushCursor, &cursor); err != nil {
		return fmt.Errorf("advance push cursor: %w", err)
	}
	return nil
}
