package synchroniser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ria8651/open-msupply/internal/central"
	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/validation"
)

// SiteInfoResolver bootstraps and reads this site's identity.
type SiteInfoResolver struct {
	store  *store.SQLiteStore
	client central.Client
	logger *slog.Logger
}

// NewSiteInfoResolver creates a resolver.
func NewSiteInfoResolver(st *store.SQLiteStore, client central.Client, logger *slog.Logger) *SiteInfoResolver {
	return &SiteInfoResolver{store: st, client: client, logger: logger}
}

// RequestAndSet fetches the site identity from central and persists it.
// Every failure wraps omsync.ErrRequestSiteInfo.
func (r *SiteInfoResolver) RequestAndSet(ctx context.Context) (*omsync.SiteInfo, error) {
	r.logger.Info("requesting site info", "component", "site_info")

	info, err := r.client.GetSiteInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", omsync.ErrRequestSiteInfo, err)
	}
	if verr := validation.ValidateUUID("id", info.ID); verr != nil {
		return nil, fmt.Errorf("%w: %w", omsync.ErrRequestSiteInfo, verr)
	}
	if info.SiteID <= 0 {
		return nil, fmt.Errorf("%w: invalid site id %d", omsync.ErrRequestSiteInfo, info.SiteID)
	}

	txCtx := context.WithoutCancel(ctx)
	err = r.store.InTx(txCtx, func(tx *store.Tx) error {
		if err := tx.SetString(txCtx, omsync.KeySiteUUID, &info.ID); err != nil {
			return err
		}
		return tx.SetInt64(txCtx, omsync.KeySiteID, &info.SiteID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", omsync.ErrRequestSiteInfo, err)
	}

	r.logger.Info("received site info", "component", "site_info", "site_id", info.SiteID)
	return info, nil
}

// GetSiteID reads the persisted site id without contacting central.
func (r *SiteInfoResolver) GetSiteID(ctx context.Context) (int64, bool, error) {
	id, err := r.store.GetInt64(ctx, omsync.KeySiteID)
	if err != nil {
		return 0, false, err
	}
	if id == nil {
		return 0, false, nil
	}
	return *id, true, nil
}
