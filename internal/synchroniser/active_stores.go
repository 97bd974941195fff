package synchroniser

import (
	"context"
	"fmt"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
)

// ActiveStores is the set of stores whose authoritative copy lives on this site.
// It is resolved per cycle so store reassignment on central takes effect.
type ActiveStores struct {
	stores []types.StoreRow
}

// ResolveActiveStores loads the stores whose site id matches this site.
func ResolveActiveStores(ctx context.Context, st *store.SQLiteStore) (*ActiveStores, error) {
	siteID, err := st.GetInt64(ctx, omsync.KeySiteID)
	if err != nil {
		return nil, fmt.Errorf("read site id: %w", err)
	}
	if siteID == nil {
		return nil, omsync.ErrSiteIDNotSet
	}

	stores, err := st.StoresBySiteID(ctx, *siteID)
	if err != nil {
		return nil, fmt.Errorf("query active stores: %w", err)
	}
	return &ActiveStores{stores: stores}, nil
}

// StoreIDs returns the ids of the active stores.
func (a *ActiveStores) StoreIDs() []string {
	ids := make([]string, len(a.stores))
	for i, s := range a.stores {
		ids[i] = s.ID
	}
	return ids
}

// NameIDs returns the name ids of the active stores.
func (a *ActiveStores) NameIDs() []string {
	ids := make([]string, len(a.stores))
	for i, s := range a.stores {
		ids[i] = s.NameID
	}
	return ids
}

// StoreIDForNameID maps a store's name id back to the store id.
func (a *ActiveStores) StoreIDForNameID(nameID string) (string, bool) {
	for _, s := range a.stores {
		if s.NameID == nameID {
			return s.ID, true
		}
	}
	return "", false
}

// PushChangelogFilter selects changelog entries this site should push: those
// of active stores or of no store, excluding changes that arrived via sync.
func (a *ActiveStores) PushChangelogFilter(afterSequence int64, limit int) store.ChangelogFilter {
	return store.ChangelogFilter{
		AfterSequence:      afterSequence,
		ScopeToStores:      true,
		StoreIDs:           a.StoreIDs(),
		ExcludeSyncUpdates: true,
		Limit:              limit,
	}
}
