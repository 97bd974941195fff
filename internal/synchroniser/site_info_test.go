package synchroniser

import (
	"context"
	"errors"
	"testing"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

func TestRequestAndSet_PersistsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := NewSiteInfoResolver(f.store, f.client, discardLogger())

	if _, ok, _ := r.GetSiteID(ctx); ok {
		t.Fatal("site id should be unset before bootstrap")
	}

	info, err := r.RequestAndSet(ctx)
	if err != nil {
		t.Fatalf("RequestAndSet() error = %v", err)
	}
	if info.SiteID != 7 {
		t.Errorf("SiteID = %d, want 7", info.SiteID)
	}

	id, ok, err := r.GetSiteID(ctx)
	if err != nil || !ok || id != 7 {
		t.Errorf("GetSiteID() = %d, %v, %v", id, ok, err)
	}
	uuid, _ := f.store.GetString(ctx, omsync.KeySiteUUID)
	if uuid == nil || *uuid != testSiteUUID {
		t.Errorf("site uuid = %v, want %s", uuid, testSiteUUID)
	}
}

func TestRequestAndSet_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "invalid uuid",
			setup: func(f *fixture) {
				f.central.SetSiteInfo(omsync.SiteInfo{ID: "not-a-uuid", SiteID: 7})
			},
		},
		{
			name: "missing site id",
			setup: func(f *fixture) {
				f.central.SetSiteInfo(omsync.SiteInfo{ID: testSiteUUID})
			},
		},
		{
			name: "central unavailable",
			setup: func(f *fixture) {
				f.central.FailNext("site-info", 500)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			tt.setup(f)
			r := NewSiteInfoResolver(f.store, f.client, discardLogger())

			_, err := r.RequestAndSet(ctx)

			if !errors.Is(err, omsync.ErrRequestSiteInfo) {
				t.Fatalf("RequestAndSet() error = %v, want ErrRequestSiteInfo", err)
			}
			if _, ok, _ := r.GetSiteID(ctx); ok {
				t.Error("site id must not be persisted on failure")
			}
		})
	}
}

func TestRequestAndSet_TransportErrorIsInspectable(t *testing.T) {
	f := newFixture(t)
	f.central.FailNext("site-info", 401)

	_, err := NewSiteInfoResolver(f.store, f.client, discardLogger()).RequestAndSet(context.Background())

	var syncErr *omsync.SyncError
	if !errors.As(err, &syncErr) || syncErr.StatusCode != 401 {
		t.Errorf("error = %v, want a 401 SyncError in the chain", err)
	}
}
