package synchroniser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ria8651/open-msupply/internal/central"
	"github.com/ria8651/open-msupply/internal/central/centraltest"
	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/translator"
)

const testSiteUUID = "b8b5fbb3-0f27-4a3a-a8d6-0c7c0d8f4c0e"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore creates a fresh in-memory store.
func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fixture struct {
	store   *store.SQLiteStore
	central *centraltest.Server
	client  *central.HTTPClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := centraltest.New(omsync.SiteInfo{ID: testSiteUUID, SiteID: 7})
	t.Cleanup(srv.Close)
	return &fixture{
		store:   newTestStore(t),
		central: srv,
		client:  central.NewHTTPClient(srv.URL, central.Credentials{Username: "site7", Password: "pass"}, "test", 5*time.Second),
	}
}

// setSiteID marks the site as bootstrapped.
func (f *fixture) setSiteID(t *testing.T, id int64) {
	t.Helper()
	if err := f.store.SetInt64(context.Background(), omsync.KeySiteID, &id); err != nil {
		t.Fatalf("SetInt64() error = %v", err)
	}
}

func (f *fixture) cursor(t *testing.T, key string) *int64 {
	t.Helper()
	v, err := f.store.GetInt64(context.Background(), key)
	if err != nil {
		t.Fatalf("GetInt64(%s) error = %v", key, err)
	}
	return v
}

func tableSchema(t *testing.T, name string) store.TableSchema {
	t.Helper()
	for _, s := range translator.Schemas() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no schema for %s", name)
	return store.TableSchema{}
}

// addStore registers a store row as central would sync it.
func addStore(t *testing.T, st *store.SQLiteStore, id, nameID string, siteID int64) {
	t.Helper()
	payload := fmt.Sprintf(`{"name_id":%q,"code":%q,"site_id":%d}`, nameID, id, siteID)
	if _, err := st.UpsertSchemaRow(context.Background(), tableSchema(t, "store"), id, json.RawMessage(payload)); err != nil {
		t.Fatalf("UpsertSchemaRow(store) error = %v", err)
	}
}

// localEdit records a local change and returns its changelog sequence.
func localEdit(t *testing.T, st *store.SQLiteStore, table, id, payload string) int64 {
	t.Helper()
	seq, err := st.UpsertLocalRow(context.Background(), tableSchema(t, table), id, []byte(payload))
	if err != nil {
		t.Fatalf("UpsertLocalRow() error = %v", err)
	}
	return seq
}

func wireRecord(id, table, action, data string) omsync.WireRecord {
	return omsync.WireRecord{RecordID: id, TableName: table, Action: action, Data: json.RawMessage(data)}
}

func nameRecord(id string) omsync.WireRecord {
	return wireRecord(id, "name", "upsert", fmt.Sprintf(`{"name":%q}`, id))
}

// bufferRow builds a pending buffer row received offset seconds after a fixed time.
func bufferRow(id, table string, action omsync.Action, data string, offset int) omsync.SyncBufferRecord {
	return omsync.SyncBufferRecord{
		RecordID:   id,
		TableName:  table,
		Action:     action,
		Data:       json.RawMessage(data),
		ReceivedAt: time.Date(2024, 5, 1, 0, 0, offset, 0, time.UTC),
	}
}

type progressCall struct {
	step      omsync.Step
	remaining int64
}

// recordingProgress captures every progress report.
type recordingProgress struct {
	mu    sync.Mutex
	calls []progressCall
}

func (p *recordingProgress) Progress(_ context.Context, step omsync.Step, remaining int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, progressCall{step: step, remaining: remaining})
	return nil
}

func (p *recordingProgress) remaining(step omsync.Step) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int64
	for _, c := range p.calls {
		if c.step == step {
			out = append(out, c.remaining)
		}
	}
	return out
}

// stubClient is a hand-written central.Client for cases the fake server
// cannot express.
type stubClient struct {
	mu         sync.Mutex
	siteInfo   *omsync.SiteInfo
	siteErr    error
	ack        func(req *omsync.PushRequest) *omsync.PushAck
	pushes     []omsync.PushRequest
	onSiteInfo func()

	// pages, when set, answers pulls; otherwise central reports nothing.
	pages       func(cursor int64) *omsync.CentralBatch
	pullCursors []int64
}

func (c *stubClient) GetSiteInfo(_ context.Context) (*omsync.SiteInfo, error) {
	if c.onSiteInfo != nil {
		c.onSiteInfo()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.siteInfo, c.siteErr
}

func (c *stubClient) PullRecords(_ context.Context, cursor int64, _ int) (*omsync.CentralBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pullCursors = append(c.pullCursors, cursor)
	if c.pages != nil {
		return c.pages(cursor), nil
	}
	return &omsync.CentralBatch{MaxCursor: cursor, Data: nil}, nil
}

func (c *stubClient) pulledFrom() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.pullCursors...)
}

func (c *stubClient) Push(_ context.Context, req *omsync.PushRequest) (*omsync.PushAck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushes = append(c.pushes, *req)
	return c.ack(req), nil
}

var _ central.Client = (*stubClient)(nil)
