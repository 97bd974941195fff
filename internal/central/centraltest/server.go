// Package centraltest provides an in-process central server for sync tests.
package centraltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// Server is a fake central server speaking the sync API.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	siteInfo   omsync.SiteInfo
	records    []omsync.CentralRecord
	maxCursor  *int64
	accepted   map[int64]omsync.PushRecord
	pushes     []omsync.PushRequest
	rejects    map[int64]string
	failNext   map[string]int
	pullCalls  int
	lastHeader http.Header
}

// New starts a fake central server that reports info as the site's identity.
// The server is closed when the test ends via Close.
func New(info omsync.SiteInfo) *Server {
	s := &Server{
		siteInfo: info,
		accepted: make(map[int64]omsync.PushRecord),
		rejects:  make(map[int64]string),
		failNext: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Route("/central/sync", func(r chi.Router) {
		r.Get("/site-info", s.handleSiteInfo)
		r.Get("/central-records", s.handleCentralRecords)
		r.Post("/push", s.handlePush)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// AddRecord queues a central record at cursor.
func (s *Server) AddRecord(cursor int64, rec omsync.WireRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, omsync.CentralRecord{Cursor: cursor, Record: rec})
	sort.Slice(s.records, func(i, j int) bool { return s.records[i].Cursor < s.records[j].Cursor })
}

// SetMaxCursor overrides the reported max cursor, simulating records
// central filtered out for this site.
func (s *Server) SetMaxCursor(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxCursor = &n
}

// SetSiteInfo replaces the identity returned by site-info.
func (s *Server) SetSiteInfo(info omsync.SiteInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.siteInfo = info
}

// Reject makes pushes of sequence fail with msg until cleared with an empty msg.
func (s *Server) Reject(sequence int64, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		delete(s.rejects, sequence)
		return
	}
	s.rejects[sequence] = msg
}

// FailNext makes the next request to endpoint ("site-info", "central-records"
// or "push") answer with status.
func (s *Server) FailNext(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[endpoint] = status
}

// Accepted returns every accepted push record in sequence order.
func (s *Server) Accepted() []omsync.PushRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]omsync.PushRecord, 0, len(s.accepted))
	for _, r := range s.accepted {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Pushes returns every push request received.
func (s *Server) Pushes() []omsync.PushRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]omsync.PushRequest(nil), s.pushes...)
}

// PullCalls returns the number of central-records requests served.
func (s *Server) PullCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullCalls
}

// LastHeader returns the headers of the most recent request.
func (s *Server) LastHeader() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeader.Clone()
}

// takeFailure records the request and reports a queued failure status.
func (s *Server) takeFailure(endpoint string, r *http.Request) int {
	s.lastHeader = r.Header.Clone()
	status, ok := s.failNext[endpoint]
	if !ok {
		return 0
	}
	delete(s.failNext, endpoint)
	return status
}

func (s *Server) handleSiteInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status := s.takeFailure("site-info", r); status != 0 {
		http.Error(w, "site info unavailable", status)
		return
	}
	writeJSON(w, s.siteInfo)
}

func (s *Server) handleCentralRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullCalls++
	if status := s.takeFailure("central-records", r); status != 0 {
		http.Error(w, "central records unavailable", status)
		return
	}

	cursor, err := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	if err != nil {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	batch := omsync.CentralBatch{Data: []omsync.CentralRecord{}}
	for _, rec := range s.records {
		if rec.Cursor > batch.MaxCursor {
			batch.MaxCursor = rec.Cursor
		}
		if rec.Cursor > cursor && len(batch.Data) < limit {
			batch.Data = append(batch.Data, rec)
		}
	}
	if s.maxCursor != nil {
		batch.MaxCursor = *s.maxCursor
	}
	writeJSON(w, batch)
}

// handlePush accepts the contiguous prefix of the batch that has no rejection.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status := s.takeFailure("push", r); status != 0 {
		http.Error(w, "push unavailable", status)
		return
	}

	var req omsync.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid push body", http.StatusBadRequest)
		return
	}
	s.pushes = append(s.pushes, req)

	records := append([]omsync.PushRecord(nil), req.Records...)
	sort.Slice(records, func(i, j int) bool { return records[i].Sequence < records[j].Sequence })

	var ack omsync.PushAck
	if len(records) > 0 {
		ack.AcceptedUpTo = records[0].Sequence - 1
	}
	for _, rec := range records {
		if msg, rejected := s.rejects[rec.Sequence]; rejected {
			ack.Errors = append(ack.Errors, omsync.PushRecordError{Sequence: rec.Sequence, Message: msg})
			break
		}
		s.accepted[rec.Sequence] = rec
		ack.AcceptedUpTo = rec.Sequence
	}
	writeJSON(w, ack)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
