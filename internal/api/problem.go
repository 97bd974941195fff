package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// problemBase prefixes every problem type URI.
const problemBase = "https://msupply.foundation/omsupply-sync/errors/"

// problemKind is one entry of the problem catalogue. Its type URI is
// problemBase followed by slug.
type problemKind struct {
	slug   string
	title  string
	status int
}

var (
	problemUnauthorized    = problemKind{"unauthorized", "Unauthorized", http.StatusUnauthorized}
	problemBadRequest      = problemKind{"bad-request", "Bad Request", http.StatusBadRequest}
	problemNotFound        = problemKind{"not-found", "Not Found", http.StatusNotFound}
	problemConflict        = problemKind{"conflict", "Conflict", http.StatusConflict}
	problemValidation      = problemKind{"validation-error", "Validation Error", http.StatusUnprocessableEntity}
	problemInternal        = problemKind{"internal-error", "Internal Server Error", http.StatusInternalServerError}
	problemUnavailable     = problemKind{"service-unavailable", "Service Unavailable", http.StatusServiceUnavailable}
	problemSyncRunning     = problemKind{"sync-running", "Sync Already Running", http.StatusConflict}
	problemNotBootstrapped = problemKind{"site-not-bootstrapped", "Site Not Bootstrapped", http.StatusServiceUnavailable}
)

// problemsByStatus resolves the generic kind when only a status is known.
var problemsByStatus = map[int]problemKind{
	http.StatusUnauthorized:        problemUnauthorized,
	http.StatusBadRequest:          problemBadRequest,
	http.StatusNotFound:            problemNotFound,
	http.StatusConflict:            problemConflict,
	http.StatusUnprocessableEntity: problemValidation,
	http.StatusInternalServerError: problemInternal,
	http.StatusServiceUnavailable:  problemUnavailable,
}

func (k problemKind) write(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	p := ProblemWithErrors{
		Problem: Problem{
			Type:     problemBase + k.slug,
			Title:    k.title,
			Status:   k.status,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(k.status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// WriteProblem writes the generic problem for status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	k, ok := problemsByStatus[status]
	if !ok {
		k = problemKind{"unknown", http.StatusText(status), status}
	}
	k.write(w, r, detail, nil)
}

// WriteProblemWithErrors writes a 422 with one entry per invalid field.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	problemValidation.write(w, r, detail, errs)
}

// WriteProblemSyncRunning writes the 409 returned while a cycle holds the guard.
func WriteProblemSyncRunning(w http.ResponseWriter, r *http.Request) {
	problemSyncRunning.write(w, r, "A sync cycle is already in progress", nil)
}

// MapStoreError converts store and sync errors to Problem Details responses.
// Unrecognised errors become a bare 500.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		problemNotFound.write(w, r, "Resource not found", nil)
	case errors.Is(err, omsync.ErrSyncAlreadyRunning):
		WriteProblemSyncRunning(w, r)
	case errors.Is(err, omsync.ErrSiteIDNotSet):
		problemNotBootstrapped.write(w, r, "Site has not fetched its identity from central", nil)
	default:
		problemInternal.write(w, r, "Internal Server Error", nil)
	}
}
