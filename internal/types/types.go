package types

import (
	"encoding/json"
	"time"
)

// DocumentCategory classifies what a document type cascades into.
type DocumentCategory string

const (
	CategoryPatient          DocumentCategory = "Patient"
	CategoryProgramEnrolment DocumentCategory = "ProgramEnrolment"
	CategoryEncounter        DocumentCategory = "Encounter"
	CategoryCustom           DocumentCategory = "Custom"
)

// StoreRow is a store record as synced from central.
type StoreRow struct {
	ID     string `json:"id"`
	NameID string `json:"name_id"`
	Code   string `json:"code"`
	SiteID int64  `json:"site_id"`
}

// DocumentRegistryRow maps a document type to its category.
type DocumentRegistryRow struct {
	ID           string           `json:"id"`
	DocumentType string           `json:"document_type"`
	Category     DocumentCategory `json:"category"`
	ContextID    *string          `json:"context_id,omitempty"`
	Name         *string          `json:"name,omitempty"`
}

// Document is one immutable version of a named document.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ParentIDs   []string        `json:"parent_ids"`
	UserID      string          `json:"user_id"`
	Datetime    time.Time       `json:"datetime"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Status      string          `json:"status"`
	OwnerNameID *string         `json:"owner_name_id,omitempty"`
	ContextID   *string         `json:"context_id,omitempty"`
}

// MarshalJSON ensures nil ParentIDs marshal as [] not null.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.ParentIDs == nil {
		d.ParentIDs = []string{}
	}
	type Alias Document
	return json.Marshal(Alias(d))
}

// Patient is the row derived from the latest Patient document.
type Patient struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	FirstName        *string   `json:"first_name,omitempty"`
	LastName         *string   `json:"last_name,omitempty"`
	Gender           *string   `json:"gender,omitempty"`
	DateOfBirth      *string   `json:"date_of_birth,omitempty"`
	IsDeceased       bool      `json:"is_deceased"`
	DocumentDatetime time.Time `json:"document_datetime"`
	IsSyncUpdate     bool      `json:"is_sync_update"`
}

// ProgramEnrolment is the row derived from the latest enrolment document.
type ProgramEnrolment struct {
	ID                 string    `json:"id"`
	DocumentName       string    `json:"document_name"`
	DocumentType       string    `json:"document_type"`
	PatientID          string    `json:"patient_id"`
	ContextID          *string   `json:"context_id,omitempty"`
	EnrolmentDatetime  time.Time `json:"enrolment_datetime"`
	ProgramEnrolmentID *string   `json:"program_enrolment_id,omitempty"`
	Status             *string   `json:"status,omitempty"`
}

// Encounter is the row derived from the latest encounter document.
type Encounter struct {
	ID              string     `json:"id"`
	DocumentName    string     `json:"document_name"`
	DocumentType    string     `json:"document_type"`
	PatientID       string     `json:"patient_id"`
	ContextID       *string    `json:"context_id,omitempty"`
	CreatedDatetime time.Time  `json:"created_datetime"`
	StartDatetime   time.Time  `json:"start_datetime"`
	EndDatetime     *time.Time `json:"end_datetime,omitempty"`
	Status          *string    `json:"status,omitempty"`
	ClinicianID     *string    `json:"clinician_id,omitempty"`
}

// SyncLogStep records progress of one step of a cycle.
type SyncLogStep struct {
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      *int64     `json:"total,omitempty"`
	Done       *int64     `json:"done,omitempty"`
}

// SyncLog is the persisted record of one sync cycle.
type SyncLog struct {
	ID           string      `json:"id"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	PullCentral  SyncLogStep `json:"pull_central"`
	Integration  SyncLogStep `json:"integration"`
	PushRemote   SyncLogStep `json:"push_remote"`
	ErrorStage   *string     `json:"error_stage,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
}

// BufferStats summarises the sync buffer by integration outcome.
type BufferStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Integrated int64 `json:"integrated"`
	Failed     int64 `json:"failed"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	SiteID    *int64 `json:"site_id,omitempty"`
	IsSyncing bool   `json:"is_syncing"`
}
