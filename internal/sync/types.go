package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the operation a buffered record applies to its table.
type Action string

// Action constants
const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
	ActionMerge  Action = "merge"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionUpsert, ActionDelete, ActionMerge:
		return true
	}
	return false
}

// SyncBufferRecord is a raw inbound record staged for integration.
// IntegratedAt is nil until the record has been applied to domain tables.
type SyncBufferRecord struct {
	RecordID         string          `json:"record_id"`
	TableName        string          `json:"table_name"`
	Action           Action          `json:"action"`
	Data             json.RawMessage `json:"data"`
	ReceivedAt       time.Time       `json:"received_at"`
	IntegratedAt     *time.Time      `json:"integrated_at,omitempty"`
	IntegrationError *string         `json:"integration_error,omitempty"`
}

// Pending reports whether the record still needs integration.
func (r *SyncBufferRecord) Pending() bool {
	return r.IntegratedAt == nil
}

// WireRecord is a record as delivered by the central server.
type WireRecord struct {
	RecordID  string          `json:"record_id"`
	TableName string          `json:"table_name"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
}

// CentralRecord pairs a wire record with its position in the central stream.
type CentralRecord struct {
	Cursor int64      `json:"cursor"`
	Record WireRecord `json:"record"`
}

// CentralBatch is one page of the central pull API.
type CentralBatch struct {
	MaxCursor int64           `json:"max_cursor"`
	Data      []CentralRecord `json:"data"`
}

// ToBufferRecord converts the wire record into a buffer row received at now.
func (w WireRecord) ToBufferRecord(now time.Time) (SyncBufferRecord, error) {
	if w.RecordID == "" {
		return SyncBufferRecord{}, &ParsingError{TableName: w.TableName, RecordID: w.RecordID, Err: fmt.Errorf("record_id is empty")}
	}
	if w.TableName == "" {
		return SyncBufferRecord{}, &ParsingError{TableName: w.TableName, RecordID: w.RecordID, Err: fmt.Errorf("table_name is empty")}
	}
	action := Action(w.Action)
	if !action.Valid() {
		return SyncBufferRecord{}, &ParsingError{TableName: w.TableName, RecordID: w.RecordID, Err: fmt.Errorf("unknown action %q", w.Action)}
	}
	data := w.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if !json.Valid(data) {
		return SyncBufferRecord{}, &ParsingError{TableName: w.TableName, RecordID: w.RecordID, Err: fmt.Errorf("data is not valid JSON")}
	}
	return SyncBufferRecord{
		RecordID:   w.RecordID,
		TableName:  w.TableName,
		Action:     action,
		Data:       data,
		ReceivedAt: now,
	}, nil
}

// MergeData is the payload of a merge action.
type MergeData struct {
	KeepID   string `json:"merge_id_to_keep"`
	DeleteID string `json:"merge_id_to_delete"`
}

// SiteInfo is the identity the central server assigns to this site.
type SiteInfo struct {
	ID     string `json:"id"`
	SiteID int64  `json:"site_id"`
}

// ChangelogEntry is one local mutation eligible for push.
type ChangelogEntry struct {
	Sequence     int64           `json:"sequence"`
	TableName    string          `json:"table_name"`
	RecordID     string          `json:"record_id"`
	RowAction    Action          `json:"row_action"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	StoreID      *string         `json:"store_id,omitempty"`
	IsSyncUpdate bool            `json:"is_sync_update"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PushRecord is a changelog entry as sent to the central server.
type PushRecord struct {
	Sequence  int64           `json:"sequence"`
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	StoreID   *string         `json:"store_id,omitempty"`
	Action    Action          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PushRequest is the body of the central push API.
type PushRequest struct {
	PushID  string       `json:"push_id"`
	SiteID  int64        `json:"site_id"`
	Records []PushRecord `json:"records"`
}

// PushRecordError describes a record the central server rejected.
type PushRecordError struct {
	Sequence int64  `json:"sequence"`
	Message  string `json:"message"`
}

// PushAck acknowledges a push batch. AcceptedUpTo is the highest sequence
// such that every record sent with a sequence at or below it was accepted.
type PushAck struct {
	AcceptedUpTo int64             `json:"accepted_up_to"`
	Errors       []PushRecordError `json:"errors,omitempty"`
}

// Keyed settings used by the sync engine.
const (
	KeyPullCursor = "central_sync_pull_cursor"
	KeyPushCursor = "remote_sync_push_cursor"
	KeySiteID     = "settings_sync_site_id"
	KeySiteUUID   = "settings_sync_site_uuid"
)

// Step names reported through the sync logger.
type Step string

const (
	StepPullCentral Step = "PullCentral"
	StepIntegrate   Step = "Integrate"
	StepPushRemote  Step = "PushRemote"
)

// Stage names a cycle can fail in.
type Stage string

const (
	StageSiteInfo     Stage = "site_info"
	StagePull         Stage = "pull"
	StageIntegrate    Stage = "integrate"
	StageActiveStores Stage = "active_stores"
	StagePush         Stage = "push"
)
