package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSiteIDNotSet is returned when the site has never been bootstrapped.
	ErrSiteIDNotSet = errors.New("site id not set")

	// ErrSyncAlreadyRunning is returned when a cycle is requested while one is in progress.
	ErrSyncAlreadyRunning = errors.New("sync already running")

	// ErrRequestSiteInfo wraps every failure to obtain site info from central.
	ErrRequestSiteInfo = errors.New("request site info")

	// ErrPartialAck indicates central accepted only part of a push batch.
	ErrPartialAck = errors.New("push partially acknowledged")
)

// SyncError is a transport failure talking to the central server.
type SyncError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// ParsingError is a wire record that could not be converted to a buffer row.
type ParsingError struct {
	TableName string
	RecordID  string
	Err       error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("parse record %q of table %q: %v", e.RecordID, e.TableName, e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// IntegrationError is a buffered record that could not be applied.
// It is recorded on the buffer row and never aborts a cycle.
type IntegrationError struct {
	TableName string
	RecordID  string
	Err       error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integrate %s %s: %v", e.TableName, e.RecordID, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// StageError tags a cycle failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PartialAckError reports the push records central did not accept.
type PartialAckError struct {
	AcceptedUpTo int64
	LastSent     int64
	Errors       []PushRecordError
}

func (e *PartialAckError) Error() string {
	msg := fmt.Sprintf("central accepted up to %d of %d", e.AcceptedUpTo, e.LastSent)
	if len(e.Errors) > 0 {
		msg += fmt.Sprintf(": sequence %d: %s", e.Errors[0].Sequence, e.Errors[0].Message)
	}
	return msg
}

func (e *PartialAckError) Unwrap() error { return ErrPartialAck }
