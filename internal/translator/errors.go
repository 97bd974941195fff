package translator

import "errors"

var (
	// ErrUnknownTable indicates no translator is registered for the table.
	ErrUnknownTable = errors.New("unknown table")

	// ErrMissingOwner indicates a patient-owned document has no owner name id.
	ErrMissingOwner = errors.New("document owner id expected")

	// ErrUnsupportedAction indicates the table cannot apply the buffered action.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrInvalidMerge indicates a merge payload is missing or inconsistent.
	ErrInvalidMerge = errors.New("invalid merge")
)
