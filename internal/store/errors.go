package store

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownSchema = errors.New("table schema not registered")
	ErrIDMismatch    = errors.New("payload id does not match record id")
)
