package store

import "regexp"

// TableSchema declares the structure of a synced domain table.
// The replay layer uses this to build parameterized SQL at runtime.
type TableSchema struct {
	// Name is the SQL table name (must match migration CREATE TABLE).
	Name string

	// Columns lists the column names in the order they appear in the table.
	// Must include "id" as the primary key column.
	Columns []string

	// SoftDelete indicates whether a delete should SET deleted_at
	// (soft delete) or issue a real DELETE FROM (hard delete).
	SoftDelete bool

	// StoreColumn names the column holding the owning store id, if any.
	// It is copied onto changelog entries so push can filter by store.
	StoreColumn string
}

// tableNameRegex guards identifiers interpolated into SQL.
var tableNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Valid reports whether every identifier in the schema is safe to interpolate.
func (s TableSchema) Valid() bool {
	if !tableNameRegex.MatchString(s.Name) {
		return false
	}
	hasID := false
	for _, c := range s.Columns {
		if !tableNameRegex.MatchString(c) {
			return false
		}
		if c == "id" {
			hasID = true
		}
	}
	if s.StoreColumn != "" && !tableNameRegex.MatchString(s.StoreColumn) {
		return false
	}
	return hasID
}

func (s TableSchema) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}
