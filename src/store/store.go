// Package store contains the persistence operations the core requires from
// the relational database: point lookups, range scans, conditional inserts
// with unique-constraint semantics, and compare-and-swap status updates.
// Every function takes the *sql.DB it operates on; no operation needs a
// multi-statement transaction beyond what sqlite's constraints provide.
package store

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrCategoryInUse = errors.New("category is referenced by transactions")
)
