package models

import "time"

// ProgramSite is one (program, site) tagging pair.
type ProgramSite struct {
	ID        int64     `db:"id" json:"id"`
	Program   string    `db:"program" json:"program"`
	Site      string    `db:"site" json:"site"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ImportRowError explains why a CSV line was skipped.
type ImportRowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportResult summarises a bulk import. Imported + Skipped == Processed.
type ImportResult struct {
	Processed int              `json:"processed"`
	Imported  int              `json:"imported"`
	Skipped   int              `json:"skipped"`
	Errors    []ImportRowError `json:"errors"`
}
