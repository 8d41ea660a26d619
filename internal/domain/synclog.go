package domain

import (
	"time"
)

// FieldChange records one rate value that differs between two snapshots.
// Nil means the key was absent on that side.
type FieldChange struct {
	Old *float64 `json:"old"`
	New *float64 `json:"new"`
}

// RateChanges is the field-level diff between two rate-table snapshots,
// keyed "mf_<term>" for money factors and "rv_<term>_<mileage>" for
// residuals.
type RateChanges struct {
	MFChanges       map[string]FieldChange `json:"mfChanges,omitempty"`
	ResidualChanges map[string]FieldChange `json:"residualChanges,omitempty"`
}

// Empty reports whether the diff contains no changes.
func (c RateChanges) Empty() bool {
	return len(c.MFChanges) == 0 && len(c.ResidualChanges) == 0
}

// SyncLogEntry is the append-only audit record written per (brand, model)
// group that changed during a sync run. Snapshot carries the new table's
// flattened rates so the next run can diff against the log store instead of
// any in-process state.
type SyncLogEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Brand     string       `json:"brand"`
	Model     string       `json:"model"`
	Changes   RateChanges  `json:"changes"`
	Snapshot  RateSnapshot `json:"snapshot"`

	DealIDsUpdated []string `json:"dealIdsUpdated"`
	DealsCount     int      `json:"dealsCount"`
}

// SyncLogQuery filters sync log entries for observability dashboards.
type SyncLogQuery struct {
	Brand string
	Model string
	From  time.Time
	To    time.Time
	Limit int
}
