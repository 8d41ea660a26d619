package domain

import (
	"strings"
	"time"
)

// StatesAll is the sentinel marker for a program valid in every state.
const StatesAll = "ALL"

// ProgramDefinition describes when and where a lender program applies.
// Records are created and edited by an external admin surface; the core
// only reads them.
type ProgramDefinition struct {
	ID           string   `json:"id"`
	Brand        string   `json:"brand"`
	ModelPattern string   `json:"modelPattern,omitempty"`
	TrimPattern  string   `json:"trimPattern,omitempty"`
	YearFrom     int      `json:"yearFrom"`
	YearTo       int      `json:"yearTo"`
	States       []string `json:"states"` // ["ALL"] or explicit state codes

	ActiveFrom time.Time `json:"activeFrom"`
	ActiveTo   time.Time `json:"activeTo"`
	Active     bool      `json:"active"`

	// Eligibility is an optional CEL expression evaluated against the
	// vehicle during resolution. A candidate whose expression evaluates
	// to false (or fails to compile) is discarded.
	Eligibility string `json:"eligibility,omitempty"`

	FeeDefaults FeeDefaults `json:"feeDefaults"`
	LenderName  string      `json:"lenderName"`

	// CreatedAt is the stable ordering key for deterministic tie-breaks.
	CreatedAt time.Time `json:"createdAt"`
}

// FeeDefaults holds the lender's standard fee schedule.
type FeeDefaults struct {
	Acquisition  float64 `json:"acquisition"`
	Doc          float64 `json:"doc"`
	Registration float64 `json:"registration"`
	Other        float64 `json:"other"`
}

// CoversState reports whether the program applies in the given state.
func (p *ProgramDefinition) CoversState(state string) bool {
	for _, s := range p.States {
		if s == StatesAll || strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

// TaxConfig holds the sales-tax configuration for a state or zip region.
type TaxConfig struct {
	ID          string             `json:"id"`
	State       string             `json:"state"`
	ZipPrefixes []string           `json:"zipPrefixes,omitempty"` // empty = state-wide fallback
	TaxRate     float64            `json:"taxRate"`
	TaxOnFees   bool               `json:"taxOnFees"`
	Breakdown   map[string]float64 `json:"breakdown,omitempty"`
}
