package domain

import (
	"time"
)

// RateTable is an immutable snapshot of the money-factor and residual values
// extracted from one lender program. Term keys are month counts rendered as
// strings ("24", "36"); residual values are whole-number percents (56 = 56%).
type RateTable struct {
	ID         string `json:"id"`
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	ValidMonth string `json:"validMonth"` // "2006-01"
	Region     string `json:"region"`

	// MoneyFactor maps term months to the published money factor.
	MoneyFactor map[string]float64 `json:"moneyFactor"`

	// Residuals maps term months to annual-mileage keys to residual percent.
	Residuals map[string]map[string]float64 `json:"residuals"`

	// Incentives maps incentive names to dollar amounts.
	Incentives map[string]float64 `json:"incentives,omitempty"`

	// Constraints carries free-form lender conditions ("min_fico": "680").
	Constraints map[string]string `json:"constraints,omitempty"`

	SourceID  string    `json:"sourceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParsedProgram is the ingestion payload produced by the external document
// pipeline. It is validated into a RateTable at the trust boundary; it is
// never passed further into the core.
type ParsedProgram struct {
	Brand       string                        `json:"brand"`
	Model       string                        `json:"model,omitempty"`
	Month       string                        `json:"month,omitempty"`
	Region      string                        `json:"region,omitempty"`
	MoneyFactor map[string]float64            `json:"moneyFactor"`
	Residuals   map[string]map[string]float64 `json:"residuals"`
	Incentives  map[string]float64            `json:"incentives,omitempty"`
	Constraints map[string]string             `json:"constraints,omitempty"`
	SourceID    string                        `json:"sourceId"`
}

// RateSnapshot is the flattened view of a table's rate fields used for
// change detection. Keys are "mf_<term>" and "rv_<term>_<mileage>".
type RateSnapshot map[string]float64

// Snapshot flattens the table's money factors and residuals.
func (t *RateTable) Snapshot() RateSnapshot {
	snap := make(RateSnapshot, len(t.MoneyFactor)+len(t.Residuals)*4)
	for term, mf := range t.MoneyFactor {
		snap["mf_"+term] = mf
	}
	for term, byMileage := range t.Residuals {
		for mileage, pct := range byMileage {
			snap["rv_"+term+"_"+mileage] = pct
		}
	}
	return snap
}
