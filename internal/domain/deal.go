package domain

import (
	"time"
)

// Deal is a priced vehicle offering in the marketplace catalog. Identity and
// vehicle attributes are owned by the external catalog; the core only ever
// writes the Calculated sub-record, guarded by the Version token.
type Deal struct {
	ID string `json:"id"`

	// Vehicle attributes (read-only to the core)
	Brand        string  `json:"brand"`
	Model        string  `json:"model"`
	Trim         string  `json:"trim,omitempty"`
	Year         int     `json:"year"`
	MSRP         float64 `json:"msrp"`
	SellingPrice float64 `json:"sellingPrice"`

	// Requested terms
	TermMonths    int     `json:"termMonths"`
	AnnualMileage int     `json:"annualMileage"`
	Region        string  `json:"region,omitempty"`
	BankLabel     string  `json:"bankLabel,omitempty"`
	State         string  `json:"state"`
	Zip           string  `json:"zip,omitempty"`
	DownPayment   float64 `json:"downPayment"`

	// Calculated is the only part of the record the core mutates.
	Calculated *CalculatedFields `json:"calculated,omitempty"`

	// Version is the optimistic-concurrency token. Every calculated-fields
	// write carries the version it read; a mismatch rejects the write.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CalculatedFields is the pricing output cached on a Deal. All fields come
// from a single calculator invocation against a single resolved program;
// values from two resolutions are never blended.
type CalculatedFields struct {
	MonthlyPayment      float64 `json:"monthlyPayment"`
	DriveOff            float64 `json:"driveOff"`
	OnePay              float64 `json:"onePay"`
	MoneyFactorUsed     float64 `json:"moneyFactorUsed"`
	ResidualPercentUsed float64 `json:"residualPercentUsed"`
	SavingsVsMSRP       float64 `json:"savingsVsMsrp"`

	ProgramID    string    `json:"programId,omitempty"`
	CalculatedAt time.Time `json:"calculatedAt"`
}
