// Package pricing implements the deterministic lease payment pipeline.
package pricing

import (
	"errors"
	"fmt"

	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/rates"
)

var (
	// ErrMissingRateData means neither the rate table nor a request
	// override could supply a money factor or residual percent. Fatal to
	// the single calculation, never to a batch.
	ErrMissingRateData = errors.New("missing rate data")

	ErrInvalidRequest = errors.New("invalid calculation request")
)

// Business constants inherited from the original rate sheets. Undocumented
// lender assumptions; override via domain.PricingConfig, do not re-derive.
const (
	// DefaultOnePayDiscountFactor is the lump-sum payment multiplier
	// (8% discount).
	DefaultOnePayDiscountFactor = 0.92

	// DefaultNaiveMoneyFactorMarkup is added to the money factor when
	// pricing the undiscounted comparison deal.
	DefaultNaiveMoneyFactorMarkup = 0.0004

	// DefaultTaxRate applies when no tax configuration matches (CA
	// statewide rate).
	DefaultTaxRate = 0.0925
)

// Drive-off modes.
const (
	DriveOffZero     = "zero"
	DriveOffStandard = "standard"
)

// Request carries the deal parameters for one calculation.
type Request struct {
	Brand  string `json:"brand"`
	Model  string `json:"model"`
	Trim   string `json:"trim,omitempty"`
	Region string `json:"region,omitempty"`

	MSRP          float64 `json:"msrp"`
	SellingPrice  float64 `json:"sellingPrice"`
	TermMonths    int     `json:"termMonths"`
	AnnualMileage int     `json:"annualMileage"`
	DownPayment   float64 `json:"downPayment"`
	TaxRate       float64 `json:"taxRate"`

	ApplyIncentives  bool               `json:"applyIncentives"`
	ManualIncentives map[string]float64 `json:"manualIncentives,omitempty"`

	AcquisitionFee  float64 `json:"acquisitionFee"`
	DocFee          float64 `json:"docFee"`
	RegistrationFee float64 `json:"registrationFee"`
	OtherFees       float64 `json:"otherFees"`

	DriveOffMode string `json:"driveOffMode,omitempty"` // "zero" or "standard"

	OverrideMoneyFactor     *float64 `json:"overrideMoneyFactor,omitempty"`
	OverrideResidualPercent *float64 `json:"overrideResidualPercent,omitempty"`
}

// Result carries the headline numbers plus every intermediate so downstream
// auditing never has to re-derive them.
type Result struct {
	MoneyFactor     float64 `json:"moneyFactor"`
	ResidualPercent float64 `json:"residualPercent"`
	ResidualValue   float64 `json:"residualValue"`

	TotalIncentives      float64 `json:"totalIncentives"`
	AdjustedCapCost      float64 `json:"adjustedCapCost"`
	TotalFeesCapitalized float64 `json:"totalFeesCapitalized"`
	NetCapCost           float64 `json:"netCapCost"`

	DepreciationFee float64 `json:"depreciationFee"`
	FinanceFee      float64 `json:"financeFee"`
	BasePayment     float64 `json:"basePayment"`
	TaxAmount       float64 `json:"taxAmount"`

	MonthlyPayment float64 `json:"monthlyPayment"` // tax included
	DriveOff       float64 `json:"driveOff"`
	OnePay         float64 `json:"onePay"`

	NaiveMonthlyPayment float64 `json:"naiveMonthlyPayment"`
	SavingsVsMSRP       float64 `json:"savingsVsMsrp"`
}

// Calculator runs the lease payment pipeline against a resolved rate table.
type Calculator struct {
	onePayDiscount float64
	naiveMarkup    float64
}

// New creates a calculator; zero config values fall back to the defaults.
func New(cfg domain.PricingConfig) *Calculator {
	c := &Calculator{
		onePayDiscount: cfg.OnePayDiscountFactor,
		naiveMarkup:    cfg.NaiveMoneyFactorMarkup,
	}
	if c.onePayDiscount == 0 {
		c.onePayDiscount = DefaultOnePayDiscountFactor
	}
	if c.naiveMarkup == 0 {
		c.naiveMarkup = DefaultNaiveMoneyFactorMarkup
	}
	return c
}

// Calculate prices a lease. The table may be nil when both overrides are
// present. No rounding happens inside the pipeline; consumers round the
// reported fields for display.
func (c *Calculator) Calculate(req *Request, table *domain.RateTable) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	if req.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: termMonths must be positive", ErrInvalidRequest)
	}
	if req.MSRP <= 0 {
		return nil, fmt.Errorf("%w: msrp must be positive", ErrInvalidRequest)
	}

	moneyFactor, ok := pickMoneyFactor(req, table)
	if !ok {
		return nil, fmt.Errorf("%w: no money factor for term %d", ErrMissingRateData, req.TermMonths)
	}
	residualPercent, ok := pickResidualPercent(req, table)
	if !ok {
		return nil, fmt.Errorf("%w: no residual for term %d mileage %d", ErrMissingRateData, req.TermMonths, req.AnnualMileage)
	}

	residualValue := req.MSRP * residualPercent / 100

	var totalIncentives float64
	if req.ApplyIncentives {
		if req.ManualIncentives != nil {
			totalIncentives = sumValues(req.ManualIncentives)
		} else if table != nil {
			totalIncentives = sumValues(table.Incentives)
		}
	}

	adjustedCapCost := req.SellingPrice - totalIncentives
	totalFees := req.AcquisitionFee + req.DocFee + req.RegistrationFee + req.OtherFees
	netCapCost := adjustedCapCost + totalFees - req.DownPayment

	term := float64(req.TermMonths)
	depreciationFee := (netCapCost - residualValue) / term
	financeFee := (netCapCost + residualValue) * moneyFactor
	basePayment := depreciationFee + financeFee
	taxAmount := basePayment * req.TaxRate
	monthlyWithTax := basePayment * (1 + req.TaxRate)

	var driveOff float64
	if req.DriveOffMode == DriveOffZero {
		driveOff = monthlyWithTax + req.DocFee + req.RegistrationFee
	} else {
		driveOff = req.DownPayment + monthlyWithTax + req.DocFee + req.RegistrationFee
	}

	onePay := monthlyWithTax * term * c.onePayDiscount

	// Savings benchmark: the same vehicle priced naively at full MSRP with
	// a marked-up money factor, no incentives and no down payment.
	naiveNetCapCost := req.MSRP + totalFees
	naiveDepreciation := (naiveNetCapCost - residualValue) / term
	naiveFinance := (naiveNetCapCost + residualValue) * (moneyFactor + c.naiveMarkup)
	naiveWithTax := (naiveDepreciation + naiveFinance) * (1 + req.TaxRate)
	savings := (naiveWithTax - monthlyWithTax) * term

	return &Result{
		MoneyFactor:          moneyFactor,
		ResidualPercent:      residualPercent,
		ResidualValue:        residualValue,
		TotalIncentives:      totalIncentives,
		AdjustedCapCost:      adjustedCapCost,
		TotalFeesCapitalized: totalFees,
		NetCapCost:           netCapCost,
		DepreciationFee:      depreciationFee,
		FinanceFee:           financeFee,
		BasePayment:          basePayment,
		TaxAmount:            taxAmount,
		MonthlyPayment:       monthlyWithTax,
		DriveOff:             driveOff,
		OnePay:               onePay,
		NaiveMonthlyPayment:  naiveWithTax,
		SavingsVsMSRP:        savings,
	}, nil
}

func pickMoneyFactor(req *Request, table *domain.RateTable) (float64, bool) {
	if req.OverrideMoneyFactor != nil {
		return *req.OverrideMoneyFactor, true
	}
	return rates.PickMoneyFactor(table, req.TermMonths)
}

func pickResidualPercent(req *Request, table *domain.RateTable) (float64, bool) {
	if req.OverrideResidualPercent != nil {
		return *req.OverrideResidualPercent, true
	}
	return rates.PickResidualPercent(table, req.TermMonths, req.AnnualMileage)
}

func sumValues(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}
