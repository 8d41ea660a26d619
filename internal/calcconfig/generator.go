// Package calcconfig builds the client-side recalculation configuration:
// tier-adjusted rates plus a synthesized residual grid covering the full
// term and mileage range, independent of any single deal.
package calcconfig

import (
	"sort"
	"strconv"
	"strings"

	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/pricing"
	"github.com/openlease/ratesync/internal/rates"
)

// CacheKey is the cache key for a generated config. The location components
// vary the tax rate, so they are part of the key.
func CacheKey(brand, model, state, zip string) string {
	return CacheKeyPrefix(brand, model) + strings.ToLower(state) + ":" + zip
}

// CacheKeyPrefix covers every cached config for a (brand, model) group. The
// sync orchestrator drops the whole prefix when the group's rates change.
func CacheKeyPrefix(brand, model string) string {
	return "calcconfig:" + strings.ToLower(brand) + ":" + strings.ToLower(model) + ":"
}

// Credit tier adjustments. Tier 1 is the base rate; lower tiers pay a
// multiplicative money-factor step and a flat APR adder.
var (
	tierMoneyFactorMultipliers = [4]float64{1.00, 1.08, 1.16, 1.25}
	tierAPRAdders              = [4]float64{0, 1.0, 2.0, 3.0}
)

// Residual synthesis constants. The grid decays from the base residual by
// term and mileage and is clamped to a plausible band.
const (
	baseTermMonths   = 36
	baseMileage      = 10000
	termDecayStep    = 0.02
	mileageDecayStep = 0.01
	residualFloor    = 0.40
	residualCeiling  = 0.70

	// fallbackBaseResidual is used when the source table carries no
	// residual data at all.
	fallbackBaseResidual = 55.0

	// moneyFactorToAPR converts a money factor to an approximate APR.
	moneyFactorToAPR = 2400.0
)

// Grid dimensions offered to the client for what-if recalculation.
var (
	gridTerms    = []int{24, 27, 30, 33, 36, 39, 42, 45, 48}
	gridMileages = []int{7500, 10000, 12000, 15000}
)

// Tier is one credit tier's rates by term.
type Tier struct {
	Level       int                `json:"level"` // 1 = top tier
	MoneyFactor map[string]float64 `json:"moneyFactor"`
	APR         map[string]float64 `json:"apr"`
}

// Config is the display configuration for client-side recomputation. It is
// a read-only projection: regenerating it from the same inputs yields the
// same value.
type Config struct {
	Brand string `json:"brand"`
	Model string `json:"model"`

	TaxRate float64            `json:"taxRate"`
	Fees    domain.FeeDefaults `json:"fees"`

	Tiers []Tier `json:"tiers"`

	// ResidualGrid maps term to mileage to a residual fraction of MSRP.
	ResidualGrid map[string]map[string]float64 `json:"residualGrid"`

	Incentives map[string]float64 `json:"incentives,omitempty"`
	ProgramID  string             `json:"programId,omitempty"`
}

// Generate builds the configuration from a resolved rate table, program and
// tax config. Program and tax may be nil; the tax rate then falls back to
// the configured default.
func Generate(table *domain.RateTable, program *domain.ProgramDefinition, tax *domain.TaxConfig, defaultTaxRate float64) *Config {
	cfg := &Config{
		TaxRate:      defaultTaxRate,
		ResidualGrid: synthesizeResidualGrid(table),
	}
	if defaultTaxRate == 0 {
		cfg.TaxRate = pricing.DefaultTaxRate
	}

	if table != nil {
		cfg.Brand = table.Brand
		cfg.Model = table.Model
		cfg.Incentives = table.Incentives
		cfg.Tiers = buildTiers(table)
	}
	if tax != nil {
		cfg.TaxRate = tax.TaxRate
	}
	if program != nil {
		cfg.ProgramID = program.ID
		cfg.Fees = program.FeeDefaults
	}
	return cfg
}

// buildTiers derives the four credit tiers from the table's published money
// factors. Terms are sorted so regeneration is byte-stable.
func buildTiers(table *domain.RateTable) []Tier {
	terms := make([]string, 0, len(table.MoneyFactor))
	for term := range table.MoneyFactor {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	tiers := make([]Tier, len(tierMoneyFactorMultipliers))
	for i := range tiers {
		mf := make(map[string]float64, len(terms))
		apr := make(map[string]float64, len(terms))
		for _, term := range terms {
			base := table.MoneyFactor[term]
			mf[term] = base * tierMoneyFactorMultipliers[i]
			apr[term] = base*moneyFactorToAPR + tierAPRAdders[i]
		}
		tiers[i] = Tier{Level: i + 1, MoneyFactor: mf, APR: apr}
	}
	return tiers
}

// synthesizeResidualGrid spans the full term-by-mileage grid even when the
// source table only covers a subset:
//
//	residual(term, mileage) = clamp(base * termDecay * mileageDecay / 100, floor, ceiling)
//	termDecay(t)    = 1 - (t - 24) * 0.02
//	mileageDecay(m) = 1 - ((m - 7500) / 1000) * 0.01
func synthesizeResidualGrid(table *domain.RateTable) map[string]map[string]float64 {
	base := baseResidual(table)

	grid := make(map[string]map[string]float64, len(gridTerms))
	for _, term := range gridTerms {
		row := make(map[string]float64, len(gridMileages))
		termDecay := 1 - float64(term-24)*termDecayStep
		for _, mileage := range gridMileages {
			mileageDecay := 1 - float64(mileage-7500)/1000*mileageDecayStep
			row[strconv.Itoa(mileage)] = clamp(base*termDecay*mileageDecay/100, residualFloor, residualCeiling)
		}
		grid[strconv.Itoa(term)] = row
	}
	return grid
}

// baseResidual anchors the grid at the 36-month/10k value, falling back to
// the lowest published term and finally to a constant for rate tables with
// no residual data.
func baseResidual(table *domain.RateTable) float64 {
	if table == nil {
		return fallbackBaseResidual
	}
	if pct, ok := rates.PickResidualPercent(table, baseTermMonths, baseMileage); ok {
		return pct
	}

	terms := make([]int, 0, len(table.Residuals))
	for term := range table.Residuals {
		if n, err := strconv.Atoi(term); err == nil {
			terms = append(terms, n)
		}
	}
	sort.Ints(terms)
	for _, term := range terms {
		if pct, ok := rates.PickResidualPercent(table, term, baseMileage); ok {
			return pct
		}
	}
	return fallbackBaseResidual
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
