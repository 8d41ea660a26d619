// Package rates validates ingested lender programs into rate tables and
// provides the pure lookup and diff operations on them.
package rates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openlease/ratesync/internal/domain"
)

// FromParsed validates a ParsedProgram from the ingestion pipeline into an
// immutable RateTable. Both rate maps may legitimately be empty; term and
// mileage keys must parse as positive integers.
func FromParsed(p *domain.ParsedProgram, now time.Time) (*domain.RateTable, error) {
	if p == nil {
		return nil, fmt.Errorf("parsed program is required")
	}
	if strings.TrimSpace(p.Brand) == "" {
		return nil, fmt.Errorf("parsed program: brand is required")
	}
	if p.SourceID == "" {
		return nil, fmt.Errorf("parsed program: sourceId is required")
	}

	month := p.Month
	if month == "" {
		month = now.UTC().Format("2006-01")
	} else if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("parsed program: invalid month %q: %w", month, err)
	}

	for term := range p.MoneyFactor {
		if err := checkTermKey(term); err != nil {
			return nil, fmt.Errorf("parsed program: money factor: %w", err)
		}
	}
	for term, byMileage := range p.Residuals {
		if err := checkTermKey(term); err != nil {
			return nil, fmt.Errorf("parsed program: residuals: %w", err)
		}
		for mileage, pct := range byMileage {
			if n, err := strconv.Atoi(mileage); err != nil || n <= 0 {
				return nil, fmt.Errorf("parsed program: residuals: invalid mileage key %q", mileage)
			}
			if pct <= 0 || pct > 100 {
				return nil, fmt.Errorf("parsed program: residual percent %v out of range for term %s mileage %s", pct, term, mileage)
			}
		}
	}

	return &domain.RateTable{
		ID:          uuid.New().String(),
		Brand:       strings.TrimSpace(p.Brand),
		Model:       strings.TrimSpace(p.Model),
		ValidMonth:  month,
		Region:      p.Region,
		MoneyFactor: copyFloatMap(p.MoneyFactor),
		Residuals:   copyResiduals(p.Residuals),
		Incentives:  copyFloatMap(p.Incentives),
		Constraints: copyStringMap(p.Constraints),
		SourceID:    p.SourceID,
		CreatedAt:   now.UTC(),
	}, nil
}

func checkTermKey(term string) error {
	n, err := strconv.Atoi(term)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid term key %q", term)
	}
	return nil
}

// The maps are copied so the table stays immutable even if the caller
// mutates the parsed payload afterwards.

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyResiduals(m map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(m))
	for k, v := range m {
		out[k] = copyFloatMap(v)
	}
	return out
}
