package rates

import (
	"strconv"

	"github.com/openlease/ratesync/internal/domain"
)

// PickMoneyFactor returns the money factor for the requested term. When the
// term is absent and the table holds exactly one entry, that single value is
// returned as a fallback; a multi-entry table with a missing term reports
// not found rather than guessing.
func PickMoneyFactor(table *domain.RateTable, termMonths int) (float64, bool) {
	if table == nil || len(table.MoneyFactor) == 0 {
		return 0, false
	}

	key := strconv.Itoa(termMonths)
	if mf, ok := table.MoneyFactor[key]; ok {
		return mf, true
	}

	if len(table.MoneyFactor) == 1 {
		for _, mf := range table.MoneyFactor {
			return mf, true
		}
	}

	return 0, false
}

// PickResidualPercent returns the residual percent for the requested term and
// annual mileage. A missing term reports not found; a missing mileage falls
// back to the entry with the smallest absolute distance from the request,
// ties resolved to the smaller mileage key.
func PickResidualPercent(table *domain.RateTable, termMonths, annualMileage int) (float64, bool) {
	if table == nil {
		return 0, false
	}

	byMileage, ok := table.Residuals[strconv.Itoa(termMonths)]
	if !ok || len(byMileage) == 0 {
		return 0, false
	}

	key := strconv.Itoa(annualMileage)
	if pct, ok := byMileage[key]; ok {
		return pct, true
	}

	var (
		bestMileage int
		bestDist    int
		bestPct     float64
		found       bool
	)
	for mk, pct := range byMileage {
		mileage, err := strconv.Atoi(mk)
		if err != nil {
			continue
		}
		dist := mileage - annualMileage
		if dist < 0 {
			dist = -dist
		}
		if !found || dist < bestDist || (dist == bestDist && mileage < bestMileage) {
			bestMileage = mileage
			bestDist = dist
			bestPct = pct
			found = true
		}
	}
	return bestPct, found
}
