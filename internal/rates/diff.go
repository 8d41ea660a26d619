package rates

import (
	"strings"

	"github.com/openlease/ratesync/internal/domain"
)

// Diff computes the field-level changes between a previous snapshot and the
// current table. Keys follow the snapshot convention: "mf_<term>" and
// "rv_<term>_<mileage>". The union of both key sets is considered; any value
// inequality, including presence on only one side, is a change. A nil
// previous snapshot reports every current key as new.
func Diff(prev domain.RateSnapshot, current *domain.RateTable) domain.RateChanges {
	next := current.Snapshot()

	changes := domain.RateChanges{
		MFChanges:       make(map[string]domain.FieldChange),
		ResidualChanges: make(map[string]domain.FieldChange),
	}

	keys := make(map[string]struct{}, len(prev)+len(next))
	for k := range prev {
		keys[k] = struct{}{}
	}
	for k := range next {
		keys[k] = struct{}{}
	}

	for k := range keys {
		var oldVal, newVal *float64
		if v, ok := prev[k]; ok {
			v := v
			oldVal = &v
		}
		if v, ok := next[k]; ok {
			v := v
			newVal = &v
		}
		if equalValue(oldVal, newVal) {
			continue
		}

		change := domain.FieldChange{Old: oldVal, New: newVal}
		if strings.HasPrefix(k, "mf_") {
			changes.MFChanges[k] = change
		} else {
			changes.ResidualChanges[k] = change
		}
	}

	if len(changes.MFChanges) == 0 {
		changes.MFChanges = nil
	}
	if len(changes.ResidualChanges) == 0 {
		changes.ResidualChanges = nil
	}
	return changes
}

func equalValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
