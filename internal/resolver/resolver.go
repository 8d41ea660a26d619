// Package resolver selects the best-matching lease program and tax
// configuration for a vehicle.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/openlease/ratesync/internal/domain"
)

// Scoring weights for candidate specificity. A matching model pattern
// outranks a matching trim pattern; both outrank an unconstrained program.
const (
	modelMatchScore = 10
	trimMatchScore  = 5
)

// Vehicle identifies what is being priced.
type Vehicle struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Trim  string `json:"trim,omitempty"`
	Year  int    `json:"year"`
	State string `json:"state"`
	Zip   string `json:"zip,omitempty"`
}

// Service resolves programs and tax configurations against the store.
type Service struct {
	repo        domain.Repository
	eligibility *EligibilityEvaluator
}

// NewService creates a resolver service.
func NewService(repo domain.Repository, eligibility *EligibilityEvaluator) *Service {
	return &Service{
		repo:        repo,
		eligibility: eligibility,
	}
}

// ResolveProgram returns the highest-scoring program applicable to the
// vehicle at asOf, or nil when none matches. Candidates are ordered by a
// stable key before scoring so ties break deterministically.
func (s *Service) ResolveProgram(ctx context.Context, v Vehicle, asOf time.Time) (*domain.ProgramDefinition, error) {
	candidates, err := s.repo.ListPrograms(ctx, v.Brand)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	var (
		best      *domain.ProgramDefinition
		bestScore = -1
	)
	for _, p := range candidates {
		if !s.applies(p, v, asOf) {
			continue
		}

		score, ok := scoreCandidate(p, v)
		if !ok {
			continue
		}
		if score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best, nil
}

// applies runs the static filters plus the optional CEL eligibility check.
func (s *Service) applies(p *domain.ProgramDefinition, v Vehicle, asOf time.Time) bool {
	if !p.Active {
		return false
	}
	if !strings.EqualFold(p.Brand, v.Brand) {
		return false
	}
	if v.Year < p.YearFrom || v.Year > p.YearTo {
		return false
	}
	if asOf.Before(p.ActiveFrom) || asOf.After(p.ActiveTo) {
		return false
	}
	if !p.CoversState(v.State) {
		return false
	}

	if p.Eligibility != "" && s.eligibility != nil {
		eligible, err := s.eligibility.Evaluate(p.Eligibility, v)
		if err != nil {
			slog.Warn("discarding program with broken eligibility expression",
				"program_id", p.ID,
				"error", err,
			)
			return false
		}
		if !eligible {
			return false
		}
	}
	return true
}

// scoreCandidate returns the specificity score, or ok=false when the
// candidate must be discarded (non-empty model pattern that does not match).
func scoreCandidate(p *domain.ProgramDefinition, v Vehicle) (int, bool) {
	score := 0
	if p.ModelPattern != "" {
		if !matchPattern(p.ModelPattern, v.Model) {
			return 0, false
		}
		score += modelMatchScore
	}
	if p.TrimPattern != "" && matchPattern(p.TrimPattern, v.Trim) {
		score += trimMatchScore
	}
	return score, true
}

// matchPattern reports whether the pattern matches the value. Patterns are
// case-insensitive substrings of the catalog name, so "RX" covers "RX 350"
// and "RX 450h".
func matchPattern(pattern, value string) bool {
	return strings.Contains(
		strings.ToLower(strings.TrimSpace(value)),
		strings.ToLower(strings.TrimSpace(pattern)),
	)
}

// ResolveTax returns the tax configuration for a state and zip, preferring
// an exact zip-prefix match over the state-wide fallback. Returns nil when
// nothing matches; the caller supplies the configured default rate.
func (s *Service) ResolveTax(ctx context.Context, state, zip string) (*domain.TaxConfig, error) {
	configs, err := s.repo.ListTaxConfigs(ctx, state)
	if err != nil {
		return nil, err
	}

	var prefix string
	if len(zip) >= 2 {
		prefix = zip[:2]
	}

	var statewide *domain.TaxConfig
	for _, cfg := range configs {
		if len(cfg.ZipPrefixes) == 0 {
			if statewide == nil {
				statewide = cfg
			}
			continue
		}
		if prefix == "" {
			continue
		}
		for _, zp := range cfg.ZipPrefixes {
			if zp == prefix {
				return cfg, nil
			}
		}
	}
	return statewide, nil
}
