package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/openlease/ratesync/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "ratesync-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testRateTable(id, brand, model string, created time.Time) *domain.RateTable {
	return &domain.RateTable{
		ID:         id,
		Brand:      brand,
		Model:      model,
		ValidMonth: "2025-08",
		Region:     "west",
		MoneyFactor: map[string]float64{
			"24": 0.00028,
			"36": 0.00032,
		},
		Residuals: map[string]map[string]float64{
			"36": {"10000": 57, "12000": 56},
		},
		Incentives: map[string]float64{"loyalty": 1000},
		SourceID:   "pdf-2025-08",
		CreatedAt:  created,
	}
}

func TestRateTables(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		table := testRateTable("rt-001", "Lexus", "RX 350", now)
		if err := repo.SaveRateTable(ctx, table); err != nil {
			t.Fatalf("SaveRateTable failed: %v", err)
		}

		retrieved, err := repo.GetRateTable(ctx, "rt-001")
		if err != nil {
			t.Fatalf("GetRateTable failed: %v", err)
		}
		if retrieved.Brand != "Lexus" {
			t.Errorf("expected brand Lexus, got %s", retrieved.Brand)
		}
		if retrieved.MoneyFactor["36"] != 0.00032 {
			t.Errorf("expected money factor 0.00032, got %v", retrieved.MoneyFactor["36"])
		}
		if retrieved.Residuals["36"]["10000"] != 57 {
			t.Errorf("expected residual 57, got %v", retrieved.Residuals["36"]["10000"])
		}
	})

	t.Run("CurrentIsNewest", func(t *testing.T) {
		newer := testRateTable("rt-002", "Lexus", "RX 350", now.Add(time.Hour))
		newer.MoneyFactor["36"] = 0.00035
		if err := repo.SaveRateTable(ctx, newer); err != nil {
			t.Fatalf("SaveRateTable failed: %v", err)
		}

		current, err := repo.GetCurrentRateTable(ctx, "lexus", "rx 350")
		if err != nil {
			t.Fatalf("GetCurrentRateTable failed: %v", err)
		}
		if current.ID != "rt-002" {
			t.Errorf("expected rt-002, got %s", current.ID)
		}
	})

	t.Run("ListCurrentOnePerGroup", func(t *testing.T) {
		other := testRateTable("rt-003", "BMW", "X5", now)
		if err := repo.SaveRateTable(ctx, other); err != nil {
			t.Fatalf("SaveRateTable failed: %v", err)
		}

		tables, err := repo.ListCurrentRateTables(ctx)
		if err != nil {
			t.Fatalf("ListCurrentRateTables failed: %v", err)
		}
		if len(tables) != 2 {
			t.Fatalf("expected 2 current tables, got %d", len(tables))
		}
		for _, table := range tables {
			if table.Brand == "Lexus" && table.ID != "rt-002" {
				t.Errorf("expected newest Lexus snapshot rt-002, got %s", table.ID)
			}
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetRateTable(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetCurrentRateTable(ctx, "Audi", "Q7"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("RequiresIdentity", func(t *testing.T) {
		if err := repo.SaveRateTable(ctx, &domain.RateTable{ID: "rt-x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestPrograms(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	program := &domain.ProgramDefinition{
		ID:           "prog-001",
		Brand:        "Lexus",
		ModelPattern: "RX",
		YearFrom:     2024,
		YearTo:       2026,
		States:       []string{"CA", "NV"},
		ActiveFrom:   now.Add(-24 * time.Hour),
		ActiveTo:     now.Add(24 * time.Hour),
		Active:       true,
		Eligibility:  `trim.contains("Sport")`,
		FeeDefaults:  domain.FeeDefaults{Acquisition: 650, Doc: 85},
		LenderName:   "Lexus Financial",
		CreatedAt:    now,
	}

	if err := repo.SaveProgram(ctx, program); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}

	t.Run("ListByBrand", func(t *testing.T) {
		programs, err := repo.ListPrograms(ctx, "lexus")
		if err != nil {
			t.Fatalf("ListPrograms failed: %v", err)
		}
		if len(programs) != 1 {
			t.Fatalf("expected 1 program, got %d", len(programs))
		}
		got := programs[0]
		if !got.Active {
			t.Error("expected program to be active")
		}
		if got.FeeDefaults.Acquisition != 650 {
			t.Errorf("expected acquisition fee 650, got %v", got.FeeDefaults.Acquisition)
		}
		if len(got.States) != 2 || got.States[0] != "CA" {
			t.Errorf("unexpected states: %v", got.States)
		}
	})

	t.Run("BrandFilterExcludes", func(t *testing.T) {
		programs, err := repo.ListPrograms(ctx, "BMW")
		if err != nil {
			t.Fatalf("ListPrograms failed: %v", err)
		}
		if len(programs) != 0 {
			t.Errorf("expected no programs for BMW, got %d", len(programs))
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		program.Active = false
		if err := repo.SaveProgram(ctx, program); err != nil {
			t.Fatalf("SaveProgram failed: %v", err)
		}

		programs, err := repo.ListPrograms(ctx, "Lexus")
		if err != nil {
			t.Fatalf("ListPrograms failed: %v", err)
		}
		if len(programs) != 1 || programs[0].Active {
			t.Errorf("expected single inactive program, got %+v", programs)
		}
	})
}

func TestTaxConfigs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cfg := &domain.TaxConfig{
		ID:          "tax-ca-bay",
		State:       "CA",
		ZipPrefixes: []string{"94", "95"},
		TaxRate:     0.0925,
		TaxOnFees:   true,
		Breakdown:   map[string]float64{"state": 0.0725, "district": 0.02},
	}

	if err := repo.SaveTaxConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveTaxConfig failed: %v", err)
	}

	configs, err := repo.ListTaxConfigs(ctx, "ca")
	if err != nil {
		t.Fatalf("ListTaxConfigs failed: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 config, got %d", len(configs))
	}
	got := configs[0]
	if got.TaxRate != 0.0925 {
		t.Errorf("expected tax rate 0.0925, got %v", got.TaxRate)
	}
	if !got.TaxOnFees {
		t.Error("expected tax on fees")
	}
	if len(got.ZipPrefixes) != 2 {
		t.Errorf("unexpected zip prefixes: %v", got.ZipPrefixes)
	}
}

func TestDeals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	deal := &domain.Deal{
		ID:            "deal-001",
		Brand:         "Lexus",
		Model:         "RX 350",
		Trim:          "F Sport",
		Year:          2025,
		MSRP:          35000,
		SellingPrice:  33000,
		TermMonths:    36,
		AnnualMileage: 10000,
		State:         "CA",
		Zip:           "94110",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := repo.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal failed: %v", err)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := repo.GetDeal(ctx, "deal-001")
		if err != nil {
			t.Fatalf("GetDeal failed: %v", err)
		}
		if got.MSRP != 35000 {
			t.Errorf("expected MSRP 35000, got %v", got.MSRP)
		}
		if got.Calculated != nil {
			t.Error("expected no calculated fields on a fresh deal")
		}
		if got.Version != 0 {
			t.Errorf("expected version 0, got %d", got.Version)
		}
	})

	t.Run("UpdateCalculated", func(t *testing.T) {
		fields := &domain.CalculatedFields{
			MonthlyPayment:      453.70,
			MoneyFactorUsed:     0.00032,
			ResidualPercentUsed: 57,
			ProgramID:           "prog-001",
			CalculatedAt:        now,
		}

		if err := repo.UpdateDealCalculated(ctx, "deal-001", fields, 0); err != nil {
			t.Fatalf("UpdateDealCalculated failed: %v", err)
		}

		got, err := repo.GetDeal(ctx, "deal-001")
		if err != nil {
			t.Fatalf("GetDeal failed: %v", err)
		}
		if got.Version != 1 {
			t.Errorf("expected version 1 after update, got %d", got.Version)
		}
		if got.Calculated == nil || got.Calculated.MonthlyPayment != 453.70 {
			t.Errorf("unexpected calculated fields: %+v", got.Calculated)
		}
	})

	t.Run("StaleVersionRejected", func(t *testing.T) {
		err := repo.UpdateDealCalculated(ctx, "deal-001", &domain.CalculatedFields{}, 0)
		if !errors.Is(err, ErrStaleDeal) {
			t.Errorf("expected ErrStaleDeal, got: %v", err)
		}

		// The stored fields must be untouched.
		got, err := repo.GetDeal(ctx, "deal-001")
		if err != nil {
			t.Fatalf("GetDeal failed: %v", err)
		}
		if got.Calculated.MonthlyPayment != 453.70 {
			t.Errorf("stale write mutated the row: %+v", got.Calculated)
		}
	})

	t.Run("UpdateMissingDeal", func(t *testing.T) {
		err := repo.UpdateDealCalculated(ctx, "nonexistent", &domain.CalculatedFields{}, 0)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("UpsertPreservesCalculated", func(t *testing.T) {
		deal.SellingPrice = 32500
		if err := repo.SaveDeal(ctx, deal); err != nil {
			t.Fatalf("SaveDeal failed: %v", err)
		}

		got, err := repo.GetDeal(ctx, "deal-001")
		if err != nil {
			t.Fatalf("GetDeal failed: %v", err)
		}
		if got.SellingPrice != 32500 {
			t.Errorf("expected updated selling price, got %v", got.SellingPrice)
		}
		if got.Version != 1 || got.Calculated == nil {
			t.Errorf("catalog upsert clobbered calculated state: version=%d calculated=%+v",
				got.Version, got.Calculated)
		}
	})

	t.Run("ListByVehicle", func(t *testing.T) {
		deals, err := repo.ListDealsByVehicle(ctx, "lexus", "rx 350")
		if err != nil {
			t.Fatalf("ListDealsByVehicle failed: %v", err)
		}
		if len(deals) != 1 {
			t.Errorf("expected 1 deal, got %d", len(deals))
		}
	})
}

func TestSyncLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	old := 0.00030
	new1 := 0.00032
	first := &domain.SyncLogEntry{
		ID:        "log-001",
		Timestamp: now.Add(-time.Hour),
		Brand:     "Lexus",
		Model:     "RX 350",
		Changes: domain.RateChanges{
			MFChanges: map[string]domain.FieldChange{
				"mf_36": {Old: &old, New: &new1},
			},
		},
		Snapshot:       domain.RateSnapshot{"mf_36": 0.00032},
		DealIDsUpdated: []string{"deal-001"},
		DealsCount:     1,
	}
	second := &domain.SyncLogEntry{
		ID:        "log-002",
		Timestamp: now,
		Brand:     "Lexus",
		Model:     "RX 350",
		Snapshot:  domain.RateSnapshot{"mf_36": 0.00034},
	}

	for _, entry := range []*domain.SyncLogEntry{first, second} {
		if err := repo.SaveSyncLog(ctx, entry); err != nil {
			t.Fatalf("SaveSyncLog failed: %v", err)
		}
	}

	t.Run("LatestWinsByTimestamp", func(t *testing.T) {
		got, err := repo.GetLatestSyncLog(ctx, "Lexus", "RX 350")
		if err != nil {
			t.Fatalf("GetLatestSyncLog failed: %v", err)
		}
		if got.ID != "log-002" {
			t.Errorf("expected log-002, got %s", got.ID)
		}
		if got.Snapshot["mf_36"] != 0.00034 {
			t.Errorf("unexpected snapshot: %v", got.Snapshot)
		}
	})

	t.Run("LatestNotFound", func(t *testing.T) {
		if _, err := repo.GetLatestSyncLog(ctx, "BMW", "X5"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("RoundTripsChanges", func(t *testing.T) {
		got, err := repo.QuerySyncLogs(ctx, domain.SyncLogQuery{Brand: "Lexus"})
		if err != nil {
			t.Fatalf("QuerySyncLogs failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(got))
		}
		// Newest first; the older entry carries the change record.
		change, ok := got[1].Changes.MFChanges["mf_36"]
		if !ok || change.Old == nil || *change.Old != 0.00030 {
			t.Errorf("change record did not round-trip: %+v", got[1].Changes)
		}
		if got[1].DealsCount != 1 || len(got[1].DealIDsUpdated) != 1 {
			t.Errorf("deal bookkeeping did not round-trip: %+v", got[1])
		}
	})

	t.Run("QueryLimit", func(t *testing.T) {
		got, err := repo.QuerySyncLogs(ctx, domain.SyncLogQuery{Limit: 1})
		if err != nil {
			t.Fatalf("QuerySyncLogs failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "log-002" {
			t.Errorf("expected only the newest entry, got %+v", got)
		}
	})

	t.Run("QueryTimeWindow", func(t *testing.T) {
		got, err := repo.QuerySyncLogs(ctx, domain.SyncLogQuery{
			From: now.Add(-30 * time.Minute),
		})
		if err != nil {
			t.Fatalf("QuerySyncLogs failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "log-002" {
			t.Errorf("expected the entry inside the window, got %+v", got)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
