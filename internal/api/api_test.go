package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/openlease/ratesync/internal/bus"
	"github.com/openlease/ratesync/internal/cache"
	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/pricing"
	"github.com/openlease/ratesync/internal/repository"
	"github.com/openlease/ratesync/internal/resolver"
	syncer "github.com/openlease/ratesync/internal/sync"
)

// createTestServer wires a server over a temp SQLite store, a memory cache
// and an in-process bus.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "ratesync-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	memCache := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	eval, err := resolver.NewEligibilityEvaluator()
	if err != nil {
		t.Fatalf("failed to create eligibility evaluator: %v", err)
	}
	res := resolver.NewService(repo, eval)

	pricingCfg := domain.PricingConfig{}
	calc := pricing.New(pricingCfg)

	orch := syncer.NewOrchestrator(repo, memCache, eventBus, res, calc,
		domain.SyncConfig{MaxGroupWorkers: 2, RunTimeout: time.Minute}, pricingCfg)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, repo, memCache, eventBus, res, eval, calc, orch, pricingCfg, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func ingestTestRates(t *testing.T, server *Server) string {
	t.Helper()

	rr := doJSON(t, server, http.MethodPost, "/ratetables", domain.ParsedProgram{
		Brand:       "Lexus",
		Model:       "RX 350",
		Month:       "2026-09",
		MoneyFactor: map[string]float64{"36": 0.00032},
		Residuals: map[string]map[string]float64{
			"36": {"10000": 57, "12000": 56},
		},
		SourceID: "sheet-2026-09",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var table domain.RateTable
	if err := json.Unmarshal(rr.Body.Bytes(), &table); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return table.ID
}

func createTestProgram(t *testing.T, server *Server) string {
	t.Helper()

	now := time.Now().UTC()
	rr := doJSON(t, server, http.MethodPost, "/programs", domain.ProgramDefinition{
		Brand:      "Lexus",
		YearFrom:   2020,
		YearTo:     2030,
		States:     []string{domain.StatesAll},
		ActiveFrom: now.Add(-24 * time.Hour),
		ActiveTo:   now.Add(30 * 24 * time.Hour),
		Active:     true,
		FeeDefaults: domain.FeeDefaults{
			Acquisition: 795,
			Doc:         85,
		},
		LenderName: "Lexus Financial",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var program domain.ProgramDefinition
	if err := json.Unmarshal(rr.Body.Bytes(), &program); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return program.ID
}

func TestCalculateEndpoint(t *testing.T) {
	server := createTestServer(t)
	ingestTestRates(t, server)
	programID := createTestProgram(t, server)

	t.Run("SuccessfulCalculation", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/calculate", CalculateRequest{
			Brand:         "Lexus",
			Model:         "RX 350",
			Year:          2026,
			State:         "CA",
			MSRP:          35000,
			SellingPrice:  33000,
			TermMonths:    36,
			AnnualMileage: 10000,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp CalculateResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Result == nil {
			t.Fatal("expected result in response")
		}
		if resp.Result.MoneyFactor != 0.00032 {
			t.Errorf("expected money factor 0.00032, got %v", resp.Result.MoneyFactor)
		}
		if resp.Result.ResidualPercent != 57 {
			t.Errorf("expected residual 57, got %v", resp.Result.ResidualPercent)
		}
		if resp.Result.MonthlyPayment <= 0 {
			t.Errorf("expected positive monthly payment, got %v", resp.Result.MonthlyPayment)
		}
		if resp.ProgramID != programID {
			t.Errorf("expected program %s, got %s", programID, resp.ProgramID)
		}
		if resp.RateTableID == "" {
			t.Error("expected rateTableId in response")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/calculate", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingVehicle", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/calculate", CalculateRequest{
			MSRP:       35000,
			TermMonths: 36,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidMSRP", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/calculate", CalculateRequest{
			Brand:      "Lexus",
			Model:      "RX 350",
			State:      "CA",
			MSRP:       -1,
			TermMonths: 36,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NoRateData", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/calculate", CalculateRequest{
			Brand:        "Toyota",
			Model:        "Camry",
			State:        "CA",
			MSRP:         30000,
			SellingPrice: 29000,
			TermMonths:   36,
		})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("OverridesWithoutTable", func(t *testing.T) {
		mf := 0.0004
		residual := 55.0
		rr := doJSON(t, server, http.MethodPost, "/calculate", CalculateRequest{
			Brand:                   "Toyota",
			Model:                   "Camry",
			State:                   "CA",
			MSRP:                    30000,
			SellingPrice:            29000,
			TermMonths:              36,
			OverrideMoneyFactor:     &mf,
			OverrideResidualPercent: &residual,
		})
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestResolveEndpoints(t *testing.T) {
	server := createTestServer(t)
	programID := createTestProgram(t, server)

	t.Run("ResolveProgram", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/resolve/program?brand=Lexus&model=RX+350&state=CA&year=2026", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var program domain.ProgramDefinition
		if err := json.Unmarshal(rr.Body.Bytes(), &program); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if program.ID != programID {
			t.Errorf("expected program %s, got %s", programID, program.ID)
		}
	})

	t.Run("ResolveProgramNoMatch", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/resolve/program?brand=Honda&model=Civic&state=CA", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ResolveProgramMissingParams", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/resolve/program?brand=Lexus", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResolveTaxFromConfig", func(t *testing.T) {
		created := doJSON(t, server, http.MethodPost, "/taxconfigs", domain.TaxConfig{
			State:       "CA",
			ZipPrefixes: []string{"90"},
			TaxRate:     0.095,
		})
		if created.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", created.Code, created.Body.String())
		}

		rr := doJSON(t, server, http.MethodGet, "/resolve/tax?state=CA&zip=90210", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["source"] != "config" {
			t.Errorf("expected source config, got %v", resp["source"])
		}
		if resp["taxRate"] != 0.095 {
			t.Errorf("expected taxRate 0.095, got %v", resp["taxRate"])
		}
	})

	t.Run("ResolveTaxDefaultFallback", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/resolve/tax?state=NV&zip=89101", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["source"] != "default" {
			t.Errorf("expected source default, got %v", resp["source"])
		}
	})
}

func TestCalculatorConfigEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("NoRateTable", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/calculator-config?brand=Lexus&model=RX+350&state=CA", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	ingestTestRates(t, server)

	t.Run("GeneratesConfig", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/calculator-config?brand=Lexus&model=RX+350&state=CA&zip=90210", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var cfg struct {
			Brand        string                        `json:"brand"`
			Tiers        []map[string]interface{}      `json:"tiers"`
			ResidualGrid map[string]map[string]float64 `json:"residualGrid"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if cfg.Brand != "Lexus" {
			t.Errorf("expected brand Lexus, got %s", cfg.Brand)
		}
		if len(cfg.Tiers) != 4 {
			t.Errorf("expected 4 credit tiers, got %d", len(cfg.Tiers))
		}
		if len(cfg.ResidualGrid) == 0 {
			t.Error("expected residual grid in config")
		}
	})

	t.Run("ServedFromCache", func(t *testing.T) {
		first := doJSON(t, server, http.MethodGet, "/calculator-config?brand=Lexus&model=RX+350&state=CA&zip=90210", nil)
		second := doJSON(t, server, http.MethodGet, "/calculator-config?brand=Lexus&model=RX+350&state=CA&zip=90210", nil)

		if second.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", second.Code)
		}
		if !bytes.Equal(bytes.TrimSpace(first.Body.Bytes()), bytes.TrimSpace(second.Body.Bytes())) {
			t.Error("expected identical config on repeated request")
		}
	})

	t.Run("MissingParams", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/calculator-config?brand=Lexus", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestRateTableEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("IngestAndGet", func(t *testing.T) {
		tableID := ingestTestRates(t, server)

		rr := doJSON(t, server, http.MethodGet, "/ratetables/"+tableID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var table domain.RateTable
		if err := json.Unmarshal(rr.Body.Bytes(), &table); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if table.Brand != "Lexus" {
			t.Errorf("expected brand Lexus, got %s", table.Brand)
		}
	})

	t.Run("ListCurrent", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/ratetables", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 current table, got %d", resp.Count)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/ratetables/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("RejectsInvalidPayload", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/ratetables", domain.ParsedProgram{
			Brand:       "Lexus",
			SourceID:    "sheet-x",
			MoneyFactor: map[string]float64{"not-a-term": 0.0003},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestDealEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateAndGet", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/deals", domain.Deal{
			Brand:         "Lexus",
			Model:         "RX 350",
			Year:          2026,
			MSRP:          35000,
			SellingPrice:  33000,
			TermMonths:    36,
			AnnualMileage: 10000,
			State:         "CA",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var created domain.Deal
		if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if created.ID == "" {
			t.Fatal("expected generated deal id")
		}

		got := doJSON(t, server, http.MethodGet, "/deals/"+created.ID, nil)
		if got.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", got.Code)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/deals/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("RejectsInvalidDeal", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/deals", domain.Deal{
			Brand:      "Lexus",
			Model:      "RX 350",
			MSRP:       0,
			TermMonths: 36,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestSyncEndpoints(t *testing.T) {
	server := createTestServer(t)
	ingestTestRates(t, server)
	createTestProgram(t, server)

	dealResp := doJSON(t, server, http.MethodPost, "/deals", domain.Deal{
		Brand:         "Lexus",
		Model:         "RX 350",
		Year:          2026,
		MSRP:          35000,
		SellingPrice:  33000,
		TermMonths:    36,
		AnnualMileage: 10000,
		State:         "CA",
	})
	if dealResp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", dealResp.Code, dealResp.Body.String())
	}

	t.Run("RunSync", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/sync/run", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var summary syncer.RunSummary
		if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if summary.State != syncer.StateDone {
			t.Errorf("expected state done, got %s", summary.State)
		}
		if summary.DealsRecalculated != 1 {
			t.Errorf("expected 1 recalculated deal, got %d", summary.DealsRecalculated)
		}
	})

	t.Run("QueryLogs", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/sync/logs?brand=Lexus&model=RX+350", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 log entry, got %d", resp.Count)
		}
	})

	t.Run("QueryLogsBadTimestamp", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/sync/logs?from=yesterday", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestProgramValidation(t *testing.T) {
	server := createTestServer(t)

	t.Run("RejectsMissingStates", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/programs", domain.ProgramDefinition{
			Brand:    "Lexus",
			YearFrom: 2020,
			YearTo:   2030,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsBrokenEligibility", func(t *testing.T) {
		now := time.Now().UTC()
		rr := doJSON(t, server, http.MethodPost, "/programs", domain.ProgramDefinition{
			Brand:       "Lexus",
			YearFrom:    2020,
			YearTo:      2030,
			States:      []string{domain.StatesAll},
			ActiveFrom:  now,
			ActiveTo:    now.Add(time.Hour),
			Active:      true,
			Eligibility: "year >>> broken",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
