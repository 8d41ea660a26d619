package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlease/ratesync/internal/calcconfig"
	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/pricing"
	"github.com/openlease/ratesync/internal/rates"
	"github.com/openlease/ratesync/internal/repository"
	"github.com/openlease/ratesync/internal/resolver"
	syncer "github.com/openlease/ratesync/internal/sync"
)

// calcConfigTTL bounds how long a generated calculator config may serve from
// cache. Rate changes invalidate eagerly; the TTL only covers program and tax
// edits, which do not flow through the sync pipeline.
const calcConfigTTL = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	resolver     *resolver.Service
	eligibility  *resolver.EligibilityEvaluator
	calc         *pricing.Calculator
	orchestrator *syncer.Orchestrator

	defaultTaxRate float64
	version        string
}

// NewHandler creates a new API handler.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	res *resolver.Service,
	eligibility *resolver.EligibilityEvaluator,
	calc *pricing.Calculator,
	orchestrator *syncer.Orchestrator,
	pricingCfg domain.PricingConfig,
	version string,
) *Handler {
	defaultTaxRate := pricingCfg.DefaultTaxRate
	if defaultTaxRate == 0 {
		defaultTaxRate = pricing.DefaultTaxRate
	}
	return &Handler{
		repo:           repo,
		cache:          cache,
		bus:            bus,
		resolver:       res,
		eligibility:    eligibility,
		calc:           calc,
		orchestrator:   orchestrator,
		defaultTaxRate: defaultTaxRate,
		version:        version,
	}
}

// CalculateRequest is the request body for POST /calculate.
type CalculateRequest struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Trim  string `json:"trim,omitempty"`
	Year  int    `json:"year"`
	State string `json:"state"`
	Zip   string `json:"zip,omitempty"`

	MSRP          float64 `json:"msrp"`
	SellingPrice  float64 `json:"sellingPrice"`
	TermMonths    int     `json:"termMonths"`
	AnnualMileage int     `json:"annualMileage"`
	DownPayment   float64 `json:"downPayment"`

	ApplyIncentives  bool               `json:"applyIncentives"`
	ManualIncentives map[string]float64 `json:"manualIncentives,omitempty"`
	DriveOffMode     string             `json:"driveOffMode,omitempty"`

	OverrideMoneyFactor     *float64 `json:"overrideMoneyFactor,omitempty"`
	OverrideResidualPercent *float64 `json:"overrideResidualPercent,omitempty"`
}

// CalculateResponse is the response for POST /calculate.
type CalculateResponse struct {
	Result *pricing.Result `json:"result"`

	ProgramID   string  `json:"programId,omitempty"`
	RateTableID string  `json:"rateTableId,omitempty"`
	TaxRate     float64 `json:"taxRate"`

	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Calculate handles POST /calculate: it resolves the program, tax rate and
// current rate table for the vehicle, then runs the payment pipeline.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Brand == "" || req.Model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "brand and model are required",
		})
		return
	}
	if req.MSRP <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "msrp must be positive",
		})
		return
	}
	if req.TermMonths <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "termMonths must be positive",
		})
		return
	}

	now := time.Now().UTC()
	vehicle := resolver.Vehicle{
		Brand: req.Brand,
		Model: req.Model,
		Trim:  req.Trim,
		Year:  req.Year,
		State: req.State,
		Zip:   req.Zip,
	}

	program, err := h.resolver.ResolveProgram(ctx, vehicle, now)
	if err != nil {
		slog.Error("failed to resolve program", "brand", req.Brand, "model", req.Model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "program resolution failed",
		})
		return
	}

	taxRate := h.defaultTaxRate
	tax, err := h.resolver.ResolveTax(ctx, req.State, req.Zip)
	if err != nil {
		slog.Error("failed to resolve tax", "state", req.State, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "tax resolution failed",
		})
		return
	}
	if tax != nil {
		taxRate = tax.TaxRate
	}

	// A missing table is tolerable when the request overrides both rates.
	table, err := h.repo.GetCurrentRateTable(ctx, req.Brand, req.Model)
	if errors.Is(err, repository.ErrNotFound) {
		table = nil
	} else if err != nil {
		slog.Error("failed to load rate table", "brand", req.Brand, "model", req.Model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rate table lookup failed",
		})
		return
	}

	calcReq := &pricing.Request{
		Brand:                   req.Brand,
		Model:                   req.Model,
		Trim:                    req.Trim,
		MSRP:                    req.MSRP,
		SellingPrice:            req.SellingPrice,
		TermMonths:              req.TermMonths,
		AnnualMileage:           req.AnnualMileage,
		DownPayment:             req.DownPayment,
		TaxRate:                 taxRate,
		ApplyIncentives:         req.ApplyIncentives,
		ManualIncentives:        req.ManualIncentives,
		DriveOffMode:            req.DriveOffMode,
		OverrideMoneyFactor:     req.OverrideMoneyFactor,
		OverrideResidualPercent: req.OverrideResidualPercent,
	}
	if program != nil {
		calcReq.AcquisitionFee = program.FeeDefaults.Acquisition
		calcReq.DocFee = program.FeeDefaults.Doc
		calcReq.RegistrationFee = program.FeeDefaults.Registration
		calcReq.OtherFees = program.FeeDefaults.Other
	}

	result, err := h.calc.Calculate(calcReq, table)
	if errors.Is(err, pricing.ErrInvalidRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if errors.Is(err, pricing.ErrMissingRateData) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		slog.Error("calculation failed", "brand", req.Brand, "model", req.Model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "calculation failed",
		})
		return
	}

	resp := CalculateResponse{
		Result:  result,
		TaxRate: taxRate,
	}
	if program != nil {
		resp.ProgramID = program.ID
	}
	if table != nil {
		resp.RateTableID = table.ID
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// ResolveProgram handles GET /resolve/program.
func (h *Handler) ResolveProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	vehicle := resolver.Vehicle{
		Brand: q.Get("brand"),
		Model: q.Get("model"),
		Trim:  q.Get("trim"),
		State: q.Get("state"),
		Zip:   q.Get("zip"),
	}
	if vehicle.Brand == "" || vehicle.Model == "" || vehicle.State == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "brand, model, and state are required",
		})
		return
	}

	vehicle.Year = time.Now().UTC().Year()
	if y := q.Get("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "year must be an integer",
			})
			return
		}
		vehicle.Year = n
	}

	program, err := h.resolver.ResolveProgram(ctx, vehicle, time.Now().UTC())
	if err != nil {
		slog.Error("failed to resolve program", "brand", vehicle.Brand, "model", vehicle.Model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "program resolution failed",
		})
		return
	}
	if program == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no program matches the vehicle",
		})
		return
	}

	writeJSON(w, http.StatusOK, program)
}

// ResolveTax handles GET /resolve/tax. When nothing matches, the configured
// default rate is reported with source "default" instead of a 404, because
// the calculator falls back the same way.
func (h *Handler) ResolveTax(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := r.URL.Query().Get("state")
	zip := r.URL.Query().Get("zip")

	if state == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "state is required",
		})
		return
	}

	tax, err := h.resolver.ResolveTax(ctx, state, zip)
	if err != nil {
		slog.Error("failed to resolve tax", "state", state, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "tax resolution failed",
		})
		return
	}
	if tax == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"taxRate": h.defaultTaxRate,
			"source":  "default",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"taxRate": tax.TaxRate,
		"source":  "config",
		"config":  tax,
	})
}

// CalculatorConfig handles GET /calculator-config. Configs are cached per
// (brand, model, state, zip); the sync orchestrator drops the group prefix
// when rates change.
func (h *Handler) CalculatorConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	brand := q.Get("brand")
	model := q.Get("model")
	state := q.Get("state")
	zip := q.Get("zip")

	if brand == "" || model == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "brand, model, and state are required",
		})
		return
	}

	key := calcconfig.CacheKey(brand, model, state, zip)
	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, key); err == nil && cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	table, err := h.repo.GetCurrentRateTable(ctx, brand, model)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no rate table for vehicle",
		})
		return
	}
	if err != nil {
		slog.Error("failed to load rate table", "brand", brand, "model", model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rate table lookup failed",
		})
		return
	}

	now := time.Now().UTC()
	vehicle := resolver.Vehicle{
		Brand: brand,
		Model: model,
		Year:  now.Year(),
		State: state,
		Zip:   zip,
	}

	program, err := h.resolver.ResolveProgram(ctx, vehicle, now)
	if err != nil {
		slog.Error("failed to resolve program", "brand", brand, "model", model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "program resolution failed",
		})
		return
	}

	tax, err := h.resolver.ResolveTax(ctx, state, zip)
	if err != nil {
		slog.Error("failed to resolve tax", "state", state, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "tax resolution failed",
		})
		return
	}

	cfg := calcconfig.Generate(table, program, tax, h.defaultTaxRate)

	if h.cache != nil {
		if data, err := json.Marshal(cfg); err == nil {
			if err := h.cache.Set(ctx, key, data, calcConfigTTL); err != nil {
				slog.Warn("failed to cache calculator config", "key", key, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, cfg)
}

// IngestRates handles POST /ratetables: it validates a parsed lender program
// into an immutable rate table snapshot and announces it on the bus.
func (h *Handler) IngestRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var parsed domain.ParsedProgram
	if err := json.NewDecoder(r.Body).Decode(&parsed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	table, err := rates.FromParsed(&parsed, time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveRateTable(ctx, table); err != nil {
		slog.Error("failed to save rate table", "brand", table.Brand, "model", table.Model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rate table",
		})
		return
	}

	if h.bus != nil {
		event, _ := json.Marshal(map[string]string{
			"tableId": table.ID,
			"brand":   table.Brand,
			"model":   table.Model,
		})
		if err := h.bus.Publish(ctx, domain.TopicRatesIngested, event); err != nil {
			slog.Warn("failed to publish ingestion event", "table_id", table.ID, "error", err)
		}
	}

	slog.Info("rate table ingested",
		"table_id", table.ID,
		"brand", table.Brand,
		"model", table.Model,
		"source_id", table.SourceID,
	)
	writeJSON(w, http.StatusCreated, table)
}

// ListRateTables returns the newest snapshot per (brand, model) group.
func (h *Handler) ListRateTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.repo.ListCurrentRateTables(r.Context())
	if err != nil {
		slog.Error("failed to list rate tables", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rate tables",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables": tables,
		"count":  len(tables),
	})
}

// GetRateTable retrieves a rate table snapshot by ID.
func (h *Handler) GetRateTable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rate table id is required",
		})
		return
	}

	table, err := h.repo.GetRateTable(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rate table not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get rate table", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rate table",
		})
		return
	}

	writeJSON(w, http.StatusOK, table)
}

// SaveDeal handles POST /deals: it registers or updates a catalog deal. The
// upsert never touches calculated fields or the version token; those belong
// to the sync pipeline.
func (h *Handler) SaveDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var deal domain.Deal
	if err := json.NewDecoder(r.Body).Decode(&deal); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if deal.Brand == "" || deal.Model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "brand and model are required",
		})
		return
	}
	if deal.MSRP <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "msrp must be positive",
		})
		return
	}
	if deal.TermMonths <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "termMonths must be positive",
		})
		return
	}

	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	deal.UpdatedAt = now

	if err := h.repo.SaveDeal(ctx, &deal); err != nil {
		slog.Error("failed to save deal", "id", deal.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save deal",
		})
		return
	}

	writeJSON(w, http.StatusCreated, deal)
}

// GetDeal retrieves a deal by ID.
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "id")
	if dealID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "deal id is required",
		})
		return
	}

	deal, err := h.repo.GetDeal(r.Context(), dealID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "deal not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get deal", "id", dealID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get deal",
		})
		return
	}

	writeJSON(w, http.StatusOK, deal)
}

// RunSync handles POST /sync/run: it executes one sync run synchronously and
// returns the summary. A run already in flight answers 409.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.Run(r.Context())
	if errors.Is(err, syncer.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "sync run already in progress",
		})
		return
	}
	if err != nil {
		slog.Error("sync run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// QuerySyncLogs handles GET /sync/logs with optional brand, model, from, to
// and limit filters. Timestamps are RFC 3339.
func (h *Handler) QuerySyncLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := domain.SyncLogQuery{
		Brand: q.Get("brand"),
		Model: q.Get("model"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "from must be an RFC 3339 timestamp",
			})
			return
		}
		query.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "to must be an RFC 3339 timestamp",
			})
			return
		}
		query.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		query.Limit = n
	}

	logs, err := h.repo.QuerySyncLogs(r.Context(), query)
	if err != nil {
		slog.Error("failed to query sync logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to query sync logs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// CreateProgram handles POST /programs. The eligibility expression, when
// present, must compile before the program is accepted.
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var program domain.ProgramDefinition
	if err := json.NewDecoder(r.Body).Decode(&program); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if program.Brand == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "brand is required",
		})
		return
	}
	if len(program.States) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "states is required; use [\"ALL\"] for nationwide programs",
		})
		return
	}
	if program.YearFrom > program.YearTo {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "yearFrom must not exceed yearTo",
		})
		return
	}
	if !program.ActiveTo.IsZero() && program.ActiveTo.Before(program.ActiveFrom) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "activeTo must not precede activeFrom",
		})
		return
	}

	if program.Eligibility != "" && h.eligibility != nil {
		if err := h.eligibility.Validate(program.Eligibility); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid eligibility expression: " + err.Error(),
			})
			return
		}
	}

	if program.ID == "" {
		program.ID = uuid.New().String()
	}
	if program.CreatedAt.IsZero() {
		program.CreatedAt = time.Now().UTC()
	}

	if err := h.repo.SaveProgram(ctx, &program); err != nil {
		slog.Error("failed to save program", "id", program.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save program",
		})
		return
	}

	slog.Info("program created", "id", program.ID, "brand", program.Brand, "lender", program.LenderName)
	writeJSON(w, http.StatusCreated, program)
}

// ListPrograms returns programs, optionally filtered by brand.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.repo.ListPrograms(r.Context(), r.URL.Query().Get("brand"))
	if err != nil {
		slog.Error("failed to list programs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list programs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"programs": programs,
		"count":    len(programs),
	})
}

// CreateTaxConfig handles POST /taxconfigs.
func (h *Handler) CreateTaxConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cfg domain.TaxConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if cfg.State == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "state is required",
		})
		return
	}
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "taxRate must be a fraction between 0 and 1",
		})
		return
	}

	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	if err := h.repo.SaveTaxConfig(ctx, &cfg); err != nil {
		slog.Error("failed to save tax config", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save tax config",
		})
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// ListTaxConfigs returns tax configs, optionally filtered by state.
func (h *Handler) ListTaxConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListTaxConfigs(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		slog.Error("failed to list tax configs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list tax configs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configs": configs,
		"count":   len(configs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
