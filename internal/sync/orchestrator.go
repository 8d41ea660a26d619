// Package sync implements the rate-change sync orchestrator: it scans the
// current rate tables, diffs them against the last logged snapshot per
// (brand, model) group, reprices the affected deals and appends an audit log
// entry per changed group.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openlease/ratesync/internal/calcconfig"
	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/pricing"
	"github.com/openlease/ratesync/internal/rates"
	"github.com/openlease/ratesync/internal/repository"
	"github.com/openlease/ratesync/internal/resolver"
)

var tracer = otel.Tracer("ratesync-sync")

// ErrRunInProgress means a sync run is already executing. Runs are serialized
// because two concurrent runs would race on the same log baselines.
var ErrRunInProgress = errors.New("sync run already in progress")

// State is the phase of a sync run.
type State string

const (
	StateScanning      State = "scanning"
	StateDiffing       State = "diffing"
	StateRecalculating State = "recalculating"
	StateLogging       State = "logging"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// DealFailure records one deal that could not be repriced during a run.
// Failures never abort the run; they surface in the summary.
type DealFailure struct {
	DealID string `json:"dealId"`
	Reason string `json:"reason"`
}

// RunSummary is the outcome of one sync run.
type RunSummary struct {
	RunID string `json:"runId"`
	State State  `json:"state"`

	GroupsScanned     int `json:"groupsScanned"`
	GroupsChanged     int `json:"groupsChanged"`
	DealsRecalculated int `json:"dealsRecalculated"`

	LogIDs      []string      `json:"logIds,omitempty"`
	FailedDeals []DealFailure `json:"failedDeals,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Orchestrator runs the scan-diff-recalculate-log pipeline.
type Orchestrator struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	resolver *resolver.Service
	calc     *pricing.Calculator

	cfg            domain.SyncConfig
	defaultTaxRate float64

	running gosync.Mutex
}

// NewOrchestrator creates a sync orchestrator. Cache and bus may be nil; the
// run then skips invalidation and event publishing.
func NewOrchestrator(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	res *resolver.Service,
	calc *pricing.Calculator,
	cfg domain.SyncConfig,
	pricingCfg domain.PricingConfig,
) *Orchestrator {
	defaultTaxRate := pricingCfg.DefaultTaxRate
	if defaultTaxRate == 0 {
		defaultTaxRate = pricing.DefaultTaxRate
	}
	return &Orchestrator{
		repo:           repo,
		cache:          cache,
		bus:            bus,
		resolver:       res,
		calc:           calc,
		cfg:            cfg,
		defaultTaxRate: defaultTaxRate,
	}
}

// changedGroup is one (brand, model) whose current table differs from the
// last logged snapshot.
type changedGroup struct {
	table   *domain.RateTable
	changes domain.RateChanges
}

// groupResult is the recalculation outcome for one changed group.
type groupResult struct {
	group        *changedGroup
	dealsUpdated []string
	failures     []DealFailure
	err          error
}

// Run executes one sync run under the configured deadline. Per-deal failures
// are collected in the summary; an infrastructure failure moves the run to
// Failed, publishes an alert and returns the error. Log entries committed
// before the failure stay committed.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	if !o.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	summary := &RunSummary{
		RunID:     uuid.New().String(),
		State:     StateScanning,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := tracer.Start(ctx, "sync.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", summary.RunID))

	slog.Info("sync run started", "run_id", summary.RunID)

	// Scanning
	tables, err := o.repo.ListCurrentRateTables(ctx)
	if err != nil {
		return o.fail(ctx, summary, fmt.Errorf("scanning rate tables: %w", err))
	}
	summary.GroupsScanned = len(tables)

	// Diffing
	summary.State = StateDiffing
	var changed []*changedGroup
	for _, table := range tables {
		prev, err := o.previousSnapshot(ctx, table.Brand, table.Model)
		if err != nil {
			return o.fail(ctx, summary, fmt.Errorf("loading snapshot for %s %s: %w", table.Brand, table.Model, err))
		}

		changes := rates.Diff(prev, table)
		if changes.Empty() {
			continue
		}
		changed = append(changed, &changedGroup{table: table, changes: changes})
	}
	summary.GroupsChanged = len(changed)

	if len(changed) == 0 {
		return o.finish(ctx, summary)
	}

	// Recalculating: groups run on a bounded worker pool.
	summary.State = StateRecalculating
	results := make([]*groupResult, len(changed))

	maxWorkers := o.cfg.MaxGroupWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	sem := make(chan struct{}, maxWorkers)
	var wg gosync.WaitGroup

	for i, group := range changed {
		wg.Add(1)
		go func(idx int, g *changedGroup) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = o.recalcGroup(ctx, g)
		}(i, group)
	}
	wg.Wait()

	// Logging: audit entries are committed sequentially so a failure leaves
	// every earlier entry in place.
	summary.State = StateLogging
	now := time.Now().UTC()
	for _, res := range results {
		summary.FailedDeals = append(summary.FailedDeals, res.failures...)
		if res.err != nil {
			return o.fail(ctx, summary, res.err)
		}
		summary.DealsRecalculated += len(res.dealsUpdated)

		entry := &domain.SyncLogEntry{
			ID:             uuid.New().String(),
			Timestamp:      now,
			Brand:          res.group.table.Brand,
			Model:          res.group.table.Model,
			Changes:        res.group.changes,
			Snapshot:       res.group.table.Snapshot(),
			DealIDsUpdated: res.dealsUpdated,
			DealsCount:     len(res.dealsUpdated),
		}
		if err := o.repo.SaveSyncLog(ctx, entry); err != nil {
			return o.fail(ctx, summary, fmt.Errorf("saving sync log for %s %s: %w", entry.Brand, entry.Model, err))
		}
		summary.LogIDs = append(summary.LogIDs, entry.ID)

		if o.cache != nil {
			prefix := calcconfig.CacheKeyPrefix(entry.Brand, entry.Model)
			if err := o.cache.DeletePrefix(ctx, prefix); err != nil {
				slog.Warn("failed to invalidate calculator configs",
					"brand", entry.Brand,
					"model", entry.Model,
					"error", err,
				)
			}
		}
	}

	return o.finish(ctx, summary)
}

// previousSnapshot loads the baseline for diffing from the log store. A group
// with no log history diffs against nil, so every key reports as added.
func (o *Orchestrator) previousSnapshot(ctx context.Context, brand, model string) (domain.RateSnapshot, error) {
	entry, err := o.repo.GetLatestSyncLog(ctx, brand, model)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Snapshot, nil
}

// recalcGroup reprices every deal for one changed group. Per-deal errors are
// collected; only a failure to list the deals is an infrastructure error.
func (o *Orchestrator) recalcGroup(ctx context.Context, g *changedGroup) *groupResult {
	res := &groupResult{group: g}

	deals, err := o.repo.ListDealsByVehicle(ctx, g.table.Brand, g.table.Model)
	if err != nil {
		res.err = fmt.Errorf("listing deals for %s %s: %w", g.table.Brand, g.table.Model, err)
		return res
	}

	for _, deal := range deals {
		if err := o.recalcDeal(ctx, deal, g.table); err != nil {
			res.failures = append(res.failures, DealFailure{
				DealID: deal.ID,
				Reason: err.Error(),
			})
			continue
		}
		res.dealsUpdated = append(res.dealsUpdated, deal.ID)
	}

	return res
}

// recalcDeal re-resolves the program for one deal, reprices it and writes
// the calculated fields conditionally on the version the deal was read at.
func (o *Orchestrator) recalcDeal(ctx context.Context, deal *domain.Deal, table *domain.RateTable) error {
	now := time.Now().UTC()

	vehicle := resolver.Vehicle{
		Brand: deal.Brand,
		Model: deal.Model,
		Trim:  deal.Trim,
		Year:  deal.Year,
		State: deal.State,
		Zip:   deal.Zip,
	}

	program, err := o.resolver.ResolveProgram(ctx, vehicle, now)
	if err != nil {
		return fmt.Errorf("resolving program: %w", err)
	}

	taxRate := o.defaultTaxRate
	tax, err := o.resolver.ResolveTax(ctx, deal.State, deal.Zip)
	if err != nil {
		return fmt.Errorf("resolving tax: %w", err)
	}
	if tax != nil {
		taxRate = tax.TaxRate
	}

	req := &pricing.Request{
		Brand:           deal.Brand,
		Model:           deal.Model,
		Trim:            deal.Trim,
		Region:          deal.Region,
		MSRP:            deal.MSRP,
		SellingPrice:    deal.SellingPrice,
		TermMonths:      deal.TermMonths,
		AnnualMileage:   deal.AnnualMileage,
		DownPayment:     deal.DownPayment,
		TaxRate:         taxRate,
		ApplyIncentives: true,
	}
	if program != nil {
		req.AcquisitionFee = program.FeeDefaults.Acquisition
		req.DocFee = program.FeeDefaults.Doc
		req.RegistrationFee = program.FeeDefaults.Registration
		req.OtherFees = program.FeeDefaults.Other
	}

	result, err := o.calc.Calculate(req, table)
	if err != nil {
		return fmt.Errorf("calculating payment: %w", err)
	}

	fields := &domain.CalculatedFields{
		MonthlyPayment:      result.MonthlyPayment,
		DriveOff:            result.DriveOff,
		OnePay:              result.OnePay,
		MoneyFactorUsed:     result.MoneyFactor,
		ResidualPercentUsed: result.ResidualPercent,
		SavingsVsMSRP:       result.SavingsVsMSRP,
		CalculatedAt:        now,
	}
	if program != nil {
		fields.ProgramID = program.ID
	}

	if err := o.repo.UpdateDealCalculated(ctx, deal.ID, fields, deal.Version); err != nil {
		return fmt.Errorf("writing calculated fields: %w", err)
	}
	return nil
}

// finish marks the run done and publishes the completion event.
func (o *Orchestrator) finish(ctx context.Context, summary *RunSummary) (*RunSummary, error) {
	summary.State = StateDone
	summary.FinishedAt = time.Now().UTC()

	slog.Info("sync run finished",
		"run_id", summary.RunID,
		"groups_scanned", summary.GroupsScanned,
		"groups_changed", summary.GroupsChanged,
		"deals_recalculated", summary.DealsRecalculated,
		"deal_failures", len(summary.FailedDeals),
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)

	o.publish(ctx, domain.TopicSyncCompleted, summary)
	return summary, nil
}

// fail marks the run failed, publishes an alert and returns the error.
func (o *Orchestrator) fail(ctx context.Context, summary *RunSummary, err error) (*RunSummary, error) {
	summary.State = StateFailed
	summary.FinishedAt = time.Now().UTC()

	slog.Error("sync run failed",
		"run_id", summary.RunID,
		"error", err,
	)

	o.publish(ctx, domain.TopicSyncAlert, map[string]any{
		"runId": summary.RunID,
		"error": err.Error(),
	})
	return summary, err
}

func (o *Orchestrator) publish(ctx context.Context, topic string, payload any) {
	if o.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("failed to publish sync event",
			"topic", topic,
			"error", err,
		)
	}
}
