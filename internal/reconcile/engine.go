// Package reconcile sweeps active metered contracts, converts view count
// growth into billable units and records the resulting revenue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/clock"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	obsmetrics "github.com/viewdeal/viewdeal/internal/observability/metrics"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"github.com/viewdeal/viewdeal/internal/providers/billing"
	"github.com/viewdeal/viewdeal/internal/providers/views"
	revenuedomain "github.com/viewdeal/viewdeal/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_reconcile_config")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  Config `optional:"true"`
	Repo    contractdomain.Repository
	Views   views.Source
	Billing billing.Provider
	Ledger  revenuedomain.Ledger
	Locker  *Locker `optional:"true"`
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	repo    contractdomain.Repository
	views   views.Source
	billing billing.Provider
	ledger  revenuedomain.Ledger
	locker  *Locker
}

// Summary reports what one reconciliation sweep did.
type Summary struct {
	Processed int
	Reported  int
	Noops     int
	Anomalies int
	Failed    int
}

func New(p Params) (*Engine, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.Views == nil || p.Billing == nil || p.Ledger == nil {
		return nil, ErrInvalidConfig
	}
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("reconcile").With(zap.String("component", "reconcile")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		repo:    p.Repo,
		views:   p.Views,
		billing: p.Billing,
		ledger:  p.Ledger,
		locker:  p.Locker,
	}, nil
}

// RunOnce sweeps every active metered contract once. Per-contract failures
// are collected, never fatal to the sweep.
func (e *Engine) RunOnce(parent context.Context) (Summary, error) {
	m := obsmetrics.Reconcile()
	m.IncRun()
	start := time.Now()
	defer func() { m.ObserveRunDuration(time.Since(start)) }()

	if e.locker != nil {
		token, held, err := e.locker.TryLock(parent, runLockKey, e.cfg.LockTTL)
		if err != nil {
			// Redis being down must not stall revenue recognition; row locks
			// keep concurrent sweeps correct, just wasteful.
			e.log.Warn("run lock unavailable, sweeping unguarded", zap.Error(err))
		} else if !held {
			e.log.Debug("run lock held elsewhere, skipping sweep")
			return Summary{}, nil
		} else {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := e.locker.Release(releaseCtx, runLockKey, token); err != nil {
					e.log.Warn("run lock release failed", zap.Error(err))
				}
			}()
		}
	}

	var (
		mu      sync.Mutex
		summary Summary
		errs    []error
	)

	group, ctx := errgroup.WithContext(parent)
	group.SetLimit(e.cfg.Workers)

	cursor := snowflake.ID(0)
	for {
		batch, err := e.repo.ListActiveMetered(ctx, nil, cursor, e.cfg.BatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list contracts: %w", err))
			break
		}
		if len(batch) == 0 {
			break
		}
		cursor = batch[len(batch)-1].ID

		for _, contract := range batch {
			id := contract.ID
			group.Go(func() error {
				outcome, err := e.reconcileContract(ctx, id)
				mu.Lock()
				summary.Processed++
				switch outcome {
				case obsmetrics.OutcomeReported:
					summary.Reported++
				case obsmetrics.OutcomeNoop:
					summary.Noops++
				case obsmetrics.OutcomeAnomaly:
					summary.Anomalies++
				default:
					summary.Failed++
				}
				if err != nil {
					errs = append(errs, err)
				}
				mu.Unlock()
				// Sibling contracts keep going regardless.
				return nil
			})
		}
	}
	_ = group.Wait()

	e.log.Info("reconcile sweep finished",
		zap.Int("processed", summary.Processed),
		zap.Int("reported", summary.Reported),
		zap.Int("noops", summary.Noops),
		zap.Int("anomalies", summary.Anomalies),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return summary, errors.Join(errs...)
}

// RunForever recovers watermarks once, then sweeps on the configured
// interval until ctx is cancelled.
func (e *Engine) RunForever(ctx context.Context) {
	if _, err := e.RecoverWatermarks(ctx); err != nil {
		e.log.Warn("watermark recovery failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := e.RunOnce(ctx); err != nil {
			e.log.Warn("reconcile sweep had failures", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reconcileContract runs one usage reporting cycle for one contract under a
// row lock. The revenue event and the watermark advance commit atomically.
func (e *Engine) reconcileContract(parent context.Context, id snowflake.ID) (string, error) {
	m := obsmetrics.Reconcile()
	outcome := obsmetrics.OutcomeStoreFailed

	err := e.db.WithContext(parent).Transaction(func(tx *gorm.DB) error {
		contract, err := e.repo.FindByIDForUpdate(parent, tx, id)
		if err != nil {
			return fmt.Errorf("contract %d: lock: %w", id, err)
		}
		// Status may have changed between listing and locking.
		if contract.Status != contractdomain.StatusActive || !contract.Metered() {
			outcome = obsmetrics.OutcomeNoop
			return nil
		}
		if contract.BillingSubscriptionID == nil {
			outcome = obsmetrics.OutcomeBillFailed
			return fmt.Errorf("contract %d: active metered contract without subscription", id)
		}

		fetchCtx, cancel := context.WithTimeout(parent, e.cfg.AdapterTimeout)
		viewsNow, err := e.views.FetchViewCount(fetchCtx, contract.ReactionVideoID)
		cancel()
		if err != nil {
			outcome = obsmetrics.OutcomeFetchFailed
			return fmt.Errorf("contract %d: fetch views: %w", id, err)
		}

		delta := viewsNow - contract.LastReportedViews
		if delta < 0 {
			// View counts can regress on takedowns or upstream recounts.
			// Revenue is never clawed back; hold the watermark and flag it.
			m.IncAnomaly()
			e.log.Warn("view count regressed",
				zap.Int64("contract_id", int64(id)),
				zap.Int64("watermark", contract.LastReportedViews),
				zap.Int64("observed", viewsNow),
			)
			outcome = obsmetrics.OutcomeAnomaly
			return nil
		}
		if delta == 0 {
			outcome = obsmetrics.OutcomeNoop
			return nil
		}

		units := pricing.BillableUnits(delta)
		amount, err := pricing.Amount(contract.PricingModel, delta, contract.PricingRate)
		if err != nil {
			return fmt.Errorf("contract %d: price delta: %w", id, err)
		}

		now := e.clock.Now().UTC()
		key := fmt.Sprintf("rc:%d:%d", contract.ID, viewsNow)

		billCtx, cancel := context.WithTimeout(parent, e.cfg.AdapterTimeout)
		err = e.billing.ReportUsage(billCtx, *contract.BillingSubscriptionID, units, key, now)
		cancel()
		if err != nil {
			outcome = obsmetrics.OutcomeBillFailed
			return fmt.Errorf("contract %d: report usage: %w", id, err)
		}

		inserted, err := e.ledger.Append(parent, tx, &revenuedomain.RevenueEvent{
			ContractID:     contract.ID,
			LicensorID:     contract.LicensorID,
			LicenseeID:     contract.LicenseeID,
			Amount:         amount,
			Currency:       contract.Currency,
			Units:          units,
			ReportedViews:  viewsNow,
			IdempotencyKey: key,
			OccurredAt:     now,
		})
		if err != nil {
			return fmt.Errorf("contract %d: append revenue: %w", id, err)
		}
		if err := e.repo.AdvanceWatermark(parent, tx, contract.ID, viewsNow); err != nil {
			return fmt.Errorf("contract %d: advance watermark: %w", id, err)
		}

		if inserted {
			m.AddReportedUnits(units)
			outcome = obsmetrics.OutcomeReported
			e.log.Info("usage reported",
				zap.Int64("contract_id", int64(id)),
				zap.Int64("views", viewsNow),
				zap.Int64("units", units),
				zap.Int64("amount", amount),
			)
		} else {
			// An event with this key already exists; the earlier cycle did the
			// work and only the watermark needed to catch up.
			outcome = obsmetrics.OutcomeNoop
		}
		return nil
	})

	m.IncContract(outcome)
	return outcome, err
}
