package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/observability/metrics"
	revenuedomain "github.com/viewdeal/viewdeal/internal/revenue/domain"
	"github.com/viewdeal/viewdeal/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Ledger struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewLedger(p Params) revenuedomain.Ledger {
	return &Ledger{
		db:    p.DB,
		log:   p.Log.Named("revenue.ledger"),
		genID: p.GenID,
	}
}

func (l *Ledger) Append(ctx context.Context, tx *gorm.DB, event *revenuedomain.RevenueEvent) (bool, error) {
	if event == nil {
		return false, revenuedomain.ErrInvalidEvent
	}
	if event.ContractID == 0 {
		return false, revenuedomain.ErrInvalidContract
	}
	if event.Amount < 0 {
		return false, revenuedomain.ErrInvalidAmount
	}
	if strings.TrimSpace(event.IdempotencyKey) == "" {
		return false, revenuedomain.ErrMissingIdemKey
	}
	if tx == nil {
		tx = l.db
	}

	if event.ID == 0 {
		event.ID = l.genID.Generate()
	}
	now := time.Now().UTC()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO revenue_events (
			id, contract_id, licensor_id, licensee_id, amount, currency,
			units, reported_views, idempotency_key, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		event.ID,
		event.ContractID,
		event.LicensorID,
		event.LicenseeID,
		event.Amount,
		event.Currency,
		event.Units,
		event.ReportedViews,
		event.IdempotencyKey,
		event.OccurredAt,
		now,
	)
	if result.Error != nil {
		// Dialects without ON CONFLICT still surface the unique index.
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	metrics.Reconcile().AddRevenue(event.Amount)
	return true, nil
}

func (l *Ledger) SumByContract(ctx context.Context, contractID snowflake.ID) (int64, error) {
	return l.sum(ctx, `contract_id = ?`, contractID)
}

func (l *Ledger) SumByLicensor(ctx context.Context, licensorID snowflake.ID) (int64, error) {
	return l.sum(ctx, `licensor_id = ?`, licensorID)
}

func (l *Ledger) SumByLicensee(ctx context.Context, licenseeID snowflake.ID) (int64, error) {
	return l.sum(ctx, `licensee_id = ?`, licenseeID)
}

func (l *Ledger) sum(ctx context.Context, where string, id snowflake.ID) (int64, error) {
	if id == 0 {
		return 0, revenuedomain.ErrInvalidContract
	}
	var total int64
	err := l.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM revenue_events WHERE `+where,
		id,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (l *Ledger) MaxReportedViews(ctx context.Context, tx *gorm.DB, contractID snowflake.ID) (int64, error) {
	if contractID == 0 {
		return 0, revenuedomain.ErrInvalidContract
	}
	if tx == nil {
		tx = l.db
	}
	var views int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(reported_views), 0) FROM revenue_events WHERE contract_id = ?`,
		contractID,
	).Scan(&views).Error
	if err != nil {
		return 0, err
	}
	return views, nil
}
