package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/clock"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Repository struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewRepository(p Params) contractdomain.Repository {
	return &Repository{
		db:    p.DB,
		log:   p.Log.Named("contract.repository"),
		clock: p.Clock,
	}
}

func (r *Repository) Insert(ctx context.Context, contract *contractdomain.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *Repository) FindByID(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	var contract contractdomain.Contract
	err := r.db.WithContext(ctx).First(&contract, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, contractdomain.ErrContractNotFound
		}
		return nil, err
	}
	return &contract, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*contractdomain.Contract, error) {
	if tx == nil {
		tx = r.db
	}
	var contract contractdomain.Contract
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM contracts WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == 0 {
		return nil, contractdomain.ErrContractNotFound
	}
	return &contract, nil
}

func (r *Repository) UpdateLifecycle(ctx context.Context, tx *gorm.DB, contract *contractdomain.Contract) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE contracts
		 SET status = ?,
		     accepted_by_licensor = ?,
		     billing_subscription_id = ?,
		     accepted_at = ?,
		     paid_at = ?,
		     rejected_at = ?,
		     cancelled_at = ?,
		     updated_at = ?
		 WHERE id = ?`,
		contract.Status,
		contract.AcceptedByLicensor,
		contract.BillingSubscriptionID,
		contract.AcceptedAt,
		contract.PaidAt,
		contract.RejectedAt,
		contract.CancelledAt,
		r.clock.Now().UTC(),
		contract.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contractdomain.ErrContractNotFound
	}
	return nil
}

func (r *Repository) ListActiveMetered(ctx context.Context, tx *gorm.DB, afterID snowflake.ID, limit int) ([]contractdomain.Contract, error) {
	if tx == nil {
		tx = r.db
	}
	var contracts []contractdomain.Contract
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM contracts
		 WHERE status = ? AND pricing_model IN (?, ?) AND id > ?
		 ORDER BY id
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		contractdomain.StatusActive,
		pricing.ModelPerViews,
		pricing.ModelCPM,
		afterID,
		limit,
	).Scan(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *Repository) AdvanceWatermark(ctx context.Context, tx *gorm.DB, id snowflake.ID, views int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE contracts
		 SET last_reported_views = ?, updated_at = ?
		 WHERE id = ? AND last_reported_views < ?`,
		views,
		r.clock.Now().UTC(),
		id,
		views,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		r.log.Debug("watermark unchanged",
			zap.Int64("contract_id", int64(id)),
			zap.Int64("views", views),
		)
	}
	return nil
}
