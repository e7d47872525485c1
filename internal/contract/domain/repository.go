package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the contract persistence surface. Methods that take a tx run
// inside the caller's transaction; passing nil uses the base connection.
type Repository interface {
	Insert(ctx context.Context, contract *Contract) error
	FindByID(ctx context.Context, id snowflake.ID) (*Contract, error)

	// FindByIDForUpdate loads the contract under a row lock. Callers must be
	// inside a transaction.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Contract, error)

	// UpdateLifecycle persists status, acceptance flag, billing handle and
	// transition timestamps.
	UpdateLifecycle(ctx context.Context, tx *gorm.DB, contract *Contract) error

	// ListActiveMetered claims up to limit ACTIVE metered contracts with an id
	// above afterID, skipping rows other workers hold. The id cursor keeps a
	// batch loop moving past contracts that keep failing.
	ListActiveMetered(ctx context.Context, tx *gorm.DB, afterID snowflake.ID, limit int) ([]Contract, error)

	// AdvanceWatermark raises last_reported_views to views. The update is
	// guarded so a stale writer can never move the watermark backwards.
	AdvanceWatermark(ctx context.Context, tx *gorm.DB, id snowflake.ID, views int64) error
}
