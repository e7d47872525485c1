package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Ledger is the append-only revenue record. Append is idempotent on the
// event's idempotency key so reconciliation retries never double-count a
// usage period.
type Ledger interface {
	// Append inserts the event inside tx. It returns false when an event with
	// the same idempotency key already exists; that is success, not an error.
	Append(ctx context.Context, tx *gorm.DB, event *RevenueEvent) (bool, error)

	SumByContract(ctx context.Context, contractID snowflake.ID) (int64, error)
	SumByLicensor(ctx context.Context, licensorID snowflake.ID) (int64, error)
	SumByLicensee(ctx context.Context, licenseeID snowflake.ID) (int64, error)

	// MaxReportedViews returns the highest view count any event advanced the
	// contract to, for watermark recovery. Zero when no events exist.
	MaxReportedViews(ctx context.Context, tx *gorm.DB, contractID snowflake.ID) (int64, error)
}

var (
	ErrInvalidEvent    = errors.New("invalid_revenue_event")
	ErrInvalidContract = errors.New("invalid_contract_id")
	ErrInvalidAmount   = errors.New("invalid_revenue_amount")
	ErrMissingIdemKey  = errors.New("missing_idempotency_key")
)
