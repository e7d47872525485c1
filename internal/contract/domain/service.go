package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"gorm.io/datatypes"
)

type CreateContractRequest struct {
	LicensorID         snowflake.ID
	LicenseeID         snowflake.ID
	OriginalVideoID    string
	ReactionVideoID    string
	PricingModel       pricing.Model
	PricingRate        int64
	Currency           string
	BillingCustomerRef string
	Metadata           datatypes.JSONMap
}

// Service drives the contract lifecycle. Transitions are validated against
// the current status under a row lock, so concurrent conflicting calls fail
// with ErrStateConflict instead of racing.
type Service interface {
	Create(ctx context.Context, req CreateContractRequest) (*Contract, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Contract, error)

	// Accept is the licensor approving a PENDING contract. Metered contracts
	// get a billing subscription and become ACTIVE; one-time contracts are
	// marked accepted and stay PENDING until MarkPaid.
	Accept(ctx context.Context, id snowflake.ID) (*Contract, error)

	// Reject moves a PENDING contract to REJECTED.
	Reject(ctx context.Context, id snowflake.ID) (*Contract, error)

	// MarkPaid settles an accepted one-time contract: PENDING becomes PAID and
	// the flat fee is appended to the revenue ledger atomically.
	MarkPaid(ctx context.Context, id snowflake.ID) (*Contract, error)

	// Cancel terminates an ACTIVE or PAID contract. Already reported revenue
	// is untouched; the billing subscription, if any, is cancelled.
	Cancel(ctx context.Context, id snowflake.ID) (*Contract, error)
}

var (
	ErrContractNotFound = errors.New("contract_not_found")
	ErrStateConflict    = errors.New("contract_state_conflict")
	ErrSameParty        = errors.New("licensor_equals_licensee")
	ErrInvalidParty     = errors.New("invalid_party_id")
	ErrInvalidVideo     = errors.New("invalid_video_id")
	ErrInvalidRate      = errors.New("invalid_pricing_rate")
	ErrInvalidModel     = errors.New("invalid_pricing_model")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrNotAccepted      = errors.New("contract_not_accepted")
	ErrBillingFailed    = errors.New("billing_provisioning_failed")
)
