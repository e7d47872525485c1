// Package domain defines licensing contract models and the service surface.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"gorm.io/datatypes"
)

type ContractStatus string

const (
	// StatusPending is the initial state. One-time contracts stay here after
	// licensor acceptance until payment settles.
	StatusPending   ContractStatus = "PENDING"
	StatusActive    ContractStatus = "ACTIVE"
	StatusPaid      ContractStatus = "PAID"
	StatusRejected  ContractStatus = "REJECTED"
	StatusCancelled ContractStatus = "CANCELLED"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPaid, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s ContractStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// Contract is a licensing agreement between the owner of an original video
// (licensor) and the creator of a reaction video (licensee).
type Contract struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	LicensorID snowflake.ID `gorm:"not null;index"`
	LicenseeID snowflake.ID `gorm:"not null;index"`

	OriginalVideoID string `gorm:"type:text;not null"`
	ReactionVideoID string `gorm:"type:text;not null"`

	PricingModel pricing.Model `gorm:"type:text;not null"`
	// PricingRate is the fee in minor units: the flat fee for one-time
	// contracts, the per-1000-view block rate for metered ones.
	PricingRate int64  `gorm:"not null"`
	Currency    string `gorm:"type:text;not null"`

	Status ContractStatus `gorm:"type:text;not null;default:PENDING;index"`

	// AcceptedByLicensor distinguishes an accepted one-time contract awaiting
	// payment from a freshly proposed one; both carry status PENDING.
	AcceptedByLicensor bool `gorm:"not null;default:false"`

	// LastReportedViews is the usage watermark: the raw view count revenue has
	// been recognized up to. Monotonic.
	LastReportedViews int64 `gorm:"not null;default:0"`

	// BillingCustomerRef identifies the licensee on the billing provider.
	BillingCustomerRef string `gorm:"type:text"`
	// BillingSubscriptionID is the provider-side subscription handle, set when
	// a metered contract activates. Opaque.
	BillingSubscriptionID *string `gorm:"type:text"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	AcceptedAt  *time.Time
	PaidAt      *time.Time
	RejectedAt  *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contract) TableName() string { return "contracts" }

// Metered reports whether the contract bills through usage reporting.
func (c *Contract) Metered() bool { return c.PricingModel.Metered() }
