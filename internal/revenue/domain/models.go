// Package domain contains persistence models for the revenue ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RevenueEvent records one realized revenue amount for a contract. Events are
// append-only and immutable; totals are always derived by summation, never by
// mutating a running balance.
type RevenueEvent struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ContractID snowflake.ID `gorm:"not null;index"`
	// Parties are denormalized from the contract for independent querying.
	LicensorID snowflake.ID `gorm:"not null;index"`
	LicenseeID snowflake.ID `gorm:"not null;index"`
	// Amount in minor currency units.
	Amount   int64  `gorm:"not null"`
	Currency string `gorm:"type:text;not null"`
	// Units is the number of 1000-view blocks billed; zero for one-time fees.
	Units int64 `gorm:"not null;default:0"`
	// ReportedViews is the raw view count the reporting cycle advanced the
	// contract watermark to. Used by watermark recovery.
	ReportedViews  int64     `gorm:"not null;default:0"`
	IdempotencyKey string    `gorm:"type:text;not null;uniqueIndex"`
	OccurredAt     time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RevenueEvent) TableName() string { return "revenue_events" }
