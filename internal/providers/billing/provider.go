// Package billing defines the metered billing ledger the marketplace reports
// usage to, and its Stripe implementation.
package billing

import (
	"context"
	"errors"
	"time"
)

// CreateSubscriptionRequest describes the metered subscription opened when a
// licensor accepts a usage-priced contract.
type CreateSubscriptionRequest struct {
	ContractID string
	// CustomerRef is the licensee's reference at the billing processor.
	CustomerRef string
	// RatePerUnit is the price of one 1000-view block, minor currency units.
	RatePerUnit int64
	Currency    string
	Description string
}

// Provider is the external metered-billing ledger. All operations are safely
// retriable: ReportUsage deduplicates by idempotency key, CancelSubscription
// treats an already-gone subscription as ErrSubscriptionNotFound.
type Provider interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (string, error)
	ReportUsage(ctx context.Context, subscriptionID string, units int64, idempotencyKey string, at time.Time) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

var (
	ErrSubscriptionNotFound = errors.New("billing_subscription_not_found")
	ErrInvalidSubscription  = errors.New("invalid_billing_subscription")
	ErrReportFailed         = errors.New("usage_report_failed")
	ErrCreateFailed         = errors.New("subscription_create_failed")
)
