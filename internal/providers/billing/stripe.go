package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/price"
	sub "github.com/stripe/stripe-go/v74/subscription"
	"github.com/stripe/stripe-go/v74/usagerecord"
	"github.com/viewdeal/viewdeal/internal/config"
	"go.uber.org/zap"
)

// StripeProvider implements Provider on Stripe metered billing. Each accepted
// metered contract gets its own metered price and subscription; usage is
// reported as increment usage records against the subscription's single item.
type StripeProvider struct {
	log      *zap.Logger
	currency string
}

func NewStripeProvider(cfg config.BillingConfig, log *zap.Logger) *StripeProvider {
	stripe.Key = cfg.StripeSecretKey
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &StripeProvider{
		log:      log.Named("billing.stripe"),
		currency: currency,
	}
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (string, error) {
	if strings.TrimSpace(req.CustomerRef) == "" || req.RatePerUnit <= 0 {
		return "", ErrCreateFailed
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}

	priceParams := &stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(req.RatePerUnit),
		Recurring: &stripe.PriceRecurringParams{
			Interval:  stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			UsageType: stripe.String(string(stripe.PriceRecurringUsageTypeMetered)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(req.Description),
		},
	}
	priceParams.AddMetadata("contract_id", req.ContractID)

	meteredPrice, err := price.New(priceParams)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	subParams := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(req.CustomerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(meteredPrice.ID)},
		},
	}
	subParams.AddMetadata("contract_id", req.ContractID)

	subscription, err := sub.New(subParams)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	p.log.Info("created metered subscription",
		zap.String("contract_id", req.ContractID),
		zap.String("subscription_id", subscription.ID),
	)
	return subscription.ID, nil
}

func (p *StripeProvider) ReportUsage(ctx context.Context, subscriptionID string, units int64, idempotencyKey string, at time.Time) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return ErrInvalidSubscription
	}
	if units <= 0 {
		return nil
	}

	itemID, err := p.meteredItemID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	params := &stripe.UsageRecordParams{
		Params:           stripe.Params{Context: ctx},
		SubscriptionItem: stripe.String(itemID),
		Quantity:         stripe.Int64(units),
		Timestamp:        stripe.Int64(at.Unix()),
		Action:           stripe.String(stripe.UsageRecordActionIncrement),
	}
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := usagerecord.New(params); err != nil {
		if isNotFound(err) {
			return ErrSubscriptionNotFound
		}
		return fmt.Errorf("%w: %v", ErrReportFailed, err)
	}
	return nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return ErrInvalidSubscription
	}
	params := &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	}
	if _, err := sub.Cancel(subscriptionID, params); err != nil {
		if isNotFound(err) {
			return ErrSubscriptionNotFound
		}
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// meteredItemID resolves the single metered item of a subscription. The
// subscription handle stays the opaque id stored on the contract.
func (p *StripeProvider) meteredItemID(ctx context.Context, subscriptionID string) (string, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	subscription, err := sub.Get(subscriptionID, params)
	if err != nil {
		if isNotFound(err) {
			return "", ErrSubscriptionNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrReportFailed, err)
	}
	if subscription.Items == nil || len(subscription.Items.Data) == 0 {
		return "", ErrInvalidSubscription
	}
	return subscription.Items.Data[0].ID, nil
}

func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
