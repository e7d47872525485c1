package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/clock"
	"github.com/viewdeal/viewdeal/internal/config"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"github.com/viewdeal/viewdeal/internal/providers/billing"
	revenuedomain "github.com/viewdeal/viewdeal/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    contractdomain.Repository
	Billing billing.Provider
	Ledger  revenuedomain.Ledger
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	repo    contractdomain.Repository
	billing billing.Provider
	ledger  revenuedomain.Ledger
}

func NewService(p Params) contractdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("contract.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		repo:    p.Repo,
		billing: p.Billing,
		ledger:  p.Ledger,
	}
}

func (s *Service) Create(ctx context.Context, req contractdomain.CreateContractRequest) (*contractdomain.Contract, error) {
	if req.LicensorID == 0 || req.LicenseeID == 0 {
		return nil, contractdomain.ErrInvalidParty
	}
	if req.LicensorID == req.LicenseeID {
		return nil, contractdomain.ErrSameParty
	}
	if strings.TrimSpace(req.OriginalVideoID) == "" || strings.TrimSpace(req.ReactionVideoID) == "" {
		return nil, contractdomain.ErrInvalidVideo
	}
	if !req.PricingModel.Valid() {
		return nil, contractdomain.ErrInvalidModel
	}
	if req.PricingRate <= 0 {
		return nil, contractdomain.ErrInvalidRate
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, contractdomain.ErrInvalidCurrency
	}

	now := s.clock.Now().UTC()
	contract := &contractdomain.Contract{
		ID:                 s.genID.Generate(),
		LicensorID:         req.LicensorID,
		LicenseeID:         req.LicenseeID,
		OriginalVideoID:    strings.TrimSpace(req.OriginalVideoID),
		ReactionVideoID:    strings.TrimSpace(req.ReactionVideoID),
		PricingModel:       req.PricingModel,
		PricingRate:        req.PricingRate,
		Currency:           currency,
		Status:             contractdomain.StatusPending,
		BillingCustomerRef: strings.TrimSpace(req.BillingCustomerRef),
		Metadata:           req.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, contract); err != nil {
		return nil, err
	}

	s.log.Info("contract proposed",
		zap.Int64("contract_id", int64(contract.ID)),
		zap.String("pricing_model", string(contract.PricingModel)),
		zap.Int64("rate", contract.PricingRate),
	)
	return contract, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Accept(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	var contract *contractdomain.Contract
	var subscriptionID string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found.Status != contractdomain.StatusPending || found.AcceptedByLicensor {
			return contractdomain.ErrStateConflict
		}

		now := s.clock.Now().UTC()
		found.AcceptedByLicensor = true
		found.AcceptedAt = &now

		if found.Metered() {
			subscriptionID, err = s.createSubscription(ctx, found)
			if err != nil {
				return err
			}
			found.BillingSubscriptionID = &subscriptionID
			found.Status = contractdomain.StatusActive
		}

		if err := s.repo.UpdateLifecycle(ctx, tx, found); err != nil {
			return err
		}
		contract = found
		return nil
	})
	if err != nil {
		// The subscription outlives a failed commit. Cancel it so the provider
		// does not keep billing a contract that never activated.
		if subscriptionID != "" && !errors.Is(err, contractdomain.ErrBillingFailed) {
			s.cancelOrphanSubscription(subscriptionID, id)
		}
		return nil, err
	}

	s.log.Info("contract accepted",
		zap.Int64("contract_id", int64(contract.ID)),
		zap.String("status", string(contract.Status)),
	)
	return contract, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	var contract *contractdomain.Contract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found.Status != contractdomain.StatusPending {
			return contractdomain.ErrStateConflict
		}

		now := s.clock.Now().UTC()
		found.Status = contractdomain.StatusRejected
		found.RejectedAt = &now
		if err := s.repo.UpdateLifecycle(ctx, tx, found); err != nil {
			return err
		}
		contract = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract rejected", zap.Int64("contract_id", int64(contract.ID)))
	return contract, nil
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	var contract *contractdomain.Contract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found.PricingModel != pricing.ModelOneTime {
			return contractdomain.ErrStateConflict
		}
		if found.Status != contractdomain.StatusPending {
			return contractdomain.ErrStateConflict
		}
		if !found.AcceptedByLicensor {
			return contractdomain.ErrNotAccepted
		}

		now := s.clock.Now().UTC()
		found.Status = contractdomain.StatusPaid
		found.PaidAt = &now
		if err := s.repo.UpdateLifecycle(ctx, tx, found); err != nil {
			return err
		}

		// The flat fee lands on the ledger in the same transaction as the
		// status flip, keyed per contract so a replay cannot double-pay.
		event := &revenuedomain.RevenueEvent{
			ContractID:     found.ID,
			LicensorID:     found.LicensorID,
			LicenseeID:     found.LicenseeID,
			Amount:         found.PricingRate,
			Currency:       found.Currency,
			IdempotencyKey: fmt.Sprintf("ot:%d", found.ID),
			OccurredAt:     now,
		}
		if _, err := s.ledger.Append(ctx, tx, event); err != nil {
			return err
		}
		contract = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract paid",
		zap.Int64("contract_id", int64(contract.ID)),
		zap.Int64("amount", contract.PricingRate),
	)
	return contract, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	var contract *contractdomain.Contract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found.Status != contractdomain.StatusActive && found.Status != contractdomain.StatusPaid {
			return contractdomain.ErrStateConflict
		}

		if found.BillingSubscriptionID != nil {
			adapterCtx, cancel := context.WithTimeout(ctx, s.cfg.Reconcile.AdapterTimeout)
			err := s.billing.CancelSubscription(adapterCtx, *found.BillingSubscriptionID)
			cancel()
			if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
				return err
			}
		}

		now := s.clock.Now().UTC()
		found.Status = contractdomain.StatusCancelled
		found.CancelledAt = &now
		// Only ACTIVE metered contracts carry a subscription handle.
		found.BillingSubscriptionID = nil
		if err := s.repo.UpdateLifecycle(ctx, tx, found); err != nil {
			return err
		}
		contract = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract cancelled", zap.Int64("contract_id", int64(contract.ID)))
	return contract, nil
}

func (s *Service) createSubscription(ctx context.Context, contract *contractdomain.Contract) (string, error) {
	adapterCtx, cancel := context.WithTimeout(ctx, s.cfg.Reconcile.AdapterTimeout)
	defer cancel()

	subscriptionID, err := s.billing.CreateSubscription(adapterCtx, billing.CreateSubscriptionRequest{
		ContractID:  contract.ID.String(),
		CustomerRef: contract.BillingCustomerRef,
		RatePerUnit: contract.PricingRate,
		Currency:    contract.Currency,
		Description: fmt.Sprintf("License %s -> %s", contract.OriginalVideoID, contract.ReactionVideoID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractdomain.ErrBillingFailed, err)
	}
	return subscriptionID, nil
}

func (s *Service) cancelOrphanSubscription(subscriptionID string, contractID snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Reconcile.AdapterTimeout)
	defer cancel()
	if err := s.billing.CancelSubscription(ctx, subscriptionID); err != nil {
		s.log.Warn("orphan subscription cleanup failed",
			zap.Int64("contract_id", int64(contractID)),
			zap.String("subscription_id", subscriptionID),
			zap.Error(err),
		)
	}
}
