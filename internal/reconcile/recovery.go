package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/viewdeal/viewdeal/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecoverWatermarks re-derives contract watermarks from the revenue ledger.
// A crash between appending an event and advancing the watermark leaves the
// watermark behind; the ledger is authoritative, so on the next start the
// watermark catches up instead of the same views being billed twice.
func (e *Engine) RecoverWatermarks(ctx context.Context) (int, error) {
	var (
		recovered int
		errs      []error
	)

	cursor := snowflake.ID(0)
	for {
		batch, err := e.repo.ListActiveMetered(ctx, nil, cursor, e.cfg.BatchSize)
		if err != nil {
			return recovered, fmt.Errorf("list contracts: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		cursor = batch[len(batch)-1].ID

		for _, contract := range batch {
			id := contract.ID
			err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				locked, err := e.repo.FindByIDForUpdate(ctx, tx, id)
				if err != nil {
					return err
				}
				ledgerHigh, err := e.ledger.MaxReportedViews(ctx, tx, id)
				if err != nil {
					return err
				}
				if ledgerHigh <= locked.LastReportedViews {
					return nil
				}
				if err := e.repo.AdvanceWatermark(ctx, tx, id, ledgerHigh); err != nil {
					return err
				}
				recovered++
				obsmetrics.Reconcile().IncWatermarkRecovery()
				e.log.Warn("watermark recovered from ledger",
					zap.Int64("contract_id", int64(id)),
					zap.Int64("was", locked.LastReportedViews),
					zap.Int64("now", ledgerHigh),
				)
				return nil
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("contract %d: recover watermark: %w", id, err))
			}
		}
	}
	return recovered, errors.Join(errs...)
}
