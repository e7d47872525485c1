// Package pricing computes contract amounts from view counts.
//
// Money is always int64 minor currency units (cents). The rate on a metered
// contract is the price of one billable unit of 1000 views.
package pricing

import "errors"

// Model is the closed set of pricing models a contract can carry.
type Model string

const (
	ModelOneTime  Model = "ONE_TIME"
	ModelPerViews Model = "PER_VIEWS"
	ModelCPM      Model = "CPM"
)

// UnitViews is the billable quantum: usage is charged per started block of
// 1000 views.
const UnitViews int64 = 1000

var (
	ErrUnknownModel  = errors.New("unknown_pricing_model")
	ErrNegativeViews = errors.New("negative_view_count")
	ErrInvalidRate   = errors.New("invalid_pricing_rate")
)

// Valid reports whether m is a known pricing model.
func (m Model) Valid() bool {
	switch m {
	case ModelOneTime, ModelPerViews, ModelCPM:
		return true
	}
	return false
}

// Metered reports whether m is billed from usage rather than a flat fee.
func (m Model) Metered() bool {
	return m == ModelPerViews || m == ModelCPM
}

// BillableUnits converts a view delta into whole billable units using ceiling
// division, so a started block of views is never billed as zero. Callers must
// clamp negative deltas before conversion.
func BillableUnits(views int64) int64 {
	if views <= 0 {
		return 0
	}
	return (views + UnitViews - 1) / UnitViews
}

// Amount computes the monetary amount for a pricing model, a view count and a
// rate in minor units. ONE_TIME ignores views; PER_VIEWS and CPM charge the
// rate per started block of 1000 views.
func Amount(model Model, views int64, rate int64) (int64, error) {
	if views < 0 {
		return 0, ErrNegativeViews
	}
	if rate < 0 {
		return 0, ErrInvalidRate
	}
	switch model {
	case ModelOneTime:
		return rate, nil
	case ModelPerViews, ModelCPM:
		return BillableUnits(views) * rate, nil
	default:
		return 0, ErrUnknownModel
	}
}
