package pricing

import (
	"errors"
	"testing"
)

func TestBillableUnits(t *testing.T) {
	cases := []struct {
		views int64
		units int64
	}{
		{0, 0},
		{1, 1},
		{999, 1},
		{1000, 1},
		{1001, 2},
		{1500, 2},
		{2500, 3},
		{3000, 3},
		{-5, 0},
	}
	for _, tc := range cases {
		if got := BillableUnits(tc.views); got != tc.units {
			t.Fatalf("BillableUnits(%d) = %d, want %d", tc.views, got, tc.units)
		}
	}
}

func TestAmountPerViews(t *testing.T) {
	// 2500 views at 0.40 per 1000 views: ceil(2500/1000)=3 units -> 1.20
	amount, err := Amount(ModelPerViews, 2500, 40)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	if amount != 120 {
		t.Fatalf("expected 120 minor units, got %d", amount)
	}
}

func TestAmountCPMSameShapeAsPerViews(t *testing.T) {
	perViews, err := Amount(ModelPerViews, 4321, 25)
	if err != nil {
		t.Fatalf("per views: %v", err)
	}
	cpm, err := Amount(ModelCPM, 4321, 25)
	if err != nil {
		t.Fatalf("cpm: %v", err)
	}
	if perViews != cpm {
		t.Fatalf("expected CPM to match PER_VIEWS, got %d vs %d", cpm, perViews)
	}
}

func TestAmountOneTimeIgnoresViews(t *testing.T) {
	for _, views := range []int64{0, 1, 999999} {
		amount, err := Amount(ModelOneTime, views, 1000)
		if err != nil {
			t.Fatalf("amount: %v", err)
		}
		if amount != 1000 {
			t.Fatalf("expected flat 1000 at %d views, got %d", views, amount)
		}
	}
}

func TestAmountRejectsNegativeViews(t *testing.T) {
	if _, err := Amount(ModelPerViews, -1, 40); !errors.Is(err, ErrNegativeViews) {
		t.Fatalf("expected ErrNegativeViews, got %v", err)
	}
}

func TestAmountRejectsUnknownModel(t *testing.T) {
	if _, err := Amount(Model("SUBSCRIPTION"), 100, 40); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestModelPredicates(t *testing.T) {
	if !ModelPerViews.Metered() || !ModelCPM.Metered() {
		t.Fatal("expected PER_VIEWS and CPM to be metered")
	}
	if ModelOneTime.Metered() {
		t.Fatal("expected ONE_TIME to be flat")
	}
	if ModelOneTime.Valid() != true || Model("x").Valid() {
		t.Fatal("model validity mismatch")
	}
}
