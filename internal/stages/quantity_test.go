package stages

import "testing"

func TestApplyPackQuantityHeuristic_CaseOf(t *testing.T) {
	li := ExtractedLineItem{ProductName: "Widget Case of 24", Quantity: 1, TotalCost: 120}
	got := applyPackQuantityHeuristic(li)
	if got.Quantity != 24 {
		t.Fatalf("expected quantity 24, got %d", got.Quantity)
	}
	if got.UnitCost != 5 {
		t.Fatalf("expected unit cost 5, got %v", got.UnitCost)
	}
}

func TestApplyPackQuantityHeuristic_CountSuffix(t *testing.T) {
	li := ExtractedLineItem{ProductName: "Bolt 12-Pack", Quantity: 1}
	got := applyPackQuantityHeuristic(li)
	if got.Quantity != 12 {
		t.Fatalf("expected quantity 12, got %d", got.Quantity)
	}
}

func TestApplyPackQuantityHeuristic_CTSuffix(t *testing.T) {
	li := ExtractedLineItem{ProductName: "Screws 50 ct", Quantity: 1}
	got := applyPackQuantityHeuristic(li)
	if got.Quantity != 50 {
		t.Fatalf("expected quantity 50, got %d", got.Quantity)
	}
}

func TestApplyPackQuantityHeuristic_OnlyWhenQuantityIsOne(t *testing.T) {
	li := ExtractedLineItem{ProductName: "Widget Case of 24", Quantity: 3}
	got := applyPackQuantityHeuristic(li)
	if got.Quantity != 3 {
		t.Fatalf("quantity should be untouched when extraction already returned >1, got %d", got.Quantity)
	}
}

func TestApplyPackQuantityHeuristic_NoMatchLeavesUnchanged(t *testing.T) {
	li := ExtractedLineItem{ProductName: "Plain Widget", Quantity: 1, UnitCost: 9.99}
	got := applyPackQuantityHeuristic(li)
	if got.Quantity != 1 || got.UnitCost != 9.99 {
		t.Fatalf("expected no change, got %+v", got)
	}
}
