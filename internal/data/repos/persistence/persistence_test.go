package persistence

import (
	"testing"

	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
)

// totalsWithinTolerance backs invariant I-3: declared totals within
// stages.TotalsToleranceFactor per line item are accepted, larger drifts
// are flagged (non-fatally, by the caller).
func TestTotalsWithinTolerance_WithinFactorPasses(t *testing.T) {
	lineItems := []stages.ExtractedLineItem{{TotalCost: 100}, {TotalCost: 200}}
	sum, tolerance, ok := totalsWithinTolerance(lineItems, 300.005)
	if !ok {
		t.Fatalf("expected sum %v within tolerance %v of 300.005", sum, tolerance)
	}
}

func TestTotalsWithinTolerance_BeyondFactorFails(t *testing.T) {
	lineItems := []stages.ExtractedLineItem{{TotalCost: 100}, {TotalCost: 200}}
	_, _, ok := totalsWithinTolerance(lineItems, 350)
	if ok {
		t.Fatalf("expected mismatch beyond tolerance to fail")
	}
}
