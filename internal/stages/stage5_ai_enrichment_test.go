package stages

import (
	"context"
	"errors"
	"testing"
)

type fakeEnrichmentClient struct {
	out []LineItem
	err error
}

func (f fakeEnrichmentClient) Enrich(ctx context.Context, items []LineItem) ([]LineItem, error) {
	return f.out, f.err
}

func TestAIEnrichment_NilClientPassesThrough(t *testing.T) {
	in := LineItemsStageOutput{LineItems: []LineItem{{ProductName: "Widget"}}}
	out, err := AIEnrichment(context.Background(), Deps{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].ProductName != "Widget" {
		t.Fatalf("expected passthrough, got %+v", out.LineItems[0])
	}
}

func TestAIEnrichment_ErrorPassesThroughWithoutFailingStage(t *testing.T) {
	d := Deps{Enrichment: fakeEnrichmentClient{err: errors.New("boom")}}
	in := LineItemsStageOutput{LineItems: []LineItem{{ProductName: "Widget"}}}
	out, err := AIEnrichment(context.Background(), d, in)
	if err != nil {
		t.Fatalf("expected no error on enrichment failure, got %v", err)
	}
	if out.LineItems[0].ProductName != "Widget" {
		t.Fatalf("expected original items preserved, got %+v", out.LineItems[0])
	}
}

func TestAIEnrichment_LengthMismatchFallsBackToOriginal(t *testing.T) {
	d := Deps{Enrichment: fakeEnrichmentClient{out: []LineItem{{ProductName: "A"}, {ProductName: "B"}}}}
	in := LineItemsStageOutput{LineItems: []LineItem{{ProductName: "Widget"}}}
	out, err := AIEnrichment(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.LineItems) != 1 || out.LineItems[0].ProductName != "Widget" {
		t.Fatalf("expected fallback to original on length mismatch, got %+v", out.LineItems)
	}
}

func TestAIEnrichment_HappyPathReturnsEnrichedItems(t *testing.T) {
	d := Deps{Enrichment: fakeEnrichmentClient{out: []LineItem{{ProductName: "Widget", RefinedTitle: "Premium Widget"}}}}
	in := LineItemsStageOutput{LineItems: []LineItem{{ProductName: "Widget"}}}
	out, err := AIEnrichment(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].RefinedTitle != "Premium Widget" {
		t.Fatalf("expected enriched title, got %+v", out.LineItems[0])
	}
}
