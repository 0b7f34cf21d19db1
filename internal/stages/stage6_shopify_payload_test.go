package stages

import (
	"context"
	"testing"
)

func TestShopifyPayload_FillsDefaultsFromBaseFields(t *testing.T) {
	in := LineItemsStageOutput{LineItems: []LineItem{{ProductName: "Widget", Description: "desc", UnitCost: 5.5}}}
	out, err := ShopifyPayload(context.Background(), Deps{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	li := out.LineItems[0]
	if li.RefinedTitle != "Widget" || li.RefinedDescription != "desc" {
		t.Fatalf("expected defaults filled from base fields, got %+v", li)
	}
	if li.RefinedPrice == nil || *li.RefinedPrice != 5.5 {
		t.Fatalf("expected refined price defaulted to unit cost, got %+v", li.RefinedPrice)
	}
}

func TestShopifyPayload_PreservesExistingRefinedFields(t *testing.T) {
	price := 9.99
	in := LineItemsStageOutput{LineItems: []LineItem{{
		ProductName:        "Widget",
		RefinedTitle:       "Premium Widget",
		RefinedDescription: "already refined",
		RefinedPrice:       &price,
	}}}
	out, err := ShopifyPayload(context.Background(), Deps{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	li := out.LineItems[0]
	if li.RefinedTitle != "Premium Widget" || li.RefinedDescription != "already refined" {
		t.Fatalf("expected existing refined fields preserved, got %+v", li)
	}
	if li.RefinedPrice != &price {
		t.Fatalf("expected same refined price pointer preserved")
	}
}
