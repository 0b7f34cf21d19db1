package stages

import (
	"context"
	"errors"
	"testing"
)

type fakeMerchantCfg struct {
	norm    NormalizationRules
	normErr error
	cat     CategorizationRules
	catErr  error
}

func (f fakeMerchantCfg) NormalizationRules(ctx context.Context, merchantID string) (NormalizationRules, error) {
	return f.norm, f.normErr
}

func (f fakeMerchantCfg) CategorizationRules(ctx context.Context, merchantID string) (CategorizationRules, error) {
	return f.cat, f.catErr
}

func TestDataNormalization_AppliesSKUPrefixAndRounding(t *testing.T) {
	d := Deps{MerchantCfg: fakeMerchantCfg{norm: NormalizationRules{SKUPrefix: "NB-", RoundPriceCents: true}}}
	in := DatabaseSaveOutput{
		MerchantID: "m1",
		LineItems:  []LineItem{{SKU: "123", UnitCost: 1.005, TotalCost: 2.0049}},
	}
	out, err := DataNormalization(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].SKU != "NB-123" {
		t.Fatalf("expected SKU prefixed, got %q", out.LineItems[0].SKU)
	}
	if out.LineItems[0].UnitCost != 1.0 {
		t.Fatalf("expected rounded unit cost 1.0, got %v", out.LineItems[0].UnitCost)
	}
}

func TestDataNormalization_MissingConfigIsNoOp(t *testing.T) {
	d := Deps{}
	in := DatabaseSaveOutput{MerchantID: "m1", LineItems: []LineItem{{SKU: "abc", UnitCost: 9.99}}}
	out, err := DataNormalization(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].SKU != "abc" || out.LineItems[0].UnitCost != 9.99 {
		t.Fatalf("expected no-op, got %+v", out.LineItems[0])
	}
}

func TestDataNormalization_ConfigErrorFallsThroughToNoOp(t *testing.T) {
	d := Deps{MerchantCfg: fakeMerchantCfg{normErr: errors.New("boom")}}
	in := DatabaseSaveOutput{MerchantID: "m1", LineItems: []LineItem{{SKU: "abc"}}}
	out, err := DataNormalization(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].SKU != "abc" {
		t.Fatalf("expected no-op on config error, got %+v", out.LineItems[0])
	}
}

func TestDataNormalization_UnitAliasRewrite(t *testing.T) {
	d := Deps{MerchantCfg: fakeMerchantCfg{norm: NormalizationRules{UnitAliases: map[string]string{"ea": "each"}}}}
	in := DatabaseSaveOutput{MerchantID: "m1", LineItems: []LineItem{{Description: "EA"}}}
	out, err := DataNormalization(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].Description != "each" {
		t.Fatalf("expected unit alias rewrite, got %q", out.LineItems[0].Description)
	}
}
