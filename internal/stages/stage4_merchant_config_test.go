package stages

import (
	"context"
	"testing"
)

func TestMerchantConfig_AppliesKeywordTagsAndDefaultCategory(t *testing.T) {
	d := Deps{MerchantCfg: fakeMerchantCfg{cat: CategorizationRules{
		DefaultCategoryID: "cat-default",
		KeywordTags:       map[string]string{"widget": "cat-widget"},
		StaticTags:        []string{"imported"},
	}}}
	in := LineItemsStageOutput{MerchantID: "m1", LineItems: []LineItem{{ProductName: "Blue Widget"}}}
	out, err := MerchantConfig(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	li := out.LineItems[0]
	if li.CategoryID != "cat-widget" {
		t.Fatalf("expected keyword category, got %q", li.CategoryID)
	}
	if len(li.Tags) != 2 {
		t.Fatalf("expected static + keyword tags, got %v", li.Tags)
	}
}

func TestMerchantConfig_NoKeywordMatchFallsBackToDefault(t *testing.T) {
	d := Deps{MerchantCfg: fakeMerchantCfg{cat: CategorizationRules{DefaultCategoryID: "cat-default"}}}
	in := LineItemsStageOutput{MerchantID: "m1", LineItems: []LineItem{{ProductName: "Plain Item"}}}
	out, err := MerchantConfig(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].CategoryID != "cat-default" {
		t.Fatalf("expected default category, got %q", out.LineItems[0].CategoryID)
	}
}

func TestMerchantConfig_ExistingCategoryIsNotOverwritten(t *testing.T) {
	d := Deps{MerchantCfg: fakeMerchantCfg{cat: CategorizationRules{DefaultCategoryID: "cat-default"}}}
	in := LineItemsStageOutput{MerchantID: "m1", LineItems: []LineItem{{ProductName: "Plain Item", CategoryID: "cat-preset"}}}
	out, err := MerchantConfig(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].CategoryID != "cat-preset" {
		t.Fatalf("expected preset category preserved, got %q", out.LineItems[0].CategoryID)
	}
}
