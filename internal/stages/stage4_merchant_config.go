package stages

import (
	"context"
	"strings"
)

// MerchantConfig is stage 4: apply tenant-specific tagging and
// categorization rules on top of the normalized line items.
func MerchantConfig(ctx context.Context, d Deps, in LineItemsStageOutput) (LineItemsStageOutput, error) {
	rules := CategorizationRules{}
	if d.MerchantCfg != nil {
		if r, err := d.MerchantCfg.CategorizationRules(ctx, in.MerchantID); err == nil {
			rules = r
		}
	}

	items := make([]LineItem, len(in.LineItems))
	copy(items, in.LineItems)
	for i := range items {
		items[i] = applyCategorizationRules(items[i], rules)
	}

	return LineItemsStageOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
		SupplierID:      in.SupplierID,
		LineItems:       items,
	}, nil
}

func applyCategorizationRules(li LineItem, rules CategorizationRules) LineItem {
	if len(rules.StaticTags) > 0 {
		li.Tags = append(li.Tags, rules.StaticTags...)
	}
	categoryID := rules.DefaultCategoryID
	nameLower := strings.ToLower(li.ProductName)
	for keyword, categoryForKeyword := range rules.KeywordTags {
		if keyword == "" {
			continue
		}
		if strings.Contains(nameLower, strings.ToLower(keyword)) {
			categoryID = categoryForKeyword
			li.Tags = append(li.Tags, keyword)
		}
	}
	if li.CategoryID == "" {
		li.CategoryID = categoryID
	}
	return li
}
