package stages

import (
	"context"
	"math"
	"strings"
)

// DataNormalization is stage 3: apply merchant-configured unit/sku/price
// rules to the working line items. A missing merchant config falls
// through to the zero-value NormalizationRules (no-op), never failing
// the stage (spec.md §4.6).
func DataNormalization(ctx context.Context, d Deps, in DatabaseSaveOutput) (LineItemsStageOutput, error) {
	rules := NormalizationRules{}
	if d.MerchantCfg != nil {
		if r, err := d.MerchantCfg.NormalizationRules(ctx, in.MerchantID); err == nil {
			rules = r
		}
	}

	items := make([]LineItem, len(in.LineItems))
	copy(items, in.LineItems)
	for i := range items {
		items[i] = applyNormalizationRules(items[i], rules)
	}

	return LineItemsStageOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
		SupplierID:      in.SupplierID,
		LineItems:       items,
	}, nil
}

func applyNormalizationRules(li LineItem, rules NormalizationRules) LineItem {
	if rules.SKUPrefix != "" && li.SKU != "" && !strings.HasPrefix(li.SKU, rules.SKUPrefix) {
		li.SKU = rules.SKUPrefix + li.SKU
	}
	if len(rules.UnitAliases) > 0 {
		for alias, canonical := range rules.UnitAliases {
			if strings.EqualFold(li.Description, alias) {
				li.Description = canonical
			}
		}
	}
	if rules.RoundPriceCents {
		li.UnitCost = math.Round(li.UnitCost*100) / 100
		li.TotalCost = math.Round(li.TotalCost*100) / 100
	}
	return li
}
