package stages

import "context"

// AIEnrichment is stage 5: secondary LLM enrichment of titles and
// descriptions. Optional — on error the stage passes the items through
// unchanged rather than failing the workflow (spec.md §4.6).
func AIEnrichment(ctx context.Context, d Deps, in LineItemsStageOutput) (LineItemsStageOutput, error) {
	if d.Enrichment == nil {
		return in, nil
	}

	enriched, err := d.Enrichment.Enrich(ctx, in.LineItems)
	if err != nil {
		return in, nil
	}
	if len(enriched) != len(in.LineItems) {
		return in, nil
	}

	return LineItemsStageOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
		SupplierID:      in.SupplierID,
		LineItems:       enriched,
	}, nil
}
