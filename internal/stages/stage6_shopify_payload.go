package stages

import "context"

// ShopifyPayload is stage 6: shape the enriched line items into the
// blobs the downstream commerce platform's product/draft API expects.
// No external call — a pure reshaping step, same envelope as stages 3-5
// since the commerce-platform payload shape is derived entirely from
// fields already present on LineItem.
func ShopifyPayload(ctx context.Context, d Deps, in LineItemsStageOutput) (LineItemsStageOutput, error) {
	items := make([]LineItem, len(in.LineItems))
	copy(items, in.LineItems)
	for i := range items {
		if items[i].RefinedTitle == "" {
			items[i].RefinedTitle = items[i].ProductName
		}
		if items[i].RefinedDescription == "" {
			items[i].RefinedDescription = items[i].Description
		}
		if items[i].RefinedPrice == nil {
			price := items[i].UnitCost
			items[i].RefinedPrice = &price
		}
	}

	return LineItemsStageOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
		SupplierID:      in.SupplierID,
		LineItems:       items,
	}, nil
}
