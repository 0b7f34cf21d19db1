package stages

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

// ShopifySync is stage 9: push each draft to the commerce platform via
// an idempotent upsert keyed by lineItemId. At-least-once: re-running
// this stage for an already-synced draft must be safe, which is the
// CommerceClient implementation's contract, not this function's.
func ShopifySync(ctx context.Context, d Deps, in ImageAttachmentOutput) (ShopifySyncOutput, error) {
	if d.Commerce == nil || d.Drafts == nil {
		return ShopifySyncOutput(in), apierr.New(apierr.KindFatal, "shopify_sync_missing_deps", errors.New("commerce client and draft repo required"))
	}

	items := make([]LineItem, len(in.LineItems))
	copy(items, in.LineItems)

	for i, li := range items {
		if li.DraftID == uuid.Nil {
			continue
		}
		price := li.UnitCost
		if li.RefinedPrice != nil {
			price = *li.RefinedPrice
		}
		title := li.ProductName
		if li.RefinedTitle != "" {
			title = li.RefinedTitle
		}
		description := li.Description
		if li.RefinedDescription != "" {
			description = li.RefinedDescription
		}

		externalProductID, externalVariantID, err := d.Commerce.UpsertProduct(ctx, CommerceDraft{
			MerchantID:  in.MerchantID,
			DraftID:     li.DraftID.String(),
			LineItemID:  li.ID.String(),
			Title:       title,
			Description: description,
			Price:       price,
			Tags:        li.Tags,
			CategoryID:  li.CategoryID,
			SKU:         li.SKU,
		})
		if err != nil {
			return ShopifySyncOutput(in), apierr.New(apierr.KindTransient, "shopify_sync_upsert_failed", err)
		}

		if markErr := d.Drafts.MarkSynced(ctx, li.DraftID.String(), externalProductID, externalVariantID); markErr != nil {
			return ShopifySyncOutput(in), apierr.New(apierr.KindTransient, "shopify_sync_mark_synced_failed", markErr)
		}

		items[i].ExternalProductID = externalProductID
		items[i].ExternalVariantID = externalVariantID
	}

	return ShopifySyncOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
		LineItems:       items,
	}, nil
}
