package stages

import (
	"context"
	"errors"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

// ProductDraftCreation is stage 7: create one ProductDraft per
// POLineItem (invariant I-5). If a draft already exists for a
// lineItemId it is reused; if the merchant has no Session a temporary
// one is created rather than failing the stage (spec.md §4.6).
func ProductDraftCreation(ctx context.Context, d Deps, in LineItemsStageOutput) (ProductDraftCreationOutput, error) {
	if d.Drafts == nil {
		return ProductDraftCreationOutput{}, apierr.New(apierr.KindFatal, "product_draft_creation_missing_deps", errors.New("DraftRepo required"))
	}

	sessionID, err := d.Drafts.EnsureSession(ctx, in.MerchantID)
	if err != nil {
		return ProductDraftCreationOutput{}, apierr.New(apierr.KindTransient, "product_draft_creation_session_failed", err)
	}

	items := make([]LineItem, len(in.LineItems))
	copy(items, in.LineItems)
	for i := range items {
		li := items[i]
		price := li.UnitCost
		if li.RefinedPrice != nil {
			price = *li.RefinedPrice
		}
		draftID, err := d.Drafts.CreateOrReuseDraft(ctx, CreateDraftInput{
			MerchantID:      in.MerchantID,
			SessionID:       sessionID,
			PurchaseOrderID: in.PurchaseOrderID,
			LineItemID:      li.ID.String(),
			SupplierID:      in.SupplierID,
			Title:           li.ProductName,
			Description:     li.Description,
			Price:           price,
			RefinedTitle:    li.RefinedTitle,
			RefinedDesc:     li.RefinedDescription,
			RefinedPrice:    li.RefinedPrice,
			Tags:            li.Tags,
			CategoryID:      li.CategoryID,
		})
		if err != nil {
			return ProductDraftCreationOutput{}, apierr.New(apierr.KindTransient, "product_draft_creation_failed", err)
		}
		draftUUID, err := mustParseUUID(draftID)
		if err != nil {
			return ProductDraftCreationOutput{}, apierr.New(apierr.KindValidation, "product_draft_creation_bad_id", err)
		}
		items[i].DraftID = draftUUID
	}

	return ProductDraftCreationOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
		LineItems:       items,
	}, nil
}
