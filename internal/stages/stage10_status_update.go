package stages

import (
	"context"
	"errors"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

// StatusUpdate is stage 10, the final writer: set
// PurchaseOrder.status = completed, clean the stage store, and return.
// Must be idempotent — re-running against an already-completed PO is a
// no-op success, not an error (spec.md §4.6, §5).
func StatusUpdate(ctx context.Context, d Deps, workflowID string, in ShopifySyncOutput) (StatusUpdateOutput, error) {
	if d.POStatus == nil {
		return StatusUpdateOutput{}, apierr.New(apierr.KindFatal, "status_update_missing_deps", errors.New("POStatusWriter required"))
	}

	if err := d.POStatus.Complete(ctx, in.PurchaseOrderID); err != nil {
		return StatusUpdateOutput{}, apierr.New(apierr.KindTransient, "status_update_failed", err)
	}

	if d.StageStore != nil {
		_ = d.StageStore.Clear(ctx, workflowID)
	}

	return StatusUpdateOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: in.PurchaseOrderID,
	}, nil
}
