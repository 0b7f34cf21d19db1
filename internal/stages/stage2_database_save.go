package stages

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

// DatabaseSave is stage 2: persist the extracted PO header and line
// items via the Persistence Service (spec.md §4.5), including supplier
// resolution and the PO-number conflict dance, all of which the
// POPersister implementation owns.
func DatabaseSave(ctx context.Context, d Deps, workflowID, existingPOID string, in AIParsingOutput) (DatabaseSaveOutput, error) {
	if d.Persister == nil {
		return DatabaseSaveOutput{}, apierr.New(apierr.KindFatal, "database_save_missing_deps", errors.New("POPersister required"))
	}

	rawExtracted, err := json.Marshal(in.Extracted)
	if err != nil {
		return DatabaseSaveOutput{}, apierr.New(apierr.KindValidation, "database_save_marshal_failed", err)
	}

	result, err := d.Persister.SaveExtractedPO(ctx, SaveExtractedPOInput{
		WorkflowID:      workflowID,
		MerchantID:      in.MerchantID,
		ExistingPOID:    existingPOID,
		Extracted:       in.Extracted,
		Confidence:      in.Confidence,
		RawExtractedRaw: rawExtracted,
	})
	if err != nil {
		return DatabaseSaveOutput{}, err
	}

	if len(result.LineItems) == 0 {
		return DatabaseSaveOutput{}, apierr.New(apierr.KindValidation, "database_save_no_line_items", errors.New("persistence returned no line items"))
	}

	return DatabaseSaveOutput{
		MerchantID:      in.MerchantID,
		PurchaseOrderID: result.PurchaseOrderID,
		Number:          result.Number,
		SupplierID:      result.SupplierID,
		LineItems:       result.LineItems,
	}, nil
}

// mustParseUUID is a defensive helper used by stages that receive ids as
// strings from the stage store (uuid.UUID has no zero-alloc JSON default
// worth relying on across a blob round-trip).
func mustParseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.UUID{}, errors.New("empty id")
	}
	return uuid.Parse(s)
}
