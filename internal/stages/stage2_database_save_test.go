package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("invalid test uuid %q: %v", s, err)
	}
	return id
}

type fakePersister struct {
	result SaveExtractedPOResult
	err    error
	gotIn  SaveExtractedPOInput
}

func (f *fakePersister) SaveExtractedPO(ctx context.Context, in SaveExtractedPOInput) (SaveExtractedPOResult, error) {
	f.gotIn = in
	return f.result, f.err
}

func TestDatabaseSave_MissingDepsIsFatal(t *testing.T) {
	_, err := DatabaseSave(context.Background(), Deps{}, "wf1", "", AIParsingOutput{})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindFatal {
		t.Fatalf("expected fatal apierr, got %v", err)
	}
}

func TestDatabaseSave_HappyPath(t *testing.T) {
	p := &fakePersister{result: SaveExtractedPOResult{
		PurchaseOrderID: "po1",
		Number:          "PO-1",
		SupplierID:      "sup1",
		LineItems:       []LineItem{{ID: mustUUID(t, "11111111-1111-1111-1111-111111111111")}},
	}}
	d := Deps{Persister: p}
	in := AIParsingOutput{MerchantID: "m1", Extracted: ExtractedPO{Number: "PO-1"}}
	out, err := DatabaseSave(context.Background(), d, "wf1", "", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PurchaseOrderID != "po1" || out.SupplierID != "sup1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if p.gotIn.WorkflowID != "wf1" || p.gotIn.MerchantID != "m1" {
		t.Fatalf("persister did not receive expected input: %+v", p.gotIn)
	}
	if len(p.gotIn.RawExtractedRaw) == 0 {
		t.Fatal("expected raw extracted JSON to be populated")
	}
}

func TestDatabaseSave_NoLineItemsIsValidationError(t *testing.T) {
	p := &fakePersister{result: SaveExtractedPOResult{PurchaseOrderID: "po1"}}
	d := Deps{Persister: p}
	_, err := DatabaseSave(context.Background(), d, "wf1", "", AIParsingOutput{})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindValidation {
		t.Fatalf("expected validation apierr, got %v", err)
	}
}

func TestDatabaseSave_PersisterErrorPassesThrough(t *testing.T) {
	sentinel := apierr.New(apierr.KindConflict, "po_number_conflict", errors.New("dup"))
	p := &fakePersister{err: sentinel}
	d := Deps{Persister: p}
	_, err := DatabaseSave(context.Background(), d, "wf1", "", AIParsingOutput{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected persister error to pass through unchanged, got %v", err)
	}
}
