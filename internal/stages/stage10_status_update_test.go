package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

type fakePOStatusWriter struct {
	calls []string
	err   error
}

func (f *fakePOStatusWriter) Complete(ctx context.Context, purchaseOrderID string) error {
	f.calls = append(f.calls, purchaseOrderID)
	return f.err
}

type fakeStageStoreCleaner struct {
	cleared []string
	err     error
}

func (f *fakeStageStoreCleaner) Clear(ctx context.Context, workflowID string) error {
	f.cleared = append(f.cleared, workflowID)
	return f.err
}

func TestStatusUpdate_MissingDepsIsFatal(t *testing.T) {
	_, err := StatusUpdate(context.Background(), Deps{}, "wf1", ShopifySyncOutput{})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindFatal {
		t.Fatalf("expected fatal apierr, got %v", err)
	}
}

func TestStatusUpdate_HappyPathClearsStageStore(t *testing.T) {
	status := &fakePOStatusWriter{}
	cleaner := &fakeStageStoreCleaner{}
	d := Deps{POStatus: status, StageStore: cleaner}
	in := ShopifySyncOutput{MerchantID: "m1", PurchaseOrderID: "po1"}
	out, err := StatusUpdate(context.Background(), d, "wf1", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PurchaseOrderID != "po1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(status.calls) != 1 || status.calls[0] != "po1" {
		t.Fatalf("expected Complete called with po1, got %v", status.calls)
	}
	if len(cleaner.cleared) != 1 || cleaner.cleared[0] != "wf1" {
		t.Fatalf("expected Clear called with wf1, got %v", cleaner.cleared)
	}
}

func TestStatusUpdate_CompleteFailureIsTransient(t *testing.T) {
	d := Deps{POStatus: &fakePOStatusWriter{err: errors.New("boom")}}
	_, err := StatusUpdate(context.Background(), d, "wf1", ShopifySyncOutput{})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindTransient {
		t.Fatalf("expected transient apierr, got %v", err)
	}
}

func TestStatusUpdate_StageStoreClearFailureIsSwallowed(t *testing.T) {
	status := &fakePOStatusWriter{}
	cleaner := &fakeStageStoreCleaner{err: errors.New("boom")}
	d := Deps{POStatus: status, StageStore: cleaner}
	_, err := StatusUpdate(context.Background(), d, "wf1", ShopifySyncOutput{PurchaseOrderID: "po1"})
	if err != nil {
		t.Fatalf("expected stage store clear failure to be swallowed, got %v", err)
	}
}
