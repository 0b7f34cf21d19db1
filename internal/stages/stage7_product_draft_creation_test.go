package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

type fakeDraftRepo struct {
	sessionID    string
	sessionErr   error
	draftID      string
	createErr    error
	attachCalls  int
	attachErr    error
	markSynced   []string
	markErr      error
}

func (f *fakeDraftRepo) EnsureSession(ctx context.Context, merchantID string) (string, error) {
	return f.sessionID, f.sessionErr
}

func (f *fakeDraftRepo) CreateOrReuseDraft(ctx context.Context, in CreateDraftInput) (string, error) {
	return f.draftID, f.createErr
}

func (f *fakeDraftRepo) AttachImages(ctx context.Context, draftID string, images []ImageCandidate) error {
	f.attachCalls++
	return f.attachErr
}

func (f *fakeDraftRepo) MarkSynced(ctx context.Context, draftID, externalProductID, externalVariantID string) error {
	f.markSynced = append(f.markSynced, draftID)
	return f.markErr
}

func TestProductDraftCreation_MissingDepsIsFatal(t *testing.T) {
	_, err := ProductDraftCreation(context.Background(), Deps{}, LineItemsStageOutput{})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindFatal {
		t.Fatalf("expected fatal apierr, got %v", err)
	}
}

func TestProductDraftCreation_HappyPath(t *testing.T) {
	repo := &fakeDraftRepo{sessionID: "sess1", draftID: "11111111-1111-1111-1111-111111111111"}
	d := Deps{Drafts: repo}
	in := LineItemsStageOutput{MerchantID: "m1", PurchaseOrderID: "po1", LineItems: []LineItem{{ProductName: "Widget", UnitCost: 10}}}
	out, err := ProductDraftCreation(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].DraftID.String() != repo.draftID {
		t.Fatalf("expected draft id assigned, got %v", out.LineItems[0].DraftID)
	}
}

func TestProductDraftCreation_SessionFailureIsTransient(t *testing.T) {
	repo := &fakeDraftRepo{sessionErr: errors.New("boom")}
	d := Deps{Drafts: repo}
	_, err := ProductDraftCreation(context.Background(), d, LineItemsStageOutput{LineItems: []LineItem{{}}})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindTransient {
		t.Fatalf("expected transient apierr, got %v", err)
	}
}

func TestProductDraftCreation_BadDraftIDIsValidationError(t *testing.T) {
	repo := &fakeDraftRepo{sessionID: "sess1", draftID: "not-a-uuid"}
	d := Deps{Drafts: repo}
	_, err := ProductDraftCreation(context.Background(), d, LineItemsStageOutput{LineItems: []LineItem{{}}})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindValidation {
		t.Fatalf("expected validation apierr, got %v", err)
	}
}
