package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

type fakeCommerceClient struct {
	externalProductID string
	externalVariantID string
	err                error
}

func (f fakeCommerceClient) UpsertProduct(ctx context.Context, draft CommerceDraft) (string, string, error) {
	return f.externalProductID, f.externalVariantID, f.err
}

func TestShopifySync_MissingDepsIsFatal(t *testing.T) {
	_, err := ShopifySync(context.Background(), Deps{}, ImageAttachmentOutput{})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindFatal {
		t.Fatalf("expected fatal apierr, got %v", err)
	}
}

func TestShopifySync_HappyPath(t *testing.T) {
	repo := &fakeDraftRepo{}
	d := Deps{
		Commerce: fakeCommerceClient{externalProductID: "ext-prod-1", externalVariantID: "ext-var-1"},
		Drafts:   repo,
	}
	in := ImageAttachmentOutput{MerchantID: "m1", LineItems: []LineItem{{ProductName: "Widget", DraftID: uuid.New()}}}
	out, err := ShopifySync(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LineItems[0].ExternalProductID != "ext-prod-1" {
		t.Fatalf("expected external product id set, got %+v", out.LineItems[0])
	}
	if len(repo.markSynced) != 1 {
		t.Fatalf("expected MarkSynced called once, got %d", len(repo.markSynced))
	}
}

func TestShopifySync_SkipsLineItemsWithoutDraft(t *testing.T) {
	repo := &fakeDraftRepo{}
	d := Deps{Commerce: fakeCommerceClient{externalProductID: "ext-1"}, Drafts: repo}
	in := ImageAttachmentOutput{LineItems: []LineItem{{ProductName: "Widget"}}}
	_, err := ShopifySync(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.markSynced) != 0 {
		t.Fatalf("expected no MarkSynced calls for draftless item, got %d", len(repo.markSynced))
	}
}

func TestShopifySync_UpsertFailureIsTransient(t *testing.T) {
	d := Deps{Commerce: fakeCommerceClient{err: errors.New("boom")}, Drafts: &fakeDraftRepo{}}
	in := ImageAttachmentOutput{LineItems: []LineItem{{DraftID: uuid.New()}}}
	_, err := ShopifySync(context.Background(), d, in)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindTransient {
		t.Fatalf("expected transient apierr, got %v", err)
	}
}

func TestShopifySync_MarkSyncedFailureIsTransient(t *testing.T) {
	d := Deps{Commerce: fakeCommerceClient{externalProductID: "ext-1"}, Drafts: &fakeDraftRepo{markErr: errors.New("boom")}}
	in := ImageAttachmentOutput{LineItems: []LineItem{{DraftID: uuid.New()}}}
	_, err := ShopifySync(context.Background(), d, in)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindTransient {
		t.Fatalf("expected transient apierr, got %v", err)
	}
}
