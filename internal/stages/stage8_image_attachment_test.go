package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakeImageSearchClient struct {
	candidates []ImageCandidate
	err        error
}

func (f fakeImageSearchClient) Search(ctx context.Context, query string) ([]ImageCandidate, error) {
	return f.candidates, f.err
}

func TestImageAttachment_NilCollaboratorsIsNoOp(t *testing.T) {
	in := ProductDraftCreationOutput{LineItems: []LineItem{{DraftID: uuid.New()}}}
	out, err := ImageAttachment(context.Background(), Deps{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.LineItems) != 1 {
		t.Fatalf("expected passthrough, got %+v", out.LineItems)
	}
}

func TestImageAttachment_SkipsLineItemsWithoutDraft(t *testing.T) {
	repo := &fakeDraftRepo{}
	d := Deps{ImageSearch: fakeImageSearchClient{candidates: []ImageCandidate{{URL: "http://x", Confidence: 0.9}}}, Drafts: repo}
	in := ProductDraftCreationOutput{LineItems: []LineItem{{ProductName: "Widget"}}}
	_, err := ImageAttachment(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.attachCalls != 0 {
		t.Fatalf("expected no attach calls for draftless line item, got %d", repo.attachCalls)
	}
}

func TestImageAttachment_AttachesTopCandidates(t *testing.T) {
	repo := &fakeDraftRepo{}
	d := Deps{
		ImageSearch: fakeImageSearchClient{candidates: []ImageCandidate{
			{URL: "http://low", Confidence: 0.1},
			{URL: "http://high", Confidence: 0.9},
		}},
		Drafts: repo,
	}
	in := ProductDraftCreationOutput{LineItems: []LineItem{{ProductName: "Widget Pro", DraftID: uuid.New()}}}
	_, err := ImageAttachment(context.Background(), d, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.attachCalls != 1 {
		t.Fatalf("expected one attach call, got %d", repo.attachCalls)
	}
}

func TestImageAttachment_SearchErrorIsTolerated(t *testing.T) {
	repo := &fakeDraftRepo{}
	d := Deps{ImageSearch: fakeImageSearchClient{err: errors.New("boom")}, Drafts: repo}
	in := ProductDraftCreationOutput{LineItems: []LineItem{{ProductName: "Widget", DraftID: uuid.New()}}}
	_, err := ImageAttachment(context.Background(), d, in)
	if err != nil {
		t.Fatalf("expected search errors to be tolerated, got %v", err)
	}
	if repo.attachCalls != 0 {
		t.Fatalf("expected no attach call on search error, got %d", repo.attachCalls)
	}
}

func TestImageQueryFor_TakesFirstTwoTokens(t *testing.T) {
	got := imageQueryFor(LineItem{ProductName: "Acme SuperWidget 3000 Deluxe"})
	if got != "Acme SuperWidget" {
		t.Fatalf("expected first two tokens, got %q", got)
	}
}

func TestTopImageCandidates_FiltersAndLimits(t *testing.T) {
	candidates := []ImageCandidate{
		{URL: "a", Confidence: 0.9},
		{URL: "b", Confidence: 0.3},
		{URL: "c", Confidence: 0.8},
		{URL: "d", Confidence: 0.7},
	}
	top := topImageCandidates(candidates, 2, 0.5)
	if len(top) != 2 || top[0].URL != "a" || top[1].URL != "c" {
		t.Fatalf("expected top 2 by confidence above threshold, got %+v", top)
	}
}
