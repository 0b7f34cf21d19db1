package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

type fakeUploadFetcher struct {
	data     []byte
	fileName string
	err      error
}

func (f fakeUploadFetcher) Fetch(ctx context.Context, uploadID string) ([]byte, string, error) {
	return f.data, f.fileName, f.err
}

type fakeExtractionClient struct {
	raw string
	err error
}

func (f fakeExtractionClient) Extract(ctx context.Context, fileBytes []byte, fileName string) (string, error) {
	return f.raw, f.err
}

func TestAIParsing_MissingDepsIsFatal(t *testing.T) {
	_, err := AIParsing(context.Background(), Deps{}, AIParsingInput{UploadID: "u1", MerchantID: "m1"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindFatal {
		t.Fatalf("expected fatal apierr, got %v", err)
	}
}

func TestAIParsing_HappyPath(t *testing.T) {
	d := Deps{
		Uploads:    fakeUploadFetcher{data: []byte("po bytes"), fileName: "po.pdf"},
		Extraction: fakeExtractionClient{raw: `{"number":"PO-1","lineItems":[{"productName":"Widget Case of 10","quantity":1,"unitCost":100,"totalCost":1000}]}`},
	}
	out, err := AIParsing(context.Background(), d, AIParsingInput{UploadID: "u1", MerchantID: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Extracted.Number != "PO-1" {
		t.Fatalf("expected number PO-1, got %q", out.Extracted.Number)
	}
	if out.Extracted.LineItems[0].Quantity != 10 {
		t.Fatalf("expected pack-quantity heuristic to set quantity 10, got %d", out.Extracted.LineItems[0].Quantity)
	}
}

func TestAIParsing_ThreadsEnvelopeConfidence(t *testing.T) {
	d := Deps{
		Uploads:    fakeUploadFetcher{data: []byte("po bytes"), fileName: "po.pdf"},
		Extraction: fakeExtractionClient{raw: `{"number":"PO-1","confidence":0.82,"lineItems":[{"productName":"Widget","quantity":1,"unitCost":100,"totalCost":100,"confidence":0.91}]}`},
	}
	out, err := AIParsing(context.Background(), d, AIParsingInput{UploadID: "u1", MerchantID: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Confidence != 0.82 {
		t.Fatalf("expected envelope confidence 0.82, got %v", out.Confidence)
	}
	if out.Extracted.LineItems[0].Confidence != 0.91 {
		t.Fatalf("expected line item confidence 0.91, got %v", out.Extracted.LineItems[0].Confidence)
	}
}

func TestAIParsing_NoLineItemsIsValidationError(t *testing.T) {
	d := Deps{
		Uploads:    fakeUploadFetcher{data: []byte("x"), fileName: "po.pdf"},
		Extraction: fakeExtractionClient{raw: `{"number":"PO-1","lineItems":[]}`},
	}
	_, err := AIParsing(context.Background(), d, AIParsingInput{UploadID: "u1", MerchantID: "m1"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindValidation {
		t.Fatalf("expected validation apierr, got %v", err)
	}
}

func TestAIParsing_ExtractionRPCFailureIsTransient(t *testing.T) {
	d := Deps{
		Uploads:    fakeUploadFetcher{data: []byte("x"), fileName: "po.pdf"},
		Extraction: fakeExtractionClient{err: errors.New("boom")},
	}
	_, err := AIParsing(context.Background(), d, AIParsingInput{UploadID: "u1", MerchantID: "m1"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindTransient {
		t.Fatalf("expected transient apierr, got %v", err)
	}
}

func TestExtractionTimeout_ScalesWithSizeAndCaps(t *testing.T) {
	if got := extractionTimeout(0); got != baseExtractionTimeout {
		t.Fatalf("expected base timeout for empty payload, got %v", got)
	}
	if got := extractionTimeout(100 * 1024); got != baseExtractionTimeout+perHundredKBTimeout {
		t.Fatalf("expected one extra chunk of timeout, got %v", got)
	}
	if got := extractionTimeout(100 * 1024 * 1024); got != maxExtractionTimeout {
		t.Fatalf("expected timeout capped at max, got %v", got)
	}
}
