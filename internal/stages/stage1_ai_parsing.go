package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
)

const (
	baseExtractionTimeout = 60 * time.Second
	perHundredKBTimeout   = 10 * time.Second
	maxExtractionTimeout  = 120 * time.Second
)

// extractionTimeout implements spec.md §4.6's adaptive timeout:
// 60s + 10s per 100kB, capped at 120s.
func extractionTimeout(sizeBytes int) time.Duration {
	chunks := sizeBytes / (100 * 1024)
	t := baseExtractionTimeout + time.Duration(chunks)*perHundredKBTimeout
	if t > maxExtractionTimeout {
		return maxExtractionTimeout
	}
	return t
}

// AIParsing is stage 1: read file bytes, call the extraction RPC with
// the adaptive timeout, strip markdown fencing, validate the envelope,
// and apply the pack-quantity heuristic.
func AIParsing(ctx context.Context, d Deps, in AIParsingInput) (AIParsingOutput, error) {
	if d.Uploads == nil || d.Extraction == nil {
		return AIParsingOutput{}, apierr.New(apierr.KindFatal, "ai_parsing_missing_deps", errors.New("upload fetcher and extraction client required"))
	}

	fileBytes, fileName, err := d.Uploads.Fetch(ctx, in.UploadID)
	if err != nil {
		return AIParsingOutput{}, apierr.New(apierr.KindTransient, "ai_parsing_fetch_failed", fmt.Errorf("fetch upload bytes: %w", err))
	}

	timeout := extractionTimeout(len(fileBytes))
	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := d.Extraction.Extract(extractCtx, fileBytes, fileName)
	if err != nil {
		if errors.Is(extractCtx.Err(), context.DeadlineExceeded) {
			return AIParsingOutput{}, apierr.New(apierr.KindTransient, "ai_parsing_timeout", fmt.Errorf("extraction RPC timed out after %s: %w", timeout, err))
		}
		return AIParsingOutput{}, apierr.New(apierr.KindTransient, "ai_parsing_rpc_failed", err)
	}

	extracted, err := parseExtractedPO(raw)
	if err != nil {
		return AIParsingOutput{}, apierr.New(apierr.KindValidation, "ai_parsing_malformed_response", err)
	}
	if len(extracted.LineItems) == 0 {
		return AIParsingOutput{}, apierr.New(apierr.KindValidation, "ai_parsing_no_line_items", errors.New("extraction response has no line items"))
	}

	for i, li := range extracted.LineItems {
		extracted.LineItems[i] = applyPackQuantityHeuristic(li)
	}

	return AIParsingOutput{
		MerchantID: in.MerchantID,
		UploadID:   in.UploadID,
		Extracted:  extracted,
		Confidence: extracted.Confidence,
	}, nil
}
