// Package commerce implements stages.CommerceClient (spec.md §4.6 stage
// 9): an idempotent product/variant upsert against the downstream
// commerce platform, keyed by lineItemId per spec.md §9. Grounded on the
// same HTTP call shape as internal/clients/enrichment.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/httpx"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
)

type upsertRequest struct {
	IdempotencyKey string   `json:"idempotencyKey"`
	MerchantID     string   `json:"merchantId"`
	DraftID        string   `json:"draftId"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	Tags           []string `json:"tags,omitempty"`
	CategoryID     string   `json:"categoryId,omitempty"`
	SKU            string   `json:"sku,omitempty"`
}

type upsertResponse struct {
	ExternalProductID string `json:"externalProductId"`
	ExternalVariantID string `json:"externalVariantId"`
}

// Client is the concrete stages.CommerceClient implementation.
type Client struct {
	log        *logger.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func New(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("COMMERCE_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing env var COMMERCE_API_URL")
	}
	return &Client{
		log:        log.With("component", "commerce.Client"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     os.Getenv("COMMERCE_API_KEY"),
	}, nil
}

// UpsertProduct pushes draft to the commerce platform. The idempotency key
// is the lineItemId — per spec.md §9, re-running this stage for an
// already-synced line item must be safe, which the downstream platform's
// idempotency-key handling, not retry logic here, guarantees.
func (c *Client) UpsertProduct(ctx context.Context, draft stages.CommerceDraft) (string, string, error) {
	body, err := json.Marshal(upsertRequest{
		IdempotencyKey: draft.LineItemID,
		MerchantID:     draft.MerchantID,
		DraftID:        draft.DraftID,
		Title:          draft.Title,
		Description:    draft.Description,
		Price:          draft.Price,
		Tags:           draft.Tags,
		CategoryID:     draft.CategoryID,
		SKU:            draft.SKU,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal commerce upsert request: %w", err)
	}

	resp, err := httpx.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/products/upsert", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Idempotency-Key", draft.LineItemID)
		if c.apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return r, nil
	}, 3, 500*time.Millisecond)
	if err != nil {
		return "", "", fmt.Errorf("commerce upsert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", &httpx.StatusError{Code: resp.StatusCode}
	}

	var parsed upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("decode commerce upsert response: %w", err)
	}
	if parsed.ExternalProductID == "" {
		return "", "", fmt.Errorf("commerce upsert response missing externalProductId")
	}
	return parsed.ExternalProductID, parsed.ExternalVariantID, nil
}
