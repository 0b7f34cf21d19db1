// Package enrichment implements stages.EnrichmentClient (spec.md §4.6
// stage 5): a secondary call that refines each line item's title,
// description, and price. Grounded on the teacher's
// internal/clients/openai/caption.go call shape — context timeout
// wrapping, a JSON-repair retry on malformed responses — generalized from
// the teacher's OpenAI SDK call onto a plain HTTP POST, since no pack
// example wires a third-party LLM SDK (see DESIGN.md).
package enrichment

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

type lineItemPayload struct {
	ID          string  `json:"id"`
	ProductName string  `json:"productName"`
	Description string  `json:"description,omitempty"`
	UnitCost    float64 `json:"unitCost"`
}

type refinedLineItem struct {
	ID                 string   `json:"id"`
	RefinedTitle       string   `json:"refinedTitle"`
	RefinedDescription string   `json:"refinedDescription"`
	RefinedPrice       *float64 `json:"refinedPrice,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	CategoryID         string   `json:"categoryId,omitempty"`
	Confidence         float64  `json:"confidence,omitempty"`
}

type enrichResponse struct {
	Items []refinedLineItem `json:"items"`
}

// Client is the concrete stages.EnrichmentClient implementation.
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
	baseURL := strings.TrimSpace(os.Getenv("ENRICHMENT_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing env var ENRICHMENT_API_URL")
	}
	return &Client{
		log:        log.With("component", "enrichment.Client"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     os.Getenv("ENRICHMENT_API_KEY"),
	}, nil
}

// Enrich refines items, returning them in the same order and count as the
// input. A malformed response is retried once with an explicit repair
// instruction; any other failure is the caller's to tolerate (spec.md
// §4.6: stage 5 passes input through unchanged on enrichment failure).
func (c *Client) Enrich(ctx context.Context, items []stages.LineItem) ([]stages.LineItem, error) {
	if len(items) == 0 {
		return items, nil
	}

	req := make([]lineItemPayload, len(items))
	for i, it := range items {
		req[i] = lineItemPayload{ID: it.ID.String(), ProductName: it.ProductName, Description: it.Description, UnitCost: it.UnitCost}
	}

	raw, err := c.post(ctx, "/v1/enrich", map[string]any{"items": req})
	if err != nil {
		return nil, err
	}

	parsed, err := parseEnrichResponse(raw)
	if err != nil {
		repaired, repairErr := c.post(ctx, "/v1/repair-json", map[string]any{"malformed": raw})
		if repairErr != nil {
			return nil, fmt.Errorf("enrichment response parse failed; repair call failed: %w; parse_err=%v", repairErr, err)
		}
		parsed, err = parseEnrichResponse(repaired)
		if err != nil {
			return nil, fmt.Errorf("enrichment response parse failed after repair: %w", err)
		}
	}

	if len(parsed.Items) != len(items) {
		return nil, fmt.Errorf("enrichment returned %d items, expected %d", len(parsed.Items), len(items))
	}

	byID := make(map[string]refinedLineItem, len(parsed.Items))
	for _, ri := range parsed.Items {
		byID[ri.ID] = ri
	}

	out := make([]stages.LineItem, len(items))
	for i, it := range items {
		out[i] = it
		ri, ok := byID[it.ID.String()]
		if !ok {
			continue
		}
		out[i].RefinedTitle = ri.RefinedTitle
		out[i].RefinedDescription = ri.RefinedDescription
		out[i].RefinedPrice = ri.RefinedPrice
		out[i].Tags = ri.Tags
		out[i].CategoryID = ri.CategoryID
		out[i].Confidence = ri.Confidence
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal enrichment request: %w", err)
	}

	resp, err := httpx.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return r, nil
	}, 3, 500*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("enrichment request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("read enrichment response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", &httpx.StatusError{Code: resp.StatusCode, Body: buf.String()}
	}
	return buf.String(), nil
}

func parseEnrichResponse(raw string) (enrichResponse, error) {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	var out enrichResponse
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return enrichResponse{}, err
	}
	return out, nil
}
