// Package imagesearch implements stages.ImageSearchClient (spec.md §4.6
// stage 8): a single "Brand Model" query against an outbound image search
// API, scored candidates returned for the caller to filter/rank. Grounded
// on the same HTTP call shape as internal/clients/enrichment (timeout
// wrapping, retry on transient status codes), since no pack example wires
// a dedicated image-search SDK.
package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/httpx"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
)

type searchResponse struct {
	Results []struct {
		URL        string  `json:"url"`
		Domain     string  `json:"domain"`
		Confidence float64 `json:"confidence"`
	} `json:"results"`
}

// Client is the concrete stages.ImageSearchClient implementation.
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
	baseURL := strings.TrimSpace(os.Getenv("IMAGE_SEARCH_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing env var IMAGE_SEARCH_API_URL")
	}
	return &Client{
		log:        log.With("component", "imagesearch.Client"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     os.Getenv("IMAGE_SEARCH_API_KEY"),
	}, nil
}

// Search issues one query and returns every scored result; stages.ImageAttachment
// applies the top-N/min-confidence filter, not this client.
func (c *Client) Search(ctx context.Context, query string) ([]stages.ImageCandidate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("empty image search query")
	}

	target := fmt.Sprintf("%s/v1/search?q=%s", c.baseURL, url.QueryEscape(q))

	resp, err := httpx.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		if c.apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return r, nil
	}, 2, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("image search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{Code: resp.StatusCode}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode image search response: %w", err)
	}

	out := make([]stages.ImageCandidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, stages.ImageCandidate{URL: r.URL, SourceDomain: r.Domain, Confidence: r.Confidence})
	}
	return out, nil
}
