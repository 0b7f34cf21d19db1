package stages

import (
	"context"
	"time"
)

// UploadFetcher resolves an upload's file bytes for stage 1, grounded on
// the teacher's clients/gcp/bucket.go GCS download shape.
type UploadFetcher interface {
	Fetch(ctx context.Context, uploadID string) (data []byte, fileName string, err error)
}

// ExtractionClient is the outbound vision/LLM RPC of spec.md §6. The
// caller (AIParsing) applies the adaptive timeout (60s + 10s/100kB,
// capped at 120s) to ctx before calling Extract; implementations do
// not re-wrap ctx.
type ExtractionClient interface {
	Extract(ctx context.Context, fileBytes []byte, fileName string) (raw string, err error)
}

// EnrichmentClient is stage 5's secondary LLM call. A failure here is
// tolerated (pass-through), per spec.md §4.6.
type EnrichmentClient interface {
	Enrich(ctx context.Context, items []LineItem) ([]LineItem, error)
}

// ImageCandidate is one scored result from the image-search client.
type ImageCandidate struct {
	URL          string
	SourceDomain string
	Confidence   float64
}

// ImageSearchClient issues a single "Brand Model" query per draft
// (spec.md §4.6 stage 8).
type ImageSearchClient interface {
	Search(ctx context.Context, query string) ([]ImageCandidate, error)
}

// CommerceClient pushes one draft to the downstream platform with an
// idempotent upsert keyed by lineItemId (spec.md §9).
type CommerceClient interface {
	UpsertProduct(ctx context.Context, draft CommerceDraft) (externalProductID, externalVariantID string, err error)
}

// CommerceDraft is the minimal shape stage 9 pushes outbound.
type CommerceDraft struct {
	MerchantID    string
	DraftID       string
	LineItemID    string
	Title         string
	Description   string
	Price         float64
	Tags          []string
	CategoryID    string
	SKU           string
}

// NormalizationRules is the merchant-configured unit/sku/price rule set
// stage 3 applies. A missing merchant config falls through to the zero
// value (no-op rules), never fails the stage (spec.md §4.6).
type NormalizationRules struct {
	SKUPrefix       string            `json:"skuPrefix,omitempty"`
	UnitAliases     map[string]string `json:"unitAliases,omitempty"`
	RoundPriceCents bool              `json:"roundPriceCents,omitempty"`
}

// CategorizationRules is the merchant-configured tagging/categorization
// rule set stage 4 applies, keyed by keyword found in the product name
// (case-insensitive substring match).
type CategorizationRules struct {
	DefaultCategoryID string            `json:"defaultCategoryId,omitempty"`
	KeywordTags       map[string]string `json:"keywordTags,omitempty"` // keyword -> categoryId
	StaticTags        []string          `json:"staticTags,omitempty"`
}

// MerchantConfigProvider resolves per-merchant stage 3/4 rules.
type MerchantConfigProvider interface {
	NormalizationRules(ctx context.Context, merchantID string) (NormalizationRules, error)
	CategorizationRules(ctx context.Context, merchantID string) (CategorizationRules, error)
}

// POPersister wraps the Persistence Service (internal/data/repos/po) and
// the Supplier Resolver behind the single call stage 2 needs.
type POPersister interface {
	SaveExtractedPO(ctx context.Context, in SaveExtractedPOInput) (SaveExtractedPOResult, error)
}

// SaveExtractedPOInput carries everything the Persistence Service needs,
// including workflow identifiers for the audit row.
type SaveExtractedPOInput struct {
	WorkflowID      string
	MerchantID      string
	ExistingPOID    string
	Extracted       ExtractedPO
	Confidence      float64
	RawExtractedRaw []byte
}

// SaveExtractedPOResult is what stage 2 needs to build DatabaseSaveOutput.
type SaveExtractedPOResult struct {
	PurchaseOrderID string
	Number          string
	SupplierID      string
	LineItems       []LineItem
}

// DraftRepo creates or reuses ProductDrafts (invariant I-5: unique per
// lineItemId) and ensures a Session exists for the merchant.
type DraftRepo interface {
	EnsureSession(ctx context.Context, merchantID string) (sessionID string, err error)
	CreateOrReuseDraft(ctx context.Context, in CreateDraftInput) (draftID string, err error)
	AttachImages(ctx context.Context, draftID string, images []ImageCandidate) error
	MarkSynced(ctx context.Context, draftID, externalProductID, externalVariantID string) error
}

// CreateDraftInput is one ProductDraft's seed data from a working
// LineItem.
type CreateDraftInput struct {
	MerchantID      string
	SessionID       string
	PurchaseOrderID string
	LineItemID      string
	SupplierID      string
	Title           string
	Description     string
	Price           float64
	RefinedTitle    string
	RefinedDesc     string
	RefinedPrice    *float64
	Tags            []string
	CategoryID      string
}

// POStatusWriter is stage 10's final writer.
type POStatusWriter interface {
	Complete(ctx context.Context, purchaseOrderID string) error
}

// StageStoreCleaner removes a workflow's accumulated StageStore rows
// once the workflow reaches a terminal state (spec.md §4.6 stage 10:
// "clean stage store").
type StageStoreCleaner interface {
	Clear(ctx context.Context, workflowID string) error
}

// Deps bundles every external collaborator a stage may need. Not every
// stage uses every field; unused fields are left nil by the caller.
// Progress Bus publication is the orchestrator's responsibility (it
// alone knows the workflow id and overall percent complete), not a
// stage's — keeping these functions pure transforms of their typed
// input, per spec.md §4.6.
type Deps struct {
	Uploads     UploadFetcher
	Extraction  ExtractionClient
	Enrichment  EnrichmentClient
	ImageSearch ImageSearchClient
	Commerce    CommerceClient
	MerchantCfg MerchantConfigProvider
	Persister   POPersister
	Drafts      DraftRepo
	POStatus    POStatusWriter
	StageStore  StageStoreCleaner
	Now         func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
