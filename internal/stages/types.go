// Package stages implements the ten pure-function Stage Processors of
// spec.md §4.6. Each stage is `func(ctx, Deps, InputType) (OutputType,
// error)`; the orchestrator marshals the OutputType once at the
// StageStore boundary (spec.md §9's "tagged sum types... with explicit
// serialization" correction for the source's untyped any-object
// handoff) instead of threading a bare map[string]any between stages.
// Grounded on the teacher's internal/clients/openai/caption.go JSON
// brace-extraction/repair pattern for parsing LLM responses, and on
// internal/jobs/orchestrator's yield/resume stage-return shape
// (OrchestratorState.Results), generalized from map[string]any to these
// concrete structs.
package stages

import "github.com/google/uuid"

// Name is a stage identifier; kept as a plain string so it matches
// domain.StageName without an import cycle (internal/stages is a leaf
// package consumed by internal/orchestrator, not the reverse).
type Name = string

// SupplierStub is the parsed supplier identity stage 1 extracts from the
// document, consumed directly by internal/supplier.Stub.
type SupplierStub struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
}

// ExtractedLineItem is one line item as returned by the extraction RPC,
// before persistence assigns it an ID.
type ExtractedLineItem struct {
	SKU         string  `json:"sku,omitempty"`
	ProductName string  `json:"productName"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitCost    float64 `json:"unitCost"`
	TotalCost   float64 `json:"totalCost"`
	// Confidence is the extraction RPC's per-field confidence for this
	// line item (spec.md §6's fieldConfidences), zero when the source
	// carries no per-line signal. The OCR fallback path sets every line
	// to the document's average page confidence.
	Confidence float64 `json:"confidence,omitempty"`
}

// Totals is the extraction RPC's optional totals block, used only for
// the I-3 tolerance check (logged, never fatal).
type Totals struct {
	Subtotal float64 `json:"subtotal,omitempty"`
	Tax      float64 `json:"tax,omitempty"`
	Total    float64 `json:"total,omitempty"`
}

// ExtractedPO is the full envelope the extraction RPC returns (spec.md
// §6), after markdown-fence stripping and JSON-parse. Confidence is the
// envelope's document-level confidence (the same field spec.md §303's
// wire shape calls `confidence`, sitting alongside `fieldConfidences`
// which ExtractedLineItem.Confidence carries per line).
type ExtractedPO struct {
	Number     string              `json:"number"`
	Supplier   SupplierStub        `json:"supplier"`
	LineItems  []ExtractedLineItem `json:"lineItems"`
	Totals     Totals              `json:"totals"`
	Confidence float64             `json:"confidence,omitempty"`
}

// LineItem is the working copy of a line item threaded through stages
// 3-8, enriched in place by each stage. It is never written back onto
// the persisted POLineItem row (those are read-only after stage 2 per
// spec.md §3) — it exists purely as nextStageData.
type LineItem struct {
	ID                  uuid.UUID `json:"id"`
	SKU                 string    `json:"sku,omitempty"`
	ProductName         string    `json:"productName"`
	Description         string    `json:"description,omitempty"`
	Quantity            int       `json:"quantity"`
	UnitCost            float64   `json:"unitCost"`
	TotalCost           float64   `json:"totalCost"`
	Confidence          float64   `json:"confidence,omitempty"`
	Tags                []string  `json:"tags,omitempty"`
	CategoryID          string    `json:"categoryId,omitempty"`
	RefinedTitle        string    `json:"refinedTitle,omitempty"`
	RefinedDescription  string    `json:"refinedDescription,omitempty"`
	RefinedPrice        *float64  `json:"refinedPrice,omitempty"`
	DraftID             uuid.UUID `json:"draftId,omitempty"`
	ExternalProductID   string    `json:"externalProductId,omitempty"`
	ExternalVariantID   string    `json:"externalVariantId,omitempty"`
}

// AIParsingInput identifies the document for stage 1.
type AIParsingInput struct {
	UploadID   string `json:"uploadId"`
	MerchantID string `json:"merchantId"`
}

// AIParsingOutput is stage 1's nextStageData.
type AIParsingOutput struct {
	MerchantID string      `json:"merchantId"`
	UploadID   string      `json:"uploadId"`
	Extracted  ExtractedPO `json:"extracted"`
	Confidence float64     `json:"confidence"`
}

// DatabaseSaveOutput is stage 2's nextStageData: persisted ids, ready for
// stages 3+ to carry forward as a working LineItem slice.
type DatabaseSaveOutput struct {
	MerchantID      string     `json:"merchantId"`
	PurchaseOrderID string     `json:"purchaseOrderId"`
	Number          string     `json:"number"`
	SupplierID      string     `json:"supplierId,omitempty"`
	LineItems       []LineItem `json:"lineItems"`
}

// LineItemsStageOutput is the shared shape for stages 3-6: same
// (PurchaseOrderID, MerchantID, LineItems) envelope, each stage only
// mutating the LineItem fields it owns. Kept as one named type (instead
// of four near-identical ones) because the orchestrator's Processors
// MUST return `{nextStageData, purchaseOrderId, merchantId}` uniformly
// per spec.md §4.7 regardless of which stage produced it.
type LineItemsStageOutput struct {
	MerchantID      string     `json:"merchantId"`
	PurchaseOrderID string     `json:"purchaseOrderId"`
	SupplierID      string     `json:"supplierId,omitempty"`
	LineItems       []LineItem `json:"lineItems"`
}

// ProductDraftCreationOutput is stage 7's nextStageData.
type ProductDraftCreationOutput struct {
	MerchantID      string     `json:"merchantId"`
	PurchaseOrderID string     `json:"purchaseOrderId"`
	LineItems       []LineItem `json:"lineItems"`
}

// ImageAttachmentOutput is stage 8's nextStageData — identical shape to
// stage 7's output; images are attached as a side effect (ProductImage
// rows), not threaded through the blob.
type ImageAttachmentOutput = ProductDraftCreationOutput

// ShopifySyncOutput is stage 9's nextStageData.
type ShopifySyncOutput struct {
	MerchantID      string     `json:"merchantId"`
	PurchaseOrderID string     `json:"purchaseOrderId"`
	LineItems       []LineItem `json:"lineItems"`
}

// StatusUpdateOutput is stage 10's (terminal) nextStageData — empty, but
// typed rather than nil so the orchestrator's uniform envelope holds.
type StatusUpdateOutput struct {
	MerchantID      string `json:"merchantId"`
	PurchaseOrderID string `json:"purchaseOrderId"`
}

// TotalsToleranceFactor resolves spec.md §9's open question on I-3's
// exact tolerance: 0.01 per line item, the source's conservative
// estimate, named here so it is a single tunable. Applied in
// internal/data/repos/persistence against SUM(lineItem.TotalCost) vs
// ExtractedPO.Totals.Total, the one place both numbers are in scope
// before the PO header is written.
const TotalsToleranceFactor = 0.01
