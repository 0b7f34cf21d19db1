// Package persistence wires stage 2's single collaborator seam
// (stages.POPersister) out of the two components spec.md §4.5 names
// separately: the Persistence Service's bounded-time upsert transaction
// (internal/data/repos/po) and the Supplier Resolver's auto-match policy
// (internal/supplier). Grounded on the teacher's pattern of composing
// narrow repo packages behind one job-facing facade
// (internal/jobs/pipeline/course_build wiring several repos behind one
// Stage.Run), generalized so stage 2 itself stays a pure function that
// only knows about SaveExtractedPOInput/Result.
package persistence

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/po"
	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
	"github.com/northboundcommerce/po-ingest-engine/internal/supplier"
)

// Service implements stages.POPersister.
type Service struct {
	po       *po.Repo
	resolver *supplier.Resolver
	log      *logger.Logger
}

func New(poRepo *po.Repo, resolver *supplier.Resolver, log *logger.Logger) *Service {
	return &Service{po: poRepo, resolver: resolver, log: log}
}

// SaveExtractedPO resolves the supplier, upserts the PO header and its
// line items in one bounded-time transaction, and maps the persisted
// ids back onto a working stages.LineItem slice in extraction order.
func (s *Service) SaveExtractedPO(ctx context.Context, in stages.SaveExtractedPOInput) (stages.SaveExtractedPOResult, error) {
	merchantUUID, err := uuid.Parse(in.MerchantID)
	if err != nil {
		return stages.SaveExtractedPOResult{}, fmt.Errorf("parse merchant id: %w", err)
	}

	supplierID, status := s.resolveSupplier(ctx, in.MerchantID, in.Extracted.Supplier)

	var existingUUID *uuid.UUID
	if in.ExistingPOID != "" {
		id, err := uuid.Parse(in.ExistingPOID)
		if err != nil {
			return stages.SaveExtractedPOResult{}, fmt.Errorf("parse existing po id: %w", err)
		}
		existingUUID = &id
	}

	var supplierUUID *uuid.UUID
	if supplierID != "" {
		if id, err := uuid.Parse(supplierID); err == nil {
			supplierUUID = &id
		}
	}

	header := domain.PurchaseOrder{
		Status:     status,
		Confidence: in.Confidence,
		SupplierID: supplierUUID,
	}
	if in.Extracted.Totals.Total > 0 {
		header.TotalAmount = in.Extracted.Totals.Total
	}

	lineItems := make([]domain.POLineItem, len(in.Extracted.LineItems))
	for i, li := range in.Extracted.LineItems {
		conf := li.Confidence
		if conf == 0 {
			conf = in.Confidence
		}
		lineItems[i] = domain.POLineItem{
			SKU:         li.SKU,
			ProductName: li.ProductName,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitCost:    li.UnitCost,
			TotalCost:   li.TotalCost,
			Confidence:  conf,
		}
	}

	s.checkTotalsTolerance(in.WorkflowID, in.Extracted.Number, in.Extracted.LineItems, in.Extracted.Totals.Total)

	result, err := s.po.UpsertWithLineItems(
		ctx, existingUUID, merchantUUID, in.Extracted.Number,
		header, lineItems, in.WorkflowID, in.Confidence, in.RawExtractedRaw,
	)
	if err != nil {
		return stages.SaveExtractedPOResult{}, err
	}

	working := make([]stages.LineItem, len(in.Extracted.LineItems))
	for i, li := range in.Extracted.LineItems {
		id := uuid.Nil
		if i < len(result.LineItemIDs) {
			id = result.LineItemIDs[i]
		}
		conf := li.Confidence
		if conf == 0 {
			conf = in.Confidence
		}
		working[i] = stages.LineItem{
			ID:          id,
			SKU:         li.SKU,
			ProductName: li.ProductName,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitCost:    li.UnitCost,
			TotalCost:   li.TotalCost,
			Confidence:  conf,
		}
	}

	return stages.SaveExtractedPOResult{
		PurchaseOrderID: result.PurchaseOrderID.String(),
		Number:          result.Number,
		SupplierID:      supplierID,
		LineItems:       working,
	}, nil
}

// resolveSupplier applies the auto-match policy (spec.md §4.4): auto-link
// or auto-create both resolve to processing; a bare suggestion list
// resolves to review_needed so a human reconciles the match, matching
// spec.md §3's PurchaseOrder.status semantics.
func (s *Service) resolveSupplier(ctx context.Context, merchantID string, stub stages.SupplierStub) (string, domain.PurchaseOrderStatus) {
	if s.resolver == nil || stub.Name == "" {
		return "", domain.POStatusReviewNeeded
	}

	result, err := s.resolver.ResolveAndMatch(ctx, merchantID, supplier.Stub{
		Name:    stub.Name,
		Email:   stub.Email,
		Phone:   stub.Phone,
		Website: stub.Website,
		Address: stub.Address,
	}, domain.ResolverEngine(""), true)
	if err != nil || len(result.Candidates) == 0 {
		return "", domain.POStatusReviewNeeded
	}

	switch result.Action {
	case supplier.ActionAutoLinked, supplier.ActionCreatedNewSupplier:
		return result.Candidates[0].SupplierID, domain.POStatusProcessing
	default:
		return "", domain.POStatusReviewNeeded
	}
}

// checkTotalsTolerance implements invariant I-3: SUM(lineItem.TotalCost)
// should match the extraction envelope's declared total within
// stages.TotalsToleranceFactor per line item. A mismatch points at a
// parsing error (missed line, misread column) but is never fatal — the
// PO is still saved and a human can reconcile it in review.
func (s *Service) checkTotalsTolerance(workflowID, poNumber string, lineItems []stages.ExtractedLineItem, declaredTotal float64) {
	if s.log == nil || declaredTotal <= 0 {
		return
	}
	sum, tolerance, ok := totalsWithinTolerance(lineItems, declaredTotal)
	if !ok {
		s.log.Warn("line item totals outside tolerance of declared PO total",
			"workflow_id", workflowID, "po_number", poNumber,
			"sum_total_cost", sum, "declared_total", declaredTotal, "tolerance", tolerance)
	}
}

// totalsWithinTolerance reports whether SUM(lineItem.TotalCost) is within
// stages.TotalsToleranceFactor per line item of declaredTotal.
func totalsWithinTolerance(lineItems []stages.ExtractedLineItem, declaredTotal float64) (sum, tolerance float64, ok bool) {
	for _, li := range lineItems {
		sum += li.TotalCost
	}
	tolerance = stages.TotalsToleranceFactor * float64(len(lineItems))
	return sum, tolerance, math.Abs(sum-declaredTotal) <= tolerance
}
