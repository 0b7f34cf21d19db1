// Package productdraft implements stages.DraftRepo (spec.md §4.6 stages
// 7-9): Session bootstrap, the unique-per-lineItemId draft
// create-or-reuse (invariant I-5), image attachment, and the final
// synced-status write.
package productdraft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
)

// Repo is the product-draft persistence boundary.
type Repo struct {
	gw *pgw.Gateway
}

func New(gw *pgw.Gateway) *Repo {
	return &Repo{gw: gw}
}

// EnsureSession returns the merchant's most recent Session, creating a
// temporary one on demand rather than failing stage 7 when none exists
// (spec.md §4.6).
func (r *Repo) EnsureSession(ctx context.Context, merchantID string) (string, error) {
	merchantUUID, err := uuid.Parse(merchantID)
	if err != nil {
		return "", fmt.Errorf("parse merchant id: %w", err)
	}

	db, err := r.gw.Client(ctx)
	if err != nil {
		return "", err
	}

	var existing domain.Session
	err = db.WithContext(ctx).Where("merchant_id = ?", merchantUUID).
		Order("created_at DESC").First(&existing).Error
	if err == nil {
		return existing.ID.String(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("lookup merchant session: %w", err)
	}

	session := domain.Session{MerchantID: merchantUUID, Temporary: true}
	if err := r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Create(&session).Error
	}); err != nil {
		return "", fmt.Errorf("create temporary session: %w", err)
	}
	return session.ID.String(), nil
}

// CreateOrReuseDraft enforces invariant I-5: a ProductDraft is unique per
// lineItemId. If one already exists (e.g. this stage is retried after a
// crash) it is returned unchanged rather than duplicated.
func (r *Repo) CreateOrReuseDraft(ctx context.Context, in stages.CreateDraftInput) (string, error) {
	merchantUUID, err := uuid.Parse(in.MerchantID)
	if err != nil {
		return "", fmt.Errorf("parse merchant id: %w", err)
	}
	sessionUUID, err := uuid.Parse(in.SessionID)
	if err != nil {
		return "", fmt.Errorf("parse session id: %w", err)
	}
	poUUID, err := uuid.Parse(in.PurchaseOrderID)
	if err != nil {
		return "", fmt.Errorf("parse purchase order id: %w", err)
	}
	lineItemUUID, err := uuid.Parse(in.LineItemID)
	if err != nil {
		return "", fmt.Errorf("parse line item id: %w", err)
	}

	db, err := r.gw.Client(ctx)
	if err != nil {
		return "", err
	}

	var existing domain.ProductDraft
	err = db.WithContext(ctx).Where("line_item_id = ?", lineItemUUID).First(&existing).Error
	if err == nil {
		return existing.ID.String(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("lookup existing draft: %w", err)
	}

	var supplierID *uuid.UUID
	if in.SupplierID != "" {
		if sid, err := uuid.Parse(in.SupplierID); err == nil {
			supplierID = &sid
		}
	}

	tags, err := marshalTags(in.Tags)
	if err != nil {
		return "", err
	}

	draft := domain.ProductDraft{
		MerchantID:          merchantUUID,
		SessionID:           sessionUUID,
		PurchaseOrderID:     poUUID,
		LineItemID:          lineItemUUID,
		SupplierID:          supplierID,
		OriginalTitle:       in.Title,
		RefinedTitle:        in.RefinedTitle,
		OriginalDescription: in.Description,
		RefinedDescription:  in.RefinedDesc,
		OriginalPrice:       in.Price,
		PriceRefined:        in.RefinedPrice,
		Status:              domain.ProductDraftStatusDraft,
		Tags:                tags,
		CategoryID:          in.CategoryID,
	}

	err = r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		createErr := db.WithContext(ctx).Create(&draft).Error
		if createErr == nil {
			return nil
		}
		// Lost the race against a concurrent create for the same
		// lineItemId; fall back to the row the other writer inserted.
		var raced domain.ProductDraft
		if lookupErr := db.WithContext(ctx).Where("line_item_id = ?", lineItemUUID).First(&raced).Error; lookupErr == nil {
			draft = raced
			return nil
		}
		return createErr
	})
	if err != nil {
		return "", fmt.Errorf("create product draft: %w", err)
	}
	return draft.ID.String(), nil
}

// AttachImages inserts the scored image candidates stage 8 selected,
// positioned by rank.
func (r *Repo) AttachImages(ctx context.Context, draftID string, images []stages.ImageCandidate) error {
	if len(images) == 0 {
		return nil
	}
	draftUUID, err := uuid.Parse(draftID)
	if err != nil {
		return fmt.Errorf("parse draft id: %w", err)
	}

	rows := make([]domain.ProductImage, len(images))
	for i, img := range images {
		rows[i] = domain.ProductImage{
			DraftID:      draftUUID,
			URL:          img.URL,
			SourceDomain: img.SourceDomain,
			Confidence:   img.Confidence,
			Position:     i,
		}
	}

	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).CreateInBatches(rows, 100).Error
	})
}

// MarkSynced stamps a draft as pushed to the commerce platform. Safe to
// call repeatedly with the same ids (spec.md §9's at-least-once
// guarantee for stage 9).
func (r *Repo) MarkSynced(ctx context.Context, draftID, externalProductID, externalVariantID string) error {
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.ProductDraft{}).Where("id = ?", draftID).
			Updates(map[string]any{
				"status":              domain.ProductDraftStatusSynced,
				"external_product_id": externalProductID,
				"external_variant_id": externalVariantID,
			}).Error
	})
}

func marshalTags(tags []string) (datatypes.JSON, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal draft tags: %w", err)
	}
	return datatypes.JSON(b), nil
}
