package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProductDraftStatus string

const (
	ProductDraftStatusDraft          ProductDraftStatus = "DRAFT"
	ProductDraftStatusPendingReview  ProductDraftStatus = "PENDING_REVIEW"
	ProductDraftStatusApproved       ProductDraftStatus = "APPROVED"
	ProductDraftStatusRejected       ProductDraftStatus = "REJECTED"
	ProductDraftStatusSyncing        ProductDraftStatus = "SYNCING"
	ProductDraftStatusSynced         ProductDraftStatus = "SYNCED"
	ProductDraftStatusFailed         ProductDraftStatus = "FAILED"
)

// ProductDraft is the per-line-item projection stages 7-9 build toward a
// downstream commerce platform. Invariant I-5: LineItemID is unique — at
// most one draft per POLineItem; stage 7 reuses an existing draft rather
// than creating a duplicate.
type ProductDraft struct {
	ID                  uuid.UUID          `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MerchantID          uuid.UUID          `gorm:"type:uuid;not null;index" json:"merchant_id"`
	SessionID           uuid.UUID          `gorm:"type:uuid;not null;index" json:"session_id"`
	PurchaseOrderID     uuid.UUID          `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	LineItemID          uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex" json:"line_item_id"`
	SupplierID          *uuid.UUID         `gorm:"type:uuid;column:supplier_id" json:"supplier_id,omitempty"`
	OriginalTitle       string             `gorm:"column:original_title;not null" json:"original_title"`
	RefinedTitle        string             `gorm:"column:refined_title" json:"refined_title,omitempty"`
	OriginalDescription string             `gorm:"column:original_description" json:"original_description,omitempty"`
	RefinedDescription  string             `gorm:"column:refined_description" json:"refined_description,omitempty"`
	OriginalPrice       float64            `gorm:"column:original_price" json:"original_price"`
	PriceRefined        *float64           `gorm:"column:price_refined" json:"price_refined,omitempty"`
	Status              ProductDraftStatus `gorm:"column:status;not null;default:DRAFT;index" json:"status"`
	ExternalProductID   string             `gorm:"column:external_product_id" json:"external_product_id,omitempty"`
	ExternalVariantID   string             `gorm:"column:external_variant_id" json:"external_variant_id,omitempty"`
	Tags                datatypes.JSON     `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	CategoryID          string             `gorm:"column:category_id" json:"category_id,omitempty"`
	CreatedAt           time.Time          `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"not null;default:now()" json:"updated_at"`
}

func (ProductDraft) TableName() string { return "product_draft" }
