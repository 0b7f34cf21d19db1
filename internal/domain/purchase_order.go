package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PurchaseOrderStatus string

const (
	POStatusProcessing   PurchaseOrderStatus = "processing"
	POStatusReviewNeeded PurchaseOrderStatus = "review_needed"
	POStatusCompleted    PurchaseOrderStatus = "completed"
	POStatusFailed       PurchaseOrderStatus = "failed"
)

// Terminal reports whether status is one a workflow must never reopen
// (invariant I-2: processing -> (review_needed | failed) -> completed).
func (s PurchaseOrderStatus) Terminal() bool {
	return s == POStatusCompleted || s == POStatusFailed
}

// PurchaseOrder is the tenant-scoped business entity stages 2-10 mutate.
// Invariant I-1: (MerchantID, Number) is globally unique — enforced by a
// DB unique index, not in Go; see data/repos/po for conflict handling.
type PurchaseOrder struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MerchantID  uuid.UUID           `gorm:"type:uuid;not null;index:idx_po_merchant_number,priority:1" json:"merchant_id"`
	Number      string              `gorm:"column:number;not null;index:idx_po_merchant_number,priority:2,unique" json:"number"`
	SupplierID  *uuid.UUID          `gorm:"type:uuid;column:supplier_id;index" json:"supplier_id,omitempty"`
	Status      PurchaseOrderStatus `gorm:"column:status;not null;default:processing;index" json:"status"`
	JobStatus   string              `gorm:"column:job_status" json:"job_status,omitempty"`
	TotalAmount float64             `gorm:"column:total_amount" json:"total_amount"`
	Currency    string              `gorm:"column:currency" json:"currency,omitempty"`
	Confidence  float64             `gorm:"column:confidence" json:"confidence"`
	RawData     datatypes.JSON      `gorm:"column:raw_data;type:jsonb" json:"raw_data,omitempty"`
	CreatedAt   time.Time           `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt      `gorm:"index" json:"deleted_at,omitempty"`
}

func (PurchaseOrder) TableName() string { return "purchase_order" }
