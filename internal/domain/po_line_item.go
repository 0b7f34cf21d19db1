package domain

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// POLineItem is created in bulk by stage 2 and is read-only afterwards;
// stage 3+ reference rows by id. Invariant I-3 (totals tolerance) is
// checked against PurchaseOrder.TotalAmount in
// internal/data/repos/persistence, logged on mismatch and never fatal —
// see stages.TotalsToleranceFactor.
type POLineItem struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PurchaseOrderID uuid.UUID      `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	SKU             string         `gorm:"column:sku" json:"sku,omitempty"`
	ProductName     string         `gorm:"column:product_name;not null" json:"product_name"`
	Description     string         `gorm:"column:description" json:"description,omitempty"`
	Quantity        int            `gorm:"column:quantity;not null;default:1" json:"quantity"`
	UnitCost        float64        `gorm:"column:unit_cost" json:"unit_cost"`
	TotalCost       float64        `gorm:"column:total_cost" json:"total_cost"`
	Confidence      float64        `gorm:"column:confidence" json:"confidence"`
	RawLineJSON     datatypes.JSON `gorm:"column:raw_line_json;type:jsonb" json:"raw_line_json,omitempty"`
}

func (POLineItem) TableName() string { return "po_line_item" }
