package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session groups ProductDrafts created during one ingestion run for a
// merchant. Stage 7 (product_draft_creation) creates a temporary Session
// on demand when the merchant has none, rather than failing the stage
// (spec.md §4.6).
type Session struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MerchantID uuid.UUID `gorm:"type:uuid;not null;index" json:"merchant_id"`
	Temporary  bool      `gorm:"column:temporary;not null;default:false" json:"temporary"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Session) TableName() string { return "session" }
