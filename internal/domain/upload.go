package domain

import (
	"time"

	"github.com/google/uuid"
)

// Upload is a document record submitted for ingestion. ContentRef points
// at the bytes (a storage bucket key); the bytes themselves are fetched
// on demand by stage 1 through the upload repo (stages.UploadFetcher),
// never held in memory between stages.
type Upload struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MerchantID   uuid.UUID `gorm:"type:uuid;not null;index" json:"merchant_id"`
	OriginalName string    `gorm:"column:original_name;not null" json:"original_name"`
	ContentRef   string    `gorm:"column:content_ref;not null" json:"content_ref"`
	CreatedAt    time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Upload) TableName() string { return "upload" }
