package domain

import "github.com/google/uuid"

// ProductImage is an image candidate attached to a ProductDraft by stage
// 8. Per-query search failures are tolerated upstream; an empty image set
// on a draft is an acceptable terminal state, not an error.
type ProductImage struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DraftID      uuid.UUID `gorm:"type:uuid;not null;index" json:"draft_id"`
	URL          string    `gorm:"column:url;not null" json:"url"`
	SourceDomain string    `gorm:"column:source_domain" json:"source_domain,omitempty"`
	Confidence   float64   `gorm:"column:confidence" json:"confidence"`
	Position     int       `gorm:"column:position;not null;default:0" json:"position"`
}

func (ProductImage) TableName() string { return "product_image" }
