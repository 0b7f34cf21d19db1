package domain

import (
	"time"

	"gorm.io/datatypes"
)

// StageStore is the opaque per-workflow key/value accumulator keyed by
// (WorkflowID, StageName). Blob is the tagged stage-boundary struct from
// internal/stages/types.go, marshaled once at the orchestrator boundary —
// never a bare map[string]any (spec.md §9's tagged-sum-type correction).
type StageStore struct {
	WorkflowID string         `gorm:"column:workflow_id;primaryKey" json:"workflow_id"`
	StageName  StageName      `gorm:"column:stage_name;primaryKey" json:"stage_name"`
	Blob       datatypes.JSON `gorm:"column:blob;type:jsonb" json:"blob"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (StageStore) TableName() string { return "stage_store" }

// AIProcessingAudit is the audit row the Persistence Service writes in
// the same transaction as the PO upsert + line-item bulk insert
// (spec.md §4.5 step 3).
type AIProcessingAudit struct {
	ID              string         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PurchaseOrderID string         `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	WorkflowID      string         `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Confidence      float64        `gorm:"column:confidence" json:"confidence"`
	RawData         datatypes.JSON `gorm:"column:raw_data;type:jsonb" json:"raw_data,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (AIProcessingAudit) TableName() string { return "ai_processing_audit" }
