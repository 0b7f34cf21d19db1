package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusProcessing WorkflowStatus = "processing"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
)

type ExecutionMode string

const (
	ExecutionModeQueued     ExecutionMode = "queued"
	ExecutionModeSequential ExecutionMode = "sequential"
)

// StageName enumerates the ten-stage fixed linear pipeline (spec.md §4.6).
type StageName string

const (
	StageAIParsing             StageName = "ai_parsing"
	StageDatabaseSave          StageName = "database_save"
	StageDataNormalization     StageName = "data_normalization"
	StageMerchantConfig        StageName = "merchant_config"
	StageAIEnrichment          StageName = "ai_enrichment"
	StageShopifyPayload        StageName = "shopify_payload"
	StageProductDraftCreation  StageName = "product_draft_creation"
	StageImageAttachment       StageName = "image_attachment"
	StageShopifySync           StageName = "shopify_sync"
	StageStatusUpdate          StageName = "status_update"
)

// StageOrder is the fixed linear order the orchestrator walks; it is
// never a dependency graph (contrast with the teacher's DAG engine).
var StageOrder = []StageName{
	StageAIParsing,
	StageDatabaseSave,
	StageDataNormalization,
	StageMerchantConfig,
	StageAIEnrichment,
	StageShopifyPayload,
	StageProductDraftCreation,
	StageImageAttachment,
	StageShopifySync,
	StageStatusUpdate,
}

// NextStage returns the stage following cur, and ok=false if cur is the
// last stage or unrecognized.
func NextStage(cur StageName) (StageName, bool) {
	for i, s := range StageOrder {
		if s == cur {
			if i+1 < len(StageOrder) {
				return StageOrder[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// WorkflowExecution is the unit of orchestration. Invariant I-6: exactly
// one in-flight workflow per (UploadID, MerchantID) within any 60s window
// — enforced by Orchestrator.StartWorkflow's dedup query, not here.
type WorkflowExecution struct {
	WorkflowID      string            `gorm:"column:workflow_id;primaryKey" json:"workflow_id"`
	MerchantID      uuid.UUID         `gorm:"type:uuid;not null;index:idx_wf_upload_merchant_created,priority:2" json:"merchant_id"`
	UploadID        *uuid.UUID        `gorm:"type:uuid;column:upload_id;index:idx_wf_upload_merchant_created,priority:1" json:"upload_id,omitempty"`
	PurchaseOrderID *uuid.UUID        `gorm:"type:uuid;column:purchase_order_id;index" json:"purchase_order_id,omitempty"`
	CurrentStage    StageName         `gorm:"column:current_stage;not null" json:"current_stage"`
	Status          WorkflowStatus    `gorm:"column:status;not null;default:pending;index" json:"status"`
	ProgressPercent int               `gorm:"column:progress_percent;not null;default:0" json:"progress_percent"`
	RetryCounts     datatypes.JSONMap `gorm:"column:retry_counts;type:jsonb" json:"retry_counts"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt       time.Time         `gorm:"not null;default:now();index:idx_wf_upload_merchant_created,priority:3" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:now();index" json:"updated_at"`
}

func (WorkflowExecution) TableName() string { return "workflow_execution" }

// MetadataExecutionMode reads Metadata["executionMode"], defaulting to
// queued mode when unset (the conservative default per spec.md §4.7).
func (w *WorkflowExecution) MetadataExecutionMode() ExecutionMode {
	if w == nil || w.Metadata == nil {
		return ExecutionModeQueued
	}
	v, _ := w.Metadata["executionMode"].(string)
	if v == string(ExecutionModeSequential) {
		return ExecutionModeSequential
	}
	return ExecutionModeQueued
}

// RetryCountFor reads the retry count for a stage, defaulting to 0.
func (w *WorkflowExecution) RetryCountFor(stage StageName) int {
	if w == nil || w.RetryCounts == nil {
		return 0
	}
	v, ok := w.RetryCounts[string(stage)]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}
