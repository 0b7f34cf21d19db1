package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStageExecution is the per-stage audit trail: one row written on
// stage entry (status=running) and updated on exit (completed/failed).
type WorkflowStageExecution struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkflowID   string     `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	StageName    StageName  `gorm:"column:stage_name;not null;index" json:"stage_name"`
	Status       string     `gorm:"column:status;not null" json:"status"`
	Progress     int        `gorm:"column:progress;not null;default:0" json:"progress"`
	StartedAt    time.Time  `gorm:"column:started_at;not null;default:now()" json:"started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ErrorMessage string     `gorm:"column:error_message" json:"error_message,omitempty"`
}

func (WorkflowStageExecution) TableName() string { return "workflow_stage_execution" }
