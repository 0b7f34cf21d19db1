// Package workflow is the WorkflowExecution persistence boundary: the
// orchestrator's dedup-by-(uploadId, merchantId) lookup, stage-advance
// writer, the per-stage audit trail (WorkflowStageExecution), the
// StageStore blob accumulator, and the stalled/pending scan the cron
// driver reconciles against. Grounded on the teacher's
// data/repos/jobs/job_run.go repo shape (dbctx-free here since this
// package only ever runs outside a caller-supplied transaction) and
// jobs/orchestrator/state.go's load/mutate/persist snapshot discipline,
// retargeted from one job_run.result blob onto the fixed linear
// WorkflowExecution + StageStore rows spec.md §4.7 specifies.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
)

// DedupWindow is invariant I-6's 60s in-flight window (spec.md §4.7).
const DedupWindow = 60 * time.Second

// Repo is the workflow-execution persistence boundary.
type Repo struct {
	gw *pgw.Gateway
}

func New(gw *pgw.Gateway) *Repo {
	return &Repo{gw: gw}
}

// FindRecentInFlight enforces invariant I-6: at most one in-flight
// (pending or processing) workflow per (uploadID, merchantID) within
// DedupWindow. Returns ok=false when no such row exists.
func (r *Repo) FindRecentInFlight(ctx context.Context, uploadID, merchantID string) (domain.WorkflowExecution, bool, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return domain.WorkflowExecution{}, false, err
	}

	var row domain.WorkflowExecution
	err = db.WithContext(ctx).
		Where("upload_id = ? AND merchant_id = ? AND status IN ? AND created_at > ?",
			uploadID, merchantID,
			[]domain.WorkflowStatus{domain.WorkflowStatusPending, domain.WorkflowStatusProcessing},
			time.Now().Add(-DedupWindow)).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WorkflowExecution{}, false, nil
	}
	if err != nil {
		return domain.WorkflowExecution{}, false, fmt.Errorf("find recent in-flight workflow: %w", err)
	}
	return row, true, nil
}

// Create inserts a new WorkflowExecution at the first stage, pending.
func (r *Repo) Create(ctx context.Context, we domain.WorkflowExecution) (domain.WorkflowExecution, error) {
	if we.WorkflowID == "" {
		we.WorkflowID = uuid.NewString()
	}
	if we.CurrentStage == "" {
		we.CurrentStage = domain.StageOrder[0]
	}
	if we.Status == "" {
		we.Status = domain.WorkflowStatusPending
	}
	if we.RetryCounts == nil {
		we.RetryCounts = datatypes.JSONMap{}
	}
	if we.Metadata == nil {
		we.Metadata = datatypes.JSONMap{}
	}

	err := r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Create(&we).Error
	})
	if err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("create workflow execution: %w", err)
	}
	return we, nil
}

// Get fetches a workflow by id.
func (r *Repo) Get(ctx context.Context, workflowID string) (domain.WorkflowExecution, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return domain.WorkflowExecution{}, err
	}
	var row domain.WorkflowExecution
	if err := db.WithContext(ctx).First(&row, "workflow_id = ?", workflowID).Error; err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("get workflow execution: %w", err)
	}
	return row, nil
}

// AdvanceStage moves the workflow onto the next stage, updating
// progress and linking the purchase order id once known (stage 2
// onward).
func (r *Repo) AdvanceStage(ctx context.Context, workflowID string, stage domain.StageName, progressPercent int, purchaseOrderID string) error {
	updates := map[string]any{
		"current_stage":    stage,
		"status":           domain.WorkflowStatusProcessing,
		"progress_percent": progressPercent,
		"updated_at":       time.Now(),
	}
	if purchaseOrderID != "" {
		updates["purchase_order_id"] = purchaseOrderID
	}
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.WorkflowExecution{}).Where("workflow_id = ?", workflowID).Updates(updates).Error
	})
}

// IncrementRetry bumps RetryCounts[stage] by one and returns the new
// count, used by the orchestrator's retry/backoff loop.
func (r *Repo) IncrementRetry(ctx context.Context, workflowID string, stage domain.StageName) (int, error) {
	var next int
	err := r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		var row domain.WorkflowExecution
		if err := db.WithContext(ctx).First(&row, "workflow_id = ?", workflowID).Error; err != nil {
			return err
		}
		next = row.RetryCountFor(stage) + 1
		if row.RetryCounts == nil {
			row.RetryCounts = datatypes.JSONMap{}
		}
		row.RetryCounts[string(stage)] = next
		return db.WithContext(ctx).Model(&domain.WorkflowExecution{}).Where("workflow_id = ?", workflowID).
			Update("retry_counts", row.RetryCounts).Error
	})
	if err != nil {
		return 0, fmt.Errorf("increment retry count: %w", err)
	}
	return next, nil
}

// MarkCompleted terminates the workflow successfully at 100%.
func (r *Repo) MarkCompleted(ctx context.Context, workflowID string) error {
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.WorkflowExecution{}).Where("workflow_id = ?", workflowID).
			Updates(map[string]any{
				"status":           domain.WorkflowStatusCompleted,
				"progress_percent": 100,
				"updated_at":       time.Now(),
			}).Error
	})
}

// MarkFailed terminates the workflow after retry exhaustion.
func (r *Repo) MarkFailed(ctx context.Context, workflowID string) error {
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.WorkflowExecution{}).Where("workflow_id = ?", workflowID).
			Updates(map[string]any{
				"status":     domain.WorkflowStatusFailed,
				"updated_at": time.Now(),
			}).Error
	})
}

// SetExecutionMode stamps Metadata["executionMode"] at StartWorkflow
// time, read back by WorkflowExecution.MetadataExecutionMode.
func (r *Repo) SetExecutionMode(ctx context.Context, workflowID string, mode domain.ExecutionMode) error {
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.WorkflowExecution{}).Where("workflow_id = ?", workflowID).
			Update("metadata", datatypes.JSONMap{"executionMode": string(mode)}).Error
	})
}

// PendingOrStalled returns workflows the cron driver should reconcile:
// anything still `processing` that hasn't advanced in longer than
// staleAfter, plus anything still `pending` (never picked up by a
// worker), capped at limit rows.
func (r *Repo) PendingOrStalled(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.WorkflowExecution, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return nil, err
	}
	var rows []domain.WorkflowExecution
	err = db.WithContext(ctx).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			domain.WorkflowStatusPending, domain.WorkflowStatusProcessing, time.Now().Add(-staleAfter)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending/stalled workflows: %w", err)
	}
	return rows, nil
}

// -------------------- stage execution audit rows --------------------

// StartStageExecution writes the entry audit row for one stage attempt.
func (r *Repo) StartStageExecution(ctx context.Context, workflowID string, stage domain.StageName) (uuid.UUID, error) {
	row := domain.WorkflowStageExecution{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		StageName:  stage,
		Status:     "running",
		StartedAt:  time.Now(),
	}
	err := r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Create(&row).Error
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("start stage execution: %w", err)
	}
	return row.ID, nil
}

// FinishStageExecution closes out the audit row started by
// StartStageExecution.
func (r *Repo) FinishStageExecution(ctx context.Context, id uuid.UUID, status string, progress int, errMsg string) error {
	now := time.Now()
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.WorkflowStageExecution{}).Where("id = ?", id).
			Updates(map[string]any{
				"status":        status,
				"progress":      progress,
				"completed_at":  &now,
				"error_message": errMsg,
			}).Error
	})
}

// -------------------- stage store --------------------

// PutStageStore marshals v into the (workflowID, stage) blob, creating
// or replacing the row.
func (r *Repo) PutStageStore(ctx context.Context, workflowID string, stage domain.StageName, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal stage store blob: %w", err)
	}
	row := domain.StageStore{WorkflowID: workflowID, StageName: stage, Blob: datatypes.JSON(b)}
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Save(&row).Error
	})
}

// GetStageStore unmarshals the (workflowID, stage) blob into out.
// Returns ok=false when no row exists yet (e.g. workflow resuming
// before that stage ever ran).
func (r *Repo) GetStageStore(ctx context.Context, workflowID string, stage domain.StageName, out any) (bool, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return false, err
	}
	var row domain.StageStore
	err = db.WithContext(ctx).First(&row, "workflow_id = ? AND stage_name = ?", workflowID, stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get stage store blob: %w", err)
	}
	if err := json.Unmarshal(row.Blob, out); err != nil {
		return false, fmt.Errorf("unmarshal stage store blob: %w", err)
	}
	return true, nil
}

// Clear implements stages.StageStoreCleaner: removes every StageStore
// row for a workflow once it reaches a terminal state (spec.md §4.6
// stage 10).
func (r *Repo) Clear(ctx context.Context, workflowID string) error {
	return r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Where("workflow_id = ?", workflowID).Delete(&domain.StageStore{}).Error
	})
}

// -------------------- PO status writer --------------------

// POStatus implements stages.POStatusWriter: stage 10's terminal write.
type POStatus struct {
	gw *pgw.Gateway
}

func NewPOStatus(gw *pgw.Gateway) *POStatus {
	return &POStatus{gw: gw}
}

// Complete marks a PurchaseOrder completed, unless it is already in a
// terminal state (invariant I-2: a terminal PO is never reopened).
func (s *POStatus) Complete(ctx context.Context, purchaseOrderID string) error {
	db, err := s.gw.Client(ctx)
	if err != nil {
		return err
	}
	var current domain.PurchaseOrder
	if err := db.WithContext(ctx).Select("status").First(&current, "id = ?", purchaseOrderID).Error; err != nil {
		return fmt.Errorf("fetch purchase order status: %w", err)
	}
	if current.Status.Terminal() {
		return nil
	}
	return s.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&domain.PurchaseOrder{}).Where("id = ?", purchaseOrderID).
			Update("status", domain.POStatusCompleted).Error
	})
}
