// Package orchestrator is the Workflow Orchestrator (spec.md §4.7): a
// direct generalization of the teacher's jobs/orchestrator.DAGEngine,
// retargeted from an arbitrary dependency DAG onto the fixed ten-stage
// linear pipeline domain.StageOrder enumerates. It keeps the teacher's
// load/mutate/persist snapshot discipline (here: WorkflowExecution +
// StageStore instead of one job_run.result blob), its inline-vs-child
// stage modes (here: sequential-vs-queued execution), and its jittered
// exponential backoff math (computeBackoff in engine.go), while adding
// what spec.md §4.7 requires beyond the teacher's original: dedup-by-
// (uploadId, merchantId), the broker-backed PO advisory lock, and the
// 270s sequential budget that defers to queued mode at a stage boundary.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/workflow"
	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/observability"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/progress"
	"github.com/northboundcommerce/po-ingest-engine/internal/queue"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
)

// SequentialBudget is the 270s wall-clock window a sequential-mode
// workflow gets before the orchestrator defers the remainder to queued
// mode at the next stage boundary (spec.md §4.7).
const SequentialBudget = 270 * time.Second

// MaxStageRetries is the retry ceiling per stage before a workflow is
// marked failed (spec.md §4.7: retryCount < 2, i.e. up to 2 retries).
const MaxStageRetries = 2

// stagePayload is the queue job envelope every named queue carries.
type stagePayload struct {
	WorkflowID string `json:"workflow_id"`
}

// Engine drives workflows stage by stage, in either execution mode,
// persisting every transition through WorkflowExecution/StageStore so
// it can resume a crashed process with no in-memory state (spec.md §5).
type Engine struct {
	log      *logger.Logger
	workflow *workflow.Repo
	deps     stages.Deps
	q        *queue.Substrate
	bus      *progress.Bus
	lock     *poLock
}

func New(log *logger.Logger, wfRepo *workflow.Repo, deps stages.Deps, q *queue.Substrate, bus *progress.Bus) *Engine {
	return &Engine{
		log:      log.With("component", "Orchestrator"),
		workflow: wfRepo,
		deps:     deps,
		q:        q,
		bus:      bus,
		lock:     newPOLock(log, q.CommandClient()),
	}
}

// RegisterHandlers installs one queue handler per stage queue, each of
// which simply resumes RunStage for the job's workflow.
func (e *Engine) RegisterHandlers() error {
	for _, stage := range domain.StageOrder {
		stage := stage
		err := e.q.Register(string(stage), queue.HandlerFunc(func(ctx context.Context, job *queue.Job) error {
			var payload stagePayload
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("decode stage job payload: %w", err)
			}
			return e.RunStage(ctx, payload.WorkflowID, stage)
		}))
		if err != nil {
			return fmt.Errorf("register handler for stage %s: %w", stage, err)
		}
	}
	return nil
}

// StartWorkflow implements spec.md §4.7's startWorkflow: dedup within a
// 60s window on (uploadId, merchantId), then creates the workflow and
// kicks off stage one in the requested execution mode.
func (e *Engine) StartWorkflow(ctx context.Context, uploadID, merchantID string, mode domain.ExecutionMode) (string, error) {
	if existing, ok, err := e.workflow.FindRecentInFlight(ctx, uploadID, merchantID); err != nil {
		return "", err
	} else if ok {
		e.log.Info("deduped workflow start", "workflow_id", existing.WorkflowID, "upload_id", uploadID)
		return existing.WorkflowID, nil
	}

	merchantUUID, err := uuid.Parse(merchantID)
	if err != nil {
		return "", fmt.Errorf("parse merchant id: %w", err)
	}
	var uploadUUID *uuid.UUID
	if uploadID != "" {
		id, err := uuid.Parse(uploadID)
		if err != nil {
			return "", fmt.Errorf("parse upload id: %w", err)
		}
		uploadUUID = &id
	}

	we, err := e.workflow.Create(ctx, domain.WorkflowExecution{
		MerchantID:   merchantUUID,
		UploadID:     uploadUUID,
		CurrentStage: domain.StageOrder[0],
	})
	if err != nil {
		return "", err
	}
	if err := e.workflow.SetExecutionMode(ctx, we.WorkflowID, mode); err != nil {
		return "", err
	}

	if mode == domain.ExecutionModeSequential {
		go e.runSequential(context.WithoutCancel(ctx), we.WorkflowID)
		return we.WorkflowID, nil
	}

	if _, err := e.q.Enqueue(ctx, string(domain.StageOrder[0]), stagePayload{WorkflowID: we.WorkflowID}, 0); err != nil {
		return "", fmt.Errorf("enqueue first stage: %w", err)
	}
	return we.WorkflowID, nil
}

// runSequential drives a workflow inline, stage after stage, until it
// reaches a terminal state or SequentialBudget is exhausted, at which
// point it hands the remainder to the queued path (spec.md §4.7).
func (e *Engine) runSequential(ctx context.Context, workflowID string) {
	deadline := time.Now().Add(SequentialBudget)
	for {
		we, err := e.workflow.Get(ctx, workflowID)
		if err != nil {
			e.log.Error("sequential run: failed to load workflow", "workflow_id", workflowID, "error", err)
			return
		}
		if we.Status == domain.WorkflowStatusCompleted || we.Status == domain.WorkflowStatusFailed {
			return
		}
		if time.Now().After(deadline) {
			e.log.Info("sequential budget exhausted, deferring to queued mode", "workflow_id", workflowID, "stage", we.CurrentStage)
			if err := e.workflow.SetExecutionMode(ctx, workflowID, domain.ExecutionModeQueued); err != nil {
				e.log.Error("failed to switch to queued mode", "workflow_id", workflowID, "error", err)
				return
			}
			if _, err := e.q.Enqueue(ctx, string(we.CurrentStage), stagePayload{WorkflowID: workflowID}, 0); err != nil {
				e.log.Error("failed to enqueue deferred stage", "workflow_id", workflowID, "error", err)
			}
			return
		}
		if err := e.RunStage(ctx, workflowID, we.CurrentStage); err != nil {
			// RunStage has already recorded the retry/failure outcome;
			// the sequential loop does not re-attempt itself.
			return
		}
	}
}

// RunStage executes exactly one stage: acquires the PO advisory lock
// (once a PurchaseOrderID exists), runs the stage processor, persists
// its output to the StageStore, advances (or completes) the workflow,
// and publishes a progress event.
func (e *Engine) RunStage(ctx context.Context, workflowID string, stage domain.StageName) error {
	ctx, span := observability.StartSpan(ctx, "orchestrator.stage",
		attribute.String("workflow_id", workflowID), attribute.String("stage", string(stage)))
	defer span.End()

	we, err := e.workflow.Get(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if we.PurchaseOrderID != nil {
		poID := we.PurchaseOrderID.String()
		acquired, err := e.lock.Acquire(ctx, poID, workflowID)
		if err != nil {
			return err
		}
		if !acquired {
			return e.handleStageError(ctx, we, stage, uuid.Nil,
				apierr.New(apierr.KindTransient, "po_locked", errors.New("purchase order locked by another workflow")))
		}
		defer e.lock.Release(ctx, poID, workflowID)
	}

	auditID, err := e.workflow.StartStageExecution(ctx, workflowID, stage)
	if err != nil {
		return err
	}

	purchaseOrderID, err := e.dispatch(ctx, workflowID, we, stage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return e.handleStageError(ctx, we, stage, auditID, err)
	}

	progressPct := progressForStage(stage)
	_ = e.workflow.FinishStageExecution(ctx, auditID, "completed", progressPct, "")

	next, hasNext := domain.NextStage(stage)
	if !hasNext {
		if err := e.workflow.MarkCompleted(ctx, workflowID); err != nil {
			return err
		}
		e.publish(ctx, we.MerchantID.String(), progress.Event{
			Topic: progress.TopicCompletion, WorkflowID: workflowID, Stage: string(stage),
			Percent: 100, Message: "workflow completed",
		})
		return nil
	}

	if err := e.workflow.AdvanceStage(ctx, workflowID, next, progressPct, purchaseOrderID); err != nil {
		return err
	}
	e.publish(ctx, we.MerchantID.String(), progress.Event{
		Topic: progress.TopicStage, WorkflowID: workflowID, Stage: string(next), Percent: progressPct,
		Message: fmt.Sprintf("stage %s complete", stage),
	})

	if we.MetadataExecutionMode() == domain.ExecutionModeQueued {
		if _, err := e.q.Enqueue(ctx, string(next), stagePayload{WorkflowID: workflowID}, 0); err != nil {
			return fmt.Errorf("enqueue next stage %s: %w", next, err)
		}
	}
	return nil
}

// dispatch runs the single stage processor named by stage, reading its
// typed input off the prior stage's StageStore entry (or, for stage
// one, off the workflow itself) and writing its typed output back
// under this stage's name. It returns the purchase order id once known
// (stage 2 onward), or "" when it hasn't changed.
func (e *Engine) dispatch(ctx context.Context, workflowID string, we domain.WorkflowExecution, stage domain.StageName) (string, error) {
	switch stage {
	case domain.StageAIParsing:
		uploadID := ""
		if we.UploadID != nil {
			uploadID = we.UploadID.String()
		}
		out, err := stages.AIParsing(ctx, e.deps, stages.AIParsingInput{
			UploadID: uploadID, MerchantID: we.MerchantID.String(),
		})
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageDatabaseSave:
		var in stages.AIParsingOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageAIParsing, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageAIParsing)
		}
		existingPOID := ""
		if we.PurchaseOrderID != nil {
			existingPOID = we.PurchaseOrderID.String()
		}
		out, err := stages.DatabaseSave(ctx, e.deps, workflowID, existingPOID, in)
		if err != nil {
			return "", err
		}
		if err := e.workflow.PutStageStore(ctx, workflowID, stage, out); err != nil {
			return "", err
		}
		return out.PurchaseOrderID, nil

	case domain.StageDataNormalization:
		var in stages.DatabaseSaveOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageDatabaseSave, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageDatabaseSave)
		}
		out, err := stages.DataNormalization(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageMerchantConfig:
		var in stages.LineItemsStageOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageDataNormalization, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageDataNormalization)
		}
		out, err := stages.MerchantConfig(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageAIEnrichment:
		var in stages.LineItemsStageOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageMerchantConfig, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageMerchantConfig)
		}
		out, err := stages.AIEnrichment(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageShopifyPayload:
		var in stages.LineItemsStageOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageAIEnrichment, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageAIEnrichment)
		}
		out, err := stages.ShopifyPayload(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageProductDraftCreation:
		var in stages.LineItemsStageOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageShopifyPayload, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageShopifyPayload)
		}
		out, err := stages.ProductDraftCreation(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageImageAttachment:
		var in stages.ProductDraftCreationOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageProductDraftCreation, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageProductDraftCreation)
		}
		out, err := stages.ImageAttachment(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageShopifySync:
		var in stages.ImageAttachmentOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageImageAttachment, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageImageAttachment)
		}
		out, err := stages.ShopifySync(ctx, e.deps, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	case domain.StageStatusUpdate:
		var in stages.ShopifySyncOutput
		if ok, err := e.workflow.GetStageStore(ctx, workflowID, domain.StageShopifySync, &in); err != nil || !ok {
			return "", missingPriorStage(err, domain.StageShopifySync)
		}
		out, err := stages.StatusUpdate(ctx, e.deps, workflowID, in)
		if err != nil {
			return "", err
		}
		return "", e.workflow.PutStageStore(ctx, workflowID, stage, out)

	default:
		return "", apierr.New(apierr.KindFatal, "unknown_stage", fmt.Errorf("unknown stage %q", stage))
	}
}

func missingPriorStage(err error, prior domain.StageName) error {
	if err != nil {
		return err
	}
	return apierr.New(apierr.KindFatal, "missing_prior_stage_data",
		fmt.Errorf("no stage store entry for %s", prior))
}

// handleStageError classifies the failure and either schedules a
// jittered-backoff retry on the stage's named queue (switching the
// workflow to queued mode, since a sequential run that just failed has
// already spent part of its budget) or marks the workflow permanently
// failed once retries are exhausted or the error is non-retryable.
//
// The retry decision and the backoff delay are both computed from
// we.RetryCountFor(stage) — the count of failures already recorded
// *before* this one, i.e. the retryCount §4.7's delayMs=5000·2^retryCount
// is defined against — and the stored counter is only incremented once
// that decision lands on "retry", so it never advances past
// MaxStageRetries (§8's retryCount<=2 terminal invariant).
func (e *Engine) handleStageError(ctx context.Context, we domain.WorkflowExecution, stage domain.StageName, auditID uuid.UUID, stageErr error) error {
	kind := apierr.KindOf(stageErr)
	e.log.Warn("stage failed", "workflow_id", we.WorkflowID, "stage", stage, "kind", kind, "error", stageErr)

	if auditID != uuid.Nil {
		_ = e.workflow.FinishStageExecution(ctx, auditID, "failed", we.ProgressPercent, stageErr.Error())
	}

	retryable := kind == apierr.KindTransient || kind == apierr.KindConflict
	if retryable {
		attempt := we.RetryCountFor(stage)
		if attempt < MaxStageRetries {
			delay := computeBackoff(attempt)
			if _, err := e.workflow.IncrementRetry(ctx, we.WorkflowID, stage); err != nil {
				e.log.Error("failed to record retry attempt", "workflow_id", we.WorkflowID, "stage", stage, "error", err)
			}
			_ = e.workflow.SetExecutionMode(ctx, we.WorkflowID, domain.ExecutionModeQueued)
			if _, enqErr := e.q.Enqueue(ctx, string(stage), stagePayload{WorkflowID: we.WorkflowID}, delay); enqErr != nil {
				e.log.Error("failed to enqueue stage retry", "workflow_id", we.WorkflowID, "stage", stage, "error", enqErr)
			}
			e.publish(ctx, we.MerchantID.String(), progress.Event{
				Topic: progress.TopicError, WorkflowID: we.WorkflowID, Stage: string(stage),
				Message: "retrying after transient failure", Error: stageErr.Error(),
			})
			return stageErr
		}
	}

	if err := e.workflow.MarkFailed(ctx, we.WorkflowID); err != nil {
		e.log.Error("failed to mark workflow failed", "workflow_id", we.WorkflowID, "error", err)
	}
	e.publish(ctx, we.MerchantID.String(), progress.Event{
		Topic: progress.TopicError, WorkflowID: we.WorkflowID, Stage: string(stage),
		Message: "workflow failed", Error: stageErr.Error(),
	})
	return stageErr
}

// computeBackoff implements spec.md §4.7's retry delay: delayMs =
// 5000·2^retryCount (retryCount read before increment), jittered +/-20%
// the same way the teacher's jobs/orchestrator/engine.go computeBackoff
// jitters its own exponential curve. attempt=0 on the first failure
// gives 5s; attempt=1 on the second gives 10s, matching §5's "(5, 10s)".
func computeBackoff(attempt int) time.Duration {
	base := 5000 * math.Pow(2, float64(attempt))
	jitter := base * 0.20
	low := base - jitter
	high := base + jitter
	return time.Duration(low+rand.Float64()*(high-low)) * time.Millisecond
}

func progressForStage(stage domain.StageName) int {
	for i, s := range domain.StageOrder {
		if s == stage {
			return (i + 1) * 100 / len(domain.StageOrder)
		}
	}
	return 0
}

func (e *Engine) publish(ctx context.Context, merchantID string, ev progress.Event) {
	ev.MerchantID = merchantID
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.log.Warn("failed to publish progress event", "error", err)
	}
}
