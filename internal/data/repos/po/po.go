// Package po is the Persistence Service (spec.md §4.5): the single
// bounded-time transaction that upserts a PurchaseOrder header,
// bulk-inserts its line items, and writes an audit row — plus the
// PO-number conflict-resolution dance that must run OUTSIDE any aborted
// transaction. Grounded on the teacher's internal/data/repos/jobs
// repo shape (dbctx.Context threading, gorm.Transaction wrapping) and
// internal/data/db/postgres.go's raw-error-code handling idiom,
// generalized to Postgres unique-violation (23505) and
// in-failed-transaction (25P02) codes.
package po

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
)

const (
	pgUniqueViolation    = "23505"
	pgInFailedTransaction = "25P02"
)

// UpsertResult carries back the ids the orchestrator needs to continue
// to stage 3 (spec.md §4.5 step 4).
type UpsertResult struct {
	PurchaseOrderID uuid.UUID
	LineItemIDs     []uuid.UUID
	Number          string
}

// Repo is the PO persistence boundary.
type Repo struct {
	gw *pgw.Gateway
}

// New constructs a Repo bound to the shared Persistence Gateway.
func New(gw *pgw.Gateway) *Repo {
	return &Repo{gw: gw}
}

// UpsertWithLineItems runs the bounded-time transaction of spec.md §4.5:
// upsert header, bulk-insert line items in one batch, write the audit
// row. On a (merchantId, number) unique-violation it resolves the
// conflict OUTSIDE the aborted transaction per the two documented
// strategies, then retries once with a fresh transaction.
func (r *Repo) UpsertWithLineItems(
	ctx context.Context,
	existingID *uuid.UUID,
	merchantID uuid.UUID,
	number string,
	header domain.PurchaseOrder,
	lineItems []domain.POLineItem,
	workflowID string,
	confidence float64,
	rawData []byte,
) (*UpsertResult, error) {
	result, err := r.attempt(ctx, existingID, merchantID, number, header, lineItems, workflowID, confidence, rawData)
	if err == nil {
		return result, nil
	}

	resolvedNumber, resolveErr := r.resolveConflict(ctx, existingID, merchantID, number, err)
	if resolveErr != nil {
		return nil, resolveErr
	}

	return r.attempt(ctx, existingID, merchantID, resolvedNumber, header, lineItems, workflowID, confidence, rawData)
}

// attempt is the single bounded-time transaction body. It never retries
// internally — the 15s hard cap belongs to one transaction, not a loop
// of them.
func (r *Repo) attempt(
	ctx context.Context,
	existingID *uuid.UUID,
	merchantID uuid.UUID,
	number string,
	header domain.PurchaseOrder,
	lineItems []domain.POLineItem,
	workflowID string,
	confidence float64,
	rawData []byte,
) (*UpsertResult, error) {
	txCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var result UpsertResult

	err := r.gw.WithRetry(txCtx, true, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			header.MerchantID = merchantID
			header.Number = number
			if existingID != nil {
				header.ID = *existingID
				if err := tx.Model(&domain.PurchaseOrder{}).Where("id = ?", *existingID).
					Updates(map[string]any{
						"number":       number,
						"status":       header.Status,
						"supplier_id":  header.SupplierID,
						"total_amount": header.TotalAmount,
						"currency":     header.Currency,
						"confidence":   header.Confidence,
						"raw_data":     header.RawData,
					}).Error; err != nil {
					return err
				}
			} else {
				if err := tx.Create(&header).Error; err != nil {
					return err
				}
			}

			for i := range lineItems {
				lineItems[i].PurchaseOrderID = header.ID
			}
			if len(lineItems) > 0 {
				if err := tx.CreateInBatches(lineItems, 500).Error; err != nil {
					return err
				}
			}

			audit := domain.AIProcessingAudit{
				ID:              uuid.NewString(),
				PurchaseOrderID: header.ID.String(),
				WorkflowID:      workflowID,
				Confidence:      confidence,
				RawData:         datatypes.JSON(rawData),
			}
			if err := tx.Create(&audit).Error; err != nil {
				return err
			}

			result.PurchaseOrderID = header.ID
			result.Number = number
			result.LineItemIDs = make([]uuid.UUID, len(lineItems))
			for i, li := range lineItems {
				result.LineItemIDs[i] = li.ID
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// resolveConflict implements the two PO-number conflict strategies.
// It must run entirely outside the aborted transaction: a connection
// left in-failed-transaction state (25P02) rejects every further
// command until rollback, so calling this from inside attempt's
// transaction closure would be the documented anti-pattern.
func (r *Repo) resolveConflict(ctx context.Context, existingID *uuid.UUID, merchantID uuid.UUID, number string, cause error) (string, error) {
	if !isUniqueViolation(cause) {
		return "", cause
	}

	if existingID != nil {
		return r.resolveUpdateConflict(ctx, *existingID)
	}
	return r.resolveCreateConflict(ctx, merchantID, number)
}

// resolveUpdateConflict: P.number = X collided with another PO Q. The
// retained number is P's CURRENT number, fetched fresh — never the
// attempted X. The caller must write this back into the extracted-data
// blob (never delete the field; see the second anti-pattern) so the
// retry is idempotent.
func (r *Repo) resolveUpdateConflict(ctx context.Context, existingID uuid.UUID) (string, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return "", err
	}
	var current domain.PurchaseOrder
	if err := db.WithContext(ctx).Select("number").First(&current, "id = ?", existingID).Error; err != nil {
		return "", fmt.Errorf("fetch retained PO number after update conflict: %w", err)
	}
	return current.Number, nil
}

// resolveCreateConflict probes X-1 .. X-10 for an available suffix, then
// falls back to X-{epoch_ms}.
func (r *Repo) resolveCreateConflict(ctx context.Context, merchantID uuid.UUID, number string) (string, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return "", err
	}
	for i := 1; i <= 10; i++ {
		candidate := fmt.Sprintf("%s-%d", number, i)
		var count int64
		if err := db.WithContext(ctx).Model(&domain.PurchaseOrder{}).
			Where("merchant_id = ? AND number = ?", merchantID, candidate).
			Count(&count).Error; err != nil {
			return "", fmt.Errorf("probe candidate PO number: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%d", number, time.Now().UnixMilli()), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// IsInFailedTransaction reports whether err is Postgres's 25P02 — the
// signal that the connection must be rolled back before issuing any
// further command, the guard the conflict-resolution path above relies
// on never tripping (it runs after the transaction has already returned
// control to the caller, not inside it).
func IsInFailedTransaction(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgInFailedTransaction
	}
	return false
}
