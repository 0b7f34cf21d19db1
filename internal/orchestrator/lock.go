package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// poLock is the PO advisory lock of spec.md §4.7/§9: a broker-held JSON
// value, never a database row lock, reclaimed by comparing AcquiredAt
// against domain.PurchaseOrderLockStaleAfter rather than relying on a
// bare Redis TTL — so a reclaim is observable (logged) before the old
// key would otherwise expire on its own.
type poLock struct {
	log *logger.Logger
	rdb *redis.Client
}

func newPOLock(log *logger.Logger, rdb *redis.Client) *poLock {
	return &poLock{log: log.With("component", "PurchaseOrderLock"), rdb: rdb}
}

func lockKey(purchaseOrderID string) string { return "polock:" + purchaseOrderID }

// Acquire claims the lock for workflowID, reclaiming a stale lock held
// by a different workflow. Returns ok=false when another workflow holds
// a fresh lock.
func (l *poLock) Acquire(ctx context.Context, purchaseOrderID, workflowID string) (bool, error) {
	key := lockKey(purchaseOrderID)
	value := domain.PurchaseOrderLock{PurchaseOrderID: purchaseOrderID, WorkflowID: workflowID, AcquiredAt: time.Now()}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal po lock: %w", err)
	}

	ok, err := l.rdb.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("acquire po lock: %w", err)
	}
	if ok {
		return true, nil
	}

	existingRaw, err := l.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Lock vanished between SetNX and Get; safe to claim.
			return l.rdb.SetNX(ctx, key, raw, 0).Result()
		}
		return false, fmt.Errorf("read po lock: %w", err)
	}

	var existing domain.PurchaseOrderLock
	if err := json.Unmarshal(existingRaw, &existing); err != nil {
		// Corrupt value; reclaim rather than deadlock on it forever.
		return l.reclaim(ctx, key, raw, workflowID, "corrupt lock value")
	}
	if existing.WorkflowID == workflowID {
		return true, nil
	}
	if time.Since(existing.AcquiredAt) > domain.PurchaseOrderLockStaleAfter {
		return l.reclaim(ctx, key, raw, workflowID, "stale lock")
	}
	return false, nil
}

func (l *poLock) reclaim(ctx context.Context, key string, raw []byte, workflowID, reason string) (bool, error) {
	if err := l.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return false, fmt.Errorf("reclaim po lock: %w", err)
	}
	l.log.Warn("reclaimed purchase order lock", "reason", reason, "workflow_id", workflowID)
	return true, nil
}

// Release drops the lock only if workflowID still holds it, so a
// workflow that already lost the lock to a reclaim never deletes the
// new holder's key.
func (l *poLock) Release(ctx context.Context, purchaseOrderID, workflowID string) {
	key := lockKey(purchaseOrderID)
	raw, err := l.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return
	}
	var existing domain.PurchaseOrderLock
	if err := json.Unmarshal(raw, &existing); err != nil {
		return
	}
	if existing.WorkflowID != workflowID {
		return
	}
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		l.log.Warn("failed to release purchase order lock", "purchase_order_id", purchaseOrderID, "error", err)
	}
}
