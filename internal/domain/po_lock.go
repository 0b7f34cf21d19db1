package domain

import "time"

// PurchaseOrderLock is the decoded value of the broker-held advisory
// lock key `polock:{poId}`. It is NEVER a GORM model / DB row — per
// spec.md §9 ("Advisory PO lock is not a database row lock"), the
// orchestrator's lock package stores this as JSON in the queue
// substrate's Redis broker with a TTL-free key it reclaims by comparing
// AcquiredAt against a 30s staleness window itself (see
// internal/orchestrator/lock.go), rather than relying on Redis TTL alone
// so a reclaim can be logged before the old key expires.
type PurchaseOrderLock struct {
	PurchaseOrderID string    `json:"purchase_order_id"`
	WorkflowID      string    `json:"workflow_id"`
	AcquiredAt      time.Time `json:"acquired_at"`
}

// PurchaseOrderLockStaleAfter is the duration after which a held lock is reclaimable by a
// different workflow (spec.md §4.7, invariant I-7).
const PurchaseOrderLockStaleAfter = 30 * time.Second
