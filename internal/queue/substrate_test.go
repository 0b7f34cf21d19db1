package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/broker"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

func newTestSubstrate(t *testing.T) (*Substrate, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log, err := logger.New("test")
	require.NoError(t, err)

	createClient := func(ctx context.Context, role broker.Role) (*redis.Client, error) {
		return redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil
	}

	sub, err := New(context.Background(), log, createClient)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub, mr
}

func TestSubstrate_EnqueueAndStatus(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	ctx := context.Background()

	id, err := sub.Enqueue(ctx, QueueAIParsing, map[string]string{"upload_id": "abc"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, err := sub.Status(ctx, QueueAIParsing)
	require.NoError(t, err)
	require.Equal(t, int64(1), status.Waiting)
	require.Equal(t, int64(0), status.Active)
}

func TestSubstrate_DelayedEnqueueDoesNotAppearInWaiting(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	ctx := context.Background()

	_, err := sub.Enqueue(ctx, QueueImageAttachment, map[string]string{"x": "y"}, time.Hour)
	require.NoError(t, err)

	status, err := sub.Status(ctx, QueueImageAttachment)
	require.NoError(t, err)
	require.Equal(t, int64(0), status.Waiting)
}

func TestSubstrate_RegisterRejectsDuplicateAndNilHandler(t *testing.T) {
	sub, _ := newTestSubstrate(t)

	require.NoError(t, sub.Register(QueueStatusUpdate, HandlerFunc(func(ctx context.Context, j *Job) error { return nil })))
	require.Error(t, sub.Register(QueueStatusUpdate, HandlerFunc(func(ctx context.Context, j *Job) error { return nil })))
	require.Error(t, sub.Register(QueueShopifySync, nil))
}

func TestWorker_ProcessesEnqueuedJob(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan string, 1)
	require.NoError(t, sub.Register(QueueDatabaseSave, HandlerFunc(func(ctx context.Context, j *Job) error {
		var payload map[string]string
		_ = json.Unmarshal(j.Payload, &payload)
		done <- payload["po_number"]
		return nil
	})))

	wlog, err := logger.New("test")
	require.NoError(t, err)
	w := NewWorker(wlog, sub)
	w.Start(ctx)
	defer w.Stop()

	_, err = sub.Enqueue(ctx, QueueDatabaseSave, map[string]string{"po_number": "PO-1"}, 0)
	require.NoError(t, err)

	select {
	case got := <-done:
		require.Equal(t, "PO-1", got)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed in time")
	}
}

func TestWorker_PanicInHandlerIsRecoveredAndCountsAsFailed(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sub.Register(QueueMerchantConfig, HandlerFunc(func(ctx context.Context, j *Job) error {
		panic("boom")
	})))

	wlog, err := logger.New("test")
	require.NoError(t, err)
	w := NewWorker(wlog, sub)
	w.Start(ctx)
	defer w.Stop()

	_, err = sub.Enqueue(ctx, QueueMerchantConfig, map[string]string{}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := sub.Status(ctx, QueueMerchantConfig)
		return err == nil && status.Failed == 1
	}, 5*time.Second, 50*time.Millisecond)
}
