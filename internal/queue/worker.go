package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// Worker drains every registered queue concurrently, one goroutine per
// queue, adapted from the teacher's jobs/worker.Worker fan-out shape
// (heartbeat ticker + panic recovery wrapping each handler invocation)
// but claiming work via Redis BRPOPLPUSH into a per-queue processing
// list instead of a DB SELECT...FOR UPDATE SKIP LOCKED claim.
type Worker struct {
	log   *logger.Logger
	sub   *Substrate
	stopC chan struct{}
}

// NewWorker builds a Worker bound to the substrate's registered handlers.
func NewWorker(log *logger.Logger, sub *Substrate) *Worker {
	return &Worker{log: log.With("component", "QueueWorker"), sub: sub, stopC: make(chan struct{})}
}

// Start launches one processing goroutine, one delayed-job mover
// goroutine and one stalled-job sweeper goroutine per registered queue.
// It returns immediately; callers stop
// the worker via Stop on shutdown.
func (w *Worker) Start(ctx context.Context) {
	for name, handler := range w.sub.handlers {
		go w.runQueue(ctx, name, handler)
		go w.runDelayedMover(ctx, name)
		go w.runStalledSweeper(ctx, name)
	}
}

// Stop signals every running goroutine to exit after its current
// iteration.
func (w *Worker) Stop() { close(w.stopC) }

func (w *Worker) runQueue(ctx context.Context, name string, handler Handler) {
	limiter := w.sub.limiters[name]
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopC:
			return
		default:
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		raw, err := w.sub.blockingClient.BRPopLPush(ctx, waitingKey(name), processingKey(name), 5*time.Second).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("queue claim failed", "queue", name, "error", err)
			time.Sleep(time.Second)
			continue
		}

		w.process(ctx, name, handler, raw)
	}
}

func (w *Worker) process(ctx context.Context, name string, handler Handler, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.log.Error("discarding malformed job", "queue", name, "error", err)
		w.removeFromProcessing(ctx, name, raw)
		return
	}

	jobLock := lockKey(name, job.ID)
	if err := w.sub.cmdClient.Set(ctx, jobLock, time.Now().Format(time.RFC3339), lockDuration).Err(); err != nil {
		w.log.Warn("failed to set visibility lock", "queue", name, "job_id", job.ID, "error", err)
	}
	renewStop := w.startLockRenewal(ctx, jobLock)
	defer close(renewStop)

	runErr := w.runWithRecover(ctx, handler, &job)

	w.removeFromProcessing(ctx, name, raw)
	w.sub.cmdClient.Del(ctx, jobLock)

	if runErr != nil {
		w.log.Error("job failed", "queue", name, "job_id", job.ID, "error", runErr)
		w.sub.cmdClient.Incr(ctx, statsKey(name, "failed"))
		return
	}
	w.sub.cmdClient.Incr(ctx, statsKey(name, "completed"))
}

func (w *Worker) runWithRecover(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler.Run(ctx, job)
}

func (w *Worker) removeFromProcessing(ctx context.Context, name, raw string) {
	w.sub.cmdClient.LRem(ctx, processingKey(name), 1, raw)
}

// startLockRenewal extends the visibility lock every lockRenewTime while
// the handler is still running, so a slow-but-alive job is never
// reclaimed by the stalled sweeper.
func (w *Worker) startLockRenewal(ctx context.Context, jobLock string) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(lockRenewTime)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.sub.cmdClient.Expire(ctx, jobLock, lockDuration)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return stop
}

// runDelayedMover promotes due jobs from the delayed sorted set to the
// waiting list once their ready-time has elapsed.
func (w *Worker) runDelayedMover(ctx context.Context, name string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopC:
			return
		case <-ticker.C:
			w.promoteDelayed(ctx, name)
		}
	}
}

func (w *Worker) promoteDelayed(ctx context.Context, name string) {
	now := float64(time.Now().UnixMilli())
	due, err := w.sub.cmdClient.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Count: 50,
	}).Result()
	if err != nil || len(due) == 0 {
		return
	}
	for _, raw := range due {
		if err := w.sub.cmdClient.LPush(ctx, waitingKey(name), raw).Err(); err != nil {
			continue
		}
		w.sub.cmdClient.ZRem(ctx, delayedKey(name), raw)
	}
}

// runStalledSweeper periodically requeues jobs sitting in the processing
// list whose visibility lock has expired — a crashed or hung worker
// never holding a job forever. A job stalled maxStalledCount times is
// dropped to the failed counter instead of requeued again.
func (w *Worker) runStalledSweeper(ctx context.Context, name string) {
	ticker := time.NewTicker(stalledInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopC:
			return
		case <-ticker.C:
			w.sweepStalled(ctx, name)
		}
	}
}

func (w *Worker) sweepStalled(ctx context.Context, name string) {
	entries, err := w.sub.cmdClient.LRange(ctx, processingKey(name), 0, -1).Result()
	if err != nil {
		return
	}
	for _, raw := range entries {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			w.removeFromProcessing(ctx, name, raw)
			continue
		}
		exists, err := w.sub.cmdClient.Exists(ctx, lockKey(name, job.ID)).Result()
		if err != nil || exists == 1 {
			continue
		}

		w.removeFromProcessing(ctx, name, raw)
		job.Stalled++
		if job.Stalled >= maxStalledCount {
			w.log.Error("job exceeded max stalled count, dropping", "queue", name, "job_id", job.ID)
			w.sub.cmdClient.Incr(ctx, statsKey(name, "failed"))
			continue
		}
		retryRaw, err := json.Marshal(job)
		if err != nil {
			continue
		}
		w.sub.cmdClient.LPush(ctx, waitingKey(name), retryRaw)
	}
}
