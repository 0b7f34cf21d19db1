// Package queue is the Queue Substrate: named FIFO queues over Redis with
// at-least-once delivery, visibility locks, stall detection, delayed
// jobs, and a per-queue rate limiter. Grounded on the teacher's
// internal/clients/redis / internal/realtime/bus connection wiring
// (role-scoped client construction, ping-on-construct) generalized from
// one pub/sub channel into the full named-queue contract of spec.md
// §4.2, and on internal/jobs/worker.Worker's claim+heartbeat+panic-
// recovery loop, retargeted from a DB SELECT...FOR UPDATE claim onto a
// Redis BRPOPLPUSH reliable-queue pattern.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/broker"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// Known queue names (spec.md §4.2).
const (
	QueueAIParsing            = "ai_parsing"
	QueueDatabaseSave         = "database_save"
	QueueDataNormalization    = "data_normalization"
	QueueMerchantConfig       = "merchant_config"
	QueueAIEnrichment         = "ai_enrichment"
	QueueShopifyPayload       = "shopify_payload"
	QueueProductDraftCreation = "product_draft_creation"
	QueueImageAttachment      = "image_attachment"
	QueueShopifySync          = "shopify_sync"
	QueueStatusUpdate         = "status_update"
)

// AllQueueNames is the fixed set of named queues the substrate knows
// about at construction; Register rejects any other name.
var AllQueueNames = []string{
	QueueAIParsing, QueueDatabaseSave, QueueDataNormalization,
	QueueMerchantConfig, QueueAIEnrichment, QueueShopifyPayload,
	QueueProductDraftCreation, QueueImageAttachment, QueueShopifySync,
	QueueStatusUpdate,
}

const (
	lockDuration    = 120 * time.Second
	lockRenewTime   = 60 * time.Second
	stalledInterval = 60 * time.Second
	maxStalledCount = 3
	rateLimitN      = 10
	rateLimitPer    = 5 * time.Second
)

// Job is one unit of work enqueued onto a named queue.
type Job struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	Stalled   int             `json:"stalled"`
}

// Handler is the single contract a caller installs per queue name via
// Register. Exactly one handler may be registered per queue (mirrors the
// teacher's runtime.Registry one-handler-per-job_type invariant).
type Handler interface {
	Run(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Run(ctx context.Context, job *Job) error { return f(ctx, job) }

// QueueStatus is the summary returned by Status.
type QueueStatus struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Substrate is the named-FIFO-queue broker client. It owns exactly three
// shared *redis.Client connections — command, blocking-read, pub/sub —
// constructed once via createClient(role) and reused by every named
// queue; this is the load-bearing invariant of spec.md §4.2 and §5.
type Substrate struct {
	log *logger.Logger

	cmdClient      *redis.Client
	blockingClient *redis.Client
	pubsubClient   *redis.Client

	limiters map[string]*rate.Limiter
	handlers map[string]Handler
}

// CreateClientFunc constructs one role-scoped Redis connection. New
// accepts this as a parameter (rather than dialing directly) so callers
// can inject a test double, matching spec.md §4.2's explicit
// "createClient(role) callback" contract.
type CreateClientFunc func(ctx context.Context, role broker.Role) (*redis.Client, error)

// New constructs the Substrate's exactly-three shared connections via
// createClient and prepares a rate limiter per known queue name.
func New(ctx context.Context, log *logger.Logger, createClient CreateClientFunc) (*Substrate, error) {
	slog := log.With("component", "QueueSubstrate")

	cmdClient, err := createClient(ctx, broker.RoleCommand)
	if err != nil {
		return nil, fmt.Errorf("queue substrate command connection: %w", err)
	}
	blockingClient, err := createClient(ctx, broker.RoleBlocking)
	if err != nil {
		_ = cmdClient.Close()
		return nil, fmt.Errorf("queue substrate blocking connection: %w", err)
	}
	pubsubClient, err := createClient(ctx, broker.RolePubSub)
	if err != nil {
		_ = cmdClient.Close()
		_ = blockingClient.Close()
		return nil, fmt.Errorf("queue substrate pubsub connection: %w", err)
	}

	limiters := make(map[string]*rate.Limiter, len(AllQueueNames))
	for _, name := range AllQueueNames {
		limiters[name] = rate.NewLimiter(rate.Every(rateLimitPer/rateLimitN), rateLimitN)
	}

	return &Substrate{
		log:            slog,
		cmdClient:      cmdClient,
		blockingClient: blockingClient,
		pubsubClient:   pubsubClient,
		limiters:       limiters,
		handlers:       make(map[string]Handler),
	}, nil
}

// Close releases all three shared broker connections. Must run on
// shutdown or the connection pool leaks across serverless invocations
// (spec.md §9).
func (s *Substrate) Close() error {
	var firstErr error
	for _, c := range []*redis.Client{s.cmdClient, s.blockingClient, s.pubsubClient} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func waitingKey(queueName string) string   { return "queue:" + queueName + ":waiting" }
func processingKey(queueName string) string { return "queue:" + queueName + ":processing" }
func delayedKey(queueName string) string    { return "queue:" + queueName + ":delayed" }
func lockKey(queueName, jobID string) string { return "queue:" + queueName + ":lock:" + jobID }
func statsKey(queueName, stat string) string { return "queue:" + queueName + ":stats:" + stat }

// Enqueue pushes a job onto the named queue. delay, when > 0, parks the
// job in a delayed sorted-set scored by ready-time; a background mover
// (started by Worker) promotes it to the waiting list once due.
func (s *Substrate) Enqueue(ctx context.Context, queueName string, payload any, delay time.Duration) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}
	job := &Job{ID: uuid.NewString(), Queue: queueName, Payload: raw, EnqueuedAt: time.Now()}
	jobRaw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job envelope: %w", err)
	}

	if delay > 0 {
		runAt := time.Now().Add(delay)
		if err := s.cmdClient.ZAdd(ctx, delayedKey(queueName), redis.Z{
			Score: float64(runAt.UnixMilli()), Member: jobRaw,
		}).Err(); err != nil {
			return "", fmt.Errorf("enqueue delayed: %w", err)
		}
		return job.ID, nil
	}

	if err := s.cmdClient.LPush(ctx, waitingKey(queueName), jobRaw).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	s.cmdClient.Incr(ctx, statsKey(queueName, "waiting"))
	return job.ID, nil
}

// Register installs the single handler responsible for a named queue.
// Registering twice for the same queue is a wiring error.
func (s *Substrate) Register(queueName string, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for queue %s", queueName)
	}
	if _, exists := s.handlers[queueName]; exists {
		return fmt.Errorf("handler already registered for queue %s", queueName)
	}
	s.handlers[queueName] = h
	return nil
}

// Status reports waiting/active/completed/failed counters for a queue.
func (s *Substrate) Status(ctx context.Context, queueName string) (QueueStatus, error) {
	waiting, err := s.cmdClient.LLen(ctx, waitingKey(queueName)).Result()
	if err != nil {
		return QueueStatus{}, err
	}
	active, err := s.cmdClient.LLen(ctx, processingKey(queueName)).Result()
	if err != nil {
		return QueueStatus{}, err
	}
	completed, _ := s.cmdClient.Get(ctx, statsKey(queueName, "completed")).Int64()
	failed, _ := s.cmdClient.Get(ctx, statsKey(queueName, "failed")).Int64()
	return QueueStatus{Waiting: waiting, Active: active, Completed: completed, Failed: failed}, nil
}

// PubSubClient exposes the shared pub/sub connection for collaborators
// that need it directly (the Progress Bus) rather than opening a fourth
// connection.
func (s *Substrate) PubSubClient() *redis.Client { return s.pubsubClient }

// CommandClient exposes the shared command connection (advisory lock
// SET/GET, cron reconcile lease).
func (s *Substrate) CommandClient() *redis.Client { return s.cmdClient }
