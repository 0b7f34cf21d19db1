package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/progress"
)

// subscriberRegistry lazily builds one progress.Subscriber per merchant
// and keeps it alive for the process lifetime — spec.md §4.3's topics
// are per-merchant, not per-HTTP-connection, so every SSE client for the
// same merchant shares one Redis subscription.
type subscriberRegistry struct {
	log *logger.Logger
	bus *progress.Bus

	mu   sync.Mutex
	subs map[string]*progress.Subscriber
}

func newSubscriberRegistry(log *logger.Logger, bus *progress.Bus) *subscriberRegistry {
	return &subscriberRegistry{log: log, bus: bus, subs: make(map[string]*progress.Subscriber)}
}

func (r *subscriberRegistry) forMerchant(ctx context.Context, merchantID string) (*progress.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[merchantID]; ok {
		return s, nil
	}
	s, err := progress.NewSubscriber(context.WithoutCancel(ctx), r.log, r.bus, merchantID)
	if err != nil {
		return nil, err
	}
	r.subs[merchantID] = s
	return s, nil
}

// newRouter wires the two inbound seams spec.md §6 names. The rest of
// the HTTP surface (sessions/OAuth, webhook signature validation,
// dashboards) is explicitly out of scope (spec.md §1) and lives in an
// external module this core does not implement.
func (a *App) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("po-ingest-engine"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
	}))

	r.POST("/upload", a.handleUpload)
	r.GET("/events", a.handleEvents)
	return r
}

type uploadRequest struct {
	UploadID   string `json:"uploadId" binding:"required"`
	MerchantID string `json:"merchantId" binding:"required"`
}

type uploadResponse struct {
	WorkflowID string `json:"workflowId"`
}

// handleUpload implements spec.md §6's POST /upload contract: the
// external upload module has already persisted the file and hands this
// core an uploadId/merchantId pair; the core starts (or dedupes onto) a
// workflow and returns its id.
func (a *App) handleUpload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := domain.ExecutionModeQueued
	if a.Cfg.SequentialWorkflow {
		mode = domain.ExecutionModeSequential
	}

	workflowID, err := a.engine.StartWorkflow(c.Request.Context(), req.UploadID, req.MerchantID, mode)
	if err != nil {
		a.Log.Error("failed to start workflow", "error", err, "upload_id", req.UploadID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start workflow"})
		return
	}
	c.JSON(http.StatusOK, uploadResponse{WorkflowID: workflowID})
}

// handleEvents implements spec.md §6's GET /events?merchantId=... SSE
// contract, delegating directly to the merchant's progress.Subscriber.
func (a *App) handleEvents(c *gin.Context) {
	merchantID := c.Query("merchantId")
	if merchantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "merchantId is required"})
		return
	}

	sub, err := a.subs.forMerchant(c.Request.Context(), merchantID)
	if err != nil {
		a.Log.Error("failed to subscribe to progress events", "error", err, "merchant_id", merchantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open event stream"})
		return
	}
	sub.ServeHTTP(c.Writer, c.Request)
}
