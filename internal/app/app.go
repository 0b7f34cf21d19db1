// Package app owns process-level wiring: init order is Persistence
// Gateway -> Queue Substrate -> Progress Bus -> register stage
// processors -> start cron driver (spec.md §9), with teardown running in
// reverse on Close. Grounded on the teacher's internal/app/app.go
// (logger -> config -> postgres -> SSE hub -> repos -> services ->
// router wiring order; Start/Run/Close lifecycle), retargeted from the
// teacher's course-generation domain onto the ten-stage PO ingestion
// pipeline.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/northboundcommerce/po-ingest-engine/internal/clients/commerce"
	"github.com/northboundcommerce/po-ingest-engine/internal/clients/enrichment"
	"github.com/northboundcommerce/po-ingest-engine/internal/clients/extraction"
	"github.com/northboundcommerce/po-ingest-engine/internal/clients/gcp"
	"github.com/northboundcommerce/po-ingest-engine/internal/clients/imagesearch"
	"github.com/northboundcommerce/po-ingest-engine/internal/cron"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/merchant"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/metrics"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/persistence"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/po"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/productdraft"
	supplierrepo "github.com/northboundcommerce/po-ingest-engine/internal/data/repos/supplier"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/upload"
	"github.com/northboundcommerce/po-ingest-engine/internal/data/repos/workflow"
	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/observability"
	"github.com/northboundcommerce/po-ingest-engine/internal/orchestrator"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/broker"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
	"github.com/northboundcommerce/po-ingest-engine/internal/progress"
	"github.com/northboundcommerce/po-ingest-engine/internal/queue"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
	"github.com/northboundcommerce/po-ingest-engine/internal/supplier"
)

// App bundles every process-level singleton spec.md §9 calls out as
// "unavoidable at this scale": one Persistence Gateway, one Queue
// Substrate (and its three shared broker connections), one Progress
// Bus. Everything else (repos, clients, the orchestrator) is built once
// from these and handed to the stage registry.
type App struct {
	Log    *logger.Logger
	Cfg    Config
	Router *gin.Engine

	gw         *pgw.Gateway
	q          *queue.Substrate
	bus        *progress.Bus
	worker     *queue.Worker
	cronDriver *cron.Driver
	engine     *orchestrator.Engine
	subs       *subscriberRegistry

	shutdownTracer func(context.Context) error
	cancel         context.CancelFunc
}

// New builds the full process: Persistence Gateway, Queue Substrate
// (three shared broker connections), Progress Bus, the ten stage
// processors registered against the substrate, the cron reconcile
// driver, and a minimal HTTP router exposing the two inbound seams
// spec.md §6 names (POST /upload, GET /events). New blocks on the
// Persistence Gateway's warmup barrier: the schema migration and the
// stage-collaborator wiring both obtain their *gorm.DB through
// gw.Client during startup.
func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading configuration")
	cfg := LoadConfig(log)

	ctx := context.Background()
	shutdownTracer := observability.Init(ctx, log)

	gw := pgw.New(log)

	q, err := queue.New(ctx, log, func(ctx context.Context, role broker.Role) (*redis.Client, error) {
		return broker.NewClient(ctx, role, log)
	})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init queue substrate: %w", err)
	}

	bus := progress.NewBus(log, q.PubSubClient())

	if err := autoMigrate(ctx, gw); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	deps, wfRepo, err := wireStageDeps(log, gw, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("wire stage dependencies: %w", err)
	}

	eng := orchestrator.New(log, wfRepo, deps, q, bus)
	if err := eng.RegisterHandlers(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("register stage handlers: %w", err)
	}

	cronDriver := cron.New(log, wfRepo, q)

	a := &App{
		Log:            log,
		Cfg:            cfg,
		gw:             gw,
		q:              q,
		bus:            bus,
		worker:         queue.NewWorker(log, q),
		cronDriver:     cronDriver,
		engine:         eng,
		subs:           newSubscriberRegistry(log, bus),
		shutdownTracer: shutdownTracer,
	}
	a.Router = a.newRouter()
	return a, nil
}

// Start launches the background components: the queue worker (one
// goroutine per named queue, spec.md §4.2) and the cron reconcile
// driver (spec.md §4.8). Both are no-ops to call twice.
func (a *App) Start(runServer, runWorker bool) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if runWorker {
		a.worker.Start(ctx)
		if err := a.cronDriver.Start(ctx); err != nil {
			a.Log.Error("failed to start cron driver", "error", err)
		}
	}
}

// Run starts serving HTTP on addr; only meaningful when the router was
// built (always true today, since §6's inbound seams are HTTP-shaped).
func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

// Close tears down the process-level singletons in reverse init order
// (spec.md §9): cron, worker, queue substrate (closing its three shared
// broker connections), then the logger.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.cronDriver != nil {
		a.cronDriver.Stop()
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.q != nil {
		if err := a.q.Close(); err != nil {
			a.Log.Warn("failed to close queue substrate", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(context.Background()); err != nil {
			a.Log.Warn("failed to shut down tracer provider", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// autoMigrate creates/updates every relational table spec.md §3 names.
// PurchaseOrderLock is intentionally absent: it is a broker-held
// advisory key, never a database row (spec.md §9,
// internal/domain/po_lock.go).
func autoMigrate(ctx context.Context, gw *pgw.Gateway) error {
	db, err := gw.Client(ctx)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).AutoMigrate(
		&domain.Merchant{},
		&domain.Upload{},
		&domain.Supplier{},
		&domain.PurchaseOrder{},
		&domain.POLineItem{},
		&domain.Session{},
		&domain.ProductDraft{},
		&domain.ProductImage{},
		&domain.WorkflowExecution{},
		&domain.WorkflowStageExecution{},
		&domain.StageStore{},
		&domain.AIProcessingAudit{},
		&domain.PerformanceMetric{},
	)
}

// wireStageDeps constructs every collaborator stages.Deps needs,
// grounded on the teacher's wireRepos/wireServices split collapsed into
// one function since this domain's dependency graph is a flat fan-out
// from the Persistence Gateway rather than the teacher's layered
// repo -> service -> handler graph.
func wireStageDeps(log *logger.Logger, gw *pgw.Gateway, cfg Config) (stages.Deps, *workflow.Repo, error) {
	bucket, err := gcp.NewBucketClient(log)
	if err != nil {
		return stages.Deps{}, nil, fmt.Errorf("gcp bucket client: %w", err)
	}
	extractionClient, err := extraction.New(log)
	if err != nil {
		return stages.Deps{}, nil, fmt.Errorf("extraction client: %w", err)
	}
	enrichmentClient, err := enrichment.New(log)
	if err != nil {
		return stages.Deps{}, nil, fmt.Errorf("enrichment client: %w", err)
	}
	imageSearchClient, err := imagesearch.New(log)
	if err != nil {
		return stages.Deps{}, nil, fmt.Errorf("image search client: %w", err)
	}
	commerceClient, err := commerce.New(log)
	if err != nil {
		return stages.Deps{}, nil, fmt.Errorf("commerce client: %w", err)
	}

	uploadRepo := upload.New(gw, bucket)
	merchantRepo := merchant.New(gw)
	supplierRepo := supplierrepo.New(gw)
	metricsRepo := metrics.New(gw, log, cfg.PerfMonitoring)
	poRepo := po.New(gw)
	draftRepo := productdraft.New(gw)
	wfRepo := workflow.New(gw)
	poStatus := workflow.NewPOStatus(gw)

	db, err := gw.Client(context.Background())
	if err != nil {
		return stages.Deps{}, nil, fmt.Errorf("persistence gateway warmup: %w", err)
	}

	resolver := supplier.New(
		log, db,
		supplierRepo.ActiveByMerchant,
		supplierRepo.MerchantSetting,
		metricsRepo,
		supplierRepo.Create,
		cfg.SupplierRouting,
	)

	deps := stages.Deps{
		Uploads:     uploadRepo,
		Extraction:  extractionClient,
		Enrichment:  enrichmentClient,
		ImageSearch: imageSearchClient,
		Commerce:    commerceClient,
		MerchantCfg: merchantRepo,
		Persister:   persistence.New(poRepo, resolver, log),
		Drafts:      draftRepo,
		POStatus:    poStatus,
		StageStore:  wfRepo,
	}
	return deps, wfRepo, nil
}
