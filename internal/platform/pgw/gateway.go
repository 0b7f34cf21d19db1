// Package pgw is the Persistence Gateway: it hands out a warmed-up GORM
// client and wraps every query in a transaction-aware retry policy.
// Grounded on the teacher's internal/data/db/postgres.go connection
// wiring, generalized from a one-shot connect into the explicit warmup
// barrier and retry ladder spec.md §4.1 requires.
package pgw

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/apierr"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/envutil"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// Gateway hands out a single shared *gorm.DB after a one-shot warmup
// barrier. No caller — including health checks — bypasses warmup
// (spec.md §5: "no caller bypasses it").
type Gateway struct {
	log *logger.Logger

	warmupOnce sync.Once
	warmupErr  error
	db         *gorm.DB
}

// New constructs a Gateway without connecting; the connection/warmup
// happens lazily on first Client() call, same sync.Once-guarded shared
// future shape as the teacher's process-wide singletons (spec.md §9).
func New(log *logger.Logger) *Gateway {
	return &Gateway{log: log.With("component", "PersistenceGateway")}
}

// Client blocks on the warmup barrier and returns the shared *gorm.DB.
// Concurrent callers await the same future; none receives a client
// before warmup resolves.
func (g *Gateway) Client(ctx context.Context) (*gorm.DB, error) {
	g.warmupOnce.Do(func() {
		g.db, g.warmupErr = g.warmup(ctx)
	})
	if g.warmupErr != nil {
		return nil, g.warmupErr
	}
	return g.db, nil
}

// warmup opens the connection and runs two SELECT 1 probes, retried up
// to 3 times with 500/1000/1500ms backoff. Failure after all attempts is
// fatal to the process per spec.md §4.1.
func (g *Gateway) warmup(ctx context.Context) (*gorm.DB, error) {
	backoffs := []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 1500 * time.Millisecond}

	var lastErr error
	for attempt := 0; attempt < len(backoffs); attempt++ {
		start := time.Now()
		db, err := g.connect()
		if err == nil {
			if err = probeTwice(ctx, db); err == nil {
				g.log.Info("persistence gateway warmup complete",
					"attempt", attempt+1, "elapsed_ms", time.Since(start).Milliseconds())
				return db, nil
			}
		}
		lastErr = err
		g.log.Warn("persistence gateway warmup attempt failed",
			"attempt", attempt+1, "error", err)
		time.Sleep(backoffs[attempt])
	}
	return nil, apierr.New(apierr.KindFatal, "pgw_warmup_failed",
		fmt.Errorf("persistence gateway warmup failed after %d attempts: %w", len(backoffs), lastErr))
}

func probeTwice(ctx context.Context, db *gorm.DB) error {
	for i := 0; i < 2; i++ {
		if err := db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) connect() (*gorm.DB, error) {
	host := envutil.GetEnv("POSTGRES_HOST", "localhost", g.log)
	port := envutil.GetEnv("POSTGRES_PORT", "5432", g.log)
	user := envutil.GetEnv("POSTGRES_USER", "postgres", g.log)
	password := envutil.GetEnv("POSTGRES_PASSWORD", "", g.log)
	name := envutil.GetEnv("POSTGRES_NAME", "po_ingest", g.log)

	dsn := envutil.GetEnv("DATABASE_URL", "", nil)
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp: %w", err)
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm;`).Error; err != nil {
		return nil, fmt.Errorf("enable pg_trgm: %w", err)
	}
	return db, nil
}

// transientMessages mirrors spec.md §4.1's recognized transient
// conditions for operations outside a transaction.
var transientMessages = []string{
	"engine not connected", "empty response", "connection closed",
	"connection reset", "pool timeout", "i/o timeout",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// WithRetry is the transaction-aware retry wrapper (spec.md §4.1, §9).
// Outside a transaction: 3 attempts, 200/400/800ms backoff. Inside one:
// exactly 1 attempt, zero backoff — retrying inside a transaction only
// consumes its 8-15s budget and guarantees a timeout; the caller must
// let the transaction abort and retry from a fresh one.
func (g *Gateway) WithRetry(ctx context.Context, inTx bool, fn func(db *gorm.DB) error) error {
	db, err := g.Client(ctx)
	if err != nil {
		return err
	}

	if inTx {
		if err := fn(db); err != nil {
			return classify(err)
		}
		return nil
	}

	backoffs := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	var lastErr error
	for attempt := 0; attempt < len(backoffs); attempt++ {
		err := fn(db)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return classify(err)
		}
		if attempt < len(backoffs)-1 {
			time.Sleep(backoffs[attempt])
		}
	}
	return classify(lastErr)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*apierr.Error); ok {
		return err
	}
	kind := apierr.KindTransient
	if !isTransient(err) {
		kind = apierr.KindValidation
	}
	return apierr.New(kind, "pgw_query_failed", err)
}
