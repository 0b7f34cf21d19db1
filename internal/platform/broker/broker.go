// Package broker constructs role-scoped Redis connections shared across
// the Queue Substrate, Progress Bus, PO advisory lock, and cron reconcile
// lease. Grounded on the teacher's internal/realtime/bus redis_bus.go /
// internal/clients/redis sse_bus.go wiring (dial-timeout guard + Ping
// healthcheck), consolidated into one factory so the queue substrate can
// satisfy spec.md §4.2's "exactly three shared connections" rule via a
// single createClient(role) callback instead of each collaborator
// opening its own pool.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/envutil"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// Role names the purpose a connection is dedicated to; the queue
// substrate constructs exactly one client per role.
type Role string

const (
	RoleCommand  Role = "command"
	RoleBlocking Role = "blocking"
	RolePubSub   Role = "pubsub"
)

// NewClient dials BROKER_URL (falling back to REDIS_ADDR for
// compatibility with the teacher's env var) and pings it before
// returning, so a dead broker fails fast at construction rather than on
// first use.
func NewClient(ctx context.Context, role Role, log *logger.Logger) (*redis.Client, error) {
	addr := envutil.GetEnv("BROKER_URL", "", nil)
	if addr == "" {
		addr = envutil.GetEnv("REDIS_ADDR", "localhost:6379", log)
	}

	opts, err := parseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("broker client (%s): %w", role, err)
	}
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("broker client (%s) ping: %w", role, err)
	}
	if log != nil {
		log.Info("broker connection established", "role", string(role))
	}
	return client, nil
}

func parseAddr(addr string) (*redis.Options, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing BROKER_URL/REDIS_ADDR")
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}
