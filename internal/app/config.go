package app

import (
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/envutil"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/supplier"
)

// Config holds the process-level settings spec.md §6 names as recognized
// environment variables. Everything here is read once at startup;
// per-merchant overrides are resolved per call by the collaborators that
// need them (Resolver, Orchestrator).
type Config struct {
	Port string

	SequentialWorkflow bool
	PerfMonitoring     bool

	SupplierRouting supplier.RoutingConfig
}

// LoadConfig reads spec.md §6's recognized environment variables.
func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:               envutil.GetEnv("PORT", "8080", log),
		SequentialWorkflow: envutil.GetEnvBool("SEQUENTIAL_WORKFLOW", false, log),
		PerfMonitoring:     envutil.GetEnvBool("ENABLE_PERFORMANCE_MONITORING", true, log),
		SupplierRouting: supplier.RoutingConfig{
			GlobalTrigramEnabled: envutil.GetEnvBool("USE_PG_TRGM_FUZZY_MATCHING", false, log),
			RolloutPercent:       envutil.GetEnvAsInt("PG_TRGM_ROLLOUT_PERCENTAGE", 0, log),
		},
	}
}
