package supplier

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// Action is the outcome of ResolveAndMatch's auto-match policy.
type Action string

const (
	ActionAutoLinked         Action = "auto_linked"
	ActionSuggestionsAvail   Action = "suggestions_available"
	ActionCreatedNewSupplier Action = "created_new_supplier"
)

// Result is the resolver's full answer: ranked candidates plus the
// auto-match decision.
type Result struct {
	Candidates []Candidate
	Action     Action
	Engine     domain.ResolverEngine
	WasFallback bool
}

// ActiveSupplierFetcher fetches every active supplier for a merchant,
// the input the in-process engine requires (no index to push the
// filter into).
type ActiveSupplierFetcher func(ctx context.Context, merchantID string) ([]JSMetricCandidate, error)

// MerchantSettingFetcher reads the per-merchant fuzzyMatchingEngine
// setting, returning ok=false if unset.
type MerchantSettingFetcher func(ctx context.Context, merchantID string) (engine string, ok bool)

// MetricsRecorder persists a PerformanceMetric row. A failed insert must
// never fail the match (spec.md §4.4): implementations swallow their own
// errors after logging.
type MetricsRecorder interface {
	Record(ctx context.Context, metric domain.PerformanceMetric)
}

// SupplierCreator creates a new supplier seeded from a stub, used by the
// auto-match policy's createIfNoMatch path.
type SupplierCreator func(ctx context.Context, merchantID string, stub Stub) (supplierID string, err error)

// RoutingConfig carries the two global feature-flag inputs (spec.md §6).
type RoutingConfig struct {
	GlobalTrigramEnabled bool
	RolloutPercent       int
}

// Resolver is the Supplier Resolver component (spec.md §4.4): routes
// between the trigram and in-process engines by the load-bearing
// priority order, falls back transparently on trigram failure, and
// applies the auto-match policy.
type Resolver struct {
	log *logger.Logger
	db  *gorm.DB

	fetchActive   ActiveSupplierFetcher
	merchantFlag  MerchantSettingFetcher
	metrics       MetricsRecorder
	createSupplier SupplierCreator
	cfg           RoutingConfig
}

// New constructs a Resolver. cfg is read once at startup from
// USE_PG_TRGM_FUZZY_MATCHING / PG_TRGM_ROLLOUT_PERCENTAGE; per-merchant
// and per-request overrides are evaluated per call.
func New(
	log *logger.Logger,
	db *gorm.DB,
	fetchActive ActiveSupplierFetcher,
	merchantFlag MerchantSettingFetcher,
	metrics MetricsRecorder,
	createSupplier SupplierCreator,
	cfg RoutingConfig,
) *Resolver {
	return &Resolver{
		log: log.With("component", "SupplierResolver"), db: db,
		fetchActive: fetchActive, merchantFlag: merchantFlag,
		metrics: metrics, createSupplier: createSupplier, cfg: cfg,
	}
}

// chooseEngine applies the five-step priority order from spec.md §4.4.
// Rollout percentage MUST be evaluated before the global flag — a
// merchant whose hash falls inside the rollout window gets trigram even
// while the global flag is off, which is what makes canary rollout
// possible.
func (r *Resolver) chooseEngine(ctx context.Context, merchantID string, override domain.ResolverEngine) domain.ResolverEngine {
	if override == domain.EngineTrigram || override == domain.EngineJSMetric {
		return override
	}

	if r.merchantFlag != nil {
		if setting, ok := r.merchantFlag(ctx, merchantID); ok {
			switch setting {
			case "trigram":
				return domain.EngineTrigram
			case "jsmetric":
				return domain.EngineJSMetric
				// "auto" falls through to the remaining steps.
			}
		}
	}

	if r.cfg.RolloutPercent > 0 && merchantHashMod100(merchantID) < r.cfg.RolloutPercent {
		return domain.EngineTrigram
	}

	if r.cfg.GlobalTrigramEnabled {
		return domain.EngineTrigram
	}

	return domain.EngineJSMetric
}

// merchantHashMod100 is the deterministic hash(merchantId) mod 100 the
// rollout step compares against rolloutPercent.
func merchantHashMod100(merchantID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(merchantID))
	return int(h.Sum32() % 100)
}

// Match runs engine routing, transparent trigram-to-jsmetric fallback,
// and emits a PerformanceMetric for every call regardless of outcome.
func (r *Resolver) Match(ctx context.Context, merchantID string, stub Stub, override domain.ResolverEngine) (Result, error) {
	engine := r.chooseEngine(ctx, merchantID, override)
	start := time.Now()
	wasFallback := false

	var candidates []Candidate
	var err error

	switch engine {
	case domain.EngineTrigram:
		candidates, err = MatchTrigram(ctx, r.db, merchantID, stub)
		if err != nil {
			r.log.Warn("trigram engine failed, falling back to jsmetric", "merchant_id", merchantID, "error", err)
			wasFallback = true
			engine = domain.EngineJSMetric
			candidates, err = r.runJSMetric(ctx, merchantID, stub)
		}
	default:
		candidates, err = r.runJSMetric(ctx, merchantID, stub)
	}

	duration := time.Since(start)
	success := err == nil
	r.recordMetric(ctx, merchantID, engine, duration, len(candidates), success, wasFallback)

	if err != nil {
		return Result{}, err
	}

	return Result{Candidates: candidates, Action: actionFor(candidates), Engine: engine, WasFallback: wasFallback}, nil
}

func (r *Resolver) runJSMetric(ctx context.Context, merchantID string, stub Stub) ([]Candidate, error) {
	active, err := r.fetchActive(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return MatchJSMetric(stub, active), nil
}

func actionFor(candidates []Candidate) Action {
	if len(candidates) == 0 {
		return ActionSuggestionsAvail
	}
	if candidates[0].Score >= 0.85 {
		return ActionAutoLinked
	}
	return ActionSuggestionsAvail
}

// ResolveAndMatch wraps Match with the full auto-match policy (spec.md
// §4.4): auto-link on top score >= 0.85, create a new supplier when
// createIfNoMatch is set and the best score is < 0.50, otherwise return
// the ranked suggestion list.
func (r *Resolver) ResolveAndMatch(ctx context.Context, merchantID string, stub Stub, override domain.ResolverEngine, createIfNoMatch bool) (Result, error) {
	result, err := r.Match(ctx, merchantID, stub, override)
	if err != nil {
		return Result{}, err
	}

	if len(result.Candidates) > 0 && result.Candidates[0].Score >= 0.85 {
		result.Action = ActionAutoLinked
		return result, nil
	}

	bestScore := 0.0
	if len(result.Candidates) > 0 {
		bestScore = result.Candidates[0].Score
	}
	if createIfNoMatch && bestScore < 0.50 && r.createSupplier != nil {
		supplierID, err := r.createSupplier(ctx, merchantID, stub)
		if err != nil {
			return result, err
		}
		result.Action = ActionCreatedNewSupplier
		result.Candidates = append([]Candidate{{SupplierID: supplierID, Name: stub.Name, Score: 1.0}}, result.Candidates...)
		return result, nil
	}

	result.Action = ActionSuggestionsAvail
	return result, nil
}

func (r *Resolver) recordMetric(ctx context.Context, merchantID string, engine domain.ResolverEngine, duration time.Duration, resultCount int, success, wasFallback bool) {
	if r.metrics == nil {
		return
	}
	merchantUUID, err := uuid.Parse(merchantID)
	if err != nil {
		r.log.Warn("skipping performance metric, merchant id is not a uuid", "merchant_id", merchantID)
		return
	}
	metadata := datatypes.JSONMap{}
	if wasFallback {
		metadata["wasFallback"] = true
	}
	r.metrics.Record(ctx, domain.PerformanceMetric{
		MerchantID:  merchantUUID,
		Operation:   "supplier_resolve",
		Engine:      engine,
		DurationMs:  duration.Milliseconds(),
		ResultCount: resultCount,
		Success:     success,
		Metadata:    metadata,
	})
}
