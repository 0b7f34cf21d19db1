package supplier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New("test")
	require.NoError(t, err)
	return l
}

func TestNormalize_Idempotent(t *testing.T) {
	cases := []string{"Acme, Inc.", "THE Widget Corp.", "Foo-Bar   LLC", "Global Supply Co."}
	for _, c := range cases {
		once := Normalize(c)
		twice := Normalize(once)
		require.Equal(t, once, twice, "normalize should be idempotent for %q", c)
	}
}

func TestNormalize_DropsBusinessSuffixesAndPunctuation(t *testing.T) {
	require.Equal(t, "acme widgets", Normalize("Acme Widgets, Inc."))
	require.Equal(t, "foo bar", Normalize("The Foo & Bar, LLC"))
}

func TestLevenshteinSimilarity_IdenticalIsOne(t *testing.T) {
	require.Equal(t, 1.0, levenshteinSimilarity("acme widgets", "acme widgets"))
}

func TestMatchJSMetric_RanksExactNameHighest(t *testing.T) {
	stub := Stub{Name: "Acme Widgets", Email: "buyer@acme.com"}
	candidates := []JSMetricCandidate{
		{SupplierID: "s1", Name: "Acme Widgets", Email: "sales@acme.com"},
		{SupplierID: "s2", Name: "Globex Corp", Email: "sales@globex.com"},
	}
	results := MatchJSMetric(stub, candidates)
	require.Len(t, results, 2)
	require.Equal(t, "s1", results[0].SupplierID)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestBucketFor(t *testing.T) {
	require.Equal(t, ConfidenceHigh, BucketFor(0.9))
	require.Equal(t, ConfidenceMedium, BucketFor(0.75))
	require.Equal(t, ConfidenceLow, BucketFor(0.55))
	require.Equal(t, ConfidenceDiscard, BucketFor(0.2))
}

func TestResolver_RolloutEvaluatedBeforeGlobalFlag(t *testing.T) {
	merchantID := "11111111-1111-1111-1111-111111111111"
	rolloutPct := merchantHashMod100(merchantID) + 1

	r := New(
		testLogger(t), nil,
		func(ctx context.Context, merchantID string) ([]JSMetricCandidate, error) { return nil, nil },
		nil, nil, nil,
		RoutingConfig{GlobalTrigramEnabled: false, RolloutPercent: rolloutPct},
	)

	engine := r.chooseEngine(context.Background(), merchantID, "")
	require.Equal(t, domain.EngineTrigram, engine,
		"merchant inside the rollout window must get trigram even while the global flag is off")
}

func TestResolver_GlobalFlagOffAndOutsideRolloutFallsBackToDefault(t *testing.T) {
	merchantID := "22222222-2222-2222-2222-222222222222"
	rolloutPct := merchantHashMod100(merchantID)

	r := New(
		testLogger(t), nil,
		func(ctx context.Context, merchantID string) ([]JSMetricCandidate, error) { return nil, nil },
		nil, nil, nil,
		RoutingConfig{GlobalTrigramEnabled: false, RolloutPercent: rolloutPct},
	)

	engine := r.chooseEngine(context.Background(), merchantID, "")
	require.Equal(t, domain.EngineJSMetric, engine)
}

func TestResolver_ExplicitOverrideWins(t *testing.T) {
	r := New(
		testLogger(t), nil,
		func(ctx context.Context, merchantID string) ([]JSMetricCandidate, error) { return nil, nil },
		nil, nil, nil,
		RoutingConfig{GlobalTrigramEnabled: true, RolloutPercent: 100},
	)
	engine := r.chooseEngine(context.Background(), "any-merchant", domain.EngineJSMetric)
	require.Equal(t, domain.EngineJSMetric, engine)
}

func TestResolver_MerchantSettingBeatsRolloutAndGlobalFlag(t *testing.T) {
	r := New(
		testLogger(t), nil,
		func(ctx context.Context, merchantID string) ([]JSMetricCandidate, error) { return nil, nil },
		func(ctx context.Context, merchantID string) (string, bool) { return "jsmetric", true },
		nil, nil,
		RoutingConfig{GlobalTrigramEnabled: true, RolloutPercent: 100},
	)
	engine := r.chooseEngine(context.Background(), "any-merchant", "")
	require.Equal(t, domain.EngineJSMetric, engine)
}

func TestResolver_Match_UsesJSMetricWhenTrigramNotRouted(t *testing.T) {
	r := New(
		testLogger(t), nil,
		func(ctx context.Context, merchantID string) ([]JSMetricCandidate, error) {
			return []JSMetricCandidate{{SupplierID: "s1", Name: "Acme Widgets"}}, nil
		},
		nil, nil, nil,
		RoutingConfig{GlobalTrigramEnabled: false, RolloutPercent: 0},
	)
	result, err := r.Match(context.Background(), "33333333-3333-3333-3333-333333333333", Stub{Name: "Acme Widgets"}, "")
	require.NoError(t, err)
	require.Equal(t, domain.EngineJSMetric, result.Engine)
	require.False(t, result.WasFallback)
}
