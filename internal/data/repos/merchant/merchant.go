// Package merchant implements stages.MerchantConfigProvider: per-tenant
// normalization/categorization rules read off Merchant.Settings
// (spec.md §4.6 stages 3-4). A missing or malformed settings block is
// never fatal — it resolves to the zero-value rule set, which both
// stages already treat as a no-op.
package merchant

import (
	"context"
	"encoding/json"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
	"github.com/northboundcommerce/po-ingest-engine/internal/stages"
)

// Repo is the merchant-config persistence boundary.
type Repo struct {
	gw *pgw.Gateway
}

func New(gw *pgw.Gateway) *Repo {
	return &Repo{gw: gw}
}

func (r *Repo) NormalizationRules(ctx context.Context, merchantID string) (stages.NormalizationRules, error) {
	m, err := r.fetch(ctx, merchantID)
	if err != nil {
		return stages.NormalizationRules{}, err
	}
	var rules stages.NormalizationRules
	decodeSetting(m, "normalizationRules", &rules)
	return rules, nil
}

func (r *Repo) CategorizationRules(ctx context.Context, merchantID string) (stages.CategorizationRules, error) {
	m, err := r.fetch(ctx, merchantID)
	if err != nil {
		return stages.CategorizationRules{}, err
	}
	var rules stages.CategorizationRules
	decodeSetting(m, "categorizationRules", &rules)
	return rules, nil
}

func (r *Repo) fetch(ctx context.Context, merchantID string) (domain.Merchant, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return domain.Merchant{}, err
	}
	var m domain.Merchant
	if err := db.WithContext(ctx).First(&m, "id = ?", merchantID).Error; err != nil {
		return domain.Merchant{}, err
	}
	return m, nil
}

// decodeSetting round-trips Settings[key] (an arbitrary
// map[string]interface{} produced by jsonb decoding) through JSON into
// out, leaving out at its zero value on any failure.
func decodeSetting(m domain.Merchant, key string, out any) {
	if m.Settings == nil {
		return
	}
	raw, ok := m.Settings[key]
	if !ok || raw == nil {
		return
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, out)
}
