// Package supplier is the Supplier Resolver's persistence boundary:
// ActiveByMerchant feeds the in-process jsmetric engine (spec.md §4.4's
// "no index to push the filter into" constraint — it loads every active
// supplier for the merchant), and Create and Upsert are the only writers
// of NameNormalized (invariant I-4), both computing it here from the name
// on every write so the trigram index and this column never drift apart.
package supplier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
	resolver "github.com/northboundcommerce/po-ingest-engine/internal/supplier"
)

// Repo is the supplier persistence boundary.
type Repo struct {
	gw *pgw.Gateway
}

func New(gw *pgw.Gateway) *Repo {
	return &Repo{gw: gw}
}

// ActiveByMerchant satisfies supplier.ActiveSupplierFetcher.
func (r *Repo) ActiveByMerchant(ctx context.Context, merchantID string) ([]resolver.JSMetricCandidate, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return nil, err
	}

	var rows []domain.Supplier
	if err := db.WithContext(ctx).
		Where("merchant_id = ? AND status = ?", merchantID, domain.SupplierStatusActive).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch active suppliers: %w", err)
	}

	out := make([]resolver.JSMetricCandidate, len(rows))
	for i, s := range rows {
		out[i] = resolver.JSMetricCandidate{
			SupplierID: s.ID.String(),
			Name:       s.Name,
			Email:      s.ContactEmail,
			Website:    s.Website,
			Phone:      s.ContactPhone,
			Address:    s.Address,
		}
	}
	return out, nil
}

// Create satisfies resolver.SupplierCreator: seeds a new Supplier from a
// parsed document stub.
func (r *Repo) Create(ctx context.Context, merchantID string, stub resolver.Stub) (string, error) {
	merchantUUID, err := uuid.Parse(merchantID)
	if err != nil {
		return "", fmt.Errorf("parse merchant id: %w", err)
	}

	row := domain.Supplier{
		MerchantID:     merchantUUID,
		Name:           stub.Name,
		NameNormalized: resolver.Normalize(stub.Name),
		ContactEmail:   stub.Email,
		ContactPhone:   stub.Phone,
		Website:        stub.Website,
		Address:        stub.Address,
		Status:         domain.SupplierStatusActive,
	}

	var id uuid.UUID
	err = r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Upsert creates or updates a Supplier row, recomputing NameNormalized on
// every write (invariant I-4) rather than trusting a caller-supplied
// value.
func (r *Repo) Upsert(ctx context.Context, s domain.Supplier) (domain.Supplier, error) {
	s.NameNormalized = resolver.Normalize(s.Name)

	err := r.gw.WithRetry(ctx, false, func(db *gorm.DB) error {
		if s.ID == uuid.Nil {
			return db.WithContext(ctx).Create(&s).Error
		}
		return db.WithContext(ctx).Model(&domain.Supplier{}).Where("id = ?", s.ID).
			Updates(map[string]any{
				"name":            s.Name,
				"name_normalized": s.NameNormalized,
				"contact_email":   s.ContactEmail,
				"contact_phone":   s.ContactPhone,
				"website":         s.Website,
				"address":         s.Address,
				"status":          s.Status,
			}).Error
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return s, nil
}

// ByID fetches one supplier, returning (domain.Supplier{}, false, nil)
// when not found rather than propagating gorm.ErrRecordNotFound.
func (r *Repo) ByID(ctx context.Context, id uuid.UUID) (domain.Supplier, bool, error) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return domain.Supplier{}, false, err
	}
	var row domain.Supplier
	err = db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Supplier{}, false, nil
	}
	if err != nil {
		return domain.Supplier{}, false, err
	}
	return row, true, nil
}

// MerchantSetting reads the fuzzyMatchingEngine setting off the Merchant
// row, satisfying supplier.MerchantSettingFetcher.
func (r *Repo) MerchantSetting(ctx context.Context, merchantID string) (string, bool) {
	db, err := r.gw.Client(ctx)
	if err != nil {
		return "", false
	}
	var m domain.Merchant
	if err := db.WithContext(ctx).First(&m, "id = ?", merchantID).Error; err != nil {
		return "", false
	}
	return m.Setting("fuzzyMatchingEngine")
}
