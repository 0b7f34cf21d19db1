package domain

import (
	"github.com/google/uuid"
)

type SupplierStatus string

const (
	SupplierStatusActive   SupplierStatus = "active"
	SupplierStatusInactive SupplierStatus = "inactive"
)

// Supplier is the tenant-scoped vendor directory the Resolver matches
// against. NameNormalized (invariant I-4) must never be hand-set by
// callers — data/repos/supplier.Repo.Create and Repo.Upsert compute it on
// every write via supplier.Normalize, so the trigram index and the in-process
// engine always agree on the same column.
type Supplier struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MerchantID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_supplier_merchant_norm,priority:1" json:"merchant_id"`
	Name            string         `gorm:"column:name;not null" json:"name"`
	NameNormalized  string         `gorm:"column:name_normalized;not null;index:idx_supplier_merchant_norm,priority:2" json:"name_normalized"`
	ContactEmail    string         `gorm:"column:contact_email" json:"contact_email,omitempty"`
	ContactPhone    string         `gorm:"column:contact_phone" json:"contact_phone,omitempty"`
	Website         string         `gorm:"column:website" json:"website,omitempty"`
	Address         string         `gorm:"column:address" json:"address,omitempty"`
	Status          SupplierStatus `gorm:"column:status;not null;default:active" json:"status"`
}

func (Supplier) TableName() string { return "supplier" }
