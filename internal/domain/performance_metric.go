package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResolverEngine string

const (
	EngineTrigram  ResolverEngine = "trigram"
	EngineJSMetric ResolverEngine = "jsmetric"
)

// PerformanceMetric is observational only — never on the hot path. A
// failed insert must never fail the operation it measured; see
// data/repos/metrics.Repo.Record's error-swallowing contract.
type PerformanceMetric struct {
	ID          uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MerchantID  uuid.UUID         `gorm:"type:uuid;not null;index:idx_metric_merchant_op_created,priority:1" json:"merchant_id"`
	Operation   string            `gorm:"column:operation;not null;index:idx_metric_merchant_op_created,priority:2" json:"operation"`
	Engine      ResolverEngine    `gorm:"column:engine;index:idx_metric_engine_op,priority:1" json:"engine,omitempty"`
	DurationMs  int64             `gorm:"column:duration_ms;not null" json:"duration_ms"`
	ResultCount int               `gorm:"column:result_count;not null;default:0" json:"result_count"`
	Success     bool              `gorm:"column:success;not null" json:"success"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:now();index:idx_metric_merchant_op_created,priority:3" json:"created_at"`
}

func (PerformanceMetric) TableName() string { return "performance_metric" }
