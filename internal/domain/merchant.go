package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Merchant is the tenant root. Settings carries free-form per-merchant
// knobs; recognized keys are documented on Resolver routing, not enforced
// here (fuzzyMatchingEngine, enableSequentialWorkflow, rolloutGroupSeed).
type Merchant struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string            `gorm:"column:name;not null" json:"name"`
	Settings  datatypes.JSONMap `gorm:"column:settings;type:jsonb" json:"settings"`
	CreatedAt time.Time         `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (Merchant) TableName() string { return "merchant" }

// Setting reads a string-keyed setting, returning ok=false when the key
// is absent or not a recognizable scalar.
func (m *Merchant) Setting(key string) (string, bool) {
	if m == nil || m.Settings == nil {
		return "", false
	}
	v, ok := m.Settings[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
