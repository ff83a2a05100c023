// internal/models/entity.go
package models

import "time"

// EntityKind 实体类别
type EntityKind string

const (
	EntityKindPerson            EntityKind = "person"
	EntityKindLocation          EntityKind = "location"
	EntityKindObject            EntityKind = "object"
	EntityKindOrganization      EntityKind = "organization"
	EntityKindInformationSource EntityKind = "information_source"
)

// PersistenceLevel 实体持久化级别
// 只允许 ephemeral -> persistent 单向提升，绝不回退
type PersistenceLevel string

const (
	PersistencePersistent PersistenceLevel = "persistent"
	PersistenceEphemeral  PersistenceLevel = "ephemeral"
)

// Entity 表示模拟世界中的一个实体
type Entity struct {
	ID               string            `json:"id"`
	WorldID          string            `json:"world_id"`
	Kind             EntityKind        `json:"kind"`
	Name             string            `json:"name"`
	PersistenceLevel PersistenceLevel  `json:"persistence_level"`
	Attributes       map[string]string `json:"attributes,omitempty"`

	// 显著遭遇计数，用于持久化判定
	SalientEncounters int `json:"salient_encounters"`

	// 提升时命中的规则ID（审计用）
	PromotedByRule string `json:"promoted_by_rule,omitempty"`

	CreatedAtTick int64     `json:"created_at_tick"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdated   time.Time `json:"last_updated"`
}

// IsPersistent 实体是否已持久化
func (e *Entity) IsPersistent() bool {
	return e.PersistenceLevel == PersistencePersistent
}

// Relation 实体间关系，以ID扁平存储，避免互相引用的对象图
type Relation struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Kind   string `json:"kind"` // kin, partner, colleague, acquaintance ...
}

// 核心关系角色：具有这些关系的实体直接判定为持久实体
var CoreRelationKinds = map[string]bool{
	"kin":     true,
	"partner": true,
	"mentor":  true,
}
