// internal/models/world.go
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// WorldEvent 世界事件记录（话语、动作的物化形式）
type WorldEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"` // utterance, action, info_delivery, environment
	ActorID    string    `json:"actor_id,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	LocationID string    `json:"location_id,omitempty"`
	Tick       int64     `json:"tick"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EnvironmentShift 检测到的环境变化
type EnvironmentShift struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Salience    float64 `json:"salience"` // 0.0 - 1.0
	Consumed    bool    `json:"consumed"`
}

// EpisodicMemory 情节记忆条目
type EpisodicMemory struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Summary   string    `json:"summary"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	Salience  float64   `json:"salience"`
	Tick      int64     `json:"tick"`
	CreatedAt time.Time `json:"created_at"`
}

// BiographicalMemory 传记式长弧记忆条目
type BiographicalMemory struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Summary   string    `json:"summary"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	Source    string    `json:"source"` // repeated_pattern, explicit_disclosure
	CreatedAt time.Time `json:"created_at"`
}

// ReferencesEntity 传记记忆是否引用指定实体
func (m *BiographicalMemory) ReferencesEntity(entityID string) bool {
	for _, id := range m.EntityIDs {
		if id == entityID {
			return true
		}
	}
	return false
}

// WorldState 权威世界状态快照
// 编排管线的每个阶段都显式传递该对象，不使用全局可变状态
type WorldState struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`

	// 单调世界刻计数，确定性随机种子的来源之一
	Tick int64 `json:"tick"`

	// 双轨时间：后台时间每刻都前进，体验时间只随感知循环前进
	BackgroundTime  time.Time `json:"background_time"`
	ExperiencedTime time.Time `json:"experienced_time"`

	OccupantID        string `json:"occupant_id"`
	CurrentLocationID string `json:"current_location_id"`

	Entities  map[string]*Entity  `json:"entities"`
	Relations []Relation          `json:"relations,omitempty"`
	Presence  map[string][]string `json:"presence,omitempty"` // locationID -> 在场实体ID

	// 关系强度评分，键为 "fromID|toID"，只经由固定查表与逻辑层写入
	RelationScores map[string]float64 `json:"relation_scores,omitempty"`

	Potentials       []*Potential               `json:"potentials,omitempty"`
	InfluenceFields  map[string]*InfluenceField `json:"influence_fields,omitempty"`
	BackgroundEvents []*BackgroundEvent         `json:"background_events,omitempty"`
	InfoEvents       []*InfoEvent               `json:"info_events,omitempty"`
	PendingShifts    []*EnvironmentShift        `json:"pending_shifts,omitempty"`

	Events             []*WorldEvent         `json:"events,omitempty"`
	EpisodicMemories   []*EpisodicMemory     `json:"episodic_memories,omitempty"`
	BiographicalMemory []*BiographicalMemory `json:"biographical_memory,omitempty"`

	// 代理人上次主动发起感知循环的后台时间（冷却窗口判定）
	LastInitiative map[string]time.Time `json:"last_initiative,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Clone 返回世界状态的深拷贝
// 后果整合在拷贝上执行全部八步，成功后整体替换，保证原子性
func (w *WorldState) Clone() (*WorldState, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("序列化世界状态失败: %w", err)
	}
	var cp WorldState
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("反序列化世界状态失败: %w", err)
	}
	return &cp, nil
}

// Entity 按ID查找实体
func (w *WorldState) Entity(id string) (*Entity, bool) {
	e, ok := w.Entities[id]
	return e, ok
}

// CoPresentAgents 返回与占据者同处一地的持久代理人ID，升序
func (w *WorldState) CoPresentAgents() []string {
	var agents []string
	for _, id := range w.Presence[w.CurrentLocationID] {
		if id == w.OccupantID {
			continue
		}
		e, ok := w.Entities[id]
		if !ok || e.Kind != EntityKindPerson || !e.IsPersistent() {
			continue
		}
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents
}

// IsPresent 实体是否在指定地点在场
func (w *WorldState) IsPresent(entityID, locationID string) bool {
	for _, id := range w.Presence[locationID] {
		if id == entityID {
			return true
		}
	}
	return false
}

// RelationsOf 返回实体参与的全部关系
func (w *WorldState) RelationsOf(entityID string) []Relation {
	var rels []Relation
	for _, r := range w.Relations {
		if r.FromID == entityID || r.ToID == entityID {
			rels = append(rels, r)
		}
	}
	return rels
}
