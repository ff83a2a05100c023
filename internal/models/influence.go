// internal/models/influence.go
package models

import "time"

// InfluenceField 持久代理人的跨时间潜在影响场
// 只由后台更新逻辑与后果整合第8步写入，生成文本绝不直接修改
type InfluenceField struct {
	AgentID                   string             `json:"agent_id"`
	MoodOffset                float64            `json:"mood_offset"`
	DrivePressures            map[string]float64 `json:"drive_pressures,omitempty"`
	PendingContactProbability float64            `json:"pending_contact_probability"`
	UnresolvedTensionTopics   []string           `json:"unresolved_tension_topics,omitempty"`
	LastUpdated               time.Time          `json:"last_updated"`
}

// Clone 返回影响场的深拷贝，query 接口只暴露拷贝
func (f *InfluenceField) Clone() *InfluenceField {
	cp := *f
	if f.DrivePressures != nil {
		cp.DrivePressures = make(map[string]float64, len(f.DrivePressures))
		for k, v := range f.DrivePressures {
			cp.DrivePressures[k] = v
		}
	}
	if f.UnresolvedTensionTopics != nil {
		cp.UnresolvedTensionTopics = append([]string(nil), f.UnresolvedTensionTopics...)
	}
	return &cp
}

// HasTension 是否存在未消解的张力话题
func (f *InfluenceField) HasTension(topic string) bool {
	for _, t := range f.UnresolvedTensionTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// 后台事件类型
const (
	BackgroundEventTension       = "tension"
	BackgroundEventDrivePressure = "drive_pressure"
	BackgroundEventContactUrge   = "contact_urge"
)

// BackgroundEvent 排队等待后台处理的事件，驱动影响场演化
type BackgroundEvent struct {
	ID       string    `json:"id"`
	AgentID  string    `json:"agent_id"`
	Kind     string    `json:"kind"`  // tension, drive_pressure, contact_urge
	Topic    string    `json:"topic"` // tension 话题或 drive 名称
	Weight   float64   `json:"weight"`
	QueuedAt time.Time `json:"queued_at"`
}
