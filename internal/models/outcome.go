// internal/models/outcome.go
package models

import "time"

// StanceShift 生成输出中的态度变化：只允许描述词，绝不携带数值
type StanceShift struct {
	Target      string `json:"target"`
	Description string `json:"description"` // warming, cooling, trusting, guarded ...
}

// IntentionUpdate 生成输出中的意图操作
type IntentionUpdate struct {
	Operation   string `json:"operation"` // create, boost, lower, drop
	Type        string `json:"type"`
	Target      string `json:"target,omitempty"`
	Horizon     string `json:"horizon,omitempty"` // immediate, short, long
	Description string `json:"description,omitempty"`
}

// 意图操作合法值
var IntentionOperations = map[string]bool{
	"create": true,
	"boost":  true,
	"lower":  true,
	"drop":   true,
}

// PhysicalChange 结构化的物理世界变更
type PhysicalChange struct {
	EntityID  string `json:"entity_id"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// PerceptionOutcome 认知/渲染服务返回并通过校验的结构化结果
type PerceptionOutcome struct {
	Utterance        string            `json:"utterance,omitempty"`
	Action           string            `json:"action,omitempty"`
	SpeakerID        string            `json:"speaker_id,omitempty"`
	StanceShifts     []StanceShift     `json:"stance_shifts,omitempty"`
	IntentionUpdates []IntentionUpdate `json:"intention_updates,omitempty"`
	PhysicalChanges  []PhysicalChange  `json:"structured_physical_changes,omitempty"`
}

// PerceptionResult 编排器的返回值
type PerceptionResult struct {
	WorldID              string            `json:"world_id"`
	CycleID              string            `json:"cycle_id,omitempty"`
	Text                 string            `json:"text,omitempty"`
	TriggersFired        []TriggerDecision `json:"triggers_fired,omitempty"`
	EntitiesInstantiated []string          `json:"entities_instantiated,omitempty"`
	UpdatedWorldRef      string            `json:"updated_world_ref,omitempty"`
	CompletedAt          time.Time         `json:"completed_at,omitempty"`
}

// NoneResult 没有任何触发时的空结果
func NoneResult(worldID string) *PerceptionResult {
	return &PerceptionResult{WorldID: worldID}
}

// IsNone 判断是否为空结果
func (r *PerceptionResult) IsNone() bool {
	return len(r.TriggersFired) == 0
}

// SemanticContext 提交给认知/渲染服务的语义上下文包
// 只允许映射层产出的语义摘要，内部数值状态绝不出现
type SemanticContext struct {
	WorldID       string               `json:"world_id"`
	SceneSummary  string               `json:"scene_summary"`
	TimeOfDay     string               `json:"time_of_day"`
	OccupantInput string               `json:"occupant_input,omitempty"`
	Triggers      []string             `json:"triggers"`
	Participants  []ParticipantSummary `json:"participants,omitempty"`
	ResolvedHooks []string             `json:"resolved_hooks,omitempty"`
	InfoNotices   []string             `json:"info_notices,omitempty"`
	Constraints   []string             `json:"constraints,omitempty"`
}

// ParticipantSummary 参与实体的语义摘要
type ParticipantSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	MoodSummary     string `json:"mood_summary,omitempty"`
	TensionSummary  string `json:"tension_summary,omitempty"`
	RelationSummary string `json:"relation_summary,omitempty"`
}
