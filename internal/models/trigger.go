// internal/models/trigger.go
package models

// TriggerReason 感知循环触发原因
type TriggerReason string

const (
	TriggerUserActionSocial  TriggerReason = "user_action_social"
	TriggerUserActionContext TriggerReason = "user_action_context_change"
	TriggerAgentInitiative   TriggerReason = "agent_initiative"
	TriggerInterruption      TriggerReason = "interruption"
	TriggerInfoEvent         TriggerReason = "info_event"
	TriggerEnvironmentShift  TriggerReason = "environment_shift"
)

// 触发原因的合并优先级，数值小者优先
var triggerRank = map[TriggerReason]int{
	TriggerUserActionSocial:  0,
	TriggerUserActionContext: 1,
	TriggerAgentInitiative:   2,
	TriggerInterruption:      3,
	TriggerInfoEvent:         4,
	TriggerEnvironmentShift:  5,
}

// Rank 返回触发原因的优先级序号
func (r TriggerReason) Rank() int {
	if rank, ok := triggerRank[r]; ok {
		return rank
	}
	return len(triggerRank)
}

// TriggerDecision 触发评估产出的一条决定
type TriggerDecision struct {
	Reason             TriggerReason `json:"reason"`
	RequiresPerception bool          `json:"requires_perception"`
	RelatedIDs         []string      `json:"related_ids,omitempty"`
}

// DedupKey 同原因同关联实体的决定合并为一条
func (d *TriggerDecision) DedupKey() string {
	key := string(d.Reason)
	for _, id := range d.RelatedIDs {
		key += "|" + id
	}
	return key
}

// PrimaryRelatedID 类内排序使用的首个关联ID
func (d *TriggerDecision) PrimaryRelatedID() string {
	if len(d.RelatedIDs) == 0 {
		return ""
	}
	return d.RelatedIDs[0]
}

// ActionKind 占据者动作的类别
type ActionKind string

const (
	ActionKindSocial        ActionKind = "social"         // 指向其他实体的社交动作
	ActionKindPhysical      ActionKind = "physical"       // 纯物理动作，不触发感知
	ActionKindContextChange ActionKind = "context_change" // 改变情境（移动、开灯等）
	ActionKindOutOfWorld    ActionKind = "out_of_world"   // 出戏指令，不进入世界
	ActionKindTimeSkip      ActionKind = "time_skip"      // 明确的时间跳跃指令
)

// UserAction 占据者的一次输入动作（网关已解析为结构化形式）
type UserAction struct {
	Text     string     `json:"text"`
	Kind     ActionKind `json:"kind"`
	TargetID string     `json:"target_id,omitempty"`

	// ExplicitSkip：目标时间点（如"跳到明天"），目标后台时间 Unix 秒
	SkipToBackground int64 `json:"skip_to_background,omitempty"`

	// ImpliedSkip：动作逻辑上蕴含的耗时（如睡眠、长途旅行），单位分钟
	ImpliedMinutes int64 `json:"implied_minutes,omitempty"`
}
