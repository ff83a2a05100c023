// internal/services/collaborators.go
package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

// PsychEvent 传递给逻辑层的心理事件
// 数值增量已经由固定查表产出，生成文本本身从不携带数值
type PsychEvent struct {
	AgentID      string
	Topic        string
	StanceDeltas map[string]float64 // targetID -> delta
	IntentionOps []models.IntentionUpdate
}

// LogicLayer 外部逻辑层协作方：纯函数式的数值心理更新
// 本仓库只消费该契约，具体公式由协作方实现
type LogicLayer interface {
	UpdateMood(event PsychEvent, field *models.InfluenceField) *models.InfluenceField
	UpdateDrives(event PsychEvent, field *models.InfluenceField) *models.InfluenceField
	UpdateRelationships(event PsychEvent, scores map[string]float64) map[string]float64
	UpdateArcs(event PsychEvent, field *models.InfluenceField) *models.InfluenceField
}

// MappingLayer 外部映射层协作方：数值状态 -> 语义摘要
// 产出的摘要绝不包含数字，这是提交给渲染服务前的强制边界
type MappingLayer interface {
	MoodSummary(field *models.InfluenceField) string
	TensionSummary(field *models.InfluenceField) string
	RelationSummary(score float64) string
	TimeOfDay(t time.Time) string
	SceneSummary(world *models.WorldState) string
}

// ---------------------------------------------------
// DefaultLogicLayer 逻辑层的基础实现
// 真实的心理学公式在协作方仓库里，这里提供确定性的保底实现，
// 让引擎与演示可以端到端运行
type DefaultLogicLayer struct{}

// NewDefaultLogicLayer 创建基础逻辑层
func NewDefaultLogicLayer() *DefaultLogicLayer {
	return &DefaultLogicLayer{}
}

// UpdateMood 按态度增量的合计值推挤情绪偏移
func (l *DefaultLogicLayer) UpdateMood(event PsychEvent, field *models.InfluenceField) *models.InfluenceField {
	next := field.Clone()

	var sum float64
	for _, delta := range event.StanceDeltas {
		sum += delta
	}
	next.MoodOffset = clamp(next.MoodOffset+sum*0.5, -1, 1)
	return next
}

// UpdateDrives 按意图操作调整驱力压力
func (l *DefaultLogicLayer) UpdateDrives(event PsychEvent, field *models.InfluenceField) *models.InfluenceField {
	next := field.Clone()
	if next.DrivePressures == nil {
		next.DrivePressures = make(map[string]float64)
	}

	for _, op := range event.IntentionOps {
		delta, ok := intentionDriveDeltas[op.Operation]
		if !ok {
			continue
		}
		next.DrivePressures[op.Type] = clamp(next.DrivePressures[op.Type]+delta, 0, 1)
	}
	return next
}

// UpdateRelationships 把态度增量落到关系强度评分
func (l *DefaultLogicLayer) UpdateRelationships(event PsychEvent, scores map[string]float64) map[string]float64 {
	next := make(map[string]float64, len(scores))
	for k, v := range scores {
		next[k] = v
	}

	for targetID, delta := range event.StanceDeltas {
		key := event.AgentID + "|" + targetID
		next[key] = clamp(next[key]+delta, -1, 1)
	}
	return next
}

// UpdateArcs 正面互动消解指向对方的张力话题
func (l *DefaultLogicLayer) UpdateArcs(event PsychEvent, field *models.InfluenceField) *models.InfluenceField {
	next := field.Clone()

	var sum float64
	for _, delta := range event.StanceDeltas {
		sum += delta
	}
	if sum <= 0 || event.Topic == "" {
		return next
	}

	var remaining []string
	for _, topic := range next.UnresolvedTensionTopics {
		if topic != event.Topic {
			remaining = append(remaining, topic)
		}
	}
	next.UnresolvedTensionTopics = remaining
	return next
}

// 意图操作对应的驱力压力增量（固定查表）
var intentionDriveDeltas = map[string]float64{
	"create": 0.2,
	"boost":  0.1,
	"lower":  -0.1,
	"drop":   -0.2,
}

// ---------------------------------------------------
// SemanticMapper 映射层的基础实现：把数值状态分档为固定词汇
// 输出词汇表里没有任何数字
type SemanticMapper struct{}

// NewSemanticMapper 创建语义映射器
func NewSemanticMapper() *SemanticMapper {
	return &SemanticMapper{}
}

// MoodSummary 情绪偏移的语义摘要
func (m *SemanticMapper) MoodSummary(field *models.InfluenceField) string {
	switch {
	case field.MoodOffset >= 0.5:
		return "buoyant"
	case field.MoodOffset >= 0.15:
		return "upbeat"
	case field.MoodOffset > -0.15:
		return "even-keeled"
	case field.MoodOffset > -0.5:
		return "subdued"
	default:
		return "troubled"
	}
}

// TensionSummary 张力话题与待联络倾向的语义摘要
func (m *SemanticMapper) TensionSummary(field *models.InfluenceField) string {
	var parts []string

	if len(field.UnresolvedTensionTopics) > 0 {
		topics := append([]string(nil), field.UnresolvedTensionTopics...)
		sort.Strings(topics)
		parts = append(parts, "carrying unresolved tension about "+strings.Join(topics, ", "))
	}

	switch {
	case field.PendingContactProbability >= 0.7:
		parts = append(parts, "has been meaning to reach out")
	case field.PendingContactProbability >= 0.4:
		parts = append(parts, "vaguely wants to talk")
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ")
}

// RelationSummary 关系评分的语义摘要
func (m *SemanticMapper) RelationSummary(score float64) string {
	switch {
	case score >= 0.6:
		return "close and warm"
	case score >= 0.2:
		return "friendly"
	case score > -0.2:
		return "neutral"
	case score > -0.6:
		return "strained"
	default:
		return "hostile"
	}
}

// TimeOfDay 后台时间的语义摘要
func (m *SemanticMapper) TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "deep night"
	case h < 9:
		return "early morning"
	case h < 12:
		return "morning"
	case h < 14:
		return "midday"
	case h < 18:
		return "afternoon"
	case h < 22:
		return "evening"
	default:
		return "late night"
	}
}

// SceneSummary 当前场景的语义摘要
func (m *SemanticMapper) SceneSummary(world *models.WorldState) string {
	loc, ok := world.Entity(world.CurrentLocationID)
	locName := world.CurrentLocationID
	if ok {
		locName = loc.Name
	}

	present := len(world.Presence[world.CurrentLocationID])
	var crowd string
	switch {
	case present <= 1:
		crowd = "empty except for the occupant"
	case present == 2:
		crowd = "one other person present"
	default:
		crowd = "several people present"
	}

	return fmt.Sprintf("%s, %s", locName, crowd)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
