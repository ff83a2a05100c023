// internal/services/consequence_service.go
package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// 态度描述词 -> 关系增量的固定查表
// 生成文本只携带描述词，数值换算只发生在这里
var stanceDeltaTable = map[string]float64{
	"warming":      0.1,
	"cooling":      -0.1,
	"trusting":     0.15,
	"guarded":      -0.15,
	"hostile":      -0.3,
	"affectionate": 0.2,
}

// ConsequenceService 后果整合器
// 全部八步在世界状态的工作拷贝上执行，任一步失败则整个拷贝被抛弃，
// 权威状态保持不变
type ConsequenceService struct {
	cfg       config.EngineConfig
	logic     LogicLayer
	entities  *EntityService
	influence *InfluenceService
}

// NewConsequenceService 创建后果整合服务
func NewConsequenceService(cfg config.EngineConfig, logic LogicLayer, entities *EntityService, influence *InfluenceService) *ConsequenceService {
	return &ConsequenceService{cfg: cfg, logic: logic, entities: entities, influence: influence}
}

// Integrate 把通过校验的生成结果整合进工作拷贝
// 调用方负责传入 Clone 出来的拷贝并在成功后整体提交；
// 返回本次产生的分类判定记录供审计
func (c *ConsequenceService) Integrate(world *models.WorldState, outcome *models.PerceptionOutcome, decisions []*models.TriggerDecision) ([]models.ClassificationNote, error) {
	if outcome == nil {
		return nil, errors.NewValidationError("生成结果为空", nil)
	}

	// 第1步：结构校验（说话者必须是在场实体，态度目标必须存在）
	if err := c.validate(world, outcome); err != nil {
		return nil, err
	}

	// 第2步：话语与动作物化为世界事件
	c.recordEvents(world, outcome)

	// 第3步：态度描述词换算为关系增量并施加
	stanceDeltas := c.applyStanceShifts(world, outcome)

	// 第4步：意图操作交给逻辑层转化为动机压力
	c.applyIntentions(world, outcome, stanceDeltas)

	// 第5步：结构化物理变更落到实体属性
	if err := c.applyPhysicalChanges(world, outcome); err != nil {
		return nil, err
	}

	// 第6步：参与实体记显著遭遇，满足条件者提升
	notes, err := c.recordEncounters(world, outcome, decisions)
	if err != nil {
		return nil, err
	}

	// 第7步：记忆沉淀（情节记忆，重复模式进入传记记忆）
	c.depositMemories(world, outcome)

	// 第8步：影响场与潜在可能性的收尾更新
	c.finalizeFields(world, outcome, decisions)

	world.LastUpdated = time.Now()
	return notes, nil
}

// validate 第1步：生成结果与世界状态的相容性检查
// 不相容即 contradiction_error，由调用方决定是否严格模式重生成
func (c *ConsequenceService) validate(world *models.WorldState, outcome *models.PerceptionOutcome) error {
	if outcome.SpeakerID != "" {
		speaker, ok := world.Entity(outcome.SpeakerID)
		if !ok {
			return errors.NewContradictionError("说话者不存在: "+outcome.SpeakerID, nil)
		}
		if speaker.Kind == models.EntityKindPerson && !world.IsPresent(outcome.SpeakerID, world.CurrentLocationID) {
			return errors.NewContradictionError("说话者不在当前场景: "+outcome.SpeakerID, nil)
		}
	}

	for _, shift := range outcome.StanceShifts {
		if _, ok := world.Entity(shift.Target); !ok {
			return errors.NewContradictionError("态度变化指向不存在的实体: "+shift.Target, nil)
		}
		if _, ok := stanceDeltaTable[shift.Description]; !ok {
			return errors.NewContradictionError("无法换算的态度描述词: "+shift.Description, nil)
		}
	}

	for _, change := range outcome.PhysicalChanges {
		if _, ok := world.Entity(change.EntityID); !ok {
			return errors.NewContradictionError("物理变更指向不存在的实体: "+change.EntityID, nil)
		}
	}
	return nil
}

// recordEvents 第2步：生成的话语与动作进入世界事件流
func (c *ConsequenceService) recordEvents(world *models.WorldState, outcome *models.PerceptionOutcome) {
	now := time.Now()
	if outcome.Utterance != "" {
		world.Events = append(world.Events, &models.WorldEvent{
			ID:         utils.GenerateID("evt"),
			Kind:       "utterance",
			ActorID:    outcome.SpeakerID,
			Content:    outcome.Utterance,
			LocationID: world.CurrentLocationID,
			Tick:       world.Tick,
			OccurredAt: now,
		})
	}
	if outcome.Action != "" {
		world.Events = append(world.Events, &models.WorldEvent{
			ID:         utils.GenerateID("evt"),
			Kind:       "action",
			ActorID:    outcome.SpeakerID,
			Content:    outcome.Action,
			LocationID: world.CurrentLocationID,
			Tick:       world.Tick,
			OccurredAt: now,
		})
	}
}

// applyStanceShifts 第3步：描述词查表换算，施加到关系评分
// 返回本次的数值增量供逻辑层使用
func (c *ConsequenceService) applyStanceShifts(world *models.WorldState, outcome *models.PerceptionOutcome) map[string]float64 {
	deltas := make(map[string]float64)
	if len(outcome.StanceShifts) == 0 {
		return deltas
	}
	if world.RelationScores == nil {
		world.RelationScores = make(map[string]float64)
	}

	actor := outcome.SpeakerID
	if actor == "" {
		actor = world.OccupantID
	}
	for _, shift := range outcome.StanceShifts {
		delta := stanceDeltaTable[shift.Description]
		deltas[shift.Target] = deltas[shift.Target] + delta
		key := actor + "|" + shift.Target
		world.RelationScores[key] = clamp(world.RelationScores[key]+delta, -1, 1)
	}
	return deltas
}

// applyIntentions 第4步：意图操作与态度增量经逻辑层转化为心理状态
func (c *ConsequenceService) applyIntentions(world *models.WorldState, outcome *models.PerceptionOutcome, stanceDeltas map[string]float64) {
	if outcome.SpeakerID == "" || outcome.SpeakerID == world.OccupantID {
		return
	}

	event := PsychEvent{
		AgentID:      outcome.SpeakerID,
		StanceDeltas: stanceDeltas,
		IntentionOps: outcome.IntentionUpdates,
	}
	field := c.influence.Field(world, outcome.SpeakerID)
	next := c.logic.UpdateMood(event, field)
	next = c.logic.UpdateDrives(event, next)
	next = c.logic.UpdateArcs(event, next)
	world.InfluenceFields[outcome.SpeakerID] = next
	world.RelationScores = c.logic.UpdateRelationships(event, world.RelationScores)
}

// applyPhysicalChanges 第5步：结构化物理变更写入实体属性
func (c *ConsequenceService) applyPhysicalChanges(world *models.WorldState, outcome *models.PerceptionOutcome) error {
	for _, change := range outcome.PhysicalChanges {
		entity, ok := world.Entity(change.EntityID)
		if !ok {
			return errors.NewContradictionError("物理变更指向不存在的实体: "+change.EntityID, nil)
		}
		if change.Attribute == "" {
			return errors.NewContradictionError("物理变更缺少属性名", nil)
		}
		if entity.Attributes == nil {
			entity.Attributes = make(map[string]string)
		}
		entity.Attributes[change.Attribute] = change.Value
		entity.LastUpdated = time.Now()
	}
	return nil
}

// recordEncounters 第6步：本次感知涉及的实体记显著遭遇
func (c *ConsequenceService) recordEncounters(world *models.WorldState, outcome *models.PerceptionOutcome, decisions []*models.TriggerDecision) ([]models.ClassificationNote, error) {
	seen := make(map[string]bool)
	mark := func(id string) {
		if id != "" && id != world.OccupantID {
			seen[id] = true
		}
	}

	mark(outcome.SpeakerID)
	for _, shift := range outcome.StanceShifts {
		mark(shift.Target)
	}
	for _, d := range decisions {
		if d.Reason == models.TriggerUserActionSocial || d.Reason == models.TriggerAgentInitiative {
			for _, id := range d.RelatedIDs {
				mark(id)
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var notes []models.ClassificationNote
	for _, id := range ids {
		if _, ok := world.Entity(id); !ok {
			continue
		}
		note, err := c.entities.RecordEncounter(world, id)
		if err != nil {
			return notes, fmt.Errorf("记录显著遭遇失败: %w", err)
		}
		notes = append(notes, *note)
	}
	return notes, nil
}

// depositMemories 第7步：达到显著性阈值的交互沉淀为情节记忆
// 同一话题的情节记忆反复出现时凝结为传记记忆
func (c *ConsequenceService) depositMemories(world *models.WorldState, outcome *models.PerceptionOutcome) {
	if outcome.Utterance == "" && outcome.Action == "" {
		return
	}

	salience := 0.3
	salience += 0.1 * float64(len(outcome.StanceShifts))
	salience += 0.1 * float64(len(outcome.IntentionUpdates))
	salience = clamp(salience, 0, 1)
	if salience < c.cfg.MemorySalienceThreshold {
		return
	}

	topic := "interaction"
	if outcome.SpeakerID != "" {
		topic = "interaction_with_" + outcome.SpeakerID
	}
	summary := outcome.Utterance
	if summary == "" {
		summary = outcome.Action
	}

	var entityIDs []string
	if outcome.SpeakerID != "" {
		entityIDs = append(entityIDs, outcome.SpeakerID)
	}

	world.EpisodicMemories = append(world.EpisodicMemories, &models.EpisodicMemory{
		ID:        utils.GenerateID("mem"),
		Topic:     topic,
		Summary:   summary,
		EntityIDs: entityIDs,
		Salience:  salience,
		Tick:      world.Tick,
		CreatedAt: time.Now(),
	})

	// 同话题情节记忆达到三条即凝结为传记记忆
	count := 0
	for _, mem := range world.EpisodicMemories {
		if mem.Topic == topic {
			count++
		}
	}
	if count >= 3 && !c.hasBiographical(world, topic) {
		world.BiographicalMemory = append(world.BiographicalMemory, &models.BiographicalMemory{
			ID:        utils.GenerateID("bio"),
			Topic:     topic,
			Summary:   "repeated pattern: " + topic,
			EntityIDs: entityIDs,
			Source:    "repeated_pattern",
			CreatedAt: time.Now(),
		})
	}
}

func (c *ConsequenceService) hasBiographical(world *models.WorldState, topic string) bool {
	for _, mem := range world.BiographicalMemory {
		if mem.Topic == topic {
			return true
		}
	}
	return false
}

// finalizeFields 第8步：发言代理人的待接触压力释放，已消费的环境变化出队
func (c *ConsequenceService) finalizeFields(world *models.WorldState, outcome *models.PerceptionOutcome, decisions []*models.TriggerDecision) {
	if outcome.SpeakerID != "" && outcome.SpeakerID != world.OccupantID {
		if field, ok := world.InfluenceFields[outcome.SpeakerID]; ok {
			field.PendingContactProbability = 0
			field.LastUpdated = world.BackgroundTime
		}
	}

	// 本轮触发过感知的环境变化即视为已消费
	consumed := make(map[string]bool)
	for _, d := range decisions {
		if d.Reason != models.TriggerEnvironmentShift {
			continue
		}
		for _, id := range d.RelatedIDs {
			consumed[id] = true
		}
	}
	for _, shift := range world.PendingShifts {
		if consumed[shift.ID] {
			shift.Consumed = true
		}
	}

	remaining := world.PendingShifts[:0]
	for _, shift := range world.PendingShifts {
		if !shift.Consumed {
			remaining = append(remaining, shift)
		}
	}
	world.PendingShifts = remaining
}
