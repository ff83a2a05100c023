// internal/services/influence_service.go
package services

import (
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// InfluenceService 离屏影响累积器
// 后台事件与时间流逝转化为各智能体的情绪偏移、动机压力与待接触概率；
// 全部更新都是世界状态的确定性函数，不含随机源
type InfluenceService struct{}

// NewInfluenceService 创建影响累积服务
func NewInfluenceService() *InfluenceService {
	return &InfluenceService{}
}

// Field 获取智能体的影响场，不存在时惰性创建
func (s *InfluenceService) Field(world *models.WorldState, agentID string) *models.InfluenceField {
	if world.InfluenceFields == nil {
		world.InfluenceFields = make(map[string]*models.InfluenceField)
	}
	field, ok := world.InfluenceFields[agentID]
	if !ok {
		field = &models.InfluenceField{
			AgentID:        agentID,
			DrivePressures: make(map[string]float64),
			LastUpdated:    world.BackgroundTime,
		}
		world.InfluenceFields[agentID] = field
	}
	return field
}

// Query 返回影响场快照，调用方拿到的是副本，读取不产生副作用
func (s *InfluenceService) Query(world *models.WorldState, agentID string) *models.InfluenceField {
	field := s.Field(world, agentID)
	return field.Clone()
}

// UpdateFromBackground 消费排队的后台事件并按流逝时间推进所有影响场
// 同一世界状态调用两次结果一致（事件队列第一次即被清空）
func (s *InfluenceService) UpdateFromBackground(world *models.WorldState) {
	events := world.BackgroundEvents
	world.BackgroundEvents = nil

	for _, ev := range events {
		field := s.Field(world, ev.AgentID)
		switch ev.Kind {
		case models.BackgroundEventTension:
			field.MoodOffset = clamp(field.MoodOffset-0.25*ev.Weight, -1, 1)
			if ev.Topic != "" && !containsTopic(field.UnresolvedTensionTopics, ev.Topic) {
				field.UnresolvedTensionTopics = append(field.UnresolvedTensionTopics, ev.Topic)
			}
		case models.BackgroundEventDrivePressure:
			if field.DrivePressures == nil {
				field.DrivePressures = make(map[string]float64)
			}
			field.DrivePressures[ev.Topic] = clamp(field.DrivePressures[ev.Topic]+ev.Weight, 0, 1)
		case models.BackgroundEventContactUrge:
			field.PendingContactProbability = clamp(field.PendingContactProbability+ev.Weight, 0, 1)
		default:
			utils.GetLogger().Warn("未知的后台事件类型", map[string]interface{}{
				"world_id": world.ID,
				"kind":     ev.Kind,
			})
		}
	}

	for _, field := range world.InfluenceFields {
		s.drift(field, world.BackgroundTime)
	}
}

// drift 按流逝时间施加确定性演化：情绪向中性回归，未解张力推高接触意愿
func (s *InfluenceService) drift(field *models.InfluenceField, now time.Time) {
	elapsed := now.Sub(field.LastUpdated)
	if elapsed <= 0 {
		field.LastUpdated = now
		return
	}
	hours := elapsed.Hours()

	// 情绪偏移每小时衰减 10%
	decay := 1.0 - 0.1*hours
	if decay < 0 {
		decay = 0
	}
	field.MoodOffset *= decay

	// 悬而未决的张力随时间积累接触冲动
	if len(field.UnresolvedTensionTopics) > 0 {
		field.PendingContactProbability = clamp(
			field.PendingContactProbability+0.05*hours*float64(len(field.UnresolvedTensionTopics)), 0, 1)
	}

	field.LastUpdated = now
}

// MaxDrivePressure 智能体当前最高的动机压力值与对应动机
func (s *InfluenceService) MaxDrivePressure(world *models.WorldState, agentID string) (string, float64) {
	field, ok := world.InfluenceFields[agentID]
	if !ok {
		return "", 0
	}
	var topDrive string
	var topValue float64
	for drive, value := range field.DrivePressures {
		if value > topValue || (value == topValue && (topDrive == "" || drive < topDrive)) {
			topDrive = drive
			topValue = value
		}
	}
	return topDrive, topValue
}

func containsTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
