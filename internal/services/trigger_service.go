// internal/services/trigger_service.go
package services

import (
	"sort"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// TriggerService 感知触发评估器
// 对世界状态只读：评估本身绝不产生副作用，空决定列表意味着本刻彻底静默
type TriggerService struct {
	cfg        config.EngineConfig
	influence  *InfluenceService
	potentials *PotentialService
}

// NewTriggerService 创建触发评估服务
func NewTriggerService(cfg config.EngineConfig, influence *InfluenceService, potentials *PotentialService) *TriggerService {
	return &TriggerService{cfg: cfg, influence: influence, potentials: potentials}
}

// Evaluate 评估当前刻的全部触发条件
// action 可为 nil（纯后台刻）；返回去重并按优先级排序的决定列表
func (s *TriggerService) Evaluate(world *models.WorldState, action *models.UserAction) ([]*models.TriggerDecision, error) {
	var decisions []*models.TriggerDecision

	if action != nil {
		d, err := s.evaluateAction(world, action)
		if err != nil {
			return nil, err
		}
		if d != nil {
			decisions = append(decisions, d)
		}
	}

	decisions = append(decisions, s.evaluateInitiative(world)...)
	decisions = append(decisions, s.evaluateInterruptions(world)...)
	decisions = append(decisions, s.evaluateInfoEvents(world)...)
	decisions = append(decisions, s.evaluateEnvironmentShifts(world)...)

	decisions = dedupDecisions(decisions)
	sortDecisions(decisions)

	if len(decisions) > 0 {
		utils.GetLogger().Debug("触发评估产生决定", map[string]interface{}{
			"world_id": world.ID,
			"count":    len(decisions),
			"primary":  string(decisions[0].Reason),
		})
	}
	return decisions, nil
}

// evaluateAction 规则一：占据者动作
// 物理动作与出戏指令不触发感知；无法识别的类别是评估失败
func (s *TriggerService) evaluateAction(world *models.WorldState, action *models.UserAction) (*models.TriggerDecision, error) {
	switch action.Kind {
	case models.ActionKindSocial:
		var related []string
		if action.TargetID != "" {
			if _, ok := world.Entity(action.TargetID); !ok {
				return nil, errors.NewTriggerEvaluationError("社交动作指向不存在的实体", nil)
			}
			related = []string{action.TargetID}
		}
		return &models.TriggerDecision{
			Reason:             models.TriggerUserActionSocial,
			RequiresPerception: true,
			RelatedIDs:         related,
		}, nil
	case models.ActionKindContextChange, models.ActionKindTimeSkip:
		return &models.TriggerDecision{
			Reason:             models.TriggerUserActionContext,
			RequiresPerception: true,
		}, nil
	case models.ActionKindPhysical, models.ActionKindOutOfWorld:
		return nil, nil
	case "":
		return nil, errors.NewTriggerEvaluationError("动作缺少类别", nil)
	default:
		return nil, errors.NewTriggerEvaluationError("无法识别的动作类别: "+string(action.Kind), nil)
	}
}

// evaluateInitiative 规则二：代理人主动发起
// 压力越过阈值且不在冷却窗口内才触发；窗口内的候选直接丢弃，不排队
func (s *TriggerService) evaluateInitiative(world *models.WorldState) []*models.TriggerDecision {
	cooldown := time.Duration(s.cfg.InitiativeCooldownMinutes) * time.Minute
	var decisions []*models.TriggerDecision

	for _, agentID := range world.CoPresentAgents() {
		field, ok := world.InfluenceFields[agentID]
		if !ok {
			continue
		}

		pressure := field.PendingContactProbability
		if _, top := s.influence.MaxDrivePressure(world, agentID); top > pressure {
			pressure = top
		}
		if pressure < s.cfg.InitiativePressureThreshold {
			continue
		}

		if last, ok := world.LastInitiative[agentID]; ok {
			if world.BackgroundTime.Sub(last) < cooldown {
				utils.GetLogger().Debug("代理人主动触发处于冷却窗口，丢弃", map[string]interface{}{
					"world_id": world.ID,
					"agent_id": agentID,
				})
				continue
			}
		}

		decisions = append(decisions, &models.TriggerDecision{
			Reason:             models.TriggerAgentInitiative,
			RequiresPerception: true,
			RelatedIDs:         []string{agentID},
		})
	}
	return decisions
}

// evaluateInterruptions 规则三：打断型潜在可能性
// 纯查询待解析列表，真正的解析要到决定确立之后才在工作拷贝上发生
func (s *TriggerService) evaluateInterruptions(world *models.WorldState) []*models.TriggerDecision {
	pending := s.potentials.PendingForContext(world, "location", world.CurrentLocationID)
	var decisions []*models.TriggerDecision
	for _, p := range pending {
		if models.InterruptivePotentialTypes[p.PotentialType] {
			decisions = append(decisions, &models.TriggerDecision{
				Reason:             models.TriggerInterruption,
				RequiresPerception: true,
				RelatedIDs:         []string{p.ID},
			})
		}
	}
	return decisions
}

// evaluateInfoEvents 规则四：到期的信息事件
func (s *TriggerService) evaluateInfoEvents(world *models.WorldState) []*models.TriggerDecision {
	var decisions []*models.TriggerDecision
	for _, ev := range world.InfoEvents {
		if ev.DueAt(world.BackgroundTime) {
			decisions = append(decisions, &models.TriggerDecision{
				Reason:             models.TriggerInfoEvent,
				RequiresPerception: true,
				RelatedIDs:         []string{ev.ID},
			})
		}
	}
	return decisions
}

// evaluateEnvironmentShifts 规则五：显著环境变化
func (s *TriggerService) evaluateEnvironmentShifts(world *models.WorldState) []*models.TriggerDecision {
	var decisions []*models.TriggerDecision
	for _, shift := range world.PendingShifts {
		if shift.Consumed || shift.Salience < s.cfg.EnvironmentSalienceThreshold {
			continue
		}
		decisions = append(decisions, &models.TriggerDecision{
			Reason:             models.TriggerEnvironmentShift,
			RequiresPerception: true,
			RelatedIDs:         []string{shift.ID},
		})
	}
	return decisions
}

// dedupDecisions 同原因同关联实体的决定合并为一条，保留首见者
func dedupDecisions(decisions []*models.TriggerDecision) []*models.TriggerDecision {
	seen := make(map[string]bool, len(decisions))
	out := decisions[:0]
	for _, d := range decisions {
		key := d.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// sortDecisions 按原因优先级排序，同级按首个关联ID升序保证稳定
func sortDecisions(decisions []*models.TriggerDecision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		if decisions[i].Reason.Rank() != decisions[j].Reason.Rank() {
			return decisions[i].Reason.Rank() < decisions[j].Reason.Rank()
		}
		return decisions[i].PrimaryRelatedID() < decisions[j].PrimaryRelatedID()
	})
}
