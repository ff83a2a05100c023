// internal/services/perception_service.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/renderer"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// PerceptionService 感知循环编排器
// 整条管线：触发评估 → 潜在解析 → 语义打包 → 渲染 → 后果整合 → 时间收尾 → 提交
// 触发评估之后的所有变更都发生在工作拷贝上，提交前权威状态不被触碰
type PerceptionService struct {
	cfg         config.EngineConfig
	worlds      *WorldService
	triggers    *TriggerService
	potentials  *PotentialService
	entities    *EntityService
	influence   *InfluenceService
	infoEvents  *InfoEventService
	timeflow    *TimeflowService
	consequence *ConsequenceService
	audit       *AuditService
	mapper      MappingLayer
	renderer    *renderer.Client
	metrics     *utils.EngineMetrics
}

// NewPerceptionService 创建感知编排服务
func NewPerceptionService(
	cfg config.EngineConfig,
	worlds *WorldService,
	triggers *TriggerService,
	potentials *PotentialService,
	entities *EntityService,
	influence *InfluenceService,
	infoEvents *InfoEventService,
	timeflow *TimeflowService,
	consequence *ConsequenceService,
	audit *AuditService,
	mapper MappingLayer,
	client *renderer.Client,
) *PerceptionService {
	return &PerceptionService{
		cfg:         cfg,
		worlds:      worlds,
		triggers:    triggers,
		potentials:  potentials,
		entities:    entities,
		influence:   influence,
		infoEvents:  infoEvents,
		timeflow:    timeflow,
		consequence: consequence,
		audit:       audit,
		mapper:      mapper,
		renderer:    client,
		metrics:     utils.NewEngineMetrics(),
	}
}

// RunCycle 执行一次完整的感知循环
// 没有任何触发时返回空结果，且保证零副作用：不解析、不调远程、不提交
func (s *PerceptionService) RunCycle(ctx context.Context, worldID string, action *models.UserAction) (*models.PerceptionResult, error) {
	unlock := s.worlds.LockWorld(worldID)
	defer unlock()

	world, err := s.worlds.GetWorld(worldID)
	if err != nil {
		return nil, err
	}

	decisions, err := s.triggers.Evaluate(world, action)
	if err != nil {
		s.metrics.RecordError("trigger_evaluation_failure", "perception")
		return nil, err
	}
	if len(decisions) == 0 {
		utils.GetLogger().Debug("无触发，本刻静默", map[string]interface{}{"world_id": worldID})
		return models.NoneResult(worldID), nil
	}

	start := time.Now()
	cycleID := s.audit.NewCycleID()
	record := &models.AuditRecord{
		CycleID:   cycleID,
		WorldID:   worldID,
		Timestamp: start,
	}
	for _, d := range decisions {
		record.Triggers = append(record.Triggers, *d)
		s.metrics.RecordTrigger(string(d.Reason))
	}

	plan, planErr := s.timeflow.PlanSkip(world, action)
	if planErr != nil {
		// 未授权的时间跳跃：记录违规，循环继续但不跳跃
		utils.GetLogger().Warn("时间跳跃未授权", map[string]interface{}{
			"world_id": worldID,
			"error":    planErr.Error(),
		})
		record.Failure = planErr.Error()
		plan = &SkipPlan{Mode: SkipNone}
	}

	working, err := world.Clone()
	if err != nil {
		return nil, errors.NewProcessingError("创建世界状态工作拷贝失败", err)
	}

	resolved, err := s.potentials.ResolveContext(working, "location", working.CurrentLocationID)
	if err != nil {
		// 潜在可能性解析失败在编排层消化：记录并降级为无中断，循环继续
		s.metrics.RecordError("potential_resolution_failure", "perception")
		utils.GetLogger().Warn("潜在可能性解析失败，降级为无中断", map[string]interface{}{
			"world_id": worldID,
			"error":    err.Error(),
		})
		record.Failure = err.Error()
		decisions = dropUnresolvedInterruptions(decisions, resolved)
		if len(decisions) == 0 {
			s.finishCycle(record, start, false)
			return models.NoneResult(worldID), nil
		}
	}
	for _, rp := range resolved {
		record.ResolvedPotentials = append(record.ResolvedPotentials, *rp)
	}

	infoNotices := s.consumeInfoEvents(working, decisions)

	sc := s.buildSemanticContext(working, action, decisions, resolved, infoNotices)

	outcome, attempts, err := s.render(ctx, working, decisions, sc, record)
	record.RendererAttempts = attempts
	if err != nil {
		record.Failure = err.Error()
		s.finishCycle(record, start, true)
		return nil, err
	}
	record.OutcomeSummary = summarizeOutcome(outcome)

	// 代理人主动触发落定：在工作拷贝上盖冷却时间戳
	for _, d := range decisions {
		if d.Reason == models.TriggerAgentInitiative {
			if working.LastInitiative == nil {
				working.LastInitiative = make(map[string]time.Time)
			}
			for _, agentID := range d.RelatedIDs {
				working.LastInitiative[agentID] = working.BackgroundTime
			}
		}
	}

	if err := s.timeflow.Finalize(working, plan, time.Since(start)); err != nil {
		s.metrics.RecordError("time_violation", "perception")
		record.Failure = err.Error()
		s.finishCycle(record, start, true)
		return nil, err
	}

	if err := s.worlds.CommitWorld(working); err != nil {
		record.Failure = err.Error()
		s.finishCycle(record, start, true)
		return nil, err
	}

	s.finishCycle(record, start, false)

	result := &models.PerceptionResult{
		WorldID:         worldID,
		CycleID:         cycleID,
		Text:            composeText(outcome),
		UpdatedWorldRef: worldID,
		CompletedAt:     time.Now(),
	}
	for _, d := range decisions {
		result.TriggersFired = append(result.TriggersFired, *d)
	}
	for _, rp := range resolved {
		if rp.Mode == models.ResolutionInstantiated {
			result.EntitiesInstantiated = append(result.EntitiesInstantiated, rp.EntityID)
		}
	}
	return result, nil
}

// render 调用渲染服务并整合后果，矛盾时以严格模式重生成一次
// 每次整合都用新的拷贝，失败的整合不会在 working 上留下残迹
func (s *PerceptionService) render(ctx context.Context, working *models.WorldState, decisions []*models.TriggerDecision, sc *models.SemanticContext, record *models.AuditRecord) (*models.PerceptionOutcome, int, error) {
	totalAttempts := 0

	for _, strict := range []bool{false, true} {
		outcome, attempts, err := s.renderer.Render(ctx, renderer.RenderRequest{
			Context: sc,
			Strict:  strict,
		})
		totalAttempts += attempts
		if err != nil {
			s.metrics.RecordError("remote_service_failure", "renderer")
			return nil, totalAttempts, err
		}

		trial, cloneErr := working.Clone()
		if cloneErr != nil {
			return nil, totalAttempts, errors.NewProcessingError("创建整合试验拷贝失败", cloneErr)
		}
		notes, err := s.consequence.Integrate(trial, outcome, decisions)
		if err != nil {
			if errors.IsContradictionError(err) && !strict {
				utils.GetLogger().Warn("生成结果与世界状态矛盾，严格模式重生成", map[string]interface{}{
					"world_id": working.ID,
					"error":    err.Error(),
				})
				s.metrics.RecordError("contradiction_error", "consequence")
				continue
			}
			return nil, totalAttempts, err
		}

		// 整合成功：试验拷贝成为新的工作状态
		*working = *trial
		record.Classifications = append(record.Classifications, notes...)
		return outcome, totalAttempts, nil
	}

	return nil, totalAttempts, errors.NewContradictionError("严格模式重生成仍与世界状态矛盾", nil)
}

// consumeInfoEvents 解析到期信息事件的发送方并标记已处理，返回语义通知
func (s *PerceptionService) consumeInfoEvents(working *models.WorldState, decisions []*models.TriggerDecision) []string {
	var notices []string
	for _, d := range decisions {
		if d.Reason != models.TriggerInfoEvent {
			continue
		}
		for _, eventID := range d.RelatedIDs {
			ev, ok := s.infoEvents.Event(working, eventID)
			if !ok {
				continue
			}
			senderName := ev.SenderRef
			if sender, err := s.infoEvents.ResolveSender(working, ev); err == nil {
				senderName = sender.Name
			}
			notice := "a message arrives from " + senderName
			if ev.Subject != "" {
				notice += " about " + ev.Subject
			}
			notices = append(notices, notice)
			s.infoEvents.MarkProcessed(working, eventID)
		}
	}
	return notices
}

// buildSemanticContext 经映射层把数值状态翻译成语义摘要包
// 包内只有描述词与文本，内部数值绝不出现
func (s *PerceptionService) buildSemanticContext(working *models.WorldState, action *models.UserAction, decisions []*models.TriggerDecision, resolved []*models.ResolvedPotential, infoNotices []string) *models.SemanticContext {
	sc := &models.SemanticContext{
		WorldID:      working.ID,
		SceneSummary: s.mapper.SceneSummary(working),
		TimeOfDay:    s.mapper.TimeOfDay(working.BackgroundTime),
		InfoNotices:  infoNotices,
		Constraints: []string{
			"speak and act only as entities present in the scene",
			"never state numeric values of any kind",
		},
	}
	if action != nil {
		sc.OccupantInput = action.Text
	}

	for _, d := range decisions {
		sc.Triggers = append(sc.Triggers, string(d.Reason))
	}

	for _, agentID := range working.CoPresentAgents() {
		entity, ok := working.Entity(agentID)
		if !ok {
			continue
		}
		field := s.influence.Query(working, agentID)
		summary := models.ParticipantSummary{
			ID:          agentID,
			Name:        entity.Name,
			Kind:        string(entity.Kind),
			MoodSummary: s.mapper.MoodSummary(field),
		}
		if tension := s.mapper.TensionSummary(field); tension != "" {
			summary.TensionSummary = tension
		}
		score := working.RelationScores[agentID+"|"+working.OccupantID]
		summary.RelationSummary = s.mapper.RelationSummary(score)
		sc.Participants = append(sc.Participants, summary)
	}

	for _, rp := range resolved {
		hook := rp.Potential.PotentialType
		if entity, ok := working.Entity(rp.EntityID); ok && entity.Name != "" {
			hook += " involving " + entity.Name
		}
		sc.ResolvedHooks = append(sc.ResolvedHooks, hook)
	}
	return sc
}

// finishCycle 收尾：审计落盘与指标记录
// dropUnresolvedInterruptions 去掉兑现失败的中断决定，其余触发原因保留
func dropUnresolvedInterruptions(decisions []*models.TriggerDecision, resolved []*models.ResolvedPotential) []*models.TriggerDecision {
	resolvedIDs := make(map[string]bool, len(resolved))
	for _, rp := range resolved {
		if rp.Potential != nil {
			resolvedIDs[rp.Potential.ID] = true
		}
	}

	kept := decisions[:0]
	for _, d := range decisions {
		if d.Reason == models.TriggerInterruption {
			ok := true
			for _, id := range d.RelatedIDs {
				if !resolvedIDs[id] {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		kept = append(kept, d)
	}
	return kept
}

func (s *PerceptionService) finishCycle(record *models.AuditRecord, start time.Time, failed bool) {
	s.audit.Record(record)
	s.metrics.RecordCycle(record.WorldID, time.Since(start), failed)
}

// composeText 把结构化生成结果拼成面向占据者的叙事文本
func composeText(outcome *models.PerceptionOutcome) string {
	var parts []string
	if outcome.Action != "" {
		parts = append(parts, outcome.Action)
	}
	if outcome.Utterance != "" {
		parts = append(parts, outcome.Utterance)
	}
	return strings.Join(parts, " ")
}

func summarizeOutcome(outcome *models.PerceptionOutcome) string {
	if outcome == nil {
		return ""
	}
	switch {
	case outcome.Utterance != "":
		return "utterance by " + outcome.SpeakerID
	case outcome.Action != "":
		return "action by " + outcome.SpeakerID
	default:
		return "silent outcome"
	}
}
