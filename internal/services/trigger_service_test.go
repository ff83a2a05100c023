// internal/services/trigger_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func TestEvaluateSocialAction(t *testing.T) {
	s, _, _ := newTestTriggerService()
	world := newTestWorld()

	decisions := mustEvaluate(t, s, world, &models.UserAction{
		Text: "你好", Kind: models.ActionKindSocial, TargetID: "agent_lin",
	})

	if len(decisions) != 1 {
		t.Fatalf("期望1条决定，得到%d条", len(decisions))
	}
	if decisions[0].Reason != models.TriggerUserActionSocial {
		t.Fatalf("期望触发原因为 user_action_social，得到 %s", decisions[0].Reason)
	}
	if decisions[0].PrimaryRelatedID() != "agent_lin" {
		t.Fatalf("期望关联实体为 agent_lin，得到 %s", decisions[0].PrimaryRelatedID())
	}
}

func TestEvaluatePhysicalActionIsSilent(t *testing.T) {
	s, _, _ := newTestTriggerService()
	world := newTestWorld()

	decisions := mustEvaluate(t, s, world, &models.UserAction{
		Text: "拿起杯子", Kind: models.ActionKindPhysical,
	})
	if len(decisions) != 0 {
		t.Fatalf("纯物理动作不应产生任何触发，得到%d条", len(decisions))
	}
}

func TestEvaluateMalformedAction(t *testing.T) {
	s, _, _ := newTestTriggerService()
	world := newTestWorld()

	_, err := s.Evaluate(world, &models.UserAction{Text: "???", Kind: "dance"})
	if err == nil {
		t.Fatal("无法识别的动作类别应返回错误")
	}

	_, err = s.Evaluate(world, &models.UserAction{
		Kind: models.ActionKindSocial, TargetID: "ghost",
	})
	if err == nil {
		t.Fatal("指向不存在实体的社交动作应返回错误")
	}
}

func TestEvaluateInitiativePressure(t *testing.T) {
	s, influence, _ := newTestTriggerService()
	world := newTestWorld()

	// 压力低于阈值：不触发
	field := influence.Field(world, "agent_lin")
	field.PendingContactProbability = 0.5
	if decisions := mustEvaluate(t, s, world, nil); len(decisions) != 0 {
		t.Fatalf("压力未过阈值不应触发，得到%d条", len(decisions))
	}

	// 越过阈值：触发
	field.PendingContactProbability = 0.8
	decisions := mustEvaluate(t, s, world, nil)
	if len(decisions) != 1 || decisions[0].Reason != models.TriggerAgentInitiative {
		t.Fatalf("期望一条 agent_initiative 决定，得到 %+v", decisions)
	}
}

func TestEvaluateInitiativeCooldownDrops(t *testing.T) {
	s, influence, _ := newTestTriggerService()
	world := newTestWorld()

	influence.Field(world, "agent_lin").PendingContactProbability = 0.9
	world.LastInitiative = map[string]time.Time{
		"agent_lin": world.BackgroundTime.Add(-2 * time.Minute),
	}

	// 冷却窗口内：丢弃，不排队
	if decisions := mustEvaluate(t, s, world, nil); len(decisions) != 0 {
		t.Fatalf("冷却窗口内的主动触发应被丢弃，得到%d条", len(decisions))
	}

	// 窗口过后恢复触发
	world.LastInitiative["agent_lin"] = world.BackgroundTime.Add(-30 * time.Minute)
	if decisions := mustEvaluate(t, s, world, nil); len(decisions) != 1 {
		t.Fatalf("冷却窗口过后应恢复触发，得到%d条", len(decisions))
	}
}

func TestEvaluateEnvironmentShiftThreshold(t *testing.T) {
	s, _, _ := newTestTriggerService()
	world := newTestWorld()
	world.PendingShifts = []*models.EnvironmentShift{
		{ID: "shift_low", Description: "微风", Salience: 0.2},
		{ID: "shift_high", Description: "停电", Salience: 0.9},
		{ID: "shift_used", Description: "已消费", Salience: 0.9, Consumed: true},
	}

	decisions := mustEvaluate(t, s, world, nil)
	if len(decisions) != 1 {
		t.Fatalf("只有越过显著度阈值且未消费的变化应触发，得到%d条", len(decisions))
	}
	if decisions[0].PrimaryRelatedID() != "shift_high" {
		t.Fatalf("期望 shift_high 触发，得到 %s", decisions[0].PrimaryRelatedID())
	}
}

func TestEvaluateOrderingAndDedup(t *testing.T) {
	s, influence, potentials := newTestTriggerService()
	world := newTestWorld()

	influence.Field(world, "agent_lin").PendingContactProbability = 0.9
	world.PendingShifts = []*models.EnvironmentShift{
		{ID: "shift_1", Description: "停电", Salience: 0.9},
	}
	world.InfoEvents = []*models.InfoEvent{
		{ID: "info_1", SenderRef: "agent_ma", DueTime: world.BackgroundTime.Add(-time.Minute)},
	}
	if _, err := potentials.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen", PotentialType: "stranger_approach",
	}); err != nil {
		t.Fatalf("注册潜在可能性失败: %v", err)
	}

	action := &models.UserAction{Kind: models.ActionKindSocial, TargetID: "agent_lin"}
	decisions := mustEvaluate(t, s, world, action)

	want := []models.TriggerReason{
		models.TriggerUserActionSocial,
		models.TriggerAgentInitiative,
		models.TriggerInterruption,
		models.TriggerInfoEvent,
		models.TriggerEnvironmentShift,
	}
	if len(decisions) != len(want) {
		t.Fatalf("期望%d条决定，得到%d条", len(want), len(decisions))
	}
	for i, reason := range want {
		if decisions[i].Reason != reason {
			t.Fatalf("第%d条决定期望 %s，得到 %s", i, reason, decisions[i].Reason)
		}
	}

	// 重复评估结果一致（评估是纯函数）
	again := mustEvaluate(t, s, world, action)
	if len(again) != len(decisions) {
		t.Fatalf("重复评估应得到相同数量的决定: %d != %d", len(again), len(decisions))
	}
}

func TestEvaluateIsPure(t *testing.T) {
	s, _, potentials := newTestTriggerService()
	world := newTestWorld()

	if _, err := potentials.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen", PotentialType: "stranger_approach",
	}); err != nil {
		t.Fatalf("注册潜在可能性失败: %v", err)
	}

	mustEvaluate(t, s, world, nil)

	if len(world.Entities) != 4 {
		t.Fatalf("触发评估不应物化实体，实体数量变为%d", len(world.Entities))
	}
	if world.Potentials[0].Resolved {
		t.Fatal("触发评估不应解析潜在可能性")
	}
}

func TestTriggerErrorType(t *testing.T) {
	s, _, _ := newTestTriggerService()
	world := newTestWorld()

	_, err := s.Evaluate(world, &models.UserAction{Kind: ""})
	if err == nil {
		t.Fatal("缺少类别的动作应返回错误")
	}
	appErr, ok := err.(*errors.AppError)
	if !ok {
		t.Fatalf("期望 AppError，得到 %T", err)
	}
	if appErr.Type != errors.ErrorTypeTriggerEvaluation {
		t.Fatalf("期望 trigger_evaluation_failure 类型，得到 %s", appErr.Type)
	}
}
