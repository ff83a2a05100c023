// internal/services/timeflow_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func newTestTimeflowService() *TimeflowService {
	return NewTimeflowService(NewInfluenceService())
}

func TestPlanSkipNoAction(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()

	plan, err := s.PlanSkip(world, nil)
	if err != nil {
		t.Fatalf("无动作不应失败: %v", err)
	}
	if plan.Mode != SkipNone {
		t.Fatalf("无动作应为 NoSkip，得到 %s", plan.Mode)
	}
}

func TestPlanSkipExplicit(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()
	target := world.BackgroundTime.Add(20 * time.Hour)

	plan, err := s.PlanSkip(world, &models.UserAction{
		Kind:             models.ActionKindTimeSkip,
		SkipToBackground: target.Unix(),
	})
	if err != nil {
		t.Fatalf("显式跳跃不应失败: %v", err)
	}
	if plan.Mode != SkipExplicit || !plan.Target.Equal(target) {
		t.Fatalf("期望显式跳跃到 %s，得到 %s/%s", target, plan.Mode, plan.Target)
	}
}

func TestPlanSkipImplied(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()

	plan, err := s.PlanSkip(world, &models.UserAction{
		Kind:           models.ActionKindPhysical,
		Text:           "睡一觉",
		ImpliedMinutes: 480,
	})
	if err != nil {
		t.Fatalf("蕴含耗时不应失败: %v", err)
	}
	if plan.Mode != SkipImplied {
		t.Fatalf("期望蕴含跳跃，得到 %s", plan.Mode)
	}
	if want := world.BackgroundTime.Add(8 * time.Hour); !plan.Target.Equal(want) {
		t.Fatalf("期望跳到 %s，得到 %s", want, plan.Target)
	}
}

func TestPlanSkipViolations(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()

	// 非跳跃动作携带显式目标
	_, err := s.PlanSkip(world, &models.UserAction{
		Kind:             models.ActionKindSocial,
		SkipToBackground: world.BackgroundTime.Add(time.Hour).Unix(),
	})
	if !errors.IsTimeViolationError(err) {
		t.Fatalf("非跳跃动作携带跳跃目标应为 time_violation，得到 %v", err)
	}

	// 跳跃目标在过去
	_, err = s.PlanSkip(world, &models.UserAction{
		Kind:             models.ActionKindTimeSkip,
		SkipToBackground: world.BackgroundTime.Add(-time.Hour).Unix(),
	})
	if !errors.IsTimeViolationError(err) {
		t.Fatalf("跳跃到过去应为 time_violation，得到 %v", err)
	}

	// 跳跃动作缺少目标
	_, err = s.PlanSkip(world, &models.UserAction{Kind: models.ActionKindTimeSkip})
	if !errors.IsTimeViolationError(err) {
		t.Fatalf("缺少目标的跳跃动作应为 time_violation，得到 %v", err)
	}
}

func TestFinalizeNoSkipAdvancesBothClocksEqually(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()
	prevBackground := world.BackgroundTime
	prevExperienced := world.ExperiencedTime
	prevTick := world.Tick

	if err := s.Finalize(world, &SkipPlan{Mode: SkipNone}, 45*time.Second); err != nil {
		t.Fatalf("收尾不应失败: %v", err)
	}

	backgroundDelta := world.BackgroundTime.Sub(prevBackground)
	experiencedDelta := world.ExperiencedTime.Sub(prevExperienced)
	if backgroundDelta != experiencedDelta {
		t.Fatalf("无跳跃循环的双轨增量必须相等: %s != %s", backgroundDelta, experiencedDelta)
	}
	if backgroundDelta != 45*time.Second {
		t.Fatalf("期望推进45秒，得到 %s", backgroundDelta)
	}
	if world.Tick != prevTick+1 {
		t.Fatalf("收尾应推进世界刻，得到 %d", world.Tick)
	}
}

func TestFinalizeExplicitSkip(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()
	target := world.BackgroundTime.Add(20 * time.Hour)
	prevExperienced := world.ExperiencedTime

	if err := s.Finalize(world, &SkipPlan{Mode: SkipExplicit, Target: target}, time.Second); err != nil {
		t.Fatalf("跳跃收尾不应失败: %v", err)
	}

	if !world.BackgroundTime.Equal(target) {
		t.Fatalf("后台时间应快进到目标，得到 %s", world.BackgroundTime)
	}
	if got := world.ExperiencedTime.Sub(prevExperienced); got != 20*time.Hour {
		t.Fatalf("体验时间应推进被跳过的时长，得到 %s", got)
	}
}

func TestFinalizeSkipSettlesInfluence(t *testing.T) {
	influence := NewInfluenceService()
	s := NewTimeflowService(influence)
	world := newTestWorld()

	field := influence.Field(world, "agent_lin")
	field.UnresolvedTensionTopics = []string{"争执"}
	field.LastUpdated = world.BackgroundTime

	target := world.BackgroundTime.Add(10 * time.Hour)
	if err := s.Finalize(world, &SkipPlan{Mode: SkipExplicit, Target: target}, time.Second); err != nil {
		t.Fatalf("跳跃收尾不应失败: %v", err)
	}

	if world.InfluenceFields["agent_lin"].PendingContactProbability <= 0 {
		t.Fatal("被跳过的时段应结算影响场演化")
	}
}

func TestFinalizeRejectsPastTarget(t *testing.T) {
	s := newTestTimeflowService()
	world := newTestWorld()

	err := s.Finalize(world, &SkipPlan{
		Mode: SkipExplicit, Target: world.BackgroundTime.Add(-time.Hour),
	}, time.Second)
	if !errors.IsTimeViolationError(err) {
		t.Fatalf("跳跃目标早于当前时间应为 time_violation，得到 %v", err)
	}
}
