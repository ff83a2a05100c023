// internal/services/timeflow_service.go
package services

import (
	"fmt"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// 跳跃模式
const (
	SkipNone     = "none"
	SkipExplicit = "explicit" // 占据者明确指令（"跳到明天"）
	SkipImplied  = "implied"  // 动作逻辑蕴含的耗时（睡眠、长途旅行）
)

// SkipPlan 本次循环的时间推进方案，在触发评估后、后果整合前确立
type SkipPlan struct {
	Mode   string    `json:"mode"`
	Target time.Time `json:"target,omitempty"` // 跳跃后的后台时间
}

// TimeflowService 双轨时间连续性控制
// 体验时间只能经由感知循环前进；未经授权的跳跃是 time_violation
type TimeflowService struct {
	influence *InfluenceService
}

// NewTimeflowService 创建时间流服务
func NewTimeflowService(influence *InfluenceService) *TimeflowService {
	return &TimeflowService{influence: influence}
}

// PlanSkip 根据占据者动作确立时间推进方案
// 只有两条授权路径：显式跳跃指令与蕴含耗时的动作；其余一律 NoSkip
func (s *TimeflowService) PlanSkip(world *models.WorldState, action *models.UserAction) (*SkipPlan, error) {
	if action == nil {
		return &SkipPlan{Mode: SkipNone}, nil
	}

	if action.SkipToBackground > 0 {
		if action.Kind != models.ActionKindTimeSkip {
			return nil, errors.NewTimeViolationError("非跳跃动作携带了显式跳跃目标", nil)
		}
		target := time.Unix(action.SkipToBackground, 0)
		if !target.After(world.BackgroundTime) {
			return nil, errors.NewTimeViolationError(
				fmt.Sprintf("跳跃目标 %s 不晚于当前后台时间", target.Format(time.RFC3339)), nil)
		}
		return &SkipPlan{Mode: SkipExplicit, Target: target}, nil
	}

	if action.ImpliedMinutes > 0 {
		if action.Kind == models.ActionKindOutOfWorld {
			return nil, errors.NewTimeViolationError("出戏指令不能蕴含世界内耗时", nil)
		}
		target := world.BackgroundTime.Add(time.Duration(action.ImpliedMinutes) * time.Minute)
		return &SkipPlan{Mode: SkipImplied, Target: target}, nil
	}

	if action.Kind == models.ActionKindTimeSkip {
		return nil, errors.NewTimeViolationError("跳跃动作缺少目标时间", nil)
	}

	return &SkipPlan{Mode: SkipNone}, nil
}

// Finalize 在循环收尾推进双轨时钟
// 无跳跃时两轨前进相同的循环时长；跳跃时快进到目标并做一次影响场结算。
// 无跳跃情况下两轨增量不相等说明状态机已被破坏，直接返回不可恢复错误
func (s *TimeflowService) Finalize(world *models.WorldState, plan *SkipPlan, cycleDuration time.Duration) error {
	if cycleDuration < 0 {
		return errors.NewTimeViolationError("循环时长为负", nil)
	}

	if plan == nil || plan.Mode == SkipNone {
		prevBackground := world.BackgroundTime
		prevExperienced := world.ExperiencedTime

		world.BackgroundTime = world.BackgroundTime.Add(cycleDuration)
		world.ExperiencedTime = world.ExperiencedTime.Add(cycleDuration)

		backgroundDelta := world.BackgroundTime.Sub(prevBackground)
		experiencedDelta := world.ExperiencedTime.Sub(prevExperienced)
		if backgroundDelta != experiencedDelta {
			return errors.NewTimeViolationError(
				fmt.Sprintf("无跳跃循环的双轨增量不一致: 后台 %s 体验 %s", backgroundDelta, experiencedDelta), nil)
		}
		world.Tick++
		return nil
	}

	if plan.Target.Before(world.BackgroundTime) {
		return errors.NewTimeViolationError("跳跃目标早于当前后台时间", nil)
	}

	skipped := plan.Target.Sub(world.BackgroundTime)
	world.BackgroundTime = plan.Target
	world.ExperiencedTime = world.ExperiencedTime.Add(skipped)
	world.Tick++

	// 被跳过的时段仍然发生过：结算一次影响场演化
	s.influence.UpdateFromBackground(world)

	utils.GetLogger().Info("时间跳跃完成", map[string]interface{}{
		"world_id": world.ID,
		"mode":     plan.Mode,
		"skipped":  skipped.String(),
	})
	return nil
}
