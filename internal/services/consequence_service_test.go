// internal/services/consequence_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func newTestConsequenceService() *ConsequenceService {
	cfg := config.DefaultEngineConfig()
	entities := NewEntityService(cfg.PromotionOccurrenceThreshold)
	influence := NewInfluenceService()
	return NewConsequenceService(cfg, NewDefaultLogicLayer(), entities, influence)
}

func TestIntegrateRecordsEventsAndStance(t *testing.T) {
	c := newTestConsequenceService()
	world := newTestWorld()

	outcome := &models.PerceptionOutcome{
		SpeakerID: "agent_lin",
		Utterance: "你今天回来得真早。",
		StanceShifts: []models.StanceShift{
			{Target: "occupant", Description: "warming"},
		},
	}

	if _, err := c.Integrate(world, outcome, nil); err != nil {
		t.Fatalf("整合不应失败: %v", err)
	}

	if len(world.Events) != 1 || world.Events[0].Kind != "utterance" {
		t.Fatalf("话语应物化为世界事件，得到 %+v", world.Events)
	}
	if got := world.RelationScores["agent_lin|occupant"]; got != 0.1 {
		t.Fatalf("warming 应换算为+0.1关系增量，得到 %f", got)
	}
}

func TestIntegrateStanceTable(t *testing.T) {
	cases := []struct {
		description string
		want        float64
	}{
		{"warming", 0.1},
		{"cooling", -0.1},
		{"trusting", 0.15},
		{"guarded", -0.15},
		{"hostile", -0.3},
		{"affectionate", 0.2},
	}

	for _, tc := range cases {
		c := newTestConsequenceService()
		world := newTestWorld()

		outcome := &models.PerceptionOutcome{
			SpeakerID: "agent_lin",
			Utterance: "……",
			StanceShifts: []models.StanceShift{
				{Target: "occupant", Description: tc.description},
			},
		}
		if _, err := c.Integrate(world, outcome, nil); err != nil {
			t.Fatalf("整合 %s 不应失败: %v", tc.description, err)
		}
		if got := world.RelationScores["agent_lin|occupant"]; got != tc.want {
			t.Fatalf("%s 期望增量 %f，得到 %f", tc.description, tc.want, got)
		}
	}
}

func TestIntegrateRejectsContradictions(t *testing.T) {
	c := newTestConsequenceService()

	// 说话者不在场
	world := newTestWorld()
	_, err := c.Integrate(world, &models.PerceptionOutcome{
		SpeakerID: "agent_ma", Utterance: "我不在这里。",
	}, nil)
	if !errors.IsContradictionError(err) {
		t.Fatalf("不在场的说话者应为 contradiction_error，得到 %v", err)
	}

	// 态度指向不存在的实体
	world = newTestWorld()
	_, err = c.Integrate(world, &models.PerceptionOutcome{
		SpeakerID: "agent_lin", Utterance: "……",
		StanceShifts: []models.StanceShift{{Target: "ghost", Description: "warming"}},
	}, nil)
	if !errors.IsContradictionError(err) {
		t.Fatalf("指向不存在实体的态度应为 contradiction_error，得到 %v", err)
	}

	// 无法换算的态度描述词
	world = newTestWorld()
	_, err = c.Integrate(world, &models.PerceptionOutcome{
		SpeakerID: "agent_lin", Utterance: "……",
		StanceShifts: []models.StanceShift{{Target: "occupant", Description: "ecstatic"}},
	}, nil)
	if !errors.IsContradictionError(err) {
		t.Fatalf("表外描述词应为 contradiction_error，得到 %v", err)
	}
}

func TestIntegrateValidationLeavesWorldUntouched(t *testing.T) {
	c := newTestConsequenceService()
	world := newTestWorld()

	working, err := world.Clone()
	if err != nil {
		t.Fatalf("克隆失败: %v", err)
	}

	_, err = c.Integrate(working, &models.PerceptionOutcome{
		SpeakerID: "agent_lin", Utterance: "……",
		StanceShifts: []models.StanceShift{{Target: "ghost", Description: "warming"}},
	}, nil)
	if err == nil {
		t.Fatal("矛盾的结果应整合失败")
	}

	// 失败的整合在校验阶段截停，原始状态无任何改动
	if len(world.Events) != 0 || len(world.RelationScores) != 0 {
		t.Fatal("整合失败后权威状态不应有任何改动")
	}
}

func TestIntegratePhysicalChanges(t *testing.T) {
	c := newTestConsequenceService()
	world := newTestWorld()

	outcome := &models.PerceptionOutcome{
		Action: "灯闪了两下之后熄灭。",
		PhysicalChanges: []models.PhysicalChange{
			{EntityID: "loc_kitchen", Attribute: "lighting", Value: "dark"},
		},
	}
	if _, err := c.Integrate(world, outcome, nil); err != nil {
		t.Fatalf("整合不应失败: %v", err)
	}

	if world.Entities["loc_kitchen"].Attributes["lighting"] != "dark" {
		t.Fatal("结构化物理变更应写入实体属性")
	}
}

func TestIntegrateRecordsEncounters(t *testing.T) {
	c := newTestConsequenceService()
	world := newTestWorld()
	world.Entities["passerby"] = &models.Entity{
		ID: "passerby", Kind: models.EntityKindPerson, Name: "路人",
		PersistenceLevel: models.PersistenceEphemeral,
	}
	world.Presence["loc_kitchen"] = append(world.Presence["loc_kitchen"], "passerby")

	outcome := &models.PerceptionOutcome{
		SpeakerID: "passerby", Utterance: "打扰一下……",
	}
	notes, err := c.Integrate(world, outcome, nil)
	if err != nil {
		t.Fatalf("整合不应失败: %v", err)
	}

	if world.Entities["passerby"].SalientEncounters != 1 {
		t.Fatalf("说话者应记一次显著遭遇，得到 %d", world.Entities["passerby"].SalientEncounters)
	}
	found := false
	for _, note := range notes {
		if note.EntityID == "passerby" {
			found = true
		}
	}
	if !found {
		t.Fatal("分类判定应出现在返回的审计记录中")
	}
}

func TestIntegrateDepositsMemories(t *testing.T) {
	c := newTestConsequenceService()
	world := newTestWorld()

	outcome := &models.PerceptionOutcome{
		SpeakerID: "agent_lin",
		Utterance: "我们聊聊周末的计划吧。",
		StanceShifts: []models.StanceShift{
			{Target: "occupant", Description: "warming"},
		},
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Integrate(world, outcome, nil); err != nil {
			t.Fatalf("整合不应失败: %v", err)
		}
	}

	if len(world.EpisodicMemories) != 3 {
		t.Fatalf("每次显著交互应沉淀一条情节记忆，得到%d条", len(world.EpisodicMemories))
	}
	if len(world.BiographicalMemory) != 1 {
		t.Fatalf("同话题重复出现应凝结为一条传记记忆，得到%d条", len(world.BiographicalMemory))
	}
	if world.BiographicalMemory[0].Source != "repeated_pattern" {
		t.Fatalf("传记记忆来源应为 repeated_pattern，得到 %s", world.BiographicalMemory[0].Source)
	}
}

func TestIntegrateConsumesTriggeredShifts(t *testing.T) {
	c := newTestConsequenceService()
	world := newTestWorld()
	world.PendingShifts = []*models.EnvironmentShift{
		{ID: "shift_storm", Description: "暴雨逼近", Salience: 0.9},
		{ID: "shift_hum", Description: "冰箱的低鸣", Salience: 0.2},
	}

	decisions := []*models.TriggerDecision{
		{Reason: models.TriggerEnvironmentShift, RequiresPerception: true, RelatedIDs: []string{"shift_storm"}},
	}
	outcome := &models.PerceptionOutcome{Action: "窗外的天色沉了下来。"}
	if _, err := c.Integrate(world, outcome, decisions); err != nil {
		t.Fatalf("整合不应失败: %v", err)
	}

	if len(world.PendingShifts) != 1 || world.PendingShifts[0].ID != "shift_hum" {
		t.Fatalf("触发过感知的环境变化应出队，未触发的保留，得到 %+v", world.PendingShifts)
	}
}

func TestIntegrateReleasesContactPressure(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	entities := NewEntityService(cfg.PromotionOccurrenceThreshold)
	influence := NewInfluenceService()
	c := NewConsequenceService(cfg, NewDefaultLogicLayer(), entities, influence)

	world := newTestWorld()
	influence.Field(world, "agent_lin").PendingContactProbability = 0.9

	outcome := &models.PerceptionOutcome{
		SpeakerID: "agent_lin", Utterance: "总算逮到你了，有件事想跟你说。",
	}
	if _, err := c.Integrate(world, outcome, nil); err != nil {
		t.Fatalf("整合不应失败: %v", err)
	}

	if world.InfluenceFields["agent_lin"].PendingContactProbability != 0 {
		t.Fatal("发言后该代理人的待接触压力应清零")
	}
}
