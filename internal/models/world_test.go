// internal/models/world_test.go
package models

import (
	"testing"
	"time"
)

func sampleWorld() *WorldState {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &WorldState{
		ID:                "world_sample",
		Tick:              3,
		BackgroundTime:    now,
		ExperiencedTime:   now,
		OccupantID:        "occupant",
		CurrentLocationID: "loc_study",
		Entities: map[string]*Entity{
			"occupant": {
				ID: "occupant", Kind: EntityKindPerson,
				PersistenceLevel: PersistencePersistent,
			},
			"agent_a": {
				ID: "agent_a", Kind: EntityKindPerson,
				PersistenceLevel: PersistencePersistent,
				Attributes:       map[string]string{"mood": "calm"},
			},
			"drifter": {
				ID: "drifter", Kind: EntityKindPerson,
				PersistenceLevel: PersistenceEphemeral,
			},
			"loc_study": {
				ID: "loc_study", Kind: EntityKindLocation,
				PersistenceLevel: PersistencePersistent,
			},
		},
		Presence: map[string][]string{
			"loc_study": {"occupant", "drifter", "agent_a"},
		},
		RelationScores: map[string]float64{"agent_a|occupant": 0.5},
	}
}

func TestCloneIsDeepCopy(t *testing.T) {
	world := sampleWorld()
	cp, err := world.Clone()
	if err != nil {
		t.Fatalf("克隆失败: %v", err)
	}

	cp.Tick = 99
	cp.Entities["agent_a"].Attributes["mood"] = "furious"
	cp.Presence["loc_study"] = append(cp.Presence["loc_study"], "intruder")
	cp.RelationScores["agent_a|occupant"] = -1

	if world.Tick != 3 {
		t.Fatalf("拷贝的修改不应影响原始刻计数，得到 %d", world.Tick)
	}
	if world.Entities["agent_a"].Attributes["mood"] != "calm" {
		t.Fatal("实体属性应为深拷贝")
	}
	if len(world.Presence["loc_study"]) != 3 {
		t.Fatal("在场列表应为深拷贝")
	}
	if world.RelationScores["agent_a|occupant"] != 0.5 {
		t.Fatal("关系评分应为深拷贝")
	}
}

func TestCoPresentAgents(t *testing.T) {
	world := sampleWorld()

	// 排除占据者与临时实体，只剩持久代理人
	agents := world.CoPresentAgents()
	if len(agents) != 1 || agents[0] != "agent_a" {
		t.Fatalf("同场代理人应只有 agent_a，得到 %v", agents)
	}

	// 提升后该实体进入同场代理人集合，结果保持升序
	world.Entities["drifter"].PersistenceLevel = PersistencePersistent
	agents = world.CoPresentAgents()
	if len(agents) != 2 || agents[0] != "agent_a" || agents[1] != "drifter" {
		t.Fatalf("同场代理人应升序返回 [agent_a drifter]，得到 %v", agents)
	}
}

func TestIsPresent(t *testing.T) {
	world := sampleWorld()
	if !world.IsPresent("agent_a", "loc_study") {
		t.Fatal("agent_a 应在书房在场")
	}
	if world.IsPresent("agent_a", "loc_kitchen") {
		t.Fatal("未登记的地点不应报在场")
	}
}

func TestTriggerDecisionDedupKey(t *testing.T) {
	a := &TriggerDecision{Reason: TriggerInterruption, RelatedIDs: []string{"pot_1"}}
	b := &TriggerDecision{Reason: TriggerInterruption, RelatedIDs: []string{"pot_1"}}
	c := &TriggerDecision{Reason: TriggerInterruption, RelatedIDs: []string{"pot_2"}}

	if a.DedupKey() != b.DedupKey() {
		t.Fatal("同原因同关联实体的决定应有相同去重键")
	}
	if a.DedupKey() == c.DedupKey() {
		t.Fatal("不同关联实体的决定不应合并")
	}
}

func TestTriggerReasonRank(t *testing.T) {
	ordered := []TriggerReason{
		TriggerUserActionSocial,
		TriggerUserActionContext,
		TriggerAgentInitiative,
		TriggerInterruption,
		TriggerInfoEvent,
		TriggerEnvironmentShift,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank() >= ordered[i].Rank() {
			t.Fatalf("%s 的优先级应高于 %s", ordered[i-1], ordered[i])
		}
	}
	if TriggerReason("unknown").Rank() <= TriggerEnvironmentShift.Rank() {
		t.Fatal("未知原因应排在所有已知原因之后")
	}
}
