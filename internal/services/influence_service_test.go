// internal/services/influence_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func TestUpdateFromBackgroundConsumesEvents(t *testing.T) {
	s := NewInfluenceService()
	world := newTestWorld()
	world.BackgroundEvents = []*models.BackgroundEvent{
		{AgentID: "agent_lin", Kind: models.BackgroundEventTension, Topic: "工作压力", Weight: 1.0},
		{AgentID: "agent_lin", Kind: models.BackgroundEventDrivePressure, Topic: "socialize", Weight: 0.4},
		{AgentID: "agent_lin", Kind: models.BackgroundEventContactUrge, Weight: 0.3},
	}

	s.UpdateFromBackground(world)

	field := world.InfluenceFields["agent_lin"]
	if field == nil {
		t.Fatal("后台更新应惰性创建影响场")
	}
	if field.MoodOffset >= 0 {
		t.Fatalf("张力事件应压低情绪偏移，得到 %f", field.MoodOffset)
	}
	if !field.HasTension("工作压力") {
		t.Fatal("张力话题应被记录")
	}
	if field.DrivePressures["socialize"] != 0.4 {
		t.Fatalf("动机压力应累积，得到 %f", field.DrivePressures["socialize"])
	}
	if field.PendingContactProbability != 0.3 {
		t.Fatalf("待接触概率应累积，得到 %f", field.PendingContactProbability)
	}
	if len(world.BackgroundEvents) != 0 {
		t.Fatal("后台事件队列应在消费后清空")
	}
}

func TestUpdateFromBackgroundIsDeterministic(t *testing.T) {
	build := func() *models.WorldState {
		world := newTestWorld()
		world.BackgroundEvents = []*models.BackgroundEvent{
			{AgentID: "agent_lin", Kind: models.BackgroundEventTension, Topic: "争执", Weight: 0.8},
			{AgentID: "agent_ma", Kind: models.BackgroundEventContactUrge, Weight: 0.5},
		}
		return world
	}

	s := NewInfluenceService()
	worldA, worldB := build(), build()
	s.UpdateFromBackground(worldA)
	s.UpdateFromBackground(worldB)

	for _, agentID := range []string{"agent_lin", "agent_ma"} {
		fa, fb := worldA.InfluenceFields[agentID], worldB.InfluenceFields[agentID]
		if fa.MoodOffset != fb.MoodOffset ||
			fa.PendingContactProbability != fb.PendingContactProbability {
			t.Fatalf("同输入的后台更新必须产生同结果: %s", agentID)
		}
	}
}

func TestDriftAccumulatesContactUrge(t *testing.T) {
	s := NewInfluenceService()
	world := newTestWorld()

	field := s.Field(world, "agent_lin")
	field.UnresolvedTensionTopics = []string{"争执"}
	field.MoodOffset = -0.8
	field.LastUpdated = world.BackgroundTime

	// 四小时后再结算
	world.BackgroundTime = world.BackgroundTime.Add(4 * time.Hour)
	s.UpdateFromBackground(world)

	next := world.InfluenceFields["agent_lin"]
	if next.PendingContactProbability <= 0 {
		t.Fatal("未解张力应随时间推高接触意愿")
	}
	if next.MoodOffset <= -0.8 {
		t.Fatalf("情绪偏移应随时间向中性回归，得到 %f", next.MoodOffset)
	}
	if !next.LastUpdated.Equal(world.BackgroundTime) {
		t.Fatal("结算后应更新时间戳")
	}
}

func TestQueryReturnsSnapshot(t *testing.T) {
	s := NewInfluenceService()
	world := newTestWorld()

	field := s.Field(world, "agent_lin")
	field.DrivePressures = map[string]float64{"rest": 0.5}

	snapshot := s.Query(world, "agent_lin")
	snapshot.MoodOffset = 1.0
	snapshot.DrivePressures["rest"] = 0.9

	if world.InfluenceFields["agent_lin"].MoodOffset != 0 {
		t.Fatal("修改快照不应影响权威状态")
	}
	if world.InfluenceFields["agent_lin"].DrivePressures["rest"] != 0.5 {
		t.Fatal("修改快照的map不应影响权威状态")
	}
}

func TestMaxDrivePressure(t *testing.T) {
	s := NewInfluenceService()
	world := newTestWorld()

	field := s.Field(world, "agent_lin")
	field.DrivePressures = map[string]float64{"rest": 0.3, "socialize": 0.8}

	drive, value := s.MaxDrivePressure(world, "agent_lin")
	if drive != "socialize" || value != 0.8 {
		t.Fatalf("期望最高动机 socialize/0.8，得到 %s/%f", drive, value)
	}

	if drive, value := s.MaxDrivePressure(world, "nobody"); drive != "" || value != 0 {
		t.Fatal("无影响场的智能体应返回零值")
	}
}
