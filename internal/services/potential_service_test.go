// internal/services/potential_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func newTestPotentialService() *PotentialService {
	return NewPotentialService(NewEntityService(3))
}

func TestRegisterDedupByIdentity(t *testing.T) {
	s := newTestPotentialService()
	world := newTestWorld()

	first, err := s.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen",
		PotentialType: "stranger_approach",
		Parameters:    map[string]string{"entity_kind": "person"},
	})
	if err != nil {
		t.Fatalf("注册不应失败: %v", err)
	}

	second, err := s.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen",
		PotentialType: "stranger_approach",
		Parameters:    map[string]string{"entity_kind": "person"},
	})
	if err != nil {
		t.Fatalf("重复注册不应失败: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("同身份键应返回同一条记录: %s != %s", first.ID, second.ID)
	}
	if len(world.Potentials) != 1 {
		t.Fatalf("重复注册不应新增条目，得到%d条", len(world.Potentials))
	}

	// 参数不同则是新的潜在可能性
	third, err := s.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen",
		PotentialType: "stranger_approach",
		Parameters:    map[string]string{"entity_kind": "person", "mood": "urgent"},
	})
	if err != nil {
		t.Fatalf("注册不应失败: %v", err)
	}
	if third.ID == first.ID || len(world.Potentials) != 2 {
		t.Fatal("参数不同的潜在可能性应独立注册")
	}
}

func TestRegisterRejectsIncomplete(t *testing.T) {
	s := newTestPotentialService()
	world := newTestWorld()

	if _, err := s.Register(world, &models.Potential{ContextType: "location"}); err == nil {
		t.Fatal("缺少情境或类型的注册应失败")
	}
}

func TestResolveContextIsDeterministic(t *testing.T) {
	buildWorld := func() *models.WorldState {
		world := newTestWorld()
		s := newTestPotentialService()
		if _, err := s.Register(world, &models.Potential{
			ContextType: "location", ContextID: "loc_kitchen",
			PotentialType: "stranger_approach",
			Parameters:    map[string]string{"entity_kind": "person"},
		}); err != nil {
			t.Fatalf("注册不应失败: %v", err)
		}
		return world
	}

	s := newTestPotentialService()

	worldA := buildWorld()
	resolvedA, err := s.ResolveContext(worldA, "location", "loc_kitchen")
	if err != nil {
		t.Fatalf("解析不应失败: %v", err)
	}

	worldB := buildWorld()
	resolvedB, err := s.ResolveContext(worldB, "location", "loc_kitchen")
	if err != nil {
		t.Fatalf("解析不应失败: %v", err)
	}

	if len(resolvedA) != 1 || len(resolvedB) != 1 {
		t.Fatalf("期望各解析1条，得到 %d/%d", len(resolvedA), len(resolvedB))
	}
	if resolvedA[0].EntityID != resolvedB[0].EntityID {
		t.Fatalf("同世界状态的解析必须一致: %s != %s", resolvedA[0].EntityID, resolvedB[0].EntityID)
	}
	if resolvedA[0].Mode != resolvedB[0].Mode {
		t.Fatalf("同世界状态的解析模式必须一致: %s != %s", resolvedA[0].Mode, resolvedB[0].Mode)
	}
}

func TestResolveReusesPersistentEntity(t *testing.T) {
	s := newTestPotentialService()
	world := newTestWorld()

	// agent_ma 是持久实体且不在当前场景，应被复用
	if _, err := s.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen",
		PotentialType: "urgent_summons",
		Parameters:    map[string]string{"entity_kind": "person"},
	}); err != nil {
		t.Fatalf("注册不应失败: %v", err)
	}

	resolved, err := s.ResolveContext(world, "location", "loc_kitchen")
	if err != nil {
		t.Fatalf("解析不应失败: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("期望解析1条，得到%d条", len(resolved))
	}
	if resolved[0].Mode != models.ResolutionReused {
		t.Fatalf("存在可复用持久实体时应复用，得到 %s", resolved[0].Mode)
	}
	if resolved[0].EntityID != "agent_ma" {
		t.Fatalf("期望复用 agent_ma，得到 %s", resolved[0].EntityID)
	}
}

func TestResolveInstantiatesWhenNoCandidate(t *testing.T) {
	s := newTestPotentialService()
	world := newTestWorld()

	// 不存在任何 information_source 实体，只能实例化
	if _, err := s.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen",
		PotentialType: "sudden_malfunction",
		Parameters:    map[string]string{"entity_kind": "information_source", "name": "警报器"},
	}); err != nil {
		t.Fatalf("注册不应失败: %v", err)
	}

	resolved, err := s.ResolveContext(world, "location", "loc_kitchen")
	if err != nil {
		t.Fatalf("解析不应失败: %v", err)
	}
	if resolved[0].Mode != models.ResolutionInstantiated {
		t.Fatalf("无候选时应实例化，得到 %s", resolved[0].Mode)
	}

	entity, ok := world.Entity(resolved[0].EntityID)
	if !ok {
		t.Fatal("实例化的实体应存在于世界中")
	}
	if entity.PersistenceLevel != models.PersistenceEphemeral {
		t.Fatal("新实例化的实体应为临时级别")
	}
	if entity.Name != "警报器" {
		t.Fatalf("实体名应取自参数，得到 %s", entity.Name)
	}
	if !world.IsPresent(entity.ID, "loc_kitchen") {
		t.Fatal("物化的实体应进入情境所在位置")
	}
}

func TestResolvedPotentialIsSkipped(t *testing.T) {
	s := newTestPotentialService()
	world := newTestWorld()

	if _, err := s.Register(world, &models.Potential{
		ContextType: "location", ContextID: "loc_kitchen",
		PotentialType: "stranger_approach",
		Parameters:    map[string]string{"entity_kind": "person"},
	}); err != nil {
		t.Fatalf("注册不应失败: %v", err)
	}

	if _, err := s.ResolveContext(world, "location", "loc_kitchen"); err != nil {
		t.Fatalf("解析不应失败: %v", err)
	}

	again, err := s.ResolveContext(world, "location", "loc_kitchen")
	if err != nil {
		t.Fatalf("二次解析不应失败: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("已解析的潜在可能性不应再次解析，得到%d条", len(again))
	}
}
