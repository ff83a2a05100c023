// internal/services/testutil_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

var testBaseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// newTestWorld 构造测试世界：占据者与伙伴同在厨房，导师不在场
func newTestWorld() *models.WorldState {
	return &models.WorldState{
		ID:                "world_test",
		Tick:              7,
		BackgroundTime:    testBaseTime,
		ExperiencedTime:   testBaseTime,
		OccupantID:        "occupant",
		CurrentLocationID: "loc_kitchen",
		Entities: map[string]*models.Entity{
			"occupant": {
				ID: "occupant", Kind: models.EntityKindPerson, Name: "你",
				PersistenceLevel: models.PersistencePersistent,
			},
			"loc_kitchen": {
				ID: "loc_kitchen", Kind: models.EntityKindLocation, Name: "厨房",
				PersistenceLevel: models.PersistencePersistent,
			},
			"agent_lin": {
				ID: "agent_lin", Kind: models.EntityKindPerson, Name: "林",
				PersistenceLevel: models.PersistencePersistent,
			},
			"agent_ma": {
				ID: "agent_ma", Kind: models.EntityKindPerson, Name: "马老师",
				PersistenceLevel: models.PersistencePersistent,
			},
		},
		Relations: []models.Relation{
			{FromID: "occupant", ToID: "agent_lin", Kind: "partner"},
			{FromID: "occupant", ToID: "agent_ma", Kind: "mentor"},
		},
		Presence: map[string][]string{
			"loc_kitchen": {"occupant", "agent_lin"},
		},
	}
}

func newTestTriggerService() (*TriggerService, *InfluenceService, *PotentialService) {
	cfg := config.DefaultEngineConfig()
	entities := NewEntityService(cfg.PromotionOccurrenceThreshold)
	influence := NewInfluenceService()
	potentials := NewPotentialService(entities)
	return NewTriggerService(cfg, influence, potentials), influence, potentials
}

func mustEvaluate(t *testing.T, s *TriggerService, world *models.WorldState, action *models.UserAction) []*models.TriggerDecision {
	t.Helper()
	decisions, err := s.Evaluate(world, action)
	if err != nil {
		t.Fatalf("触发评估不应失败: %v", err)
	}
	return decisions
}
