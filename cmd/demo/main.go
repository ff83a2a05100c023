// cmd/demo/main.go
// 离线演示：用脚本化渲染提供者端到端走一遍感知循环的典型场景，
// 不访问网络，世界数据写入临时目录
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/renderer"
	"github.com/Corphon/PerceptionFlowMCP/internal/services"
	"github.com/Corphon/PerceptionFlowMCP/internal/storage"
)

func main() {
	tempDir, err := os.MkdirTemp("", "perceptionflow_demo_*")
	if err != nil {
		log.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(tempDir)

	engine := buildEngine(tempDir)
	worldID := seedWorld(engine)

	fmt.Println("=== PerceptionFlowMCP 演示 ===")
	fmt.Println()

	runScenario(engine, worldID, "场景一：对同在场景的伙伴说话", &models.UserAction{
		Text:     "早上好，昨晚睡得怎么样？",
		Kind:     models.ActionKindSocial,
		TargetID: "agent_lin",
	})

	runScenario(engine, worldID, "场景二：纯物理动作（应当静默）", &models.UserAction{
		Text: "拿起桌上的杯子",
		Kind: models.ActionKindPhysical,
	})

	registerStranger(engine, worldID)
	runScenario(engine, worldID, "场景三：打断型潜在可能性（陌生人靠近）", nil)

	scheduleMessage(engine, worldID)
	runScenario(engine, worldID, "场景四：到期的信息事件", nil)

	runSkipScenario(engine, worldID)

	fmt.Println("演示结束。")
}

// demoEngine 演示用的服务集合
type demoEngine struct {
	worlds     *services.WorldService
	potentials *services.PotentialService
	infoEvents *services.InfoEventService
	perception *services.PerceptionService
}

func buildEngine(tempDir string) *demoEngine {
	cfg := config.DefaultEngineConfig()

	fileStorage, err := storage.NewFileStorage(tempDir)
	if err != nil {
		log.Fatalf("初始化文件存储失败: %v", err)
	}

	worlds, err := services.NewWorldService(filepath.Join(tempDir, "worlds"))
	if err != nil {
		log.Fatalf("初始化世界服务失败: %v", err)
	}

	entities := services.NewEntityService(cfg.PromotionOccurrenceThreshold)
	influence := services.NewInfluenceService()
	potentials := services.NewPotentialService(entities)
	triggers := services.NewTriggerService(cfg, influence, potentials)
	infoEvents := services.NewInfoEventService(entities)
	timeflow := services.NewTimeflowService(influence)
	logic := services.NewDefaultLogicLayer()
	mapper := services.NewSemanticMapper()
	consequence := services.NewConsequenceService(cfg, logic, entities, influence)
	audit := services.NewAuditService(fileStorage, filepath.Join(tempDir, "audit"))

	client := renderer.NewClient(demoScript(), "scripted", 5*time.Second, cfg.RendererRetryBudget)

	perception := services.NewPerceptionService(
		cfg, worlds, triggers, potentials, entities, influence,
		infoEvents, timeflow, consequence, audit, mapper, client,
	)

	return &demoEngine{
		worlds:     worlds,
		potentials: potentials,
		infoEvents: infoEvents,
		perception: perception,
	}
}

// demoScript 四条脚本结果，按场景顺序回放（场景二静默，不消耗脚本）
func demoScript() *renderer.ScriptedProvider {
	return renderer.NewScriptedProvider(
		&models.PerceptionOutcome{
			SpeakerID: "agent_lin",
			Utterance: "睡得还行。你今天看起来心情不错。",
			StanceShifts: []models.StanceShift{
				{Target: "occupant", Description: "warming"},
			},
		},
		&models.PerceptionOutcome{
			Action: "门口传来一阵敲门声，一个陌生人站在走廊里，神情犹豫。",
		},
		&models.PerceptionOutcome{
			Action: "手机震动了一下，是马老师发来的消息，关于下午的课题讨论。",
		},
		&models.PerceptionOutcome{
			Action: "你沉沉睡去。再睁眼时，晨光已经铺满了厨房。",
		},
	)
}

// seedWorld 构造演示世界：占据者、公寓、厨房里的伙伴
func seedWorld(engine *demoEngine) string {
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	world := &models.WorldState{
		ID:                "demo_world",
		OccupantID:        "occupant",
		CurrentLocationID: "loc_kitchen",
		BackgroundTime:    now,
		ExperiencedTime:   now,
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

	if _, err := engine.worlds.CreateWorld(world); err != nil {
		log.Fatalf("创建演示世界失败: %v", err)
	}
	return world.ID
}

func runScenario(engine *demoEngine, worldID, title string, action *models.UserAction) {
	fmt.Println(title)

	result, err := engine.perception.RunCycle(context.Background(), worldID, action)
	if err != nil {
		fmt.Printf("  循环失败: %v\n\n", err)
		return
	}

	if result.IsNone() {
		fmt.Println("  （无触发，世界保持静默）")
		fmt.Println()
		return
	}

	fmt.Printf("  触发: ")
	for i, d := range result.TriggersFired {
		if i > 0 {
			fmt.Printf(", ")
		}
		fmt.Printf("%s", d.Reason)
	}
	fmt.Println()
	if len(result.EntitiesInstantiated) > 0 {
		fmt.Printf("  物化实体: %v\n", result.EntitiesInstantiated)
	}
	fmt.Printf("  叙事: %s\n\n", result.Text)
}

func registerStranger(engine *demoEngine, worldID string) {
	unlock := engine.worlds.LockWorld(worldID)
	defer unlock()

	world, err := engine.worlds.GetWorld(worldID)
	if err != nil {
		log.Fatalf("读取世界失败: %v", err)
	}
	_, err = engine.potentials.Register(world, &models.Potential{
		ContextType:   "location",
		ContextID:     "loc_kitchen",
		PotentialType: "stranger_approach",
		Parameters:    map[string]string{"entity_kind": "person", "name": "敲门的陌生人"},
	})
	if err != nil {
		log.Fatalf("注册潜在可能性失败: %v", err)
	}
	if err := engine.worlds.CommitWorld(world); err != nil {
		log.Fatalf("保存世界失败: %v", err)
	}
}

func scheduleMessage(engine *demoEngine, worldID string) {
	unlock := engine.worlds.LockWorld(worldID)
	defer unlock()

	world, err := engine.worlds.GetWorld(worldID)
	if err != nil {
		log.Fatalf("读取世界失败: %v", err)
	}
	_, err = engine.infoEvents.Schedule(world, &models.InfoEvent{
		SenderRef: "agent_ma",
		Subject:   "下午的课题讨论",
		Body:      "下午三点实验室见，记得带上你的笔记。",
		DueTime:   world.BackgroundTime.Add(-time.Minute),
	})
	if err != nil {
		log.Fatalf("排程信息事件失败: %v", err)
	}
	if err := engine.worlds.CommitWorld(world); err != nil {
		log.Fatalf("保存世界失败: %v", err)
	}
}

func runSkipScenario(engine *demoEngine, worldID string) {
	fmt.Println("场景五：跳到明天早晨")

	before, _ := engine.worlds.GetWorld(worldID)
	target := before.BackgroundTime.Add(20 * time.Hour)

	result, err := engine.perception.RunCycle(context.Background(), worldID, &models.UserAction{
		Text:             "睡觉，直接跳到明天",
		Kind:             models.ActionKindTimeSkip,
		SkipToBackground: target.Unix(),
	})
	if err != nil {
		fmt.Printf("  循环失败: %v\n\n", err)
		return
	}

	after, _ := engine.worlds.GetWorld(worldID)
	fmt.Printf("  叙事: %s\n", result.Text)
	fmt.Printf("  后台时间: %s -> %s\n\n",
		before.BackgroundTime.Format(time.RFC3339), after.BackgroundTime.Format(time.RFC3339))
}
