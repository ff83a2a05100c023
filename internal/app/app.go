// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/di"
	"github.com/Corphon/PerceptionFlowMCP/internal/renderer"
	"github.com/Corphon/PerceptionFlowMCP/internal/services"
	"github.com/Corphon/PerceptionFlowMCP/internal/storage"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"

	// 渲染服务提供商自注册
	_ "github.com/Corphon/PerceptionFlowMCP/internal/renderer/providers/anthropic"
	_ "github.com/Corphon/PerceptionFlowMCP/internal/renderer/providers/openai"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
// 路由层只从容器取用，不自行创建服务
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 1. 存储层
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. 世界仓库
	worldService, err := services.NewWorldService(filepath.Join(cfg.DataDir, "worlds"))
	if err != nil {
		return fmt.Errorf("初始化世界服务失败: %w", err)
	}
	container.Register("world", worldService)

	// 3. 领域服务
	entityService := services.NewEntityService(cfg.Engine.PromotionOccurrenceThreshold)
	container.Register("entity", entityService)

	influenceService := services.NewInfluenceService()
	container.Register("influence", influenceService)

	potentialService := services.NewPotentialService(entityService)
	container.Register("potential", potentialService)

	triggerService := services.NewTriggerService(cfg.Engine, influenceService, potentialService)
	container.Register("trigger", triggerService)

	infoEventService := services.NewInfoEventService(entityService)
	container.Register("info_event", infoEventService)

	timeflowService := services.NewTimeflowService(influenceService)
	container.Register("timeflow", timeflowService)

	// 4. 协作方：逻辑层与映射层
	logicLayer := services.NewDefaultLogicLayer()
	container.Register("logic", logicLayer)

	mapper := services.NewSemanticMapper()
	container.Register("mapper", mapper)

	consequenceService := services.NewConsequenceService(cfg.Engine, logicLayer, entityService, influenceService)
	container.Register("consequence", consequenceService)

	// 5. 渲染客户端
	rendererClient, err := buildRendererClient(cfg)
	if err != nil {
		return fmt.Errorf("初始化渲染客户端失败: %w", err)
	}
	container.Register("renderer", rendererClient)

	// 6. 审计
	auditService := services.NewAuditService(fileStorage, filepath.Join(cfg.DataDir, "audit"))
	container.Register("audit", auditService)

	// 7. 感知编排器（依赖以上全部）
	perceptionService := services.NewPerceptionService(
		cfg.Engine,
		worldService,
		triggerService,
		potentialService,
		entityService,
		influenceService,
		infoEventService,
		timeflowService,
		consequenceService,
		auditService,
		mapper,
		rendererClient,
	)
	container.Register("perception", perceptionService)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"services": len(container.GetNames()),
		"renderer": rendererClient.ProviderName(),
	})
	return nil
}

// buildRendererClient 根据配置创建渲染客户端
// 未配置提供商时使用脚本化提供商，便于本地运行与测试
func buildRendererClient(cfg *config.AppConfig) (*renderer.Client, error) {
	providerName := cfg.RendererProvider
	if providerName == "" {
		providerName = "scripted"
	}

	provider, err := renderer.GetProvider(providerName, cfg.RendererConfig)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Engine.RendererTimeoutSeconds) * time.Second
	return renderer.NewClient(provider, providerName, timeout, cfg.Engine.RendererRetryBudget), nil
}
