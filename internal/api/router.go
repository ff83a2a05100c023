// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	"github.com/Corphon/PerceptionFlowMCP/internal/di"
	"github.com/Corphon/PerceptionFlowMCP/internal/renderer"
	"github.com/Corphon/PerceptionFlowMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	worldService, ok := container.Get("world").(*services.WorldService)
	if !ok {
		return nil, fmt.Errorf("世界服务未正确初始化")
	}
	perceptionService, ok := container.Get("perception").(*services.PerceptionService)
	if !ok {
		return nil, fmt.Errorf("感知服务未正确初始化")
	}
	potentialService, ok := container.Get("potential").(*services.PotentialService)
	if !ok {
		return nil, fmt.Errorf("潜在可能性服务未正确初始化")
	}
	infoEventService, ok := container.Get("info_event").(*services.InfoEventService)
	if !ok {
		return nil, fmt.Errorf("信息事件服务未正确初始化")
	}
	influenceService, ok := container.Get("influence").(*services.InfluenceService)
	if !ok {
		return nil, fmt.Errorf("影响服务未正确初始化")
	}
	rendererClient, ok := container.Get("renderer").(*renderer.Client)
	if !ok {
		return nil, fmt.Errorf("渲染客户端未正确初始化")
	}

	handler := NewHandler(
		worldService,
		perceptionService,
		potentialService,
		infoEventService,
		influenceService,
		rendererClient,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// WebSocket 结果流
	r.GET("/ws/worlds/:id", handler.WorldStream)

	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		api.GET("/health", handler.GetHealth)
		api.GET("/metrics", handler.GetMetrics)

		worldsGroup := api.Group("/worlds")
		{
			worldsGroup.GET("", handler.GetWorlds)
			worldsGroup.POST("", handler.CreateWorld)
			worldsGroup.GET("/:id", handler.GetWorld)

			worldsGroup.POST("/:id/cycle", CycleRateLimit(), handler.RunCycle)
			worldsGroup.POST("/:id/advance", handler.AdvanceBackground)
			worldsGroup.POST("/:id/potentials", handler.RegisterPotential)
			worldsGroup.POST("/:id/info-events", handler.ScheduleInfoEvent)
			worldsGroup.GET("/:id/entities/:entity_id", handler.GetEntity)
			worldsGroup.GET("/:id/influence/:agent_id", handler.GetInfluenceField)
		}

		rendererGroup := api.Group("/renderer")
		{
			rendererGroup.GET("/status", handler.GetRendererStatus)
			rendererGroup.PUT("/config", handler.UpdateRendererConfig)
		}

		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}
