// internal/api/handlers.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/PerceptionFlowMCP/internal/config"
	apperrors "github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/renderer"
	"github.com/Corphon/PerceptionFlowMCP/internal/services"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// Handler API处理器
type Handler struct {
	WorldService      *services.WorldService
	PerceptionService *services.PerceptionService
	PotentialService  *services.PotentialService
	InfoEventService  *services.InfoEventService
	InfluenceService  *services.InfluenceService
	RendererClient    *renderer.Client
	Response          *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	worlds *services.WorldService,
	perception *services.PerceptionService,
	potentials *services.PotentialService,
	infoEvents *services.InfoEventService,
	influence *services.InfluenceService,
	client *renderer.Client,
) *Handler {
	return &Handler{
		WorldService:      worlds,
		PerceptionService: perception,
		PotentialService:  potentials,
		InfoEventService:  infoEvents,
		InfluenceService:  influence,
		RendererClient:    client,
		Response:          NewResponseHelper(),
	}
}

// CreateWorldRequest 创建世界请求
type CreateWorldRequest struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	OccupantID        string `json:"occupant_id" binding:"required"`
	CurrentLocationID string `json:"current_location_id"`
}

// CreateWorld 创建世界
func (h *Handler) CreateWorld(c *gin.Context) {
	var req CreateWorldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	world := &models.WorldState{
		ID:                req.ID,
		UserID:            req.UserID,
		OccupantID:        req.OccupantID,
		CurrentLocationID: req.CurrentLocationID,
	}
	created, err := h.WorldService.CreateWorld(world)
	if err != nil {
		if apperrors.IsValidationError(err) {
			h.Response.BadRequest(c, err.Error())
			return
		}
		h.Response.InternalError(c, "创建世界失败", err.Error())
		return
	}

	h.Response.Created(c, created, "世界创建成功")
}

// GetWorlds 列出全部世界ID
func (h *Handler) GetWorlds(c *gin.Context) {
	ids, err := h.WorldService.ListWorldIDs()
	if err != nil {
		h.Response.InternalError(c, "读取世界列表失败", err.Error())
		return
	}
	h.Response.Success(c, gin.H{"world_ids": ids})
}

// GetWorld 获取世界状态
func (h *Handler) GetWorld(c *gin.Context) {
	world, err := h.WorldService.GetWorld(c.Param("id"))
	if err != nil {
		h.Response.NotFound(c, "世界", err.Error())
		return
	}
	h.Response.Success(c, world)
}

// CycleRequest 感知循环请求：占据者动作可选（纯后台刻）
type CycleRequest struct {
	Action *models.UserAction `json:"action,omitempty"`
}

// CycleResponse 感知循环响应
type CycleResponse struct {
	Result   *models.PerceptionResult `json:"result"`
	Silent   bool                     `json:"silent"`
	Fallback bool                     `json:"fallback,omitempty"`
}

// RunCycle 执行一次感知循环
// 远程渲染服务耗尽重试预算时降级为中性占位文本，世界状态保持原样
func (h *Handler) RunCycle(c *gin.Context) {
	worldID := c.Param("id")

	var req CycleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	result, err := h.PerceptionService.RunCycle(c.Request.Context(), worldID, req.Action)
	if err != nil {
		switch {
		case apperrors.IsNotFoundError(err):
			h.Response.NotFound(c, "世界", err.Error())
		case apperrors.IsRemoteServiceError(err):
			// 渲染服务不可用：中性降级，不暴露内部错误细节
			utils.GetLogger().Error("渲染服务不可用，返回中性降级文本", map[string]interface{}{
				"world_id": worldID,
				"error":    err.Error(),
			})
			h.Response.Success(c, CycleResponse{
				Result: &models.PerceptionResult{
					WorldID:     worldID,
					Text:        "The moment passes quietly; nothing around you demands attention.",
					CompletedAt: time.Now(),
				},
				Fallback: true,
			})
		case apperrors.IsValidationError(err), apperrors.IsTimeViolationError(err):
			h.Response.BadRequest(c, err.Error())
		default:
			h.Response.InternalError(c, "感知循环失败", err.Error())
		}
		return
	}

	resp := CycleResponse{Result: result, Silent: result.IsNone()}
	if !result.IsNone() {
		broadcastCycleResult(worldID, result)
	}
	h.Response.Success(c, resp)
}

// AdvanceRequest 后台时间推进请求
type AdvanceRequest struct {
	Minutes int64 `json:"minutes" binding:"required,min=1"`
}

// AdvanceBackground 推进后台时间（不经过感知循环的纯后台刻）
func (h *Handler) AdvanceBackground(c *gin.Context) {
	var req AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	worldID := c.Param("id")
	if err := h.WorldService.AdvanceBackground(worldID, time.Duration(req.Minutes)*time.Minute, h.InfluenceService); err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "世界", err.Error())
			return
		}
		h.Response.InternalError(c, "推进后台时间失败", err.Error())
		return
	}
	h.Response.Success(c, gin.H{"advanced_minutes": req.Minutes})
}

// RegisterPotentialRequest 注册潜在可能性请求
type RegisterPotentialRequest struct {
	ContextType   string            `json:"context_type" binding:"required"`
	ContextID     string            `json:"context_id" binding:"required"`
	PotentialType string            `json:"potential_type" binding:"required"`
	Parameters    map[string]string `json:"parameters,omitempty"`
}

// RegisterPotential 在情境上注册潜在可能性
func (h *Handler) RegisterPotential(c *gin.Context) {
	var req RegisterPotentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	worldID := c.Param("id")
	unlock := h.WorldService.LockWorld(worldID)
	defer unlock()

	world, err := h.WorldService.GetWorld(worldID)
	if err != nil {
		h.Response.NotFound(c, "世界", err.Error())
		return
	}

	potential, err := h.PotentialService.Register(world, &models.Potential{
		ContextType:   req.ContextType,
		ContextID:     req.ContextID,
		PotentialType: req.PotentialType,
		Parameters:    req.Parameters,
	})
	if err != nil {
		h.Response.BadRequest(c, err.Error())
		return
	}
	if err := h.WorldService.CommitWorld(world); err != nil {
		h.Response.InternalError(c, "保存世界状态失败", err.Error())
		return
	}

	h.Response.Created(c, potential, "潜在可能性已注册")
}

// ScheduleInfoEventRequest 排程信息事件请求
type ScheduleInfoEventRequest struct {
	SenderRef  string `json:"sender_ref" binding:"required"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	DueTimeUTC int64  `json:"due_time_utc" binding:"required"`
}

// ScheduleInfoEvent 排入一条信息事件
func (h *Handler) ScheduleInfoEvent(c *gin.Context) {
	var req ScheduleInfoEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	worldID := c.Param("id")
	unlock := h.WorldService.LockWorld(worldID)
	defer unlock()

	world, err := h.WorldService.GetWorld(worldID)
	if err != nil {
		h.Response.NotFound(c, "世界", err.Error())
		return
	}

	event, err := h.InfoEventService.Schedule(world, &models.InfoEvent{
		SenderRef: req.SenderRef,
		Subject:   req.Subject,
		Body:      req.Body,
		DueTime:   time.Unix(req.DueTimeUTC, 0),
	})
	if err != nil {
		h.Response.BadRequest(c, err.Error())
		return
	}
	if err := h.WorldService.CommitWorld(world); err != nil {
		h.Response.InternalError(c, "保存世界状态失败", err.Error())
		return
	}

	h.Response.Created(c, event, "信息事件已排程")
}

// GetEntity 获取实体
func (h *Handler) GetEntity(c *gin.Context) {
	world, err := h.WorldService.GetWorld(c.Param("id"))
	if err != nil {
		h.Response.NotFound(c, "世界", err.Error())
		return
	}
	entity, ok := world.Entity(c.Param("entity_id"))
	if !ok {
		h.Response.NotFound(c, "实体")
		return
	}
	h.Response.Success(c, entity)
}

// GetInfluenceField 获取代理人影响场快照（调试用，只读）
func (h *Handler) GetInfluenceField(c *gin.Context) {
	world, err := h.WorldService.GetWorld(c.Param("id"))
	if err != nil {
		h.Response.NotFound(c, "世界", err.Error())
		return
	}
	h.Response.Success(c, h.InfluenceService.Query(world, c.Param("agent_id")))
}

// GetMetrics 引擎指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// GetRendererStatus 渲染服务状态
func (h *Handler) GetRendererStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	h.Response.Success(c, gin.H{
		"provider":            h.RendererClient.ProviderName(),
		"configured_provider": cfg.RendererProvider,
		"available_providers": renderer.ListProviders(),
	})
}

// UpdateRendererConfigRequest 更新渲染服务配置请求
type UpdateRendererConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config"`
}

// UpdateRendererConfig 切换渲染服务提供商
func (h *Handler) UpdateRendererConfig(c *gin.Context) {
	var req UpdateRendererConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.RendererClient.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.BadRequest(c, "切换渲染服务失败", err.Error())
		return
	}
	if err := config.UpdateRendererConfig(req.Provider, req.Config); err != nil {
		h.Response.InternalError(c, "保存渲染服务配置失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"provider": req.Provider}, "渲染服务配置已更新")
}

// GetHealth 健康检查
func (h *Handler) GetHealth(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
