// internal/renderer/client.go
package renderer

import (
	"context"
	"sync"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// Client 认知/渲染服务客户端
// 管线中唯一允许阻塞I/O的环节：带超时与有限重试预算
type Client struct {
	providerMutex sync.RWMutex
	provider      Provider
	providerName  string

	timeout     time.Duration
	retryBudget int

	metrics *utils.EngineMetrics
}

// NewClient 创建渲染服务客户端
func NewClient(provider Provider, providerName string, timeout time.Duration, retryBudget int) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &Client{
		provider:     provider,
		providerName: providerName,
		timeout:      timeout,
		retryBudget:  retryBudget,
		metrics:      utils.NewEngineMetrics(),
	}
}

// UpdateProvider 热切换提供者
func (c *Client) UpdateProvider(providerName string, config map[string]string) error {
	provider, err := GetProvider(providerName, config)
	if err != nil {
		return err
	}

	c.providerMutex.Lock()
	defer c.providerMutex.Unlock()
	c.provider = provider
	c.providerName = providerName
	return nil
}

// ProviderName 返回当前提供者名称
func (c *Client) ProviderName() string {
	c.providerMutex.RLock()
	defer c.providerMutex.RUnlock()
	return c.providerName
}

// Render 执行一次渲染调用，在重试预算内退避重试
// 预算耗尽后返回 remote_service_failure，调用方保证不产生部分提交
func (c *Client) Render(ctx context.Context, req RenderRequest) (*models.PerceptionOutcome, int, error) {
	c.providerMutex.RLock()
	provider := c.provider
	providerName := c.providerName
	c.providerMutex.RUnlock()

	if provider == nil {
		return nil, 0, errors.NewRemoteServiceError("渲染服务未配置提供者", nil)
	}

	logger := utils.GetLogger()

	var lastErr error
	for attempt := 1; attempt <= c.retryBudget; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		resp, err := provider.Render(attemptCtx, req)
		cancel()

		c.metrics.RecordRendererRequest(providerName, time.Since(start), err == nil)

		if err == nil && resp != nil && resp.Outcome != nil {
			return resp.Outcome, attempt, nil
		}

		if err == nil {
			err = errors.NewRemoteServiceError("渲染服务返回空结果", nil)
		}
		lastErr = err
		logger.Warnf("渲染调用失败(第%d次/共%d次): %v", attempt, c.retryBudget, err)

		// 父级上下文已取消时没有继续重试的意义
		if ctx.Err() != nil {
			break
		}

		if attempt < c.retryBudget {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
			}
		}
	}

	return nil, c.retryBudget, errors.NewRemoteServiceError("渲染服务重试预算耗尽", lastErr)
}
