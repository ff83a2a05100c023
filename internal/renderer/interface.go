// internal/renderer/interface.go
package renderer

import (
	"context"
	"errors"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的渲染服务提供者")

// RenderRequest 渲染请求：唯一的输入是语义上下文包
// 包里只有映射层产出的语义摘要，内部数值状态绝不出现
type RenderRequest struct {
	Context *models.SemanticContext `json:"context"`

	// 矛盾后的二次生成置位：附加更严格的事实约束
	Strict bool `json:"strict,omitempty"`

	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// RenderResponse 渲染响应：结构化结果与透传的元信息
type RenderResponse struct {
	Outcome      *models.PerceptionOutcome `json:"outcome"`
	RawText      string                    `json:"raw_text,omitempty"`
	TokensUsed   int                       `json:"tokens_used,omitempty"`
	ModelName    string                    `json:"model_name,omitempty"`
	ProviderName string                    `json:"provider_name,omitempty"`
}

// Provider 定义所有认知/渲染服务提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 执行一次感知渲染调用
	Render(ctx context.Context, req RenderRequest) (*RenderResponse, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
