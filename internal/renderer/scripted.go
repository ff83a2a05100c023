// internal/renderer/scripted.go
package renderer

import (
	"context"
	"errors"
	"sync"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func init() {
	Register("scripted", func() Provider {
		return &ScriptedProvider{}
	})
}

// ScriptedProvider 按脚本回放结果的提供者
// 供离线演示与测试使用：记录调用次数，不访问网络
type ScriptedProvider struct {
	mu       sync.Mutex
	script   []*models.PerceptionOutcome
	failures int // 先于脚本返回的失败次数
	calls    int
}

// NewScriptedProvider 创建脚本化提供者
func NewScriptedProvider(script ...*models.PerceptionOutcome) *ScriptedProvider {
	return &ScriptedProvider{script: script}
}

// FailFirst 让前 n 次调用失败（测试重试路径）
func (p *ScriptedProvider) FailFirst(n int) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
	return p
}

// Enqueue 追加一条脚本结果
func (p *ScriptedProvider) Enqueue(outcome *models.PerceptionOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, outcome)
}

// Calls 返回累计调用次数
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Initialize 实现 Provider 接口
func (p *ScriptedProvider) Initialize(config map[string]string) error {
	return nil
}

// GetName 实现 Provider 接口
func (p *ScriptedProvider) GetName() string {
	return "Scripted"
}

// Render 实现 Provider 接口：按顺序回放脚本
func (p *ScriptedProvider) Render(ctx context.Context, req RenderRequest) (*RenderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++

	if p.failures > 0 {
		p.failures--
		return nil, errors.New("脚本化失败")
	}

	if len(p.script) == 0 {
		return nil, errors.New("脚本已耗尽")
	}

	outcome := p.script[0]
	p.script = p.script[1:]

	return &RenderResponse{
		Outcome:      outcome,
		ProviderName: "scripted",
	}, nil
}
