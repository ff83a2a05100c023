// internal/renderer/client_test.go
package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func TestClientRenderFirstAttemptSucceeds(t *testing.T) {
	provider := NewScriptedProvider(&models.PerceptionOutcome{Utterance: "……"})
	client := NewClient(provider, "scripted", time.Second, 3)

	outcome, attempts, err := client.Render(context.Background(), RenderRequest{})
	if err != nil {
		t.Fatalf("渲染不应失败: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("首次成功应只消耗一次尝试，得到 %d", attempts)
	}
	if outcome.Utterance != "……" {
		t.Fatalf("脚本结果应原样返回，得到 %+v", outcome)
	}
}

func TestClientRenderRetriesAfterFailure(t *testing.T) {
	provider := NewScriptedProvider(&models.PerceptionOutcome{Utterance: "第二次才到。"}).FailFirst(1)
	client := NewClient(provider, "scripted", time.Second, 2)

	outcome, attempts, err := client.Render(context.Background(), RenderRequest{})
	if err != nil {
		t.Fatalf("预算内重试应成功: %v", err)
	}
	if attempts != 2 || provider.Calls() != 2 {
		t.Fatalf("应在第二次尝试成功: attempts=%d calls=%d", attempts, provider.Calls())
	}
	if outcome.Utterance != "第二次才到。" {
		t.Fatalf("脚本结果不符: %+v", outcome)
	}
}

func TestClientRenderExhaustsBudget(t *testing.T) {
	provider := NewScriptedProvider().FailFirst(5)
	client := NewClient(provider, "scripted", time.Second, 1)

	_, attempts, err := client.Render(context.Background(), RenderRequest{})
	if !errors.IsRemoteServiceError(err) {
		t.Fatalf("预算耗尽应为 remote_service_failure，得到 %v", err)
	}
	if attempts != 1 || provider.Calls() != 1 {
		t.Fatalf("预算为1时只应尝试一次: attempts=%d calls=%d", attempts, provider.Calls())
	}
}

func TestClientRenderStopsOnCancelledContext(t *testing.T) {
	provider := NewScriptedProvider().FailFirst(5)
	client := NewClient(provider, "scripted", time.Second, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.Render(ctx, RenderRequest{})
	if !errors.IsRemoteServiceError(err) {
		t.Fatalf("取消后应为 remote_service_failure，得到 %v", err)
	}
	if provider.Calls() != 1 {
		t.Fatalf("上下文取消后不应继续重试，调用了%d次", provider.Calls())
	}
}

func TestClientRenderWithoutProvider(t *testing.T) {
	client := NewClient(nil, "none", time.Second, 1)

	_, attempts, err := client.Render(context.Background(), RenderRequest{})
	if !errors.IsRemoteServiceError(err) {
		t.Fatalf("未配置提供者应为 remote_service_failure，得到 %v", err)
	}
	if attempts != 0 {
		t.Fatalf("未配置提供者不应消耗尝试次数，得到 %d", attempts)
	}
}
