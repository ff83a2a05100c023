// internal/models/potential.go
package models

import (
	"sort"
	"strings"
	"time"
)

// Potential 表示挂接在某个情境上的潜在可能性
// 注册后处于未实现状态，解析时才物化为具体实体或事件
type Potential struct {
	ID            string            `json:"id"`
	ContextType   string            `json:"context_type"` // location, role, system
	ContextID     string            `json:"context_id"`
	PotentialType string            `json:"potential_type"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Resolved      bool              `json:"resolved"`
	RegisteredAt  time.Time         `json:"registered_at"`
}

// IdentityKey 返回潜在可能性的身份键
// 注册去重与确定性排序都依赖该键
func (p *Potential) IdentityKey() string {
	keys := make([]string, 0, len(p.Parameters))
	for k := range p.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(p.ContextType)
	sb.WriteString("|")
	sb.WriteString(p.ContextID)
	sb.WriteString("|")
	sb.WriteString(p.PotentialType)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(p.Parameters[k])
	}
	return sb.String()
}

// ContextKey 返回情境键（不含类型与参数）
func (p *Potential) ContextKey() string {
	return p.ContextType + "|" + p.ContextID
}

// 解析模式
const (
	ResolutionReused       = "reused"
	ResolutionPromoted     = "promoted"
	ResolutionInstantiated = "instantiated"
)

// ResolvedPotential 解析结果：潜在可能性与其物化出的实体
type ResolvedPotential struct {
	Potential *Potential `json:"potential"`
	EntityID  string     `json:"entity_id"`
	Mode      string     `json:"mode"` // reused, promoted, instantiated
	RuleID    string     `json:"rule_id,omitempty"`
}

// 标记为打断型的潜在可能性类型
// 解析到这些类型会产生 interruption 触发
var InterruptivePotentialTypes = map[string]bool{
	"stranger_approach":  true,
	"sudden_malfunction": true,
	"urgent_summons":     true,
}
