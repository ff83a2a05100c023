// internal/models/audit.go
package models

import "time"

// ClassificationNote 一次分类/提升判定及其命中的规则（审计用）
type ClassificationNote struct {
	EntityID string           `json:"entity_id"`
	Level    PersistenceLevel `json:"level"`
	RuleID   string           `json:"rule_id"`
	Promoted bool             `json:"promoted,omitempty"`
}

// AuditRecord 每个感知循环追加一条的审计记录
// 只写不读，绝不回流到面向占据者的任何路径
type AuditRecord struct {
	CycleID            string               `json:"cycle_id"`
	WorldID            string               `json:"world_id"`
	Timestamp          time.Time            `json:"timestamp"`
	Triggers           []TriggerDecision    `json:"triggers,omitempty"`
	ResolvedPotentials []ResolvedPotential  `json:"resolved_potentials,omitempty"`
	Classifications    []ClassificationNote `json:"classifications,omitempty"`
	OutcomeSummary     string               `json:"outcome_summary,omitempty"`
	RendererAttempts   int                  `json:"renderer_attempts,omitempty"`
	Failure            string               `json:"failure,omitempty"`
}
