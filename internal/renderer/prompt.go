// internal/renderer/prompt.go
package renderer

import (
	"strings"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

// BuildSystemPrompt 构建系统提示词
// 约束渲染服务：只基于给定语义上下文，输出纯JSON，禁止任何数值字段
func BuildSystemPrompt(strict bool) string {
	var sb strings.Builder
	sb.WriteString("You are the cognition and rendering layer of a simulated world. ")
	sb.WriteString("Respond ONLY with a JSON object of this shape: ")
	sb.WriteString(`{"utterance": string or null, "action": string or null, "speaker_id": string, `)
	sb.WriteString(`"stance_shifts": [{"target": string, "description": string}], `)
	sb.WriteString(`"intention_updates": [{"operation": "create"|"boost"|"lower"|"drop", "type": string, "target": string, "horizon": string, "description": string}], `)
	sb.WriteString(`"structured_physical_changes": [{"entity_id": string, "attribute": string, "value": string}]}. `)
	sb.WriteString("Never output numeric values anywhere; express every change as a descriptive word. ")
	sb.WriteString("Never mention entities that are not listed in the context. ")
	sb.WriteString("Never invent facts about the world.")

	if strict {
		sb.WriteString(" STRICT MODE: your previous answer contradicted the world state. ")
		sb.WriteString("Reference ONLY the participant ids listed in the context, and make no claims about presence, possession or location beyond what the scene summary states.")
	}

	return sb.String()
}

// BuildUserPrompt 从语义上下文包构建用户提示词
func BuildUserPrompt(sc *models.SemanticContext) string {
	var sb strings.Builder

	sb.WriteString("Scene: ")
	sb.WriteString(sc.SceneSummary)
	sb.WriteString("\nTime of day: ")
	sb.WriteString(sc.TimeOfDay)
	sb.WriteString("\n")

	if sc.OccupantInput != "" {
		sb.WriteString("Occupant input: ")
		sb.WriteString(sc.OccupantInput)
		sb.WriteString("\n")
	}

	if len(sc.Triggers) > 0 {
		sb.WriteString("Why this moment is rendered: ")
		sb.WriteString(strings.Join(sc.Triggers, "; "))
		sb.WriteString("\n")
	}

	if len(sc.Participants) > 0 {
		sb.WriteString("Participants:\n")
		for _, p := range sc.Participants {
			sb.WriteString("- ")
			sb.WriteString(p.ID)
			sb.WriteString(" (")
			sb.WriteString(p.Name)
			sb.WriteString(", ")
			sb.WriteString(p.Kind)
			sb.WriteString(")")
			if p.MoodSummary != "" {
				sb.WriteString(" mood: ")
				sb.WriteString(p.MoodSummary)
			}
			if p.TensionSummary != "" {
				sb.WriteString(" tension: ")
				sb.WriteString(p.TensionSummary)
			}
			if p.RelationSummary != "" {
				sb.WriteString(" relation: ")
				sb.WriteString(p.RelationSummary)
			}
			sb.WriteString("\n")
		}
	}

	if len(sc.ResolvedHooks) > 0 {
		sb.WriteString("Background possibilities now present: ")
		sb.WriteString(strings.Join(sc.ResolvedHooks, "; "))
		sb.WriteString("\n")
	}

	if len(sc.InfoNotices) > 0 {
		sb.WriteString("Incoming notices: ")
		sb.WriteString(strings.Join(sc.InfoNotices, "; "))
		sb.WriteString("\n")
	}

	if len(sc.Constraints) > 0 {
		sb.WriteString("Constraints: ")
		sb.WriteString(strings.Join(sc.Constraints, "; "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// ExtractJSON 从模型输出中截取JSON对象（容忍围绕的markdown围栏）
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		text = strings.TrimPrefix(text, "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
