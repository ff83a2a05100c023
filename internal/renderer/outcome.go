// internal/renderer/outcome.go
package renderer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

// DecodeOutcome 解析并校验渲染服务返回的结构化结果
// 响应模式里不存在任何合法的数值字段：出现 JSON 数字即视为模式违规
func DecodeOutcome(raw []byte) (*models.PerceptionOutcome, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("解析渲染结果失败: %w", err)
	}

	if path, found := findNumber(generic, "$"); found {
		return nil, fmt.Errorf("渲染结果模式违规: %s 处出现数值字段", path)
	}

	var outcome models.PerceptionOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("渲染结果结构不符: %w", err)
	}

	if err := validateOutcome(&outcome); err != nil {
		return nil, err
	}

	return &outcome, nil
}

// findNumber 深度遍历查找 JSON 数字，返回首个出现位置
func findNumber(v interface{}, path string) (string, bool) {
	switch val := v.(type) {
	case json.Number:
		return path, true
	case map[string]interface{}:
		for k, child := range val {
			if p, found := findNumber(child, path+"."+k); found {
				return p, true
			}
		}
	case []interface{}:
		for i, child := range val {
			if p, found := findNumber(child, fmt.Sprintf("%s[%d]", path, i)); found {
				return p, true
			}
		}
	}
	return "", false
}

// validateOutcome 校验字段取值
func validateOutcome(outcome *models.PerceptionOutcome) error {
	for _, shift := range outcome.StanceShifts {
		if shift.Target == "" {
			return fmt.Errorf("渲染结果模式违规: stance_shift 缺少 target")
		}
		if shift.Description == "" {
			return fmt.Errorf("渲染结果模式违规: stance_shift 缺少 description")
		}
	}

	for _, update := range outcome.IntentionUpdates {
		if !models.IntentionOperations[update.Operation] {
			return fmt.Errorf("渲染结果模式违规: 非法意图操作 %q", update.Operation)
		}
	}

	for _, change := range outcome.PhysicalChanges {
		if change.EntityID == "" || change.Attribute == "" {
			return fmt.Errorf("渲染结果模式违规: 物理变更缺少实体或属性")
		}
	}

	return nil
}
