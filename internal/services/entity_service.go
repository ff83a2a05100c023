// internal/services/entity_service.go
package services

import (
	"fmt"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// 分类规则ID（审计记录引用这些ID）
const (
	RuleAlreadyPersistent    = "already_persistent"
	RuleCoreRelationalRole   = "core_relational_role"
	RuleRecurringObligation  = "recurring_obligation"
	RuleSalientOccurrences   = "salient_occurrences"
	RuleBiographicalRef      = "biographical_reference"
	RuleDefaultEphemeral     = "default_ephemeral"
	RuleAmbiguousDefault     = "ambiguous_default_ephemeral"
)

// EntityService 实体持久化分类器
// 有序谓词链，首个命中的规则决定级别；每个判定都可归因到规则ID
type EntityService struct {
	// 显著遭遇达到该次数即满足持久化条件
	PromotionOccurrenceThreshold int
}

// NewEntityService 创建实体分类服务
func NewEntityService(promotionThreshold int) *EntityService {
	if promotionThreshold <= 0 {
		promotionThreshold = 3
	}
	return &EntityService{PromotionOccurrenceThreshold: promotionThreshold}
}

// classificationRule 单条分类谓词
type classificationRule struct {
	id      string
	matches func(world *models.WorldState, entity *models.Entity) bool
}

// 谓词链按声明顺序求值，首个命中者生效
func (s *EntityService) rules() []classificationRule {
	return []classificationRule{
		{RuleAlreadyPersistent, func(_ *models.WorldState, e *models.Entity) bool {
			return e.PersistenceLevel == models.PersistencePersistent
		}},
		{RuleCoreRelationalRole, func(w *models.WorldState, e *models.Entity) bool {
			for _, rel := range w.RelationsOf(e.ID) {
				if models.CoreRelationKinds[rel.Kind] {
					return true
				}
			}
			return false
		}},
		{RuleRecurringObligation, func(_ *models.WorldState, e *models.Entity) bool {
			return e.Attributes["schedule"] != "" || e.Attributes["obligation"] != ""
		}},
		{RuleSalientOccurrences, func(_ *models.WorldState, e *models.Entity) bool {
			return e.SalientEncounters >= s.PromotionOccurrenceThreshold
		}},
		{RuleBiographicalRef, func(w *models.WorldState, e *models.Entity) bool {
			for _, mem := range w.BiographicalMemory {
				if mem.ReferencesEntity(e.ID) {
					return true
				}
			}
			return false
		}},
	}
}

// Classify 对实体做持久化分类，返回级别与命中的规则ID
// 谓词链无法得出结论时默认临时实体并返回 classification_ambiguity，
// 调用方记录审计，绝不静默提升
func (s *EntityService) Classify(world *models.WorldState, entity *models.Entity) (models.PersistenceLevel, string, error) {
	if entity == nil || entity.Kind == "" {
		return models.PersistenceEphemeral, RuleAmbiguousDefault,
			errors.NewClassificationAmbiguityError("实体缺少类别信息，谓词链无法判定", nil)
	}

	for _, rule := range s.rules() {
		if rule.matches(world, entity) {
			return models.PersistencePersistent, rule.id, nil
		}
	}

	return models.PersistenceEphemeral, RuleDefaultEphemeral, nil
}

// Promote 把实体提升为持久级别
// 幂等：重复调用为空操作；严格单调：任何路径都不会把持久实体降回临时
func (s *EntityService) Promote(world *models.WorldState, entityID, ruleID string) (bool, error) {
	entity, ok := world.Entity(entityID)
	if !ok {
		return false, errors.NewNotFoundError(fmt.Sprintf("实体 %s 不存在", entityID), nil)
	}

	if entity.PersistenceLevel == models.PersistencePersistent {
		return false, nil
	}

	entity.PersistenceLevel = models.PersistencePersistent
	entity.PromotedByRule = ruleID
	entity.LastUpdated = time.Now()

	utils.GetLogger().Info("实体提升为持久级别", map[string]interface{}{
		"world_id":  world.ID,
		"entity_id": entityID,
		"rule_id":   ruleID,
	})

	return true, nil
}

// RecordEncounter 记录一次显著遭遇并在达到条件时提升
// 返回本次判定的审计记录
func (s *EntityService) RecordEncounter(world *models.WorldState, entityID string) (*models.ClassificationNote, error) {
	entity, ok := world.Entity(entityID)
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("实体 %s 不存在", entityID), nil)
	}

	if !entity.IsPersistent() {
		entity.SalientEncounters++
		entity.LastUpdated = time.Now()
	}

	level, ruleID, err := s.Classify(world, entity)
	note := &models.ClassificationNote{
		EntityID: entityID,
		Level:    level,
		RuleID:   ruleID,
	}
	if err != nil {
		utils.GetLogger().Warn("实体分类不明确，默认临时级别", map[string]interface{}{
			"world_id":  world.ID,
			"entity_id": entityID,
		})
		return note, nil
	}

	if level == models.PersistencePersistent && !entity.IsPersistent() {
		promoted, perr := s.Promote(world, entityID, ruleID)
		if perr != nil {
			return note, perr
		}
		note.Promoted = promoted
	}

	return note, nil
}
