// internal/services/potential_service.go
package services

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// PotentialService 潜在可能性的注册与解析
// 解析的随机源由情境键与世界刻度派生，同一世界状态重放得到同一结果
type PotentialService struct {
	entities *EntityService
}

// NewPotentialService 创建潜在可能性服务
func NewPotentialService(entities *EntityService) *PotentialService {
	return &PotentialService{entities: entities}
}

// Register 注册潜在可能性，按身份键去重
// 重复注册返回已存在的记录，不产生新条目
func (s *PotentialService) Register(world *models.WorldState, potential *models.Potential) (*models.Potential, error) {
	if potential == nil || potential.ContextType == "" || potential.ContextID == "" || potential.PotentialType == "" {
		return nil, errors.NewValidationError("潜在可能性缺少情境或类型", nil)
	}

	key := potential.IdentityKey()
	for _, existing := range world.Potentials {
		if existing.IdentityKey() == key {
			return existing, nil
		}
	}

	if potential.ID == "" {
		potential.ID = fmt.Sprintf("pot_%x", md5.Sum([]byte(key)))[:16]
	}
	potential.RegisteredAt = time.Now()
	world.Potentials = append(world.Potentials, potential)

	utils.GetLogger().Debug("注册潜在可能性", map[string]interface{}{
		"world_id":       world.ID,
		"potential_id":   potential.ID,
		"potential_type": potential.PotentialType,
		"context":        potential.ContextKey(),
	})
	return potential, nil
}

// PendingForContext 查询挂接在指定情境上且未解析的潜在可能性
// 纯查询，任何路径都不修改世界状态；结果按身份键排序保证稳定
func (s *PotentialService) PendingForContext(world *models.WorldState, contextType, contextID string) []*models.Potential {
	key := contextType + "|" + contextID
	var pending []*models.Potential
	for _, p := range world.Potentials {
		if !p.Resolved && p.ContextKey() == key {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].IdentityKey() < pending[j].IdentityKey()
	})
	return pending
}

// ResolveContext 解析指定情境上的全部待解析潜在可能性
// 策略顺序：复用既有持久实体 → 提升符合条件的临时实体 → 实例化新实体
func (s *PotentialService) ResolveContext(world *models.WorldState, contextType, contextID string) ([]*models.ResolvedPotential, error) {
	pending := s.PendingForContext(world, contextType, contextID)
	if len(pending) == 0 {
		return nil, nil
	}

	var resolved []*models.ResolvedPotential
	for _, p := range pending {
		rp, err := s.resolveOne(world, p)
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, rp)
	}
	return resolved, nil
}

func (s *PotentialService) resolveOne(world *models.WorldState, p *models.Potential) (*models.ResolvedPotential, error) {
	rng := s.seededRand(p.ContextKey(), world.Tick)

	// 1. 复用：已有符合该类型的持久实体
	if entityID := s.findReusable(world, p, rng); entityID != "" {
		p.Resolved = true
		return &models.ResolvedPotential{Potential: p, EntityID: entityID, Mode: models.ResolutionReused}, nil
	}

	// 2. 提升：某个临时实体恰好满足持久化条件
	if entityID, ruleID := s.findPromotable(world, p); entityID != "" {
		if _, err := s.entities.Promote(world, entityID, ruleID); err != nil {
			return nil, errors.NewPotentialResolutionError("提升临时实体失败", err)
		}
		p.Resolved = true
		return &models.ResolvedPotential{Potential: p, EntityID: entityID, Mode: models.ResolutionPromoted, RuleID: ruleID}, nil
	}

	// 3. 实例化：生成新的临时实体
	entity, err := s.instantiate(world, p, rng)
	if err != nil {
		return nil, err
	}
	p.Resolved = true
	return &models.ResolvedPotential{Potential: p, EntityID: entity.ID, Mode: models.ResolutionInstantiated}, nil
}

// seededRand 由情境键与世界刻度派生确定性随机源
func (s *PotentialService) seededRand(contextKey string, tick int64) *rand.Rand {
	sum := md5.Sum([]byte(fmt.Sprintf("%s#%d", contextKey, tick)))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	return rand.New(rand.NewSource(seed))
}

// findReusable 在当前位置之外寻找可复用的持久实体，候选按ID排序后确定性抽取
func (s *PotentialService) findReusable(world *models.WorldState, p *models.Potential, rng *rand.Rand) string {
	wantKind := p.Parameters["entity_kind"]
	if wantKind == "" {
		wantKind = string(models.EntityKindPerson)
	}

	var candidates []string
	for id, e := range world.Entities {
		if !e.IsPersistent() || string(e.Kind) != wantKind {
			continue
		}
		if id == world.OccupantID {
			continue
		}
		// 已在场的实体不作为新物化候选
		if world.IsPresent(id, world.CurrentLocationID) {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[rng.Intn(len(candidates))]
}

// findPromotable 寻找已满足持久化谓词的临时实体
func (s *PotentialService) findPromotable(world *models.WorldState, p *models.Potential) (string, string) {
	wantKind := p.Parameters["entity_kind"]
	if wantKind == "" {
		wantKind = string(models.EntityKindPerson)
	}

	var ids []string
	for id, e := range world.Entities {
		if e.IsPersistent() || string(e.Kind) != wantKind || id == world.OccupantID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e, _ := world.Entity(id)
		level, ruleID, err := s.entities.Classify(world, e)
		if err != nil {
			continue
		}
		if level == models.PersistencePersistent {
			return id, ruleID
		}
	}
	return "", ""
}

// instantiate 物化新的临时实体，ID由情境键与刻度派生
func (s *PotentialService) instantiate(world *models.WorldState, p *models.Potential, rng *rand.Rand) (*models.Entity, error) {
	kind := models.EntityKind(p.Parameters["entity_kind"])
	if kind == "" {
		kind = models.EntityKindPerson
	}

	entityID := fmt.Sprintf("ent_%x", md5.Sum([]byte(fmt.Sprintf("%s#%d#%d", p.IdentityKey(), world.Tick, rng.Int63()))))[:16]
	if _, exists := world.Entity(entityID); exists {
		return nil, errors.NewPotentialResolutionError(fmt.Sprintf("实体ID冲突: %s", entityID), nil)
	}

	entity := &models.Entity{
		ID:               entityID,
		Name:             p.Parameters["name"],
		Kind:             kind,
		PersistenceLevel: models.PersistenceEphemeral,
		Attributes:       map[string]string{"origin_potential": p.PotentialType},
		CreatedAtTick:    world.Tick,
		CreatedAt:        time.Now(),
		LastUpdated:      time.Now(),
	}
	if entity.Name == "" {
		entity.Name = p.PotentialType
	}

	if world.Entities == nil {
		world.Entities = make(map[string]*models.Entity)
	}
	world.Entities[entityID] = entity

	// 物化的实体进入当前位置
	if p.ContextType == "location" {
		if world.Presence == nil {
			world.Presence = make(map[string][]string)
		}
		world.Presence[p.ContextID] = append(world.Presence[p.ContextID], entityID)
	}

	utils.GetLogger().Debug("实例化新实体", map[string]interface{}{
		"world_id":       world.ID,
		"entity_id":      entityID,
		"potential_type": p.PotentialType,
	})
	return entity, nil
}
