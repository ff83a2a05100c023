// internal/services/world_service.go
package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/storage"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// WorldService 世界引擎访问层：世界状态的加载、提交与单写者锁
type WorldService struct {
	BasePath  string
	FileCache *storage.FileStorage

	// 并发控制：感知循环期间对单个世界串行写
	worldLocks sync.Map // worldID -> *sync.Mutex

	cacheMutex sync.RWMutex
	worlds     map[string]*models.WorldState
}

// NewWorldService 创建世界服务
func NewWorldService(basePath string) (*WorldService, error) {
	if basePath == "" {
		basePath = "data/worlds"
	}

	fileStorage, err := storage.NewFileStorage(basePath)
	if err != nil {
		return nil, fmt.Errorf("创建文件存储失败: %w", err)
	}

	return &WorldService{
		BasePath:  basePath,
		FileCache: fileStorage,
		worlds:    make(map[string]*models.WorldState),
	}, nil
}

// LockWorld 获取世界写锁，返回解锁函数
// 一个感知循环从触发评估到后果提交全程持有该锁
func (s *WorldService) LockWorld(worldID string) func() {
	value, _ := s.worldLocks.LoadOrStore(worldID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateWorld 显式创作一个新世界
func (s *WorldService) CreateWorld(world *models.WorldState) (*models.WorldState, error) {
	if world == nil {
		return nil, errors.NewValidationError("世界状态不能为空", nil)
	}
	if strings.TrimSpace(world.OccupantID) == "" {
		return nil, errors.NewValidationError("世界必须指定占据者", nil)
	}
	if world.ID == "" {
		world.ID = utils.GenerateID("world")
	}
	if world.Entities == nil {
		world.Entities = make(map[string]*models.Entity)
	}
	if world.Presence == nil {
		world.Presence = make(map[string][]string)
	}
	if world.InfluenceFields == nil {
		world.InfluenceFields = make(map[string]*models.InfluenceField)
	}
	if world.RelationScores == nil {
		world.RelationScores = make(map[string]float64)
	}
	if world.LastInitiative == nil {
		world.LastInitiative = make(map[string]time.Time)
	}

	now := time.Now()
	if world.BackgroundTime.IsZero() {
		world.BackgroundTime = now
	}
	if world.ExperiencedTime.IsZero() {
		world.ExperiencedTime = world.BackgroundTime
	}
	world.CreatedAt = now
	world.LastUpdated = now

	if err := s.saveWorld(world); err != nil {
		return nil, err
	}

	s.cacheMutex.Lock()
	s.worlds[world.ID] = world
	s.cacheMutex.Unlock()

	return world, nil
}

// GetWorld 获取权威世界状态
func (s *WorldService) GetWorld(worldID string) (*models.WorldState, error) {
	s.cacheMutex.RLock()
	world, exists := s.worlds[worldID]
	s.cacheMutex.RUnlock()

	if exists {
		return world, nil
	}

	var loaded models.WorldState
	if err := s.FileCache.LoadJSONFile(worldID, "world.json", &loaded); err != nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("世界 %s 不存在", worldID), err)
	}

	s.cacheMutex.Lock()
	s.worlds[worldID] = &loaded
	s.cacheMutex.Unlock()

	return &loaded, nil
}

// CommitWorld 提交新的世界状态（整体替换 + 落盘）
// 只能在持有世界写锁时调用
func (s *WorldService) CommitWorld(world *models.WorldState) error {
	world.LastUpdated = time.Now()

	if err := s.saveWorld(world); err != nil {
		return err
	}

	s.cacheMutex.Lock()
	s.worlds[world.ID] = world
	s.cacheMutex.Unlock()

	return nil
}

// ListWorldIDs 列出所有已保存的世界
func (s *WorldService) ListWorldIDs() ([]string, error) {
	return s.FileCache.ListDirs("")
}

func (s *WorldService) saveWorld(world *models.WorldState) error {
	if err := s.FileCache.SaveJSONFile(world.ID, "world.json", world); err != nil {
		return fmt.Errorf("保存世界状态失败: %w", err)
	}
	return nil
}

// AdvanceBackground 推进一个世界的后台时间（独立节律的后台更新入口）
// 持有世界写锁执行，因此绝不会与进行中的后果提交交错
func (s *WorldService) AdvanceBackground(worldID string, delta time.Duration, influence *InfluenceService) error {
	unlock := s.LockWorld(worldID)
	defer unlock()

	world, err := s.GetWorld(worldID)
	if err != nil {
		return err
	}

	world.Tick++
	world.BackgroundTime = world.BackgroundTime.Add(delta)
	influence.UpdateFromBackground(world)

	return s.CommitWorld(world)
}
