// internal/services/audit_service.go
package services

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/storage"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// AuditService 感知循环审计：每循环追加一条JSONL记录
// 只写不读，记录失败只降级为日志，绝不让审计故障打断感知循环
type AuditService struct {
	storage  *storage.FileStorage
	basePath string
}

// NewAuditService 创建审计服务
func NewAuditService(fs *storage.FileStorage, basePath string) *AuditService {
	if basePath == "" {
		basePath = "data/audit"
	}
	return &AuditService{storage: fs, basePath: basePath}
}

// NewCycleID 为一次感知循环分配唯一标识
func (s *AuditService) NewCycleID() string {
	return uuid.New().String()
}

// Record 追加一条审计记录到该世界的审计文件
func (s *AuditService) Record(record *models.AuditRecord) {
	if record == nil || record.WorldID == "" {
		return
	}

	dir := filepath.Join(s.basePath, record.WorldID)
	if err := s.storage.AppendJSONLine(dir, "cycles.jsonl", record); err != nil {
		utils.GetLogger().Error("写入审计记录失败", map[string]interface{}{
			"world_id": record.WorldID,
			"cycle_id": record.CycleID,
			"error":    err.Error(),
		})
	}
}
