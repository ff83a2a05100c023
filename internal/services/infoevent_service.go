// internal/services/infoevent_service.go
package services

import (
	"sort"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
	"github.com/Corphon/PerceptionFlowMCP/internal/utils"
)

// InfoEventService 信息事件（消息、通知）的排程与投递
type InfoEventService struct {
	entities *EntityService
}

// NewInfoEventService 创建信息事件服务
func NewInfoEventService(entities *EntityService) *InfoEventService {
	return &InfoEventService{entities: entities}
}

// Schedule 排入一条信息事件，到期后由触发评估拾取
func (s *InfoEventService) Schedule(world *models.WorldState, event *models.InfoEvent) (*models.InfoEvent, error) {
	if event == nil || event.SenderRef == "" {
		return nil, errors.NewValidationError("信息事件缺少发送方", nil)
	}
	if event.DueTime.IsZero() {
		return nil, errors.NewValidationError("信息事件缺少到期时间", nil)
	}

	if event.ID == "" {
		event.ID = utils.GenerateID("info")
	}
	event.WorldID = world.ID
	world.InfoEvents = append(world.InfoEvents, event)
	return event, nil
}

// DueEvents 返回指定后台时间已到期且未处理的事件，按到期时间升序
func (s *InfoEventService) DueEvents(world *models.WorldState, at time.Time) []*models.InfoEvent {
	var due []*models.InfoEvent
	for _, ev := range world.InfoEvents {
		if ev.DueAt(at) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueTime.Equal(due[j].DueTime) {
			return due[i].DueTime.Before(due[j].DueTime)
		}
		return due[i].ID < due[j].ID
	})
	return due
}

// ResolveSender 把事件的发送方引用物化为实体，并记一次显著遭遇
// 发送方不存在时返回 not_found，事件保留待后续处理
func (s *InfoEventService) ResolveSender(world *models.WorldState, event *models.InfoEvent) (*models.Entity, error) {
	entity, ok := world.Entity(event.SenderRef)
	if !ok {
		return nil, errors.NewNotFoundError("信息事件发送方不存在: "+event.SenderRef, nil)
	}
	if _, err := s.entities.RecordEncounter(world, entity.ID); err != nil {
		return nil, err
	}
	return entity, nil
}

// MarkProcessed 标记事件已进入感知，后续循环不再触发
func (s *InfoEventService) MarkProcessed(world *models.WorldState, eventID string) {
	for _, ev := range world.InfoEvents {
		if ev.ID == eventID {
			ev.Processed = true
			return
		}
	}
}

// Event 按ID查找信息事件
func (s *InfoEventService) Event(world *models.WorldState, eventID string) (*models.InfoEvent, bool) {
	for _, ev := range world.InfoEvents {
		if ev.ID == eventID {
			return ev, true
		}
	}
	return nil, false
}
