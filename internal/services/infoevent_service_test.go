// internal/services/infoevent_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/PerceptionFlowMCP/internal/errors"
	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

func newTestInfoEventService() *InfoEventService {
	return NewInfoEventService(NewEntityService(3))
}

func TestScheduleAssignsIDAndWorld(t *testing.T) {
	s := newTestInfoEventService()
	world := newTestWorld()

	ev, err := s.Schedule(world, &models.InfoEvent{
		SenderRef: "agent_ma",
		Subject:   "论文批注",
		DueTime:   testBaseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("排程不应失败: %v", err)
	}
	if ev.ID == "" || ev.WorldID != "world_test" {
		t.Fatalf("事件应获得ID并绑定世界，得到 %+v", ev)
	}
	if len(world.InfoEvents) != 1 {
		t.Fatalf("事件应入队，队列长度 %d", len(world.InfoEvents))
	}
}

func TestScheduleRejectsIncompleteEvent(t *testing.T) {
	s := newTestInfoEventService()
	world := newTestWorld()

	if _, err := s.Schedule(world, &models.InfoEvent{DueTime: testBaseTime}); !errors.IsValidationError(err) {
		t.Fatalf("缺少发送方应为校验错误，得到 %v", err)
	}
	if _, err := s.Schedule(world, &models.InfoEvent{SenderRef: "agent_ma"}); !errors.IsValidationError(err) {
		t.Fatalf("缺少到期时间应为校验错误，得到 %v", err)
	}
}

func TestDueEventsOrderingAndFiltering(t *testing.T) {
	s := newTestInfoEventService()
	world := newTestWorld()

	later, _ := s.Schedule(world, &models.InfoEvent{
		SenderRef: "agent_ma", DueTime: testBaseTime.Add(-time.Minute),
	})
	earlier, _ := s.Schedule(world, &models.InfoEvent{
		SenderRef: "agent_lin", DueTime: testBaseTime.Add(-time.Hour),
	})
	s.Schedule(world, &models.InfoEvent{
		SenderRef: "agent_ma", DueTime: testBaseTime.Add(time.Hour),
	})

	due := s.DueEvents(world, testBaseTime)
	if len(due) != 2 {
		t.Fatalf("到期事件应有2条，得到 %d", len(due))
	}
	if due[0].ID != earlier.ID || due[1].ID != later.ID {
		t.Fatalf("到期事件应按到期时间升序，得到 %v %v", due[0].ID, due[1].ID)
	}

	s.MarkProcessed(world, earlier.ID)
	if got := s.DueEvents(world, testBaseTime); len(got) != 1 {
		t.Fatalf("已处理的事件不应再到期，得到 %d 条", len(got))
	}
}

func TestResolveSenderRecordsEncounter(t *testing.T) {
	s := newTestInfoEventService()
	world := newTestWorld()
	world.Entities["contact_wei"] = &models.Entity{
		ID: "contact_wei", Kind: models.EntityKindPerson, Name: "小魏",
		PersistenceLevel: models.PersistenceEphemeral,
	}

	ev, _ := s.Schedule(world, &models.InfoEvent{
		SenderRef: "contact_wei", DueTime: testBaseTime.Add(-time.Minute),
	})

	sender, err := s.ResolveSender(world, ev)
	if err != nil {
		t.Fatalf("解析发送方不应失败: %v", err)
	}
	if sender.Name != "小魏" {
		t.Fatalf("发送方应物化为实体，得到 %+v", sender)
	}
	if world.Entities["contact_wei"].SalientEncounters != 1 {
		t.Fatal("解析发送方应记一次显著遭遇")
	}
}

func TestResolveSenderMissingEntity(t *testing.T) {
	s := newTestInfoEventService()
	world := newTestWorld()

	ev, _ := s.Schedule(world, &models.InfoEvent{
		SenderRef: "ghost", DueTime: testBaseTime,
	})
	if _, err := s.ResolveSender(world, ev); !errors.IsNotFoundError(err) {
		t.Fatalf("发送方不存在应为 not_found，得到 %v", err)
	}
}
