// internal/models/infoevent.go
package models

import "time"

// InfoEvent 一条到期后应当进入感知的信息事件（消息、通知）
type InfoEvent struct {
	ID        string    `json:"id"`
	WorldID   string    `json:"world_id"`
	SenderRef string    `json:"sender_ref"` // 发送方实体ID
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
	DueTime   time.Time `json:"due_time"`
	Processed bool      `json:"processed"`
}

// DueAt 事件在给定后台时间是否到期且未处理
func (e *InfoEvent) DueAt(backgroundTime time.Time) bool {
	return !e.Processed && !e.DueTime.After(backgroundTime)
}
