// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/PerceptionFlowMCP/internal/models"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// WebSocketClient 表示一个订阅世界感知结果流的客户端连接
type WebSocketClient struct {
	conn      *websocket.Conn
	worldID   string
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
	lastPing  time.Time
	createdAt time.Time
}

// WebSocketManager 管理所有 WebSocket 连接，按世界分组
type WebSocketManager struct {
	connections map[string]map[*websocket.Conn]*WebSocketClient // worldID -> connections
	register    chan *WebSocketClient
	unregister  chan *WebSocketClient
	mutex       sync.RWMutex
	pingTimeout time.Duration
}

// 全局 WebSocket 管理器
var wsManager = &WebSocketManager{
	connections: make(map[string]map[*websocket.Conn]*WebSocketClient),
	register:    make(chan *WebSocketClient, 256),
	unregister:  make(chan *WebSocketClient, 256),
	pingTimeout: 60 * time.Second,
}

func init() {
	go wsManager.run()
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// run 运行 WebSocket 管理器主循环
func (manager *WebSocketManager) run() {
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.unregisterClient(client)

		case <-cleanupTicker.C:
			manager.cleanupExpiredConnections()
		}
	}
}

func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.worldID] == nil {
		manager.connections[client.worldID] = make(map[*websocket.Conn]*WebSocketClient)
	}
	manager.connections[client.worldID][client.conn] = client
	client.lastPing = time.Now()

	log.Printf("WebSocket 客户端已订阅世界 %s", client.worldID)
}

func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if connections, exists := manager.connections[client.worldID]; exists {
		delete(connections, client.conn)
		if len(connections) == 0 {
			delete(manager.connections, client.worldID)
		}
	}

	if !client.IsClosed() {
		client.Close()
	}
}

// cleanupExpiredConnections 清理过期和死连接
func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for worldID, connections := range manager.connections {
		for conn, client := range connections {
			if client.IsClosed() || time.Since(client.lastPing) > manager.pingTimeout {
				delete(connections, conn)
				if !client.IsClosed() {
					client.Close()
				}
			}
		}
		if len(connections) == 0 {
			delete(manager.connections, worldID)
		}
	}
}

// BroadcastToWorld 向订阅指定世界的客户端广播消息
func (manager *WebSocketManager) BroadcastToWorld(worldID string, message map[string]interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("序列化广播消息失败: %v", err)
		return
	}

	manager.mutex.RLock()
	connections, exists := manager.connections[worldID]
	if !exists {
		manager.mutex.RUnlock()
		return
	}
	clients := make([]*WebSocketClient, 0, len(connections))
	for _, client := range connections {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- msgBytes:
		default:
			// 队列满即视为死连接
			client.Close()
		}
	}
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	worlds := make(map[string]interface{})
	total := 0
	for worldID, connections := range manager.connections {
		active := 0
		for _, client := range connections {
			if client != nil && !client.IsClosed() {
				active++
			}
		}
		worlds[worldID] = map[string]interface{}{"client_count": active}
		total += active
	}

	return map[string]interface{}{
		"total_worlds":      len(manager.connections),
		"total_connections": total,
		"worlds":            worlds,
	}
}

// broadcastCycleResult 把感知循环结果推送给该世界的订阅者
func broadcastCycleResult(worldID string, result *models.PerceptionResult) {
	wsManager.BroadcastToWorld(worldID, map[string]interface{}{
		"type":      "cycle_result",
		"world_id":  worldID,
		"cycle_id":  result.CycleID,
		"text":      result.Text,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// WorldStream 订阅世界的感知结果流
func (h *Handler) WorldStream(c *gin.Context) {
	worldID := c.Param("id")
	if _, err := h.WorldService.GetWorld(worldID); err != nil {
		h.Response.NotFound(c, "世界", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket 升级失败: %v", err)
		return
	}

	client := &WebSocketClient{
		conn:      conn,
		worldID:   worldID,
		send:      make(chan []byte, 64),
		createdAt: time.Now(),
	}
	wsManager.register <- client

	go client.writeLoop()
	go client.readLoop()
}

// GetWebSocketStatus 连接状态查询（调试用）
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, wsManager.GetStatus())
}

func (client *WebSocketClient) writeLoop() {
	pingTicker := time.NewTicker(30 * time.Second)
	defer func() {
		pingTicker.Stop()
		client.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (client *WebSocketClient) readLoop() {
	defer func() {
		wsManager.unregister <- client
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(wsManager.pingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.lastPing = time.Now()
		client.conn.SetReadDeadline(time.Now().Add(wsManager.pingTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
