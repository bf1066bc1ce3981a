package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"course_platform_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	completionChannel = "completion_events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CompletionEvent 推送给前端的整课完成事件
type CompletionEvent struct {
	UserID         uint   `json:"userId"`
	CourseID       uint   `json:"courseId"`
	CourseTitle    string `json:"courseTitle"`
	CertificateURL string `json:"certificateUrl,omitempty"`
}

type hubClient struct {
	hub    *NotificationHub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// NotificationHub 向在线用户实时推送完成事件。
// 通过Redis发布订阅做多实例扇出：本实例没挂着目标用户的连接时，
// 事件由持有连接的实例投递。
type NotificationHub struct {
	redis *redis.Client
	ctx   context.Context

	mu      sync.RWMutex
	clients map[uint][]*hubClient

	register   chan *hubClient
	unregister chan *hubClient
	stop       chan struct{}
}

func NewNotificationHub(rdb *redis.Client) *NotificationHub {
	return &NotificationHub{
		redis:      rdb,
		ctx:        context.Background(),
		clients:    make(map[uint][]*hubClient),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		stop:       make(chan struct{}),
	}
}

func (h *NotificationHub) Run() {
	var pubsubCh <-chan *redis.Message
	if h.redis != nil {
		pubsub := h.redis.Subscribe(h.ctx, completionChannel)
		pubsubCh = pubsub.Channel()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = append(h.clients[client.userID], client)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			conns := h.clients[client.userID]
			for i, c := range conns {
				if c == client {
					h.clients[client.userID] = append(conns[:i], conns[i+1:]...)
					close(c.send)
					break
				}
			}
			if len(h.clients[client.userID]) == 0 {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()

		case msg, ok := <-pubsubCh:
			if !ok {
				pubsubCh = nil
				continue
			}
			var event CompletionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Log.Error("completion event unmarshal error", zap.Error(err))
				continue
			}
			h.pushLocal(event)

		case <-h.stop:
			return
		}
	}
}

func (h *NotificationHub) Stop() {
	close(h.stop)
}

// Publish 广播完成事件。有Redis时走发布订阅，没有时只推本地连接。
func (h *NotificationHub) Publish(event CompletionEvent) {
	if h.redis != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			if err := h.redis.Publish(h.ctx, completionChannel, payload).Err(); err == nil {
				return
			}
		}
	}
	h.pushLocal(event)
}

func (h *NotificationHub) pushLocal(event CompletionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := h.clients[event.UserID]
	for _, c := range conns {
		select {
		case c.send <- payload:
		default:
			// 发送缓冲满的连接直接放弃本条
		}
	}
	h.mu.RUnlock()
}

// ServeWS 升级连接并挂到当前用户名下
func (h *NotificationHub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &hubClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 16),
		userID: userID,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *hubClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// 客户端不上行业务消息，读循环只维持连接与pong
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.userID))
			}
			break
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
