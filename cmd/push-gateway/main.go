// cmd/push-gateway/main.go
package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"arcadia/internal/pkg/bootstrap"
	"arcadia/internal/pkg/logger"
	"arcadia/internal/pkg/mq"
	"arcadia/internal/pkg/session"
	"arcadia/internal/service/progression/infrastructure/adapter"
)

const (
	serviceName = "push-gateway"
	listenAddr  = ":8088"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	nodeID   = "push-gateway-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
			return true
		},
	}
)

// Hub 维护本节点所有活跃的连接
type Hub struct {
	clients    map[string]*Client // 使用 UserID 作为 Key
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.Logger().Info().
				Str("user_id", client.userID).
				Str("node_id", nodeID).
				Msg("client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.Logger().Info().
				Str("user_id", client.userID).
				Msg("client unregistered")
		}
	}
}

// pushToUser 把一条消息投递给本节点上的某个用户，用户不在本节点就静默丢弃
//（别的网关节点会消费同一条事件并完成投递）。
func (h *Hub) pushToUser(userID string, message []byte) bool {
	h.lock.RLock()
	client, ok := h.clients[userID]
	h.lock.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		// 发送缓冲满说明客户端已经不消费了，踢掉连接
		h.unregister <- client
		return false
	}
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	session *session.Manager
}

// writePump 把 send channel 里的消息写入 websocket，并周期性发 ping。
func (c *Client) writePump() error {
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
				// Hub 关闭了这个连接
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return nil
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return err
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// readPump 只消费客户端的心跳（pong），读到错误即视为连接断开。
func (c *Client) readPump() error {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		// 清理 Redis 里的会话映射
		if err := c.session.RemoveUserGateway(context.Background(), c.userID); err != nil {
			logger.Logger().Warn().Err(err).
				Str("user_id", c.userID).
				Msg("failed to remove session mapping")
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func serveWs(hub *Hub, sessionMgr *session.Manager, w http.ResponseWriter, r *http.Request) {
	// 1. 从 URL 参数获取 UserID
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	// 2. HTTP 升级为 WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger().Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	// 3. 创建客户端实例并注册到 Hub
	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		session: sessionMgr,
	}
	client.hub.register <- client

	// 4. 在 Redis 中记录 用户 -> 节点 的会话映射
	if err := sessionMgr.SetUserGateway(r.Context(), userID, nodeID); err != nil {
		logger.Logger().Error().Err(err).
			Str("user_id", userID).
			Msg("failed to set session mapping")
		conn.Close()
		return
	}

	// 5. 启动读写 goroutine
	var g errgroup.Group
	g.Go(client.writePump)
	g.Go(client.readPump)
	go func() {
		if err := g.Wait(); err != nil {
			logger.Logger().Debug().Err(err).
				Str("user_id", userID).
				Msg("websocket connection closed")
		}
	}()
}

// consumeEvents 消费成长事件并推送给本节点连着的用户。
// 每个网关节点用自己的消费组，所有节点都能看到全量事件，
// 各自只投递连在自己身上的用户。
func consumeEvents(hub *Hub, brokers []string) {
	reader := mq.NewKafkaReader(brokers, adapter.EventsTopic, nodeID)
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(context.Background())
		if err != nil {
			logger.Logger().Error().Err(err).Msg("could not read message")
			continue
		}

		// 消息按用户 ID 做 Key，原样转发整个事件外壳
		userID := string(msg.Key)
		if hub.pushToUser(userID, msg.Value) {
			logger.Logger().Debug().
				Str("user_id", userID).
				Msg("event pushed to client")
		}
	}
}

func main() {
	logger.Init(serviceName)
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	sessionMgr := session.NewManager(cfg.Infra.Redis.Addr)
	hub := newHub()
	go hub.run()
	go consumeEvents(hub, cfg.Infra.Kafka.Brokers)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, sessionMgr, w, r)
	})

	logger.Logger().Info().
		Str("node_id", nodeID).
		Str("addr", listenAddr).
		Msg("push gateway started")
	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		logger.Logger().Fatal().Err(err).Msg("listen and serve failed")
	}
}
