package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"kanbanhub/internal/pkg/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// 客户端发送的帧类型。
const (
	frameJoinBoard  = "join_board"
	frameLeaveBoard = "leave_board"
)

type clientFrame struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId"`
}

// Authorizer 判断用户能否加入看板房间，返回的错误信息会推送给客户端。
type Authorizer func(ctx context.Context, userID, boardID string) error

// Client 单个 WebSocket 连接。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	user Actor

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) reply(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		metrics.RealtimeDroppedTotal.Inc()
	}
}

// Server 处理 WebSocket 升级与连接生命周期。
type Server struct {
	hub       *Hub
	authorize Authorizer
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewServer 创建 WebSocket 服务。allowedOrigins 为空时不校验 Origin。
func NewServer(hub *Hub, authorize Authorizer, allowedOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		hub:       hub,
		authorize: authorize,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return slices.ContainsFunc(allowedOrigins, func(allowed string) bool {
					a, err := url.Parse(allowed)
					return err == nil && a.Host == u.Host
				})
			},
		},
	}
}

// Serve 升级连接并阻塞到连接关闭。调用方负责在此之前完成身份认证。
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, user Actor) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &Client{
		hub:   s.hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		user:  user,
		rooms: make(map[string]struct{}),
	}
	metrics.RealtimeConnections.Inc()
	s.logger.Debug("websocket connected", slog.String("user_id", user.ID))

	go s.writePump(c)
	s.readPump(r.Context(), c)

	s.hub.leaveAll(c)
	c.close()
	metrics.RealtimeConnections.Dec()
	s.logger.Debug("websocket disconnected", slog.String("user_id", user.ID))
}

func (s *Server) readPump(ctx context.Context, c *Client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.BoardID == "" {
			c.reply(NewEvent(EventError, frame.BoardID, map[string]string{"message": "Invalid message"}, nil))
			continue
		}

		switch frame.Type {
		case frameJoinBoard:
			s.handleJoin(ctx, c, frame.BoardID)
		case frameLeaveBoard:
			c.mu.Lock()
			delete(c.rooms, frame.BoardID)
			c.mu.Unlock()
			s.hub.leave(c, frame.BoardID)
		default:
			c.reply(NewEvent(EventError, frame.BoardID, map[string]string{"message": "Unknown message type"}, nil))
		}
	}
}

func (s *Server) handleJoin(ctx context.Context, c *Client, boardID string) {
	if s.authorize != nil {
		if err := s.authorize(ctx, c.user.ID, boardID); err != nil {
			c.reply(NewEvent(EventError, boardID, map[string]string{"message": err.Error()}, nil))
			return
		}
	}
	c.mu.Lock()
	c.rooms[boardID] = struct{}{}
	c.mu.Unlock()

	s.hub.join(c, boardID)
	c.reply(NewEvent(EventPresence, boardID, s.hub.Presence(boardID), nil))
}

func (s *Server) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
