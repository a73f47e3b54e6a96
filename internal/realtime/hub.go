package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"kanbanhub/internal/pkg/metrics"
)

// Hub 维护本实例的房间与连接。
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	// fanout 用于 user-joined / user-left，配置 RedisRelay 后跨实例传播。
	fanout Broadcaster
}

func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger: logger,
		rooms:  make(map[string]map[*Client]struct{}),
	}
	h.fanout = h
	return h
}

// SetFanout 替换成员进出事件的广播通道。
func (h *Hub) SetFanout(b Broadcaster) {
	if b == nil {
		b = h
	}
	h.mu.Lock()
	h.fanout = b
	h.mu.Unlock()
}

// Broadcast 投递到本实例房间内的所有连接。
func (h *Hub) Broadcast(ctx context.Context, ev Event) {
	h.Deliver(ev)
}

// Deliver 序列化一次后投递给房间内所有连接，发送缓冲已满的连接直接丢帧。
func (h *Hub) Deliver(ev Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal realtime event failed",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[ev.BoardID] {
		if c.enqueue(data) {
			delivered++
			continue
		}
		metrics.RealtimeDroppedTotal.Inc()
	}
	metrics.RealtimeEventsTotal.WithLabelValues(ev.Event).Inc()
	return delivered
}

// Presence 返回当前在线的用户，按 ID 去重后排序。
func (h *Hub) Presence(boardID string) []Actor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]Actor)
	for c := range h.rooms[boardID] {
		seen[c.user.ID] = c.user
	}
	out := make([]Actor, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RoomSize 返回房间内的连接数。
func (h *Hub) RoomSize(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

func (h *Hub) join(c *Client, boardID string) bool {
	h.mu.Lock()
	room, ok := h.rooms[boardID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[boardID] = room
	}
	if _, already := room[c]; already {
		h.mu.Unlock()
		return false
	}
	room[c] = struct{}{}
	fanout := h.fanout
	h.mu.Unlock()

	fanout.Broadcast(context.Background(), NewEvent(EventUserJoined, boardID, c.user, &c.user))
	return true
}

func (h *Hub) leave(c *Client, boardID string) {
	h.mu.Lock()
	room, ok := h.rooms[boardID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room[c]; !member {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, boardID)
	}
	fanout := h.fanout
	h.mu.Unlock()

	fanout.Broadcast(context.Background(), NewEvent(EventUserLeft, boardID, c.user, &c.user))
}

// leaveAll 连接断开时退出所有房间。
func (h *Hub) leaveAll(c *Client) {
	for _, boardID := range c.joinedRooms() {
		h.leave(c, boardID)
	}
}
