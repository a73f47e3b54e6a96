package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisRelay 通过 Redis pub/sub 在多个实例之间转发事件。
//
// Broadcast 只负责发布，包括本实例在内的所有订阅者收到后投递到本地房间。
// 发布失败时退化为本地投递。
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

func (r *RedisRelay) Broadcast(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("marshal relay event failed", slog.String("error", err.Error()))
		return
	}
	if err := r.rdb.Publish(context.WithoutCancel(ctx), r.channel, data).Err(); err != nil {
		r.logger.Warn("relay publish failed, deliver locally",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()))
		r.hub.Deliver(ev)
	}
}

// Run 订阅频道并投递收到的事件，ctx 取消后返回。
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// 订阅确认后才开始消费
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("realtime relay subscribed", slog.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("invalid relay payload", slog.String("error", err.Error()))
				continue
			}
			r.hub.Deliver(ev)
		}
	}
}
