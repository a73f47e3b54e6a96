package middleware

import (
	"context"
	"log/slog"
	"time"

	"kanbanhub/internal/pkg/dedup"

	"github.com/gin-gonic/gin"
)

// SeenToucher 更新成员最近访问时间。
type SeenToucher interface {
	TouchMemberSeen(ctx context.Context, boardID, userID string, at time.Time) error
}

// SeenThrottle 限制 last_seen_at 的写入频率，由 dedup.Deduplicator 实现。
type SeenThrottle interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// MemberActivityMiddleware 在成功的看板请求后更新 board_members.last_seen_at。
//
// 同一成员在 throttle 的 ttl 内只写一次数据库；throttle 出错时照常写入。
func MemberActivityMiddleware(throttle SeenThrottle, toucher SeenToucher, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		d := Decision(c)
		userID := UserID(c)
		if d == nil || d.BoardID == "" || userID == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
		defer cancel()

		if throttle != nil {
			first, err := throttle.Claim(ctx, dedup.Key("seen", d.BoardID, userID))
			if err == nil && !first {
				return
			}
		}
		if err := toucher.TouchMemberSeen(ctx, d.BoardID, userID, time.Now()); err != nil && logger != nil {
			logger.Warn("touch member seen failed",
				slog.String("board_id", d.BoardID),
				slog.String("error", err.Error()))
		}
	}
}
