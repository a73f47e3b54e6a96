package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxUser   = "user"
)

// TokenParser 校验 access token 并返回用户 ID。
type TokenParser interface {
	ParseAccess(token string) (string, error)
}

// UserLoader 按 ID 加载用户。
type UserLoader interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthMiddleware 校验 Bearer token，加载用户并写入上下文。
// allowQuery 为 true 时也接受 ?token= 参数（WebSocket 握手无法设置请求头）。
func AuthMiddleware(tokens TokenParser, users UserLoader, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.Request)
		if tokenStr == "" && allowQuery {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			response.Abort(c, apperr.Unauthorized("Access token required"))
			return
		}

		userID, err := tokens.ParseAccess(tokenStr)
		if err != nil {
			response.Abort(c, apperr.Unauthorized("Invalid or expired token"))
			return
		}

		user, err := users.UserByID(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			response.Abort(c, apperr.Internal(err))
			return
		}
		if user == nil || !user.IsActive {
			response.Abort(c, apperr.Unauthorized("User not found or inactive"))
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUser, user)
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserID 返回当前用户 ID。
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// CurrentUser 返回当前用户，未认证时为 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}
