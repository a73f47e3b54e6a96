package api

import (
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/realtime"

	"github.com/gin-gonic/gin"
)

// handleWebsocket 升级连接，之后由客户端发送 join_board 加入看板房间。
func (s *Server) handleWebsocket(c *gin.Context) {
	u := middleware.CurrentUser(c)
	s.ws.Serve(c.Writer, c.Request, realtime.Actor{ID: u.ID, Name: u.FullName()})
}
