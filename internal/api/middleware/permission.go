package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"kanbanhub/internal/api/response"
	"kanbanhub/internal/model"
	"kanbanhub/internal/permission"

	"github.com/gin-gonic/gin"
)

const ctxDecision = "permission"

// maxPeekBytes 只在请求体不超过该大小时解析其中的看板引用。
const maxPeekBytes = 1 << 20

// BoardPermission 定位请求对应的看板并检查能力，capability 为空时只要求是成员。
func BoardPermission(resolver *permission.Resolver, capability model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := permission.Target{
			BoardID:  c.Param("boardId"),
			ColumnID: c.Param("columnId"),
			CardID:   c.Param("cardId"),
			Body:     peekBodyRefs(c),
		}

		decision, err := resolver.Resolve(c.Request.Context(), UserID(c), target, capability)
		if err != nil {
			response.Abort(c, err)
			return
		}
		c.Set(ctxDecision, decision)
		c.Next()
	}
}

// Decision 返回 BoardPermission 的结果。
func Decision(c *gin.Context) *permission.Decision {
	v, ok := c.Get(ctxDecision)
	if !ok {
		return nil
	}
	d, _ := v.(*permission.Decision)
	return d
}

// peekBodyRefs 读取请求体中的 boardId/columnId/targetColumnId，并把请求体放回去供 handler 绑定。
func peekBodyRefs(c *gin.Context) permission.BodyRefs {
	var refs permission.BodyRefs
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return refs
	}
	body := c.Request.Body
	raw, err := io.ReadAll(io.LimitReader(body, maxPeekBytes+1))
	c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(raw), body), Closer: body}
	if err != nil || len(raw) > maxPeekBytes {
		return refs
	}
	_ = json.Unmarshal(raw, &refs)
	return refs
}

type readCloser struct {
	io.Reader
	io.Closer
}
