package response

import (
	"math"
	"strconv"
	"strings"

	"kanbanhub/internal/apperr"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
)

// Pagination 列表接口的分页信息。
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

var sortKeys = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"position":  true,
	"title":     true,
	"dueDate":   true,
	"name":      true,
}

// ParsePage 读取 page/limit/sortBy/sortOrder 查询参数。
func ParsePage(c *gin.Context) (store.Page, error) {
	p := store.Page{Page: 1, Limit: 20, SortBy: "createdAt", SortOrder: "DESC"}
	var fields []apperr.FieldError

	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields = append(fields, apperr.FieldError{Field: "page", Message: "page must be at least 1"})
		} else {
			p.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			fields = append(fields, apperr.FieldError{Field: "limit", Message: "limit must be between 1 and 100"})
		} else {
			p.Limit = n
		}
	}
	if v := c.Query("sortBy"); v != "" {
		if !sortKeys[v] {
			fields = append(fields, apperr.FieldError{Field: "sortBy", Message: "sortBy is not supported"})
		} else {
			p.SortBy = v
		}
	}
	if v := c.Query("sortOrder"); v != "" {
		upper := strings.ToUpper(v)
		if upper != "ASC" && upper != "DESC" {
			fields = append(fields, apperr.FieldError{Field: "sortOrder", Message: "sortOrder must be one of [ASC DESC]"})
		} else {
			p.SortOrder = upper
		}
	}
	if len(fields) > 0 {
		return p, apperr.Validation("Validation failed", fields...)
	}
	return p, nil
}

// NewPagination 组装分页信息。
func NewPagination(p store.Page, total int64) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

// QueryLimit 读取 limit 参数，限定在 [1, max]。
func QueryLimit(c *gin.Context, def, max int) int {
	v, err := strconv.Atoi(c.Query("limit"))
	if err != nil || v < 1 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
