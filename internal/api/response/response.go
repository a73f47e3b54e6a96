// Package response 统一 API 的 JSON 信封与错误映射。
//
// 成功响应为 {success:true, message?, data?}，失败响应为 {success:false, message, errors?}。
package response

import (
	"errors"
	"net/http"

	"kanbanhub/internal/apperr"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// OK 返回 200。
func OK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// Created 返回 201。
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

// Fail 把错误映射为 HTTP 状态码并写入响应，原始错误挂到 c.Errors 供请求日志使用。
func Fail(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)
	c.JSON(status, body)
}

// Abort 与 Fail 相同，但会中止后续 handler。
func Abort(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, envelope) {
	if appErr := apperr.As(err); appErr != nil {
		return appErr.Status(), envelope{Message: appErr.Message, Errors: appErr.Fields}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, envelope{Message: "Resource not found"}
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, envelope{Message: "Resource already exists"}
	}
	return http.StatusInternalServerError, envelope{Message: "Internal server error"}
}
