package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"kanbanhub/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	hexColor6    = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// RegisterValidators 注册自定义校验规则，并让错误字段使用 JSON 名称。
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("hexcolor6", func(fl validator.FieldLevel) bool {
			return hexColor6.MatchString(fl.Field().String())
		})
	})
}

// BindJSON 解析并校验请求体，失败时写入 400 并返回 false。
func BindJSON(c *gin.Context, dst any) bool {
	RegisterValidators()
	if err := c.ShouldBindJSON(dst); err != nil {
		Fail(c, BindError(err))
		return false
	}
	return true
}

// BindError 把 gin 绑定错误转换为带字段列表的校验错误。
func BindError(err error) *apperr.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{
				Field:   fieldPath(fe),
				Message: fieldMessage(fe),
			})
		}
		return apperr.Validation("Validation failed", fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Validation("Validation failed", apperr.FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be of type %s", typeErr.Type),
		})
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation("Request body is required")
	}
	return apperr.Validation("Invalid request body")
}

// fieldPath 去掉顶层结构体名，例如 createCardRequest.labels[0].color -> labels[0].color。
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Please provide a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "hexcolor6":
		return fe.Field() + " must be a valid hex color (e.g., #FF5733)"
	case "url", "uri":
		return fe.Field() + " must be a valid URL"
	case "uuid", "uuid4":
		return fe.Field() + " must be a valid UUID"
	}
	return fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
}
