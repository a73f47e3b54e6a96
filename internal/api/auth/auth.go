package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/notify"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// Users 认证所需的用户存储。
type Users interface {
	CreateUser(ctx context.Context, user *model.User) error
	UserByID(ctx context.Context, id string) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	TouchLogin(ctx context.Context, userID string, at time.Time) error
	UpdateUser(ctx context.Context, userID string, updates map[string]any) error
}

// Handler 提供注册、登录、刷新与个人信息接口。
type Handler struct {
	users      Users
	tokens     *Tokens
	notifier   notify.Notifier
	bcryptCost int
	logger     *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(users Users, tokens *Tokens, notifier notify.Notifier, bcryptCost int, logger *slog.Logger) *Handler {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Handler{
		users:      users,
		tokens:     tokens,
		notifier:   notifier,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,max=128"`
	FirstName string `json:"firstName" binding:"required,min=1,max=50"`
	LastName  string `json:"lastName" binding:"required,min=1,max=50"`
	Avatar    string `json:"avatar" binding:"omitempty,url"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type updateMeRequest struct {
	FirstName   *string                `json:"firstName" binding:"omitempty,min=1,max=50"`
	LastName    *string                `json:"lastName" binding:"omitempty,min=1,max=50"`
	Avatar      *string                `json:"avatar" binding:"omitempty,url"`
	Preferences *model.UserPreferences `json:"preferences"`
}

type sessionResponse struct {
	User   *model.User `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// Register 创建新用户并签发 token。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !response.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	email := model.NormalizeEmail(req.Email)

	exists, err := h.users.EmailExists(ctx, email)
	if err != nil {
		response.Fail(c, apperr.Internal(err))
		return
	}
	if exists {
		response.Fail(c, apperr.Conflict("User with this email already exists"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		response.Fail(c, apperr.Internal(err))
		return
	}

	user := &model.User{
		Email:       email,
		Password:    string(hash),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Avatar:      req.Avatar,
		IsActive:    true,
		Preferences: datatypes.NewJSONType(model.DefaultPreferences()),
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		// 并发注册同一邮箱时由唯一索引兜底
		if errors.Is(err, store.ErrConflict) {
			response.Fail(c, apperr.Conflict("User with this email already exists"))
			return
		}
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		response.Fail(c, apperr.Internal(err))
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		response.Fail(c, apperr.Internal(err))
		return
	}

	_ = h.notifier.Welcome(ctx, user)
	h.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("email", email))
	response.Created(c, "User registered successfully", sessionResponse{User: user, Tokens: pair})
}

// Login 校验邮箱密码并签发 token。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !response.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	email := model.NormalizeEmail(req.Email)

	user, err := h.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.Unauthorized("Invalid credentials"))
			return
		}
		response.Fail(c, apperr.Internal(err))
		return
	}
	if !user.IsActive {
		response.Fail(c, apperr.Unauthorized("Account is deactivated"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		response.Fail(c, apperr.Unauthorized("Invalid credentials"))
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		response.Fail(c, apperr.Internal(err))
		return
	}

	now := time.Now()
	if err := h.users.TouchLogin(ctx, user.ID, now); err != nil {
		h.logger.Warn("update last login failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	} else {
		user.LastLoginAt = &now
	}

	h.logger.Info("user logged in", slog.String("user_id", user.ID))
	response.OK(c, "Login successful", sessionResponse{User: user, Tokens: pair})
}

// Refresh 用 refresh token 换取新的 token 对。
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !response.BindJSON(c, &req) {
		return
	}
	userID, err := h.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		response.Fail(c, apperr.Unauthorized("Invalid or expired refresh token"))
		return
	}
	user, err := h.users.UserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.Unauthorized("Invalid or expired refresh token"))
			return
		}
		response.Fail(c, apperr.Internal(err))
		return
	}
	if !user.IsActive {
		response.Fail(c, apperr.Unauthorized("User not found or inactive"))
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		response.Fail(c, apperr.Internal(err))
		return
	}
	response.OK(c, "Token refreshed successfully", gin.H{"tokens": pair})
}

// Me 返回当前用户。
func (h *Handler) Me(c *gin.Context) {
	user, ok := c.Get("user")
	if !ok {
		response.Fail(c, apperr.Unauthorized("Access token required"))
		return
	}
	response.OK(c, "", gin.H{"user": user})
}

// UpdateMe 修改姓名、头像与偏好。
func (h *Handler) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if !response.BindJSON(c, &req) {
		return
	}
	userID := c.GetString("userID")
	updates := map[string]any{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if req.Preferences != nil {
		updates["preferences"] = datatypes.NewJSONType(*req.Preferences)
	}
	if len(updates) == 0 {
		response.Fail(c, apperr.Validation("No fields to update"))
		return
	}

	ctx := c.Request.Context()
	if err := h.users.UpdateUser(ctx, userID, updates); err != nil {
		response.Fail(c, err)
		return
	}
	user, err := h.users.UserByID(ctx, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, "Profile updated successfully", gin.H{"user": user})
}
