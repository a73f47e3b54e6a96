package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kanbanhub/internal/model"
	"kanbanhub/internal/permission"
	"kanbanhub/internal/pkg/dedup"
	"kanbanhub/internal/pkg/logger"
	"kanbanhub/internal/pkg/ratelimit"
	"kanbanhub/internal/store"
	"kanbanhub/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

type staticTokens map[string]string

func (s staticTokens) ParseAccess(token string) (string, error) {
	id, ok := s[token]
	if !ok {
		return "", errors.New("bad token")
	}
	return id, nil
}

type staticUsers map[string]*model.User

func (s staticUsers) UserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Message
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(ratelimit.NewMemoryWindow(1, time.Minute), "auth", logger.Discard()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(failingLimiter{}, "auth", logger.Discard()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	users := staticUsers{
		"u1": {ID: "u1", IsActive: true},
		"u2": {ID: "u2", IsActive: false},
	}
	tokens := staticTokens{"good": "u1", "inactive": "u2", "ghost": "u3"}

	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens, users, false), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	r.GET("/ws", AuthMiddleware(tokens, users, true), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).ID)
	})

	cases := []struct {
		name   string
		path   string
		header string
		code   int
		msg    string
	}{
		{"missing", "/me", "", http.StatusUnauthorized, "Access token required"},
		{"wrong scheme", "/me", "Basic good", http.StatusUnauthorized, "Access token required"},
		{"invalid", "/me", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"inactive", "/me", "Bearer inactive", http.StatusUnauthorized, "User not found or inactive"},
		{"deleted", "/me", "Bearer ghost", http.StatusUnauthorized, "User not found or inactive"},
		{"query ignored", "/me?token=good", "", http.StatusUnauthorized, "Access token required"},
		{"query accepted", "/ws?token=good", "", http.StatusOK, ""},
		{"header", "/me", "bearer good", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.code, w.Code)
			if tc.msg != "" {
				require.Equal(t, tc.msg, message(t, w))
			} else {
				require.Equal(t, "u1", w.Body.String())
			}
		})
	}
}

func TestBoardPermissionFromBodyKeepsBody(t *testing.T) {
	st := storetest.New(t)
	owner := storetest.User(t, st, "owner@example.com", "Owner")
	viewer := storetest.User(t, st, "viewer@example.com", "Viewer")
	board := storetest.Board(t, st, owner, "Roadmap")
	cols := storetest.Columns(t, st, board, "To Do")
	storetest.Member(t, st, board, viewer, model.RoleViewer)

	resolver := permission.NewResolver(st)
	r := gin.New()
	r.POST("/cards", func(c *gin.Context) {
		c.Set(ctxUserID, c.GetHeader("X-User"))
	}, BoardPermission(resolver, model.CanCreateCards), func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.JSON(http.StatusOK, gin.H{"board": Decision(c).BoardID, "body": string(raw)})
	})

	payload := `{"columnId":"` + cols[0].ID + `","title":"Write docs"}`
	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/cards", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(owner.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Board string `json:"board"`
		Body  string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, board.ID, out.Board)
	require.Equal(t, payload, out.Body)

	w = send(viewer.ID)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, message(t, w), "Insufficient permissions")
}

type countingToucher struct {
	mu      sync.Mutex
	touches map[string]int
}

func (c *countingToucher) TouchMemberSeen(_ context.Context, boardID, userID string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.touches == nil {
		c.touches = make(map[string]int)
	}
	c.touches[boardID+"/"+userID]++
	return nil
}

func TestMemberActivityThrottlesWithoutRedis(t *testing.T) {
	toucher := &countingToucher{}
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ctxUserID, c.GetHeader("X-User")) })
	r.Use(MemberActivityMiddleware(dedup.NewDeduplicator(nil, time.Minute), toucher, logger.Discard()))
	r.GET("/boards/:boardId", func(c *gin.Context) {
		c.Set(ctxDecision, &permission.Decision{BoardID: c.Param("boardId")})
		c.Status(http.StatusOK)
	})
	r.GET("/fail/:boardId", func(c *gin.Context) {
		c.Set(ctxDecision, &permission.Decision{BoardID: c.Param("boardId")})
		c.Status(http.StatusNotFound)
	})

	send := func(path, user string) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-User", user)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	for i := 0; i < 5; i++ {
		send("/boards/b1", "u1")
	}
	send("/boards/b2", "u1")
	send("/boards/b1", "u2")
	send("/fail/b3", "u1")

	require.Equal(t, map[string]int{"b1/u1": 1, "b2/u1": 1, "b1/u2": 1}, toucher.touches)
}
