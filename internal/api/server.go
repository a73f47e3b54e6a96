package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kanbanhub/internal/activity"
	"kanbanhub/internal/api/auth"
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/config"
	"kanbanhub/internal/model"
	"kanbanhub/internal/ordering"
	"kanbanhub/internal/permission"
	"kanbanhub/internal/pkg/dedup"
	"kanbanhub/internal/pkg/notify"
	"kanbanhub/internal/pkg/ratelimit"
	"kanbanhub/internal/pkg/worker"
	"kanbanhub/internal/realtime"
	"kanbanhub/internal/reminder"
	"kanbanhub/internal/seed"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有存储、权限解析器、排序引擎、活动记录器、实时广播以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	rdb      *redis.Client
	router   *gin.Engine
	http     *http.Server
	auth     *auth.Handler
	tokens   *auth.Tokens
	resolver *permission.Resolver
	columns  *ordering.Engine
	cards    *ordering.Engine
	activity *activity.Recorder
	hub      *realtime.Hub
	events   realtime.Broadcaster
	relay    *realtime.RedisRelay
	ws       *realtime.Server
	notifier notify.Notifier
	limiter  ratelimit.Limiter
	pool     *worker.Pool
	reminder *reminder.Service
}

// Deps 组装 Server 所需的依赖，测试时可以只填必需项。
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Redis    *redis.Client     // 可选
	Notifier notify.Notifier   // 可选，默认不发送
	Limiter  ratelimit.Limiter // 可选，默认进程内滑动窗口
	Pool     *worker.Pool      // 可选，nil 时后台任务同步执行
}

// New 根据依赖构造 Server 并注册路由。
func New(deps Deps) *Server {
	cfg := deps.Config
	logger := deps.Logger

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = newLimiter(cfg.RateLimit, deps.Redis)
	}

	hub := realtime.NewHub(logger)
	var events realtime.Broadcaster = hub
	var relay *realtime.RedisRelay
	if deps.Redis != nil {
		relay = realtime.NewRedisRelay(deps.Redis, cfg.Realtime.RedisChannel, hub, logger)
		hub.SetFanout(relay)
		events = relay
	}

	resolver := permission.NewResolver(deps.Store)
	tokens := auth.NewTokens(cfg.Security)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		rdb:      deps.Redis,
		router:   r,
		auth:     auth.NewHandler(deps.Store, tokens, notifier, cfg.Security.BcryptCost, logger),
		tokens:   tokens,
		resolver: resolver,
		columns:  ordering.NewEngine(deps.Store.ColumnOrder()),
		cards:    ordering.NewEngine(deps.Store.CardOrder()),
		activity: activity.NewRecorder(deps.Store, deps.Pool, logger),
		hub:      hub,
		events:   events,
		relay:    relay,
		notifier: notifier,
		limiter:  limiter,
		pool:     deps.Pool,
	}
	s.ws = realtime.NewServer(hub, s.authorizeRoom, cfg.Realtime.AllowedOrigins, logger)
	s.registerRoutes()
	return s
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 连接 Redis（配置了地址时）
// 3. 启动后台 worker 池与邮件通知
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}
	st := store.New(db)

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	pool := worker.NewPool(logger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity)
	pool.Start(context.WithoutCancel(ctx))

	emailNotifier := notify.NewEmailNotifier(&cfg.Email, cfg.App.FrontendURL, logger)
	notifier := notify.NewAsync(emailNotifier, pool, logger)

	if cfg.App.SeedDemo {
		if err := seed.Demo(ctx, st, logger); err != nil {
			logger.Warn("seed demo data failed", slog.String("error", err.Error()))
		}
	}

	s := New(Deps{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Redis:    rdb,
		Notifier: notifier,
		Pool:     pool,
	})

	// 提醒任务本身在 cron goroutine 中运行，同步发送才能在失败时释放去重 key
	ttl := cfg.Reminder.Lookahead + 12*time.Hour
	s.reminder = reminder.NewService(st, emailNotifier, dedup.NewDeduplicator(rdb, ttl), cfg.Reminder, logger)
	return s, nil
}

func newLimiter(cfg config.RateLimitConfig, rdb *redis.Client) ratelimit.Limiter {
	if rdb != nil {
		return ratelimit.NewRedisWindow(rdb, "kanbanhub:ratelimit:", cfg.AuthMaxAttempts, cfg.AuthWindow)
	}
	return ratelimit.NewMemoryWindow(cfg.AuthMaxAttempts, cfg.AuthWindow)
}

// Run 启动后台任务与 HTTP 服务器，ctx 取消后优雅退出。
func (s *Server) Run(ctx context.Context) error {
	if s.relay != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("PANIC in realtime relay", slog.Any("panic", r))
				}
			}()
			if err := s.relay.Run(ctx); err != nil {
				s.logger.Error("realtime relay stopped", slog.String("error", err.Error()))
			}
		}()
	}
	if s.reminder != nil {
		if err := s.reminder.Start(ctx); err != nil {
			return fmt.Errorf("start reminders: %w", err)
		}
	}
	if mem, ok := s.limiter.(*ratelimit.MemoryWindow); ok {
		go s.sweepLimiter(ctx, mem)
	}

	s.http = &http.Server{
		Addr:              s.cfg.App.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) sweepLimiter(ctx context.Context, mem *ratelimit.MemoryWindow) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem.Sweep()
		}
	}
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 停止后台任务并关闭数据库与缓存连接。
func (s *Server) Close() error {
	if s.reminder != nil {
		s.reminder.Stop()
	}
	var firstErr error
	if s.pool != nil {
		if err := s.pool.Shutdown(10 * time.Second); err != nil {
			firstErr = err
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	authLimit := middleware.RateLimit(s.limiter, "auth", s.logger)
	authenticate := middleware.AuthMiddleware(s.tokens, s.store, false)

	authGroup := s.router.Group("/auth")
	authGroup.POST("/register", authLimit, s.auth.Register)
	authGroup.POST("/login", authLimit, s.auth.Login)
	authGroup.POST("/refresh", authLimit, s.auth.Refresh)
	authGroup.GET("/me", authenticate, s.auth.Me)
	authGroup.PUT("/me", authenticate, s.auth.UpdateMe)

	s.router.GET("/ws", middleware.AuthMiddleware(s.tokens, s.store, true), s.handleWebsocket)

	authed := s.router.Group("/")
	authed.Use(authenticate)
	authed.Use(middleware.MemberActivityMiddleware(dedup.NewDeduplicator(s.rdb, time.Minute), s.store, s.logger))

	perm := func(c model.Capability) gin.HandlerFunc {
		return middleware.BoardPermission(s.resolver, c)
	}
	member := perm(model.CapabilityNone)

	boards := authed.Group("/boards")
	boards.GET("", s.handleListBoards)
	boards.POST("", s.handleCreateBoard)
	boards.GET("/:boardId", member, s.handleGetBoard)
	boards.PUT("/:boardId", perm(model.CanEditBoard), s.handleUpdateBoard)
	boards.DELETE("/:boardId", perm(model.CanDeleteBoard), s.handleArchiveBoard)
	boards.POST("/:boardId/restore", perm(model.CanDeleteBoard), s.handleRestoreBoard)
	boards.GET("/:boardId/columns", member, s.handleListColumns)
	boards.POST("/:boardId/columns", perm(model.CanCreateColumns), s.handleCreateColumn)
	boards.GET("/:boardId/activities", member, s.handleBoardActivities)
	boards.GET("/:boardId/presence", member, s.handlePresence)
	boards.GET("/:boardId/members", member, s.handleListMembers)
	boards.POST("/:boardId/members", perm(model.CanInviteMembers), s.handleAddMember)
	boards.PUT("/:boardId/members/:userId", perm(model.CanInviteMembers), s.handleUpdateMember)
	boards.DELETE("/:boardId/members/:userId", perm(model.CanRemoveMembers), s.handleRemoveMember)

	columns := authed.Group("/columns")
	columns.GET("/board/:boardId", member, s.handleListColumns)
	columns.POST("", perm(model.CanCreateColumns), s.handleCreateColumn)
	columns.PUT("/positions", perm(model.CanEditColumns), s.handleColumnPositions)
	columns.GET("/:columnId", member, s.handleGetColumn)
	columns.PUT("/:columnId", perm(model.CanEditColumns), s.handleUpdateColumn)
	columns.DELETE("/:columnId", perm(model.CanDeleteColumns), s.handleArchiveColumn)
	columns.PUT("/:columnId/restore", perm(model.CanEditColumns), s.handleRestoreColumn)
	columns.GET("/:columnId/stats", member, s.handleColumnStats)
	columns.GET("/:columnId/activities", member, s.handleColumnActivities)

	cards := authed.Group("/cards")
	cards.GET("", s.handleListCards)
	cards.GET("/column/:columnId", member, s.handleCardsByColumn)
	cards.POST("", perm(model.CanCreateCards), s.handleCreateCard)
	cards.GET("/:cardId", member, s.handleGetCard)
	cards.PUT("/:cardId", perm(model.CanEditCards), s.handleUpdateCard)
	cards.PUT("/:cardId/move", perm(model.CanMoveCards), s.handleMoveCard)
	cards.POST("/:cardId/assign", perm(model.CanAssignCards), s.handleAssignCard)
	cards.DELETE("/:cardId/assign/:userId", perm(model.CanAssignCards), s.handleUnassignCard)
	cards.DELETE("/:cardId", perm(model.CanDeleteCards), s.handleArchiveCard)
	cards.POST("/:cardId/comments", perm(model.CanComment), s.handleAddComment)
	cards.POST("/:cardId/votes", perm(model.CanVote), s.handleVote)
	cards.DELETE("/:cardId/votes", perm(model.CanVote), s.handleUnvote)
	cards.GET("/:cardId/activities", member, s.handleCardActivities)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": err.Error()})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "redis": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
