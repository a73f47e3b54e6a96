package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Email     EmailConfig     `json:"email"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Realtime  RealtimeConfig  `json:"realtime"`
	Reminder  ReminderConfig  `json:"reminder"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string `json:"env"`              // 运行环境: local / prod
	LogLevel       string `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string `json:"http_addr"`        // API 服务监听地址
	FrontendURL    string `json:"frontend_url"`     // 邮件中的链接前缀
	SeedDemo       bool   `json:"seed_demo"`        // 启动时写入演示数据
	WorkerPoolSize int    `json:"worker_pool_size"` // 异步任务 worker 数量
	QueueCapacity  int    `json:"queue_capacity"`   // 异步任务队列容量
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver       string `json:"driver"` // mysql / sqlite
	DSN          string `json:"dsn"`    // 数据库连接字符串
	MaxOpenConns int    `json:"max_open_conns"`
}

// RedisConfig Redis 配置，Addr 为空时不启用。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
	DB       int    `json:"db"`
}

// Enabled 返回是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret        string        `json:"jwt_secret"`         // access token 签名密钥
	JWTRefreshSecret string        `json:"jwt_refresh_secret"` // refresh token 签名密钥，为空时复用 jwt_secret
	AccessTokenTTL   time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `json:"refresh_token_ttl"`
	BcryptCost       int           `json:"bcrypt_cost"`
}

// RateLimitConfig 认证接口限流配置。
type RateLimitConfig struct {
	AuthWindow      time.Duration `json:"auth_window"`       // 滑动窗口长度
	AuthMaxAttempts int           `json:"auth_max_attempts"` // 窗口内最大请求数
}

// RealtimeConfig WebSocket 配置。
type RealtimeConfig struct {
	AllowedOrigins []string `json:"allowed_origins"` // 为空表示允许所有来源
	RedisChannel   string   `json:"redis_channel"`   // 多实例广播使用的 pub/sub 频道
}

// ReminderConfig 截止日期提醒任务配置。
type ReminderConfig struct {
	Enabled   bool          `json:"enabled"`
	Schedule  string        `json:"schedule"`  // cron 表达式
	Lookahead time.Duration `json:"lookahead"` // 提前多久提醒
}

// Load 从 JSON 文件加载配置。
//
// 它会先加载 .env（存在时），再尝试读取 configs/config.json，文件不存在则使用默认值。
// 环境变量的优先级最高。
func Load(configPath ...string) (*Config, error) {
	_ = godotenv.Load()

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8080",
			FrontendURL:    "http://localhost:3000",
			WorkerPoolSize: 4,
			QueueCapacity:  1000,
		},
		Database: DatabaseConfig{
			Driver:       "mysql",
			DSN:          "root:password@tcp(localhost:3306)/kanban?parseTime=true&loc=UTC&charset=utf8mb4",
			MaxOpenConns: 20,
		},
		Redis: RedisConfig{
			Addr: "",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			JWTSecret:       "dev_secret_change_me",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			BcryptCost:      12,
		},
		RateLimit: RateLimitConfig{
			AuthWindow:      15 * time.Minute,
			AuthMaxAttempts: 50,
		},
		Realtime: RealtimeConfig{
			RedisChannel: "kanbanhub:realtime",
		},
		Reminder: ReminderConfig{
			Enabled:   true,
			Schedule:  "0 9 * * *",
			Lookahead: 24 * time.Hour,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.FrontendURL == "" {
		cfg.App.FrontendURL = defaults.App.FrontendURL
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.AccessTokenTTL == 0 {
		cfg.Security.AccessTokenTTL = defaults.Security.AccessTokenTTL
	}
	if cfg.Security.RefreshTokenTTL == 0 {
		cfg.Security.RefreshTokenTTL = defaults.Security.RefreshTokenTTL
	}
	if cfg.Security.BcryptCost == 0 {
		cfg.Security.BcryptCost = defaults.Security.BcryptCost
	}
	if cfg.RateLimit.AuthWindow == 0 {
		cfg.RateLimit.AuthWindow = defaults.RateLimit.AuthWindow
	}
	if cfg.RateLimit.AuthMaxAttempts == 0 {
		cfg.RateLimit.AuthMaxAttempts = defaults.RateLimit.AuthMaxAttempts
	}
	if cfg.Realtime.RedisChannel == "" {
		cfg.Realtime.RedisChannel = defaults.Realtime.RedisChannel
	}
	if cfg.Reminder.Schedule == "" {
		cfg.Reminder.Schedule = defaults.Reminder.Schedule
	}
	if cfg.Reminder.Lookahead == 0 {
		cfg.Reminder.Lookahead = defaults.Reminder.Lookahead
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt_refresh_secret", "JWT_REFRESH_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.App.FrontendURL = v
	}
	if v := os.Getenv("APP_SEED_DEMO"); v != "" {
		cfg.App.SeedDemo = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := viper.GetString("jwt_refresh_secret"); v != "" {
		cfg.Security.JWTRefreshSecret = v
	}
	if v := os.Getenv("JWT_EXPIRES_IN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.AccessTokenTTL = d
		}
	}
	if v := os.Getenv("JWT_REFRESH_EXPIRES_IN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.RefreshTokenTTL = d
		}
	}
	if v := os.Getenv("BCRYPT_ROUNDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Security.BcryptCost = i
		}
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.AuthWindow = d
		}
	}
	if v := os.Getenv("RATE_LIMIT_MAX_ATTEMPTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.AuthMaxAttempts = i
		}
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if cfg.Database.Driver == "mysql" && (hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := os.Getenv("REALTIME_ALLOWED_ORIGINS"); v != "" {
		cfg.Realtime.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("REMINDER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reminder.Enabled = b
		}
	}
	if v := os.Getenv("REMINDER_SCHEDULE"); v != "" {
		cfg.Reminder.Schedule = v
	}
}

func parseMySQLDSN(dsn string) *mysql.Config {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		parsed = mysql.NewConfig()
		parsed.Net = "tcp"
		parsed.Addr = "localhost:3306"
		parsed.ParseTime = true
	}
	return parsed
}

func hasAnyEnv(keys ...string) bool {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

// getenvDefault 读取端口环境变量，未设置时沿用 addr 中的端口。
func getenvDefault(key, addr, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if idx := strings.LastIndex(addr, ":"); idx >= 0 && idx < len(addr)-1 {
		return addr[idx+1:]
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type durationJSON struct {
	time.Duration
}

func (d *durationJSON) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(v) * time.Second
	case nil:
		d.Duration = 0
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// UnmarshalJSON 支持 "15m" 这类字符串写法。
func (c *SecurityConfig) UnmarshalJSON(b []byte) error {
	type alias SecurityConfig
	aux := struct {
		*alias
		AccessTokenTTL  durationJSON `json:"access_token_ttl"`
		RefreshTokenTTL durationJSON `json:"refresh_token_ttl"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.AccessTokenTTL = aux.AccessTokenTTL.Duration
	c.RefreshTokenTTL = aux.RefreshTokenTTL.Duration
	return nil
}

// MarshalJSON 将 Duration 输出为字符串。
func (c SecurityConfig) MarshalJSON() ([]byte, error) {
	type alias SecurityConfig
	return json.Marshal(struct {
		alias
		AccessTokenTTL  string `json:"access_token_ttl"`
		RefreshTokenTTL string `json:"refresh_token_ttl"`
	}{
		alias:           alias(c),
		AccessTokenTTL:  c.AccessTokenTTL.String(),
		RefreshTokenTTL: c.RefreshTokenTTL.String(),
	})
}

func (c *RateLimitConfig) UnmarshalJSON(b []byte) error {
	type alias RateLimitConfig
	aux := struct {
		*alias
		AuthWindow durationJSON `json:"auth_window"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.AuthWindow = aux.AuthWindow.Duration
	return nil
}

func (c RateLimitConfig) MarshalJSON() ([]byte, error) {
	type alias RateLimitConfig
	return json.Marshal(struct {
		alias
		AuthWindow string `json:"auth_window"`
	}{alias: alias(c), AuthWindow: c.AuthWindow.String()})
}

func (c *ReminderConfig) UnmarshalJSON(b []byte) error {
	type alias ReminderConfig
	aux := struct {
		*alias
		Lookahead durationJSON `json:"lookahead"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.Lookahead = aux.Lookahead.Duration
	return nil
}

func (c ReminderConfig) MarshalJSON() ([]byte, error) {
	type alias ReminderConfig
	return json.Marshal(struct {
		alias
		Lookahead string `json:"lookahead"`
	}{alias: alias(c), Lookahead: c.Lookahead.String()})
}
