// Package store 基于 gorm 的实体存储。
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound 记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrConflict 违反唯一约束。
	ErrConflict = errors.New("record already exists")
)

// Store 封装所有实体的读写。
type Store struct {
	db *gorm.DB
}

// New 使用已打开的连接创建 Store。
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 返回底层连接。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Open 按配置打开数据库连接。
//
// driver 支持 mysql 与 sqlite。外键约束不在迁移时创建，活动日志等引用允许悬空。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "mysql", "":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,

		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// 内存库只在单连接内可见
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

// Models 返回需要迁移的全部模型。
func Models() []any {
	return []any{
		&model.User{},
		&model.Board{},
		&model.BoardMember{},
		&model.Column{},
		&model.Card{},
		&model.CardAssignment{},
		&model.Activity{},
	}
}

// Migrate 执行自动迁移。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close 关闭底层连接池。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping 用于健康检查。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("SELECT 1").Error
}

// Transaction 在事务中执行 fn，fn 收到的 Store 绑定到该事务。
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translate 把驱动错误转换为 ErrNotFound / ErrConflict。
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return ErrConflict
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}
	return err
}

// Page 分页与排序参数。
type Page struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset 返回 SQL offset。
func (p Page) Offset() int {
	n := p.normalized()
	return (n.Page - 1) * n.Limit
}

// orderBy 通过白名单生成排序子句，未知字段使用 fallback。
func (p Page) orderBy(table string, allowed map[string]string, fallback string) string {
	col, ok := allowed[p.SortBy]
	if !ok {
		col = fallback
	}
	dir := "DESC"
	if strings.EqualFold(p.SortOrder, "ASC") {
		dir = "ASC"
	}
	return fmt.Sprintf("%s.%s %s", table, col, dir)
}

var (
	boardSortColumns = map[string]string{
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"position":  "position",
		"name":      "name",
		"title":     "name",
	}
	cardSortColumns = map[string]string{
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"position":  "position",
		"title":     "title",
		"dueDate":   "due_date",
	}
)

func notArchived(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ?", false)
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ?", false).Order("position ASC").Order("created_at ASC")
}
