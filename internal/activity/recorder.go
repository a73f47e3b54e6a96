// Package activity 追加审计日志，写入失败只记录日志，不影响调用方。
package activity

import (
	"context"
	"log/slog"
	"time"

	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/metrics"
	"kanbanhub/internal/pkg/worker"
)

// Writer 由 store.Store 实现。
type Writer interface {
	CreateActivity(ctx context.Context, a *model.Activity) error
}

// Entry 一条待记录的活动。
type Entry struct {
	Type        model.ActivityType
	Description string
	Metadata    map[string]any
	UserID      string
	BoardID     string
	ColumnID    string
	CardID      string
	System      bool
}

// Recorder 活动记录器。pool 为 nil 时同步写入。
type Recorder struct {
	writer  Writer
	pool    *worker.Pool
	logger  *slog.Logger
	timeout time.Duration
}

func NewRecorder(writer Writer, pool *worker.Pool, logger *slog.Logger) *Recorder {
	return &Recorder{
		writer:  writer,
		pool:    pool,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record 记录一条活动，从不返回错误。
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.writer == nil {
		return
	}
	if !e.Type.Valid() {
		metrics.ActivityFailedTotal.WithLabelValues("invalid_type").Inc()
		r.logger.Warn("activity type rejected", slog.String("type", string(e.Type)))
		return
	}

	row := toModel(e)
	if r.pool == nil {
		r.write(context.WithoutCancel(ctx), row)
		return
	}
	// 请求结束后 ctx 会被取消，后台写入使用独立的 context
	if !r.pool.Submit("activity:"+string(e.Type), func(workerCtx context.Context) error {
		r.write(workerCtx, row)
		return nil
	}) {
		metrics.ActivityFailedTotal.WithLabelValues("dropped").Inc()
	}
}

func (r *Recorder) write(ctx context.Context, row *model.Activity) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.writer.CreateActivity(ctx, row); err != nil {
		metrics.ActivityFailedTotal.WithLabelValues("write").Inc()
		r.logger.Error("record activity failed",
			slog.String("type", string(row.Type)),
			slog.String("error", err.Error()))
		return
	}
	metrics.ActivityRecordedTotal.WithLabelValues(string(row.Type)).Inc()
}

func toModel(e Entry) *model.Activity {
	meta := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = v
	}
	return &model.Activity{
		Type:        e.Type,
		Description: e.Description,
		Metadata:    meta,
		IsSystem:    e.System,
		IsVisible:   true,
		UserID:      optional(e.UserID),
		BoardID:     optional(e.BoardID),
		ColumnID:    optional(e.ColumnID),
		CardID:      optional(e.CardID),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
