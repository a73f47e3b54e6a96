package notify

import (
	"context"
	"log/slog"

	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/metrics"
	"kanbanhub/internal/pkg/worker"
)

// Async 把通知放到 worker 池执行，调用方立即返回 nil。
//
// 发送失败只记录日志与指标。
type Async struct {
	next   Notifier
	pool   *worker.Pool
	logger *slog.Logger
}

func NewAsync(next Notifier, pool *worker.Pool, logger *slog.Logger) *Async {
	return &Async{next: next, pool: pool, logger: logger}
}

func (a *Async) Welcome(ctx context.Context, user *model.User) error {
	a.dispatch(KindWelcome, func(ctx context.Context) error { return a.next.Welcome(ctx, user) })
	return nil
}

func (a *Async) CardAssigned(ctx context.Context, n CardAssignment) error {
	a.dispatch(KindAssignment, func(ctx context.Context) error { return a.next.CardAssigned(ctx, n) })
	return nil
}

func (a *Async) BoardInvitation(ctx context.Context, n BoardInvitation) error {
	a.dispatch(KindInvitation, func(ctx context.Context) error { return a.next.BoardInvitation(ctx, n) })
	return nil
}

func (a *Async) DueDateReminder(ctx context.Context, n DueReminder) error {
	a.dispatch(KindDueDate, func(ctx context.Context) error { return a.next.DueDateReminder(ctx, n) })
	return nil
}

func (a *Async) dispatch(kind Kind, send func(ctx context.Context) error) {
	job := func(ctx context.Context) error {
		if err := send(ctx); err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(kind), "failed").Inc()
			a.logger.Error("notification failed", slog.String("kind", string(kind)), slog.String("error", err.Error()))
			return nil
		}
		metrics.NotificationsTotal.WithLabelValues(string(kind), "sent").Inc()
		return nil
	}
	if a.pool == nil {
		_ = job(context.Background())
		return
	}
	if !a.pool.Submit("notify:"+string(kind), job) {
		metrics.NotificationsTotal.WithLabelValues(string(kind), "dropped").Inc()
	}
}
