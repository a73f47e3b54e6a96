// Package worker 提供有界内存队列与固定数量的 worker，用于活动日志与通知等后台任务。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"kanbanhub/internal/pkg/metrics"
)

// Job 后台任务。
type Job func(ctx context.Context) error

type task struct {
	name string
	run  Job
}

// Pool 固定大小的 worker 池。
//
// Submit 不阻塞，队列满或已关闭时丢弃任务；Shutdown 会等待已入队任务执行完。
type Pool struct {
	logger  *slog.Logger
	workers int
	tasks   chan task

	wg     sync.WaitGroup
	mu     sync.RWMutex // 保护 closed 与 close(tasks)
	closed bool

	stats poolStats
}

type poolStats struct {
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Stats 统计快照。
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Panics    int64
}

// NewPool 创建 worker 池，workers 与 capacity 至少为 1。
func NewPool(logger *slog.Logger, workers, capacity int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		logger:  logger,
		workers: workers,
		tasks:   make(chan task, capacity),
	}
}

// Start 启动 worker。ctx 取消后 worker 立即退出，未执行的任务被丢弃。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(ctx, t, id)
		}
	}
}

func (p *Pool) execute(ctx context.Context, t task, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.panics.Add(1)
			p.logger.Error("job panic recovered",
				slog.String("job", t.name),
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := t.run(ctx); err != nil {
		p.stats.failed.Add(1)
		p.logger.Warn("job failed",
			slog.String("job", t.name),
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))
		return
	}
	p.stats.succeeded.Add(1)
}

// Submit 入队任务，返回是否成功。
func (p *Pool) Submit(name string, job Job) bool {
	if job == nil {
		return false
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.drop(name, "closed")
		return false
	}
	select {
	case p.tasks <- task{name: name, run: job}:
		p.mu.RUnlock()
		p.stats.submitted.Add(1)
		return true
	default:
		p.mu.RUnlock()
		p.drop(name, "full")
		return false
	}
}

func (p *Pool) drop(name, reason string) {
	p.stats.dropped.Add(1)
	metrics.WorkerDroppedTotal.Inc()
	p.logger.Warn("job dropped",
		slog.String("job", name),
		slog.String("reason", reason),
		slog.Int("pending", len(p.tasks)))
}

// Shutdown 拒绝新任务并等待队列排空，超时返回错误。
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool shutdown timeout after %s", timeout)
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.stats.submitted.Load(),
		Succeeded: p.stats.succeeded.Load(),
		Failed:    p.stats.failed.Load(),
		Dropped:   p.stats.dropped.Load(),
		Panics:    p.stats.panics.Load(),
	}
}

// Pending 返回待执行任务数。
func (p *Pool) Pending() int {
	return len(p.tasks)
}

func (p *Pool) String() string {
	s := p.Stats()
	return fmt.Sprintf("Pool[workers=%d, capacity=%d, pending=%d, submitted=%d, succeeded=%d, failed=%d, dropped=%d, panics=%d]",
		p.workers, cap(p.tasks), p.Pending(), s.Submitted, s.Succeeded, s.Failed, s.Dropped, s.Panics)
}
