// Package reminder 定时给即将到期卡片的负责人发送提醒。
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/dedup"
	"kanbanhub/internal/pkg/metrics"
	"kanbanhub/internal/pkg/notify"

	"github.com/robfig/cron/v3"
)

// Source 读取到期卡片与所属看板。
type Source interface {
	DueCards(ctx context.Context, from, to time.Time) ([]model.Card, error)
	BoardByID(ctx context.Context, id string) (*model.Board, error)
}

// Service 到期提醒任务。
//
// 同一张卡片同一个用户每天最多提醒一次，去重状态保存在 Deduplicator 中。
type Service struct {
	source   Source
	notifier notify.Notifier
	dedup    *dedup.Deduplicator
	cfg      config.ReminderConfig
	logger   *slog.Logger

	cron *cron.Cron
	now  func() time.Time
}

func NewService(source Source, notifier notify.Notifier, d *dedup.Deduplicator, cfg config.ReminderConfig, logger *slog.Logger) *Service {
	return &Service{
		source:   source,
		notifier: notifier,
		dedup:    d,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start 按 cron 表达式注册任务。未启用时直接返回。
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("due date reminders disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx, s.now()); err != nil {
			s.logger.Error("due date reminder run failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("due date reminders scheduled",
		slog.String("schedule", s.cfg.Schedule),
		slog.Duration("lookahead", s.cfg.Lookahead))
	return nil
}

// Stop 停止调度并等待正在执行的任务结束。
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce 扫描 [now, now+lookahead) 内到期的卡片并发送提醒，返回发送数量。
func (s *Service) RunOnce(ctx context.Context, now time.Time) (int, error) {
	lookahead := s.cfg.Lookahead
	if lookahead <= 0 {
		lookahead = 24 * time.Hour
	}
	cards, err := s.source.DueCards(ctx, now, now.Add(lookahead))
	if err != nil {
		return 0, err
	}

	boards := make(map[string]*model.Board)
	day := now.UTC().Format(time.DateOnly)
	sent := 0
	var errs []error

	for i := range cards {
		card := &cards[i]
		board, ok := boards[card.BoardID]
		if !ok {
			board, err = s.source.BoardByID(ctx, card.BoardID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			boards[card.BoardID] = board
		}
		if board.IsArchived {
			continue
		}

		for _, a := range card.Assignments {
			if a.User == nil || !a.User.IsActive {
				continue
			}
			key := dedup.Key("due", card.ID, a.UserID, day)
			first, err := s.dedup.Claim(ctx, key)
			if err != nil {
				s.logger.Warn("reminder dedup failed", slog.String("error", err.Error()))
				continue
			}
			if !first {
				continue
			}
			if err := s.notifier.DueDateReminder(ctx, notify.DueReminder{User: a.User, Card: card, Board: board}); err != nil {
				_ = s.dedup.Release(ctx, key)
				errs = append(errs, err)
				continue
			}
			sent++
			metrics.RemindersSentTotal.Inc()
		}
	}

	s.logger.Info("due date reminders processed",
		slog.Int("cards", len(cards)),
		slog.Int("sent", sent))
	return sent, errors.Join(errs...)
}
