package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/dedup"
	"kanbanhub/internal/pkg/logger"
	"kanbanhub/internal/pkg/notify"
	"kanbanhub/internal/store"
	"kanbanhub/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeNotifier struct {
	notify.Nop
	mu   sync.Mutex
	sent []notify.DueReminder
	err  error
}

func (f *fakeNotifier) DueDateReminder(ctx context.Context, n notify.DueReminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fixture struct {
	store *store.Store
	card  *model.Card
	user  *model.User
	board *model.Board
}

func setup(t *testing.T, due time.Time) fixture {
	t.Helper()
	s := storetest.New(t)
	ctx := context.Background()

	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Launch")
	col := storetest.Columns(t, s, board, "To Do")[0]
	cards := storetest.Cards(t, s, col, "Ship it", "Later")

	require.NoError(t, s.UpdateCard(ctx, cards[0].ID, map[string]any{"due_date": due}))
	far := due.Add(72 * time.Hour)
	require.NoError(t, s.UpdateCard(ctx, cards[1].ID, map[string]any{"due_date": far}))

	for _, c := range cards {
		require.NoError(t, s.CreateAssignment(ctx, &model.CardAssignment{
			CardID:     c.ID,
			UserID:     owner.ID,
			Role:       model.AssignmentAssignee,
			AssignedAt: time.Now(),
		}))
	}
	return fixture{store: s, card: cards[0], user: owner, board: board}
}

func TestRunOnceSendsOncePerDay(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := setup(t, now.Add(3*time.Hour))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := &fakeNotifier{}
	svc := NewService(f.store, n, dedup.NewDeduplicator(rdb, 36*time.Hour),
		config.ReminderConfig{Enabled: true, Schedule: "0 9 * * *", Lookahead: 24 * time.Hour}, logger.Discard())

	sent, err := svc.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Len(t, n.sent, 1)
	require.Equal(t, f.card.ID, n.sent[0].Card.ID)
	require.Equal(t, f.user.ID, n.sent[0].User.ID)
	require.Equal(t, f.board.ID, n.sent[0].Board.ID)

	sent, err = svc.RunOnce(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, sent, "same card and user should not be reminded twice on the same day")
}

func TestRunOnceSkipsCompletedCards(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := setup(t, now.Add(time.Hour))
	require.NoError(t, f.store.UpdateCard(context.Background(), f.card.ID, map[string]any{"is_completed": true}))

	n := &fakeNotifier{}
	svc := NewService(f.store, n, dedup.NewDeduplicator(nil, time.Hour),
		config.ReminderConfig{Enabled: true, Lookahead: 24 * time.Hour}, logger.Discard())

	sent, err := svc.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, sent)
}

func TestRunOnceReleasesOnFailure(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := setup(t, now.Add(time.Hour))

	n := &fakeNotifier{err: errors.New("smtp down")}
	svc := NewService(f.store, n, dedup.NewDeduplicator(nil, 36*time.Hour),
		config.ReminderConfig{Enabled: true, Lookahead: 24 * time.Hour}, logger.Discard())

	_, err := svc.RunOnce(context.Background(), now)
	require.ErrorContains(t, err, "smtp down")

	n.err = nil
	sent, err := svc.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sent, "failed reminder should be retried")
}

type flakySender struct {
	err  error
	sent int
}

func (f *flakySender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent += len(m)
	return nil
}

func TestRunOnceRetriesAfterEmailFailure(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := setup(t, now.Add(time.Hour))

	sender := &flakySender{err: errors.New("connection refused")}
	email := notify.NewEmailNotifier(&config.EmailConfig{
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		SMTPUser:  "bot",
		FromEmail: "bot@example.com",
	}, "http://localhost:3000", logger.Discard()).WithSender(sender)
	svc := NewService(f.store, email, dedup.NewDeduplicator(nil, 36*time.Hour),
		config.ReminderConfig{Enabled: true, Lookahead: 24 * time.Hour}, logger.Discard())

	_, err := svc.RunOnce(context.Background(), now)
	require.ErrorContains(t, err, "connection refused")
	require.Zero(t, sender.sent)

	sender.err = nil
	sent, err := svc.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 1, sender.sent)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	svc := NewService(nil, notify.Nop{}, nil, config.ReminderConfig{Enabled: true, Schedule: "not a cron"}, logger.Discard())
	require.Error(t, svc.Start(context.Background()))

	disabled := NewService(nil, notify.Nop{}, nil, config.ReminderConfig{}, logger.Discard())
	require.NoError(t, disabled.Start(context.Background()))
	disabled.Stop()
}
