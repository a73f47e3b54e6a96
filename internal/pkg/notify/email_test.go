package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/logger"

	"gopkg.in/gomail.v2"
	"gorm.io/datatypes"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func testEmailConfig() *config.EmailConfig {
	return &config.EmailConfig{
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		SMTPUser:  "bot",
		SMTPPass:  "secret",
		FromEmail: "bot@example.com",
	}
}

func testUser(email string) *model.User {
	return &model.User{
		ID:          "u-" + email,
		Email:       email,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Preferences: datatypes.NewJSONType(model.DefaultPreferences()),
	}
}

func render(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	return buf.String()
}

func TestCardAssignedSendsEmail(t *testing.T) {
	sender := &fakeSender{}
	n := NewEmailNotifier(testEmailConfig(), "http://localhost:3000/", logger.Discard()).WithSender(sender)

	due := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := n.CardAssigned(context.Background(), CardAssignment{
		Assignee:   testUser("ada@example.com"),
		AssignedBy: testUser("grace@example.com"),
		Card:       &model.Card{ID: "c1", Title: "Write parser", Priority: model.PriorityHigh, DueDate: &due},
		Board:      &model.Board{ID: "b1", Name: "Compiler"},
	})
	if err != nil {
		t.Fatalf("card assigned: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "ada@example.com" {
		t.Fatalf("unexpected recipient %v", got)
	}
	if !strings.Contains(msg.GetHeader("Subject")[0], "Write parser") {
		t.Fatalf("subject should name the card: %v", msg.GetHeader("Subject"))
	}
	body := render(t, msg)
	if !strings.Contains(body, "http://localhost:3000/boards/b1") {
		t.Fatalf("body should link to the board")
	}
}

func TestPreferencesSuppressEmail(t *testing.T) {
	sender := &fakeSender{}
	n := NewEmailNotifier(testEmailConfig(), "http://localhost:3000", logger.Discard()).WithSender(sender)

	user := testUser("ada@example.com")
	prefs := model.DefaultPreferences()
	prefs.Notifications.BoardInvite = false
	user.Preferences = datatypes.NewJSONType(prefs)

	err := n.BoardInvitation(context.Background(), BoardInvitation{
		Invitee: user,
		Board:   &model.Board{ID: "b1", Name: "Roadmap"},
		Role:    model.RoleMember,
	})
	if err != nil {
		t.Fatalf("invitation: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected invitation to be suppressed")
	}
}

func TestMissingSMTPConfigSkips(t *testing.T) {
	sender := &fakeSender{err: errors.New("should not dial")}
	n := NewEmailNotifier(&config.EmailConfig{}, "", logger.Discard()).WithSender(sender)
	if err := n.Welcome(context.Background(), testUser("ada@example.com")); err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
}

func TestSendErrorIsReturned(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	n := NewEmailNotifier(testEmailConfig(), "", logger.Discard()).WithSender(sender)
	err := n.Welcome(context.Background(), testUser("ada@example.com"))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected send error, got %v", err)
	}
}

type countingNotifier struct {
	Nop
	welcomes chan string
}

func (c *countingNotifier) Welcome(ctx context.Context, u *model.User) error {
	c.welcomes <- u.Email
	return errors.New("smtp down")
}

func TestAsyncNeverReturnsError(t *testing.T) {
	next := &countingNotifier{welcomes: make(chan string, 1)}
	a := NewAsync(next, nil, logger.Discard())
	if err := a.Welcome(context.Background(), testUser("ada@example.com")); err != nil {
		t.Fatalf("async should swallow errors, got %v", err)
	}
	select {
	case got := <-next.welcomes:
		if got != "ada@example.com" {
			t.Fatalf("unexpected recipient %s", got)
		}
	default:
		t.Fatalf("expected inline delivery without a pool")
	}
}
