package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"

	"gopkg.in/gomail.v2"
)

// Sender 发送已构造好的邮件，gomail.Dialer 满足该接口。
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg         *config.EmailConfig
	frontendURL string
	sender      Sender
	logger      *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, frontendURL string, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:         cfg,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		sender:      gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		logger:      logger,
	}
}

// WithSender 替换发送器，测试使用。
func (n *EmailNotifier) WithSender(s Sender) *EmailNotifier {
	n.sender = s
	return n
}

func (n *EmailNotifier) configured() bool {
	return n.cfg.SMTPHost != "" && n.cfg.SMTPUser != "" && n.cfg.FromEmail != ""
}

func (n *EmailNotifier) Welcome(ctx context.Context, user *model.User) error {
	return n.send(KindWelcome, user, "Welcome to Kanban Board!", welcomeTmpl, map[string]any{
		"Name": user.FirstName,
		"URL":  n.frontendURL,
	})
}

func (n *EmailNotifier) CardAssigned(ctx context.Context, msg CardAssignment) error {
	return n.send(KindAssignment, msg.Assignee, "You've been assigned to a card: "+msg.Card.Title, assignmentTmpl, map[string]any{
		"Name":       msg.Assignee.FirstName,
		"AssignedBy": displayName(msg.AssignedBy),
		"Card":       msg.Card,
		"Board":      msg.Board,
		"DueDate":    formatDue(msg.Card.DueDate),
		"URL":        n.boardURL(msg.Board),
	})
}

func (n *EmailNotifier) BoardInvitation(ctx context.Context, msg BoardInvitation) error {
	return n.send(KindInvitation, msg.Invitee, "You've been invited to join "+msg.Board.Name, invitationTmpl, map[string]any{
		"Name":      msg.Invitee.FirstName,
		"InvitedBy": displayName(msg.InvitedBy),
		"Board":     msg.Board,
		"Role":      string(msg.Role),
		"URL":       n.boardURL(msg.Board),
	})
}

func (n *EmailNotifier) DueDateReminder(ctx context.Context, msg DueReminder) error {
	return n.send(KindDueDate, msg.User, "Reminder: "+msg.Card.Title+" is due soon", dueTmpl, map[string]any{
		"Name":    msg.User.FirstName,
		"Card":    msg.Card,
		"Board":   msg.Board,
		"DueDate": formatDue(msg.Card.DueDate),
		"URL":     n.boardURL(msg.Board),
	})
}

func (n *EmailNotifier) send(kind Kind, to *model.User, subject string, tmpl *template.Template, data map[string]any) error {
	if !n.configured() {
		n.logger.Warn("email config missing, skip notification", slog.String("kind", string(kind)))
		return nil
	}
	if !Wants(to, kind) {
		return nil
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s email: %w", kind, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", to.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email notification sent", slog.String("to", to.Email), slog.String("kind", string(kind)))
	return nil
}

func (n *EmailNotifier) boardURL(b *model.Board) string {
	if b == nil {
		return n.frontendURL
	}
	return n.frontendURL + "/boards/" + b.ID
}

func displayName(u *model.User) string {
	if u == nil {
		return "Someone"
	}
	return u.FullName()
}

func formatDue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("Mon, Jan 2 2006 15:04 MST")
}

const layoutHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #3B82F6; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .cta { display: inline-block; padding: 12px 20px; background: #3B82F6; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">`

const layoutFoot = `
  </div>
</body>
</html>`

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(layoutHead + `
    <div class="header">Welcome to Kanban Board</div>
    <div class="content">
      <p>Hi {{.Name}},</p>
      <p>Your account is ready. Create your first board and invite your team.</p>
      <p><a class="cta" href="{{.URL}}">Get started</a></p>
    </div>` + layoutFoot))

	assignmentTmpl = template.Must(template.New("assignment").Parse(layoutHead + `
    <div class="header">New card assignment</div>
    <div class="content">
      <p>Hi {{.Name}},</p>
      <p>{{.AssignedBy}} assigned you to <strong>{{.Card.Title}}</strong> on the board <strong>{{.Board.Name}}</strong>.</p>
      {{if .Card.Description}}<p>{{.Card.Description}}</p>{{end}}
      {{if .DueDate}}<p>Due: {{.DueDate}}</p>{{end}}
      <p><a class="cta" href="{{.URL}}">Open board</a></p>
      <div class="footer">Priority: {{.Card.Priority}}</div>
    </div>` + layoutFoot))

	invitationTmpl = template.Must(template.New("invitation").Parse(layoutHead + `
    <div class="header">Board invitation</div>
    <div class="content">
      <p>Hi {{.Name}},</p>
      <p>{{.InvitedBy}} added you to <strong>{{.Board.Name}}</strong> as {{.Role}}.</p>
      {{if .Board.Description}}<p>{{.Board.Description}}</p>{{end}}
      <p><a class="cta" href="{{.URL}}">View board</a></p>
    </div>` + layoutFoot))

	dueTmpl = template.Must(template.New("due").Parse(layoutHead + `
    <div class="header">Card due soon</div>
    <div class="content">
      <p>Hi {{.Name}},</p>
      <p><strong>{{.Card.Title}}</strong> on <strong>{{.Board.Name}}</strong> is due {{.DueDate}}.</p>
      <p><a class="cta" href="{{.URL}}">Open board</a></p>
    </div>` + layoutFoot))
)
