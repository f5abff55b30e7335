// Package notify sends the plaintext emails that confirm a submission and
// announce its resolution.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"github.com/joescharf/campusreport/internal/models"
)

// Notifier is told about issue lifecycle events that concern the submitter.
type Notifier interface {
	IssueReceived(ctx context.Context, issue *models.Issue) error
	IssueResolved(ctx context.Context, issue *models.Issue) error
}

// Config holds SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TeamName signs the emails, e.g. "Your HSG Service Team".
	TeamName string
	// ToolName is the product name mentioned in the resolved email.
	ToolName string
}

// SendFunc matches smtp.SendMail so tests can capture messages.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier delivers notifications through an SMTP relay. smtp.SendMail
// upgrades with STARTTLS when the server offers it.
type SMTPNotifier struct {
	cfg  Config
	send SendFunc
}

// NewSMTPNotifier creates a notifier for the given relay.
func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.TeamName == "" {
		cfg.TeamName = "Your Service Team"
	}
	if cfg.ToolName == "" {
		cfg.ToolName = "Reporting Tool"
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

// WithSendFunc replaces the transport, for tests.
func (n *SMTPNotifier) WithSendFunc(f SendFunc) *SMTPNotifier {
	n.send = f
	return n
}

// IssueReceived sends the "issue received" confirmation.
func (n *SMTPNotifier) IssueReceived(ctx context.Context, issue *models.Issue) error {
	return n.deliver(ctx, models.NotificationReceived, receivedTmpl, issue)
}

// IssueResolved sends the "issue resolved" notice.
func (n *SMTPNotifier) IssueResolved(ctx context.Context, issue *models.Issue) error {
	return n.deliver(ctx, models.NotificationResolved, resolvedTmpl, issue)
}

func (n *SMTPNotifier) deliver(ctx context.Context, kind models.NotificationKind, tmpl *template.Template, issue *models.Issue) error {
	if err := ctx.Err(); err != nil {
		return &models.NotificationError{Kind: kind, Recipient: issue.SubmitterEmail, Err: err}
	}

	msg, err := n.render(tmpl, issue)
	if err != nil {
		return &models.NotificationError{Kind: kind, Recipient: issue.SubmitterEmail, Err: err}
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(addr, auth, n.cfg.From, []string{issue.SubmitterEmail}, msg); err != nil {
		return &models.NotificationError{Kind: kind, Recipient: issue.SubmitterEmail, Err: err}
	}
	slog.Info("notification sent", "kind", kind, "issue", issue.ID, "to", issue.SubmitterEmail)
	return nil
}

type templateData struct {
	Issue    *models.Issue
	Team     string
	Tool     string
	Types    string
	Received string
}

func (n *SMTPNotifier) render(tmpl *template.Template, issue *models.Issue) ([]byte, error) {
	var body bytes.Buffer
	data := templateData{
		Issue:    issue,
		Team:     n.cfg.TeamName,
		Tool:     n.cfg.ToolName,
		Types:    issue.IssueTypeList(),
		Received: issue.SubmittedAt.Format("2006-01-02 15:04"),
	}
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	subject, text, _ := strings.Cut(body.String(), "\n")
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", issue.SubmitterEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", strings.TrimSpace(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(strings.TrimLeft(text, "\n"), "\n", "\r\n"))
	return msg.Bytes(), nil
}

// LogNotifier records notifications in the log instead of sending them. It
// is used when no SMTP relay is configured.
type LogNotifier struct{}

func (LogNotifier) IssueReceived(_ context.Context, issue *models.Issue) error {
	slog.Info("smtp disabled, skipping notification", "kind", models.NotificationReceived, "issue", issue.ID, "to", issue.SubmitterEmail)
	return nil
}

func (LogNotifier) IssueResolved(_ context.Context, issue *models.Issue) error {
	slog.Info("smtp disabled, skipping notification", "kind", models.NotificationResolved, "issue", issue.ID, "to", issue.SubmitterEmail)
	return nil
}
