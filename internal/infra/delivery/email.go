package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
	"compintel/internal/usecase/prioritize"
)

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// sendFunc matches smtp.SendMail; injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailDeliverer mails the full HTML report artifact.
type EmailDeliverer struct {
	config EmailConfig
	send   sendFunc
}

func NewEmail(config EmailConfig) *EmailDeliverer {
	return &EmailDeliverer{config: config, send: smtp.SendMail}
}

func (d *EmailDeliverer) Channel() string { return "email" }

// Deliver reads the rendered artifact back off disk and sends it as an
// HTML email. Reading from disk rather than memory means a retried
// delivery works even in a fresh process.
func (d *EmailDeliverer) Deliver(ctx context.Context, report *entity.Report, items []prioritize.Item) error {
	if !d.config.Enabled {
		return nil
	}
	if d.config.Host == "" || d.config.From == "" || len(d.config.To) == 0 {
		return faults.Critical(d.Channel(), fmt.Errorf("smtp not configured"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	html, err := os.ReadFile(report.ArtifactPath)
	if err != nil {
		return faults.Permanent(d.Channel(), fmt.Errorf("read report artifact: %w", err))
	}

	subject := fmt.Sprintf("Competitor intelligence report (%s to %s): %d articles",
		report.PeriodStart.Format("Jan 2"),
		report.PeriodEnd.Format("Jan 2"),
		report.ArticleCount)

	msg := buildMessage(d.config.From, d.config.To, subject, html)

	var auth smtp.Auth
	if d.config.Username != "" {
		auth = smtp.PlainAuth("", d.config.Username, d.config.Password, d.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", d.config.Host, d.config.Port)
	if err := d.send(addr, auth, d.config.From, d.config.To, msg); err != nil {
		// SMTP failures are usually connectivity or greylisting; let the
		// taxonomy's network rules decide, defaulting transient.
		return faults.Transient(d.Channel(), fmt.Errorf("smtp send: %w", err))
	}
	return nil
}

func buildMessage(from string, to []string, subject string, htmlBody []byte) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.Write(htmlBody)
	return []byte(b.String())
}
