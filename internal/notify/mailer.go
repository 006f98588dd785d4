// Package notify delivers run summaries to operators by email. Formatting is
// deliberately plain; the pipeline only promises a structured summary, not a
// pretty one.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"zoom_connector/internal/config"
	"zoom_connector/internal/domain"
)

var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// Mailer sends one summary email per run, gated by its config: failures are
// always reported, successes only when notify_on_success is set, and no-work
// runs are never mailed.
type Mailer struct {
	cfg    config.MailerConfig
	logger *slog.Logger
}

func NewMailer(cfg config.MailerConfig, logger *slog.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
	}
}

func (m *Mailer) Notify(_ context.Context, result *domain.RunResult) error {
	if !m.cfg.Enabled {
		return nil
	}

	switch result.Status {
	case domain.RunNoWork:
		return nil
	case domain.RunCompleted:
		if !m.cfg.NotifyOnSuccess {
			return nil
		}
	}

	subject := fmt.Sprintf("Zoom Connector: %s (%s)", result.Status, result.ReportType)
	msg := composeMessage(m.cfg.From, m.cfg.To, subject, composeBody(result))

	m.logger.Info("sending notification",
		"to", strings.Join(m.cfg.To, ","),
		"status", result.Status,
	)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := smtp.SendMail(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func composeMessage(from string, to []string, subject, body string) []byte {
	sanitized := make([]string, len(to))
	for i, addr := range to {
		sanitized[i] = headerSanitizer.Replace(addr)
	}

	msg := "From: " + headerSanitizer.Replace(from) + "\r\n" +
		"To: " + strings.Join(sanitized, ",") + "\r\n" +
		"Subject: " + headerSanitizer.Replace(subject) + "\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		body
	return []byte(msg)
}

func composeBody(result *domain.RunResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run %s for report type %q finished with status %s.\r\n\r\n", result.RunID, result.ReportType, result.Status)
	fmt.Fprintf(&sb, "Window:           %s to %s\r\n",
		result.WindowStart.Format(time.RFC3339), result.WindowEnd.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Pages fetched:    %d\r\n", result.PagesFetched)
	fmt.Fprintf(&sb, "Records loaded:   %d\r\n", result.RecordsLoaded)
	fmt.Fprintf(&sb, "Mapping failures: %d\r\n", result.MappingFailures)
	fmt.Fprintf(&sb, "Duration:         %s\r\n", result.Duration.Round(time.Millisecond))

	if result.ErrorSummary != "" {
		fmt.Fprintf(&sb, "\r\nErrors:\r\n%s\r\n", result.ErrorSummary)
	}

	return sb.String()
}
