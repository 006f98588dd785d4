package notify

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zoom_connector/internal/config"
	"zoom_connector/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleResult(status domain.RunStatus) *domain.RunResult {
	return &domain.RunResult{
		RunID:           "run-1",
		ReportType:      "meetings",
		Status:          status,
		WindowStart:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		PagesFetched:    2,
		RecordsLoaded:   147,
		MappingFailures: 3,
		ErrorSummary:    "participant p9: join_time \"garbage\": parsing time error",
		Duration:        90 * time.Second,
	}
}

func TestNotify_DisabledIsNoop(t *testing.T) {
	m := NewMailer(config.MailerConfig{Enabled: false}, testLogger())
	err := m.Notify(context.Background(), sampleResult(domain.RunFailed))
	assert.NoError(t, err)
}

func TestNotify_SkipsNoWork(t *testing.T) {
	m := NewMailer(config.MailerConfig{Enabled: true}, testLogger())
	err := m.Notify(context.Background(), sampleResult(domain.RunNoWork))
	assert.NoError(t, err)
}

func TestNotify_SkipsSuccessUnlessOptedIn(t *testing.T) {
	m := NewMailer(config.MailerConfig{Enabled: true}, testLogger())
	err := m.Notify(context.Background(), sampleResult(domain.RunCompleted))
	assert.NoError(t, err)
}

func TestComposeBody_IncludesCountsAndErrors(t *testing.T) {
	body := composeBody(sampleResult(domain.RunFailed))

	assert.Contains(t, body, "status failed")
	assert.Contains(t, body, "Records loaded:   147")
	assert.Contains(t, body, "Mapping failures: 3")
	assert.Contains(t, body, "2024-01-01T00:00:00Z to 2024-01-02T00:00:00Z")
	assert.Contains(t, body, "join_time")
}

func TestComposeMessage_SanitizesHeaders(t *testing.T) {
	msg := string(composeMessage(
		"connector@school.org",
		[]string{"ops@school.org\r\nBcc: attacker@evil.example"},
		"Subject\nwith newline",
		"body",
	))

	headers, _, _ := strings.Cut(msg, "\r\n\r\n")
	assert.NotContains(t, headers, "\r\nBcc:")
	assert.NotContains(t, headers, "Subject\n")
	assert.Contains(t, msg, "Subject: Subjectwith newline")
}
