package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"zoom_connector/internal/domain"
	"zoom_connector/internal/zoom"
)

// Source produces the paginated raw pages of one report window.
type Source interface {
	FetchPages(reportType string, windowStart, windowEnd time.Time) (PageIterator, error)
}

// PageIterator is a forward-only page sequence. Next returns (nil, nil) once
// the provider stops returning a continuation token.
type PageIterator interface {
	Next(ctx context.Context) (*zoom.RawPage, error)
}

type ParticipantStore interface {
	UpsertBatch(ctx context.Context, records []domain.ParticipantRecord) (int, error)
}

type WatermarkStore interface {
	Get(ctx context.Context, reportType string) (*domain.SyncWatermark, error)
	Commit(ctx context.Context, prev *domain.SyncWatermark, windowStart, windowEnd time.Time) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives the result of every terminal run and decides whether and
// how to report it to operators.
type Notifier interface {
	Notify(ctx context.Context, result *domain.RunResult) error
}

// Publisher emits run summaries for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, result *domain.RunResult) error
	Close() error
}

// ClientSource adapts the Zoom client to the Source interface.
type ClientSource struct {
	Client *zoom.Client
}

func (s ClientSource) FetchPages(reportType string, windowStart, windowEnd time.Time) (PageIterator, error) {
	return s.Client.FetchPages(reportType, windowStart, windowEnd)
}
