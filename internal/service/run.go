package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"zoom_connector/internal/config"
	"zoom_connector/internal/domain"
	"zoom_connector/internal/mapper"
)

// maxSummaryLen bounds RunResult.ErrorSummary so a pathological page cannot
// blow up notification emails.
const maxSummaryLen = 2000

// PipelineService drives one extraction run end-to-end: window computation,
// page-by-page extract/map/load, watermark commit, and result delivery to
// the notifier and publisher.
//
// A run is all-or-nothing with respect to its window: any failure leaves the
// watermark untouched, so the next run re-attempts the same window.
// Re-extraction is safe because batch loads are idempotent upserts.
type PipelineService struct {
	source       Source
	mapper       *mapper.Mapper
	participants ParticipantStore
	watermarks   WatermarkStore
	txManager    TransactionManager
	notifier     Notifier
	publisher    Publisher
	logger       *slog.Logger
	config       config.SyncConfig
}

func NewPipelineService(
	source Source,
	recordMapper *mapper.Mapper,
	participants ParticipantStore,
	watermarks WatermarkStore,
	txManager TransactionManager,
	notifier Notifier,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *PipelineService {
	return &PipelineService{
		source:       source,
		mapper:       recordMapper,
		participants: participants,
		watermarks:   watermarks,
		txManager:    txManager,
		notifier:     notifier,
		publisher:    publisher,
		logger:       logger,
		config:       cfg,
	}
}

// Run executes one pipeline run for the report type. The returned result is
// never nil; err is non-nil exactly when the run failed.
func (s *PipelineService) Run(ctx context.Context, reportType string) (*domain.RunResult, error) {
	result := &domain.RunResult{
		RunID:      uuid.NewString(),
		ReportType: reportType,
		StartedAt:  time.Now().UTC(),
	}

	logger := s.logger.With("report_type", reportType, "run_id", result.RunID)
	logger.Info("starting run")

	err := s.run(ctx, result, logger)
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		result.Status = domain.RunFailed
		appendSummary(result, err.Error())
		logger.Error("run failed",
			"pages_fetched", result.PagesFetched,
			"records_loaded", result.RecordsLoaded,
			"error", err,
		)
	} else {
		logger.Info("run finished",
			"status", result.Status,
			"pages_fetched", result.PagesFetched,
			"records_loaded", result.RecordsLoaded,
			"mapping_failures", result.MappingFailures,
			"duration", result.Duration,
		)
	}

	s.deliver(ctx, result, logger)

	return result, err
}

func (s *PipelineService) run(ctx context.Context, result *domain.RunResult, logger *slog.Logger) error {
	wm, err := s.watermarks.Get(ctx, result.ReportType)
	if err != nil {
		return fmt.Errorf("get watermark: %w", err)
	}

	windowStart := wm.WindowEnd
	windowEnd := time.Now().UTC().Add(-s.config.SafetyLag)
	if capped := windowStart.Add(s.config.MaxWindow); windowEnd.After(capped) {
		windowEnd = capped
	}
	result.WindowStart = windowStart
	result.WindowEnd = windowEnd

	if !windowEnd.After(windowStart) {
		result.Status = domain.RunNoWork
		logger.Info("no finalized window to extract", "watermark", wm.WindowEnd)
		return nil
	}

	logger.Info("extracting window",
		"window_start", windowStart,
		"window_end", windowEnd,
	)

	pages, err := s.source.FetchPages(result.ReportType, windowStart, windowEnd)
	if err != nil {
		return err
	}

	// Each page is mapped and loaded before the next fetch: bounded memory,
	// and pages stay in provider order (continuation streams are stateful).
	for {
		page, err := pages.Next(ctx)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", result.PagesFetched+1, err)
		}
		if page == nil {
			break
		}
		result.PagesFetched++

		batch, err := s.mapper.MapPage(page)
		if err != nil {
			return fmt.Errorf("map page %d: %w", result.PagesFetched, err)
		}

		result.MappingFailures += len(batch.Failures)
		for _, failure := range batch.Failures {
			appendSummary(result, failure)
		}

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			loaded, err := s.participants.UpsertBatch(txCtx, batch.Records)
			if err != nil {
				return err
			}
			result.RecordsLoaded += loaded
			return nil
		})
		if err != nil {
			return err
		}

		logger.Debug("loaded page",
			"page", result.PagesFetched,
			"records", len(batch.Records),
			"skipped", len(batch.Failures),
		)
	}

	if err := s.watermarks.Commit(ctx, wm, windowStart, windowEnd); err != nil {
		return fmt.Errorf("commit watermark: %w", err)
	}

	result.Status = domain.RunCompleted
	return nil
}

// deliver hands the terminal result to the notifier and publisher. Their
// failures are logged but never change the run outcome.
func (s *PipelineService) deliver(ctx context.Context, result *domain.RunResult, logger *slog.Logger) {
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, result); err != nil {
			logger.Error("notify failed", "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, result); err != nil {
			logger.Error("publish run event failed", "error", err)
		}
	}
}

func appendSummary(result *domain.RunResult, msg string) {
	if len(result.ErrorSummary) >= maxSummaryLen {
		return
	}
	if result.ErrorSummary != "" {
		result.ErrorSummary += "; "
	}
	result.ErrorSummary += msg
	if len(result.ErrorSummary) > maxSummaryLen {
		result.ErrorSummary = result.ErrorSummary[:maxSummaryLen] + "..."
	}
}
