package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"zoom_connector/internal/domain"
)

// ErrWatermarkConflict means another run committed the same report type's
// watermark since it was read. The losing run must not advance anything;
// re-extraction is safe because loads are idempotent.
var ErrWatermarkConflict = errors.New("watermark modified by concurrent run")

// WatermarkStore persists the last successfully processed window per report
// type. The read-then-commit pair is the mutual-exclusion point between
// concurrent runs of the same report type, guarded by a compare-and-swap on
// updated_at.
type WatermarkStore struct {
	db           *sqlx.DB
	initialStart time.Time
}

// NewWatermarkStore creates a store. initialStart is the historical start
// date used as the default watermark for a report type's first-ever run.
func NewWatermarkStore(db *sqlx.DB, initialStart time.Time) *WatermarkStore {
	return &WatermarkStore{db: db, initialStart: initialStart.UTC()}
}

// Get returns the stored watermark, or the initial watermark (zero
// UpdatedAt) when the report type has never completed a run.
func (s *WatermarkStore) Get(ctx context.Context, reportType string) (*domain.SyncWatermark, error) {
	var wm domain.SyncWatermark
	query := `
		SELECT report_type, window_start, window_end, updated_at
		FROM sync_watermarks
		WHERE report_type = $1`

	err := s.db.GetContext(ctx, &wm, query, reportType)
	if err == sql.ErrNoRows {
		return &domain.SyncWatermark{
			ReportType:  reportType,
			WindowStart: s.initialStart,
			WindowEnd:   s.initialStart,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

// Commit advances the watermark to the given window. prev must be the
// watermark the run started from: a first-ever commit inserts, a later
// commit updates only the row whose updated_at still matches prev. Either
// way, zero affected rows means a concurrent run won the race and
// ErrWatermarkConflict is returned.
func (s *WatermarkStore) Commit(ctx context.Context, prev *domain.SyncWatermark, windowStart, windowEnd time.Time) error {
	var res sql.Result
	var err error

	if prev.UpdatedAt.IsZero() {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO sync_watermarks (report_type, window_start, window_end, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (report_type) DO NOTHING`,
			prev.ReportType, windowStart, windowEnd,
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE sync_watermarks
			SET window_start = $2, window_end = $3, updated_at = now()
			WHERE report_type = $1 AND updated_at = $4`,
			prev.ReportType, windowStart, windowEnd, prev.UpdatedAt,
		)
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWatermarkConflict
	}
	return nil
}
