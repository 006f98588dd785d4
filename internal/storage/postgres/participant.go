package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"zoom_connector/internal/domain"
)

// LoadError reports a failed batch write. The surrounding transaction rolls
// back, so a LoadError never leaves a partially committed batch behind.
type LoadError struct {
	Code string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("load batch (sqlstate %s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("load batch: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

const participantColumns = 11

// ParticipantStore persists mapped attendance rows.
type ParticipantStore struct {
	db *sqlx.DB
}

func NewParticipantStore(db *sqlx.DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

// UpsertBatch writes one batch in a single multi-row upsert keyed on
// (meeting_uuid, participant_id, join_time). Rows whose payload is unchanged
// are skipped for write amplification but still count toward the returned
// total, so re-loading a window reports the same number either way.
func (s *ParticipantStore) UpsertBatch(ctx context.Context, records []domain.ParticipantRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO participants (
			meeting_uuid, meeting_id, participant_id, name, user_email,
			join_time, leave_time, duration_seconds, device, client_version, ip_address
		) VALUES `)

	args := make([]interface{}, 0, len(records)*participantColumns)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := 0; col < participantColumns; col++ {
			if col > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*participantColumns + col + 1))
		}
		sb.WriteString(")")
		args = append(args,
			r.MeetingUUID, r.MeetingID, r.ParticipantID, r.Name, r.UserEmail,
			r.JoinTime, r.LeaveTime, r.DurationSeconds, r.Device, r.ClientVersion, r.IPAddress,
		)
	}

	sb.WriteString(`
		ON CONFLICT (meeting_uuid, participant_id, join_time) DO UPDATE SET
			meeting_id = EXCLUDED.meeting_id,
			name = EXCLUDED.name,
			user_email = EXCLUDED.user_email,
			leave_time = EXCLUDED.leave_time,
			duration_seconds = EXCLUDED.duration_seconds,
			device = EXCLUDED.device,
			client_version = EXCLUDED.client_version,
			ip_address = EXCLUDED.ip_address
		WHERE (participants.meeting_id, participants.name, participants.user_email,
			participants.leave_time, participants.duration_seconds, participants.device,
			participants.client_version, participants.ip_address)
		IS DISTINCT FROM
			(EXCLUDED.meeting_id, EXCLUDED.name, EXCLUDED.user_email,
			EXCLUDED.leave_time, EXCLUDED.duration_seconds, EXCLUDED.device,
			EXCLUDED.client_version, EXCLUDED.ip_address)`)

	exec := GetExecutor(ctx, s.db)
	if _, err := exec.ExecContext(ctx, sb.String(), args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return 0, &LoadError{Code: string(pqErr.Code), Err: err}
		}
		return 0, &LoadError{Err: err}
	}

	return len(records), nil
}

// CountForWindow returns how many rows exist with a join time inside
// [start, end). Used by operators and integration tests to audit a window.
func (s *ParticipantStore) CountForWindow(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM participants WHERE join_time >= $1 AND join_time < $2",
		start, end,
	)
	return count, err
}
