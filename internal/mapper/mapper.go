// Package mapper normalizes raw report pages into warehouse rows. Mapping is
// pure: it never touches the network or the database, so the tolerance
// policy is testable in isolation.
package mapper

import (
	"fmt"
	"log/slog"
	"time"

	"zoom_connector/internal/domain"
	"zoom_connector/internal/zoom"
)

// durationTolerance is how far the provider's reported duration may drift
// from the recomputed join/leave delta before a warning is logged.
const durationTolerance = 60 * time.Second

// IntegrityError reports that too large a fraction of a page failed to map.
type IntegrityError struct {
	Failed    int
	Total     int
	Threshold float64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("mapping integrity: %d of %d records malformed (threshold %.0f%%)",
		e.Failed, e.Total, e.Threshold*100)
}

// Mapper converts raw pages into load batches.
type Mapper struct {
	threshold float64
	logger    *slog.Logger
}

// New creates a mapper. threshold is the tolerated fraction of malformed
// records per page, in [0, 1].
func New(threshold float64, logger *slog.Logger) *Mapper {
	return &Mapper{
		threshold: threshold,
		logger:    logger.With("component", "mapper"),
	}
}

// MapPage maps one raw page. Malformed mandatory fields skip the record and
// count as a failure; failures above the threshold fraction of the page
// return an IntegrityError and no batch. Missing optional fields map to nil.
func (m *Mapper) MapPage(page *zoom.RawPage) (*domain.LoadBatch, error) {
	batch := &domain.LoadBatch{
		Records: make([]domain.ParticipantRecord, 0, len(page.Participants)),
	}

	for i := range page.Participants {
		record, err := m.mapParticipant(&page.Participants[i])
		if err != nil {
			batch.Failures = append(batch.Failures, err.Error())
			continue
		}
		batch.Records = append(batch.Records, *record)
	}

	total := len(page.Participants)
	if total > 0 && float64(len(batch.Failures)) > m.threshold*float64(total) {
		return nil, &IntegrityError{
			Failed:    len(batch.Failures),
			Total:     total,
			Threshold: m.threshold,
		}
	}

	return batch, nil
}

func (m *Mapper) mapParticipant(p *zoom.Participant) (*domain.ParticipantRecord, error) {
	if p.MeetingUUID == "" {
		return nil, fmt.Errorf("participant %q: missing meeting uuid", p.ID)
	}

	participantID := p.ID
	if participantID == "" {
		participantID = p.UserID
	}
	if participantID == "" {
		return nil, fmt.Errorf("meeting %s: participant has no identifier", p.MeetingUUID)
	}

	joinTime, err := parseTimestamp(p.JoinTime)
	if err != nil {
		return nil, fmt.Errorf("participant %s: join_time %q: %w", participantID, p.JoinTime, err)
	}
	leaveTime, err := parseTimestamp(p.LeaveTime)
	if err != nil {
		return nil, fmt.Errorf("participant %s: leave_time %q: %w", participantID, p.LeaveTime, err)
	}

	record := &domain.ParticipantRecord{
		MeetingUUID:     p.MeetingUUID,
		MeetingID:       p.MeetingID,
		ParticipantID:   participantID,
		Name:            p.UserName,
		JoinTime:        joinTime,
		LeaveTime:       leaveTime,
		DurationSeconds: m.resolveDuration(participantID, p.Duration, joinTime, leaveTime),
	}

	record.UserEmail = optional(p.UserEmail)
	record.Device = optional(p.Device)
	record.ClientVersion = optional(p.ClientVersion)
	record.IPAddress = optional(p.IPAddress)

	return record, nil
}

// resolveDuration recomputes duration from join/leave and keeps the
// recomputed value when the reported one is absent or drifts beyond the
// tolerance. Drift is a warning, never a mapping failure.
func (m *Mapper) resolveDuration(participantID string, reported int, join, leave time.Time) int {
	computed := int(leave.Sub(join) / time.Second)
	if computed < 0 {
		computed = 0
	}

	if reported <= 0 {
		return computed
	}

	drift := time.Duration(reported-computed) * time.Second
	if drift < 0 {
		drift = -drift
	}
	if drift > durationTolerance {
		m.logger.Warn("reported duration differs from computed",
			"participant_id", participantID,
			"reported", reported,
			"computed", computed,
		)
		return computed
	}

	return reported
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
