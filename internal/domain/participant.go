package domain

import "time"

// ParticipantRecord is one participant session within one meeting. A person
// who joins and leaves a meeting multiple times produces multiple records,
// so the natural key includes the join time.
type ParticipantRecord struct {
	MeetingUUID     string    `db:"meeting_uuid"`
	MeetingID       int64     `db:"meeting_id"`
	ParticipantID   string    `db:"participant_id"`
	Name            string    `db:"name"`
	UserEmail       *string   `db:"user_email"`
	JoinTime        time.Time `db:"join_time"`
	LeaveTime       time.Time `db:"leave_time"`
	DurationSeconds int       `db:"duration_seconds"`
	Device          *string   `db:"device"`
	ClientVersion   *string   `db:"client_version"`
	IPAddress       *string   `db:"ip_address"`
}

// SyncWatermark marks the end of the last successfully loaded extraction
// window for a report type. One row per report type, advanced exactly once
// per successful run.
type SyncWatermark struct {
	ReportType  string    `db:"report_type"`
	WindowStart time.Time `db:"window_start"`
	WindowEnd   time.Time `db:"window_end"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// LoadBatch is the unit of transactional commit: the mapped rows of one raw
// API page plus notes about records that could not be mapped.
type LoadBatch struct {
	Records  []ParticipantRecord
	Failures []string
}
