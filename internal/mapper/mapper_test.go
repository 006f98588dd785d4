package mapper

import (
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoom_connector/internal/zoom"
)

func newTestMapper(threshold float64) *Mapper {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(threshold, logger)
}

func validParticipant(id string) zoom.Participant {
	return zoom.Participant{
		ID:          id,
		UserName:    "Student " + id,
		UserEmail:   id + "@school.org",
		MeetingUUID: "mtg-uuid-1",
		MeetingID:   98765,
		JoinTime:    "2024-01-01T15:00:00Z",
		LeaveTime:   "2024-01-01T15:45:00Z",
		Duration:    2700,
	}
}

func TestMapPage_MapsAllFields(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("p1")
	p.Device = "Windows"
	p.ClientVersion = "5.13.0"
	p.IPAddress = "10.0.0.8"

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)

	record := batch.Records[0]
	assert.Equal(t, "mtg-uuid-1", record.MeetingUUID)
	assert.Equal(t, int64(98765), record.MeetingID)
	assert.Equal(t, "p1", record.ParticipantID)
	assert.Equal(t, "Student p1", record.Name)
	require.NotNil(t, record.UserEmail)
	assert.Equal(t, "p1@school.org", *record.UserEmail)
	assert.Equal(t, 2700, record.DurationSeconds)
	require.NotNil(t, record.Device)
	assert.Equal(t, "Windows", *record.Device)
	assert.Empty(t, batch.Failures)
}

func TestMapPage_MissingEmailMapsToNil(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("p1")
	p.UserEmail = ""

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Nil(t, batch.Records[0].UserEmail)
	assert.Empty(t, batch.Failures)
}

func TestMapPage_NormalizesToUTC(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("p1")
	p.JoinTime = "2024-01-01T10:00:00-05:00"
	p.LeaveTime = "2024-01-01T10:45:00-05:00"

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)

	record := batch.Records[0]
	assert.Equal(t, time.UTC, record.JoinTime.Location())
	assert.Equal(t, time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), record.JoinTime)
}

func TestMapPage_RecomputesMissingDuration(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("p1")
	p.Duration = 0

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, 2700, batch.Records[0].DurationSeconds)
}

func TestMapPage_InconsistentDurationUsesComputed(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("p1")
	p.Duration = 9000 // 45 minute session, far beyond tolerance

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, 2700, batch.Records[0].DurationSeconds)
}

func TestMapPage_SmallDriftKeepsReported(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("p1")
	p.Duration = 2730 // 30s drift, within tolerance

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	assert.Equal(t, 2730, batch.Records[0].DurationSeconds)
}

func TestMapPage_FallsBackToUserID(t *testing.T) {
	m := newTestMapper(0.05)

	p := validParticipant("")
	p.UserID = "user-77"

	batch, err := m.MapPage(&zoom.RawPage{Participants: []zoom.Participant{p}})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "user-77", batch.Records[0].ParticipantID)
}

func TestMapPage_MalformedBelowThreshold(t *testing.T) {
	m := newTestMapper(0.05)

	participants := make([]zoom.Participant, 0, 100)
	for i := 0; i < 97; i++ {
		participants = append(participants, validParticipant(strconv.Itoa(i)))
	}
	for i := 0; i < 3; i++ {
		bad := validParticipant("bad-" + strconv.Itoa(i))
		bad.JoinTime = "not-a-timestamp"
		participants = append(participants, bad)
	}

	batch, err := m.MapPage(&zoom.RawPage{Participants: participants})
	require.NoError(t, err)
	assert.Len(t, batch.Records, 97)
	assert.Len(t, batch.Failures, 3)
}

func TestMapPage_MalformedAboveThresholdFails(t *testing.T) {
	m := newTestMapper(0.05)

	participants := make([]zoom.Participant, 0, 10)
	for i := 0; i < 8; i++ {
		participants = append(participants, validParticipant(strconv.Itoa(i)))
	}
	for i := 0; i < 2; i++ {
		bad := validParticipant("bad-" + strconv.Itoa(i))
		bad.MeetingUUID = ""
		participants = append(participants, bad)
	}

	batch, err := m.MapPage(&zoom.RawPage{Participants: participants})
	require.Error(t, err)
	assert.Nil(t, batch)

	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, 2, integrity.Failed)
	assert.Equal(t, 10, integrity.Total)
}

func TestMapPage_EmptyPage(t *testing.T) {
	m := newTestMapper(0.05)

	batch, err := m.MapPage(&zoom.RawPage{})
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.Empty(t, batch.Failures)
}
