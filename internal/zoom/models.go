package zoom

// RawPage is one page of the participants report as returned by the API.
// It is owned by the client during a fetch and handed to the mapper; raw
// payloads never travel further than the mapper boundary.
type RawPage struct {
	PageSize      int           `json:"page_size"`
	TotalRecords  int           `json:"total_records"`
	NextPageToken string        `json:"next_page_token"`
	Participants  []Participant `json:"participants"`
}

// Participant is the provider's participant payload. Timestamps arrive as
// strings and are parsed by the mapper, which owns the tolerance policy.
type Participant struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	UserEmail     string `json:"user_email"`
	MeetingUUID   string `json:"meeting_uuid"`
	MeetingID     int64  `json:"meeting_id"`
	JoinTime      string `json:"join_time"`
	LeaveTime     string `json:"leave_time"`
	Duration      int    `json:"duration"`
	Device        string `json:"device"`
	ClientVersion string `json:"version"`
	IPAddress     string `json:"ip_address"`
}
