package ipc

import "syndicate/internal/api"

// StopRequest stops the daemon's background processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status DTO.
type StatusResponse = api.DaemonStatus

// QueueListRequest lists transmission queues.
type QueueListRequest struct{}

// QueueListResponse contains transmission queues.
type QueueListResponse = api.QueueListResponse

// ItemsRequest lists a queue's items, optionally filtered by action.
type ItemsRequest struct {
	QueueID int64    `json:"queue_id"`
	Actions []string `json:"actions"`
	Limit   int      `json:"limit"`
}

// ItemsResponse contains queue items.
type ItemsResponse = api.ItemListResponse

// RefreshRequest refreshes one queue.
type RefreshRequest struct {
	QueueID int64 `json:"queue_id"`
}

// RefreshResponse reports refresh counts.
type RefreshResponse = api.RefreshResponse

// TransmitRequest transmits one queue's Scheduled items.
type TransmitRequest struct {
	QueueID int64 `json:"queue_id"`
}

// TransmitResponse reports transmission counts.
type TransmitResponse = api.TransmitResponse

// SetActionRequest moves items to a new action.
type SetActionRequest struct {
	IDs    []int64 `json:"ids"`
	Action string  `json:"action"`
}

// SetActionResponse reports number of updated items.
type SetActionResponse struct {
	Updated int64 `json:"updated"`
}

// StatusCountsRequest runs the status report. From and To are calendar days
// (YYYY-MM-DD) in the syndication time zone; To is inclusive.
type StatusCountsRequest struct {
	QueueID int64  `json:"queue_id"`
	Field   string `json:"field"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// StatusCountsResponse contains report rows.
type StatusCountsResponse = api.StatusCountsResponse

// LogTailRequest fetches daemon log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset        int64  `json:"offset"`
	Limit         int    `json:"limit"`
	Follow        bool   `json:"follow"`
	WaitMillis    int    `json:"wait_millis"`
	QueueID       int64  `json:"queue_id"`
	CorrelationID string `json:"correlation_id"`
	MinLevel      string `json:"min_level"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
