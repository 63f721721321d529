package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Queue describes a transmission queue.
type Queue struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Buyer           string  `json:"buyer"`
	Kind            string  `json:"kind"`
	LoadFrequency   string  `json:"loadFrequency,omitempty"`
	AutoSchedule    bool    `json:"autoSchedule"`
	Active          bool    `json:"active"`
	Publications    []int64 `json:"publications,omitempty"`
	Qs              []int64 `json:"qs,omitempty"`
	UpdatedOn       string  `json:"updatedOn,omitempty"`
	LastRunOn       string  `json:"lastRunOn,omitempty"`
	LastTransmitted string  `json:"lastTransmittedOn,omitempty"`
	XMLFormat       string  `json:"xmlFormat,omitempty"`
	StripImages     bool    `json:"stripImages"`
	FilePerPub      bool    `json:"filePerPublication"`
	FilePerIndustry bool    `json:"filePerIndustry"`
}

// Item describes one transmission queue item.
type Item struct {
	ID             int64  `json:"id"`
	QueueID        int64  `json:"queueId"`
	EntryID        int64  `json:"entryId"`
	Title          string `json:"title"`
	Publication    string `json:"publication"`
	QID            *int64 `json:"qId,omitempty"`
	Action         string `json:"action"`
	ActionName     string `json:"actionName"`
	TransmissionID string `json:"transmissionId,omitempty"`
	Error          string `json:"error,omitempty"`
	CreatedOn      string `json:"createdOn,omitempty"`
	ScheduledOn    string `json:"scheduledOn,omitempty"`
	TransmittedOn  string `json:"transmittedOn,omitempty"`
}

// StatusCount is one row of the status report.
type StatusCount struct {
	Publication string `json:"publication"`
	Action      string `json:"action"`
	ActionName  string `json:"actionName"`
	Count       int    `json:"count"`
}

// Entry describes an editorial entry.
type Entry struct {
	ID          int64    `json:"id"`
	Publication string   `json:"publication"`
	Title       string   `json:"title"`
	SubTitle    string   `json:"subTitle,omitempty"`
	Slug        string   `json:"slug"`
	ByLine      string   `json:"byLine,omitempty"`
	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	PubDate     string   `json:"pubDate,omitempty"`
	ApprovedBy  string   `json:"approvedBy,omitempty"`
	ApprovedOn  string   `json:"approvedOn,omitempty"`
}

// EntityGroup lists entity names shown for one type on an entry.
type EntityGroup struct {
	Type  string   `json:"type"`
	Names []string `json:"names"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running      bool   `json:"running"`
	Cycles       int64  `json:"cycles"`
	LastCycle    string `json:"lastCycle,omitempty"`
	LastError    string `json:"lastError,omitempty"`
	Refreshed    int64  `json:"refreshed"`
	ItemsCreated int64  `json:"itemsCreated"`
	Transmitted  int64  `json:"transmitted"`
	FeedsLoaded  int64  `json:"feedsLoaded"`
	FeedsRejects int64  `json:"feedsRejected"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	APIAddress   string         `json:"apiAddress,omitempty"`
	Database     DatabaseStatus `json:"database"`
	Workflow     WorkflowStatus `json:"workflow"`
	Checks       []CheckResult  `json:"checks,omitempty"`
	Items        map[string]int `json:"items,omitempty"`
}

// DatabaseStatus reports schema version and integrity of the daemon's database.
type DatabaseStatus struct {
	SchemaVersion int    `json:"schemaVersion"`
	Integrity     string `json:"integrity,omitempty"`
	Error         string `json:"error,omitempty"`
}

// QueueListResponse wraps a collection of queues.
type QueueListResponse struct {
	Queues []Queue `json:"queues"`
}

// ItemListResponse wraps a collection of queue items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// StatusCountsResponse wraps the status report.
type StatusCountsResponse struct {
	Counts []StatusCount `json:"counts"`
}

// EntityDisplayResponse wraps an entry's grouped entities.
type EntityDisplayResponse struct {
	EntryID int64         `json:"entryId"`
	Groups  []EntityGroup `json:"groups"`
}

// RefreshResponse reports a queue refresh.
type RefreshResponse struct {
	QueueID    int64 `json:"queueId"`
	Direct     int   `json:"direct"`
	FromQs     int   `json:"fromQs"`
	Duplicates int   `json:"duplicates"`
	Filtered   int   `json:"filtered"`
}

// TransmitResponse reports a queue transmission.
type TransmitResponse struct {
	QueueID int64    `json:"queueId"`
	BatchID string   `json:"batchId,omitempty"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Files   []string `json:"files,omitempty"`
}
