// pkg/schema/events.go
package schema

// JobRequest asks a worker to package one order export. ID, when set, must
// be a UUID and becomes the job id.
type JobRequest struct {
	ID         string `json:"id"`
	InputPath  string `json:"input_path"`
	HappenedAt int64  `json:"happened_at"`
}

type JobStatus string

const (
	JobStatusDone  JobStatus = "done"
	JobStatusError JobStatus = "error"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// JobProgress mirrors one reporter update. Progress is omitted for
// message-only updates.
type JobProgress struct {
	JobID      string   `json:"job_id"`
	Message    string   `json:"message"`
	Progress   *float64 `json:"progress,omitempty"`
	HappenedAt int64    `json:"happened_at"`
}

type JobSummary struct {
	Orders     int `json:"orders"`
	Groups     int `json:"groups"`
	MainPhotos int `json:"main_photos"`
	Polaroids  int `json:"polaroids"`
	Skipped    int `json:"skipped"`
	Engravings int `json:"engravings"`
}

type JobDone struct {
	JobID            string      `json:"job_id"`
	InputPath        string      `json:"input_path"`
	Status           JobStatus   `json:"status"`
	ArchivePath      string      `json:"archive_path,omitempty"`
	Summary          *JobSummary `json:"summary,omitempty"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	Error            string      `json:"error,omitempty"`
	FailureType      FailureType `json:"failure_type,omitempty"`
	HappenedAt       int64       `json:"happened_at"`
}
