// Package jobs tracks pipeline runs submitted on behalf of a caller and
// keeps their state in a pluggable store.
package jobs

import "time"

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// State is the externally visible record of one job.
type State struct {
	ID          string    `json:"job_id"`
	Status      Status    `json:"status"`
	Message     string    `json:"message"`
	ArchivePath string    `json:"archive_path,omitempty"`
	Progress    float64   `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewState(id string, now time.Time) State {
	return State{
		ID:        id,
		Status:    StatusProcessing,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the job has finished either way.
func (s State) Terminal() bool { return s.Status == StatusDone || s.Status == StatusError }

// ApplyProgress records a reporter update. A nil percent changes only the
// message. Progress never moves backwards and terminal states are frozen.
func ApplyProgress(s *State, label string, percent *float64, now time.Time) {
	if s.Terminal() {
		return
	}
	s.Message = label
	if percent != nil && *percent > s.Progress {
		s.Progress = *percent
	}
	s.UpdatedAt = now
}

func MarkDone(s *State, archivePath string, now time.Time) {
	s.Status = StatusDone
	s.ArchivePath = archivePath
	s.Progress = 100
	s.Message = "Done"
	s.UpdatedAt = now
}

func MarkFailed(s *State, err error, now time.Time) {
	s.Status = StatusError
	if err != nil {
		s.Message = err.Error()
	}
	s.UpdatedAt = now
}
