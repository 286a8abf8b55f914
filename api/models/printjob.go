// api/models/printjob.go
package models

import "time"

// JobStatus is the lifecycle state of a print job
type JobStatus string

const (
	StatusQueued       JobStatus = "Queued"
	StatusUploading    JobStatus = "Uploading"
	StatusUploadFailed JobStatus = "UploadFailed"
	StatusCommandSent  JobStatus = "CommandSent"
	StatusPrinting     JobStatus = "Printing"
	StatusCompleted    JobStatus = "Completed"
	StatusFailed       JobStatus = "Failed"
)

// IsTerminal reports whether no further transitions are possible
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusUploadFailed, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Reported is the state shown to API clients. UploadFailed surfaces as Failed.
func (s JobStatus) Reported() JobStatus {
	if s == StatusUploadFailed {
		return StatusFailed
	}
	return s
}

// PrintJob represents one upload (and optional print) sent to a printer
type PrintJob struct {
	ID            string       `json:"id"`
	Printer       string       `json:"printer"`
	Filename      string       `json:"filename"`
	Files         []string     `json:"files,omitempty"`
	Print         bool         `json:"print"`
	Options       PrintOptions `json:"options"`
	Status        JobStatus    `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	Sequence      string       `json:"sequence_id,omitempty"`
	Progress      int          `json:"progress"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// set once telemetry showed the printer working on this job
	SeenActive bool `json:"-"`
	// error code the printer still reported from earlier work at submit
	PriorError int64 `json:"-"`
}

// Clone returns a copy that shares no mutable state with j
func (j *PrintJob) Clone() *PrintJob {
	c := *j
	c.Files = append([]string(nil), j.Files...)
	return &c
}
