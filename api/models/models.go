// api/models/models.go
package models

import "fmt"

// transitions lists the forward moves allowed out of each non-terminal state.
// Failed is reachable from every non-terminal state and is not listed.
var transitions = map[JobStatus][]JobStatus{
	StatusQueued:      {StatusUploading},
	StatusUploading:   {StatusCommandSent, StatusCompleted, StatusUploadFailed},
	StatusCommandSent: {StatusPrinting},
	StatusPrinting:    {StatusCompleted},
}

// ValidateStatusChange checks if a status transition is valid
func ValidateStatusChange(currentStatus, newStatus JobStatus) error {
	if currentStatus.IsTerminal() {
		return fmt.Errorf("job is already %s", currentStatus)
	}
	if newStatus == StatusFailed {
		return nil
	}
	for _, next := range transitions[currentStatus] {
		if next == newStatus {
			return nil
		}
	}
	return fmt.Errorf("a job cannot transition from %s to %s", currentStatus, newStatus)
}
