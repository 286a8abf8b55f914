package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/gin-gonic/gin"
)

type jobResponse struct {
	ID            string           `json:"id"`
	State         models.JobStatus `json:"state"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Progress      int              `json:"progress"`
	File          string           `json:"file"`
	Files         []string         `json:"files,omitempty"`
	Printer       string           `json:"printer"`
	Print         bool             `json:"print"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func newJobResponse(job *models.PrintJob) jobResponse {
	return jobResponse{
		ID:            job.ID,
		State:         job.Status.Reported(),
		FailureReason: job.FailureReason,
		Progress:      job.Progress,
		File:          job.Filename,
		Files:         job.Files,
		Printer:       job.Printer,
		Print:         job.Print,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// GetJob returns a job by its ID
func (h *Handler) GetJob(c *gin.Context) {
	id := c.Param("id")
	job, ok := node(c).Job(id)
	if !ok {
		abortError(c, http.StatusNotFound, "job_unknown", fmt.Errorf("no job %q", id))
		return
	}
	c.JSON(http.StatusOK, newJobResponse(job))
}

// GetCurrentJob returns the printer's most recent job in OctoPrint's shape
func (h *Handler) GetCurrentJob(c *gin.Context) {
	n := node(c)
	job := n.CurrentJob()
	t, hasTelemetry := n.Telemetry()

	resp := gin.H{
		"job":      gin.H{"file": gin.H{"name": nil, "origin": nil}},
		"progress": gin.H{"completion": nil, "printTimeLeft": nil},
		"state":    printerState(n.Session().State(), t, hasTelemetry).Text,
	}
	if job != nil {
		resp["job"] = gin.H{
			"id":   job.ID,
			"file": gin.H{"name": job.Filename, "origin": "local"},
		}
		progress := gin.H{"completion": float64(job.Progress), "printTimeLeft": nil}
		if hasTelemetry && job.Status == models.StatusPrinting {
			progress["printTimeLeft"] = t.RemainingMinutes * 60
		}
		resp["progress"] = progress
		if job.FailureReason != "" {
			resp["error"] = job.FailureReason
		}
	}
	c.JSON(http.StatusOK, resp)
}
