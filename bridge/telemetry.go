package bridge

import (
	"context"
	"fmt"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/devadigapratham/pandaprint/bambu"
)

// listen applies the session's reports in arrival order until ctx ends
func (n *Node) listen(ctx context.Context) {
	reports := n.session.Reports()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-reports:
			report, err := bambu.ParseReport(msg.Payload, msg.ReceivedAt)
			if err != nil {
				n.log.Debug().Err(err).Int("size", len(msg.Payload)).Msg("Discarding report")
				continue
			}
			n.ApplyReport(report)
		}
	}
}

// ApplyReport stores telemetry and advances the current job accordingly
func (n *Node) ApplyReport(r bambu.Report) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if r.Telemetry != nil {
		t := *r.Telemetry
		n.telemetry = &t
		n.evaluateTelemetry(t)
	}
	if r.Reply != nil {
		n.evaluateReply(*r.Reply)
	}
}

// evaluateTelemetry runs with n.mu held
func (n *Node) evaluateTelemetry(t models.Telemetry) {
	job := n.job
	if job == nil {
		return
	}
	if job.Status != models.StatusCommandSent && job.Status != models.StatusPrinting {
		return
	}

	// Until the printer picks up this job it keeps reporting the previous
	// print. An error code left over from it counts only once cleared and
	// raised again; FAILED and finished stages only once this job ran.
	if t.ErrorCode == 0 {
		job.PriorError = 0
	}
	switch {
	case t.ErrorCode != 0 && t.ErrorCode != job.PriorError:
		n.fail(job, fmt.Sprintf("printer error 0x%08X", t.ErrorCode))
		return
	case t.Stage == bambu.StageFailed && job.SeenActive:
		n.fail(job, "printer reported FAILED")
		return
	}

	if job.Status != models.StatusPrinting {
		return
	}

	switch {
	case bambu.IsActiveStage(t.Stage):
		job.SeenActive = true
		job.Progress = t.Progress
		job.UpdatedAt = n.now()
	case bambu.IsDoneStage(t.Stage) && job.SeenActive:
		if t.Stage == bambu.StageFinish {
			job.Progress = 100
		}
		if n.setStatus(job, models.StatusCompleted, "") {
			n.log.Info().Str("job_id", job.ID).Msg("Print completed")
		}
	}
}

// evaluateReply runs with n.mu held
func (n *Node) evaluateReply(r bambu.Reply) {
	job := n.job
	if job == nil || job.Sequence == "" || r.Sequence != job.Sequence {
		return
	}
	if r.Command == "project_file" && r.Failed() {
		reason := "printer rejected print command"
		if r.Reason != "" {
			reason += ": " + r.Reason
		}
		n.fail(job, reason)
	}
}

func (n *Node) fail(job *models.PrintJob, reason string) {
	if n.setStatus(job, models.StatusFailed, reason) {
		n.log.Warn().Str("job_id", job.ID).Str("reason", reason).Msg("Print failed")
	}
}
