package bridge

import (
	"context"
	"io"
	"path"
	"sync"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/devadigapratham/pandaprint/bambu"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Uploader transfers one file to a printer's storage
type Uploader interface {
	Upload(ctx context.Context, printer *models.Printer, filename string, r io.Reader) error
}

// SubmitRequest describes an upload received from a slicer
type SubmitRequest struct {
	Filename  string
	Content   io.ReaderAt
	Size      int64
	Print     bool
	Overrides models.PrintOptions
}

// NodeStatus is a point-in-time view of one printer
type NodeStatus struct {
	Printer   string              `json:"printer"`
	Session   bambu.SessionStatus `json:"session"`
	Job       *models.PrintJob    `json:"job,omitempty"`
	Telemetry *models.Telemetry   `json:"telemetry,omitempty"`
}

// Node is the per-printer context: it owns the printer's session and upload
// capability and guards the single current-job slot.
type Node struct {
	printer  *models.Printer
	session  *bambu.Session
	uploader Uploader
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	job       *models.PrintJob
	telemetry *models.Telemetry
}

// NewNode creates the context for one printer
func NewNode(printer *models.Printer, session *bambu.Session, uploader Uploader, log zerolog.Logger) *Node {
	return &Node{
		printer:  printer,
		session:  session,
		uploader: uploader,
		log:      log.With().Str("component", "jobs").Str("printer", printer.Name).Logger(),
		now:      time.Now,
	}
}

// Printer returns the printer this node controls
func (n *Node) Printer() *models.Printer {
	return n.printer
}

// Session returns the printer's MQTT session
func (n *Node) Session() *bambu.Session {
	return n.session
}

// Submit uploads a file and, if requested, starts printing it. It returns
// once the upload and command dispatch are done; print progress is tracked
// from telemetry afterwards. A job is returned whenever one was created,
// even alongside an error.
func (n *Node) Submit(ctx context.Context, req SubmitRequest) (*models.PrintJob, error) {
	n.mu.Lock()
	if cur := n.job; cur != nil && !cur.Status.IsTerminal() {
		n.mu.Unlock()
		return nil, &BusyError{Printer: n.printer.Name, JobID: cur.ID, Status: cur.Status}
	}
	now := n.now()
	job := &models.PrintJob{
		ID:        uuid.NewString(),
		Printer:   n.printer.Name,
		Filename:  path.Base(req.Filename),
		Print:     req.Print,
		Options:   n.printer.Options.Merge(req.Overrides),
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if n.telemetry != nil {
		job.PriorError = n.telemetry.ErrorCode
	}
	n.job = job
	n.mu.Unlock()

	log := n.log.With().Str("job_id", job.ID).Str("file", job.Filename).Logger()
	log.Info().Bool("print", job.Print).Msg("Job queued")

	// A slicer hanging up must not abort a transfer half way
	ctx = context.WithoutCancel(ctx)

	n.transition(job, models.StatusUploading, "")
	files, err := n.upload(ctx, job, req)
	if err != nil {
		log.Error().Err(err).Msg("Upload failed")
		n.transition(job, models.StatusUploadFailed, err.Error())
		return n.snapshot(job), err
	}

	if !job.Print {
		n.transition(job, models.StatusCompleted, "")
		log.Info().Msg("Upload complete")
		return n.snapshot(job), nil
	}

	seq := n.session.NextSequence()
	n.mu.Lock()
	job.Sequence = seq
	n.mu.Unlock()
	n.transition(job, models.StatusCommandSent, "")

	cmd := bambu.ProjectFileCommand(files[0], job.Options, seq)
	if err := n.session.Publish(cmd); err != nil {
		log.Error().Err(err).Msg("Failed to send print command")
		n.transition(job, models.StatusFailed, err.Error())
		return n.snapshot(job), err
	}

	// No acknowledgement is awaited; telemetry confirms or fails the job later
	n.transition(job, models.StatusPrinting, "")
	log.Info().Str("sequence_id", seq).Msg("Print started")
	return n.snapshot(job), nil
}

func (n *Node) upload(ctx context.Context, job *models.PrintJob, req SubmitRequest) ([]string, error) {
	files, err := bambu.SplitPlates(job.Filename, req.Content, req.Size)
	if err != nil {
		return nil, &bambu.UploadError{Printer: n.printer.Name, File: job.Filename, Op: "split", Err: err}
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		if err := n.uploader.Upload(ctx, n.printer, f.Name, f.Reader); err != nil {
			return nil, err
		}
		names = append(names, f.Name)
	}

	n.mu.Lock()
	job.Files = names
	n.mu.Unlock()
	return names, nil
}

// Job returns a copy of the job with the given id. Only the most recent job
// of a printer is retained.
func (n *Node) Job(id string) (*models.PrintJob, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.job == nil || n.job.ID != id {
		return nil, false
	}
	return n.job.Clone(), true
}

// CurrentJob returns a copy of the most recent job, or nil
func (n *Node) CurrentJob() *models.PrintJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.job == nil {
		return nil
	}
	return n.job.Clone()
}

// Telemetry returns the latest telemetry snapshot
func (n *Node) Telemetry() (models.Telemetry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.telemetry == nil {
		return models.Telemetry{}, false
	}
	return *n.telemetry, true
}

// Status returns the node's session, job and telemetry together
func (n *Node) Status() NodeStatus {
	st := NodeStatus{
		Printer: n.printer.Name,
		Session: n.session.Status(),
		Job:     n.CurrentJob(),
	}
	if t, ok := n.Telemetry(); ok {
		st.Telemetry = &t
	}
	return st
}

func (n *Node) snapshot(job *models.PrintJob) *models.PrintJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return job.Clone()
}

func (n *Node) transition(job *models.PrintJob, to models.JobStatus, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setStatus(job, to, reason)
}

// setStatus applies a transition; the caller holds n.mu
func (n *Node) setStatus(job *models.PrintJob, to models.JobStatus, reason string) bool {
	if err := models.ValidateStatusChange(job.Status, to); err != nil {
		n.log.Debug().Err(err).Str("job_id", job.ID).Msg("Ignoring status change")
		return false
	}
	job.Status = to
	if reason != "" {
		job.FailureReason = reason
	}
	job.UpdatedAt = n.now()
	return true
}
