package bridge

import (
	"errors"
	"fmt"

	"github.com/devadigapratham/pandaprint/api/models"
)

var (
	// ErrUnknownPrinter is matched by errors for names missing from the registry
	ErrUnknownPrinter = errors.New("printer unknown")
	// ErrBusy is matched by errors for printers that already have an active job
	ErrBusy = errors.New("printer busy")
)

// UnknownPrinterError reports a name that is not configured
type UnknownPrinterError struct {
	Name string
}

func (e *UnknownPrinterError) Error() string {
	return fmt.Sprintf("printer %q is not configured", e.Name)
}

func (e *UnknownPrinterError) Is(target error) bool { return target == ErrUnknownPrinter }

// BusyError reports the job that keeps a printer busy
type BusyError struct {
	Printer string
	JobID   string
	Status  models.JobStatus
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("printer %s is busy with job %s (%s)", e.Printer, e.JobID, e.Status)
}

func (e *BusyError) Is(target error) bool { return target == ErrBusy }
