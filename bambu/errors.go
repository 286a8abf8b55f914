package bambu

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a command is published while the session
// is not connected
var ErrNotConnected = errors.New("printer session not connected")

// ConnectionError reports that the MQTT session could not be used
type ConnectionError struct {
	Printer string
	State   SessionState
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("printer %s: session %s: %v", e.Printer, e.State, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UploadError reports a failed or timed out FTPS transfer
type UploadError struct {
	Printer string
	File    string
	Op      string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s to %s: %s: %v", e.File, e.Printer, e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PublishError reports a command that could not be handed to the broker
type PublishError struct {
	Printer string
	Topic   string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s for %s: %v", e.Topic, e.Printer, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ProtocolError reports a telemetry message that could not be understood
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid report: %s: %v", e.Reason, e.Err)
	}
	return "invalid report: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }
