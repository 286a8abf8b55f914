package bambu

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/rs/zerolog"
)

// SessionState is the connection state of a printer's MQTT session
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	}
	return "Unknown"
}

// MarshalText renders the state by name in JSON documents
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Conn is one live, authenticated broker connection
type Conn interface {
	// Subscribe delivers every message on topic to handler, in order
	Subscribe(topic string, handler func(payload []byte)) error
	Publish(topic string, payload []byte) error
	// Done yields once when the connection is lost
	Done() <-chan error
	Close()
}

// Dialer opens broker connections to a printer
type Dialer interface {
	Dial(ctx context.Context, printer *models.Printer) (Conn, error)
}

// Message is a raw report received from the printer
type Message struct {
	Payload    []byte
	ReceivedAt time.Time
}

// SessionStatus is a point-in-time view of a session
type SessionStatus struct {
	State     SessionState `json:"state"`
	LastSeen  *time.Time   `json:"last_seen,omitempty"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
}

// SessionConfig tunes the reconnect loop
type SessionConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ReportBuffer   int
}

// Session owns the MQTT connection of one printer
type Session struct {
	printer *models.Printer
	dialer  Dialer
	log     zerolog.Logger

	backoff *backoff.ExponentialBackOff
	sleep   func(ctx context.Context, d time.Duration) error

	reports chan Message
	quit    <-chan struct{}
	seq     atomic.Uint64

	mu       sync.RWMutex
	state    SessionState
	conn     Conn
	lastSeen time.Time
	attempts int
	lastErr  error
}

// NewSession creates a disconnected session. Call Run to connect.
func NewSession(printer *models.Printer, dialer Dialer, cfg SessionConfig, log zerolog.Logger) *Session {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.InitialBackoff > cfg.MaxBackoff {
		cfg.InitialBackoff = cfg.MaxBackoff
	}
	if cfg.ReportBuffer <= 0 {
		cfg.ReportBuffer = 64
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	return &Session{
		printer: printer,
		dialer:  dialer,
		log:     log.With().Str("component", "session").Str("printer", printer.Name).Logger(),
		backoff: b,
		sleep:   sleepContext,
		reports: make(chan Message, cfg.ReportBuffer),
		quit:    make(chan struct{}),
	}
}

// SetSleep replaces the function used to wait between reconnect attempts
func (s *Session) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	s.sleep = fn
}

// Reports returns the ordered stream of raw report messages
func (s *Session) Reports() <-chan Message {
	return s.reports
}

// State returns the current connection state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot of the session
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SessionStatus{
		State:    s.state,
		Attempts: s.attempts,
	}
	if !s.lastSeen.IsZero() {
		seen := s.lastSeen
		st.LastSeen = &seen
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// NextSequence returns a fresh command sequence id
func (s *Session) NextSequence() string {
	return strconv.FormatUint(s.seq.Add(1), 10)
}

// Run keeps the session connected until ctx is cancelled. Every failed
// attempt or lost connection is followed by a capped exponential backoff.
func (s *Session) Run(ctx context.Context) {
	s.quit = ctx.Done()

	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			s.mu.Lock()
			s.state = StateError
			s.lastErr = err
			s.attempts++
			s.mu.Unlock()
			s.log.Warn().Err(err).Msg("Failed to connect to printer")
			if !s.wait(ctx) {
				s.setState(StateDisconnected)
				return
			}
			continue
		}

		s.backoff.Reset()
		s.mu.Lock()
		s.conn = conn
		s.state = StateConnected
		s.attempts = 0
		s.lastErr = nil
		s.mu.Unlock()
		s.log.Info().Msg("Connected to printer")

		select {
		case <-ctx.Done():
			s.detach(nil)
			conn.Close()
			return
		case err := <-conn.Done():
			s.detach(err)
			conn.Close()
			s.log.Warn().Err(err).Msg("Lost connection to printer")
		}

		if !s.wait(ctx) {
			s.setState(StateDisconnected)
			return
		}
	}
}

func (s *Session) connect(ctx context.Context) (Conn, error) {
	conn, err := s.dialer.Dial(ctx, s.printer)
	if err != nil {
		return nil, err
	}
	if err := conn.Subscribe(ReportTopic(s.printer.Serial), s.deliver); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *Session) detach(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.state = StateDisconnected
	s.lastErr = err
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) wait(ctx context.Context) bool {
	d := s.backoff.NextBackOff()
	s.log.Debug().Dur("backoff", d).Msg("Reconnecting after backoff")
	return s.sleep(ctx, d) == nil
}

func (s *Session) deliver(payload []byte) {
	now := time.Now()
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()

	msg := Message{Payload: append([]byte(nil), payload...), ReceivedAt: now}
	select {
	case s.reports <- msg:
	case <-s.quit:
	}
}

// Publish sends v as JSON on the printer's request topic. It never waits for
// a connection: outside the Connected state it fails with ErrNotConnected.
func (s *Session) Publish(v any) error {
	s.mu.RLock()
	state, conn := s.state, s.conn
	s.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return &ConnectionError{Printer: s.printer.Name, State: state, Err: ErrNotConnected}
	}

	topic := RequestTopic(s.printer.Serial)
	payload, err := json.Marshal(v)
	if err != nil {
		return &PublishError{Printer: s.printer.Name, Topic: topic, Err: err}
	}
	if err := conn.Publish(topic, payload); err != nil {
		return &PublishError{Printer: s.printer.Name, Topic: topic, Err: err}
	}
	s.log.Debug().Str("topic", topic).Msg("Published command")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
