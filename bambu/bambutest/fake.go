// Package bambutest provides in-memory stand-ins for a printer's MQTT broker
// and FTPS server.
package bambutest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/devadigapratham/pandaprint/bambu"
)

// Published is one message a client published to the broker
type Published struct {
	Topic   string
	Payload []byte
}

// Broker is a fake printer broker implementing bambu.Dialer
type Broker struct {
	mu        sync.Mutex
	fail      int
	dials     int
	conns     map[string]*Conn
	published []Published
	connected chan struct{}

	// PublishErr, when set, is returned by every Publish
	PublishErr error
}

// NewBroker returns a broker that accepts every connection
func NewBroker() *Broker {
	return &Broker{
		conns:     make(map[string]*Conn),
		connected: make(chan struct{}, 16),
	}
}

// FailNext makes the next n dials fail
func (b *Broker) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = n
}

// Dial implements bambu.Dialer
func (b *Broker) Dial(ctx context.Context, printer *models.Printer) (bambu.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.fail > 0 {
		b.fail--
		return nil, errors.New("connection refused")
	}
	c := &Conn{broker: b, done: make(chan error, 1), subs: make(map[string]func([]byte))}
	b.conns[printer.Name] = c
	return c, nil
}

// Connected yields each time a connection subscribes to a topic
func (b *Broker) Connected() <-chan struct{} {
	return b.connected
}

// Dials returns the number of connection attempts so far
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Drop severs every open connection
func (b *Broker) Drop(err error) {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[string]*Conn)
	b.mu.Unlock()
	for _, c := range conns {
		c.done <- err
	}
}

// Send delivers payload to whichever open connection subscribed to topic.
// It returns false when nobody is subscribed.
func (b *Broker) Send(topic string, payload []byte) bool {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		handler := c.subs[topic]
		c.mu.Unlock()
		if handler != nil {
			handler(payload)
			return true
		}
	}
	return false
}

// Published returns every message published on topic
func (b *Broker) Published(topic string) []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Published
	for _, p := range b.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Conn is a connection handed out by Broker
type Conn struct {
	broker *Broker
	done   chan error

	mu     sync.Mutex
	subs   map[string]func([]byte)
	closed bool
}

func (c *Conn) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	select {
	case c.broker.connected <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Publish(topic string, payload []byte) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.PublishErr != nil {
		return c.broker.PublishErr
	}
	c.broker.published = append(c.broker.published, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *Conn) Done() <-chan error {
	return c.done
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Upload is one transfer recorded by Uploader
type Upload struct {
	Printer string
	Path    string
	Data    []byte
}

// Uploader is a fake FTPS server keyed by printer name
type Uploader struct {
	mu      sync.Mutex
	uploads []Upload

	// Err, when set, fails every upload
	Err error
	// Gate, when set, holds every upload until it is closed
	Gate chan struct{}
	// Started receives a value when an upload begins, if set
	Started chan string
}

// Upload implements the uploader used by the bridge
func (u *Uploader) Upload(ctx context.Context, printer *models.Printer, filename string, r io.Reader) error {
	if u.Started != nil {
		u.Started <- filename
	}
	if u.Gate != nil {
		select {
		case <-u.Gate:
		case <-ctx.Done():
			return &bambu.UploadError{Printer: printer.Name, File: filename, Op: "store", Err: ctx.Err()}
		}
	}
	if u.Err != nil {
		return &bambu.UploadError{Printer: printer.Name, File: filename, Op: "store", Err: u.Err}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return &bambu.UploadError{Printer: printer.Name, File: filename, Op: "store", Err: err}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, Upload{Printer: printer.Name, Path: bambu.StoragePath(filename), Data: data})
	return nil
}

// Uploads returns every completed transfer
func (u *Uploader) Uploads() []Upload {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Upload(nil), u.uploads...)
}
