package bambu

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// PahoDialer connects to a printer's broker over TLS with paho. Reconnects
// are left to the Session, so paho's own retry logic is disabled.
type PahoDialer struct {
	Port           int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// NewPahoDialer creates a dialer for the given MQTT port
func NewPahoDialer(port int) *PahoDialer {
	if port == 0 {
		port = DefaultMQTTPort
	}
	return &PahoDialer{
		Port:           port,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Dial opens and authenticates one connection
func (d *PahoDialer) Dial(ctx context.Context, printer *models.Printer) (Conn, error) {
	c := &pahoConn{
		done:           make(chan error, 1),
		publishTimeout: d.PublishTimeout,
	}

	broker := "ssl://" + net.JoinHostPort(printer.Host, strconv.Itoa(d.Port))
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("pandaprint-" + uuid.NewString()[:8]).
		SetUsername(Username).
		SetPassword(printer.Key).
		// LAN printers present self-signed certificates
		SetTLSConfig(&tls.Config{InsecureSkipVerify: true}).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetKeepAlive(60 * time.Second).
		SetConnectTimeout(d.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.lost(err)
		})

	c.client = mqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect(), d.ConnectTimeout); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}
	return c, nil
}

type pahoConn struct {
	client         mqtt.Client
	done           chan error
	publishTimeout time.Duration
}

func (c *pahoConn) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Payload())
	})
	if err := waitToken(context.Background(), token, c.publishTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *pahoConn) Publish(topic string, payload []byte) error {
	return waitToken(context.Background(), c.client.Publish(topic, 0, false, payload), c.publishTimeout)
}

func (c *pahoConn) Done() <-chan error {
	return c.done
}

func (c *pahoConn) Close() {
	c.client.Disconnect(250)
}

func (c *pahoConn) lost(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	select {
	case c.done <- err:
	default:
	}
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timed out waiting for broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}
