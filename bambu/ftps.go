package bambu

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
)

// DefaultUploadTimeout bounds a whole transfer, login included
const DefaultUploadTimeout = 30 * time.Second

// FTPSUploader stores files on a printer over implicit FTPS. It performs
// one blocking transfer per call and does not serialize callers.
type FTPSUploader struct {
	Port    int
	Timeout time.Duration
	log     zerolog.Logger
}

// NewFTPSUploader creates an uploader for the given FTPS port
func NewFTPSUploader(port int, timeout time.Duration, log zerolog.Logger) *FTPSUploader {
	if port == 0 {
		port = DefaultFTPSPort
	}
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &FTPSUploader{
		Port:    port,
		Timeout: timeout,
		log:     log.With().Str("component", "ftps").Logger(),
	}
}

// Upload transfers r to StoragePath(filename) on the printer
func (u *FTPSUploader) Upload(ctx context.Context, printer *models.Printer, filename string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, u.Timeout)
	defer cancel()

	fail := func(op string, err error) error {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return &UploadError{Printer: printer.Name, File: filename, Op: op, Err: err}
	}

	// The data channel reuses the control session's TLS parameters
	tlsConfig := &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         printer.Host,
		ClientSessionCache: tls.NewLRUClientSessionCache(4),
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	dialer := &net.Dialer{Timeout: u.Timeout}

	// Printers announce unusable addresses in PASV replies, so every
	// connection goes to the printer host and only the port is kept.
	dial := func(network, address string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		raw, err := dialer.DialContext(ctx, network, net.JoinHostPort(printer.Host, port))
		if err != nil {
			return nil, err
		}
		mu.Lock()
		conns = append(conns, raw)
		mu.Unlock()
		return tls.Client(raw, tlsConfig), nil
	}

	// Closing the sockets unblocks whatever the transfer is waiting on
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	defer stop()

	addr := net.JoinHostPort(printer.Host, strconv.Itoa(u.Port))
	start := time.Now()

	c, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(u.Timeout),
		ftp.DialWithTLS(tlsConfig),
		ftp.DialWithDialFunc(dial),
		ftp.DialWithDisabledEPSV(true),
	)
	if err != nil {
		return fail("connect", err)
	}
	defer c.Quit()

	if err := c.Login(Username, printer.Key); err != nil {
		return fail("login", err)
	}
	if err := c.Type(ftp.TransferTypeBinary); err != nil {
		return fail("type", err)
	}
	if err := c.Stor(StoragePath(filename), r); err != nil {
		return fail("store", err)
	}

	u.log.Info().
		Str("printer", printer.Name).
		Str("path", StoragePath(filename)).
		Dur("elapsed", time.Since(start)).
		Msg("Uploaded file")
	return nil
}
