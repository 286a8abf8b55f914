package bambu

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const printerKey = "12345678"

// printerFTP is an implicit-FTPS server that behaves like a printer: it
// accepts only bblp with the access key and announces an unroutable
// address in its passive replies.
type printerFTP struct {
	fs       afero.Fs
	tls      *tls.Config
	settings *ftpserver.Settings

	mu     sync.Mutex
	logins []string
}

func (d *printerFTP) GetSettings() (*ftpserver.Settings, error) {
	return d.settings, nil
}

func (d *printerFTP) ClientConnected(ftpserver.ClientContext) (string, error) {
	return "printer ready", nil
}

func (d *printerFTP) ClientDisconnected(ftpserver.ClientContext) {}

func (d *printerFTP) AuthUser(_ ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	d.mu.Lock()
	d.logins = append(d.logins, user+":"+pass)
	d.mu.Unlock()
	if user != Username || pass != printerKey {
		return nil, errors.New("login incorrect")
	}
	return d.fs, nil
}

func (d *printerFTP) GetTLSConfig() (*tls.Config, error) {
	return d.tls, nil
}

func (d *printerFTP) Logins() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.logins...)
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "printer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	}
}

// startPrinterFTP serves implicit FTPS on a loopback port
func startPrinterFTP(t *testing.T) (*printerFTP, int) {
	t.Helper()
	tlsConfig := selfSignedTLS(t)
	listener, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/model", 0o755))

	driver := &printerFTP{
		fs:  fs,
		tls: tlsConfig,
		settings: &ftpserver.Settings{
			Listener:    listener,
			ListenAddr:  listener.Addr().String(),
			PublicHost:  "10.255.255.1",
			TLSRequired: ftpserver.ImplicitEncryption,
		},
	}
	server := ftpserver.NewFtpServer(driver)
	require.NoError(t, server.Listen())
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() {
		_ = server.Stop()
	})
	return driver, listener.Addr().(*net.TCPAddr).Port
}

func loopbackPrinter(key string) *models.Printer {
	return &models.Printer{Name: "bambu", Host: "127.0.0.1", Serial: "123456789012345", Key: key}
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestFTPSUploaderDefaults(t *testing.T) {
	u := NewFTPSUploader(0, 0, zerolog.Nop())
	assert.Equal(t, DefaultFTPSPort, u.Port)
	assert.Equal(t, DefaultUploadTimeout, u.Timeout)
}

func TestFTPSUpload(t *testing.T) {
	server, port := startPrinterFTP(t)
	u := NewFTPSUploader(port, 5*time.Second, zerolog.Nop())

	content := "G28\nG1 Z5\n"
	err := u.Upload(context.Background(), loopbackPrinter(printerKey), "test.gcode", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, []string{"bblp:12345678"}, server.Logins())
	stored, err := afero.ReadFile(server.fs, "/model/test.gcode")
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))
}

func TestFTPSUploadStripsDirectories(t *testing.T) {
	server, port := startPrinterFTP(t)
	u := NewFTPSUploader(port, 5*time.Second, zerolog.Nop())

	err := u.Upload(context.Background(), loopbackPrinter(printerKey), "plates/cube-2.3mf", strings.NewReader("zip"))
	require.NoError(t, err)

	stored, err := afero.ReadFile(server.fs, "/model/cube-2.3mf")
	require.NoError(t, err)
	assert.Equal(t, "zip", string(stored))
}

func TestFTPSUploadWrongKey(t *testing.T) {
	server, port := startPrinterFTP(t)
	u := NewFTPSUploader(port, 5*time.Second, zerolog.Nop())

	err := u.Upload(context.Background(), loopbackPrinter("wrong"), "test.gcode", strings.NewReader("G28"))
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, "login", uerr.Op)
	assert.Equal(t, []string{"bblp:wrong"}, server.Logins())

	exists, err := afero.Exists(server.fs, "/model/test.gcode")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFTPSUploadConnectFailure(t *testing.T) {
	u := NewFTPSUploader(closedPort(t), 2*time.Second, zerolog.Nop())

	err := u.Upload(context.Background(), loopbackPrinter(printerKey), "cube.3mf", strings.NewReader("data"))
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, "connect", uerr.Op)
	assert.Equal(t, "bambu", uerr.Printer)
	assert.Equal(t, "cube.3mf", uerr.File)
}

func TestFTPSUploadTimeout(t *testing.T) {
	// accepts connections and never answers
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	u := NewFTPSUploader(l.Addr().(*net.TCPAddr).Port, 300*time.Millisecond, zerolog.Nop())
	start := time.Now()
	err = u.Upload(context.Background(), loopbackPrinter(printerKey), "test.gcode", strings.NewReader("G28"))
	elapsed := time.Since(start)

	var uerr *UploadError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, elapsed, 5*time.Second)
}
