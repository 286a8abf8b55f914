package bridge

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/devadigapratham/pandaprint/bambu"
	"github.com/devadigapratham/pandaprint/bambu/bambutest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	bridge   *Bridge
	broker   *bambutest.Broker
	uploader *bambutest.Uploader
}

func testPrinters() []models.Printer {
	return []models.Printer{
		{
			Name:    "bambu",
			Host:    "bambu.lan",
			Serial:  "0123",
			Key:     "secret",
			Options: models.PrintOptions{Timelapse: models.Bool(false)},
		},
		{Name: "spare", Host: "spare.lan", Serial: "4567", Key: "secret"},
	}
}

// newFixture builds a bridge over fakes. With connect set the bridge is
// started and every session is connected before it returns.
func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	f := &fixture{
		broker:   bambutest.NewBroker(),
		uploader: &bambutest.Uploader{},
	}
	f.bridge = New(NewStaticRegistry(testPrinters()), f.broker, f.uploader, bambu.SessionConfig{}, zerolog.Nop())

	if connect {
		f.bridge.Start(context.Background())
		t.Cleanup(f.bridge.Stop)
		for _, n := range f.bridge.Nodes() {
			require.Eventually(t, func() bool {
				return n.Session().State() == bambu.StateConnected
			}, 2*time.Second, 5*time.Millisecond)
		}
	}
	return f
}

func (f *fixture) node(t *testing.T) *Node {
	t.Helper()
	n, err := f.bridge.Node("bambu")
	require.NoError(t, err)
	return n
}

func request(content string, andPrint bool) SubmitRequest {
	return SubmitRequest{
		Filename: "cube.3mf",
		Content:  bytes.NewReader([]byte(content)),
		Size:     int64(len(content)),
		Print:    andPrint,
	}
}

func buildTwoPlateArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"3D/3dmodel.model", "Metadata/plate_1.gcode", "Metadata/plate_2.gcode"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func publishedCommands(t *testing.T, f *fixture) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, p := range f.broker.Published("device/0123/request") {
		var cmd struct {
			Print map[string]any `json:"print"`
		}
		require.NoError(t, json.Unmarshal(p.Payload, &cmd))
		out = append(out, cmd.Print)
	}
	return out
}

func TestUnknownPrinter(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.bridge.Node("ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPrinter))
}

func TestNodesKeepConfigurationOrder(t *testing.T) {
	f := newFixture(t, false)
	nodes := f.bridge.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "bambu", nodes[0].Printer().Name)
	assert.Equal(t, "spare", nodes[1].Printer().Name)
}

func TestSubmitUploadOnly(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.node(t).Submit(context.Background(), request("G28", false))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, "cube.3mf", job.Filename)
	assert.Equal(t, []string{"cube.3mf"}, job.Files)

	uploads := f.uploader.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "bambu", uploads[0].Printer)
	assert.Equal(t, "/model/cube.3mf", uploads[0].Path)
	assert.Equal(t, []byte("G28"), uploads[0].Data)

	assert.Empty(t, publishedCommands(t, f))
}

func TestSubmitAndPrint(t *testing.T) {
	f := newFixture(t, true)

	req := request("G28", true)
	req.Overrides = models.PrintOptions{UseAMS: models.Bool(true)}
	job, err := f.node(t).Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPrinting, job.Status)
	assert.Equal(t, "1", job.Sequence)

	cmds := publishedCommands(t, f)
	require.Len(t, cmds, 1)
	cmd := cmds[0]
	assert.Equal(t, "project_file", cmd["command"])
	assert.Equal(t, "file:///sdcard/model/cube.3mf", cmd["url"])
	assert.Equal(t, "Metadata/plate_1.gcode", cmd["param"])
	assert.Equal(t, "1", cmd["sequence_id"])
	assert.Equal(t, true, cmd["use_ams"])
	// configured default comes through, unconfigured options are left out
	assert.Equal(t, false, cmd["timelapse"])
	assert.NotContains(t, cmd, "flow_cali")
}

func TestSubmitUploadFailure(t *testing.T) {
	f := newFixture(t, true)
	f.uploader.Err = errors.New("530 login incorrect")

	job, err := f.node(t).Submit(context.Background(), request("G28", true))
	require.Error(t, err)
	var uerr *bambu.UploadError
	assert.True(t, errors.As(err, &uerr))

	require.NotNil(t, job)
	assert.Equal(t, models.StatusUploadFailed, job.Status)
	assert.Equal(t, models.StatusFailed, job.Status.Reported())
	assert.Contains(t, job.FailureReason, "530 login incorrect")
	assert.Empty(t, publishedCommands(t, f))
}

func TestSubmitWhileDisconnected(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.node(t).Submit(context.Background(), request("G28", true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bambu.ErrNotConnected))
	require.NotNil(t, job)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Len(t, f.uploader.Uploads(), 1)

	// a failed job frees the printer
	_, err = f.node(t).Submit(context.Background(), request("G28", false))
	assert.NoError(t, err)
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	f := newFixture(t, false)
	f.uploader.Gate = make(chan struct{})
	f.uploader.Started = make(chan string, 1)
	n := f.node(t)

	type result struct {
		job *models.PrintJob
		err error
	}
	first := make(chan result, 1)
	go func() {
		job, err := n.Submit(context.Background(), request("G28", false))
		first <- result{job, err}
	}()
	<-f.uploader.Started

	_, err := n.Submit(context.Background(), request("G29", false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))
	var busy *BusyError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, models.StatusUploading, busy.Status)

	// other printers are not affected
	spare, err := f.bridge.Node("spare")
	require.NoError(t, err)
	assert.Nil(t, spare.CurrentJob())

	close(f.uploader.Gate)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, models.StatusCompleted, res.job.Status)
	assert.Len(t, f.uploader.Uploads(), 1)
}

func TestConcurrentSubmitsAdmitOne(t *testing.T) {
	f := newFixture(t, false)
	f.uploader.Gate = make(chan struct{})
	n := f.node(t)

	const callers = 8
	start := make(chan struct{})
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			<-start
			_, err := n.Submit(context.Background(), request("G28", false))
			results <- err
		}()
	}
	close(start)

	// the admitted job is held at the gate, so every early result is a rejection
	for i := 0; i < callers-1; i++ {
		err := <-results
		assert.True(t, errors.Is(err, ErrBusy), "got %v", err)
	}
	close(f.uploader.Gate)
	assert.NoError(t, <-results)
	assert.Len(t, f.uploader.Uploads(), 1)
}

func TestJobLookup(t *testing.T) {
	f := newFixture(t, false)
	n := f.node(t)

	job, err := n.Submit(context.Background(), request("G28", false))
	require.NoError(t, err)

	got, ok := n.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)

	_, ok = n.Job("missing")
	assert.False(t, ok)

	st := n.Status()
	assert.Equal(t, "bambu", st.Printer)
	require.NotNil(t, st.Job)
	assert.Equal(t, job.ID, st.Job.ID)
	assert.Nil(t, st.Telemetry)
}

func TestMultiPlateUploadPrintsFirstPlate(t *testing.T) {
	f := newFixture(t, true)

	archive := buildTwoPlateArchive(t)
	job, err := f.node(t).Submit(context.Background(), SubmitRequest{
		Filename: "cube.3mf",
		Content:  bytes.NewReader(archive),
		Size:     int64(len(archive)),
		Print:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cube-1.3mf", "cube-2.3mf"}, job.Files)

	uploads := f.uploader.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, "/model/cube-1.3mf", uploads[0].Path)
	assert.Equal(t, "/model/cube-2.3mf", uploads[1].Path)

	cmds := publishedCommands(t, f)
	require.Len(t, cmds, 1)
	assert.Equal(t, "file:///sdcard/model/cube-1.3mf", cmds[0]["url"])
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	f.bridge.Start(context.Background())

	f.bridge.Stop()
	for _, n := range f.bridge.Nodes() {
		assert.Equal(t, bambu.StateDisconnected, n.Session().State())
	}
	assert.Equal(t, 2, f.broker.Dials())
}
