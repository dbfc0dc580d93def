package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/halrpc"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/audio"
	"github.com/companyzero/audiohal/internal/testutils"
	"github.com/companyzero/audiohal/lockfile"
	"github.com/companyzero/audiohal/server/settings"
	"github.com/jrick/wsrpc/v2"
)

func testSettings(t *testing.T, root string) *settings.Settings {
	cfg := settings.New()
	cfg.Root = root
	cfg.LockFile = filepath.Join(root, settings.LockFilename)
	cfg.MixerPaths = filepath.Join(root, settings.MixerPathsFile)
	cfg.CardStateFile = filepath.Join(root, settings.CardStateFilename)
	cfg.LogFile = ""
	cfg.DebugLevel = "trace,MIXR=debug"
	cfg.LogStdOut = testutils.NewTestLogBackend(t)
	cfg.AudioDriver = audio.DriverNull
	cfg.Period = 5 * time.Millisecond
	cfg.AudioPriority = 0
	cfg.RPCListen = []string{"127.0.0.1:0"}
	cfg.RPCTokens = []string{"tok"}
	cfg.StatsInterval = 0
	cfg.Versioner = func() string { return "9.9.9" }
	return cfg
}

type runningServer struct {
	*Server
	cancel func()
	runErr chan error
}

func startServer(t *testing.T, cfg *settings.Settings) *runningServer {
	t.Helper()
	s, err := NewServer(cfg)
	assert.NilErr(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningServer{Server: s, cancel: cancel, runErr: make(chan error, 1)}
	go func() { rs.runErr <- s.Run(ctx) }()
	select {
	case <-s.Ready():
	case err := <-rs.runErr:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(30 * time.Second):
		cancel()
		t.Fatal("timeout waiting for server to start")
	}
	return rs
}

// stop cancels Run and waits for it to return.
func (rs *runningServer) stop(t *testing.T) {
	t.Helper()
	rs.cancel()
	select {
	case err := <-rs.runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("timeout waiting for server to stop")
	}
	assert.NilErr(t, rs.Close())
}

func (rs *runningServer) dial(t *testing.T) *wsrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := fmt.Sprintf("ws://%s%s", rs.RPCAddrs()[0], halrpc.Path)
	c, err := wsrpc.Dial(ctx, url, wsrpc.WithBearerAuthString("tok"))
	assert.NilErr(t, err)
	return c
}

// TestServerRun runs the daemon with the null audio driver and drives it
// through the API.
func TestServerRun(t *testing.T) {
	root := testutils.TempTestDir(t, "audiohald")
	cfg := testSettings(t, root)
	rs := startServer(t, cfg)

	// The default mixer paths file was created.
	if _, err := os.Stat(cfg.MixerPaths); err != nil {
		t.Fatalf("mixer paths not created: %v", err)
	}

	c := rs.dial(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var st halrpc.StatusResult
	assert.NilErr(t, c.Call(ctx, halrpc.MethodStatus, &st))
	assert.DeepEqual(t, st.Version, "9.9.9")
	assert.DeepEqual(t, st.Transport.Driver, audio.DriverNull)

	var open halrpc.OpenResult
	err := c.Call(ctx, halrpc.MethodOpenOutput, &open, hal.OutputConfig{
		Devices: audiodef.OutSpeaker,
		Flags:   audiodef.OutputFlagPrimary,
	})
	assert.NilErr(t, err)
	var wres halrpc.WriteResult
	err = c.Call(ctx, halrpc.MethodWrite, &wres, halrpc.WriteArgs{
		Stream: open.Stream,
		Data:   make([]byte, 1920),
	})
	assert.NilErr(t, err)

	// The speaker path is applied while the stream is active.
	assert.NilErr(t, c.Call(ctx, halrpc.MethodStatus, &st))
	assert.Contains(t, st.Mixer.Paths, "media-speaker")
	if st.Stats.BytesWritten == 0 {
		t.Fatal("no bytes written")
	}

	// A second instance can't take the hardware while the first runs.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	s2, err := NewServer(cfg)
	assert.NilErr(t, err)
	assert.ErrorIs(t, s2.Run(ctx2), context.DeadlineExceeded)
	owner, err := lockfile.ReadOwner(cfg.LockFile)
	assert.NilErr(t, err)
	assert.DeepEqual(t, owner.PID, os.Getpid())

	c.Close()
	rs.stop(t)

	// The card state was saved on shutdown.
	state, err := os.ReadFile(cfg.CardStateFile)
	assert.NilErr(t, err)
	if !bytes.Contains(state, []byte("SPK Switch")) {
		t.Fatalf("card state without controls: %s", state)
	}
}

func TestLogBackend(t *testing.T) {
	var out bytes.Buffer
	bknd, err := newLogBackend("", "warn,HAL=debug", &out)
	assert.NilErr(t, err)

	bknd.logger("HAL").Debugf("routed")
	bknd.logger("RTE").Infof("hidden")
	bknd.logger("RTE").Warnf("shown")
	got := out.String()
	assert.StringContains(t, got, "HAL: routed", "RTE: shown")
	if strings.Contains(got, "hidden") {
		t.Fatalf("unexpected log line: %q", got)
	}

	// Loggers are cached.
	if bknd.logger("HAL") != bknd.logger("HAL") {
		t.Fatal("logger not cached")
	}

	for _, bad := range []string{"loud", "HAL=loud", "BOGUS=debug", "a=b=c"} {
		_, err := newLogBackend("", bad, io.Discard)
		assert.NonNilErr(t, err)
	}
}

func TestStatsReport(t *testing.T) {
	prev := hal.Stats{Routes: 2, BytesWritten: 1000}
	cur := hal.Stats{Routes: 5, Reroutes: 1, BytesWritten: 3000, BytesRead: 500}
	d := statsDelta(prev, cur)
	assert.DeepEqual(t, d, hal.Stats{Routes: 3, Reroutes: 1, BytesWritten: 2000, BytesRead: 500})

	line := formatStats(d, 2*time.Second)
	assert.StringContains(t, line, "last 2s", "routes 3", "2.00KB", "1.00K", "500B")

	assert.DeepEqual(t, hbytes(999), "999B")
	assert.DeepEqual(t, hbytes(1500000), "1.50MB")
	assert.DeepEqual(t, hrate(12.5), "12.50")
}
