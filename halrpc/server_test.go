package halrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/audio"
	"github.com/companyzero/audiohal/internal/mixer"
	"github.com/companyzero/audiohal/internal/testutils"
	"github.com/companyzero/audiohal/internal/voice"
	"github.com/jrick/wsrpc/v2"
)

const testToken = "test-token"

const testPaths = `
[controls]
"SPK Switch" = 0

[paths.media-speaker]
"SPK Switch" = 1
`

type testServer struct {
	*Server
	url    string
	runErr chan error
	cancel func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logBknd := testutils.TestLoggerBackend(t, "hald")

	fname := testutils.WriteTestFile(t, t.TempDir(), "paths.toml", testPaths)
	mix, err := mixer.New(mixer.Config{PathsFile: fname, Log: logBknd("MIXR")})
	assert.NilErr(t, err)

	prov, err := audio.NewProvider(audio.Config{
		Driver: audio.DriverNull,
		Period: 5 * time.Millisecond,
		Log:    logBknd("XPRT"),
	})
	assert.NilErr(t, err)

	dev, err := hal.Open(t.Name(),
		hal.WithLogBackend(logBknd),
		hal.WithRouteBackend(mix),
		hal.WithTransportProvider(prov),
		hal.WithCallSignaling(func() (hal.CallSignaling, error) {
			ril := voice.NewLogRIL(logBknd("VOIC"))
			return voice.New(voice.Config{RIL: ril, Log: logBknd("VOIC")}), nil
		}),
	)
	assert.NilErr(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilErr(t, err)

	s, err := New(dev,
		WithListeners([]net.Listener{lis}),
		WithTokens(map[string]struct{}{testToken: {}}),
		WithLogger(logBknd("RPCS")),
		WithVersion("test"),
		WithTransportStatus(prov.Status),
		WithMixerStatus(mix.Applied),
	)
	assert.NilErr(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		Server: s,
		url:    fmt.Sprintf("ws://%s%s", lis.Addr(), Path),
		runErr: make(chan error, 1),
		cancel: cancel,
	}
	go func() { ts.runErr <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-ts.runErr
		dev.Close()
		prov.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) *wsrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := wsrpc.Dial(ctx, ts.url, wsrpc.WithBearerAuthString(testToken))
	assert.NilErr(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func call(t *testing.T, c *wsrpc.Client, method string, res interface{}, args ...interface{}) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if res == nil {
		res = &struct{}{}
	}
	return c.Call(ctx, method, res, args...)
}

func TestUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := wsrpc.Dial(ctx, ts.url, wsrpc.WithBearerAuthString("wrong"))
	assert.NonNilErr(t, err)
}

func TestDeviceMethods(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t)

	var st StatusResult
	assert.NilErr(t, call(t, c, MethodStatus, &st))
	assert.DeepEqual(t, st.Version, "test")
	assert.DeepEqual(t, st.Device.Mode, audiodef.ModeNormal)
	assert.DeepEqual(t, st.Transport.Driver, audio.DriverNull)
	if st.Mixer == nil {
		t.Fatal("status without mixer section")
	}

	assert.NilErr(t, call(t, c, MethodSetMode, nil, SetModeArgs{Mode: "ringtone"}))
	assert.NilErr(t, call(t, c, MethodStatus, &st))
	assert.DeepEqual(t, st.Device.Mode, audiodef.ModeRingtone)

	// Unknown modes and out of range volumes are rejected.
	assert.NonNilErr(t, call(t, c, MethodSetMode, nil, SetModeArgs{Mode: "bogus"}))
	assert.NonNilErr(t, call(t, c, MethodSetVoiceVolume, nil, SetVoiceVolumeArgs{Volume: 2}))
	assert.NonNilErr(t, call(t, c, "bogus", nil))
	assert.NonNilErr(t, call(t, c, MethodSetParameters, nil))

	assert.NilErr(t, call(t, c, MethodSetMicMute, nil, SetMicMuteArgs{Mute: true}))
	assert.NilErr(t, call(t, c, MethodStatus, &st))
	assert.BoolIs(t, st.Device.MicMute, true)

	var dump DumpResult
	assert.NilErr(t, call(t, c, MethodDump, &dump))
	if dump.Text == "" {
		t.Fatal("empty dump")
	}
}

func TestStreamMethods(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t)

	var open OpenResult
	err := call(t, c, MethodOpenOutput, &open, hal.OutputConfig{
		Devices: audiodef.OutSpeaker,
		Flags:   audiodef.OutputFlagPrimary,
	})
	assert.NilErr(t, err)
	assert.DeepEqual(t, open.Kind, audiodef.KindPrimaryOut.String())

	var wres WriteResult
	data := make([]byte, 1920)
	assert.NilErr(t, call(t, c, MethodWrite, &wres, WriteArgs{Stream: open.Stream, Data: data}))
	assert.DeepEqual(t, wres.N, len(data))

	var st StatusResult
	assert.NilErr(t, call(t, c, MethodStatus, &st))
	assert.DeepEqual(t, st.Streams, 1)
	assert.DeepEqual(t, len(st.Device.Outputs), 1)

	// Offload controls are not supported on the primary output.
	assert.NonNilErr(t, call(t, c, MethodPause, nil, StreamArgs{Stream: open.Stream}))
	assert.NonNilErr(t, call(t, c, MethodRead, nil, ReadArgs{Stream: open.Stream, Size: 10}))

	assert.NilErr(t, call(t, c, MethodStandby, nil, StreamArgs{Stream: open.Stream}))
	assert.NilErr(t, call(t, c, MethodClose, nil, StreamArgs{Stream: open.Stream}))
	assert.NonNilErr(t, call(t, c, MethodWrite, nil, WriteArgs{Stream: open.Stream, Data: data}))

	// Capture.
	err = call(t, c, MethodOpenInput, &open, hal.InputConfig{
		Devices: audiodef.InBuiltinMic,
		Source:  audiodef.SourceMic,
		Config:  audiodef.Config{SampleRate: 48000, Channels: 2, Format: audiodef.FormatPCM16},
	})
	assert.NilErr(t, err)
	var rres ReadResult
	assert.NilErr(t, call(t, c, MethodRead, &rres, ReadArgs{Stream: open.Stream, Size: 960}))
	assert.DeepEqual(t, len(rres.Data), 960)
	assert.NonNilErr(t, call(t, c, MethodRead, nil, ReadArgs{Stream: open.Stream, Size: 0}))
}

// TestDisconnectClosesStreams asserts the streams of a connection are closed
// when it ends and are not reachable from other connections.
func TestDisconnectClosesStreams(t *testing.T) {
	ts := newTestServer(t)
	c1 := ts.dial(t)
	c2 := ts.dial(t)

	var open OpenResult
	err := call(t, c2, MethodOpenOutput, &open, hal.OutputConfig{
		Devices: audiodef.OutSpeaker,
		Flags:   audiodef.OutputFlagPrimary,
	})
	assert.NilErr(t, err)

	err = call(t, c1, MethodStandby, nil, StreamArgs{Stream: open.Stream})
	assert.NonNilErr(t, err)

	assert.NilErr(t, c2.Close())
	assert.Eventually(t, func() bool {
		var st StatusResult
		assert.NilErr(t, call(t, c1, MethodStatus, &st))
		return st.Streams == 0 && len(st.Device.Outputs) == 0
	})

	// The primary output can be opened again.
	err = call(t, c1, MethodOpenOutput, &open, hal.OutputConfig{
		Devices: audiodef.OutSpeaker,
		Flags:   audiodef.OutputFlagPrimary,
	})
	assert.NilErr(t, err)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int64
	}{
		{err: paramsError{err: errors.New("x")}, code: ErrCodeInvalidParams},
		{err: errNoParams, code: ErrCodeInvalidParams},
		{err: fmt.Errorf("%w %q", errUnknownMethod, "x"), code: ErrCodeMethodNotFound},
		{err: fmt.Errorf("%w 1", errUnknownStream), code: ErrCodeUnknownStream},
		{err: fmt.Errorf("open: %w", hal.ErrExists), code: ErrCodeExists},
		{err: hal.ErrNotSupported, code: ErrCodeNotSupported},
		{err: hal.ErrInvalid, code: ErrCodeInvalid},
		{err: hal.ErrClosed, code: ErrCodeClosed},
		{err: errors.New("boom"), code: ErrCodeInternal},
	}
	for _, tc := range tests {
		assert.DeepEqual(t, toRPCError(tc.err).Code, tc.code)
	}
}
