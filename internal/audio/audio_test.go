package audio

import (
	"sync"
	"testing"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/testutils"
)

type testAudioEncDec struct {
	// samples is the number of interleaved samples each decoded packet
	// produces.
	samples int
}

func (t *testAudioEncDec) Decode(data []byte, frameSize int, fec bool, out []int16) ([]int16, error) {
	out = out[:t.samples]
	for i := range out {
		out[i] = int16(data[0])
	}
	return out, nil
}

func (t *testAudioEncDec) Encode(pcm []int16, frameSize int, out []byte) ([]byte, error) {
	out = out[:3]
	out[0], out[1], out[2] = 0xfc, byte(frameSize), byte(frameSize>>8)
	return out, nil
}

func (t *testAudioEncDec) SetBitrate(rate int) {
}

// testAudioContext is used to test transport implementations. Hardware
// periods are run by the test.
type testAudioContext struct {
	t testing.TB

	mtx      sync.Mutex
	started  chan struct{}
	stopped  chan struct{}
	uninited chan struct{}
	cb       dataProc
	cfg      hwConfig
}

func newTestAudioContext(t testing.TB) *testAudioContext {
	return &testAudioContext{
		t:        t,
		started:  make(chan struct{}, 5),
		stopped:  make(chan struct{}, 5),
		uninited: make(chan struct{}, 5),
	}
}

func (tac *testAudioContext) name() string {
	return "testaudio"
}

func (tac *testAudioContext) init(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	if c.cfg.SampleRate == 0 {
		c.cfg = audiodef.Config{SampleRate: 44100, Channels: 2, Format: audiodef.FormatPCM16}
	}
	tac.mtx.Lock()
	tac.cb = cb
	tac.cfg = c
	tac.mtx.Unlock()
	return tac, c.cfg, nil
}

func (tac *testAudioContext) initPlayback(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	return tac.init(c, cb)
}

func (tac *testAudioContext) initCapture(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	return tac.init(c, cb)
}

func (tac *testAudioContext) free() error {
	return nil
}

// These are part of the hwDevice interface.

func (tac *testAudioContext) Start() error {
	tac.started <- struct{}{}
	return nil
}
func (tac *testAudioContext) Stop() error {
	tac.stopped <- struct{}{}
	return nil
}
func (tac *testAudioContext) Uninit() {
	tac.uninited <- struct{}{}
}

// runPeriod runs one hardware period. in is the captured data; the played
// data is returned.
func (tac *testAudioContext) runPeriod(in byte) []byte {
	tac.t.Helper()
	tac.mtx.Lock()
	cb, c := tac.cb, tac.cfg
	tac.mtx.Unlock()
	if cb == nil {
		tac.t.Fatalf("callback not initialized")
	}

	frames := c.periodFrames()
	out := make([]byte, frames*c.cfg.FrameSize())
	captured := make([]byte, len(out))
	for i := range captured {
		captured[i] = in
	}
	cb(out, captured, uint32(frames))
	return out
}

func newTestProvider(t testing.TB) (*Provider, *testAudioContext) {
	tac := newTestAudioContext(t)
	p := newProvider(tac, Config{Log: testutils.TestLoggerSys(t, "XPRT")})
	return p, tac
}
