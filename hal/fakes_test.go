package hal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/companyzero/audiohal/internal/testutils"
	"github.com/companyzero/audiohal/internal/voice"
)

var errFakeOpen = errors.New("fake open failure")

// fakeBackend records the path and modifier operations it receives.
type fakeBackend struct {
	mtx      sync.Mutex
	ops      []string
	controls map[string]int
	closed   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{controls: make(map[string]int)}
}

func (b *fakeBackend) rec(format string, args ...interface{}) error {
	b.mtx.Lock()
	b.ops = append(b.ops, fmt.Sprintf(format, args...))
	b.mtx.Unlock()
	return nil
}

// take returns and clears the recorded operations.
func (b *fakeBackend) take() []string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	ops := b.ops
	b.ops = nil
	return ops
}

func (b *fakeBackend) control(name string) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.controls[name]
}

func (b *fakeBackend) ApplyPath(u audiodef.Usage, d audiodef.LogicalDevice) error {
	return b.rec("apply %s-%s", u, d)
}
func (b *fakeBackend) ResetPath(u audiodef.Usage, d audiodef.LogicalDevice) error {
	return b.rec("reset %s-%s", u, d)
}
func (b *fakeBackend) ApplyModifier(m audiodef.Modifier) error { return b.rec("apply %s", m) }
func (b *fakeBackend) ResetModifier(m audiodef.Modifier) error { return b.rec("reset %s", m) }

func (b *fakeBackend) SetControl(name string, value int) error {
	b.mtx.Lock()
	b.controls[name] = value
	b.mtx.Unlock()
	return nil
}

func (b *fakeBackend) Control(name string) (int, error) {
	return b.control(name), nil
}

func (b *fakeBackend) Close() error {
	b.mtx.Lock()
	b.closed++
	b.mtx.Unlock()
	return nil
}

// fakeTransport is a playback, capture and mmap transport.
type fakeTransport struct {
	mtx         sync.Mutex
	cfg         audiodef.Config
	kind        audiodef.StreamKind
	usage       audiodef.Usage
	opened      bool
	started     bool
	destroyed   bool
	opens       int
	openErr     error
	shortWrites bool
	fill        byte
	written     int
}

func (t *fakeTransport) Open() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.opened = true
	t.opens++
	return nil
}

func (t *fakeTransport) Start() error {
	t.mtx.Lock()
	t.started = true
	t.mtx.Unlock()
	return nil
}

func (t *fakeTransport) Stop() error {
	t.mtx.Lock()
	t.started = false
	t.mtx.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.mtx.Lock()
	t.opened, t.started = false, false
	t.mtx.Unlock()
	return nil
}

func (t *fakeTransport) Destroy() {
	t.mtx.Lock()
	t.destroyed = true
	t.mtx.Unlock()
}

func (t *fakeTransport) isOpen() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.opened
}

func (t *fakeTransport) Config() audiodef.Config {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.cfg
}

func (t *fakeTransport) Reconfigure(cfg audiodef.Config) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.opened {
		return errors.New("reconfigure while open")
	}
	t.cfg = cfg
	return nil
}

func (t *fakeTransport) PeriodSize() int { return 240 }
func (t *fakeTransport) Latency() time.Duration { return 20 * time.Millisecond }
func (t *fakeTransport) SetParameters(p *strparms.Params) error { return nil }
func (t *fakeTransport) GetParameters(query, reply *strparms.Params) {}
func (t *fakeTransport) Dump(w io.Writer) { fmt.Fprintf(w, "\tfake %s\n", t.kind) }
func (t *fakeTransport) RenderPosition() (uint32, error) { return 0, nil }
func (t *fakeTransport) CapturePosition() (int64, time.Time, error) { return 0, time.Now(), nil }
func (t *fakeTransport) MMAPPosition() (MMAPPosition, error) { return MMAPPosition{Time: time.Now()}, nil }
func (t *fakeTransport) PresentationPosition() (uint64, time.Time, error) {
	return 0, time.Now(), nil
}

func (t *fakeTransport) Write(b []byte) (int, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	n := len(b)
	if t.shortWrites {
		n /= 2
	}
	t.written += n
	return n, nil
}

func (t *fakeTransport) Read(b []byte) (int, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for i := range b {
		b[i] = t.fill
	}
	return len(b), nil
}

func (t *fakeTransport) SetUsage(kind audiodef.StreamKind, u audiodef.Usage) error {
	t.mtx.Lock()
	t.kind, t.usage = kind, u
	t.mtx.Unlock()
	return nil
}

func (t *fakeTransport) OpenMMAP(minFrames int) (MMAPBufferInfo, error) {
	if err := t.Open(); err != nil {
		return MMAPBufferInfo{}, err
	}
	return MMAPBufferInfo{BufferSizeFrames: minFrames, BurstSizeFrames: 96}, nil
}

// fakeCompress is a compressed transport whose blocking calls wait for the
// test to release them.
type fakeCompress struct {
	*fakeTransport

	waitWrite chan struct{}
	drain     chan bool

	// Guarded by the transport lock.
	nextTracks   int
	nextTrackErr error
	pauses       int
}

func (c *fakeCompress) SetNonBlocking() {}
func (c *fakeCompress) Resume() error { return nil }

func (c *fakeCompress) NextTrack() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.nextTrackErr != nil {
		return c.nextTrackErr
	}
	c.nextTracks++
	return nil
}

func (c *fakeCompress) Pause() error {
	c.mtx.Lock()
	c.pauses++
	c.started = false
	c.mtx.Unlock()
	return nil
}

// counts returns the number of track changes and pauses.
func (c *fakeCompress) counts() (nextTracks, pauses int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.nextTracks, c.pauses
}

func (c *fakeCompress) SetVolume(left, right float32) error { return nil }

func (c *fakeCompress) WaitForWrite() error {
	<-c.waitWrite
	return nil
}

// Drain fails when the test sends false.
func (c *fakeCompress) Drain(partial bool) error {
	if ok := <-c.drain; !ok {
		return errors.New("drain failed")
	}
	return nil
}

// fakeProvider creates fake transports and counts the voice call and FM
// radio requests.
type fakeProvider struct {
	mtx        sync.Mutex
	playback   []*fakeTransport
	capture    []*fakeTransport
	compress   []*fakeCompress
	openErr    error
	callStarts int
	callStops  int
	fmStarts   int
	fmStops    int
}

func (p *fakeProvider) NewPlayback(kind audiodef.StreamKind, cfg audiodef.Config,
	devices audiodef.Devices) (PlaybackTransport, error) {

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if cfg.SampleRate == 0 {
		cfg = audiodef.Config{SampleRate: 48000, Channels: 2, Format: audiodef.FormatPCM16}
	}
	tr := &fakeTransport{cfg: cfg, kind: kind, openErr: p.openErr}
	p.playback = append(p.playback, tr)
	if kind == audiodef.KindCompressOffload {
		c := &fakeCompress{
			fakeTransport: tr,
			waitWrite:     make(chan struct{}),
			drain:         make(chan bool),
		}
		p.compress = append(p.compress, c)
		return c, nil
	}
	return tr, nil
}

func (p *fakeProvider) NewCapture(kind audiodef.StreamKind, u audiodef.Usage, cfg audiodef.Config,
	devices audiodef.Devices) (CaptureTransport, error) {

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if cfg.SampleRate == 0 {
		cfg = audiodef.Config{SampleRate: 48000, Channels: 1, Format: audiodef.FormatPCM16}
	}
	tr := &fakeTransport{cfg: cfg, kind: kind, usage: u, openErr: p.openErr, fill: 0x7f}
	p.capture = append(p.capture, tr)
	return tr, nil
}

func (p *fakeProvider) StartVoiceCall() error {
	p.mtx.Lock()
	p.callStarts++
	p.mtx.Unlock()
	return nil
}

func (p *fakeProvider) StopVoiceCall() error {
	p.mtx.Lock()
	p.callStops++
	p.mtx.Unlock()
	return nil
}

func (p *fakeProvider) StartFMRadio() error {
	p.mtx.Lock()
	p.fmStarts++
	p.mtx.Unlock()
	return nil
}

func (p *fakeProvider) StopFMRadio() error {
	p.mtx.Lock()
	p.fmStops++
	p.mtx.Unlock()
	return nil
}

func (p *fakeProvider) SetParameters(*strparms.Params) error { return nil }

func (p *fakeProvider) calls() (starts, stops int) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.callStarts, p.callStops
}

func (p *fakeProvider) lastPlayback() *fakeTransport {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.playback[len(p.playback)-1]
}

func (p *fakeProvider) lastCapture() *fakeTransport {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.capture[len(p.capture)-1]
}

type testDevice struct {
	*Device
	backend  *fakeBackend
	provider *fakeProvider
}

// newTestDevice opens a device backed by fakes. The device is closed when
// the test ends.
func newTestDevice(t *testing.T, opts ...Option) *testDevice {
	t.Helper()
	backend := newFakeBackend()
	provider := &fakeProvider{}
	logBknd := testutils.TestLoggerBackend(t, "hal")
	opts = append([]Option{
		WithLogBackend(logBknd),
		WithRouteBackend(backend),
		WithTransportProvider(provider),
		WithSupportReceiver(true),
		WithMuteWindow(0),
	}, opts...)
	d, err := Open(t.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return &testDevice{Device: d, backend: backend, provider: provider}
}

// withVoice makes the device create a voice manager talking to a logging
// RIL.
func withVoice(t *testing.T) Option {
	return WithCallSignaling(func() (CallSignaling, error) {
		ril := voice.NewLogRIL(testutils.TestLoggerSys(t, "RIL"))
		return voice.New(voice.Config{RIL: ril, Log: testutils.TestLoggerSys(t, "VOIC")}), nil
	})
}

func (d *testDevice) openPrimary(t *testing.T, devs audiodef.Devices) *OutStream {
	t.Helper()
	o, err := d.OpenOutputStream(OutputConfig{
		Devices: devs,
		Flags:   audiodef.OutputFlagPrimary,
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func (d *testDevice) openOutput(t *testing.T, devs audiodef.Devices, flags audiodef.OutputFlags) *OutStream {
	t.Helper()
	o, err := d.OpenOutputStream(OutputConfig{Devices: devs, Flags: flags})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func (d *testDevice) openInput(t *testing.T, devs audiodef.Devices, src audiodef.Source) *InStream {
	t.Helper()
	in, err := d.OpenInputStream(InputConfig{Devices: devs, Source: src})
	if err != nil {
		t.Fatal(err)
	}
	return in
}

func write(t *testing.T, o *OutStream) {
	t.Helper()
	if _, err := o.Write(make([]byte, 960)); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, in *InStream) []byte {
	t.Helper()
	b := make([]byte, 480)
	if _, err := in.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func routing(devs audiodef.Devices) string {
	return fmt.Sprintf("%s=%d", KeyRouting, uint32(devs))
}
