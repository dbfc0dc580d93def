package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/decred/slog"
)

// Keys answered by GetParameters of every transport.
const (
	KeySupportedRates    = "sup_sampling_rates"
	KeySupportedChannels = "sup_channels"
	KeySupportedFormats  = "sup_formats"
)

var (
	_ hal.PlaybackTransport = (*pcmTransport)(nil)
	_ hal.CaptureTransport  = (*pcmTransport)(nil)
	_ hal.MMAPTransport     = (*pcmTransport)(nil)
	_ hal.CompressTransport = (*compressTransport)(nil)
)

// pcmTransport moves PCM audio between a stream and a hardware device
// through a ring buffer filled or drained once per hardware period.
type pcmTransport struct {
	actx    audioContext
	log     slog.Logger
	dir     audiodef.Direction
	id      DeviceID
	period  time.Duration
	periods int

	mtx       sync.Mutex
	cond      *sync.Cond
	kind      audiodef.StreamKind
	usage     audiodef.Usage
	cfg       audiodef.Config
	dev       hwDevice
	fifo      *byteFIFO
	minFIFO   int
	opened    bool
	started   bool
	destroyed bool
	mmap      bool

	// gen is bumped when queued audio is discarded, waking blocked
	// callers.
	gen int

	// frames is the position of the hardware since the transport was
	// opened and posTime the time it was last updated.
	frames  int64
	posTime time.Time
	moved   int64
	queued  int64
	xruns   uint64

	// afterPeriod is called with the lock held after every hardware
	// period.
	afterPeriod func()
}

func newPCMTransport(actx audioContext, log slog.Logger, dir audiodef.Direction,
	kind audiodef.StreamKind, cfg audiodef.Config, id DeviceID, prof profile) *pcmTransport {

	t := &pcmTransport{
		actx:    actx,
		log:     log,
		dir:     dir,
		id:      id,
		kind:    kind,
		cfg:     cfg,
		period:  prof.period,
		periods: prof.periods,
	}
	t.cond = sync.NewCond(&t.mtx)
	return t
}

// process is the hardware callback.
func (t *pcmTransport) process(out, in []byte, frames uint32) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened {
		return
	}
	want := int(frames) * t.cfg.FrameSize()
	switch {
	case t.mmap:
		clear(out)
	case t.dir == audiodef.Playback:
		if want > len(out) {
			want = len(out)
		}
		n := t.fifo.read(out[:want])
		clear(out[n:])
		t.moved += int64(n)
		if n < want && t.started {
			t.xruns++
		}
	default:
		if want > len(in) {
			want = len(in)
		}
		if over := want - t.fifo.free(); over > 0 {
			t.fifo.discard(over)
			t.xruns++
		}
		t.moved += int64(t.fifo.write(in[:want]))
	}
	t.frames += int64(frames)
	t.posTime = time.Now()
	if t.afterPeriod != nil {
		t.afterPeriod()
	}
	t.cond.Broadcast()
}

func (t *pcmTransport) periodFrames() int {
	c := hwConfig{cfg: t.cfg, period: t.period}
	if n := c.periodFrames(); n > 0 {
		return n
	}
	return 1
}

// openLocked initializes the hardware device. Must be called with the lock
// held.
func (t *pcmTransport) openLocked() error {
	if t.destroyed {
		return errClosed
	}
	if t.opened {
		return errOpen
	}
	c := hwConfig{id: t.id, cfg: t.cfg, period: t.period}
	initDev := t.actx.initPlayback
	if t.dir == audiodef.Capture {
		initDev = t.actx.initCapture
	}
	dev, actual, err := initDev(c, t.process)
	if err != nil {
		return fmt.Errorf("unable to init %s device: %w", t.kind, err)
	}
	t.dev = dev
	t.cfg = actual
	size := t.periodFrames() * t.cfg.FrameSize() * t.periods
	if size < t.minFIFO {
		size = t.minFIFO
	}
	t.fifo = newByteFIFO(size)
	t.opened = true
	t.frames, t.moved, t.queued = 0, 0, 0
	t.posTime = time.Now()
	t.log.Debugf("Opened %s device %q %s period %s", t.kind, t.id, t.cfg, t.period)
	return nil
}

func (t *pcmTransport) Open() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.mmap = false
	return t.openLocked()
}

// startLocked starts the hardware device. Must be called with the lock held.
func (t *pcmTransport) startLocked() error {
	if !t.opened {
		return errNotOpen
	}
	if t.started {
		return nil
	}
	if err := t.dev.Start(); err != nil {
		return fmt.Errorf("unable to start %s device: %w", t.kind, err)
	}
	t.started = true
	return nil
}

func (t *pcmTransport) Start() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.startLocked()
}

// halt stops the hardware device, optionally discarding the queued audio.
// The device is stopped without the lock held so that a callback in flight
// can complete.
func (t *pcmTransport) halt(flush bool) error {
	t.mtx.Lock()
	dev, started := t.dev, t.started
	t.started = false
	if flush {
		if t.fifo != nil && t.dir == audiodef.Playback {
			t.fifo.reset()
		}
		t.gen++
	}
	t.cond.Broadcast()
	t.mtx.Unlock()

	if !started {
		return nil
	}
	return dev.Stop()
}

func (t *pcmTransport) Stop() error {
	return t.halt(true)
}

func (t *pcmTransport) Close() error {
	err := t.halt(true)

	t.mtx.Lock()
	dev := t.dev
	t.dev = nil
	t.opened = false
	t.cond.Broadcast()
	t.mtx.Unlock()

	if dev != nil {
		dev.Uninit()
		t.log.Debugf("Closed %s device %q", t.kind, t.id)
	}
	return err
}

func (t *pcmTransport) Destroy() {
	if err := t.Close(); err != nil {
		t.log.Warnf("Unable to close %s: %v", t.kind, err)
	}
	t.mtx.Lock()
	t.destroyed = true
	t.mtx.Unlock()
}

func (t *pcmTransport) Config() audiodef.Config {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.cfg
}

func (t *pcmTransport) Reconfigure(cfg audiodef.Config) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.opened {
		return errOpen
	}
	t.cfg = cfg
	return nil
}

func (t *pcmTransport) PeriodSize() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.periodFrames()
}

func (t *pcmTransport) Latency() time.Duration {
	return t.period * time.Duration(t.periods)
}

func (t *pcmTransport) SetParameters(p *strparms.Params) error {
	return nil
}

func (t *pcmTransport) GetParameters(query, reply *strparms.Params) {
	cfg := t.Config()
	if query.Has(KeySupportedRates) {
		reply.SetInt(KeySupportedRates, int(cfg.SampleRate))
	}
	if query.Has(KeySupportedChannels) {
		reply.SetInt(KeySupportedChannels, cfg.Channels)
	}
	if query.Has(KeySupportedFormats) {
		reply.Set(KeySupportedFormats, cfg.Format.String())
	}
}

func (t *pcmTransport) Dump(w io.Writer) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	fmt.Fprintf(w, "\ttransport: %s %s device %q\n", t.actx.name(), t.kind, t.id)
	fmt.Fprintf(w, "\tconfig: %s period %s x%d\n", t.cfg, t.period, t.periods)
	fmt.Fprintf(w, "\topen: %v started: %v mmap: %v\n", t.opened, t.started, t.mmap)
	fmt.Fprintf(w, "\tframes: %d xruns: %d\n", t.frames, t.xruns)
	if t.fifo != nil {
		fmt.Fprintf(w, "\tbuffered: %d/%d\n", t.fifo.len(), t.fifo.cap())
	}
}

// Write queues b, blocking while the buffer is full. The device is started
// when the buffer fills before Start is called.
func (t *pcmTransport) Write(b []byte) (int, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened {
		return 0, errNotOpen
	}
	gen := t.gen
	var total int
	for {
		n := t.fifo.write(b[total:])
		total += n
		t.queued += int64(n)
		if total == len(b) {
			return total, nil
		}
		if err := t.startLocked(); err != nil {
			return total, err
		}
		for t.fifo.free() == 0 && t.opened && t.gen == gen {
			t.cond.Wait()
		}
		if !t.opened {
			return total, errClosed
		}
		if t.gen != gen {
			return total, nil
		}
	}
}

// Read fills b with captured audio, blocking until enough was captured.
func (t *pcmTransport) Read(b []byte) (int, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened {
		return 0, errNotOpen
	}
	if err := t.startLocked(); err != nil {
		return 0, err
	}
	want := len(b)
	if c := t.fifo.cap(); want > c {
		want = c
	}
	gen := t.gen
	for t.fifo.len() < want && t.opened && t.gen == gen {
		t.cond.Wait()
	}
	if !t.opened {
		return 0, errClosed
	}
	return t.fifo.read(b[:want]), nil
}

func (t *pcmTransport) RenderPosition() (uint32, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened {
		return 0, errNotOpen
	}
	return uint32(t.frames), nil
}

func (t *pcmTransport) PresentationPosition() (uint64, time.Time, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened {
		return 0, time.Time{}, errNotOpen
	}
	return uint64(t.moved / int64(t.cfg.FrameSize())), t.posTime, nil
}

func (t *pcmTransport) CapturePosition() (int64, time.Time, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened {
		return 0, time.Time{}, errNotOpen
	}
	return t.frames, t.posTime, nil
}

func (t *pcmTransport) SetUsage(kind audiodef.StreamKind, u audiodef.Usage) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.opened {
		return errOpen
	}
	t.kind, t.usage = kind, u
	return nil
}

// OpenMMAP opens the device with a buffer of whole periods holding at least
// minFrames.
func (t *pcmTransport) OpenMMAP(minFrames int) (hal.MMAPBufferInfo, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if minFrames <= 0 {
		return hal.MMAPBufferInfo{}, fmt.Errorf("%w: %d frames", errUnsupportedConfig, minFrames)
	}
	t.mmap = true
	if err := t.openLocked(); err != nil {
		t.mmap = false
		return hal.MMAPBufferInfo{}, err
	}
	burst := t.periodFrames()
	size := (minFrames + burst - 1) / burst * burst
	return hal.MMAPBufferInfo{BufferSizeFrames: size, BurstSizeFrames: burst}, nil
}

func (t *pcmTransport) MMAPPosition() (hal.MMAPPosition, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.opened || !t.mmap {
		return hal.MMAPPosition{}, errNotOpen
	}
	return hal.MMAPPosition{Frames: t.frames, Time: t.posTime}, nil
}
