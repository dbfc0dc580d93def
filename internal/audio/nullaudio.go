package audio

import (
	"sync"
	"time"

	"github.com/companyzero/audiohal/audiodef"
)

// DriverNull selects the null audio context, which paces streams with a
// timer and never touches the hardware.
const DriverNull = "nullaudio"

type nullAudioContext struct{}

func newNullAudioContext() (audioContext, error) {
	return nullAudioContext{}, nil
}

func (_ nullAudioContext) name() string { return DriverNull }

// nullAudioDevice consumes or produces silence at the rate of the real
// hardware.
type nullAudioDevice struct {
	cb     dataProc
	frames int
	buf    []byte
	period time.Duration

	mtx  sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newNullAudioDevice(c hwConfig, cb dataProc) *nullAudioDevice {
	frames := c.periodFrames()
	return &nullAudioDevice{
		cb:     cb,
		frames: frames,
		buf:    make([]byte, frames*c.cfg.FrameSize()),
		period: c.period,
	}
}

func (d *nullAudioDevice) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			clear(d.buf)
			d.cb(d.buf, d.buf, uint32(d.frames))
		case <-stop:
			return
		}
	}
}

func (d *nullAudioDevice) Start() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.stop != nil {
		return nil
	}
	d.stop, d.done = make(chan struct{}), make(chan struct{})
	go d.run(d.stop, d.done)
	return nil
}

func (d *nullAudioDevice) Stop() error {
	d.mtx.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mtx.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (d *nullAudioDevice) Uninit() { _ = d.Stop() }

func nullConfig(c hwConfig) audiodef.Config {
	cfg := c.cfg
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if cfg.Format == audiodef.FormatDefault {
		cfg.Format = audiodef.FormatPCM16
	}
	return cfg
}

func (_ nullAudioContext) initPlayback(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	c.cfg = nullConfig(c)
	return newNullAudioDevice(c, cb), c.cfg, nil
}

func (_ nullAudioContext) initCapture(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	c.cfg = nullConfig(c)
	return newNullAudioDevice(c, cb), c.cfg, nil
}

func (_ nullAudioContext) free() error {
	return nil
}

type nullAudioEncDec struct{}

func (_ nullAudioEncDec) Encode(pcm []int16, frameSize int, out []byte) ([]byte, error) {
	return out[:0], nil
}

func (_ nullAudioEncDec) SetBitrate(rate int) {}

func (_ nullAudioEncDec) Decode(data []byte, frameSize int, fec bool, out []int16) ([]int16, error) {
	return out[:0], nil
}
