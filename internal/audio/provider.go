package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/decred/slog"
)

// Keys handled by Provider.SetParameters.
const (
	KeyPlaybackDevice = "playback_device_id"
	KeyCaptureDevice  = "capture_device_id"
)

const (
	defaultSampleRate = 48000
	defaultPeriod     = 20 * time.Millisecond
	defaultOffloadBuf = 32 * 1024
)

// profile is the buffer geometry of a stream kind.
type profile struct {
	period  time.Duration
	periods int
}

func (p *Provider) profile(kind audiodef.StreamKind) profile {
	switch kind {
	case audiodef.KindFastOut:
		return profile{period: 10 * time.Millisecond, periods: 2}
	case audiodef.KindLowLatencyOut, audiodef.KindLowLatencyIn,
		audiodef.KindMMAPOut, audiodef.KindMMAPIn:
		return profile{period: 5 * time.Millisecond, periods: 2}
	case audiodef.KindDeepBufferOut:
		return profile{period: 4 * p.cfg.Period, periods: 4}
	case audiodef.KindCompressOffload:
		return profile{period: p.cfg.Period, periods: 8}
	default:
		return profile{period: p.cfg.Period, periods: p.cfg.Periods}
	}
}

// Config configures a Provider.
type Config struct {
	// PlaybackDevice and CaptureDevice select the hardware devices. Empty
	// ids select the default devices.
	PlaybackDevice DeviceID
	CaptureDevice  DeviceID

	// Period is the hardware period of primary streams and Periods the
	// number of periods buffered.
	Period  time.Duration
	Periods int

	// OffloadBufferSize is the compressed buffer size of offload
	// streams.
	OffloadBufferSize int

	// Driver selects the audio context. Empty uses the hardware of the
	// host and DriverNull a timer paced context without hardware.
	Driver string

	Log slog.Logger
}

// Status is the state of a Provider.
type Status struct {
	Driver         string   `json:"driver"`
	PlaybackDevice DeviceID `json:"playback_device"`
	CaptureDevice  DeviceID `json:"capture_device"`
	VoiceCall      bool     `json:"voice_call"`
	FMRadio        bool     `json:"fm_radio"`
	Created        int      `json:"created"`
}

// Provider creates transports backed by the hardware of the host. It
// implements hal.TransportProvider.
type Provider struct {
	cfg  Config
	log  slog.Logger
	actx audioContext

	mtx       sync.Mutex
	playback  DeviceID
	capture   DeviceID
	voiceCall bool
	fmRadio   bool
	created   int
}

var _ hal.TransportProvider = (*Provider)(nil)

// NewProvider initializes the audio context.
func NewProvider(cfg Config) (*Provider, error) {
	newCtx := newAudioContext
	switch cfg.Driver {
	case "":
	case DriverNull:
		newCtx = newNullAudioContext
	default:
		return nil, fmt.Errorf("unknown audio driver %q", cfg.Driver)
	}
	actx, err := newCtx()
	if err != nil {
		return nil, fmt.Errorf("unable to init audio context: %w", err)
	}
	return newProvider(actx, cfg), nil
}

func newProvider(actx audioContext, cfg Config) *Provider {
	if cfg.Period <= 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Periods <= 0 {
		cfg.Periods = 4
	}
	if cfg.OffloadBufferSize <= 0 {
		cfg.OffloadBufferSize = defaultOffloadBuf
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	log.Infof("Initialized audio context with driver %s", actx.name())
	return &Provider{
		cfg:      cfg,
		log:      log,
		actx:     actx,
		playback: cfg.PlaybackDevice,
		capture:  cfg.CaptureDevice,
	}
}

// Close releases the audio context. Transports must be destroyed first.
func (p *Provider) Close() error {
	return p.actx.free()
}

// NewPlayback is part of the hal.TransportProvider interface.
func (p *Provider) NewPlayback(kind audiodef.StreamKind, cfg audiodef.Config,
	devices audiodef.Devices) (hal.PlaybackTransport, error) {

	p.mtx.Lock()
	id := p.playback
	p.created++
	p.mtx.Unlock()

	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	prof := p.profile(kind)
	log := p.log
	p.log.Debugf("New %s transport for %s (%s)", kind, devices, cfg)

	switch kind {
	case audiodef.KindCompressOffload:
		cfg.Format = audiodef.FormatOpus
		return newCompressTransport(p.actx, log, cfg, id, prof, p.cfg.OffloadBufferSize)
	case audiodef.KindUSBOut, audiodef.KindAuxDigital:
		// The hardware decides the configuration of external sinks.
		cfg = audiodef.Config{}
	default:
		if cfg.Format == audiodef.FormatDefault {
			cfg.Format = audiodef.FormatPCM16
		}
	}
	return newPCMTransport(p.actx, log, audiodef.Playback, kind, cfg, id, prof), nil
}

// NewCapture is part of the hal.TransportProvider interface.
func (p *Provider) NewCapture(kind audiodef.StreamKind, u audiodef.Usage, cfg audiodef.Config,
	devices audiodef.Devices) (hal.CaptureTransport, error) {

	p.mtx.Lock()
	id := p.capture
	p.created++
	p.mtx.Unlock()

	if cfg.Format == audiodef.FormatOpus {
		return nil, fmt.Errorf("%w: %s capture", errUnsupportedConfig, cfg.Format)
	}
	switch kind {
	case audiodef.KindUSBIn:
		cfg = audiodef.Config{}
	default:
		if cfg.SampleRate == 0 {
			cfg.SampleRate = defaultSampleRate
		}
		if cfg.Channels == 0 {
			cfg.Channels = 2
		}
		if cfg.Format == audiodef.FormatDefault {
			cfg.Format = audiodef.FormatPCM16
		}
	}
	p.log.Debugf("New %s transport for %s usage %s (%s)", kind, devices, u, cfg)
	t := newPCMTransport(p.actx, p.log, audiodef.Capture, kind, cfg, id, p.profile(kind))
	t.usage = u
	return t, nil
}

// StartVoiceCall is part of the hal.TransportProvider interface. The modem
// renders the call, so only the state is tracked.
func (p *Provider) StartVoiceCall() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.voiceCall {
		p.log.Debugf("Voice call already started")
		return nil
	}
	p.voiceCall = true
	p.log.Infof("Voice call audio started")
	return nil
}

// StopVoiceCall is part of the hal.TransportProvider interface.
func (p *Provider) StopVoiceCall() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if !p.voiceCall {
		return nil
	}
	p.voiceCall = false
	p.log.Infof("Voice call audio stopped")
	return nil
}

// StartFMRadio is part of the hal.TransportProvider interface.
func (p *Provider) StartFMRadio() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.fmRadio = true
	p.log.Infof("FM radio audio started")
	return nil
}

// StopFMRadio is part of the hal.TransportProvider interface.
func (p *Provider) StopFMRadio() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.fmRadio {
		p.log.Infof("FM radio audio stopped")
	}
	p.fmRadio = false
	return nil
}

// SetParameters is part of the hal.TransportProvider interface. Device
// changes apply to transports created afterwards.
func (p *Provider) SetParameters(params *strparms.Params) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if v, ok := params.Get(KeyPlaybackDevice); ok {
		p.playback = DeviceID(v)
		p.log.Infof("Setting playback device to %q", v)
	}
	if v, ok := params.Get(KeyCaptureDevice); ok {
		p.capture = DeviceID(v)
		p.log.Infof("Setting capture device to %q", v)
	}
	return nil
}

// Status returns the current state of the provider.
func (p *Provider) Status() Status {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return Status{
		Driver:         p.actx.name(),
		PlaybackDevice: p.playback,
		CaptureDevice:  p.capture,
		VoiceCall:      p.voiceCall,
		FMRadio:        p.fmRadio,
		Created:        p.created,
	}
}
