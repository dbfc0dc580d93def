// Package hal implements an audio hardware abstraction layer: it arbitrates
// a single set of mixer routes and a modem voice path between the many
// playback and capture streams opened by an audio runtime.
//
// A Device is obtained with Open. Streams opened on it drive the route state
// machine lazily: routes are applied on the first Write or Read and released
// on Standby, unless another user of the route still needs it.
package hal

import (
	"fmt"
	"sync"

	"github.com/bahlo/generic-list-go"
	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/factory"
	"github.com/decred/slog"
	"github.com/puzpuzpuz/xsync/v3"
)

type fmState int

const (
	fmStateOff fmState = iota
	fmStateOn
	fmStateRecording
)

func (s fmState) String() string {
	switch s {
	case fmStateOn:
		return "on"
	case fmStateRecording:
		return "recording"
	default:
		return "off"
	}
}

// devices is the process wide table of open devices.
var devices = xsync.NewMapOf[string, *Device]()

// Device is the audio device shared by every stream.
//
// Lock order is stream then device. The call path arbitrator locks several
// streams, in list order, before locking the device.
type Device struct {
	id       string
	cfg      config
	log      slog.Logger
	rlog     slog.Logger
	slog     slog.Logger
	olog     slog.Logger
	backend  RouteBackend
	provider TransportProvider
	factory  *factory.Manager
	metrics  *metrics

	// refs is guarded by the devices table.
	refs int

	mtx      sync.Mutex
	closed   bool
	mode     audiodef.AudioMode
	prevMode audiodef.AudioMode
	voice    CallSignaling
	outs     *list.List[*OutStream]
	ins      *list.List[*InStream]
	nextID   uint64

	primary     *OutStream
	compress    *OutStream
	activeInput *InStream

	routes [2]routeState

	// currentDevices is the last device set requested by a non call
	// driving output, used to roll back forced routes.
	currentDevices audiodef.Devices

	actualPlayback audiodef.Devices
	prevPlayback   audiodef.Devices
	actualCapture  audiodef.Devices
	prevCapture    audiodef.Devices

	micMute             bool
	screenOn            bool
	voipseOn            bool
	incallMusicOn       bool
	updateOffloadVolume bool
	seamless            bool
	keepCallMode        bool
	fm                  fmState
	fmNeedRoute         bool
	voiceVolume         float32
}

// Open returns the device identified by id, creating it on the first call.
// Every successful Open must be matched by a Close. Options are only used
// when the device is created.
func Open(id string, opts ...Option) (*Device, error) {
	var dev *Device
	var err error
	devices.Compute(id, func(old *Device, loaded bool) (*Device, bool) {
		if loaded {
			old.refs++
			dev = old
			return old, false
		}
		dev, err = newDevice(id, opts)
		if err != nil {
			return nil, true
		}
		dev.refs = 1
		return dev, false
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func newDevice(id string, opts []Option) (*Device, error) {
	cfg := config{
		log:        slog.Disabled,
		muteWindow: DefaultMuteWindow,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.backend == nil || cfg.provider == nil {
		return nil, ErrNoDevice
	}

	d := &Device{
		id:          id,
		cfg:         cfg,
		log:         cfg.logger("HAL"),
		rlog:        cfg.logger("RTE"),
		slog:        cfg.logger("STRM"),
		olog:        cfg.logger("OFLD"),
		backend:     cfg.backend,
		provider:    cfg.provider,
		factory:     factory.New(cfg.logger("FCTY")),
		outs:        list.New[*OutStream](),
		ins:         list.New[*InStream](),
		mode:        audiodef.ModeNormal,
		prevMode:    audiodef.ModeNormal,
		screenOn:    true,
		voiceVolume: 1,
	}
	m, err := newMetrics(id, cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("unable to register metrics: %w", err)
	}
	d.metrics = m
	d.log.Infof("Opened audio device %q", id)
	return d, nil
}

// Close releases one reference to the device. The last Close closes every
// stream still open and releases the collaborators.
func (d *Device) Close() error {
	var last bool
	devices.Compute(d.id, func(old *Device, loaded bool) (*Device, bool) {
		if !loaded || old != d {
			return old, !loaded
		}
		d.refs--
		last = d.refs == 0
		return old, last
	})
	if !last {
		return nil
	}
	return d.shutdown()
}

func (d *Device) shutdown() error {
	d.mtx.Lock()
	var outs []*OutStream
	for e := d.outs.Front(); e != nil; e = e.Next() {
		outs = append(outs, e.Value)
	}
	var ins []*InStream
	for e := d.ins.Front(); e != nil; e = e.Next() {
		ins = append(ins, e.Value)
	}
	d.mtx.Unlock()

	for _, out := range outs {
		d.log.Warnf("Closing %s left open", out)
		d.CloseOutputStream(out)
	}
	for _, in := range ins {
		d.log.Warnf("Closing %s left open", in)
		d.CloseInputStream(in)
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.closed = true
	if d.voice != nil {
		if err := d.voice.Close(); err != nil {
			d.log.Warnf("Unable to close voice manager: %v", err)
		}
		d.voice = nil
	}
	d.metrics.unregister()
	d.log.Infof("Closed audio device %q", d.id)
	return d.backend.Close()
}

// ID returns the identifier the device was opened with.
func (d *Device) ID() string {
	return d.id
}

// InitCheck returns nil when the device is usable.
func (d *Device) InitCheck() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.backend == nil || d.provider == nil {
		return ErrNoDevice
	}
	return nil
}

func (d *Device) isCPCall() bool {
	return d.mode == audiodef.ModeInCall
}

func (d *Device) isAPCall() bool {
	return d.mode == audiodef.ModeInCommunication
}

func (d *Device) isCallMode() bool {
	return d.isCPCall() || d.isAPCall()
}

func (d *Device) fmOn() bool {
	return d.fm == fmStateOn || d.fm == fmStateRecording
}

// voiceCallActive returns true when the modem voice PCM is open.
func (d *Device) voiceCallActive() bool {
	return d.voice != nil && d.voice.IsCallActive()
}

func (d *Device) usbHeadsetConnected() bool {
	switch d.actualPlayback {
	case audiodef.OutUSBDevice, audiodef.OutUSBAccessory, audiodef.OutUSBHeadset:
		return true
	}
	return false
}

// drivesCall returns true for the outputs allowed to drive the call route:
// the primary output and in-call music.
func (d *Device) drivesCall(out *OutStream) bool {
	return out == d.primary || out.Usage() == audiodef.UsageInCallMusic
}

// activeInputRunning returns true when the active input is past standby.
func (d *Device) activeInputRunning() bool {
	return d.activeInput != nil && d.activeInput.State() > audiodef.StateStandby
}

// resolver snapshots the state needed to resolve routes. Must be called with
// the device lock held.
func (d *Device) resolver() *resolver {
	r := &resolver{
		mode:            d.mode,
		factory:         d.factory.State(),
		supportReceiver: d.cfg.supportReceiver,
		fmViaA2DP:       d.cfg.fmViaA2DP,
		fmOn:            d.fmOn(),
		incallMusicOn:   d.incallMusicOn,
		actualCapture:   d.actualCapture,
	}
	if d.voice != nil {
		r.hasVoice = true
		r.call = d.voice.State()
	}
	if d.primary != nil {
		r.primary = d.primary.Devices()
	}
	if d.activeInput != nil {
		r.hasActiveInput = true
		r.activeInputSource = d.activeInput.Source()
	}
	return r
}

// Mode returns the current audio mode.
func (d *Device) Mode() audiodef.AudioMode {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.mode
}

// MicMute returns the global microphone mute state.
func (d *Device) MicMute() bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.micMute
}

// Route returns the active route of a direction.
func (d *Device) Route(dir audiodef.Direction) Route {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.routes[dir].export()
}
