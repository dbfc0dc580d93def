package hal

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/decred/slog"
)

// Stream parameter keys.
const (
	KeyRouting      = "routing"
	KeyFormat       = "format"
	KeyChannels     = "channels"
	KeySamplingRate = "sampling_rate"
	KeyFrameCount   = "frame_count"
	KeyInputSource  = "input_source"
)

// lowLatencyRate is the only rate served by the low latency and MMAP
// capture transports.
const lowLatencyRate = 48000

// stream holds what playback and capture streams have in common.
//
// mtx guards the transport and every lifecycle transition. The atomic
// attributes are only written with mtx held, but the device reads them
// without it while scanning the open streams.
type stream struct {
	dev *Device
	id  uint64
	dir audiodef.Direction
	log slog.Logger

	mtx     sync.Mutex
	kind    atomic.Int32
	state   atomic.Int32
	usage   atomic.Int32
	devices atomic.Uint32

	// cfg is the configuration requested by the runtime.
	cfg audiodef.Config
}

func (s *stream) String() string {
	if s.dir == audiodef.Capture {
		return fmt.Sprintf("in#%d(%s)", s.id, s.Kind())
	}
	return fmt.Sprintf("out#%d(%s)", s.id, s.Kind())
}

// Kind returns the stream kind.
func (s *stream) Kind() audiodef.StreamKind {
	return audiodef.StreamKind(s.kind.Load())
}

func (s *stream) setKind(k audiodef.StreamKind) {
	s.kind.Store(int32(k))
}

// State returns the lifecycle state.
func (s *stream) State() audiodef.State {
	return audiodef.State(s.state.Load())
}

func (s *stream) setState(st audiodef.State) {
	old := audiodef.State(s.state.Swap(int32(st)))
	if old != st {
		s.log.Tracef("State %s -> %s", old, st)
	}
}

// Usage returns the usage declared by the stream.
func (s *stream) Usage() audiodef.Usage {
	return audiodef.Usage(s.usage.Load())
}

func (s *stream) setUsage(u audiodef.Usage) {
	s.usage.Store(int32(u))
}

// Devices returns the devices last requested for the stream.
func (s *stream) Devices() audiodef.Devices {
	return audiodef.Devices(s.devices.Load())
}

func (s *stream) setDevices(d audiodef.Devices) {
	s.devices.Store(uint32(d))
}

// Direction returns whether this is a playback or capture stream.
func (s *stream) Direction() audiodef.Direction {
	return s.dir
}

// ID returns the handle of the stream, unique within its device.
func (s *stream) ID() uint64 {
	return s.id
}

// configParams applies the format, channels and sampling_rate keys of p to
// the transport. Changes are rejected once the stream left standby. Must be
// called with the stream lock held.
func (s *stream) configParams(p *strparms.Params, tr Transport) error {
	if !p.Has(KeyFormat) && !p.Has(KeyChannels) && !p.Has(KeySamplingRate) {
		return nil
	}
	if s.State() > audiodef.StateReady {
		s.log.Warnf("Config change rejected in state %s", s.State())
		return ErrNotSupported
	}

	cfg := s.cfg
	if v, ok := p.Get(KeyFormat); ok {
		f, err := audiodef.ParseFormat(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cfg.Format = f
	}
	if v, ok := p.Get(KeyChannels); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: bad channel count %q", ErrInvalid, v)
		}
		cfg.Channels = n
	}
	if v, ok := p.Get(KeySamplingRate); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: bad sampling rate %q", ErrInvalid, v)
		}
		cfg.SampleRate = uint32(n)
	}
	p.Del(KeyFormat)
	p.Del(KeyChannels)
	p.Del(KeySamplingRate)

	// Zero values keep what the transport uses.
	cur := tr.Config()
	if cfg.Format == audiodef.FormatDefault {
		cfg.Format = cur.Format
	}
	if cfg.Channels == 0 {
		cfg.Channels = cur.Channels
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = cur.SampleRate
	}
	if cfg == cur {
		return nil
	}
	if err := tr.Reconfigure(cfg); err != nil {
		return fmt.Errorf("unable to reconfigure %s to %s: %w", s, cfg, err)
	}
	s.cfg = cfg
	s.log.Debugf("Reconfigured to %s", cfg)
	return nil
}

// configReply adds the config keys of query to reply.
func (s *stream) configReply(query, reply *strparms.Params, tr Transport) {
	cfg := tr.Config()
	if query.Has(KeyFormat) {
		reply.Set(KeyFormat, cfg.Format.String())
	}
	if query.Has(KeyChannels) {
		reply.SetInt(KeyChannels, cfg.Channels)
	}
	if query.Has(KeySamplingRate) {
		reply.SetInt(KeySamplingRate, int(cfg.SampleRate))
	}
	if query.Has(KeyRouting) {
		reply.SetInt(KeyRouting, int(s.Devices()))
	}
}

// parseDevices reads the value of the routing key.
func parseDevices(v string) (audiodef.Devices, error) {
	d, err := audiodef.ParseDevices(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d, nil
}

func (s *stream) isMMAP() bool {
	k := s.Kind()
	return k == audiodef.KindMMAPOut || k == audiodef.KindMMAPIn
}

// createMMAPBuffer leaves standby through the memory mapped open of the
// transport. route and unroute run with the stream lock held. Must be
// called with the stream lock held.
func (s *stream) createMMAPBuffer(tr Transport, minFrames int, route, unroute func()) (MMAPBufferInfo, error) {
	mt, ok := tr.(MMAPTransport)
	if !ok || !s.isMMAP() {
		return MMAPBufferInfo{}, ErrNotSupported
	}
	if minFrames <= 0 {
		return MMAPBufferInfo{}, fmt.Errorf("%w: minimum of %d frames", ErrInvalid, minFrames)
	}
	if s.State() != audiodef.StateStandby {
		return MMAPBufferInfo{}, fmt.Errorf("%w: buffer already created", ErrInvalid)
	}

	s.setState(audiodef.StateReady)
	route()
	info, err := mt.OpenMMAP(minFrames)
	if err != nil {
		s.setState(audiodef.StateStandby)
		unroute()
		s.dev.metrics.transportError()
		return MMAPBufferInfo{}, fmt.Errorf("unable to create mmap buffer: %w", err)
	}
	s.setState(audiodef.StateIdle)
	s.log.Debugf("MMAP buffer %d frames, burst %d, shared %v", info.BufferSizeFrames,
		info.BurstSizeFrames, info.Shared)
	return info, nil
}

func (s *stream) mmapPosition(tr Transport) (MMAPPosition, error) {
	mt, ok := tr.(MMAPTransport)
	if !ok || !s.isMMAP() {
		return MMAPPosition{}, ErrNotSupported
	}
	if s.State() < audiodef.StateIdle {
		return MMAPPosition{}, ErrInvalid
	}
	return mt.MMAPPosition()
}

func (s *stream) startMMAP(tr Transport) error {
	if !s.isMMAP() {
		return ErrNotSupported
	}
	if s.State() != audiodef.StateIdle {
		return fmt.Errorf("%w: start in state %s", ErrInvalid, s.State())
	}
	if err := tr.Start(); err != nil {
		s.dev.metrics.transportError()
		return fmt.Errorf("unable to start: %w", err)
	}
	s.setState(audiodef.StatePlaying)
	return nil
}

func (s *stream) stopMMAP(tr Transport) error {
	if !s.isMMAP() {
		return ErrNotSupported
	}
	if s.State() != audiodef.StatePlaying {
		return fmt.Errorf("%w: stop in state %s", ErrInvalid, s.State())
	}
	if err := tr.Stop(); err != nil {
		s.dev.metrics.transportError()
		return fmt.Errorf("unable to stop: %w", err)
	}
	s.setState(audiodef.StateIdle)
	return nil
}
