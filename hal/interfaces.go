package hal

import (
	"io"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/strparms"
)

// Names of the raw controls set on the route backend.
const (
	ControlMuteCount        = "mute-count"
	ControlAudioMode        = "audio-mode"
	ControlCallStatus       = "call-status"
	ControlCallPathRxDevice = "call-path-rx-device"
	ControlModifierSwitch   = "modifier-switch"
	ControlTickle           = "tickle"
	ControlAPCallBuffType   = "apcall-buff-type"
	ControlAPCallSpeech     = "apcall-speech-param"
	ControlAPCallMute       = "apcall-mute"
	ControlCommVolume       = "communication-volume"
	ControlCallParam        = "call-param"
)

// RouteBackend applies named mixer configurations. Every call is applied
// immediately and is idempotent.
type RouteBackend interface {
	// ApplyPath enables the path and the gain path of the (usage, device)
	// pair.
	ApplyPath(u audiodef.Usage, d audiodef.LogicalDevice) error

	// ResetPath disables the path and gain path of the (usage, device)
	// pair.
	ResetPath(u audiodef.Usage, d audiodef.LogicalDevice) error

	ApplyModifier(m audiodef.Modifier) error
	ResetModifier(m audiodef.Modifier) error

	// SetControl sets the value of a raw control.
	SetControl(name string, value int) error

	// Control returns the value of a raw control.
	Control(name string) (int, error)

	Close() error
}

// Transport is the hardware buffer of a single stream.
type Transport interface {
	Open() error
	Start() error
	Stop() error
	Close() error

	// Destroy releases the transport. It is not usable afterwards.
	Destroy()

	// Config returns the configuration actually used by the hardware.
	Config() audiodef.Config

	// Reconfigure changes the configuration. Only valid while closed.
	Reconfigure(cfg audiodef.Config) error

	// PeriodSize is the number of frames per hardware period.
	PeriodSize() int

	Latency() time.Duration

	// SetParameters handles transport specific keys.
	SetParameters(p *strparms.Params) error

	// GetParameters adds to reply the transport specific keys of query.
	GetParameters(query, reply *strparms.Params)

	Dump(w io.Writer)
}

// PlaybackTransport is a transport that renders audio.
type PlaybackTransport interface {
	Transport

	// Write queues b for playback. A short write on a compressed
	// transport means the hardware buffer is full.
	Write(b []byte) (int, error)

	// RenderPosition is the number of frames rendered by the DSP since
	// the output left standby.
	RenderPosition() (uint32, error)

	// PresentationPosition is the number of frames presented to the
	// external observer and the time of the measurement.
	PresentationPosition() (uint64, time.Time, error)
}

// CaptureTransport is a transport that records audio.
type CaptureTransport interface {
	Transport

	Read(b []byte) (int, error)

	// CapturePosition is the number of frames captured and the time of
	// the measurement.
	CapturePosition() (int64, time.Time, error)

	// SetUsage switches the kind and usage of the transport. Only valid
	// while closed.
	SetUsage(kind audiodef.StreamKind, u audiodef.Usage) error
}

// CompressTransport is a playback transport that decodes compressed audio.
type CompressTransport interface {
	PlaybackTransport

	// SetNonBlocking makes Write return short counts instead of blocking
	// when the buffer is full.
	SetNonBlocking()

	// WaitForWrite blocks until buffer space is available.
	WaitForWrite() error

	// NextTrack signals the start of the next gapless track.
	NextTrack() error

	// Drain blocks until the queued data was rendered. A partial drain
	// returns at the end of the current track.
	Drain(partial bool) error

	Pause() error
	Resume() error
	SetVolume(left, right float32) error
}

// MMAPBufferInfo describes a shared memory buffer.
type MMAPBufferInfo struct {
	BufferSizeFrames int  `json:"buffer_size_frames"`
	BurstSizeFrames  int  `json:"burst_size_frames"`
	Shared           bool `json:"shared"`
}

// MMAPPosition is the read or write position of a memory mapped buffer.
type MMAPPosition struct {
	Frames int64     `json:"frames"`
	Time   time.Time `json:"time"`
}

// MMAPTransport is a transport whose buffer is memory mapped by the client.
type MMAPTransport interface {
	// OpenMMAP opens the transport with a buffer of at least minFrames.
	OpenMMAP(minFrames int) (MMAPBufferInfo, error)
	MMAPPosition() (MMAPPosition, error)
}

// TransportProvider creates the transports of new streams and drives the
// transports owned by the audio device itself.
type TransportProvider interface {
	NewPlayback(kind audiodef.StreamKind, cfg audiodef.Config, devices audiodef.Devices) (PlaybackTransport, error)
	NewCapture(kind audiodef.StreamKind, u audiodef.Usage, cfg audiodef.Config, devices audiodef.Devices) (CaptureTransport, error)

	StartVoiceCall() error
	StopVoiceCall() error
	StartFMRadio() error
	StopFMRadio() error

	// SetParameters handles device level transport keys.
	SetParameters(p *strparms.Params) error
}

// CallSignaling is the voice call manager. It exists while a primary output
// is open.
type CallSignaling interface {
	Close() error
	State() audiodef.CallState
	IsCallMode() bool
	IsCallActive() bool
	SetCallMode(on bool) error
	SetCallActive(on bool) error
	SetAudioMode(mode audiodef.AudioMode, on bool) error
	SetPath(devices audiodef.Devices) error
	VolumeIndex(volume float32) int
	SetVolume(volume float32) error
	SetMicMute(mute bool) error
	SetRxMute(mute bool) error
	SetUSBMic(on bool) error
	SetCallForwarding(on bool) error
	SetTTYMode(mode audiodef.TTYMode) error
	SetHACMode(on bool) error
	SetLoopback(mode audiodef.LoopbackMode, rx, tx audiodef.Devices) error
	SetParameters(p *strparms.Params, primary audiodef.Devices) error
}
