package halrpc

import (
	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/internal/audio"
)

// Path of the websocket endpoint.
const Path = "/api/v1/hal"

// Method names.
const (
	MethodStatus              = "status"
	MethodSetParameters       = "setparameters"
	MethodGetParameters       = "getparameters"
	MethodSetMode             = "setmode"
	MethodSetVoiceVolume      = "setvoicevolume"
	MethodSetMicMute          = "setmicmute"
	MethodDump                = "dump"
	MethodOpenOutput          = "openoutput"
	MethodOpenInput           = "openinput"
	MethodWrite               = "write"
	MethodRead                = "read"
	MethodStandby             = "standby"
	MethodSetStreamParameters = "setstreamparameters"
	MethodPause               = "pause"
	MethodResume              = "resume"
	MethodDrain               = "drain"
	MethodFlush               = "flush"
	MethodClose               = "close"
)

// Error codes of the replies.
const (
	ErrCodeParse          = -32700
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603

	ErrCodeNotSupported  = 1
	ErrCodeInvalid       = 2
	ErrCodeExists        = 3
	ErrCodeNoDevice      = 4
	ErrCodeClosed        = 5
	ErrCodeUnknownStream = 6
)

// MixerStatus lists the applied mixer paths.
type MixerStatus struct {
	Paths     []string `json:"paths"`
	Modifiers []string `json:"modifiers"`
}

// StatusResult is the reply of the status method.
type StatusResult struct {
	Version   string        `json:"version"`
	Uptime    int64         `json:"uptime"`
	Device    hal.Snapshot  `json:"device"`
	Stats     hal.Stats     `json:"stats"`
	Transport *audio.Status `json:"transport,omitempty"`
	Mixer     *MixerStatus  `json:"mixer,omitempty"`
	Streams   int           `json:"streams"`
}

// ParametersArgs carries a k=v;k2=v2 parameter string.
type ParametersArgs struct {
	KV string `json:"kv"`
}

// GetParametersArgs carries the keys to query.
type GetParametersArgs struct {
	Keys string `json:"keys"`
}

// SetModeArgs selects the audio mode by name ("normal", "ringtone",
// "in_call" or "in_communication").
type SetModeArgs struct {
	Mode string `json:"mode"`
}

type SetVoiceVolumeArgs struct {
	Volume float32 `json:"volume"`
}

type SetMicMuteArgs struct {
	Mute bool `json:"mute"`
}

// DumpResult is the text report of the device.
type DumpResult struct {
	Text string `json:"text"`
}

// OpenResult describes a newly opened stream.
type OpenResult struct {
	Stream  uint64          `json:"stream"`
	Kind    string          `json:"kind"`
	Usage   string          `json:"usage"`
	State   string          `json:"state"`
	Config  audiodef.Config `json:"config"`
	Latency int64           `json:"latency_ms"`
}

// StreamArgs selects a stream.
type StreamArgs struct {
	Stream uint64 `json:"stream"`
}

type StreamParametersArgs struct {
	Stream uint64 `json:"stream"`
	KV     string `json:"kv"`
}

type WriteArgs struct {
	Stream uint64 `json:"stream"`
	Data   []byte `json:"data"`
}

// WriteResult is the number of bytes written and the offload events
// reported since the previous reply.
type WriteResult struct {
	N      int      `json:"n"`
	Events []string `json:"events,omitempty"`
}

type ReadArgs struct {
	Stream uint64 `json:"stream"`
	Size   int    `json:"size"`
}

type ReadResult struct {
	Data []byte `json:"data"`
}

type DrainArgs struct {
	Stream uint64 `json:"stream"`

	// Partial returns at the end of the current track.
	Partial bool `json:"partial"`
}

// EventsResult lists the offload events reported since the previous reply.
type EventsResult struct {
	Events []string `json:"events,omitempty"`
}
