package audiodef

import (
	"fmt"
	"strings"
)

// Direction of a stream or route.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// AudioMode is the telephony mode reported by the runtime.
type AudioMode int

const (
	ModeNormal AudioMode = iota
	ModeRingtone
	ModeInCall
	ModeInCommunication
)

var modeNames = []string{"normal", "ringtone", "in_call", "in_communication"}

func (m AudioMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseAudioMode parses the name of a mode as returned by String.
func ParseAudioMode(s string) (AudioMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == s {
			return AudioMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown audio mode %q", s)
}

// Source is the requested capture source.
type Source int

const (
	SourceDefault Source = iota
	SourceMic
	SourceVoiceUplink
	SourceVoiceDownlink
	SourceVoiceCall
	SourceCamcorder
	SourceVoiceRecognition
	SourceVoiceCommunication
	SourceRemoteSubmix
	SourceUnprocessed

	SourceFMTuner Source = 1998
	SourceHotword Source = 1999
)

// IsCallRecording returns true for sources recording the voice call itself.
func (s Source) IsCallRecording() bool {
	return s == SourceVoiceUplink || s == SourceVoiceDownlink || s == SourceVoiceCall
}

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceMic:
		return "mic"
	case SourceVoiceUplink:
		return "voice_uplink"
	case SourceVoiceDownlink:
		return "voice_downlink"
	case SourceVoiceCall:
		return "voice_call"
	case SourceCamcorder:
		return "camcorder"
	case SourceVoiceRecognition:
		return "voice_recognition"
	case SourceVoiceCommunication:
		return "voice_communication"
	case SourceRemoteSubmix:
		return "remote_submix"
	case SourceUnprocessed:
		return "unprocessed"
	case SourceFMTuner:
		return "fm_tuner"
	case SourceHotword:
		return "hotword"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// OutputFlags requested when opening a playback stream.
type OutputFlags uint32

const (
	OutputFlagNone            OutputFlags = 0x0
	OutputFlagDirect          OutputFlags = 0x1
	OutputFlagPrimary         OutputFlags = 0x2
	OutputFlagFast            OutputFlags = 0x4
	OutputFlagDeepBuffer      OutputFlags = 0x8
	OutputFlagCompressOffload OutputFlags = 0x10
	OutputFlagNonBlocking     OutputFlags = 0x20
	OutputFlagRaw             OutputFlags = 0x100
	OutputFlagMMAPNoIRQ       OutputFlags = 0x4000
	OutputFlagIncallMusic     OutputFlags = 0x10000
)

// InputFlags requested when opening a capture stream.
type InputFlags uint32

const (
	InputFlagNone      InputFlags = 0x0
	InputFlagFast      InputFlags = 0x1
	InputFlagHWHotword InputFlags = 0x2
	InputFlagRaw       InputFlags = 0x4
	InputFlagMMAPNoIRQ InputFlags = 0x10
)

// Format is a sample format.
type Format int

const (
	FormatDefault Format = iota
	FormatPCM16
	FormatPCM24Packed
	FormatPCM32
	FormatPCMFloat
	FormatOpus
)

func (f Format) String() string {
	switch f {
	case FormatDefault:
		return "default"
	case FormatPCM16:
		return "pcm16"
	case FormatPCM24Packed:
		return "pcm24"
	case FormatPCM32:
		return "pcm32"
	case FormatPCMFloat:
		return "float"
	case FormatOpus:
		return "opus"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses the name of a format as returned by String.
func ParseFormat(s string) (Format, error) {
	for f := FormatDefault; f <= FormatOpus; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown format %q", s)
}

// BytesPerSample returns the size of one sample of a PCM format.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatPCM24Packed:
		return 3
	case FormatPCM32, FormatPCMFloat:
		return 4
	default:
		return 2
	}
}

// Config is the sample configuration of a stream.
type Config struct {
	SampleRate uint32 `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Format     Format `json:"format"`
}

// FrameSize returns the number of bytes in one frame.
func (c Config) FrameSize() int {
	ch := c.Channels
	if ch < 1 {
		ch = 1
	}
	return ch * c.Format.BytesPerSample()
}

func (c Config) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", c.SampleRate, c.Channels, c.Format)
}

// StreamKind is the closed set of stream kinds. Each kind selects a
// transport profile.
type StreamKind int

const (
	KindNone StreamKind = iota

	// Playback kinds.
	KindPrimaryOut
	KindFastOut
	KindLowLatencyOut
	KindDeepBufferOut
	KindCompressOffload
	KindMMAPOut
	KindAuxDigital
	KindUSBOut
	KindInCallMusic
	KindNoAttributeOut

	// Capture kinds.
	KindPrimaryIn
	KindLowLatencyIn
	KindCallRecord
	KindFMTuner
	KindMMAPIn
	KindUSBIn
	KindNoAttributeIn
)

var kindNames = map[StreamKind]string{
	KindNone:            "none",
	KindPrimaryOut:      "primary_out",
	KindFastOut:         "fast_out",
	KindLowLatencyOut:   "lowlatency_out",
	KindDeepBufferOut:   "deep_out",
	KindCompressOffload: "offload_out",
	KindMMAPOut:         "mmap_out",
	KindAuxDigital:      "aux_out",
	KindUSBOut:          "usb_out",
	KindInCallMusic:     "incallmusic_out",
	KindNoAttributeOut:  "noattr_out",
	KindPrimaryIn:       "primary_in",
	KindLowLatencyIn:    "lowlatency_in",
	KindCallRecord:      "voicecall_rec",
	KindFMTuner:         "fmtuner_in",
	KindMMAPIn:          "mmap_in",
	KindUSBIn:           "usb_in",
	KindNoAttributeIn:   "noattr_in",
}

func (k StreamKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// State is the lifecycle state of a stream, in increasing hardware
// commitment order.
type State int

const (
	StateStandby State = iota
	StateReady
	StateIdle
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateReady:
		return "ready"
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
