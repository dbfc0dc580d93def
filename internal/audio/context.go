package audio

import (
	"errors"
	"time"

	"github.com/companyzero/audiohal/audiodef"
)

// DeviceID identifies a hardware device of the audio context. An empty id
// selects the system default device.
type DeviceID string

// HardwareDevice is a device listed by the audio context.
type HardwareDevice struct {
	ID        DeviceID `json:"id"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"is_default"`
}

// HardwareDevices lists the playback and capture devices of the host.
type HardwareDevices struct {
	Playback []HardwareDevice `json:"playback"`
	Capture  []HardwareDevice `json:"capture"`
}

// RecordInfo is the information about a finished recording.
type RecordInfo struct {
	SampleCount int `json:"sample_count"`
	DurationMs  int `json:"duration_ms"`
	EncodedSize int `json:"encoded_size"`
	PacketCount int `json:"packet_count"`
}

var (
	errAudioDisabledCompilation = errors.New("audio was disabled during compilation")
	errClosed                   = errors.New("transport is closed")
	errNotOpen                  = errors.New("transport is not open")
	errOpen                     = errors.New("transport is open")
	errUnsupportedConfig        = errors.New("unsupported sample configuration")
)

// dataProc is called by the hardware once per period. out is filled for
// playback devices, in holds the captured samples of capture devices.
type dataProc func(out, in []byte, frames uint32)

// hwDevice is an initialized hardware device.
type hwDevice interface {
	Start() error
	Stop() error
	Uninit()
}

// hwConfig is the configuration requested when initializing a device.
type hwConfig struct {
	id     DeviceID
	cfg    audiodef.Config
	period time.Duration
}

// periodFrames returns the number of frames per period.
func (c hwConfig) periodFrames() int {
	return int(time.Duration(c.cfg.SampleRate) * c.period / time.Second)
}

type streamEncoder interface {
	Encode(pcm []int16, frameSize int, data []byte) ([]byte, error)
	SetBitrate(bitrate int)
}

type streamDecoder interface {
	Decode(data []byte, frameSize int, fec bool, out []int16) ([]int16, error)
}

// audioContext abstracts the audio library driving the hardware.
type audioContext interface {
	name() string

	// initPlayback and initCapture initialize a device. The returned
	// config is the one the hardware actually uses.
	initPlayback(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error)
	initCapture(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error)

	free() error
}

// newAudioContext is set by the build specific implementation.
var newAudioContext func() (audioContext, error)

// newEncoder and newDecoder create Opus codecs. They are set by the build
// specific implementation.
var (
	newEncoder func(sampleRate, channels int) (streamEncoder, error)
	newDecoder func(sampleRate, channels int) (streamDecoder, error)
)

// opusRates are the sample rates supported by Opus.
var opusRates = []uint32{8000, 12000, 16000, 24000, 48000}

func validOpusConfig(cfg audiodef.Config) bool {
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return false
	}
	for _, r := range opusRates {
		if r == cfg.SampleRate {
			return true
		}
	}
	return false
}
