//go:build !cgo || noaudio

// Builds without cgo only have the null audio context.

package audio

import "github.com/decred/slog"

func init() {
	newAudioContext = newNullAudioContext
	newEncoder = func(sampleRate, channels int) (streamEncoder, error) {
		return nullAudioEncDec{}, nil
	}
	newDecoder = func(sampleRate, channels int) (streamDecoder, error) {
		return nullAudioEncDec{}, nil
	}
}

// ListDevices lists the hardware devices of the host.
func ListDevices(log slog.Logger) (HardwareDevices, error) {
	return HardwareDevices{}, errAudioDisabledCompilation
}
