package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/decred/slog"
)

// encodeFrameDuration is the duration of each encoded packet.
const encodeFrameDuration = 20 * time.Millisecond

// encodeBitRate is the bitrate (in bps) per channel of the encoder output.
const encodeBitRate = 48000

// Recorder encodes interleaved little endian PCM16 audio into an Ogg/Opus
// stream. It is not safe for concurrent use.
type Recorder struct {
	log          slog.Logger
	cfg          audiodef.Config
	enc          streamEncoder
	w            *opusWriter
	frameSamples int
	granuleStep  uint64

	pending      []int16
	encodeBuffer []byte

	// held is the last encoded packet. It is written once the next one is
	// available so that the last page can be flagged.
	held    []byte
	hasHeld bool

	info   RecordInfo
	closed bool
}

// NewRecorder writes the Ogg/Opus headers of a stream of cfg audio to out.
func NewRecorder(out io.Writer, cfg audiodef.Config, log slog.Logger) (*Recorder, error) {
	if cfg.Format != audiodef.FormatPCM16 || !validOpusConfig(cfg) {
		return nil, fmt.Errorf("%w: %s", errUnsupportedConfig, cfg)
	}
	enc, err := newEncoder(int(cfg.SampleRate), cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("unable to create encoder: %w", err)
	}
	return newRecorder(out, cfg, enc, log)
}

func newRecorder(out io.Writer, cfg audiodef.Config, enc streamEncoder, log slog.Logger) (*Recorder, error) {
	if log == nil {
		log = slog.Disabled
	}
	enc.SetBitrate(encodeBitRate * cfg.Channels)
	w, err := newOpusWriter(out, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	frameSamples := int(time.Duration(cfg.SampleRate) * encodeFrameDuration / time.Second)
	return &Recorder{
		log:          log,
		cfg:          cfg,
		enc:          enc,
		w:            w,
		frameSamples: frameSamples,
		granuleStep:  uint64(frameSamples) * opusGranuleRate / uint64(cfg.SampleRate),
		encodeBuffer: make([]byte, 4000),
	}, nil
}

// flushHeld writes the held packet.
func (r *Recorder) flushHeld(isLast bool) error {
	if !r.hasHeld {
		return nil
	}
	r.hasHeld = false
	return r.w.WritePacket(r.held, r.granuleStep, isLast)
}

func (r *Recorder) encodeFrame(samples []int16) error {
	encoded, err := r.enc.Encode(samples, r.frameSamples, r.encodeBuffer)
	if err != nil {
		return fmt.Errorf("unable to encode: %w", err)
	}
	if err := r.flushHeld(false); err != nil {
		return err
	}
	r.held = append(r.held[:0], encoded...)
	r.hasHeld = true

	r.info.PacketCount++
	r.info.SampleCount += len(samples)
	r.info.EncodedSize += len(encoded)
	r.info.DurationMs += int(encodeFrameDuration / time.Millisecond)
	return nil
}

// Write encodes every complete packet worth of b. A trailing odd byte is
// ignored.
func (r *Recorder) Write(b []byte) (int, error) {
	if r.closed {
		return 0, errors.New("recorder is closed")
	}
	r.pending = bytesToLES16Slice(b, r.pending)
	size := r.frameSamples * r.cfg.Channels
	var done int
	for len(r.pending)-done >= size {
		if err := r.encodeFrame(r.pending[done : done+size]); err != nil {
			return 0, err
		}
		done += size
	}
	r.pending = append(r.pending[:0], r.pending[done:]...)
	return len(b), nil
}

// Close pads and encodes the remaining audio and ends the stream.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if len(r.pending) > 0 {
		size := r.frameSamples * r.cfg.Channels
		frame := make([]int16, size)
		copy(frame, r.pending)
		if err := r.encodeFrame(frame); err != nil {
			return err
		}
		r.pending = r.pending[:0]
	}
	if !r.hasHeld {
		return r.w.Finish()
	}
	if err := r.flushHeld(true); err != nil {
		return err
	}
	r.log.Debugf("Recorded %d packets, %d samples, %d encoded bytes",
		r.info.PacketCount, r.info.SampleCount, r.info.EncodedSize)
	return nil
}

// RecordInfo returns information about the encoded audio.
func (r *Recorder) RecordInfo() RecordInfo {
	return r.info
}
