package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/decred/slog"
)

// maxOpusFrames is the number of frames per channel of the longest Opus
// packet (120ms at 48kHz).
const maxOpusFrames = 5760

// compressTransport plays Opus packets. Each packet written to it is
// prefixed by its length as a little endian uint16. Packets are decoded into
// the PCM ring of the embedded transport as the hardware consumes it.
type compressTransport struct {
	*pcmTransport

	streamCfg   audiodef.Config
	in          *byteFIFO
	dec         streamDecoder
	decBuf      []int16
	pcmBuf      []byte
	pktBuf      []byte
	nonBlocking bool
	left, right float32

	// written and decoded count compressed bytes. trackEnd is the value
	// of written when the last track ended and pcmMark the PCM position
	// where that track ends, once decoded.
	written  int64
	decoded  int64
	trackEnd int64
	pcmMark  int64
	errors   uint64
}

func newCompressTransport(actx audioContext, log slog.Logger, cfg audiodef.Config,
	id DeviceID, prof profile, bufSize int) (*compressTransport, error) {

	if !validOpusConfig(cfg) {
		return nil, fmt.Errorf("%w: %s", errUnsupportedConfig, cfg)
	}
	dec, err := newDecoder(int(cfg.SampleRate), cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("unable to create decoder: %w", err)
	}

	hwCfg := cfg
	hwCfg.Format = audiodef.FormatPCM16
	pcm := newPCMTransport(actx, log, audiodef.Playback, audiodef.KindCompressOffload,
		hwCfg, id, prof)
	pcm.minFIFO = 2 * maxOpusFrames * cfg.Channels * 2

	ct := &compressTransport{
		pcmTransport: pcm,
		streamCfg:    cfg,
		in:           newByteFIFO(bufSize),
		dec:          dec,
		decBuf:       make([]int16, maxOpusFrames*cfg.Channels),
		pktBuf:       make([]byte, 2+0xffff),
		left:         1,
		right:        1,
		trackEnd:     -1,
		pcmMark:      -1,
	}
	pcm.afterPeriod = ct.pump
	return ct, nil
}

// pump decodes queued packets while the PCM ring has room for the longest
// packet. Must be called with the lock held.
func (ct *compressTransport) pump() {
	maxPCM := maxOpusFrames * ct.streamCfg.Channels * 2
	for ct.in.len() >= 2 && ct.fifo.free() >= maxPCM {
		var hdr [2]byte
		ct.in.peek(hdr[:])
		size := int(binary.LittleEndian.Uint16(hdr[:]))
		if ct.in.len() < 2+size {
			return
		}
		ct.in.read(ct.pktBuf[:2+size])
		ct.decoded += int64(2 + size)

		pcm, err := ct.dec.Decode(ct.pktBuf[2:2+size], maxOpusFrames, false, ct.decBuf)
		if err != nil {
			ct.errors++
			ct.log.Warnf("Unable to decode %d byte packet: %v", size, err)
		} else {
			applyGain(pcm, ct.streamCfg.Channels, ct.left, ct.right)
			ct.pcmBuf = leS16SliceToBytes(pcm, ct.pcmBuf[:0])
			ct.queued += int64(ct.fifo.write(ct.pcmBuf))
		}
		if ct.trackEnd >= 0 && ct.pcmMark < 0 && ct.decoded >= ct.trackEnd {
			ct.pcmMark = ct.queued
		}
	}
}

func (ct *compressTransport) Config() audiodef.Config {
	return ct.streamCfg
}

func (ct *compressTransport) Reconfigure(cfg audiodef.Config) error {
	if cfg != ct.streamCfg {
		return fmt.Errorf("%w: offload config is fixed", errUnsupportedConfig)
	}
	return nil
}

// discard drops the compressed and decoded audio. Must be called with the
// lock held.
func (ct *compressTransport) discard() {
	ct.in.reset()
	ct.written, ct.decoded = 0, 0
	ct.trackEnd, ct.pcmMark = -1, -1
}

// Stop discards every queued packet. Blocked waiters return.
func (ct *compressTransport) Stop() error {
	err := ct.halt(true)
	ct.mtx.Lock()
	ct.discard()
	ct.queued, ct.moved = 0, 0
	ct.mtx.Unlock()
	return err
}

func (ct *compressTransport) Close() error {
	err := ct.pcmTransport.Close()
	ct.mtx.Lock()
	ct.discard()
	ct.mtx.Unlock()
	return err
}

func (ct *compressTransport) SetNonBlocking() {
	ct.mtx.Lock()
	ct.nonBlocking = true
	ct.mtx.Unlock()
}

// Write queues compressed data. In non-blocking mode it returns a short
// count when the buffer is full.
func (ct *compressTransport) Write(b []byte) (int, error) {
	ct.mtx.Lock()
	defer ct.mtx.Unlock()
	if !ct.opened {
		return 0, errNotOpen
	}
	gen := ct.gen
	var total int
	for {
		n := ct.in.write(b[total:])
		total += n
		ct.written += int64(n)
		ct.pump()
		if total == len(b) || ct.nonBlocking {
			return total, nil
		}
		if ct.in.free() == 0 && ct.fifo.free() >= maxOpusFrames*ct.streamCfg.Channels*2 {
			// The packet at the head never fits.
			return total, fmt.Errorf("%w: packet exceeds %d byte buffer",
				errUnsupportedConfig, ct.in.cap())
		}
		if err := ct.startLocked(); err != nil {
			return total, err
		}
		for ct.in.free() == 0 && ct.opened && ct.gen == gen {
			ct.cond.Wait()
		}
		if !ct.opened {
			return total, errClosed
		}
		if ct.gen != gen {
			return total, nil
		}
	}
}

// WaitForWrite blocks until there is room for more compressed data or the
// queued data was discarded.
func (ct *compressTransport) WaitForWrite() error {
	ct.mtx.Lock()
	defer ct.mtx.Unlock()
	gen := ct.gen
	for ct.opened && ct.in.free() == 0 && ct.gen == gen {
		ct.cond.Wait()
	}
	if !ct.opened {
		return errClosed
	}
	return nil
}

func (ct *compressTransport) NextTrack() error {
	ct.mtx.Lock()
	defer ct.mtx.Unlock()
	if !ct.opened {
		return errNotOpen
	}
	ct.trackEnd = ct.written
	ct.pcmMark = -1
	if ct.decoded >= ct.trackEnd {
		ct.pcmMark = ct.queued
	}
	return nil
}

// drained returns whether the drain is complete. Must be called with the
// lock held.
func (ct *compressTransport) drained(partial bool) bool {
	if partial && ct.trackEnd >= 0 {
		return ct.pcmMark >= 0 && ct.moved >= ct.pcmMark
	}
	complete := true
	if ct.in.len() >= 2 {
		var hdr [2]byte
		ct.in.peek(hdr[:])
		complete = ct.in.len() < 2+int(binary.LittleEndian.Uint16(hdr[:]))
	}
	return complete && ct.fifo.len() == 0
}

// Drain blocks until the queued audio was rendered. A partial drain returns
// once the track ended by the last NextTrack was rendered.
func (ct *compressTransport) Drain(partial bool) error {
	ct.mtx.Lock()
	defer ct.mtx.Unlock()
	if !ct.opened {
		return errNotOpen
	}
	gen := ct.gen
	for ct.opened && ct.gen == gen && !ct.drained(partial) {
		ct.cond.Wait()
	}
	if !ct.opened {
		return errClosed
	}
	if partial {
		ct.trackEnd, ct.pcmMark = -1, -1
	}
	return nil
}

// Pause stops the hardware keeping the queued audio.
func (ct *compressTransport) Pause() error {
	return ct.halt(false)
}

func (ct *compressTransport) Resume() error {
	return ct.Start()
}

// SetVolume sets the linear gain applied to the decoded audio.
func (ct *compressTransport) SetVolume(left, right float32) error {
	ct.mtx.Lock()
	ct.left, ct.right = left, right
	ct.mtx.Unlock()
	return nil
}

func (ct *compressTransport) Dump(w io.Writer) {
	ct.pcmTransport.Dump(w)
	ct.mtx.Lock()
	defer ct.mtx.Unlock()
	fmt.Fprintf(w, "\tcompressed: %d/%d written %d decoded %d errors %d\n",
		ct.in.len(), ct.in.cap(), ct.written, ct.decoded, ct.errors)
	fmt.Fprintf(w, "\tgain: %.2f/%.2f\n", ct.left, ct.right)
}
