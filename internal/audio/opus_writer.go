package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	opusIdSig      = "OpusHead"
	opusCommentSig = "OpusTags"
	opusVendor     = "audiohal"

	// opusGranuleRate is the rate of Ogg/Opus granule positions,
	// independent of the input rate.
	opusGranuleRate = 48000
)

// opusWriter writes Opus packets in an Ogg container.
type opusWriter struct {
	ogg     *oggWriter
	granule uint64
}

func newOpusWriter(out io.Writer, inputRate uint32, channels int) (*opusWriter, error) {
	w := &opusWriter{ogg: newOggWriter(out)}
	if err := w.writeHeaders(inputRate, channels); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *opusWriter) writeHeaders(inputRate uint32, channels int) error {
	idHeader := make([]byte, 19)
	copy(idHeader, opusIdSig)
	idHeader[8] = 1
	idHeader[9] = byte(channels)
	binary.LittleEndian.PutUint16(idHeader[10:], 0)
	binary.LittleEndian.PutUint32(idHeader[12:], inputRate)
	binary.LittleEndian.PutUint16(idHeader[16:], 0)
	idHeader[18] = 0
	if err := w.ogg.writePage(idHeader, 0, oggFlagFirst); err != nil {
		return err
	}

	commentHeader := make([]byte, 8+4+len(opusVendor)+4)
	copy(commentHeader, opusCommentSig)
	binary.LittleEndian.PutUint32(commentHeader[8:], uint32(len(opusVendor)))
	copy(commentHeader[12:], opusVendor)
	return w.ogg.writePage(commentHeader, 0, 0)
}

// WritePacket writes one packet holding samples frames at 48kHz.
func (w *opusWriter) WritePacket(p []byte, samples uint64, isLast bool) error {
	if len(p) >= 255*255 {
		return fmt.Errorf("packet of %d bytes does not fit a page", len(p))
	}
	w.granule += samples
	var flags byte
	if isLast {
		flags = oggFlagLast
	}
	return w.ogg.writePage(p, w.granule, flags)
}

// Finish ends the stream with an empty last page.
func (w *opusWriter) Finish() error {
	return w.ogg.writePage(nil, w.granule, oggFlagLast)
}
