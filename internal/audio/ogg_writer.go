package audio

import (
	"encoding/binary"
	"io"
	"math/rand"
)

const (
	oggSig        = "OggS"
	oggHeaderSize = 27

	oggFlagContinued = 0x1
	oggFlagFirst     = 0x2
	oggFlagLast      = 0x4
)

var checksumTable = crcChecksum()

// oggWriter writes the pages of a single logical bitstream. Every page
// carries exactly one packet.
type oggWriter struct {
	w      io.Writer
	serial uint32
	seq    uint32
	buf    []byte
}

func newOggWriter(out io.Writer) *oggWriter {
	return &oggWriter{
		w:      out,
		serial: rand.Uint32(),
	}
}

// lacing returns the segment table of a packet of size n. A packet that is
// a multiple of 255 bytes is terminated by a zero lacing value.
func lacing(n int) []byte {
	table := make([]byte, 0, n/255+1)
	for n >= 255 {
		table = append(table, 255)
		n -= 255
	}
	return append(table, byte(n))
}

// writePage writes packet as one page with the given header flags.
func (o *oggWriter) writePage(packet []byte, granule uint64, flags byte) error {
	segs := lacing(len(packet))
	size := oggHeaderSize + len(segs) + len(packet)
	if cap(o.buf) < size {
		o.buf = make([]byte, size)
	}
	buf := o.buf[:size]
	clear(buf[:oggHeaderSize])

	copy(buf, oggSig)
	buf[5] = flags
	binary.LittleEndian.PutUint64(buf[6:], granule)
	binary.LittleEndian.PutUint32(buf[14:], o.serial)
	binary.LittleEndian.PutUint32(buf[18:], o.seq)
	buf[26] = byte(len(segs))
	copy(buf[oggHeaderSize:], segs)
	copy(buf[oggHeaderSize+len(segs):], packet)

	var checksum uint32
	for i := range buf {
		checksum = (checksum << 8) ^ checksumTable[byte(checksum>>24)^buf[i]]
	}
	binary.LittleEndian.PutUint32(buf[22:], checksum)

	if _, err := o.w.Write(buf); err != nil {
		return err
	}
	o.seq++
	return nil
}

// crcChecksum builds the table of the CRC32 (polynomial 0x04c11db7, no
// reflection) used by Ogg pages.
func crcChecksum() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7

	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if (r & 0x80000000) != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}
