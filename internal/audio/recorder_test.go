package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/testutils"
)

type oggTestPage struct {
	flags   byte
	granule uint64
	seq     uint32
	body    []byte
}

// parseOggPages splits b into pages, verifying their checksums.
func parseOggPages(t *testing.T, b []byte) []oggTestPage {
	t.Helper()
	var pages []oggTestPage
	for len(b) > 0 {
		if len(b) < oggHeaderSize || string(b[:4]) != oggSig {
			t.Fatalf("invalid page header at page %d", len(pages))
		}
		nsegs := int(b[26])
		size := 0
		for _, s := range b[oggHeaderSize : oggHeaderSize+nsegs] {
			size += int(s)
		}
		end := oggHeaderSize + nsegs + size
		page := append([]byte(nil), b[:end]...)
		want := binary.LittleEndian.Uint32(page[22:])
		binary.LittleEndian.PutUint32(page[22:], 0)
		var checksum uint32
		for i := range page {
			checksum = (checksum << 8) ^ checksumTable[byte(checksum>>24)^page[i]]
		}
		if checksum != want {
			t.Fatalf("page %d has checksum %x, want %x", len(pages), checksum, want)
		}
		pages = append(pages, oggTestPage{
			flags:   b[5],
			granule: binary.LittleEndian.Uint64(b[6:]),
			seq:     binary.LittleEndian.Uint32(b[18:]),
			body:    b[oggHeaderSize+nsegs : end],
		})
		b = b[end:]
	}
	return pages
}

func TestRecorder(t *testing.T) {
	var out bytes.Buffer
	cfg := audiodef.Config{SampleRate: 16000, Channels: 1, Format: audiodef.FormatPCM16}
	r, err := newRecorder(&out, cfg, &testAudioEncDec{}, testutils.TestLoggerSys(t, "XPRT"))
	assert.NilErr(t, err)

	// One and a half packets: the remainder is padded on close.
	n, err := r.Write(make([]byte, 480*2))
	assert.NilErr(t, err)
	assert.DeepEqual(t, n, 960)
	assert.NilErr(t, r.Close())
	assert.DeepEqual(t, r.RecordInfo(), RecordInfo{
		SampleCount: 640,
		DurationMs:  40,
		EncodedSize: 6,
		PacketCount: 2,
	})

	pages := parseOggPages(t, out.Bytes())
	assert.DeepEqual(t, len(pages), 4)
	assert.DeepEqual(t, string(pages[0].body[:8]), opusIdSig)
	assert.DeepEqual(t, pages[0].body[9], byte(1))
	assert.DeepEqual(t, binary.LittleEndian.Uint32(pages[0].body[12:]), uint32(16000))
	assert.DeepEqual(t, pages[0].flags, byte(oggFlagFirst))
	assert.DeepEqual(t, string(pages[1].body[:8]), opusCommentSig)

	// Granule positions count 48kHz samples.
	assert.DeepEqual(t, pages[2].granule, uint64(960))
	assert.DeepEqual(t, pages[2].flags, byte(0))
	assert.DeepEqual(t, pages[3].granule, uint64(1920))
	assert.DeepEqual(t, pages[3].flags, byte(oggFlagLast))
	assert.DeepEqual(t, pages[3].seq, uint32(3))
	assert.DeepEqual(t, pages[3].body, []byte{0xfc, 0x40, 0x01})

	_, err = r.Write([]byte{0, 0})
	assert.NonNilErr(t, err)
}

func TestRecorderEmpty(t *testing.T) {
	var out bytes.Buffer
	cfg := audiodef.Config{SampleRate: 48000, Channels: 2, Format: audiodef.FormatPCM16}
	r, err := newRecorder(&out, cfg, &testAudioEncDec{}, nil)
	assert.NilErr(t, err)
	assert.NilErr(t, r.Close())

	pages := parseOggPages(t, out.Bytes())
	assert.DeepEqual(t, len(pages), 3)
	assert.DeepEqual(t, pages[2].flags, byte(oggFlagLast))
	assert.DeepEqual(t, len(pages[2].body), 0)
}

func TestRecorderRejectsConfig(t *testing.T) {
	cfg := audiodef.Config{SampleRate: 44100, Channels: 2, Format: audiodef.FormatPCM16}
	_, err := NewRecorder(&bytes.Buffer{}, cfg, nil)
	assert.ErrorIs(t, err, errUnsupportedConfig)
}

func TestLacing(t *testing.T) {
	assert.DeepEqual(t, lacing(0), []byte{0})
	assert.DeepEqual(t, lacing(300), []byte{255, 45})
	assert.DeepEqual(t, lacing(510), []byte{255, 255, 0})
}
