package audio

import (
	"bytes"
	"testing"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/strparms"
)

func TestFIFOWrap(t *testing.T) {
	f := newByteFIFO(8)
	assert.DeepEqual(t, f.write([]byte("abcdef")), 6)
	b := make([]byte, 4)
	assert.DeepEqual(t, f.read(b), 4)
	assert.DeepEqual(t, string(b), "abcd")

	// The write wraps around the end of the ring.
	assert.DeepEqual(t, f.write([]byte("ghijklmn")), 6)
	assert.DeepEqual(t, f.free(), 0)
	assert.DeepEqual(t, f.peek(b[:2]), 2)
	assert.DeepEqual(t, string(b[:2]), "ef")

	all := make([]byte, 16)
	n := f.read(all)
	assert.DeepEqual(t, string(all[:n]), "efghijkl")
	assert.DeepEqual(t, f.len(), 0)
}

// TestPCMPlayback asserts written audio is played by the following hardware
// periods.
func TestPCMPlayback(t *testing.T) {
	p, tac := newTestProvider(t)
	tr, err := p.NewPlayback(audiodef.KindPrimaryOut, audiodef.Config{}, audiodef.OutSpeaker)
	assert.NilErr(t, err)
	assert.NilErr(t, tr.Open())
	assert.DeepEqual(t, tr.Config(), audiodef.Config{
		SampleRate: 48000,
		Channels:   2,
		Format:     audiodef.FormatPCM16,
	})
	assert.DeepEqual(t, tr.PeriodSize(), 960)
	assert.DeepEqual(t, tr.Latency(), 80*time.Millisecond)

	// A reconfiguration is refused while the transport is open.
	assert.ErrorIs(t, tr.Reconfigure(audiodef.Config{}), errOpen)

	data := bytes.Repeat([]byte{0x11}, 960*4)
	n, err := tr.Write(data)
	assert.NilErr(t, err)
	assert.DeepEqual(t, n, len(data))

	assert.NilErr(t, tr.Start())
	assert.ChanWritten(t, tac.started)
	assert.DeepEqual(t, tac.runPeriod(0), data)
	pos, err := tr.RenderPosition()
	assert.NilErr(t, err)
	assert.DeepEqual(t, pos, uint32(960))

	// Underruns are filled with silence.
	assert.DeepEqual(t, tac.runPeriod(0), make([]byte, len(data)))

	assert.NilErr(t, tr.Close())
	assert.ChanWritten(t, tac.stopped)
	assert.ChanWritten(t, tac.uninited)
	_, err = tr.Write(data)
	assert.ErrorIs(t, err, errNotOpen)
}

// TestPCMWriteBlocksUntilPlayed asserts a write larger than the buffer
// starts the device and completes as periods are played.
func TestPCMWriteBlocksUntilPlayed(t *testing.T) {
	p, tac := newTestProvider(t)
	tr, err := p.NewPlayback(audiodef.KindPrimaryOut, audiodef.Config{}, audiodef.OutSpeaker)
	assert.NilErr(t, err)
	assert.NilErr(t, tr.Open())

	period := 960 * 4
	done := make(chan error, 1)
	go func() {
		_, err := tr.Write(make([]byte, period*5))
		done <- err
	}()
	assert.ChanWritten(t, tac.started)
	assert.ChanNotWritten(t, done, 50*time.Millisecond)
	tac.runPeriod(0)
	assert.NilErrFromChan(t, done)

	// Stopping discards the queued audio.
	assert.NilErr(t, tr.Stop())
	assert.DeepEqual(t, tac.runPeriod(0), make([]byte, period))
}

func TestPCMCapture(t *testing.T) {
	p, tac := newTestProvider(t)
	tr, err := p.NewCapture(audiodef.KindPrimaryIn, audiodef.UsageRecording,
		audiodef.Config{SampleRate: 48000, Channels: 1}, audiodef.InBuiltinMic)
	assert.NilErr(t, err)
	assert.NilErr(t, tr.Open())

	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		b := make([]byte, 1920)
		n, err := tr.Read(b)
		done <- result{b[:n], err}
	}()
	assert.ChanWritten(t, tac.started)
	assert.ChanNotWritten(t, done, 50*time.Millisecond)
	tac.runPeriod(0x7f)
	res := assert.ChanWritten(t, done)
	assert.NilErr(t, res.err)
	assert.DeepEqual(t, res.b, bytes.Repeat([]byte{0x7f}, 1920))

	frames, _, err := tr.CapturePosition()
	assert.NilErr(t, err)
	assert.DeepEqual(t, frames, int64(960))

	// Usage changes are refused while the transport is open.
	assert.ErrorIs(t, tr.SetUsage(audiodef.KindPrimaryIn, audiodef.UsageCamcorder), errOpen)
	assert.NilErr(t, tr.Close())
	assert.NilErr(t, tr.SetUsage(audiodef.KindPrimaryIn, audiodef.UsageCamcorder))
}

// TestUSBLearnsConfig asserts external sinks use the configuration of the
// hardware.
func TestUSBLearnsConfig(t *testing.T) {
	p, _ := newTestProvider(t)
	tr, err := p.NewPlayback(audiodef.KindUSBOut, audiodef.Config{SampleRate: 8000},
		audiodef.OutUSBHeadset)
	assert.NilErr(t, err)
	assert.NilErr(t, tr.Open())
	assert.DeepEqual(t, tr.Config().SampleRate, uint32(44100))

	query := strparms.Parse(KeySupportedRates + ";" + KeySupportedChannels)
	reply := strparms.New()
	tr.GetParameters(query, reply)
	assert.DeepEqual(t, reply.String(), "sup_sampling_rates=44100;sup_channels=2")
}

// TestMMAPBuffer asserts MMAP buffers are rounded up to whole bursts and the
// position advances with the hardware.
func TestMMAPBuffer(t *testing.T) {
	p, tac := newTestProvider(t)
	tr, err := p.NewPlayback(audiodef.KindMMAPOut, audiodef.Config{}, audiodef.OutSpeaker)
	assert.NilErr(t, err)
	mt := tr.(hal.MMAPTransport)

	_, err = mt.OpenMMAP(0)
	assert.ErrorIs(t, err, errUnsupportedConfig)
	info, err := mt.OpenMMAP(500)
	assert.NilErr(t, err)
	assert.DeepEqual(t, info, hal.MMAPBufferInfo{BufferSizeFrames: 720, BurstSizeFrames: 240})

	assert.NilErr(t, tr.Start())
	tac.runPeriod(0)
	tac.runPeriod(0)
	pos, err := mt.MMAPPosition()
	assert.NilErr(t, err)
	assert.DeepEqual(t, pos.Frames, int64(480))
}

// TestNullDriver asserts the null driver plays audio without hardware.
func TestNullDriver(t *testing.T) {
	p, err := NewProvider(Config{Driver: DriverNull, Period: 5 * time.Millisecond})
	assert.NilErr(t, err)
	defer p.Close()
	assert.DeepEqual(t, p.Status().Driver, DriverNull)

	tr, err := p.NewPlayback(audiodef.KindPrimaryOut, audiodef.Config{}, audiodef.OutSpeaker)
	assert.NilErr(t, err)
	defer tr.Destroy()
	assert.NilErr(t, tr.Open())

	// Twice the buffer size only completes once the null device played
	// the first half.
	data := make([]byte, 240*4*4*2)
	n, err := tr.Write(data)
	assert.NilErr(t, err)
	assert.DeepEqual(t, n, len(data))
	pos, err := tr.RenderPosition()
	assert.NilErr(t, err)
	if pos == 0 {
		t.Fatalf("null device did not render any frame")
	}
	assert.NilErr(t, tr.Close())

	_, err = NewProvider(Config{Driver: "bogus"})
	assert.NonNilErr(t, err)
}
