package hal

import (
	"testing"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/assert"
	"golang.org/x/sync/errgroup"
)

// startCPCall opens a playing primary output on devs and starts a modem call
// on it.
func startCPCall(t *testing.T, d *testDevice, devs audiodef.Devices) *OutStream {
	t.Helper()
	o := d.openPrimary(t, devs)
	write(t, o)
	assert.NilErr(t, d.SetMode(audiodef.ModeInCall))
	assert.NilErr(t, o.SetParameters(routing(devs)))
	return o
}

// TestCPCallDrivesCapture asserts entering a modem call moves the primary
// output to the call usage and drives the paired capture device.
func TestCPCallDrivesCapture(t *testing.T) {
	d := newTestDevice(t, withVoice(t))
	o := d.openPrimary(t, audiodef.OutSpeaker)
	write(t, o)
	d.backend.take()

	assert.NilErr(t, d.SetMode(audiodef.ModeInCall))
	assert.DeepEqual(t, d.Route(audiodef.Playback), Route{
		Routed: true,
		Usage:  audiodef.UsageVoiceCallNB,
		Device: audiodef.DeviceSpeaker,
	})
	assert.DeepEqual(t, d.Route(audiodef.Capture), Route{
		Routed: true,
		Usage:  audiodef.UsageVoiceCallNB,
		Device: audiodef.DeviceSpeakerMic,
	})
	assert.DeepEqual(t, d.backend.take(), []string{
		"reset media-speaker",
		"apply incall-nb-speaker",
		"apply incall-nb-speaker-mic",
	})
	assert.DeepEqual(t, d.backend.control(ControlAudioMode), int(audiodef.ModeInCall))
	assert.DeepEqual(t, d.backend.control(ControlCallPathRxDevice), int(audiodef.DeviceSpeaker))

	// The path did not change so the output kept playing.
	assert.DeepEqual(t, o.State(), audiodef.StatePlaying)

	assert.NilErr(t, o.SetParameters(routing(audiodef.OutSpeaker)))
	starts, stops := d.provider.calls()
	assert.DeepEqual(t, starts, 1)
	assert.DeepEqual(t, stops, 0)
	assert.BoolIs(t, d.Snapshot().Call.CallActive, true)

	// Leaving the call closes the output and releases both routes.
	assert.NilErr(t, d.SetMode(audiodef.ModeNormal))
	_, stops = d.provider.calls()
	assert.DeepEqual(t, stops, 1)
	assert.DeepEqual(t, o.State(), audiodef.StateStandby)
	assert.DeepEqual(t, d.Route(audiodef.Playback), Route{})
	assert.DeepEqual(t, d.Route(audiodef.Capture), Route{})
	assert.BoolIs(t, d.Snapshot().Call.CallMode, false)

	d.backend.take()
	write(t, o)
	assert.DeepEqual(t, d.backend.take(), []string{"apply media-speaker"})
}

// TestCallPathChangeRestartsStreams asserts moving a call to another device
// closes the streams carrying the old path and restarts the voice call.
func TestCallPathChangeRestartsStreams(t *testing.T) {
	d := newTestDevice(t, withVoice(t))
	o := startCPCall(t, d, audiodef.OutSpeaker)

	in := d.openInput(t, audiodef.InBuiltinMic, audiodef.SourceMic)
	assert.DeepEqual(t, in.Kind(), audiodef.KindPrimaryIn)
	read(t, in)
	assert.DeepEqual(t, in.State(), audiodef.StatePlaying)

	assert.NilErr(t, o.SetParameters(routing(audiodef.OutEarpiece)))
	assert.DeepEqual(t, o.State(), audiodef.StateStandby)
	assert.DeepEqual(t, in.State(), audiodef.StateStandby)
	assert.DeepEqual(t, d.Route(audiodef.Playback).Device, audiodef.DeviceEarpiece)
	assert.DeepEqual(t, d.Route(audiodef.Capture).Device, audiodef.DeviceHandsetMic)

	starts, stops := d.provider.calls()
	assert.DeepEqual(t, starts, 2)
	assert.DeepEqual(t, stops, 1)
	call := d.Snapshot().Call
	assert.BoolIs(t, call.CallActive, true)
	assert.BoolIs(t, call.MuteVoice, false)

	// The next transfers reopen both streams on the new path.
	read(t, in)
	assert.DeepEqual(t, in.State(), audiodef.StatePlaying)
	write(t, o)
	assert.DeepEqual(t, o.State(), audiodef.StatePlaying)
	assert.DeepEqual(t, d.Route(audiodef.Capture).Device, audiodef.DeviceHandsetMic)
}

// TestCallRecording asserts call recording streams opened during a modem
// call record the call usages without a capture route of their own.
func TestCallRecording(t *testing.T) {
	d := newTestDevice(t, withVoice(t))
	startCPCall(t, d, audiodef.OutEarpiece)
	d.backend.take()

	in := d.openInput(t, audiodef.InTelephonyRx, audiodef.SourceVoiceDownlink)
	assert.DeepEqual(t, in.Kind(), audiodef.KindCallRecord)
	assert.DeepEqual(t, in.Usage(), audiodef.UsageInCallDownlink)
	read(t, in)
	assert.DeepEqual(t, d.backend.take(), []string(nil))

	// Mic mute does not silence the recording of a modem call.
	assert.NilErr(t, d.SetMicMute(true))
	b := read(t, in)
	assert.DeepEqual(t, b[0], byte(0x7f))
}

// TestInCallMusicOutsideCall asserts in-call music is discarded when no call
// carries it.
func TestInCallMusicOutsideCall(t *testing.T) {
	d := newTestDevice(t)
	music := d.openOutput(t, audiodef.OutTelephonyTx, audiodef.OutputFlagIncallMusic)
	assert.DeepEqual(t, music.Usage(), audiodef.UsageInCallMusic)
	write(t, music)

	tr := d.provider.lastPlayback()
	n, err := music.Write(make([]byte, 100))
	assert.NilErr(t, err)
	assert.DeepEqual(t, n, 100)
	tr.mtx.Lock()
	written := tr.written
	tr.mtx.Unlock()
	assert.DeepEqual(t, written, 960)
}

// TestCallConcurrentStreams asserts calls starting, moving and ending while
// streams transfer, enter standby and get rerouted leave the device in a
// consistent state.
func TestCallConcurrentStreams(t *testing.T) {
	const rounds = 200

	d := newTestDevice(t, withVoice(t))
	o := d.openPrimary(t, audiodef.OutSpeaker)
	in := d.openInput(t, audiodef.InBuiltinMic, audiodef.SourceMic)
	write(t, o)
	read(t, in)

	var g errgroup.Group
	g.Go(func() error {
		b := make([]byte, 960)
		for i := 0; i < rounds; i++ {
			if _, err := o.Write(b); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		b := make([]byte, 480)
		for i := 0; i < rounds; i++ {
			if _, err := in.Read(b); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < rounds; i++ {
			if err := o.Standby(); err != nil {
				return err
			}
			if err := in.Standby(); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		devs := []audiodef.Devices{audiodef.OutSpeaker, audiodef.OutEarpiece}
		for i := 0; i < rounds; i++ {
			if err := o.SetParameters(routing(devs[i%len(devs)])); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		modes := []audiodef.AudioMode{audiodef.ModeInCall, audiodef.ModeNormal,
			audiodef.ModeInCommunication, audiodef.ModeNormal}
		for i := 0; i < rounds; i++ {
			if err := d.SetMode(modes[i%len(modes)]); err != nil {
				return err
			}
		}
		return nil
	})
	errs := make(chan error, 1)
	assert.DoesNotBlock(t, func() { errs <- g.Wait() })
	assert.NilErrFromChan(t, errs)

	// The last mode set was normal.
	call := d.Snapshot().Call
	assert.BoolIs(t, call.CallMode, false)
	assert.BoolIs(t, call.CallActive, false)

	// The streams resume on the media path.
	assert.NilErr(t, o.SetParameters(routing(audiodef.OutSpeaker)))
	write(t, o)
	read(t, in)
	assert.DeepEqual(t, o.State(), audiodef.StatePlaying)
	assert.DeepEqual(t, d.Route(audiodef.Playback).Usage, audiodef.UsageMedia)
	assert.DeepEqual(t, d.Route(audiodef.Playback).Device, audiodef.DeviceSpeaker)
	assert.DeepEqual(t, d.Route(audiodef.Capture), Route{
		Routed: true,
		Usage:  audiodef.UsageRecording,
		Device: audiodef.DeviceMainMic,
	})
}
