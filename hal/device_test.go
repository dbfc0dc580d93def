package hal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/prometheus/client_golang/prometheus"
)

// TestOpenRefCount asserts a device is shared by every Open with the same id
// and only released by the last Close.
func TestOpenRefCount(t *testing.T) {
	_, err := Open(t.Name() + "-bare")
	assert.ErrorIs(t, err, ErrNoDevice)

	d := newTestDevice(t)
	d2, err := Open(t.Name())
	assert.NilErr(t, err)
	if d2 != d.Device {
		t.Fatal("second open returned a different device")
	}

	assert.NilErr(t, d2.Close())
	assert.NilErr(t, d.InitCheck())
	assert.NilErr(t, d.Close())
	assert.ErrorIs(t, d.InitCheck(), ErrClosed)
	if d.backend.closed != 1 {
		t.Fatalf("backend closed %d times", d.backend.closed)
	}

	_, err = d.OpenOutputStream(OutputConfig{Devices: audiodef.OutSpeaker})
	assert.ErrorIs(t, err, ErrClosed)
}

// TestMetricsReregister asserts closing a device unregisters its collectors.
func TestMetricsReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := []Option{
		WithRouteBackend(newFakeBackend()),
		WithTransportProvider(&fakeProvider{}),
		WithPrometheusRegisterer(reg),
	}

	d, err := Open(t.Name(), opts...)
	assert.NilErr(t, err)
	assert.NilErr(t, d.Close())

	d, err = Open(t.Name(), opts...)
	assert.NilErr(t, err)
	defer d.Close()

	o, err := d.OpenOutputStream(OutputConfig{
		Devices: audiodef.OutSpeaker,
		Flags:   audiodef.OutputFlagPrimary,
	})
	assert.NilErr(t, err)
	write(t, o)

	mfs, err := reg.Gather()
	assert.NilErr(t, err)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "audiohal_route_operations")
	assert.Contains(t, names, "audiohal_open_streams")
	assert.DeepEqual(t, d.Stats().Routes, uint64(1))
	assert.DeepEqual(t, d.Stats().BytesWritten, uint64(960))
}

func TestSetModeInvalid(t *testing.T) {
	d := newTestDevice(t)
	assert.ErrorIs(t, d.SetMode(audiodef.AudioMode(42)), ErrInvalid)
	assert.ErrorIs(t, d.SetVoiceVolume(1.5), ErrInvalid)
	assert.ErrorIs(t, d.SetVoiceVolume(-0.1), ErrInvalid)
	assert.NilErr(t, d.SetVoiceVolume(0.5))
}

// TestRealCallKeepsCallMode asserts a VoIP mode request is ignored while a
// real modem call is up.
func TestRealCallKeepsCallMode(t *testing.T) {
	d := newTestDevice(t, withVoice(t))
	d.openPrimary(t, audiodef.OutEarpiece)

	assert.NilErr(t, d.SetMode(audiodef.ModeInCall))
	assert.NilErr(t, d.SetParameters("realcall=on"))
	assert.NilErr(t, d.SetMode(audiodef.ModeInCommunication))
	assert.DeepEqual(t, d.Mode(), audiodef.ModeInCall)
	assert.DeepEqual(t, d.backend.control(ControlAudioMode), int(audiodef.ModeInCall))

	assert.NilErr(t, d.SetParameters("realcall=off"))
	assert.NilErr(t, d.SetMode(audiodef.ModeInCommunication))
	assert.DeepEqual(t, d.Mode(), audiodef.ModeInCommunication)
}

func TestDeviceParameters(t *testing.T) {
	d := newTestDevice(t)
	assert.DeepEqual(t, d.GetParameters("call_forwarding;screen_state"),
		"call_forwarding=false;screen_state=on")
	assert.NilErr(t, d.SetParameters("screen_state=off"))
	assert.DeepEqual(t, d.GetParameters("screen_state"), "screen_state=off")
}

// TestFactoryForceRoute asserts the factory forced route overrides the
// device of the primary output until it is turned off.
func TestFactoryForceRoute(t *testing.T) {
	d := newTestDevice(t)
	o := d.openPrimary(t, audiodef.OutEarpiece)
	write(t, o)
	d.backend.take()

	assert.NilErr(t, d.SetParameters("factory_test_route=spk"))
	assert.DeepEqual(t, d.Route(audiodef.Playback).Device, audiodef.DeviceSpeaker)
	assert.DeepEqual(t, d.backend.take(), []string{"reset media-handset", "apply media-speaker"})

	assert.NilErr(t, d.SetParameters("factory_test_route=off"))
	assert.DeepEqual(t, d.Route(audiodef.Playback).Device, audiodef.DeviceEarpiece)
}

func TestDump(t *testing.T) {
	d := newTestDevice(t)
	o := d.openPrimary(t, audiodef.OutEarpiece)
	write(t, o)
	in := d.openInput(t, audiodef.InBuiltinMic, audiodef.SourceMic)
	read(t, in)

	var b bytes.Buffer
	assert.NilErr(t, d.Dump(&b))
	for _, want := range []string{
		"mode: normal",
		"routing: playback media-handset capture recording-main-mic",
		"primary output:",
		"active input:",
	} {
		if !strings.Contains(b.String(), want) {
			t.Fatalf("dump does not contain %q:\n%s", want, b.String())
		}
	}

	snap := d.Snapshot()
	assert.DeepEqual(t, len(snap.Outputs), 1)
	assert.DeepEqual(t, len(snap.Inputs), 1)
	assert.DeepEqual(t, snap.Outputs[0].State, audiodef.StatePlaying)
	assert.BoolIs(t, snap.HasVoice, false)
}
