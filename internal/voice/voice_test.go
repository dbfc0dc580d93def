package voice

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/companyzero/audiohal/internal/testutils"
)

// recRIL records every request as a string.
type recRIL struct {
	mtx     sync.Mutex
	calls   []string
	openErr error
}

func (r *recRIL) rec(format string, args ...interface{}) error {
	r.mtx.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mtx.Unlock()
	return nil
}

func (r *recRIL) take() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	c := r.calls
	r.calls = nil
	return c
}

func (r *recRIL) Open() error {
	if r.openErr != nil {
		return r.openErr
	}
	return r.rec("open")
}
func (r *recRIL) Close() error { return r.rec("close") }
func (r *recRIL) SetSoundClock(on bool) error { return r.rec("clock %v", on) }
func (r *recRIL) SetAudioMode(mode audiodef.AudioMode, on bool) error {
	return r.rec("mode %s %v", mode, on)
}
func (r *recRIL) SetVoicePath(path Path) error { return r.rec("path %s", path) }
func (r *recRIL) SetVoiceVolume(devices audiodef.Devices, index int, volume float32) error {
	return r.rec("volume %s %d", devices, index)
}
func (r *recRIL) SetTxMute(mute bool) error { return r.rec("txmute %v", mute) }
func (r *recRIL) SetRxMute(mute bool) error { return r.rec("rxmute %v", mute) }
func (r *recRIL) SetUSBMic(on bool) error { return r.rec("usbmic %v", on) }
func (r *recRIL) SetCallForwarding(on bool) error { return r.rec("callfwd %v", on) }
func (r *recRIL) SetExtraVolume(on bool) error { return r.rec("extravol %v", on) }
func (r *recRIL) SetRealCall(on bool) error { return r.rec("realcall %v", on) }
func (r *recRIL) SetVoLTEState(s audiodef.VoLTEStatus) error { return r.rec("volte %s", s) }
func (r *recRIL) SetHACMode(on bool) error { return r.rec("hac %v", on) }
func (r *recRIL) SetTTYMode(mode audiodef.TTYMode) error { return r.rec("tty %s", mode) }
func (r *recRIL) SetScoSolution(nrec, wb bool) error { return r.rec("sco %v %v", nrec, wb) }
func (r *recRIL) SetLoopback(mode audiodef.LoopbackMode, rx, tx audiodef.Devices) error {
	return r.rec("loopback %s %s %s", mode, rx, tx)
}

func newTestManager(t *testing.T) (*Manager, *recRIL) {
	t.Helper()
	ril := &recRIL{}
	m := New(Config{RIL: ril, Log: testutils.TestLoggerSys(t, "VOIC")})
	ril.take()
	return m, ril
}

// TestCallStatusTransitions verifies the call status only moves between
// adjacent states.
func TestCallStatusTransitions(t *testing.T) {
	m, ril := newTestManager(t)

	// Active can't be reached without call mode.
	assert.NilErr(t, m.SetCallActive(true))
	assert.BoolIs(t, m.IsCallActive(), false)

	assert.NilErr(t, m.SetCallMode(true))
	assert.BoolIs(t, m.IsCallMode(), true)
	assert.BoolIs(t, m.IsCallActive(), false)

	assert.NilErr(t, m.SetCallActive(true))
	assert.BoolIs(t, m.IsCallActive(), true)
	assert.DeepEqual(t, ril.take(), []string{"clock true"})

	// Leaving call mode while active is ignored.
	assert.NilErr(t, m.SetCallMode(false))
	assert.BoolIs(t, m.IsCallMode(), true)

	assert.NilErr(t, m.SetCallActive(false))
	assert.NilErr(t, m.SetCallMode(false))
	assert.BoolIs(t, m.IsCallMode(), false)
	assert.DeepEqual(t, ril.take(), []string{"clock false"})
}

// TestReconnectOnCallMode verifies a RIL that failed to open is retried
// when the call mode is entered.
func TestReconnectOnCallMode(t *testing.T) {
	ril := &recRIL{openErr: errors.New("no modem")}
	m := New(Config{RIL: ril, Log: testutils.TestLoggerSys(t, "VOIC")})
	assert.NonNilErr(t, m.SetCallMode(true))
	assert.BoolIs(t, m.IsCallMode(), false)

	ril.openErr = nil
	assert.NilErr(t, m.SetCallMode(true))
	assert.BoolIs(t, m.IsCallMode(), true)
}

func TestVolumeRequiresActiveCall(t *testing.T) {
	m, ril := newTestManager(t)
	assert.ErrorIs(t, m.SetVolume(0.5), ErrNotActive)
	assert.ErrorIs(t, m.SetPath(audiodef.OutSpeaker), ErrNotCallMode)

	assert.NilErr(t, m.SetCallMode(true))
	assert.NilErr(t, m.SetPath(audiodef.OutSpeaker))
	assert.NilErr(t, m.SetCallActive(true))
	ril.take()

	assert.NilErr(t, m.SetVolume(0.8))
	assert.DeepEqual(t, ril.take(), []string{"volume speaker 4"})
	assert.DeepEqual(t, m.VolumeIndex(1), DefaultVolumeSteps)
}

func TestMicMuteOutsideCall(t *testing.T) {
	m, ril := newTestManager(t)
	assert.NilErr(t, m.SetMicMute(true))
	assert.DeepEqual(t, len(ril.take()), 0)

	// A running loopback allows muting outside call mode.
	assert.NilErr(t, m.SetLoopback(audiodef.LoopbackPacket,
		audiodef.OutEarpiece|audiodef.OutSpeaker, audiodef.InBuiltinMic))
	assert.NilErr(t, m.SetMicMute(true))
	assert.DeepEqual(t, ril.take(), []string{
		"loopback packet earpiece builtin_mic",
		"txmute true",
	})
}

// TestBTWidebandRefreshesPath verifies toggling wideband during an active
// bluetooth call selects the new modem path.
func TestBTWidebandRefreshesPath(t *testing.T) {
	m, ril := newTestManager(t)
	assert.NilErr(t, m.SetCallMode(true))
	assert.NilErr(t, m.SetCallActive(true))
	ril.take()

	p := strparms.Parse("bt_wbs=on;other=1")
	assert.NilErr(t, m.SetParameters(p, audiodef.OutBTSCOHeadset))
	assert.DeepEqual(t, ril.take(), []string{"sco true true", "path bluetooth-wb"})
	assert.DeepEqual(t, p.String(), "other=1")
	assert.BoolIs(t, m.State().BTWideband, true)

	// Not on bluetooth: no path refresh.
	assert.NilErr(t, m.SetParameters(strparms.Parse("bt_wbs=off"), audiodef.OutSpeaker))
	assert.DeepEqual(t, ril.take(), []string{"sco true false"})
}

func TestCallParameters(t *testing.T) {
	m, _ := newTestManager(t)
	p := strparms.Parse("volte_status=video;tty_mode=tty_hco;HACSetting=ON;" +
		"wificalling=on;vowifi_band=swb;voice_band=wb;realcall=on;csvtcall=off")
	assert.NilErr(t, m.SetParameters(p, audiodef.DevicesNone))
	assert.DeepEqual(t, p.Len(), 0)

	st := m.State()
	assert.DeepEqual(t, st.VoLTE, audiodef.VoLTEVideo)
	assert.DeepEqual(t, st.TTY, audiodef.TTYHCO)
	assert.BoolIs(t, st.HAC, true)
	assert.BoolIs(t, st.WiFiCalling, true)
	assert.DeepEqual(t, st.VoWiFiBand, audiodef.BandSWB)
	assert.DeepEqual(t, st.Band, audiodef.BandWB)
	assert.BoolIs(t, st.RealCall, true)
	assert.BoolIs(t, st.CSVTCall, false)
}

func TestPathFor(t *testing.T) {
	tests := []struct {
		name    string
		devices audiodef.Devices
		st      audiodef.CallState
		want    Path
	}{{
		name:    "handset",
		devices: audiodef.OutEarpiece,
		want:    PathHandset,
	}, {
		name:    "handset hac volte",
		devices: audiodef.OutEarpiece,
		st:      audiodef.CallState{HAC: true, VoLTE: audiodef.VoLTEVoice},
		want:    PathVoLTEHandsetHAC,
	}, {
		name:    "bt nrec wb",
		devices: audiodef.OutBTSCO,
		st:      audiodef.CallState{BTNREC: true, BTWideband: true},
		want:    PathBluetoothWB,
	}, {
		name:    "bt no nrec nb",
		devices: audiodef.OutBTSCOCarkit,
		want:    PathBluetoothNoEC,
	}, {
		name:    "unknown falls back to handset",
		devices: audiodef.OutAuxDigital,
		st:      audiodef.CallState{VoLTE: audiodef.VoLTEVoice},
		want:    PathVoLTEHandset,
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.DeepEqual(t, PathFor(tc.devices, &tc.st), tc.want)
		})
	}
}
