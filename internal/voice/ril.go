package voice

import (
	"sync"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/decred/slog"
)

// Path is the modem side audio path selected for a voice call.
type Path int

const (
	PathNone Path = iota
	PathHandset
	PathHandsetHAC
	PathSpeakerphone
	PathHeadset
	PathHeadphone
	PathBluetooth
	PathBluetoothWB
	PathBluetoothNoEC
	PathBluetoothWBNoEC
	PathLineOut

	PathVoLTEHandset
	PathVoLTEHandsetHAC
	PathVoLTESpeakerphone
	PathVoLTEHeadset
	PathVoLTEHeadphone
	PathVoLTEBluetooth
	PathVoLTEBluetoothWB
	PathVoLTEBluetoothNoEC
	PathVoLTEBluetoothWBNoEC
	PathVoLTELineOut
)

var pathNames = map[Path]string{
	PathNone:                 "none",
	PathHandset:              "handset",
	PathHandsetHAC:           "handset-hac",
	PathSpeakerphone:         "speakerphone",
	PathHeadset:              "headset",
	PathHeadphone:            "headphone",
	PathBluetooth:            "bluetooth",
	PathBluetoothWB:          "bluetooth-wb",
	PathBluetoothNoEC:        "bluetooth-ns-ec-off",
	PathBluetoothWBNoEC:      "bluetooth-wb-ns-ec-off",
	PathLineOut:              "lineout",
	PathVoLTEHandset:         "volte-handset",
	PathVoLTEHandsetHAC:      "volte-handset-hac",
	PathVoLTESpeakerphone:    "volte-speakerphone",
	PathVoLTEHeadset:         "volte-headset",
	PathVoLTEHeadphone:       "volte-headphone",
	PathVoLTEBluetooth:       "volte-bluetooth",
	PathVoLTEBluetoothWB:     "volte-bluetooth-wb",
	PathVoLTEBluetoothNoEC:   "volte-bluetooth-ns-ec-off",
	PathVoLTEBluetoothWBNoEC: "volte-bluetooth-wb-ns-ec-off",
	PathVoLTELineOut:         "volte-lineout",
}

func (p Path) String() string {
	if n, ok := pathNames[p]; ok {
		return n
	}
	return "unknown"
}

// PathFor maps the primary output devices of a call into the modem path,
// taking VoLTE, HAC and the bluetooth echo cancel and bandwidth settings
// into account.
func PathFor(devices audiodef.Devices, st *audiodef.CallState) Path {
	volte := st.VoLTE != audiodef.VoLTEOff
	pick := func(cs, lte Path) Path {
		if volte {
			return lte
		}
		return cs
	}

	switch devices {
	case audiodef.OutEarpiece:
		if st.HAC {
			return pick(PathHandsetHAC, PathVoLTEHandsetHAC)
		}
		return pick(PathHandset, PathVoLTEHandset)
	case audiodef.OutSpeaker:
		return pick(PathSpeakerphone, PathVoLTESpeakerphone)
	case audiodef.OutWiredHeadset:
		return pick(PathHeadset, PathVoLTEHeadset)
	case audiodef.OutWiredHeadphone:
		return pick(PathHeadphone, PathVoLTEHeadphone)
	case audiodef.OutBTSCO, audiodef.OutBTSCOHeadset, audiodef.OutBTSCOCarkit:
		switch {
		case !st.BTNREC && !st.BTWideband:
			return pick(PathBluetoothNoEC, PathVoLTEBluetoothNoEC)
		case !st.BTNREC:
			return pick(PathBluetoothWBNoEC, PathVoLTEBluetoothWBNoEC)
		case st.BTWideband:
			return pick(PathBluetoothWB, PathVoLTEBluetoothWB)
		default:
			return pick(PathBluetooth, PathVoLTEBluetooth)
		}
	case audiodef.OutLine:
		return pick(PathLineOut, PathVoLTELineOut)
	default:
		return pick(PathHandset, PathVoLTEHandset)
	}
}

// RIL is the client of the modem audio interface.
type RIL interface {
	Open() error
	Close() error
	SetSoundClock(on bool) error
	SetAudioMode(mode audiodef.AudioMode, on bool) error
	SetVoicePath(path Path) error
	SetVoiceVolume(devices audiodef.Devices, index int, volume float32) error
	SetTxMute(mute bool) error
	SetRxMute(mute bool) error
	SetUSBMic(on bool) error
	SetCallForwarding(on bool) error
	SetExtraVolume(on bool) error
	SetRealCall(on bool) error
	SetVoLTEState(status audiodef.VoLTEStatus) error
	SetHACMode(on bool) error
	SetTTYMode(mode audiodef.TTYMode) error
	SetScoSolution(nrec, wideband bool) error
	SetLoopback(mode audiodef.LoopbackMode, rx, tx audiodef.Devices) error
}

// LogRIL is a RIL that only records the requests it receives in its log.
// It is used when the daemon runs on hardware without a modem.
type LogRIL struct {
	log slog.Logger

	mtx    sync.Mutex
	opened bool
}

// NewLogRIL returns a RIL that logs every request to log.
func NewLogRIL(log slog.Logger) *LogRIL {
	if log == nil {
		log = slog.Disabled
	}
	return &LogRIL{log: log}
}

func (r *LogRIL) Open() error {
	r.mtx.Lock()
	r.opened = true
	r.mtx.Unlock()
	r.log.Debugf("RIL opened")
	return nil
}

func (r *LogRIL) Close() error {
	r.mtx.Lock()
	wasOpen := r.opened
	r.opened = false
	r.mtx.Unlock()
	if !wasOpen {
		return errNotOpen
	}
	r.log.Debugf("RIL closed")
	return nil
}

func (r *LogRIL) req(format string, args ...interface{}) error {
	r.mtx.Lock()
	opened := r.opened
	r.mtx.Unlock()
	if !opened {
		return errNotOpen
	}
	r.log.Tracef("RIL "+format, args...)
	return nil
}

func (r *LogRIL) SetSoundClock(on bool) error { return r.req("sound clock %v", on) }
func (r *LogRIL) SetAudioMode(mode audiodef.AudioMode, on bool) error {
	return r.req("audio mode %s %v", mode, on)
}
func (r *LogRIL) SetVoicePath(path Path) error { return r.req("voice path %s", path) }
func (r *LogRIL) SetVoiceVolume(devices audiodef.Devices, index int, volume float32) error {
	return r.req("voice volume %s index %d (%.2f)", devices, index, volume)
}
func (r *LogRIL) SetTxMute(mute bool) error { return r.req("tx mute %v", mute) }
func (r *LogRIL) SetRxMute(mute bool) error { return r.req("rx mute %v", mute) }
func (r *LogRIL) SetUSBMic(on bool) error { return r.req("usb mic %v", on) }
func (r *LogRIL) SetCallForwarding(on bool) error { return r.req("call forwarding %v", on) }
func (r *LogRIL) SetExtraVolume(on bool) error { return r.req("extra volume %v", on) }
func (r *LogRIL) SetRealCall(on bool) error { return r.req("real call %v", on) }
func (r *LogRIL) SetHACMode(on bool) error { return r.req("hac %v", on) }
func (r *LogRIL) SetTTYMode(mode audiodef.TTYMode) error { return r.req("tty %s", mode) }
func (r *LogRIL) SetVoLTEState(status audiodef.VoLTEStatus) error {
	return r.req("volte %s", status)
}
func (r *LogRIL) SetScoSolution(nrec, wideband bool) error {
	return r.req("sco solution nrec=%v wb=%v", nrec, wideband)
}
func (r *LogRIL) SetLoopback(mode audiodef.LoopbackMode, rx, tx audiodef.Devices) error {
	return r.req("loopback %s rx=%s tx=%s", mode, rx, tx)
}
