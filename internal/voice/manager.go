package voice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/decred/slog"
)

var (
	errNotOpen = errors.New("RIL not open")

	// ErrNotActive is returned when an operation requires an active call.
	ErrNotActive = errors.New("voice call not active")

	// ErrNotCallMode is returned when an operation requires call mode.
	ErrNotCallMode = errors.New("not in call mode")
)

// DefaultVolumeSteps is the number of modem volume steps used when no
// explicit value is configured.
const DefaultVolumeSteps = 5

type callStatus int

const (
	statusInvalid callStatus = iota
	statusConnected
	statusInCallMode
	statusActive
)

func (s callStatus) String() string {
	switch s {
	case statusConnected:
		return "connected"
	case statusInCallMode:
		return "incallmode"
	case statusActive:
		return "active"
	default:
		return "invalid"
	}
}

// Config holds the settings of a Manager.
type Config struct {
	RIL         RIL
	Log         slog.Logger
	VolumeSteps int
}

// Manager tracks the state of a modem voice call and forwards the audio
// related requests to the RIL.
type Manager struct {
	ril   RIL
	log   slog.Logger
	steps int

	mtx       sync.Mutex
	status    callStatus
	outDevice audiodef.Devices
	loopback  audiodef.LoopbackMode
	st        audiodef.CallState
}

// New creates a new voice manager. Failing to connect to the RIL is not an
// error: the connection is retried when the call mode is entered.
func New(cfg Config) *Manager {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	steps := cfg.VolumeSteps
	if steps <= 0 {
		steps = DefaultVolumeSteps
	}
	m := &Manager{
		ril:   cfg.RIL,
		log:   log,
		steps: steps,
		st: audiodef.CallState{
			BTNREC:     true,
			VoWiFiBand: audiodef.BandWB,
		},
	}
	if err := m.ril.Open(); err != nil {
		log.Warnf("Unable to connect to RIL: %v", err)
		m.status = statusInvalid
	} else {
		m.status = statusConnected
	}
	return m
}

// Close releases the RIL connection.
func (m *Manager) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.status = statusInvalid
	return m.ril.Close()
}

// State returns a snapshot of the call state.
func (m *Manager) State() audiodef.CallState {
	m.mtx.Lock()
	st := m.st
	st.CallMode = m.status >= statusInCallMode
	st.CallActive = m.status == statusActive
	m.mtx.Unlock()
	return st
}

// IsCallMode returns true when the runtime put the device in the IN_CALL
// mode.
func (m *Manager) IsCallMode() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.status >= statusInCallMode
}

// IsCallActive returns true when the voice call PCM is open.
func (m *Manager) IsCallActive() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.status == statusActive
}

// SetCallMode enters or leaves the call mode.
func (m *Manager) SetCallMode(on bool) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var err error
	if m.status == statusInvalid && on {
		if err = m.ril.Open(); err != nil {
			m.log.Errorf("Unable to reconnect to RIL: %v", err)
		} else {
			m.status = statusConnected
		}
	}

	old := m.status
	switch {
	case m.status == statusConnected && on:
		m.status = statusInCallMode
	case m.status == statusInCallMode && !on:
		m.status = statusConnected
	default:
		m.log.Debugf("Call mode %v ignored in status %s", on, m.status)
		return err
	}
	m.log.Debugf("Call status %s -> %s", old, m.status)
	return nil
}

// SetCallActive marks the voice call PCM as open or closed.
func (m *Manager) SetCallActive(on bool) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	switch {
	case m.status == statusInCallMode && on:
		m.status = statusActive
		m.log.Debugf("Call status %s -> %s", statusInCallMode, m.status)
		return m.ril.SetSoundClock(true)
	case m.status == statusActive && !on:
		m.status = statusInCallMode
		m.log.Debugf("Call status %s -> %s", statusActive, m.status)
		return m.ril.SetSoundClock(false)
	default:
		m.log.Debugf("Call active %v ignored in status %s", on, m.status)
		return nil
	}
}

// SetAudioMode notifies the modem of an audio mode change.
func (m *Manager) SetAudioMode(mode audiodef.AudioMode, on bool) error {
	return m.ril.SetAudioMode(mode, on)
}

// SetPath selects the modem path for the given primary output devices. It
// is only valid in call mode.
func (m *Manager) SetPath(devices audiodef.Devices) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.setPath(devices)
}

func (m *Manager) setPath(devices audiodef.Devices) error {
	if m.status < statusInCallMode {
		return ErrNotCallMode
	}
	m.outDevice = devices
	path := PathFor(devices, &m.st)
	m.log.Debugf("Voice path %s (%s)", path, devices)
	return m.ril.SetVoicePath(path)
}

// VolumeIndex converts a [0,1] volume into a modem volume step.
func (m *Manager) VolumeIndex(volume float32) int {
	return int(volume * float32(m.steps))
}

// SetVolume sets the voice call volume. It is only valid while the call is
// active.
func (m *Manager) SetVolume(volume float32) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.status != statusActive {
		return ErrNotActive
	}
	return m.ril.SetVoiceVolume(m.outDevice, m.VolumeIndex(volume), volume)
}

// SetMicMute mutes the uplink. Ignored outside of call mode unless a factory
// loopback is running.
func (m *Manager) SetMicMute(mute bool) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.status < statusInCallMode && m.loopback == audiodef.LoopbackOff {
		return nil
	}
	return m.ril.SetTxMute(mute)
}

// SetRxMute mutes the downlink.
func (m *Manager) SetRxMute(mute bool) error {
	m.mtx.Lock()
	m.st.MuteVoice = mute
	m.mtx.Unlock()
	return m.ril.SetRxMute(mute)
}

// SetUSBMic tells the modem whether the uplink comes from a USB headset.
func (m *Manager) SetUSBMic(on bool) error {
	return m.ril.SetUSBMic(on)
}

// SetCallForwarding toggles call forwarding.
func (m *Manager) SetCallForwarding(on bool) error {
	m.mtx.Lock()
	m.st.CallForwarding = on
	m.mtx.Unlock()
	return m.ril.SetCallForwarding(on)
}

// SetTTYMode sets the teletype mode.
func (m *Manager) SetTTYMode(mode audiodef.TTYMode) error {
	m.mtx.Lock()
	m.st.TTY = mode
	m.mtx.Unlock()
	return m.ril.SetTTYMode(mode)
}

// SetHACMode toggles the hearing aid compatibility mode.
func (m *Manager) SetHACMode(on bool) error {
	m.mtx.Lock()
	m.st.HAC = on
	m.mtx.Unlock()
	return m.ril.SetHACMode(on)
}

// SetLoopback configures a factory loopback on the modem. An rx request of
// earpiece plus speaker selects the earpiece.
func (m *Manager) SetLoopback(mode audiodef.LoopbackMode, rx, tx audiodef.Devices) error {
	m.mtx.Lock()
	m.loopback = mode
	m.mtx.Unlock()
	if rx == audiodef.OutEarpiece|audiodef.OutSpeaker {
		rx = audiodef.OutEarpiece
	}
	return m.ril.SetLoopback(mode, rx, tx)
}

func (m *Manager) String() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return fmt.Sprintf("status=%s out=%s steps=%d", m.status, m.outDevice, m.steps)
}
