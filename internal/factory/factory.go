// Package factory tracks the factory test modes of the audio device:
// loopback tests, RMS measurements and forced routes.
package factory

import (
	"sync"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/decred/slog"
)

// Parameter keys understood by SetParameters.
const (
	KeyTestType     = "factory_test_type"
	KeyTestLoopback = "factory_test_loopback"
	KeyTestPath     = "factory_test_path"
	KeyTestRoute    = "factory_test_route"
	KeyTestRMS      = "factory_test_rms"
)

// Mode is the active factory mode.
type Mode int

const (
	ModeNone Mode = iota
	ModeLoopback
	ModeRMS
	ModeForceRoute
)

func (m Mode) String() string {
	switch m {
	case ModeLoopback:
		return "loopback"
	case ModeRMS:
		return "rms"
	case ModeForceRoute:
		return "force_route"
	default:
		return "none"
	}
}

// State is a snapshot of the factory manager.
type State struct {
	Mode       Mode                  `json:"mode"`
	Loopback   audiodef.LoopbackMode `json:"loopback"`
	OutDevices audiodef.Devices      `json:"out_devices"`
	InDevices  audiodef.Devices      `json:"in_devices"`
	RMSEnabled bool                  `json:"rms_enabled"`
}

// Active returns true when any factory mode is set.
func (s State) Active() bool {
	return s.Mode != ModeNone
}

// IsLoopback returns true in loopback mode.
func (s State) IsLoopback() bool {
	return s.Mode == ModeLoopback
}

// IsRMS returns true in RMS mode.
func (s State) IsRMS() bool {
	return s.Mode == ModeRMS
}

// IsBTRealtimeLoopback returns true for a realtime loopback over a
// bluetooth headset. That test is carried by the bluetooth stack and needs
// no capture route.
func (s State) IsBTRealtimeLoopback() bool {
	return s.Loopback == audiodef.LoopbackRealtime &&
		s.OutDevices == audiodef.OutBTSCOHeadset &&
		s.InDevices == audiodef.InBTSCOHeadset
}

// ActionKind identifies a side effect that the device must carry out after
// a factory parameter was accepted.
type ActionKind int

const (
	// ActionLoopbackStart is requested when a loopback test is enabled.
	ActionLoopbackStart ActionKind = iota + 1

	// ActionLoopbackStop is requested when a loopback test is disabled.
	ActionLoopbackStop

	// ActionLoopbackPath is requested when the loopback devices changed.
	ActionLoopbackPath

	// ActionForceRoute is requested when a forced playback route changed.
	ActionForceRoute

	// ActionRMS is requested when the RMS test input changed.
	ActionRMS
)

func (k ActionKind) String() string {
	switch k {
	case ActionLoopbackStart:
		return "loopback-start"
	case ActionLoopbackStop:
		return "loopback-stop"
	case ActionLoopbackPath:
		return "loopback-path"
	case ActionForceRoute:
		return "force-route"
	case ActionRMS:
		return "rms"
	default:
		return "unknown"
	}
}

// Action is a side effect requested by SetParameters.
type Action struct {
	Kind ActionKind

	// Loopback is the loopback mode in effect when the action was
	// generated, before any reset done by the action itself.
	Loopback audiodef.LoopbackMode

	// Value is the raw parameter value.
	Value string
}

// Manager holds the factory test state.
type Manager struct {
	log slog.Logger

	mtx sync.Mutex
	st  State
}

// New returns a manager with every test disabled.
func New(log slog.Logger) *Manager {
	if log == nil {
		log = slog.Disabled
	}
	return &Manager{log: log}
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.st
}

func (m *Manager) setLoopbackPath(v string) {
	out, in := audiodef.OutEarpiece, audiodef.InBuiltinMic
	switch v {
	case "ear_ear":
		out, in = audiodef.OutWiredHeadset, audiodef.InWiredHeadset
	case "mic1_spk":
		out, in = audiodef.OutSpeaker, audiodef.InBuiltinMic
	case "mic2_spk":
		out, in = audiodef.OutSpeaker, audiodef.InBackMic
	case "mic1_rcv":
		out, in = audiodef.OutEarpiece, audiodef.InBuiltinMic
	case "mic2_rcv":
		out, in = audiodef.OutEarpiece, audiodef.InBackMic
	case "mic1_ear":
		out, in = audiodef.OutWiredHeadset, audiodef.InBuiltinMic
	case "mic2_ear":
		out, in = audiodef.OutWiredHeadset, audiodef.InBackMic
	case "bt_bt":
		out, in = audiodef.OutBTSCOHeadset, audiodef.InBTSCOHeadset
	}
	m.st.OutDevices, m.st.InDevices = out, in
}

func (m *Manager) setForceRoute(v string) {
	if !m.st.RMSEnabled {
		m.st.Mode = ModeForceRoute
	}
	switch v {
	case "spk":
		m.st.OutDevices = audiodef.OutSpeaker
	case "rcv":
		m.st.OutDevices = audiodef.OutEarpiece
	case "ear":
		m.st.OutDevices = audiodef.OutWiredHeadset
	case "off":
		m.st.Mode = ModeNone
		m.st.OutDevices = audiodef.DevicesNone
	}
}

func (m *Manager) setRMS(v string) {
	switch v {
	case "on":
		m.st.Mode = ModeRMS
		m.st.RMSEnabled = true
	case "main", "spk_mic1":
		m.st.InDevices = audiodef.InBuiltinMic
	case "sub":
		m.st.InDevices = audiodef.InBackMic
	case "off":
		m.st.Mode = ModeNone
		m.st.InDevices = audiodef.DevicesNone
		m.st.RMSEnabled = false
	}
}

// SetParameters consumes the factory keys of p and returns the side effects
// the device must execute, in order.
func (m *Manager) SetParameters(p *strparms.Params) []Action {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var actions []Action
	add := func(kind ActionKind, lb audiodef.LoopbackMode, v string) {
		actions = append(actions, Action{Kind: kind, Loopback: lb, Value: v})
		m.log.Debugf("Factory %s (%s) loopback %s", kind, v, lb)
	}

	if v, ok := p.Get(KeyTestType); ok {
		switch v {
		case "codec":
			m.st.Loopback = audiodef.LoopbackCodec
		case "realtime":
			m.st.Loopback = audiodef.LoopbackRealtime
		case "pcm":
			m.st.Loopback = audiodef.LoopbackPCM
		case "packet":
			m.st.Loopback = audiodef.LoopbackPacket
		case "packet_nodelay":
			m.st.Loopback = audiodef.LoopbackPacketNoDelay
		default:
			m.log.Warnf("Unknown %s %q", KeyTestType, v)
		}
		p.Del(KeyTestType)
	}

	if v, ok := p.Get(KeyTestLoopback); ok {
		switch v {
		case "on":
			m.st.Mode = ModeLoopback
			add(ActionLoopbackStart, m.st.Loopback, v)
		case "off":
			lb := m.st.Loopback
			m.st.Mode = ModeNone
			m.st.OutDevices = audiodef.DevicesNone
			m.st.InDevices = audiodef.DevicesNone
			m.st.Loopback = audiodef.LoopbackOff
			add(ActionLoopbackStop, lb, v)
		}
		p.Del(KeyTestLoopback)
	}

	if v, ok := p.Get(KeyTestPath); ok && v != "" {
		m.setLoopbackPath(v)
		add(ActionLoopbackPath, m.st.Loopback, v)
		p.Del(KeyTestPath)
	}

	if v, ok := p.Get(KeyTestRoute); ok && v != "" {
		m.setForceRoute(v)
		add(ActionForceRoute, m.st.Loopback, v)
		p.Del(KeyTestRoute)
	}

	if v, ok := p.Get(KeyTestRMS); ok {
		m.setRMS(v)
		add(ActionRMS, m.st.Loopback, v)
		p.Del(KeyTestRMS)
	}

	return actions
}
