package hal

import (
	"fmt"
	"io"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/factory"
)

// Route is the active route of one direction.
type Route struct {
	Routed   bool                   `json:"routed"`
	Usage    audiodef.Usage         `json:"usage"`
	Device   audiodef.LogicalDevice `json:"device"`
	Modifier audiodef.Modifier      `json:"modifier"`
}

func (r Route) String() string {
	return routeState{
		routed:   r.Routed,
		usage:    r.Usage,
		device:   r.Device,
		modifier: r.Modifier,
	}.String()
}

func (s routeState) export() Route {
	return Route{
		Routed:   s.routed,
		Usage:    s.usage,
		Device:   s.device,
		Modifier: s.modifier,
	}
}

// StreamInfo describes an open stream.
type StreamInfo struct {
	ID      uint64              `json:"id"`
	Kind    audiodef.StreamKind `json:"kind"`
	State   audiodef.State      `json:"state"`
	Usage   audiodef.Usage      `json:"usage"`
	Devices audiodef.Devices    `json:"devices"`
}

func streamInfo(s *stream) StreamInfo {
	return StreamInfo{
		ID:      s.ID(),
		Kind:    s.Kind(),
		State:   s.State(),
		Usage:   s.Usage(),
		Devices: s.Devices(),
	}
}

// Snapshot is a consistent view of the device state.
type Snapshot struct {
	ID             string             `json:"id"`
	Mode           audiodef.AudioMode `json:"mode"`
	PrevMode       audiodef.AudioMode `json:"prev_mode"`
	HasVoice       bool               `json:"has_voice"`
	Call           audiodef.CallState `json:"call"`
	Playback       Route              `json:"playback"`
	Capture        Route              `json:"capture"`
	Factory        factory.State      `json:"factory"`
	FM             string             `json:"fm"`
	MicMute        bool               `json:"mic_mute"`
	ScreenOn       bool               `json:"screen_on"`
	VoIPSE         bool               `json:"voipse"`
	InCallMusic    bool               `json:"incall_music"`
	ActualPlayback audiodef.Devices   `json:"actual_playback"`
	PrevPlayback   audiodef.Devices   `json:"prev_playback"`
	ActualCapture  audiodef.Devices   `json:"actual_capture"`
	VoiceVolume    float32            `json:"voice_volume"`
	Outputs        []StreamInfo       `json:"outputs"`
	Inputs         []StreamInfo       `json:"inputs"`
}

// snapshot must be called with the device lock held.
func (d *Device) snapshot() Snapshot {
	s := Snapshot{
		ID:             d.id,
		Mode:           d.mode,
		PrevMode:       d.prevMode,
		HasVoice:       d.voice != nil,
		Playback:       d.routes[audiodef.Playback].export(),
		Capture:        d.routes[audiodef.Capture].export(),
		Factory:        d.factory.State(),
		FM:             d.fm.String(),
		MicMute:        d.micMute,
		ScreenOn:       d.screenOn,
		VoIPSE:         d.voipseOn,
		InCallMusic:    d.incallMusicOn,
		ActualPlayback: d.actualPlayback,
		PrevPlayback:   d.prevPlayback,
		ActualCapture:  d.actualCapture,
		VoiceVolume:    d.voiceVolume,
		Outputs:        make([]StreamInfo, 0, d.outs.Len()),
		Inputs:         make([]StreamInfo, 0, d.ins.Len()),
	}
	if d.voice != nil {
		s.Call = d.voice.State()
	}
	for e := d.outs.Front(); e != nil; e = e.Next() {
		s.Outputs = append(s.Outputs, streamInfo(&e.Value.stream))
	}
	for e := d.ins.Front(); e != nil; e = e.Next() {
		s.Inputs = append(s.Inputs, streamInfo(&e.Value.stream))
	}
	return s
}

// Snapshot returns the current device state.
func (d *Device) Snapshot() Snapshot {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.snapshot()
}

// Dump writes a human readable description of the device to w.
func (d *Device) Dump(w io.Writer) error {
	d.mtx.Lock()
	s := d.snapshot()
	primary, input := d.primary, d.activeInput
	d.mtx.Unlock()

	ew := &errWriter{w: w}
	ew.printf("device %s\n", s.ID)
	ew.printf("  mode: %s (previous %s)\n", s.Mode, s.PrevMode)
	if s.HasVoice {
		c := s.Call
		ew.printf("  call: mode %v active %v real %v forwarding %v\n",
			c.CallMode, c.CallActive, c.RealCall, c.CallForwarding)
		ew.printf("  communications: tty %s hac %v volte %s band %s wifi %v\n",
			c.TTY, c.HAC, c.VoLTE, c.Band, c.WiFiCalling)
		ew.printf("  voice volume: %.2f mic mute %v\n", s.VoiceVolume, s.MicMute)
	} else {
		ew.printf("  call: no modem\n")
	}
	ew.printf("  connectivity: playback %s (previous %s) capture %s\n",
		s.ActualPlayback, s.PrevPlayback, s.ActualCapture)
	ew.printf("  routing: playback %s capture %s\n", s.Playback, s.Capture)
	ew.printf("  voipse %v in-call music %v screen on %v\n",
		s.VoIPSE, s.InCallMusic, s.ScreenOn)
	ew.printf("  factory: %s loopback %s out %s in %s\n",
		s.Factory.Mode, s.Factory.Loopback, s.Factory.OutDevices, s.Factory.InDevices)
	ew.printf("  fm: %s\n", s.FM)
	ew.printf("  streams: %d outputs %d inputs\n", len(s.Outputs), len(s.Inputs))
	if ew.err != nil {
		return ew.err
	}

	if primary != nil {
		ew.printf("primary output:\n")
		primary.Dump(w)
	}
	if input != nil {
		ew.printf("active input:\n")
		input.Dump(w)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
