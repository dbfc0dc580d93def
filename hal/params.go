package hal

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/factory"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/companyzero/audiohal/internal/voice"
)

// Device parameter keys.
const (
	KeyConnect        = "connect"
	KeyDisconnect     = "disconnect"
	KeyScreenState    = "screen_state"
	KeyFMMode         = "fm_mode"
	KeyFMRadioVolume  = "fm_radio_volume"
	KeySeamlessVoice  = "seamless_voice"
	KeyCallForwarding = "call_forwarding"
	KeyExtraVolume    = voice.KeyExtraVolume
)

func onOff(v string) (bool, bool) {
	switch v {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}

func isCallMode(m audiodef.AudioMode) bool {
	return m == audiodef.ModeInCall || m == audiodef.ModeInCommunication
}

// SetMode changes the audio mode. Entering or leaving a call moves the
// primary output and the capture streams to the new path.
func (d *Device) SetMode(mode audiodef.AudioMode) error {
	if mode < audiodef.ModeNormal || mode > audiodef.ModeInCommunication {
		return fmt.Errorf("%w: mode %d", ErrInvalid, int(mode))
	}

	d.mtx.Lock()
	if d.closed {
		d.mtx.Unlock()
		return ErrClosed
	}
	if mode == d.mode {
		d.mtx.Unlock()
		return nil
	}

	// A VoIP request during a real modem call keeps the modem call path.
	if mode == audiodef.ModeInCommunication && d.mode == audiodef.ModeInCall &&
		d.voice != nil && d.voice.State().RealCall {
		d.keepCallMode = true
		d.mtx.Unlock()
		d.log.Infof("Keeping mode %s during a real call (requested %s)", audiodef.ModeInCall, mode)
		return nil
	}
	d.keepCallMode = false

	prev := d.mode
	d.prevMode, d.mode = prev, mode
	d.log.Infof("Mode %s -> %s", prev, mode)
	d.setControl(ControlAudioMode, int(mode))

	if d.voice != nil {
		if err := d.voice.SetAudioMode(mode, true); err != nil {
			d.log.Warnf("Unable to notify mode %s: %v", mode, err)
		}
		switch {
		case mode == audiodef.ModeInCall:
			if err := d.voice.SetCallMode(true); err != nil {
				d.log.Warnf("Unable to enter call mode: %v", err)
			}
		case prev == audiodef.ModeInCall:
			if d.voice.IsCallActive() {
				if err := d.voice.SetCallActive(false); err != nil {
					d.log.Warnf("Unable to mark call inactive: %v", err)
				}
				if err := d.provider.StopVoiceCall(); err != nil {
					d.metrics.transportError()
					d.log.Errorf("Unable to stop voice call: %v", err)
				}
			}
			if err := d.voice.SetCallMode(false); err != nil {
				d.log.Warnf("Unable to leave call mode: %v", err)
			}
		}
	}

	primary := d.primary
	d.mtx.Unlock()

	if primary != nil && (isCallMode(prev) || isCallMode(mode)) {
		devs := primary.Devices()
		d.updateCallStream(primary, devs, devs)
	}
	return nil
}

// SetVoiceVolume sets the call volume, in the [0,1] range.
func (d *Device) SetVoiceVolume(vol float32) error {
	if vol < 0 || vol > 1 {
		return fmt.Errorf("%w: voice volume %.2f", ErrInvalid, vol)
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	p := d.primary
	switch {
	case d.voice != nil && d.voice.IsCallMode():
		if err := d.voice.SetVolume(vol); err != nil && !errors.Is(err, voice.ErrNotActive) {
			d.log.Warnf("Unable to set voice volume: %v", err)
		}
	case vol == 0 && p != nil && d.activePlaybackCount(p) > 0 &&
		p.force == routeForce && p.rollback != audiodef.DevicesNone:
		// A forced dual device route (alarm) ends by muting the call
		// volume.
		d.log.Debugf("Rolling back %s to %s", p, p.rollback)
		p.setDevices(p.rollback)
		p.force = routeNonForce
		d.routeOut(p, true, routeNonForce)
	case d.isAPCall():
		idx := 0
		if d.voice != nil {
			idx = d.voice.VolumeIndex(vol)
		}
		d.setControl(ControlCommVolume, idx)
	}
	d.voiceVolume = vol
	return nil
}

// SetMicMute mutes every capture stream except call recordings of a modem
// call, and the uplink of a call.
func (d *Device) SetMicMute(mute bool) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.micMute = mute
	if d.voice != nil {
		if err := d.voice.SetMicMute(mute); err != nil {
			return fmt.Errorf("unable to mute call uplink: %w", err)
		}
	}
	return nil
}

// connect records a device connection or disconnection. Must be called
// with the device lock held.
func (d *Device) connect(v string, connected bool) {
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		d.log.Warnf("Invalid device %q: %v", v, err)
		return
	}
	devs := audiodef.Devices(n)
	if devs.IsInput() {
		d.prevCapture = d.actualCapture
		if connected {
			d.actualCapture = devs
		} else {
			d.actualCapture = audiodef.DevicesNone
		}
		if devs == audiodef.InUSBDevice && d.voice != nil {
			if err := d.voice.SetUSBMic(connected); err != nil {
				d.log.Warnf("Unable to set USB mic: %v", err)
			}
		}
	} else {
		d.prevPlayback = d.actualPlayback
		if connected {
			d.actualPlayback = devs
		} else {
			d.actualPlayback = audiodef.DevicesNone
		}
	}
	d.log.Debugf("Device %s connected %v", devs, connected)
}

// fmRadioVolume starts or stops the FM radio output. Must be called with
// the device lock held.
func (d *Device) fmRadioVolume(on bool) {
	p := d.primary
	if on {
		if p != nil {
			d.routeOut(p, true, routeNonForce)
		}
		if err := d.provider.StartFMRadio(); err != nil {
			d.metrics.transportError()
			d.log.Errorf("Unable to start FM radio: %v", err)
		}
		return
	}

	if err := d.provider.StopFMRadio(); err != nil {
		d.metrics.transportError()
		d.log.Errorf("Unable to stop FM radio: %v", err)
	}
	if d.routes[audiodef.Playback].usage.IsAPCall() || d.voiceCallActive() {
		return
	}
	if p != nil && p.State() == audiodef.StateStandby && d.routes[audiodef.Playback].routed {
		d.routeOut(p, false, routeNonForce)
	}
}

// SetParameters applies a "k=v;..." parameter string to the device.
func (d *Device) SetParameters(kv string) error {
	p := strparms.Parse(kv)
	d.log.Debugf("SetParameters %s", p)
	if err := d.provider.SetParameters(p); err != nil {
		return fmt.Errorf("unable to set transport parameters: %w", err)
	}

	d.mtx.Lock()
	if d.closed {
		d.mtx.Unlock()
		return ErrClosed
	}

	if v, ok := p.Get(KeyConnect); ok {
		d.connect(v, true)
		p.Del(KeyConnect)
	}
	if v, ok := p.Get(KeyDisconnect); ok {
		d.connect(v, false)
		p.Del(KeyDisconnect)
	}
	if v, ok := p.Get(KeyScreenState); ok {
		if on, ok := onOff(v); ok {
			d.screenOn = on
		}
		p.Del(KeyScreenState)
	}
	if v, ok := p.Get(KeyFMMode); ok {
		if v != "on" {
			d.fm = fmStateOff
		}
		p.Del(KeyFMMode)
	}
	if v, ok := p.Get(KeyFMRadioVolume); ok {
		if on, ok := onOff(v); ok {
			d.fmRadioVolume(on)
		}
		p.Del(KeyFMRadioVolume)
	}
	if v, ok := p.Get(KeySeamlessVoice); ok {
		if on, ok := onOff(v); ok {
			d.seamless = on
		}
		p.Del(KeySeamlessVoice)
	}

	var err error
	var forwarding bool
	primary := d.primary
	if d.voice != nil {
		var primaryDevs audiodef.Devices
		if primary != nil {
			primaryDevs = primary.Devices()
		}
		if v, ok := p.Get(KeyCallForwarding); ok {
			if on, ok := onOff(v); ok && on != d.voice.State().CallForwarding {
				if ferr := d.voice.SetCallForwarding(on); ferr != nil {
					d.log.Warnf("Unable to set call forwarding: %v", ferr)
				}
				forwarding = true
			}
			p.Del(KeyCallForwarding)
		}
		if verr := d.voice.SetParameters(p, primaryDevs); verr != nil {
			err = fmt.Errorf("unable to set voice parameters: %w", verr)
		}
	}

	for _, a := range d.factory.SetParameters(p) {
		d.factoryAction(a)
	}
	d.mtx.Unlock()

	// Call forwarding swaps the call device for the forwarding path.
	if forwarding && primary != nil {
		devs := primary.Devices()
		d.updateCallStream(primary, devs, devs)
	}
	return err
}

// factoryAction executes a side effect of a factory parameter. Must be
// called with the device lock held.
func (d *Device) factoryAction(a factory.Action) {
	st := d.factory.State()
	p := d.primary
	d.log.Infof("Factory %s (%s)", a.Kind, a.Value)

	packet := a.Loopback == audiodef.LoopbackPacket || a.Loopback == audiodef.LoopbackPacketNoDelay
	switch a.Kind {
	case factory.ActionLoopbackStart, factory.ActionLoopbackPath:
		if !st.IsLoopback() {
			return
		}
		if d.voice != nil {
			if err := d.voice.SetLoopback(st.Loopback, st.OutDevices, st.InDevices); err != nil {
				d.log.Warnf("Unable to set loopback: %v", err)
			}
		}
		if a.Kind == factory.ActionLoopbackStart && packet {
			if err := d.provider.StartVoiceCall(); err != nil {
				d.metrics.transportError()
				d.log.Errorf("Unable to start loopback PCM: %v", err)
			}
		}
		if p != nil {
			d.routeOut(p, true, routeCallDrive)
		}

	case factory.ActionLoopbackStop:
		if d.voice != nil {
			if err := d.voice.SetLoopback(audiodef.LoopbackOff, 0, 0); err != nil {
				d.log.Warnf("Unable to stop loopback: %v", err)
			}
		}
		if packet {
			if err := d.provider.StopVoiceCall(); err != nil {
				d.metrics.transportError()
				d.log.Errorf("Unable to stop loopback PCM: %v", err)
			}
		}
		if p != nil && d.routes[audiodef.Playback].routed {
			d.routeOut(p, false, routeCallDrive)
		}

	case factory.ActionForceRoute:
		if p == nil {
			return
		}
		switch {
		case st.Active() || p.State() > audiodef.StateStandby:
			d.routeOut(p, true, routeNonForce)
		case d.routes[audiodef.Playback].routed:
			d.routeOut(p, false, routeNonForce)
		}

	case factory.ActionRMS:
		switch {
		case st.IsRMS() && d.activeInput != nil:
			d.routeIn(d.activeInput, true, routeNonForce)
		case !st.IsRMS() && d.routes[audiodef.Capture].routed && d.activeCaptureCount() == 0:
			d.releaseRoute(audiodef.Capture, keepAliveNone)
		}
	}
}

// GetParameters returns the values of the requested device keys.
func (d *Device) GetParameters(keys string) string {
	query := strparms.Parse(keys)
	reply := strparms.New()
	d.mtx.Lock()
	defer d.mtx.Unlock()

	var st audiodef.CallState
	if d.voice != nil {
		st = d.voice.State()
	}
	if query.Has(KeyCallForwarding) {
		reply.Set(KeyCallForwarding, strconv.FormatBool(st.CallForwarding))
	}
	if query.Has(KeyExtraVolume) {
		reply.Set(KeyExtraVolume, strconv.FormatBool(st.ExtraVolume))
	}
	if query.Has(KeyScreenState) {
		if d.screenOn {
			reply.Set(KeyScreenState, "on")
		} else {
			reply.Set(KeyScreenState, "off")
		}
	}
	return reply.String()
}
