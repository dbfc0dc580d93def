package hal

import (
	"github.com/companyzero/audiohal/audiodef"
)

// callGuard holds the stream locks taken by the call path arbitrator.
// Streams are always locked in list order, playback before capture.
type callGuard struct {
	locked []*stream
}

func (g *callGuard) keep(s *stream) {
	g.locked = append(g.locked, s)
}

func (g *callGuard) unlock() {
	for _, s := range g.locked {
		s.mtx.Unlock()
	}
	g.locked = nil
}

// updateCallStream moves the call path after the devices of a call driving
// output changed from cur to next, or after the call state changed. Streams
// carrying the old path are closed under their readers and writers, so
// their next transfer reopens them on the new path.
//
// Must be called with no stream or device lock held.
func (d *Device) updateCallStream(out *OutStream, cur, next audiodef.Devices) {
	d.mtx.Lock()
	r := d.resolver()
	curOut, newOut := r.deviceID(cur), r.deviceID(next)
	var curIn, newIn audiodef.LogicalDevice
	if r.isCall() {
		curIn = d.routes[audiodef.Capture].device
		newIn = r.inDeviceFromOut(newOut)
	}

	pathChanged := curOut != newOut || (curIn != newIn &&
		(curIn == audiodef.DeviceUSBHeadsetMic || newIn == audiodef.DeviceUSBHeadsetMic))

	activeUsage := d.routes[audiodef.Playback].usage
	callStateChanged := (r.isAPCall() && !activeUsage.IsAPCall()) ||
		(r.isCPCall() && activeUsage.IsAPCall()) ||
		(!r.isCall() && (curOut == audiodef.DeviceEarpiece || curOut == audiodef.DeviceSpeaker))
	callStateBT := d.prevMode == audiodef.ModeRingtone && !activeUsage.IsCPCall() &&
		r.isCPCall() && newOut == audiodef.DeviceBTHeadset
	if callStateBT {
		callStateChanged = true
	}

	primary := d.primary
	var outs []*OutStream
	for e := d.outs.Front(); e != nil; e = e.Next() {
		outs = append(outs, e.Value)
	}
	var ins []*InStream
	for e := d.ins.Front(); e != nil; e = e.Next() {
		ins = append(ins, e.Value)
	}
	d.mtx.Unlock()

	d.rlog.Debugf("Call path %s: %s -> %s (in %s -> %s) path changed %v call state changed %v",
		out, curOut, newOut, curIn, newIn, pathChanged, callStateChanged)

	var g callGuard
	if pathChanged || callStateChanged {
		moving := callStateBT ||
			curOut == audiodef.DeviceEarpiece || curOut == audiodef.DeviceSpeaker ||
			newOut == audiodef.DeviceEarpiece || newOut == audiodef.DeviceSpeaker
		for _, o := range outs {
			if !moving || (o != primary && o != out) {
				continue
			}
			o.mtx.Lock()
			if o.State() == audiodef.StateStandby || o.closed {
				o.mtx.Unlock()
				continue
			}
			o.log.Debugf("Closing for call path change")
			o.stopLocked()
			g.keep(&o.stream)
		}

		for _, in := range ins {
			kind := in.Kind()
			if kind != audiodef.KindPrimaryIn && kind != audiodef.KindCallRecord {
				continue
			}
			in.mtx.Lock()
			if in.State() != audiodef.StatePlaying || in.closed {
				in.mtx.Unlock()
				continue
			}
			in.log.Debugf("Closing for call path change")
			in.stopLocked()
			in.reconfig = true
			g.keep(&in.stream)
		}
	}

	d.mtx.Lock()
	if callStateBT {
		d.setControl(ControlMuteCount, muteCountBTCall)
	}
	if (pathChanged || d.routes[audiodef.Playback].usage == audiodef.UsageInCallMusic) &&
		d.voiceCallActive() {

		if !d.voice.State().MuteVoice {
			if err := d.voice.SetRxMute(true); err != nil {
				d.log.Warnf("Unable to mute rx: %v", err)
			}
		}
		if err := d.voice.SetCallActive(false); err != nil {
			d.log.Warnf("Unable to mark call inactive: %v", err)
		}
		if err := d.provider.StopVoiceCall(); err != nil {
			d.metrics.transportError()
			d.log.Errorf("Unable to stop voice call: %v", err)
		}
	}
	switch {
	case d.isCallMode():
		d.routeOut(out, true, routeCallDrive)
	case out.State() == audiodef.StateStandby && d.routes[audiodef.Playback].routed:
		d.routeOut(out, false, routeCallDrive)
	}
	d.mtx.Unlock()
	g.unlock()
}
