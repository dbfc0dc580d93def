package hal

import (
	"fmt"

	"github.com/companyzero/audiohal/audiodef"
)

// Values written to ControlMuteCount and ControlAPCallMute. They are the
// number of DMA periods muted by the DSP.
const (
	muteCountPathChange = 5
	muteCountAPCall     = 3
	muteCountBTCall     = 15
)

type forceRoute int

const (
	routeNonForce forceRoute = iota

	// routeForce ignores other users of the route when releasing it.
	routeForce

	// routeCallDrive also routes the capture direction from a call
	// driving output.
	routeCallDrive
)

func (f forceRoute) String() string {
	switch f {
	case routeForce:
		return "force"
	case routeCallDrive:
		return "call-drive"
	default:
		return "non-force"
	}
}

// routeState is the active route of one direction. The triple is either
// fully none (not routed) or describes the path programmed in the backend.
type routeState struct {
	routed   bool
	usage    audiodef.Usage
	device   audiodef.LogicalDevice
	modifier audiodef.Modifier
}

func (s *routeState) same(u audiodef.Usage, d audiodef.LogicalDevice, m audiodef.Modifier) bool {
	return s.usage == u && s.device == d && s.modifier == m
}

func (s routeState) String() string {
	if !s.routed {
		return "unrouted"
	}
	if s.modifier != audiodef.ModifierNone {
		return fmt.Sprintf("%s-%s+%s", s.usage, s.device, s.modifier)
	}
	return fmt.Sprintf("%s-%s", s.usage, s.device)
}

// keepAliveReason is why a route release is deferred.
type keepAliveReason int

const (
	keepAliveNone keepAliveReason = iota
	keepAliveActiveStream
	keepAliveCPCall
	keepAliveFactoryLoopback
	keepAliveFMRadio
	keepAliveInCallMusic
)

func (r keepAliveReason) String() string {
	switch r {
	case keepAliveActiveStream:
		return "active stream"
	case keepAliveCPCall:
		return "cp call"
	case keepAliveFactoryLoopback:
		return "factory loopback"
	case keepAliveFMRadio:
		return "fm radio"
	case keepAliveInCallMusic:
		return "in-call music"
	default:
		return "none"
	}
}

// playbackKeepAlive returns why the playback route must survive the release
// requested by out. Must be called with the device lock held.
func (d *Device) playbackKeepAlive(out *OutStream, force forceRoute) keepAliveReason {
	switch {
	case force == routeForce:
		return keepAliveNone
	case d.activePlaybackCount(out) > 0:
		return keepAliveActiveStream
	case d.isCPCall():
		return keepAliveCPCall
	case d.factory.State().IsLoopback():
		return keepAliveFactoryLoopback
	case d.fmOn():
		return keepAliveFMRadio
	}
	return keepAliveNone
}

// captureKeepAlive returns why the capture route must survive a release.
// Releases driven by a call only wait for other active capture streams.
// Must be called with the device lock held.
func (d *Device) captureKeepAlive(force forceRoute) keepAliveReason {
	switch {
	case force == routeForce:
		return keepAliveNone
	case d.activeCaptureCount() > 0:
		return keepAliveActiveStream
	case force == routeCallDrive:
		return keepAliveNone
	case d.isCPCall():
		return keepAliveCPCall
	}
	return keepAliveNone
}

// activePlaybackCount is the number of playback streams other than self that
// are past standby. AUX and USB streams use a dedicated DMA and are not
// counted.
func (d *Device) activePlaybackCount(self *OutStream) int {
	var n int
	for e := d.outs.Front(); e != nil; e = e.Next() {
		out := e.Value
		if out == self {
			continue
		}
		switch out.Kind() {
		case audiodef.KindAuxDigital, audiodef.KindUSBOut:
			continue
		}
		if out.State() > audiodef.StateStandby {
			n++
		}
	}
	return n
}

// activeCaptureCount is the number of capture streams past standby, call
// recordings excluded.
func (d *Device) activeCaptureCount() int {
	var n int
	for e := d.ins.Front(); e != nil; e = e.Next() {
		in := e.Value
		if in.Kind() != audiodef.KindCallRecord && in.State() > audiodef.StateStandby {
			n++
		}
	}
	return n
}

// routeOut sets or releases the playback route requested by out. With
// routeCallDrive a call driving output also drives the capture route. Must
// be called with the device lock held.
func (d *Device) routeOut(out *OutStream, set bool, force forceRoute) {
	r := d.resolver()

	driveCapture := false
	captureSet := set
	if d.drivesCall(out) && force == routeCallDrive {
		driveCapture = true
		activeCPUsage := d.routes[audiodef.Playback].usage.IsCPCall()
		if (r.isAPCall() || (!r.isCPCall() && activeCPUsage)) && !d.activeInputRunning() {
			// Only the rx path is kept.
			captureSet = false
		}
		d.rlog.Debugf("%s drives call route: playback %v capture %v",
			out, set, captureSet)
	}

	usage := r.playbackUsage(out.Usage())
	if set {
		device := r.playbackDevice(out.Devices())
		mod := r.modifier(device)

		// AUX and USB playback use a dedicated DMA unrelated to the
		// mixer paths.
		if usage == audiodef.UsageMedia && (device == audiodef.DeviceAuxDigital ||
			device == audiodef.DeviceUSBHeadset) {
			d.rlog.Debugf("%s keeps route for %s", out, device)
			return
		}
		d.setRoute(audiodef.Playback, usage, device, mod, false)
	} else {
		d.releaseRoute(audiodef.Playback, d.playbackKeepAlive(out, force))
	}

	if !driveCapture {
		return
	}
	if captureSet {
		device := r.drivenCaptureDevice(out.Devices())
		d.setRoute(audiodef.Capture, usage, device, r.modifier(device), false)
	} else {
		d.releaseRoute(audiodef.Capture, d.captureKeepAlive(routeCallDrive))
	}
}

// routeIn sets or releases the capture route requested by in. Must be
// called with the device lock held.
func (d *Device) routeIn(in *InStream, set bool, force forceRoute) {
	r := d.resolver()

	// During a VoIP call the primary output owns both directions.
	if r.isAPCall() && set && in.State() > audiodef.StateStandby && d.primary != nil {
		d.routeOut(d.primary, true, routeCallDrive)
		return
	}

	if !set {
		d.releaseRoute(audiodef.Capture, d.captureKeepAlive(force))
		return
	}

	usage := r.captureUsage(in.Source(), in.Usage())
	device := r.captureDevice(in.Devices())
	mod := r.modifier(device)
	st := &d.routes[audiodef.Capture]
	if st.routed && !d.fmNeedRoute && r.fmOn && usage != audiodef.UsageCamcorder {
		d.rlog.Debugf("%s keeps FM capture route %s", in, st)
		return
	}
	d.setRoute(audiodef.Capture, usage, device, mod, d.fmNeedRoute)
}

// setRoute makes the triple the active route of dir, programming the backend
// only when the triple changed or reapply is set.
func (d *Device) setRoute(dir audiodef.Direction, u audiodef.Usage,
	device audiodef.LogicalDevice, mod audiodef.Modifier, reapply bool) {

	st := &d.routes[dir]
	if st.routed && st.same(u, device, mod) && !reapply {
		d.rlog.Tracef("%s route %s unchanged", dir, st)
		d.metrics.routeOp(dir, "skip")
		return
	}

	old := *st
	d.applyRoute(dir, u, device, mod, reapply)
	st.routed = true
	d.rlog.Infof("%s route %s -> %s", dir, old, st)
}

// releaseRoute unsets the route of dir unless a keep-alive reason defers
// the release, in which case the active triple stays recorded.
func (d *Device) releaseRoute(dir audiodef.Direction, reason keepAliveReason) {
	st := &d.routes[dir]
	if !st.routed {
		d.rlog.Warnf("%s route already unrouted", dir)
		*st = routeState{}
		return
	}
	if reason != keepAliveNone {
		d.rlog.Debugf("%s route %s kept: %s", dir, st, reason)
		d.metrics.routeOp(dir, "keep")
		return
	}

	old := *st
	d.resetRoute(dir)
	*st = routeState{}
	d.rlog.Infof("%s route %s released", dir, old)
}

// Backend failures are logged and counted. The route state still tracks the
// request.

func (d *Device) setControl(name string, value int) {
	if err := d.backend.SetControl(name, value); err != nil {
		d.rlog.Errorf("Unable to set control %s=%d: %v", name, value, err)
		d.metrics.backendError()
	}
}

func (d *Device) applyPath(u audiodef.Usage, device audiodef.LogicalDevice) {
	if err := d.backend.ApplyPath(u, device); err != nil {
		d.rlog.Errorf("Unable to apply path %s-%s: %v", u, device, err)
		d.metrics.backendError()
	}
}

func (d *Device) resetPath(u audiodef.Usage, device audiodef.LogicalDevice) {
	if err := d.backend.ResetPath(u, device); err != nil {
		d.rlog.Errorf("Unable to reset path %s-%s: %v", u, device, err)
		d.metrics.backendError()
	}
}

func (d *Device) applyModifier(m audiodef.Modifier) {
	if err := d.backend.ApplyModifier(m); err != nil {
		d.rlog.Errorf("Unable to apply modifier %s: %v", m, err)
		d.metrics.backendError()
	}
}

func (d *Device) resetModifier(m audiodef.Modifier) {
	if err := d.backend.ResetModifier(m); err != nil {
		d.rlog.Errorf("Unable to reset modifier %s: %v", m, err)
		d.metrics.backendError()
	}
}

// applyRoute programs the backend to move dir from its active triple to the
// new one. When only the modifier changes the path is left applied unless
// reapply is set.
func (d *Device) applyRoute(dir audiodef.Direction, u audiodef.Usage,
	device audiodef.LogicalDevice, mod audiodef.Modifier, reapply bool) {

	st := &d.routes[dir]
	playback := dir == audiodef.Playback

	// Hide the pop of a VoIP path change.
	if playback && st.device != device && (st.usage.IsAPCall() || u.IsAPCall()) {
		d.setControl(ControlMuteCount, muteCountPathChange)
	}

	active := st.usage != audiodef.UsageNone && st.device != audiodef.DeviceNone
	switch {
	case active && st.usage == u && st.device == device && !reapply:
		// Only the modifier changed: the path stays applied.
		d.metrics.routeOp(dir, "modifier")
	case active:
		d.resetPath(st.usage, st.device)
		d.metrics.routeOp(dir, "reroute")
		if !playback || device != audiodef.DeviceAuxDigital {
			d.applyPath(u, device)
		}
	default:
		if !playback {
			d.setControl(ControlTickle, 1)
		}
		d.metrics.routeOp(dir, "route")
		if !playback || device != audiodef.DeviceAuxDigital {
			d.applyPath(u, device)
		}
	}
	d.updateModifier(dir, st.modifier, mod, reapply)

	switch {
	case playback && (d.mode == audiodef.ModeInCall || d.mode == audiodef.ModeInCommunication):
		d.setControl(ControlCallPathRxDevice, int(device))
	case !playback && d.mode == audiodef.ModeInCommunication:
		d.setControl(ControlCallParam, int(device))
	}

	st.usage, st.device, st.modifier = u, device, mod
}

// updateModifier moves the backend from modifier cur to mod. Modifiers of
// the other direction are not applied.
func (d *Device) updateModifier(dir audiodef.Direction, cur, mod audiodef.Modifier, reapply bool) {
	isDirMod := mod.IsRx()
	if dir == audiodef.Capture {
		isDirMod = mod.IsTx()
	}
	switch {
	case isDirMod && mod == cur && !reapply:
	case isDirMod:
		d.setControl(ControlModifierSwitch, 0)
		if cur != audiodef.ModifierNone {
			d.resetModifier(cur)
		}
		d.applyModifier(mod)
		d.setControl(ControlModifierSwitch, 1)
	case mod == audiodef.ModifierNone && cur != audiodef.ModifierNone:
		d.resetModifier(cur)
	}
}

// resetRoute removes the active route of dir from the backend.
func (d *Device) resetRoute(dir audiodef.Direction) {
	st := &d.routes[dir]
	if st.modifier != audiodef.ModifierNone {
		d.resetModifier(st.modifier)
	}
	d.resetPath(st.usage, st.device)
	d.metrics.routeOp(dir, "reset")
}
