package hal

import (
	"fmt"
	"io"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/logutil"
	"github.com/companyzero/audiohal/internal/strparms"
)

// OutputConfig are the attributes of a playback stream requested by the
// runtime.
type OutputConfig struct {
	Devices audiodef.Devices     `json:"devices"`
	Flags   audiodef.OutputFlags `json:"flags"`
	Config  audiodef.Config      `json:"config"`
}

// OutStream is a playback stream.
type OutStream struct {
	stream

	flags    audiodef.OutputFlags
	tr       PlaybackTransport
	compress CompressTransport
	offload  *offloadWorker
	callback func(Event)
	closed   bool
	volL     float32
	volR     float32

	// force and rollback are guarded by the device lock.
	force    forceRoute
	rollback audiodef.Devices
}

// outputKind selects the kind and usage of a new playback stream.
func outputKind(oc *OutputConfig) (audiodef.StreamKind, audiodef.Usage, error) {
	f := oc.Flags
	switch {
	case f == audiodef.OutputFlagNone:
		switch {
		case oc.Devices.Has(audiodef.OutAuxDigital):
			return audiodef.KindAuxDigital, audiodef.UsageMedia, nil
		case oc.Devices.Has(audiodef.OutAllUSB):
			return audiodef.KindUSBOut, audiodef.UsageMedia, nil
		default:
			return audiodef.KindNoAttributeOut, audiodef.UsageMedia, nil
		}

	case f&audiodef.OutputFlagDirect != 0:
		switch {
		case f&audiodef.OutputFlagCompressOffload != 0 && f&audiodef.OutputFlagNonBlocking != 0:
			return audiodef.KindCompressOffload, audiodef.UsageMedia, nil
		case f&audiodef.OutputFlagMMAPNoIRQ != 0:
			return audiodef.KindMMAPOut, audiodef.UsageMedia, nil
		}

	case f&audiodef.OutputFlagPrimary != 0:
		return audiodef.KindPrimaryOut, audiodef.UsageMedia, nil

	case f&audiodef.OutputFlagFast != 0:
		if f&audiodef.OutputFlagRaw != 0 {
			return audiodef.KindLowLatencyOut, audiodef.UsageMedia, nil
		}
		return audiodef.KindFastOut, audiodef.UsageMedia, nil

	case f&audiodef.OutputFlagDeepBuffer != 0:
		return audiodef.KindDeepBufferOut, audiodef.UsageMedia, nil

	case f&audiodef.OutputFlagIncallMusic != 0:
		return audiodef.KindInCallMusic, audiodef.UsageInCallMusic, nil
	}
	return audiodef.KindNone, audiodef.UsageNone, fmt.Errorf("%w: unsupported output flags %#x",
		ErrInvalid, uint32(f))
}

// OpenOutputStream opens a playback stream. The stream starts in standby:
// nothing is routed until the first Write.
func (d *Device) OpenOutputStream(oc OutputConfig) (*OutStream, error) {
	kind, usage, err := outputKind(&oc)
	if err != nil {
		return nil, err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	var newVoice bool
	if kind == audiodef.KindPrimaryOut {
		if d.primary != nil {
			return nil, fmt.Errorf("%w: primary output %s", ErrExists, d.primary)
		}
		if d.voice == nil && d.cfg.newVoice != nil {
			v, err := d.cfg.newVoice()
			if err != nil {
				return nil, fmt.Errorf("unable to create voice manager: %w", err)
			}
			d.voice = v
			newVoice = true
		}
	}

	d.nextID++
	id := d.nextID
	o := &OutStream{
		stream: stream{
			dev: d,
			id:  id,
			dir: audiodef.Playback,
			log: logutil.StreamLogger(d.slog, "out", id),
			cfg: oc.Config,
		},
		flags: oc.Flags,
		volL:  1,
		volR:  1,
	}
	o.setKind(kind)
	o.setUsage(usage)
	o.setDevices(oc.Devices)

	tr, err := d.provider.NewPlayback(kind, oc.Config, oc.Devices)
	if err == nil && kind == audiodef.KindCompressOffload {
		ct, ok := tr.(CompressTransport)
		if !ok {
			tr.Destroy()
			err = fmt.Errorf("%w: transport does not decode compressed audio", ErrNotSupported)
		}
		o.compress = ct
	}
	if err != nil {
		d.metrics.transportError()
		if newVoice {
			d.voice.Close()
			d.voice = nil
		}
		return nil, fmt.Errorf("unable to create %s transport: %w", kind, err)
	}
	o.tr = tr

	switch kind {
	case audiodef.KindPrimaryOut:
		d.primary = o
	case audiodef.KindCompressOffload:
		if d.compress == nil {
			d.compress = o
		}
		o.compress.SetNonBlocking()
		o.offload = newOffloadWorker(o, logutil.StreamLogger(d.olog, "out", id))
		go o.offload.run()
	case audiodef.KindAuxDigital, audiodef.KindUSBOut:
		o.cfg = tr.Config()
	}

	o.setState(audiodef.StateStandby)
	d.outs.PushBack(o)
	d.metrics.streamOpened(audiodef.Playback)
	o.log.Infof("Opened %s on %s (%s)", kind, oc.Devices, o.cfg)
	return o, nil
}

// CloseOutputStream puts out in standby and releases it.
func (d *Device) CloseOutputStream(o *OutStream) {
	if err := o.Standby(); err != nil {
		o.log.Warnf("Standby before close: %v", err)
	}

	d.mtx.Lock()
	for e := d.outs.Front(); e != nil; e = e.Next() {
		if e.Value == o {
			d.outs.Remove(e)
			break
		}
	}
	if d.primary == o {
		d.primary = nil
		if d.voice != nil {
			if err := d.voice.Close(); err != nil {
				d.log.Warnf("Unable to close voice manager: %v", err)
			}
			d.voice = nil
		}
	}
	if d.compress == o {
		d.compress = nil
	}
	if o.Usage() == audiodef.UsageInCallMusic {
		d.incallMusicOn = false
	}
	d.metrics.streamClosed(audiodef.Playback)
	d.mtx.Unlock()

	if o.offload != nil {
		o.offload.stop()
	}

	o.mtx.Lock()
	o.closed = true
	o.tr.Destroy()
	o.mtx.Unlock()
	o.log.Infof("Closed")
}

// enterVoIPSE turns on the speech enhancement of a VoIP call carried by the
// primary output. Returns true when a mute burst must follow the next write.
// Must be called with the device lock held.
func (d *Device) enterVoIPSE(o *OutStream) bool {
	if !d.isAPCall() || d.voipseOn || o != d.primary ||
		!d.routes[audiodef.Playback].usage.IsAPCall() {
		return false
	}
	r := d.resolver()
	d.setControl(ControlAPCallBuffType, 1)
	d.voipseOn = true
	d.setControl(ControlAPCallSpeech, r.apcallSpeechParam(r.deviceID(o.Devices())))
	d.log.Debugf("VoIP speech enhancement on")
	return true
}

// leaveVoIPSE must be called with the device lock held.
func (d *Device) leaveVoIPSE() {
	d.setControl(ControlAPCallBuffType, 0)
	d.voipseOn = false
	d.log.Debugf("VoIP speech enhancement off")
}

// routeForTransfer routes a stream leaving standby. Must be called with the
// stream lock held.
func (o *OutStream) routeForTransfer() (needMute bool) {
	d := o.dev
	d.mtx.Lock()
	defer d.mtx.Unlock()
	switch {
	case o.Usage() == audiodef.UsageInCallMusic && d.isCPCall():
		d.incallMusicOn = true
		d.routeOut(o, true, routeCallDrive)
	case !d.routes[audiodef.Playback].routed:
		d.routeOut(o, true, routeNonForce)
	}
	return d.enterVoIPSE(o)
}

// unrouteFailed undoes routeForTransfer after the transport failed to
// open. Must be called with the stream lock held.
func (o *OutStream) unrouteFailed() {
	d := o.dev
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if o == d.primary && d.voipseOn {
		d.leaveVoIPSE()
	}
	if d.routes[audiodef.Playback].routed && !(o.Usage() == audiodef.UsageInCallMusic && d.isCPCall()) {
		d.routeOut(o, false, routeNonForce)
	}
}

// reopen closes and opens the transport again, calling f with the device
// lock held while the transport is closed. Must be called with the stream
// lock held.
func (o *OutStream) reopen(f func()) error {
	if o.State() > audiodef.StateIdle {
		if err := o.tr.Stop(); err != nil {
			o.log.Warnf("Unable to stop transport: %v", err)
		}
	}
	if err := o.tr.Close(); err != nil {
		o.log.Warnf("Unable to close transport: %v", err)
	}
	o.setState(audiodef.StateReady)

	o.dev.mtx.Lock()
	f()
	o.dev.mtx.Unlock()

	if err := o.tr.Open(); err != nil {
		o.setState(audiodef.StateStandby)
		o.dev.metrics.transportError()
		return fmt.Errorf("unable to reopen %s: %w", o, err)
	}
	o.setState(audiodef.StateIdle)
	return nil
}

// Write queues b for playback, leaving standby first if needed.
func (o *OutStream) Write(b []byte) (int, error) {
	d := o.dev
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.closed {
		return 0, ErrClosed
	}

	var needMute, opened bool
	if o.State() == audiodef.StateStandby {
		o.setState(audiodef.StateReady)
		needMute = o.routeForTransfer()
		if err := o.tr.Open(); err != nil {
			o.setState(audiodef.StateStandby)
			o.unrouteFailed()
			d.metrics.transportError()
			return 0, fmt.Errorf("unable to open %s: %w", o, err)
		}
		o.setState(audiodef.StateIdle)
		opened = true
	}
	if len(b) == 0 {
		return 0, nil
	}

	if !opened {
		d.mtx.Lock()
		enter := d.isAPCall() && !d.voipseOn && o == d.primary &&
			d.routes[audiodef.Playback].usage.IsAPCall()
		leave := o == d.primary && d.voipseOn && !d.isAPCall()
		d.mtx.Unlock()

		var err error
		switch {
		case enter:
			err = o.reopen(func() { needMute = d.enterVoIPSE(o) })
		case leave:
			err = o.reopen(d.leaveVoIPSE)
			needMute = true
		}
		if err != nil {
			return 0, err
		}
	}

	d.mtx.Lock()
	discard := o.Usage() == audiodef.UsageInCallMusic &&
		(d.usbHeadsetConnected() || !d.isCallMode())
	updateVolume := o.compress != nil && d.updateOffloadVolume
	if updateVolume {
		d.updateOffloadVolume = false
	}
	d.mtx.Unlock()

	if discard && o.State() == audiodef.StatePlaying {
		o.log.Tracef("Discarding in-call music outside of the call path")
		return len(b), nil
	}
	if updateVolume {
		if err := o.compress.SetVolume(o.volL, o.volR); err != nil {
			o.log.Warnf("Unable to restore offload volume: %v", err)
		}
	}

	n, err := o.tr.Write(b)
	if err != nil {
		d.metrics.transportError()
		return n, fmt.Errorf("unable to write to %s: %w", o, err)
	}
	d.metrics.transfer(audiodef.Playback, n)
	if o.State() == audiodef.StateIdle {
		if err := o.tr.Start(); err != nil {
			d.metrics.transportError()
			return n, fmt.Errorf("unable to start %s: %w", o, err)
		}
		o.setState(audiodef.StatePlaying)
	}

	if needMute {
		time.Sleep(d.cfg.muteWindow)
		d.mtx.Lock()
		d.setControl(ControlAPCallMute, muteCountAPCall)
		d.mtx.Unlock()
	}

	if o.offload != nil && n < len(b) {
		o.offload.send(msgWaitWrite)
	}
	return n, nil
}

// stopLocked stops and closes the transport. Must be called with the stream
// lock held.
func (o *OutStream) stopLocked() {
	if o.State() > audiodef.StateIdle {
		if err := o.tr.Stop(); err != nil {
			o.dev.metrics.transportError()
			o.log.Warnf("Unable to stop transport: %v", err)
		}
		if o.offload != nil {
			o.offload.waitIdle()
		}
		o.setState(audiodef.StateIdle)
	}
	if err := o.tr.Close(); err != nil {
		o.dev.metrics.transportError()
		o.log.Warnf("Unable to close transport: %v", err)
	}
	o.setState(audiodef.StateStandby)
}

// Standby closes the transport and releases the playback route unless
// another user still needs it.
func (o *OutStream) Standby() error {
	d := o.dev
	o.mtx.Lock()
	if o.State() == audiodef.StateStandby {
		o.mtx.Unlock()
		o.log.Warnf("Redundant standby")
		return nil
	}
	o.stopLocked()

	d.mtx.Lock()
	if o == d.primary && d.voipseOn {
		d.leaveVoIPSE()
	}
	callRoute := false
	if d.routes[audiodef.Playback].routed {
		switch {
		case o.Usage() == audiodef.UsageInCallMusic && d.incallMusicOn && d.isCPCall():
			d.incallMusicOn = false
			callRoute = true
		default:
			if o.Usage() == audiodef.UsageInCallMusic {
				d.incallMusicOn = false
			}
			d.routeOut(o, false, routeNonForce)
		}
	}
	o.force = routeNonForce
	o.rollback = audiodef.DevicesNone
	primary := d.primary
	d.mtx.Unlock()
	o.mtx.Unlock()

	// In-call music hands the call path back to the primary output.
	if callRoute && primary != nil {
		devs := primary.Devices()
		d.updateCallStream(primary, devs, devs)
		if err := d.provider.StartVoiceCall(); err != nil {
			d.metrics.transportError()
			return fmt.Errorf("unable to restart voice call: %w", err)
		}
	}
	return nil
}

// setRouting handles the routing key.
func (o *OutStream) setRouting(req audiodef.Devices) {
	d := o.dev
	o.mtx.Lock()
	d.mtx.Lock()

	if o.Usage() == audiodef.UsageInCallMusic && d.usbHeadsetConnected() &&
		req == audiodef.OutTelephonyTx && d.isCallMode() {
		req = audiodef.OutEarpiece
	}
	if req == audiodef.DevicesNone {
		d.mtx.Unlock()
		o.mtx.Unlock()
		return
	}
	cur := o.Devices()
	o.setDevices(req)
	if o.compress != nil {
		d.updateOffloadVolume = true
	}

	drives := d.drivesCall(o)
	need := (o == d.primary && req.Count() == 2) || (drives && d.isCallMode()) ||
		d.routes[audiodef.Playback].routed || o.State() > audiodef.StateStandby
	if !need {
		if o != d.primary {
			d.currentDevices = req
		}
		d.mtx.Unlock()
		o.mtx.Unlock()
		return
	}

	o.force = routeNonForce
	switch {
	case o == d.primary && req.Count() == 2:
		// Dual device requests (alarms, notifications) are forced and
		// rolled back when the voice volume drops to zero.
		o.force = routeForce
		o.rollback = d.currentDevices
	case drives:
		activeCP := d.routes[audiodef.Playback].usage.IsCPCall()
		if d.isCPCall() || activeCP || (d.isAPCall() && d.activeInputRunning()) {
			o.force = routeCallDrive
		}
		if o.Usage() == audiodef.UsageInCallMusic && d.isCPCall() {
			d.incallMusicOn = true
		}
	}
	if o.force != routeForce {
		d.currentDevices = req
	}
	o.log.Debugf("Routing %s -> %s (%s)", cur, req, o.force)

	arbitrate := drives && d.isCallMode()
	if !arbitrate {
		d.routeOut(o, true, o.force)
	}
	d.mtx.Unlock()
	o.mtx.Unlock()

	if arbitrate {
		d.updateCallStream(o, cur, req)
	}
	if drives {
		d.startVoicePath(req)
	}
}

// startVoicePath pushes the path and volume of a CP call to the call
// signaling, starting the voice call if needed.
func (d *Device) startVoicePath(devs audiodef.Devices) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.isCPCall() || d.voice == nil {
		return
	}
	if err := d.voice.SetPath(devs); err != nil {
		d.log.Warnf("Unable to set voice path %s: %v", devs, err)
	}
	if !d.voice.IsCallActive() {
		if err := d.provider.StartVoiceCall(); err != nil {
			d.metrics.transportError()
			d.log.Errorf("Unable to start voice call: %v", err)
			return
		}
		if err := d.voice.SetCallActive(true); err != nil {
			d.log.Warnf("Unable to mark call active: %v", err)
		}
		if d.voice.State().MuteVoice {
			if err := d.voice.SetRxMute(false); err != nil {
				d.log.Warnf("Unable to unmute rx: %v", err)
			}
		}
	}
	if err := d.voice.SetVolume(d.voiceVolume); err != nil {
		d.log.Warnf("Unable to set voice volume: %v", err)
	}
}

// SetParameters applies a "k=v;..." parameter string to the stream.
func (o *OutStream) SetParameters(kv string) error {
	p := strparms.Parse(kv)
	o.log.Debugf("SetParameters %s", p)

	if v, ok := p.Get(KeyRouting); ok {
		req, err := parseDevices(v)
		if err != nil {
			return err
		}
		p.Del(KeyRouting)
		o.setRouting(req)
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.closed {
		return ErrClosed
	}
	if err := o.configParams(p, o.tr); err != nil {
		return err
	}
	if p.Len() > 0 {
		if err := o.tr.SetParameters(p); err != nil {
			return fmt.Errorf("unable to set transport parameters: %w", err)
		}
	}
	return nil
}

// GetParameters returns the values of the requested keys.
func (o *OutStream) GetParameters(keys string) string {
	query := strparms.Parse(keys)
	reply := strparms.New()
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.configReply(query, reply, o.tr)
	if query.Has(KeyFrameCount) {
		reply.SetInt(KeyFrameCount, o.tr.PeriodSize())
	}
	o.tr.GetParameters(query, reply)
	return reply.String()
}

// Latency returns the latency of the transport.
func (o *OutStream) Latency() time.Duration {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.tr.Latency()
}

// Config returns the configuration used by the transport.
func (o *OutStream) Config() audiodef.Config {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.tr.Config()
}

// SetVolume sets the volume of an offload stream.
func (o *OutStream) SetVolume(left, right float32) error {
	if o.Kind() != audiodef.KindCompressOffload {
		return ErrNotSupported
	}
	if left < 0 || left > 1 || right < 0 || right > 1 {
		return fmt.Errorf("%w: volume %.2f/%.2f", ErrInvalid, left, right)
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if left == o.volL && right == o.volR {
		return nil
	}
	o.volL, o.volR = left, right
	if err := o.compress.SetVolume(left, right); err != nil {
		return fmt.Errorf("unable to set volume: %w", err)
	}
	return nil
}

// RenderPosition returns the number of frames rendered since the stream
// left standby.
func (o *OutStream) RenderPosition() (uint32, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.State() < audiodef.StateIdle {
		return 0, ErrInvalid
	}
	return o.tr.RenderPosition()
}

// PresentationPosition returns the number of frames presented and the time
// of the measurement.
func (o *OutStream) PresentationPosition() (uint64, time.Time, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.State() < audiodef.StateIdle {
		return 0, time.Time{}, ErrInvalid
	}
	return o.tr.PresentationPosition()
}

// SetCallback registers the event callback of a non-blocking offload
// stream. The callback runs on the offload worker with the stream locked and
// must not call methods of the stream.
func (o *OutStream) SetCallback(f func(Event)) error {
	if o.offload == nil {
		return ErrNotSupported
	}
	o.mtx.Lock()
	o.callback = f
	o.mtx.Unlock()
	return nil
}

// Pause suspends a playing offload stream.
func (o *OutStream) Pause() error {
	if o.compress == nil {
		return ErrNotSupported
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.State() != audiodef.StatePlaying {
		o.log.Debugf("Pause ignored in state %s", o.State())
		return nil
	}
	if err := o.compress.Pause(); err != nil {
		o.dev.metrics.transportError()
		return fmt.Errorf("unable to pause: %w", err)
	}
	o.setState(audiodef.StatePaused)
	return nil
}

// Resume resumes a paused offload stream.
func (o *OutStream) Resume() error {
	if o.compress == nil {
		return ErrNotSupported
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.State() != audiodef.StatePaused {
		o.log.Debugf("Resume ignored in state %s", o.State())
		return nil
	}
	if err := o.compress.Resume(); err != nil {
		o.dev.metrics.transportError()
		return fmt.Errorf("unable to resume: %w", err)
	}
	o.setState(audiodef.StatePlaying)
	return nil
}

// Drain asks an offload stream to render its queued audio. Non-blocking
// streams report completion through the callback.
func (o *OutStream) Drain(typ DrainType) error {
	if o.compress == nil {
		return ErrNotSupported
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.State() == audiodef.StateIdle {
		// Nothing queued.
		if o.callback != nil {
			o.callback(EventDrainReady)
		}
		return nil
	}
	if typ == DrainEarlyNotify {
		o.offload.send(msgPartialDrain)
	} else {
		o.offload.send(msgDrain)
	}
	return nil
}

// Flush discards the queued audio of an offload stream.
func (o *OutStream) Flush() error {
	if o.compress == nil {
		return ErrNotSupported
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.State() <= audiodef.StateIdle {
		return nil
	}
	if err := o.compress.Stop(); err != nil {
		o.dev.metrics.transportError()
		return fmt.Errorf("unable to flush: %w", err)
	}
	if o.offload != nil {
		o.offload.waitIdle()
	}
	o.setState(audiodef.StateIdle)
	return nil
}

// CreateMMAPBuffer opens an MMAP stream with a buffer of at least minFrames.
func (o *OutStream) CreateMMAPBuffer(minFrames int) (MMAPBufferInfo, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.createMMAPBuffer(o.tr, minFrames, func() { o.routeForTransfer() },
		o.unrouteFailed)
}

// MMAPPosition returns the position of an MMAP stream.
func (o *OutStream) MMAPPosition() (MMAPPosition, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.mmapPosition(o.tr)
}

// Start starts an MMAP stream.
func (o *OutStream) Start() error {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.startMMAP(o.tr)
}

// Stop stops an MMAP stream.
func (o *OutStream) Stop() error {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.stopMMAP(o.tr)
}

// Dump writes the state of the stream to w.
func (o *OutStream) Dump(w io.Writer) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	fmt.Fprintf(w, "%s\n", o)
	fmt.Fprintf(w, "\tstate: %s\n", o.State())
	fmt.Fprintf(w, "\tusage: %s\n", o.Usage())
	fmt.Fprintf(w, "\tdevices: %s\n", o.Devices())
	fmt.Fprintf(w, "\tflags: %#x\n", uint32(o.flags))
	fmt.Fprintf(w, "\trequested: %s\n", o.cfg)
	if o.compress != nil {
		fmt.Fprintf(w, "\tvolume: %.2f/%.2f\n", o.volL, o.volR)
	}
	o.tr.Dump(w)
}
