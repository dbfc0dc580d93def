package hal

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/logutil"
	"github.com/companyzero/audiohal/internal/strparms"
)

// InputConfig are the attributes of a capture stream requested by the
// runtime.
type InputConfig struct {
	Devices audiodef.Devices    `json:"devices"`
	Flags   audiodef.InputFlags `json:"flags"`
	Source  audiodef.Source     `json:"source"`
	Config  audiodef.Config     `json:"config"`
}

// InStream is a capture stream.
type InStream struct {
	stream

	source atomic.Int32
	flags  audiodef.InputFlags
	tr     CaptureTransport
	closed bool

	// reconfig is set by the call path arbitrator when the stream was
	// closed under the reader. The next Read selects its kind again.
	reconfig bool
}

// Source returns the capture source.
func (in *InStream) Source() audiodef.Source {
	return audiodef.Source(in.source.Load())
}

func (in *InStream) setSource(src audiodef.Source) {
	in.source.Store(int32(src))
}

func sourceUsage(src audiodef.Source) audiodef.Usage {
	switch src {
	case audiodef.SourceCamcorder:
		return audiodef.UsageCamcorder
	case audiodef.SourceVoiceRecognition:
		return audiodef.UsageRecognition
	default:
		return audiodef.UsageRecording
	}
}

func callRecordUsage(src audiodef.Source) audiodef.Usage {
	switch src {
	case audiodef.SourceVoiceUplink:
		return audiodef.UsageInCallUplink
	case audiodef.SourceVoiceDownlink:
		return audiodef.UsageInCallDownlink
	default:
		return audiodef.UsageInCallUplinkDownlink
	}
}

// primaryCaptureKind is the kind and usage of a primary class capture
// stream recording src. Must be called with the device lock held.
func (d *Device) primaryCaptureKind(src audiodef.Source) (audiodef.StreamKind, audiodef.Usage) {
	if d.isCPCall() && src.IsCallRecording() {
		return audiodef.KindCallRecord, callRecordUsage(src)
	}
	return audiodef.KindPrimaryIn, sourceUsage(src)
}

// inputKind selects the kind and usage of a new capture stream. Must be
// called with the device lock held.
func (d *Device) inputKind(ic *InputConfig) (audiodef.StreamKind, audiodef.Usage, error) {
	flags := ic.Flags
	if flags&audiodef.InputFlagFast != 0 && d.isCallMode() && ic.Config.SampleRate != lowLatencyRate {
		d.log.Debugf("Fast capture at %d Hz denied during a call", ic.Config.SampleRate)
		flags &^= audiodef.InputFlagFast
	}

	const usbIn = audiodef.InAllUSB &^ audiodef.BitIn
	switch {
	case flags == audiodef.InputFlagNone:
		switch {
		case d.isCPCall() && d.routes[audiodef.Capture].usage.IsCPCall() &&
			ic.Source.IsCallRecording():
			return audiodef.KindCallRecord, callRecordUsage(ic.Source), nil
		case ic.Source == audiodef.SourceFMTuner && ic.Devices == audiodef.InFMTuner:
			return audiodef.KindFMTuner, audiodef.UsageFMRadioTuner, nil
		case ic.Devices.Has(usbIn):
			return audiodef.KindUSBIn, audiodef.UsageRecording, nil
		case ic.Devices == audiodef.InDefault && ic.Source == audiodef.SourceDefault:
			return audiodef.KindNoAttributeIn, audiodef.UsageRecording, nil
		case ic.Devices == audiodef.InTelephonyRx && d.usbHeadsetConnected():
			return audiodef.KindNone, audiodef.UsageNone,
				fmt.Errorf("%w: telephony rx with a USB headset", ErrInvalid)
		case d.fm == fmStateOn && (ic.Source == audiodef.SourceDefault || ic.Source == audiodef.SourceMic):
			return audiodef.KindPrimaryIn, audiodef.UsageFMRadioCapture, nil
		default:
			return audiodef.KindPrimaryIn, sourceUsage(ic.Source), nil
		}

	case flags&audiodef.InputFlagFast != 0:
		return audiodef.KindLowLatencyIn, audiodef.UsageMedia, nil

	case flags&audiodef.InputFlagMMAPNoIRQ != 0:
		if ic.Config.SampleRate != lowLatencyRate {
			return audiodef.KindNone, audiodef.UsageNone,
				fmt.Errorf("%w: mmap capture at %d Hz", ErrInvalid, ic.Config.SampleRate)
		}
		return audiodef.KindMMAPIn, audiodef.UsageRecording, nil
	}
	return audiodef.KindNone, audiodef.UsageNone,
		fmt.Errorf("%w: unsupported input flags %#x", ErrInvalid, uint32(flags))
}

// OpenInputStream opens a capture stream. Only FM tuner streams are routed
// on open, every other stream is routed by its first Read.
func (d *Device) OpenInputStream(ic InputConfig) (*InStream, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	kind, usage, err := d.inputKind(&ic)
	if err != nil {
		return nil, err
	}

	d.nextID++
	id := d.nextID
	in := &InStream{
		stream: stream{
			dev: d,
			id:  id,
			dir: audiodef.Capture,
			log: logutil.StreamLogger(d.slog, "in", id),
			cfg: ic.Config,
		},
		flags: ic.Flags,
	}
	in.setKind(kind)
	in.setUsage(usage)
	in.setDevices(ic.Devices)
	in.setSource(ic.Source)

	tr, err := d.provider.NewCapture(kind, usage, ic.Config, ic.Devices)
	if err != nil {
		d.metrics.transportError()
		return nil, fmt.Errorf("unable to create %s transport: %w", kind, err)
	}
	in.tr = tr
	in.setState(audiodef.StateStandby)
	d.ins.PushBack(in)
	d.metrics.streamOpened(audiodef.Capture)

	switch {
	case kind == audiodef.KindUSBIn:
		in.cfg = tr.Config()
	case kind == audiodef.KindFMTuner:
		d.fm = fmStateOn
		d.fmNeedRoute = true
		d.routeIn(in, true, routeNonForce)
		d.fmNeedRoute = false
	case usage == audiodef.UsageFMRadioCapture:
		d.fm = fmStateRecording
	}

	in.log.Infof("Opened %s on %s from %s (%s)", kind, ic.Devices, ic.Source, in.cfg)
	return in, nil
}

// CloseInputStream puts in in standby and releases it.
func (d *Device) CloseInputStream(in *InStream) {
	if err := in.Standby(); err != nil {
		in.log.Warnf("Standby before close: %v", err)
	}

	d.mtx.Lock()
	switch in.Usage() {
	case audiodef.UsageFMRadioTuner:
		d.fm = fmStateOff
		if d.routes[audiodef.Capture].routed {
			d.routeIn(in, false, routeNonForce)
		}
	case audiodef.UsageFMRadioCapture:
		if d.fm == fmStateRecording {
			d.fm = fmStateOn
		}
	}
	for e := d.ins.Front(); e != nil; e = e.Next() {
		if e.Value == in {
			d.ins.Remove(e)
			break
		}
	}
	if d.activeInput == in {
		d.activeInput = nil
	}
	d.metrics.streamClosed(audiodef.Capture)
	d.mtx.Unlock()

	in.mtx.Lock()
	in.closed = true
	in.tr.Destroy()
	in.mtx.Unlock()
	in.log.Infof("Closed")
}

// stopLocked stops and closes the transport. Must be called with the stream
// lock held.
func (in *InStream) stopLocked() {
	if in.State() > audiodef.StateIdle {
		if err := in.tr.Stop(); err != nil {
			in.dev.metrics.transportError()
			in.log.Warnf("Unable to stop transport: %v", err)
		}
		in.setState(audiodef.StateIdle)
	}
	if err := in.tr.Close(); err != nil {
		in.dev.metrics.transportError()
		in.log.Warnf("Unable to close transport: %v", err)
	}
	in.setState(audiodef.StateStandby)
}

// routeForTransfer routes a stream leaving standby. Must be called with the
// stream lock held.
func (in *InStream) routeForTransfer(needReconfig bool) {
	d := in.dev
	d.mtx.Lock()
	defer d.mtx.Unlock()

	// The kind of primary class streams follows the call state.
	kind := in.Kind()
	if kind == audiodef.KindPrimaryIn || kind == audiodef.KindCallRecord {
		activeCP := d.routes[audiodef.Playback].usage.IsCPCall()
		toCall := d.isCPCall() && activeCP && kind != audiodef.KindCallRecord
		toPrimary := !d.isCPCall() && !activeCP && (kind == audiodef.KindCallRecord ||
			(needReconfig && kind == audiodef.KindPrimaryIn))
		if toCall || toPrimary {
			newKind, usage := d.primaryCaptureKind(in.Source())
			if in.Usage() == audiodef.UsageFMRadioCapture {
				usage = audiodef.UsageFMRadioCapture
			}
			in.log.Debugf("Kind %s -> %s (%s)", kind, newKind, usage)
			in.setKind(newKind)
			in.setUsage(usage)
			if err := in.tr.SetUsage(newKind, usage); err != nil {
				in.log.Warnf("Unable to switch transport usage: %v", err)
			}
		}
	}

	d.activeInput = in
	if d.routes[audiodef.Capture].routed {
		return
	}
	st := d.factory.State()
	if st.IsBTRealtimeLoopback() || in.Kind() == audiodef.KindCallRecord {
		in.log.Debugf("Capture route not needed")
		return
	}
	d.routeIn(in, true, routeNonForce)
}

func (in *InStream) unrouteFailed() {
	d := in.dev
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.routes[audiodef.Capture].routed {
		d.routeIn(in, false, routeNonForce)
	}
	if d.activeInput == in {
		d.activeInput = nil
	}
}

// Read captures into b, leaving standby first if needed.
func (in *InStream) Read(b []byte) (int, error) {
	d := in.dev
	in.mtx.Lock()
	defer in.mtx.Unlock()
	if in.closed {
		return 0, ErrClosed
	}

	var needReconfig bool
	if in.reconfig {
		if in.State() > audiodef.StateStandby {
			in.stopLocked()
		}
		in.reconfig = false
		needReconfig = true
	}

	if in.State() == audiodef.StateStandby {
		in.setState(audiodef.StateReady)
		in.routeForTransfer(needReconfig)
		if err := in.tr.Open(); err != nil {
			in.setState(audiodef.StateStandby)
			in.unrouteFailed()
			d.metrics.transportError()
			return 0, fmt.Errorf("unable to open %s: %w", in, err)
		}
		in.setState(audiodef.StateIdle)
	}
	if in.State() == audiodef.StateIdle {
		if err := in.tr.Start(); err != nil {
			d.metrics.transportError()
			return 0, fmt.Errorf("unable to start %s: %w", in, err)
		}
		in.setState(audiodef.StatePlaying)
	}

	n, err := in.tr.Read(b)
	if err != nil {
		d.metrics.transportError()
		return n, fmt.Errorf("unable to read from %s: %w", in, err)
	}
	d.metrics.transfer(audiodef.Capture, n)

	d.mtx.Lock()
	mute := d.micMute && (d.isAPCall() || !in.Source().IsCallRecording())
	d.mtx.Unlock()
	if mute {
		clear(b[:n])
	}
	return n, nil
}

// Standby closes the transport and releases the capture route unless
// another user still needs it.
func (in *InStream) Standby() error {
	d := in.dev
	in.mtx.Lock()
	defer in.mtx.Unlock()
	if in.State() == audiodef.StateStandby {
		in.log.Warnf("Redundant standby")
		return nil
	}
	in.stopLocked()

	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.routes[audiodef.Capture].routed {
		d.routeIn(in, false, routeNonForce)
	}
	if d.activeInput == in {
		d.activeInput = nil
	}
	return nil
}

// setRouting handles the routing key. Must be called with the stream lock
// held.
func (in *InStream) setRouting(req audiodef.Devices) {
	d := in.dev
	d.mtx.Lock()
	defer d.mtx.Unlock()

	cur := in.Devices()
	in.setDevices(req)

	// A bluetooth mic appearing or leaving outside of a call needs a new
	// PCM configuration.
	const btIn = audiodef.InBTSCOHeadset &^ audiodef.BitIn
	if !d.isCallMode() && in.State() > audiodef.StateStandby && cur.Has(btIn) != req.Has(btIn) {
		in.log.Debugf("Bluetooth mic change %s -> %s needs reconfiguration", cur, req)
		in.reconfig = true
	}

	if (d.routes[audiodef.Capture].routed || in.State() > audiodef.StateStandby) && !d.isCPCall() {
		d.routeIn(in, true, routeNonForce)
	}
}

// SetParameters applies a "k=v;..." parameter string to the stream.
func (in *InStream) SetParameters(kv string) error {
	p := strparms.Parse(kv)
	in.log.Debugf("SetParameters %s", p)

	in.mtx.Lock()
	defer in.mtx.Unlock()
	if in.closed {
		return ErrClosed
	}

	if v, ok := p.Get(KeyRouting); ok {
		req, err := parseDevices(v)
		if err != nil {
			return err
		}
		p.Del(KeyRouting)
		if req != audiodef.DevicesNone {
			in.setRouting(req)
		}
	}

	if err := in.configParams(p, in.tr); err != nil {
		return err
	}

	if v, ok := p.GetInt(KeyInputSource); ok {
		p.Del(KeyInputSource)
		if in.State() > audiodef.StateReady {
			return ErrNotSupported
		}
		src := audiodef.Source(v)
		if src != in.Source() {
			in.log.Debugf("Source %s -> %s", in.Source(), src)
			in.setSource(src)
			if src == audiodef.SourceVoiceCall {
				d := in.dev
				d.mtx.Lock()
				kind, usage := d.primaryCaptureKind(src)
				d.mtx.Unlock()
				in.setKind(kind)
				in.setUsage(usage)
				if err := in.tr.SetUsage(kind, usage); err != nil {
					return fmt.Errorf("unable to switch transport usage: %w", err)
				}
			}
		}
	}

	if p.Len() > 0 {
		if err := in.tr.SetParameters(p); err != nil {
			return fmt.Errorf("unable to set transport parameters: %w", err)
		}
	}
	return nil
}

// GetParameters returns the values of the requested keys.
func (in *InStream) GetParameters(keys string) string {
	query := strparms.Parse(keys)
	reply := strparms.New()
	in.mtx.Lock()
	defer in.mtx.Unlock()
	in.configReply(query, reply, in.tr)
	if query.Has(KeyFrameCount) {
		reply.SetInt(KeyFrameCount, in.tr.PeriodSize())
	}
	if query.Has(KeyInputSource) {
		reply.SetInt(KeyInputSource, int(in.Source()))
	}
	in.tr.GetParameters(query, reply)
	return reply.String()
}

// Config returns the configuration used by the transport.
func (in *InStream) Config() audiodef.Config {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	return in.tr.Config()
}

// CapturePosition returns the number of frames captured and the time of
// the measurement.
func (in *InStream) CapturePosition() (int64, time.Time, error) {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	if in.State() < audiodef.StateIdle {
		return 0, time.Time{}, ErrInvalid
	}
	return in.tr.CapturePosition()
}

// CreateMMAPBuffer opens an MMAP stream with a buffer of at least minFrames.
func (in *InStream) CreateMMAPBuffer(minFrames int) (MMAPBufferInfo, error) {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	return in.createMMAPBuffer(in.tr, minFrames, func() { in.routeForTransfer(false) },
		in.unrouteFailed)
}

// MMAPPosition returns the position of an MMAP stream.
func (in *InStream) MMAPPosition() (MMAPPosition, error) {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	return in.mmapPosition(in.tr)
}

// Start starts an MMAP stream.
func (in *InStream) Start() error {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	return in.startMMAP(in.tr)
}

// Stop stops an MMAP stream.
func (in *InStream) Stop() error {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	return in.stopMMAP(in.tr)
}

// Dump writes the state of the stream to w.
func (in *InStream) Dump(w io.Writer) {
	in.mtx.Lock()
	defer in.mtx.Unlock()
	fmt.Fprintf(w, "%s\n", in)
	fmt.Fprintf(w, "\tstate: %s\n", in.State())
	fmt.Fprintf(w, "\tusage: %s\n", in.Usage())
	fmt.Fprintf(w, "\tsource: %s\n", in.Source())
	fmt.Fprintf(w, "\tdevices: %s\n", in.Devices())
	fmt.Fprintf(w, "\tflags: %#x\n", uint32(in.flags))
	fmt.Fprintf(w, "\trequested: %s\n", in.cfg)
	fmt.Fprintf(w, "\treconfig: %v\n", in.reconfig)
	in.tr.Dump(w)
}
