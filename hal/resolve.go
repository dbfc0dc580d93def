package hal

import (
	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/factory"
)

// resolver is a snapshot of the device state needed to translate runtime
// device bitmasks and stream attributes into logical usages, devices and
// modifiers. Its methods have no side effects.
type resolver struct {
	mode            audiodef.AudioMode
	hasVoice        bool
	call            audiodef.CallState
	factory         factory.State
	supportReceiver bool
	fmViaA2DP       bool
	fmOn            bool
	incallMusicOn   bool

	// primary is the device set requested by the primary output.
	primary audiodef.Devices

	// actualCapture is the last connected capture device.
	actualCapture audiodef.Devices

	hasActiveInput    bool
	activeInputSource audiodef.Source
}

func (r *resolver) isCPCall() bool { return r.mode == audiodef.ModeInCall }
func (r *resolver) isAPCall() bool { return r.mode == audiodef.ModeInCommunication }
func (r *resolver) isCall() bool { return r.isCPCall() || r.isAPCall() }

func (r *resolver) fallbackOut() audiodef.LogicalDevice {
	if r.supportReceiver {
		return audiodef.DeviceEarpiece
	}
	return audiodef.DeviceSpeaker
}

// callDevice maps output devices during a call.
func (r *resolver) callDevice(devs audiodef.Devices) audiodef.LogicalDevice {
	var ret audiodef.LogicalDevice
	switch devs {
	case audiodef.OutEarpiece:
		ret = audiodef.DeviceEarpiece
	case audiodef.OutSpeaker:
		ret = audiodef.DeviceSpeaker
	case audiodef.OutWiredHeadset:
		ret = audiodef.DeviceHeadset
	case audiodef.OutWiredHeadphone:
		ret = audiodef.DeviceHeadphone
	case audiodef.OutBTSCO, audiodef.OutBTSCOHeadset, audiodef.OutBTSCOCarkit,
		audiodef.OutBTSCOHeadset | audiodef.OutSpeaker:
		ret = audiodef.DeviceBTHeadset
	case audiodef.OutUSBDevice:
		ret = audiodef.DeviceUSBHeadset
	case audiodef.OutLine:
		ret = audiodef.DeviceLineOut
	case audiodef.OutTelephonyTx:
		// The primary output was routed when the call started.
		if r.primary != audiodef.OutTelephonyTx {
			ret = r.deviceID(r.primary)
		}
	case audiodef.DevicesNone:
		ret = audiodef.DeviceNone
	default:
		ret = r.fallbackOut()
	}

	const ttyOuts = audiodef.OutWiredHeadphone | audiodef.OutLine |
		audiodef.OutWiredHeadset | audiodef.OutSpeaker
	if r.call.TTY != audiodef.TTYOff && devs&ttyOuts != 0 {
		switch r.call.TTY {
		case audiodef.TTYFull, audiodef.TTYVCO:
			ret = audiodef.DeviceHeadset
		case audiodef.TTYHCO:
			if devs&(audiodef.OutWiredHeadphone|audiodef.OutWiredHeadset|audiodef.OutLine) != 0 {
				ret = audiodef.DeviceEarpiece
			}
		}
	}

	if r.isCPCall() && r.call.CallForwarding {
		ret = audiodef.DeviceCallForwarding
	}
	return ret
}

// deviceID translates a runtime device bitmask into a logical device.
func (r *resolver) deviceID(devs audiodef.Devices) audiodef.LogicalDevice {
	if r.isCall() {
		var ret audiodef.LogicalDevice
		if devs.IsInput() {
			if !r.primary.IsInput() {
				ret = r.inDeviceFromOut(r.deviceID(r.primary))
			}
		} else {
			ret = r.callDevice(devs)
		}
		if ret != audiodef.DeviceNone {
			return ret
		}
	}

	if devs.IsInput() {
		if devs.Count() < 2 {
			return audiodef.DeviceNone
		}
		switch devs {
		case audiodef.InBuiltinMic:
			return audiodef.DeviceMainMic
		case audiodef.InWiredHeadset:
			return audiodef.DeviceHeadsetMic
		case audiodef.InBTSCOHeadset:
			return audiodef.DeviceBTHeadsetMic
		case audiodef.InBackMic:
			return audiodef.DeviceSubMic
		case audiodef.InUSBAccessory, audiodef.InUSBDevice, audiodef.InUSBHeadset:
			return audiodef.DeviceUSBHeadsetMic
		case audiodef.InFMTuner:
			return audiodef.DeviceFMTuner
		default:
			return audiodef.DeviceMainMic
		}
	}

	if r.fmViaA2DP && r.fmOn {
		return audiodef.DeviceFMExternal
	}

	switch devs.Count() {
	case 0:
		return audiodef.DeviceNone
	case 1:
		switch devs {
		case audiodef.OutEarpiece:
			return audiodef.DeviceEarpiece
		case audiodef.OutSpeaker:
			return audiodef.DeviceSpeaker
		case audiodef.OutWiredHeadset:
			return audiodef.DeviceHeadset
		case audiodef.OutWiredHeadphone:
			return audiodef.DeviceHeadphone
		case audiodef.OutBTSCO, audiodef.OutBTSCOHeadset, audiodef.OutBTSCOCarkit:
			return audiodef.DeviceBTHeadset
		case audiodef.OutAuxDigital:
			return audiodef.DeviceAuxDigital
		case audiodef.OutUSBAccessory, audiodef.OutUSBDevice, audiodef.OutUSBHeadset:
			return audiodef.DeviceUSBHeadset
		case audiodef.OutLine:
			return audiodef.DeviceLineOut
		}
	case 2:
		switch {
		case devs == audiodef.OutSpeaker|audiodef.OutWiredHeadset:
			return audiodef.DeviceSpeakerAndHeadset
		case devs == audiodef.OutSpeaker|audiodef.OutWiredHeadphone:
			return audiodef.DeviceSpeakerAndHeadphone
		case devs.Has(audiodef.OutAllSCO) && devs.Has(audiodef.OutSpeaker):
			return audiodef.DeviceSpeakerAndBTHeadset
		case devs.Has(audiodef.OutUSBDevice) && devs.Has(audiodef.OutSpeaker):
			return audiodef.DeviceSpeaker
		case devs == audiodef.OutSpeaker|audiodef.OutLine:
			return audiodef.DeviceSpeakerAndLineOut
		}
	}
	return r.fallbackOut()
}

// inDeviceFromOut derives the capture device paired with an output device.
func (r *resolver) inDeviceFromOut(out audiodef.LogicalDevice) audiodef.LogicalDevice {
	if !r.isCall() {
		switch out {
		case audiodef.DeviceSpeaker, audiodef.DeviceEarpiece, audiodef.DeviceHeadphone,
			audiodef.DeviceSpeakerAndHeadphone, audiodef.DeviceAuxDigital,
			audiodef.DeviceLineOut, audiodef.DeviceSpeakerAndLineOut:
			return audiodef.DeviceMainMic
		case audiodef.DeviceHeadset, audiodef.DeviceSpeakerAndHeadset:
			return audiodef.DeviceHeadsetMic
		case audiodef.DeviceBTHeadset, audiodef.DeviceSpeakerAndBTHeadset:
			return audiodef.DeviceBTHeadsetMic
		case audiodef.DeviceUSBHeadset:
			return audiodef.DeviceUSBHeadsetMic
		default:
			return audiodef.DeviceNone
		}
	}

	var in audiodef.LogicalDevice
	switch out {
	case audiodef.DeviceEarpiece:
		in = audiodef.DeviceHandsetMic
	case audiodef.DeviceSpeaker:
		in = audiodef.DeviceSpeakerMic
	case audiodef.DeviceHeadset:
		in = audiodef.DeviceHeadsetMic
	case audiodef.DeviceHeadphone:
		in = audiodef.DeviceHeadphoneMic
	case audiodef.DeviceBTHeadset:
		in = audiodef.DeviceBTHeadsetMic
		if r.isAPCall() && !r.call.BTNREC {
			in = audiodef.DeviceBTNRECHeadsetMic
		}
	case audiodef.DeviceUSBHeadset:
		in = audiodef.DeviceHandsetMic
		if r.actualCapture == audiodef.InUSBDevice {
			in = audiodef.DeviceUSBHeadsetMic
		}
	case audiodef.DeviceLineOut:
		in = audiodef.DeviceLineOutMic
	case audiodef.DeviceNone:
		in = audiodef.DeviceNone
	default:
		in = audiodef.DeviceSpeakerMic
		if r.supportReceiver {
			in = audiodef.DeviceHandsetMic
		}
	}

	if r.call.TTY != audiodef.TTYOff {
		switch out {
		case audiodef.DeviceHeadphone, audiodef.DeviceHeadset,
			audiodef.DeviceSpeaker, audiodef.DeviceLineOut:
			switch r.call.TTY {
			case audiodef.TTYFull:
				in = audiodef.DeviceTTYFullMic
			case audiodef.TTYHCO:
				if out != audiodef.DeviceSpeaker {
					in = audiodef.DeviceTTYHCOMic
				}
			case audiodef.TTYVCO:
				in = audiodef.DeviceTTYVCOMic
			}
		}
	}
	return in
}

// modifier returns the modifier carried by a logical device.
func (r *resolver) modifier(d audiodef.LogicalDevice) audiodef.Modifier {
	switch d {
	case audiodef.DeviceBTHeadset, audiodef.DeviceSpeakerAndBTHeadset:
		if r.hasVoice && r.call.BTWideband {
			return audiodef.ModifierBTSCORxWB
		}
		return audiodef.ModifierBTSCORxNB
	case audiodef.DeviceBTHeadsetMic, audiodef.DeviceBTNRECHeadsetMic:
		if r.hasVoice && r.call.BTWideband {
			return audiodef.ModifierBTSCOTxWB
		}
		return audiodef.ModifierBTSCOTxNB
	}
	return audiodef.ModifierNone
}

func (r *resolver) factoryUsage() audiodef.Usage {
	switch r.factory.Mode {
	case factory.ModeLoopback:
		switch r.factory.Loopback {
		case audiodef.LoopbackCodec:
			return audiodef.UsageLoopbackCodec
		case audiodef.LoopbackRealtime:
			return audiodef.UsageLoopbackRealtime
		case audiodef.LoopbackPacketNoDelay:
			return audiodef.UsageLoopbackNoDelay
		default:
			return audiodef.UsageLoopback
		}
	case factory.ModeRMS:
		return audiodef.UsageRMS
	}
	return audiodef.UsageNone
}

func bandUsage(b audiodef.Band, nb, wb, swb audiodef.Usage) audiodef.Usage {
	switch b {
	case audiodef.BandSWB:
		return swb
	case audiodef.BandWB:
		return wb
	default:
		return nb
	}
}

// callUsage is the usage of a modem call.
func (r *resolver) callUsage() audiodef.Usage {
	if !r.hasVoice {
		return audiodef.UsageNone
	}
	switch {
	case r.call.TTY != audiodef.TTYOff:
		return audiodef.UsageTTY
	case r.incallMusicOn:
		return audiodef.UsageInCallMusic
	case r.call.VoLTE == audiodef.VoLTEVoice:
		return bandUsage(r.call.Band, audiodef.UsageVoLTECallNB,
			audiodef.UsageVoLTECallWB, audiodef.UsageVoLTECallSWB)
	case r.call.VoLTE == audiodef.VoLTEVideo:
		return bandUsage(r.call.Band, audiodef.UsageVoLTEVTCallNB,
			audiodef.UsageVoLTEVTCallWB, audiodef.UsageVoLTEVTCallSWB)
	case r.call.Band == audiodef.BandWB:
		if r.call.HAC {
			return audiodef.UsageVoiceCallWBHAC
		}
		return audiodef.UsageVoiceCallWB
	default:
		if r.call.HAC {
			return audiodef.UsageVoiceCallNBHAC
		}
		return audiodef.UsageVoiceCallNB
	}
}

// voipUsage is the usage of a call carried by the application processor.
func (r *resolver) voipUsage() audiodef.Usage {
	switch {
	case r.hasVoice && r.call.CSVTCall:
		return audiodef.UsageVideoCall
	case r.hasVoice && r.call.WiFiCalling:
		if r.call.TTY != audiodef.TTYOff {
			return audiodef.UsageAPTTY
		}
		if r.primary.Has(audiodef.OutAllSCO) {
			if r.call.BTWideband {
				return audiodef.UsageWiFiCallWB
			}
			return audiodef.UsageWiFiCallNB
		}
		return bandUsage(r.call.VoWiFiBand, audiodef.UsageWiFiCallNB,
			audiodef.UsageWiFiCallWB, audiodef.UsageWiFiCallSWB)
	case r.hasActiveInput && r.activeInputSource == audiodef.SourceMic:
		return audiodef.UsageVoIPCall
	}
	return audiodef.UsageCommunication
}

// playbackUsage resolves the usage of a playback route. Call modes take
// priority over the usage declared by the stream.
func (r *resolver) playbackUsage(stream audiodef.Usage) audiodef.Usage {
	var u audiodef.Usage
	switch {
	case r.factory.Active():
		u = r.factoryUsage()
	case r.isCPCall():
		u = r.callUsage()
	case r.isAPCall():
		u = r.voipUsage()
	case r.fmOn && r.primary.Count() == 1:
		u = audiodef.UsageFMRadioTuner
	}
	if u == audiodef.UsageNone {
		u = stream
	}
	return u
}

// captureUsage resolves the usage of a capture route for a stream recording
// from src.
func (r *resolver) captureUsage(src audiodef.Source, stream audiodef.Usage) audiodef.Usage {
	u := audiodef.UsageRecording
	switch {
	case r.factory.Active():
		u = r.factoryUsage()
	case r.isCPCall():
		switch src {
		case audiodef.SourceVoiceUplink:
			u = audiodef.UsageInCallUplink
		case audiodef.SourceVoiceDownlink:
			u = audiodef.UsageInCallDownlink
		case audiodef.SourceVoiceCall:
			u = audiodef.UsageInCallUplinkDownlink
		}
	case r.isAPCall():
		u = r.voipUsage()
	case stream == audiodef.UsageFMRadioTuner:
		u = stream
	case src == audiodef.SourceCamcorder:
		u = audiodef.UsageCamcorder
	case src == audiodef.SourceVoiceRecognition:
		u = audiodef.UsageRecognition
	}
	if u == audiodef.UsageNone {
		u = stream
	}
	return u
}

// playbackDevice is the logical device of a playback route requested for
// devs.
func (r *resolver) playbackDevice(devs audiodef.Devices) audiodef.LogicalDevice {
	if r.factory.Active() {
		return r.deviceID(r.factory.OutDevices)
	}
	return r.deviceID(devs)
}

// captureDevice is the logical device of a capture route requested for
// devs.
func (r *resolver) captureDevice(devs audiodef.Devices) audiodef.LogicalDevice {
	if r.factory.Active() {
		return r.deviceID(r.factory.InDevices)
	}
	return r.deviceID(devs)
}

// drivenCaptureDevice is the capture device paired with a call driving
// output requesting devs.
func (r *resolver) drivenCaptureDevice(devs audiodef.Devices) audiodef.LogicalDevice {
	if r.factory.Active() {
		return r.deviceID(r.factory.InDevices)
	}
	return r.inDeviceFromOut(r.deviceID(devs))
}

// apcallSpeechParam is the speech enhancement profile of a VoIP call on
// device.
func (r *resolver) apcallSpeechParam(device audiodef.LogicalDevice) int {
	switch device {
	case audiodef.DeviceSpeaker:
		return 9
	case audiodef.DeviceHeadset, audiodef.DeviceSpeakerAndHeadset:
		return 11
	case audiodef.DeviceHeadphone, audiodef.DeviceSpeakerAndHeadphone:
		return 10
	case audiodef.DeviceLineOut, audiodef.DeviceSpeakerAndLineOut:
		return 12
	case audiodef.DeviceBTHeadset, audiodef.DeviceSpeakerAndBTHeadset:
		if r.hasVoice && r.call.BTNREC {
			return 6
		}
		return 7
	default:
		return 8
	}
}
