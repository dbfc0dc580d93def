package audiodef

// Usage is the semantic purpose of an audio path. It is the first half of
// every mixer path name.
type Usage int

const (
	UsageNone Usage = iota

	// Normal playback and capture usages.
	UsageMedia
	UsageRecording
	UsageCamcorder
	UsageRecognition
	UsageFMRadioTuner
	UsageFMRadioCapture

	// Call recording usages.
	UsageInCallUplink
	UsageInCallDownlink
	UsageInCallUplinkDownlink

	// CP (modem) centric call usages.
	UsageVoiceCallNB
	UsageVoiceCallNBHAC
	UsageVoiceCallWB
	UsageVoiceCallWBHAC
	UsageVoLTECallNB
	UsageVoLTECallWB
	UsageVoLTECallSWB
	UsageVoLTEVTCallNB
	UsageVoLTEVTCallWB
	UsageVoLTEVTCallSWB
	UsageTTY
	UsageInCallMusic

	// AP centric call usages.
	UsageCommunication
	UsageVoIPCall
	UsageVideoCall
	UsageWiFiCallNB
	UsageWiFiCallWB
	UsageWiFiCallSWB
	UsageAPTTY

	// Factory test usages.
	UsageLoopback
	UsageLoopbackCodec
	UsageLoopbackRealtime
	UsageLoopbackNoDelay
	UsageRMS

	usageCount
)

var usageNames = [usageCount]string{
	UsageNone:                 "none",
	UsageMedia:                "media",
	UsageRecording:            "recording",
	UsageCamcorder:            "camcorder",
	UsageRecognition:          "recognition",
	UsageFMRadioTuner:         "fm-radio",
	UsageFMRadioCapture:       "fm-radio-capture",
	UsageInCallUplink:         "incall-uplink",
	UsageInCallDownlink:       "incall-downlink",
	UsageInCallUplinkDownlink: "incall-uplink-downlink",
	UsageVoiceCallNB:          "incall-nb",
	UsageVoiceCallNBHAC:       "incall-nb-hac",
	UsageVoiceCallWB:          "incall-wb",
	UsageVoiceCallWBHAC:       "incall-wb-hac",
	UsageVoLTECallNB:          "volte-cp-nb",
	UsageVoLTECallWB:          "volte-cp-wb",
	UsageVoLTECallSWB:         "volte-cp-swb",
	UsageVoLTEVTCallNB:        "volte-vt-cp-nb",
	UsageVoLTEVTCallWB:        "volte-vt-cp-wb",
	UsageVoLTEVTCallSWB:       "volte-vt-cp-swb",
	UsageTTY:                  "tty",
	UsageInCallMusic:          "incall-music",
	UsageCommunication:        "communication",
	UsageVoIPCall:             "voip-call",
	UsageVideoCall:            "video-call",
	UsageWiFiCallNB:           "wificall-nb",
	UsageWiFiCallWB:           "wificall-wb",
	UsageWiFiCallSWB:          "wificall-swb",
	UsageAPTTY:                "ap-tty",
	UsageLoopback:             "loopback-packet",
	UsageLoopbackCodec:        "loopback-codec",
	UsageLoopbackRealtime:     "loopback-realtime",
	UsageLoopbackNoDelay:      "loopback-nodelay",
	UsageRMS:                  "rms",
}

// String returns the mixer path prefix for the usage.
func (u Usage) String() string {
	if u < 0 || u >= usageCount {
		return "unknown"
	}
	return usageNames[u]
}

// IsCPCall returns true for usages that carry a modem centric call.
func (u Usage) IsCPCall() bool {
	return u >= UsageVoiceCallNB && u <= UsageInCallMusic
}

// IsAPCall returns true for usages that carry an application processor
// centric (VoIP) call.
func (u Usage) IsAPCall() bool {
	return u >= UsageCommunication && u <= UsageAPTTY
}

// IsFactory returns true for factory test usages.
func (u Usage) IsFactory() bool {
	return u >= UsageLoopback && u <= UsageRMS
}

// Modifier is the secondary configuration axis layered on an active route.
type Modifier int

const (
	ModifierNone Modifier = iota
	ModifierBTSCORxNB
	ModifierBTSCORxWB
	ModifierBTSCOTxNB
	ModifierBTSCOTxWB
)

func (m Modifier) String() string {
	switch m {
	case ModifierNone:
		return "none"
	case ModifierBTSCORxNB:
		return "bt-sco-rx-nb"
	case ModifierBTSCORxWB:
		return "bt-sco-rx-wb"
	case ModifierBTSCOTxNB:
		return "bt-sco-tx-nb"
	case ModifierBTSCOTxWB:
		return "bt-sco-tx-wb"
	default:
		return "unknown"
	}
}

// IsRx is true for playback side modifiers.
func (m Modifier) IsRx() bool {
	return m == ModifierBTSCORxNB || m == ModifierBTSCORxWB
}

// IsTx is true for capture side modifiers.
func (m Modifier) IsTx() bool {
	return m == ModifierBTSCOTxNB || m == ModifierBTSCOTxWB
}
