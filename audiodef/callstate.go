package audiodef

import "fmt"

// TTYMode of a teletype call.
type TTYMode int

const (
	TTYOff TTYMode = iota
	TTYVCO
	TTYHCO
	TTYFull
)

func (m TTYMode) String() string {
	switch m {
	case TTYOff:
		return "tty_off"
	case TTYVCO:
		return "tty_vco"
	case TTYHCO:
		return "tty_hco"
	case TTYFull:
		return "tty_full"
	default:
		return fmt.Sprintf("tty(%d)", int(m))
	}
}

// Band is the negotiated voice bandwidth.
type Band int

const (
	BandNB Band = iota
	BandWB
	BandSWB
)

func (b Band) String() string {
	switch b {
	case BandWB:
		return "wb"
	case BandSWB:
		return "swb"
	default:
		return "nb"
	}
}

// VoLTEStatus is the state of an LTE call.
type VoLTEStatus int

const (
	VoLTEOff VoLTEStatus = iota
	VoLTEVoice
	VoLTEVideo
)

func (v VoLTEStatus) String() string {
	switch v {
	case VoLTEVoice:
		return "voice"
	case VoLTEVideo:
		return "video"
	default:
		return "off"
	}
}

// CallState is a snapshot of the call signaling state used to refine usage,
// device and modifier resolution.
type CallState struct {
	CallMode       bool        `json:"call_mode"`
	CallActive     bool        `json:"call_active"`
	RealCall       bool        `json:"real_call"`
	TTY            TTYMode     `json:"tty"`
	HAC            bool        `json:"hac"`
	VoLTE          VoLTEStatus `json:"volte"`
	Band           Band        `json:"band"`
	BTWideband     bool        `json:"bt_wideband"`
	BTNREC         bool        `json:"bt_nrec"`
	CallForwarding bool        `json:"call_forwarding"`
	CSVTCall       bool        `json:"csvt_call"`
	WiFiCalling    bool        `json:"wifi_calling"`
	VoWiFiBand     Band        `json:"vowifi_band"`
	ExtraVolume    bool        `json:"extra_volume"`
	MuteVoice      bool        `json:"mute_voice"`
}

// LoopbackMode is the factory loopback test variant.
type LoopbackMode int

const (
	LoopbackOff LoopbackMode = iota
	LoopbackPacket
	LoopbackCodec
	LoopbackRealtime
	LoopbackPCM
	LoopbackPacketNoDelay
)

func (m LoopbackMode) String() string {
	switch m {
	case LoopbackOff:
		return "off"
	case LoopbackPacket:
		return "packet"
	case LoopbackCodec:
		return "codec"
	case LoopbackRealtime:
		return "realtime"
	case LoopbackPCM:
		return "pcm"
	case LoopbackPacketNoDelay:
		return "packet_nodelay"
	default:
		return fmt.Sprintf("loopback(%d)", int(m))
	}
}
