package voice

import (
	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/strparms"
)

// Parameter keys understood by SetParameters.
const (
	KeyVoLTEStatus = "volte_status"
	KeyBTNREC      = "bt_headset_nrec"
	KeyBTWideband  = "bt_wbs"
	KeyTTYMode     = "tty_mode"
	KeyHAC         = "HACSetting"
	KeyRealCall    = "realcall"
	KeyCSVTCall    = "csvtcall"
	KeyWiFiCalling = "wificalling"
	KeyVoWiFiBand  = "vowifi_band"
	KeyVoiceBand   = "voice_band"
	KeyExtraVolume = "extra_volume"
)

func parseOnOff(v string) (on, ok bool) {
	switch v {
	case "on", "ON", "true":
		return true, true
	case "off", "OFF", "false":
		return false, true
	}
	return false, false
}

func parseBand(v string) (audiodef.Band, bool) {
	switch v {
	case "nb":
		return audiodef.BandNB, true
	case "wb":
		return audiodef.BandWB, true
	case "swb":
		return audiodef.BandSWB, true
	}
	return 0, false
}

// SetParameters consumes the call related keys of p. primary is the set of
// devices requested by the primary output, used to refresh the modem path
// when a bluetooth or HAC setting changes mid call. Handled keys are removed
// from p.
func (m *Manager) SetParameters(p *strparms.Params, primary audiodef.Devices) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if v, ok := p.Get(KeyVoLTEStatus); ok {
		switch v {
		case "voice":
			m.st.VoLTE = audiodef.VoLTEVoice
		case "video":
			m.st.VoLTE = audiodef.VoLTEVideo
		case "end":
			m.st.VoLTE = audiodef.VoLTEOff
		default:
			m.log.Warnf("Unknown %s value %q", KeyVoLTEStatus, v)
		}
		keep(m.ril.SetVoLTEState(m.st.VoLTE))
		p.Del(KeyVoLTEStatus)
	}

	if v, ok := p.Get(KeyBTNREC); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.BTNREC = on
		}
		p.Del(KeyBTNREC)
	}

	if v, ok := p.Get(KeyBTWideband); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.BTWideband = on
		}
		keep(m.ril.SetScoSolution(m.st.BTNREC, m.st.BTWideband))
		if m.status == statusActive && primary.Has(audiodef.OutAllSCO) {
			keep(m.setPath(primary))
		}
		p.Del(KeyBTWideband)
	}

	if v, ok := p.Get(KeyTTYMode); ok {
		mode := audiodef.TTYOff
		valid := true
		switch v {
		case "tty_off":
		case "tty_vco":
			mode = audiodef.TTYVCO
		case "tty_hco":
			mode = audiodef.TTYHCO
		case "tty_full":
			mode = audiodef.TTYFull
		default:
			valid = false
			m.log.Warnf("Unknown %s value %q", KeyTTYMode, v)
		}
		if valid {
			m.st.TTY = mode
			keep(m.ril.SetTTYMode(mode))
		}
		p.Del(KeyTTYMode)
	}

	if v, ok := p.Get(KeyHAC); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.HAC = on
			keep(m.ril.SetHACMode(on))
		}
		if m.status == statusActive && primary != audiodef.DevicesNone {
			keep(m.setPath(primary))
		}
		p.Del(KeyHAC)
	}

	if v, ok := p.Get(KeyRealCall); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.RealCall = on
			keep(m.ril.SetRealCall(on))
		}
		p.Del(KeyRealCall)
	}

	if v, ok := p.Get(KeyCSVTCall); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.CSVTCall = on
		}
		p.Del(KeyCSVTCall)
	}

	if v, ok := p.Get(KeyWiFiCalling); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.WiFiCalling = on
		}
		p.Del(KeyWiFiCalling)
	}

	if v, ok := p.Get(KeyVoWiFiBand); ok {
		if b, ok := parseBand(v); ok {
			m.st.VoWiFiBand = b
		}
		p.Del(KeyVoWiFiBand)
	}

	if v, ok := p.Get(KeyVoiceBand); ok {
		if b, ok := parseBand(v); ok {
			m.st.Band = b
		}
		p.Del(KeyVoiceBand)
	}

	if v, ok := p.Get(KeyExtraVolume); ok {
		if on, ok := parseOnOff(v); ok {
			m.st.ExtraVolume = on
			keep(m.ril.SetExtraVolume(on))
		}
		p.Del(KeyExtraVolume)
	}

	return firstErr
}
