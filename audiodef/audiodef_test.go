package audiodef

import (
	"testing"

	"github.com/companyzero/audiohal/internal/assert"
)

func TestDevicesString(t *testing.T) {
	tests := []struct {
		d    Devices
		want string
	}{
		{DevicesNone, "none"},
		{OutSpeaker, "speaker"},
		{OutSpeaker | OutWiredHeadset, "speaker|wired_headset"},
		{InBuiltinMic, "builtin_mic"},
		{InBuiltinMic | InBackMic, "builtin_mic|back_mic"},
		{OutSpeaker | 0x800000, "speaker|0x800000"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.want, func(t *testing.T) {
			assert.DeepEqual(t, tc.d.String(), tc.want)
		})
	}
}

func TestDevicesClassification(t *testing.T) {
	assert.BoolIs(t, OutSpeaker.IsInput(), false)
	assert.BoolIs(t, InBuiltinMic.IsInput(), true)
	assert.BoolIs(t, BitIn.IsInput(), false)
	assert.DeepEqual(t, InBuiltinMic.Count(), 2)
	assert.DeepEqual(t, (OutSpeaker | OutBTSCOHeadset).Count(), 2)
	assert.BoolIs(t, (OutSpeaker | OutBTSCOHeadset).Has(OutAllSCO), true)
}

func TestParseDevices(t *testing.T) {
	d, err := ParseDevices("0x2")
	assert.NilErr(t, err)
	assert.DeepEqual(t, d, OutSpeaker)

	d, err = ParseDevices("2147483652")
	assert.NilErr(t, err)
	assert.DeepEqual(t, d, InBuiltinMic)

	_, err = ParseDevices("speaker")
	assert.NonNilErr(t, err)
}

func TestUsageRanges(t *testing.T) {
	for u := UsageNone; u < usageCount; u++ {
		n := 0
		if u.IsCPCall() {
			n++
		}
		if u.IsAPCall() {
			n++
		}
		if u.IsFactory() {
			n++
		}
		if n > 1 {
			t.Fatalf("usage %s belongs to %d classes", u, n)
		}
		if u.String() == "unknown" || u.String() == "" {
			t.Fatalf("usage %d has no name", int(u))
		}
	}
	assert.BoolIs(t, UsageInCallMusic.IsCPCall(), true)
	assert.BoolIs(t, UsageAPTTY.IsAPCall(), true)
	assert.BoolIs(t, UsageMedia.IsCPCall(), false)
}

func TestParseAudioMode(t *testing.T) {
	for m := ModeNormal; m <= ModeInCommunication; m++ {
		got, err := ParseAudioMode(m.String())
		assert.NilErr(t, err)
		assert.DeepEqual(t, got, m)
	}
	_, err := ParseAudioMode("bogus")
	assert.NonNilErr(t, err)
}
