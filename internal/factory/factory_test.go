package factory

import (
	"testing"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/strparms"
	"github.com/companyzero/audiohal/internal/testutils"
)

func kinds(actions []Action) []ActionKind {
	var res []ActionKind
	for _, a := range actions {
		res = append(res, a.Kind)
	}
	return res
}

func TestLoopbackSequence(t *testing.T) {
	m := New(testutils.TestLoggerSys(t, "FCTY"))

	p := strparms.Parse("factory_test_type=realtime;factory_test_loopback=on;factory_test_path=bt_bt")
	actions := m.SetParameters(p)
	assert.DeepEqual(t, p.Len(), 0)
	assert.DeepEqual(t, kinds(actions), []ActionKind{ActionLoopbackStart, ActionLoopbackPath})

	st := m.State()
	assert.BoolIs(t, st.IsLoopback(), true)
	assert.BoolIs(t, st.IsBTRealtimeLoopback(), true)
	assert.DeepEqual(t, st.OutDevices, audiodef.OutBTSCOHeadset)

	actions = m.SetParameters(strparms.Parse("factory_test_loopback=off"))
	assert.DeepEqual(t, kinds(actions), []ActionKind{ActionLoopbackStop})
	assert.DeepEqual(t, actions[0].Loopback, audiodef.LoopbackRealtime)

	st = m.State()
	assert.BoolIs(t, st.Active(), false)
	assert.DeepEqual(t, st.Loopback, audiodef.LoopbackOff)
	assert.DeepEqual(t, st.InDevices, audiodef.DevicesNone)
}

func TestLoopbackPaths(t *testing.T) {
	tests := []struct {
		path    string
		out, in audiodef.Devices
	}{
		{"ear_ear", audiodef.OutWiredHeadset, audiodef.InWiredHeadset},
		{"mic2_spk", audiodef.OutSpeaker, audiodef.InBackMic},
		{"mic1_rcv", audiodef.OutEarpiece, audiodef.InBuiltinMic},
		{"mic2_ear", audiodef.OutWiredHeadset, audiodef.InBackMic},
		{"whatever", audiodef.OutEarpiece, audiodef.InBuiltinMic},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.path, func(t *testing.T) {
			m := New(nil)
			m.SetParameters(strparms.Parse(KeyTestPath + "=" + tc.path))
			st := m.State()
			assert.DeepEqual(t, st.OutDevices, tc.out)
			assert.DeepEqual(t, st.InDevices, tc.in)
		})
	}
}

// TestForceRouteDuringRMS verifies a forced route does not override the RMS
// mode while the RMS test is enabled.
func TestForceRouteDuringRMS(t *testing.T) {
	m := New(nil)
	m.SetParameters(strparms.Parse("factory_test_rms=on"))
	m.SetParameters(strparms.Parse("factory_test_route=spk"))
	st := m.State()
	assert.DeepEqual(t, st.Mode, ModeRMS)
	assert.DeepEqual(t, st.OutDevices, audiodef.OutSpeaker)

	m.SetParameters(strparms.Parse("factory_test_rms=sub"))
	assert.DeepEqual(t, m.State().InDevices, audiodef.InBackMic)

	m.SetParameters(strparms.Parse("factory_test_rms=off"))
	m.SetParameters(strparms.Parse("factory_test_route=ear"))
	assert.DeepEqual(t, m.State().Mode, ModeForceRoute)

	m.SetParameters(strparms.Parse("factory_test_route=off"))
	st = m.State()
	assert.DeepEqual(t, st.Mode, ModeNone)
	assert.DeepEqual(t, st.OutDevices, audiodef.DevicesNone)
}
