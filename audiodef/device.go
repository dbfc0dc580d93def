package audiodef

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// LogicalDevice identifies what physically carries a signal. It is the
// vocabulary understood by the route backend, as opposed to the raw Devices
// bitmask reported by the runtime.
type LogicalDevice int

const (
	DeviceNone LogicalDevice = iota

	// Output devices.
	DeviceEarpiece
	DeviceSpeaker
	DeviceHeadset
	DeviceHeadphone
	DeviceBTHeadset
	DeviceSpeakerAndHeadset
	DeviceSpeakerAndHeadphone
	DeviceSpeakerAndBTHeadset
	DeviceSpeakerAndLineOut
	DeviceAuxDigital
	DeviceUSBHeadset
	DeviceLineOut
	DeviceCallForwarding
	DeviceFMExternal

	// Input devices.
	DeviceMainMic
	DeviceSubMic
	DeviceHandsetMic
	DeviceSpeakerMic
	DeviceHeadsetMic
	DeviceHeadphoneMic
	DeviceBTHeadsetMic
	DeviceBTNRECHeadsetMic
	DeviceUSBHeadsetMic
	DeviceLineOutMic
	DeviceTTYFullMic
	DeviceTTYHCOMic
	DeviceTTYVCOMic
	DeviceFMTuner

	deviceCount
)

var deviceNames = [deviceCount]string{
	DeviceNone:                "none",
	DeviceEarpiece:            "handset",
	DeviceSpeaker:             "speaker",
	DeviceHeadset:             "headset",
	DeviceHeadphone:           "headphone",
	DeviceBTHeadset:           "bt-sco-headset",
	DeviceSpeakerAndHeadset:   "speaker-headset",
	DeviceSpeakerAndHeadphone: "speaker-headphone",
	DeviceSpeakerAndBTHeadset: "speaker-bt-sco-headset",
	DeviceSpeakerAndLineOut:   "speaker-lineout",
	DeviceAuxDigital:          "aux-digital",
	DeviceUSBHeadset:          "usb-headset",
	DeviceLineOut:             "lineout",
	DeviceCallForwarding:      "call-forwarding",
	DeviceFMExternal:          "fm-external",
	DeviceMainMic:             "main-mic",
	DeviceSubMic:              "sub-mic",
	DeviceHandsetMic:          "handset-mic",
	DeviceSpeakerMic:          "speaker-mic",
	DeviceHeadsetMic:          "headset-mic",
	DeviceHeadphoneMic:        "headphone-mic",
	DeviceBTHeadsetMic:        "bt-sco-mic",
	DeviceBTNRECHeadsetMic:    "bt-sco-nrec-mic",
	DeviceUSBHeadsetMic:       "usb-headset-mic",
	DeviceLineOutMic:          "lineout-mic",
	DeviceTTYFullMic:          "tty-full-mic",
	DeviceTTYHCOMic:           "tty-hco-mic",
	DeviceTTYVCOMic:           "tty-vco-mic",
	DeviceFMTuner:             "fm-tuner",
}

// String returns the mixer path suffix for the device.
func (d LogicalDevice) String() string {
	if d < 0 || d >= deviceCount {
		return "unknown"
	}
	return deviceNames[d]
}

// IsInput returns true for capture side logical devices.
func (d LogicalDevice) IsInput() bool {
	return d >= DeviceMainMic && d < deviceCount
}

// Devices is the raw device bitmask used by the runtime. Input devices have
// BitIn set.
type Devices uint32

const (
	DevicesNone Devices = 0

	OutEarpiece       Devices = 0x1
	OutSpeaker        Devices = 0x2
	OutWiredHeadset   Devices = 0x4
	OutWiredHeadphone Devices = 0x8
	OutBTSCO          Devices = 0x10
	OutBTSCOHeadset   Devices = 0x20
	OutBTSCOCarkit    Devices = 0x40
	OutBTA2DP         Devices = 0x80
	OutBTA2DPHeadset  Devices = 0x100
	OutBTA2DPSpeaker  Devices = 0x200
	OutAuxDigital     Devices = 0x400
	OutUSBAccessory   Devices = 0x2000
	OutUSBDevice      Devices = 0x4000
	OutTelephonyTx    Devices = 0x10000
	OutLine           Devices = 0x20000
	OutUSBHeadset     Devices = 0x4000000

	OutAllSCO = OutBTSCO | OutBTSCOHeadset | OutBTSCOCarkit
	OutAllUSB = OutUSBAccessory | OutUSBDevice | OutUSBHeadset

	BitIn Devices = 0x80000000

	InBuiltinMic   = BitIn | 0x4
	InBTSCOHeadset = BitIn | 0x8
	InWiredHeadset = BitIn | 0x10
	InTelephonyRx  = BitIn | 0x40
	InBackMic      = BitIn | 0x80
	InUSBAccessory = BitIn | 0x800
	InUSBDevice    = BitIn | 0x1000
	InFMTuner      = BitIn | 0x2000
	InUSBHeadset   = BitIn | 0x2000000
	InDefault      = BitIn | 0x40000000
	InAllUSB       = InUSBAccessory | InUSBDevice | InUSBHeadset
)

var devicesNames = []struct {
	d    Devices
	name string
}{
	{OutEarpiece, "earpiece"},
	{OutSpeaker, "speaker"},
	{OutWiredHeadset, "wired_headset"},
	{OutWiredHeadphone, "wired_headphone"},
	{OutBTSCO, "bt_sco"},
	{OutBTSCOHeadset, "bt_sco_headset"},
	{OutBTSCOCarkit, "bt_sco_carkit"},
	{OutBTA2DP, "bt_a2dp"},
	{OutBTA2DPHeadset, "bt_a2dp_headphones"},
	{OutBTA2DPSpeaker, "bt_a2dp_speaker"},
	{OutAuxDigital, "aux_digital"},
	{OutUSBAccessory, "usb_accessory"},
	{OutUSBDevice, "usb_device"},
	{OutTelephonyTx, "telephony_tx"},
	{OutLine, "line"},
	{OutUSBHeadset, "usb_headset"},
}

var inDevicesNames = []struct {
	d    Devices
	name string
}{
	{InBuiltinMic, "builtin_mic"},
	{InBTSCOHeadset, "bt_sco_headset"},
	{InWiredHeadset, "wired_headset"},
	{InTelephonyRx, "telephony_rx"},
	{InBackMic, "back_mic"},
	{InUSBAccessory, "usb_accessory"},
	{InUSBDevice, "usb_device"},
	{InFMTuner, "fm_tuner"},
	{InUSBHeadset, "usb_headset"},
	{InDefault, "default"},
}

// IsInput returns true if the bitmask names capture devices.
func (d Devices) IsInput() bool {
	return d > BitIn
}

// Count returns the number of set bits, including BitIn for input masks.
func (d Devices) Count() int {
	return bits.OnesCount32(uint32(d))
}

// Has returns true if any bit of mask is set in d.
func (d Devices) Has(mask Devices) bool {
	return d&mask != 0
}

// String renders the bitmask as a '|' separated list of device names.
func (d Devices) String() string {
	if d == DevicesNone {
		return "none"
	}
	table := devicesNames
	rest := d
	if d&BitIn != 0 {
		table = inDevicesNames
		rest &^= BitIn
	}
	var parts []string
	for _, e := range table {
		b := e.d &^ BitIn
		if rest&b == b {
			parts = append(parts, e.name)
			rest &^= b
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	if len(parts) == 0 {
		return "in"
	}
	return strings.Join(parts, "|")
}

// ParseDevices parses a decimal or 0x prefixed hex bitmask as sent in a
// routing parameter.
func ParseDevices(s string) (Devices, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid device bitmask %q: %w", s, err)
	}
	return Devices(v), nil
}
