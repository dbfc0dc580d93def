//go:build cgo && !noaudio

package audio

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"strconv"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/gopus"
	"github.com/decred/slog"

	"github.com/gen2brain/malgo"
)

// toMalgoDeviceId converts a device id to a malgo device id.
func (id DeviceID) toMalgoDeviceId() malgo.DeviceID {
	var res malgo.DeviceID
	if runtime.GOOS == "android" {
		i, err := strconv.ParseInt(string(id), 10, 32)
		if err == nil {
			binary.LittleEndian.PutUint32(res[:], uint32(i))
		}

	} else {
		copy(res[:], id)
	}
	return res
}

func init() {
	newAudioContext = newMalgoContext
	newEncoder = func(sampleRate, channels int) (streamEncoder, error) {
		return gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	}
	newDecoder = func(sampleRate, channels int) (streamDecoder, error) {
		return gopus.NewDecoder(sampleRate, channels)
	}
}

func toMalgoFormat(f audiodef.Format) (malgo.FormatType, error) {
	switch f {
	case audiodef.FormatDefault:
		return malgo.FormatUnknown, nil
	case audiodef.FormatPCM16:
		return malgo.FormatS16, nil
	case audiodef.FormatPCM24Packed:
		return malgo.FormatS24, nil
	case audiodef.FormatPCM32:
		return malgo.FormatS32, nil
	case audiodef.FormatPCMFloat:
		return malgo.FormatF32, nil
	default:
		return 0, fmt.Errorf("%w: format %s", errUnsupportedConfig, f)
	}
}

func fromMalgoFormat(f malgo.FormatType) audiodef.Format {
	switch f {
	case malgo.FormatS24:
		return audiodef.FormatPCM24Packed
	case malgo.FormatS32:
		return audiodef.FormatPCM32
	case malgo.FormatF32:
		return audiodef.FormatPCMFloat
	default:
		return audiodef.FormatPCM16
	}
}

func listMalgoDevices(typ malgo.DeviceType, malgoCtx *malgo.AllocatedContext, log slog.Logger) ([]HardwareDevice, error) {
	devices, err := malgoCtx.Devices(typ)
	if err != nil {
		return nil, err
	}

	res := make([]HardwareDevice, 0, len(devices))
	setIds := make(map[DeviceID]struct{}, len(devices))
	for _, dev := range devices {
		full, err := malgoCtx.DeviceInfo(typ, dev.ID, malgo.Shared)
		if err != nil {
			log.Warnf("Unable to get audio device info: %v", err)
			continue
		}

		id := DeviceID(string(append([]byte(nil), full.ID[:]...)))
		if _, ok := setIds[id]; ok {
			continue
		}
		setIds[id] = struct{}{}

		res = append(res, HardwareDevice{
			ID:        id,
			Name:      full.Name(),
			IsDefault: full.IsDefault == 1,
		})
	}

	return res, nil
}

// ListDevices lists the hardware devices of the host.
func ListDevices(log slog.Logger) (HardwareDevices, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return HardwareDevices{}, err
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	playbackDevs, err := listMalgoDevices(malgo.Playback, malgoCtx, log)
	if err != nil {
		return HardwareDevices{}, err
	}
	captureDevs, err := listMalgoDevices(malgo.Capture, malgoCtx, log)
	if err != nil {
		return HardwareDevices{}, err
	}

	return HardwareDevices{
		Playback: playbackDevs,
		Capture:  captureDevs,
	}, nil
}

// malgoContext is an implementation of audioContext which offloads the
// work to the malgo library.
type malgoContext struct {
	malgoCtx *malgo.AllocatedContext
}

// emptyDeviceID is an empty malgo device id.
var emptyDeviceID malgo.DeviceID

func newMalgoContext() (audioContext, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	return &malgoContext{malgoCtx: malgoCtx}, nil
}

func (mpc *malgoContext) name() string {
	return "malgo"
}

func (mpc *malgoContext) free() error {
	if err := mpc.malgoCtx.Uninit(); err != nil {
		return err
	}
	mpc.malgoCtx.Free()
	return nil
}

func (mpc *malgoContext) deviceConfig(typ malgo.DeviceType, c hwConfig) (malgo.DeviceConfig, error) {
	format, err := toMalgoFormat(c.cfg.Format)
	if err != nil {
		return malgo.DeviceConfig{}, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(typ)
	deviceConfig.SampleRate = c.cfg.SampleRate
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.period.Milliseconds())
	deviceConfig.Alsa.NoMMap = 1

	sub := &deviceConfig.Playback
	if typ == malgo.Capture {
		sub = &deviceConfig.Capture
	}
	sub.Format = format
	sub.Channels = uint32(c.cfg.Channels)
	if malgoDeviceID := c.id.toMalgoDeviceId(); malgoDeviceID != emptyDeviceID {
		sub.DeviceID = malgoDeviceID.Pointer()
	}
	return deviceConfig, nil
}

// initPlayback is part of the audioContext interface.
func (mpc *malgoContext) initPlayback(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	deviceConfig, err := mpc.deviceConfig(malgo.Playback, c)
	if err != nil {
		return nil, audiodef.Config{}, err
	}
	callbacks := malgo.DeviceCallbacks{Data: malgo.DataProc(cb)}
	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, audiodef.Config{}, err
	}
	actual := audiodef.Config{
		SampleRate: device.SampleRate(),
		Channels:   int(device.PlaybackChannels()),
		Format:     fromMalgoFormat(device.PlaybackFormat()),
	}
	return device, actual, nil
}

// initCapture is part of the audioContext interface.
func (mpc *malgoContext) initCapture(c hwConfig, cb dataProc) (hwDevice, audiodef.Config, error) {
	deviceConfig, err := mpc.deviceConfig(malgo.Capture, c)
	if err != nil {
		return nil, audiodef.Config{}, err
	}
	callbacks := malgo.DeviceCallbacks{Data: malgo.DataProc(cb)}
	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, audiodef.Config{}, err
	}
	actual := audiodef.Config{
		SampleRate: device.SampleRate(),
		Channels:   int(device.CaptureChannels()),
		Format:     fromMalgoFormat(device.CaptureFormat()),
	}
	return device, actual, nil
}
