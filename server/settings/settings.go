package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/vaughan0/go-ini"
	strduration "github.com/xhit/go-str2duration/v2"
)

const (
	// The following constants define daemon-related files and dirs.

	LockFilename      = "audiohald.lock"
	CardStateFilename = "card.state"
	MixerPathsFile    = "mixer_paths.toml"
)

// Settings is the collection of all audiohald settings. This is separated
// out in order to be able to reuse in various tests.
type Settings struct {
	// default section
	Root          string // root directory for audiohald
	LockFile      string // lock file guarding the audio hardware
	DeviceID      string // id of the audio device
	AudioPriority int    // nice value of the process, 0 to keep the current one

	// log section
	LogFile    string // log filename
	DebugLevel string // debug level config string
	Profiler   string // go profiler link

	// hal section
	MixerPaths      string        // mixer paths file
	MixerLiveReload bool          // reload the mixer paths file on changes
	CardStateFile   string        // control values restored across restarts
	SupportReceiver bool          // the device has an earpiece
	FMViaA2DP       bool          // FM radio is rendered by a bluetooth sink
	MuteWindow      time.Duration // delay of the VoIP mute burst
	VolumeSteps     int           // number of modem volume steps

	// rpc section
	RPCListen      []string
	RPCTokens      []string
	RPCIdleTimeout time.Duration

	// metrics section
	PromListen    string        // prometheus listen address, empty to disable
	StatsInterval time.Duration // interval of the stats log line, 0 to disable

	// audio section
	AudioDriver       string
	PlaybackDevice    string
	CaptureDevice     string
	Period            time.Duration
	Periods           int
	OffloadBufferSize int

	// Versioner is a function that returns the current app version.
	Versioner func() string

	// LogStdOut is the stdout to write the log to. Defaults to os.Stdout.
	LogStdOut io.Writer
}

var (
	errIniNotFound = errors.New("not found")
)

// New returns a default settings structure.
func New() *Settings {
	return &Settings{
		// default
		Root:          "~/.audiohald",
		LockFile:      "~/.audiohald/" + LockFilename,
		DeviceID:      "primary",
		AudioPriority: -11,

		// log
		LogFile:    "~/.audiohald/audiohald.log",
		DebugLevel: "info",

		// hal
		MixerPaths:      "~/.audiohald/" + MixerPathsFile,
		CardStateFile:   "~/.audiohald/" + CardStateFilename,
		SupportReceiver: true,
		MuteWindow:      2 * time.Millisecond,
		VolumeSteps:     5,

		// rpc
		RPCListen:      []string{"127.0.0.1:7878"},
		RPCIdleTimeout: time.Minute,

		// metrics
		StatsInterval: time.Minute,

		// audio
		Period:            20 * time.Millisecond,
		Periods:           4,
		OffloadBufferSize: 32 * 1024,

		Versioner: func() string { return "" },
		LogStdOut: os.Stdout,
	}
}

// Load retrieves settings from an ini file. Additionally it expands all ~ to
// the current user home directory.
func (s *Settings) Load(filename string) error {
	// parse file
	cfg, err := ini.LoadFile(filename)
	if err != nil {
		return err
	}

	get := func(s *string, section, field string) {
		v, ok := cfg.Get(section, field)
		if ok {
			*s = v
		}
	}

	// obtain current user for directory expansion
	usr, err := user.Current()
	if err != nil {
		return err
	}
	expand := func(s *string) {
		*s = strings.Replace(*s, "~", usr.HomeDir, 1)
	}

	// check runs the ini helpers, ignoring missing keys.
	var loadErr error
	check := func(err error) {
		if err != nil && !errors.Is(err, errIniNotFound) && loadErr == nil {
			loadErr = err
		}
	}

	get(&s.Root, "", "root")
	get(&s.LockFile, "", "lockfile")
	get(&s.DeviceID, "", "deviceid")
	check(iniInt(cfg, &s.AudioPriority, "", "audiopriority"))
	expand(&s.Root)
	expand(&s.LockFile)

	// logging and debug
	get(&s.LogFile, "log", "logfile")
	get(&s.DebugLevel, "log", "debuglevel")
	get(&s.Profiler, "log", "profiler")
	expand(&s.LogFile)

	get(&s.MixerPaths, "hal", "mixerpaths")
	get(&s.CardStateFile, "hal", "cardstate")
	expand(&s.MixerPaths)
	expand(&s.CardStateFile)
	check(iniBool(cfg, &s.MixerLiveReload, "hal", "livereload"))
	check(iniBool(cfg, &s.SupportReceiver, "hal", "supportreceiver"))
	check(iniBool(cfg, &s.FMViaA2DP, "hal", "fmviaa2dp"))
	check(iniDuration(cfg, &s.MuteWindow, "hal", "mutewindow"))
	check(iniInt(cfg, &s.VolumeSteps, "hal", "volumesteps"))

	check(iniList(cfg, &s.RPCListen, "rpc", "listen"))
	check(iniList(cfg, &s.RPCTokens, "rpc", "tokens"))
	check(iniDuration(cfg, &s.RPCIdleTimeout, "rpc", "idletimeout"))

	get(&s.PromListen, "metrics", "promlisten")
	check(iniDuration(cfg, &s.StatsInterval, "metrics", "statsinterval"))

	get(&s.AudioDriver, "audio", "driver")
	get(&s.PlaybackDevice, "audio", "playbackdevice")
	get(&s.CaptureDevice, "audio", "capturedevice")
	check(iniDuration(cfg, &s.Period, "audio", "period"))
	check(iniInt(cfg, &s.Periods, "audio", "periods"))
	check(iniInt(cfg, &s.OffloadBufferSize, "audio", "offloadbuffersize"))

	if loadErr != nil {
		return loadErr
	}
	return s.validate()
}

func (s *Settings) validate() error {
	if s.Period < time.Millisecond {
		return fmt.Errorf("[audio]period must be at least 1ms")
	}
	if s.Periods < 2 {
		return fmt.Errorf("[audio]periods must be at least 2")
	}
	if s.VolumeSteps < 1 {
		return fmt.Errorf("[hal]volumesteps must be positive")
	}
	if s.AudioPriority < -20 || s.AudioPriority > 19 {
		return fmt.Errorf("audiopriority must be between -20 and 19")
	}
	if len(s.RPCListen) == 0 {
		return fmt.Errorf("[rpc]listen must have at least one address")
	}
	return nil
}

func iniBool(cfg ini.File, p *bool, section, key string) error {
	v, ok := cfg.Get(section, key)
	if ok {
		switch strings.ToLower(v) {
		case "yes":
			*p = true
			return nil
		case "no":
			*p = false
			return nil
		default:
			return fmt.Errorf("[%v]%v must be yes or no",
				section, key)
		}
	}
	return errIniNotFound
}

func iniInt(cfg ini.File, p *int, section, key string) error {
	v, ok := cfg.Get(section, key)
	if !ok {
		return errIniNotFound
	}

	i64, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("[%v]%v: %w", section, key, err)
	}
	*p = int(i64)
	return nil
}

func iniDuration(cfg ini.File, p *time.Duration, section, key string) error {
	v, ok := cfg.Get(section, key)
	if !ok {
		return errIniNotFound
	}

	dur, err := strduration.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("[%v]%v: %w", section, key, err)
	}
	*p = dur
	return nil
}

// iniList reads a comma separated list. An empty value clears the list.
func iniList(cfg ini.File, p *[]string, section, key string) error {
	v, ok := cfg.Get(section, key)
	if !ok {
		return errIniNotFound
	}
	var res []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	*p = res
	return nil
}
