package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/halrpc"
	"github.com/companyzero/audiohal/internal/audio"
	"github.com/companyzero/audiohal/internal/version"
	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
)

// pcmConfig is the sample format of play and record.
var pcmConfig = audiodef.Config{
	SampleRate: 48000,
	Channels:   2,
	Format:     audiodef.FormatPCM16,
}

// chunkSize is 20ms of pcmConfig audio.
const chunkSize = 48000 / 50 * 2 * 2

var errUsage = errors.New("invalid arguments")

type cmdEnv struct {
	cfg *config
	out io.Writer
	log slog.Logger

	// dial connects to the daemon. Commands that run locally do not call
	// it.
	dial func(ctx context.Context) (*halrpc.Client, error)
}

// show prints v, dumping the whole reply in debug mode.
func (env *cmdEnv) show(format string, v interface{}) {
	if env.cfg.Debug {
		fmt.Fprint(env.out, spew.Sdump(v))
		return
	}
	fmt.Fprintf(env.out, format, v)
}

type command struct {
	name    string
	usage   string
	descr   string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error

	// local commands do not connect to the daemon.
	local bool
}

var commands = []command{{
	name:  "status",
	descr: "Show the state of the device",
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if env.cfg.Debug {
			fmt.Fprint(env.out, spew.Sdump(st))
			return nil
		}
		fmt.Fprintf(env.out, "Version: %s\n", st.Version)
		fmt.Fprintf(env.out, "Uptime: %s\n", time.Duration(st.Uptime)*time.Second)
		fmt.Fprintf(env.out, "Mode: %s\n", st.Device.Mode)
		fmt.Fprintf(env.out, "Mic mute: %v\n", st.Device.MicMute)
		fmt.Fprintf(env.out, "Open streams: %d\n", st.Streams)
		if st.Transport != nil {
			fmt.Fprintf(env.out, "Driver: %q (voice call %v, fm radio %v)\n",
				st.Transport.Driver, st.Transport.VoiceCall, st.Transport.FMRadio)
		}
		if st.Mixer != nil {
			fmt.Fprintf(env.out, "Mixer paths: %v\n", st.Mixer.Paths)
			fmt.Fprintf(env.out, "Mixer modifiers: %v\n", st.Mixer.Modifiers)
		}
		fmt.Fprintf(env.out, "Routes: %d (%d reroutes, %d resets)\n",
			st.Stats.Routes, st.Stats.Reroutes, st.Stats.Resets)
		fmt.Fprintf(env.out, "Written: %d bytes, read: %d bytes\n",
			st.Stats.BytesWritten, st.Stats.BytesRead)
		return nil
	},
}, {
	name:    "set",
	usage:   "<k=v;k2=v2>",
	descr:   "Set device parameters",
	minArgs: 1,
	maxArgs: 1,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		return c.SetParameters(ctx, args[0])
	},
}, {
	name:    "get",
	usage:   "<k;k2>",
	descr:   "Query device parameters",
	minArgs: 1,
	maxArgs: 1,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		kv, err := c.GetParameters(ctx, args[0])
		if err != nil {
			return err
		}
		env.show("%s\n", kv)
		return nil
	},
}, {
	name:    "mode",
	usage:   "<normal|ringtone|in_call|in_communication>",
	descr:   "Set the audio mode",
	minArgs: 1,
	maxArgs: 1,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		return c.SetMode(ctx, args[0])
	},
}, {
	name:    "volume",
	usage:   "<0.0-1.0>",
	descr:   "Set the voice call volume",
	minArgs: 1,
	maxArgs: 1,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		v, err := strconv.ParseFloat(args[0], 32)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return c.SetVoiceVolume(ctx, float32(v))
	},
}, {
	name:    "mute",
	usage:   "<on|off>",
	descr:   "Mute the microphone",
	minArgs: 1,
	maxArgs: 1,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		mute, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return c.SetMicMute(ctx, mute)
	},
}, {
	name:  "dump",
	descr: "Show the debug report of the device",
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		text, err := c.Dump(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(env.out, text)
		return nil
	},
}, {
	name:    "play",
	usage:   "<file|->",
	descr:   "Play raw 48kHz stereo s16le audio on the speaker",
	minArgs: 1,
	maxArgs: 1,
	run:     cmdPlay,
}, {
	name:    "record",
	usage:   "<seconds> <file.ogg>",
	descr:   "Record the main mic to an Ogg/Opus file",
	minArgs: 2,
	maxArgs: 2,
	run:     cmdRecord,
}, {
	name:  "vol",
	descr: "Adjust voice volume and mic mute interactively",
	run:   cmdVol,
}, {
	name:  "devices",
	descr: "List the audio devices of this host",
	local: true,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		devs, err := audio.ListDevices(env.log)
		if err != nil {
			return err
		}
		if env.cfg.Debug {
			fmt.Fprint(env.out, spew.Sdump(devs))
			return nil
		}
		printDevs := func(kind string, devs []audio.HardwareDevice) {
			fmt.Fprintf(env.out, "%s devices:\n", kind)
			for _, dev := range devs {
				def := ""
				if dev.IsDefault {
					def = " (default)"
				}
				fmt.Fprintf(env.out, "  %s%s\n    id: %s\n", dev.Name, def, dev.ID)
			}
		}
		printDevs("Playback", devs.Playback)
		printDevs("Capture", devs.Capture)
		return nil
	},
}, {
	name:  "version",
	descr: "Show the version of halctl",
	local: true,
	run: func(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
		fmt.Fprintf(env.out, "halctl %s\n", version.String())
		return nil
	},
}}

func findCommand(name string) (*command, error) {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i], nil
		}
	}
	return nil, fmt.Errorf("unknown command %q", name)
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not on or off", errUsage, s)
	}
}

// runCommand runs the command named by args[0].
func runCommand(ctx context.Context, env *cmdEnv, args []string) error {
	cmd, err := findCommand(args[0])
	if err != nil {
		return err
	}
	args = args[1:]
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		return fmt.Errorf("%w: usage: %s %s", errUsage, cmd.name, cmd.usage)
	}
	if cmd.local {
		return cmd.run(ctx, env, nil, args)
	}

	c, err := env.dial(ctx)
	if err != nil {
		return fmt.Errorf("unable to connect to daemon: %w", err)
	}
	defer c.Close()
	return cmd.run(ctx, env, c, args)
}

func cmdPlay(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out, err := c.OpenOutput(ctx, hal.OutputConfig{
		Devices: audiodef.OutSpeaker,
		Flags:   audiodef.OutputFlagDeepBuffer,
		Config:  pcmConfig,
	})
	if err != nil {
		return err
	}
	defer c.CloseStream(context.Background(), out.Stream)
	env.log.Debugf("Opened %s stream %d (latency %dms)", out.Kind, out.Stream, out.Latency)

	buf := make([]byte, chunkSize)
	var total int
	for {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			// Whole frames only.
			n -= n % 4
			if _, werr := c.Write(ctx, out.Stream, buf[:n]); werr != nil {
				return werr
			}
			total += n
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	dur := time.Duration(total/4) * time.Second / time.Duration(pcmConfig.SampleRate)
	fmt.Fprintf(env.out, "Played %d bytes (%s)\n", total, dur)
	return nil
}

func cmdRecord(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || secs <= 0 {
		return fmt.Errorf("%w: invalid duration %q", errUsage, args[0])
	}
	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	rec, err := audio.NewRecorder(f, pcmConfig, env.log)
	if err != nil {
		return err
	}

	in, err := c.OpenInput(ctx, hal.InputConfig{
		Devices: audiodef.InBuiltinMic,
		Source:  audiodef.SourceMic,
		Config:  pcmConfig,
	})
	if err != nil {
		return err
	}
	defer c.CloseStream(context.Background(), in.Stream)

	want := int(secs*float64(pcmConfig.SampleRate)) * 4
	for got := 0; got < want; {
		size := chunkSize
		if want-got < size {
			size = want - got
		}
		data, err := c.Read(ctx, in.Stream, size)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("capture stream returned no data")
		}
		if _, err := rec.Write(data); err != nil {
			return err
		}
		got += len(data)
	}
	if err := rec.Close(); err != nil {
		return err
	}
	info := rec.RecordInfo()
	env.show("Recorded %+v\n", info)
	return nil
}
