package main

import (
	"context"
	"fmt"
	"os"

	"github.com/companyzero/audiohal/halrpc"
)

const volumeStep = 0.1

// volCtl adjusts the device from single key presses.
type volCtl struct {
	c      *halrpc.Client
	env    *cmdEnv
	volume float32
	mute   bool
}

// processInput handles one key. It returns true when the user asked to quit.
func (ctl *volCtl) processInput(ctx context.Context, in byte) (bool, error) {
	switch in {
	case '+', '=':
		ctl.volume = min(ctl.volume+volumeStep, 1)
	case '-', '_':
		ctl.volume = max(ctl.volume-volumeStep, 0)
	case 'm', 'M':
		if err := ctl.c.SetMicMute(ctx, !ctl.mute); err != nil {
			return false, err
		}
		ctl.mute = !ctl.mute
		fmt.Fprintf(ctl.env.out, "\rmic mute %-5v", ctl.mute)
		return false, nil
	case 'q', 'Q', 0x03, 0x04:
		return true, nil
	default:
		return false, nil
	}
	if err := ctl.c.SetVoiceVolume(ctx, ctl.volume); err != nil {
		return false, err
	}
	fmt.Fprintf(ctl.env.out, "\rvoice volume %.1f", ctl.volume)
	return false, nil
}

func (ctl *volCtl) run(ctx context.Context) error {
	b := make([]byte, 1)
	stdin := os.Stdin

	readChan := make(chan int, 1)
	errChan := make(chan error, 1)
	readNext := func() {
		n, err := stdin.Read(b)
		if err != nil {
			errChan <- err
		} else {
			readChan <- n
		}
	}

	for ctx.Err() == nil {
		go readNext()
		select {
		case n := <-readChan:
			if n == 0 {
				continue
			}
			quit, err := ctl.processInput(ctx, b[0])
			if err != nil || quit {
				return err
			}

		case err := <-errChan:
			return err
		case <-ctx.Done():
			return nil
		}
	}

	return nil
}

func cmdVol(ctx context.Context, env *cmdEnv, c *halrpc.Client, args []string) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	ctl := &volCtl{c: c, env: env, volume: 1, mute: st.Device.MicMute}

	oldTermios, err := makeRaw(os.Stdin)
	if err != nil {
		return fmt.Errorf("unable to make terminal raw: %w", err)
	}
	defer func() {
		restoreTerminal(os.Stdin, oldTermios)
		fmt.Fprintln(env.out)
	}()

	fmt.Fprintf(env.out, "+/- voice volume, m toggles mic mute, q quits\n")
	return ctl.run(ctx)
}
