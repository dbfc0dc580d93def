package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/companyzero/audiohal/halrpc"
	"github.com/decred/slog"
)

func realMain() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	log := slog.NewBackend(os.Stderr).Logger("HCTL")
	if cfg.Debug {
		log.SetLevel(slog.LevelDebug)
	} else {
		log.SetLevel(slog.LevelWarn)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	env := &cmdEnv{
		cfg: cfg,
		out: os.Stdout,
		log: log,
		dial: func(ctx context.Context) (*halrpc.Client, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			return halrpc.Dial(ctx, cfg.URL, cfg.Token)
		},
	}
	return runCommand(ctx, env, cfg.Args)
}

func main() {
	err := realMain()
	if err != nil && !errors.Is(err, errCmdDone) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
