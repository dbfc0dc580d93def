package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/companyzero/audiohal/internal/version"
	"github.com/companyzero/audiohal/server"
)

func _main() error {
	// flags and settings
	cfg, err := ObtainSettings()
	if err != nil {
		return err
	}
	cfg.Versioner = version.String

	// Wait for termination signals.
	ctx, cancel := shutdownListener()
	defer cancel()

	// Init server.
	s, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	// Run server.
	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
