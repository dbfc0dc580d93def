// Copyright (c) 2015-2023 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

// interruptSignals defines the default signals to catch in order to do a proper
// shutdown. This may be modified during init depending on the platform.
var interruptSignals = []os.Signal{os.Interrupt}

// shutdownListener returns a context whose done channel will be closed when OS
// signals such as SIGINT (Ctrl+C) are received. The hardware is released by
// the deferred closes of the server, so repeated signals do not force an exit.
func shutdownListener() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		select {
		case sig := <-interruptChannel:
			fmt.Fprintf(os.Stderr, "Received signal (%s). Shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		for sig := range interruptChannel {
			fmt.Fprintf(os.Stderr, "Received signal (%s). Already shutting down...\n", sig)
		}
	}()

	return ctx, cancel
}
