package halrpc

import (
	"net"
	"time"

	"github.com/companyzero/audiohal/internal/audio"
	"github.com/decred/slog"
)

type config struct {
	tokens          map[string]struct{}
	listeners       []net.Listener
	log             slog.Logger
	version         string
	transportStatus func() audio.Status
	mixerStatus     func() (paths, modifiers []string)
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	maxMsgSize      int64
	maxReadSize     int
}

// Option is a functional option for configuring the RPC server.
type Option func(c *config)

// WithTokens sets the bearer tokens accepted by the server. When no token
// is set, every client is accepted.
func WithTokens(tokens map[string]struct{}) Option {
	return func(c *config) {
		c.tokens = tokens
	}
}

// WithListeners sets the listeners to serve on.
func WithListeners(listeners []net.Listener) Option {
	return func(c *config) {
		c.listeners = listeners
	}
}

// WithLogger sets the logger for the configuration.
func WithLogger(log slog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithVersion sets the version reported by the status method.
func WithVersion(v string) Option {
	return func(c *config) {
		c.version = v
	}
}

// WithTransportStatus sets the function used to fill the transport section
// of the status reply.
func WithTransportStatus(f func() audio.Status) Option {
	return func(c *config) {
		c.transportStatus = f
	}
}

// WithMixerStatus sets the function used to fill the mixer section of the
// status reply.
func WithMixerStatus(f func() (paths, modifiers []string)) Option {
	return func(c *config) {
		c.mixerStatus = f
	}
}

// WithIdleTimeout sets how long a connection may stay without any request
// or ping.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) {
		c.idleTimeout = d
	}
}
