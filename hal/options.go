package hal

import (
	"time"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMuteWindow is the delay between the first write of a primary output
// entering VoIP speech enhancement and the mute burst that hides the
// reconfiguration.
const DefaultMuteWindow = 2 * time.Millisecond

type config struct {
	log        slog.Logger
	logBackend func(subsys string) slog.Logger
	backend    RouteBackend
	provider   TransportProvider
	newVoice   func() (CallSignaling, error)
	registerer prometheus.Registerer

	supportReceiver bool
	fmViaA2DP       bool
	muteWindow      time.Duration
}

func (c *config) logger(subsys string) slog.Logger {
	if c.logBackend != nil {
		return c.logBackend(subsys)
	}
	return c.log
}

// Option is a functional option for configuring a Device.
type Option func(c *config)

// WithLogger sets the logger used by every subsystem of the device, unless
// WithLogBackend is also used.
func WithLogger(log slog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithLogBackend sets a function that returns the logger for each
// subsystem (HAL, RTE, STRM and OFLD).
func WithLogBackend(f func(subsys string) slog.Logger) Option {
	return func(c *config) {
		c.logBackend = f
	}
}

// WithRouteBackend sets the mixer backend.
func WithRouteBackend(b RouteBackend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithTransportProvider sets the provider of stream transports.
func WithTransportProvider(p TransportProvider) Option {
	return func(c *config) {
		c.provider = p
	}
}

// WithCallSignaling sets the function that creates the voice call manager
// when the primary output is opened.
func WithCallSignaling(f func() (CallSignaling, error)) Option {
	return func(c *config) {
		c.newVoice = f
	}
}

// WithPrometheusRegisterer registers the device metrics on reg.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithSupportReceiver declares whether the device has an earpiece. Call
// routes to unknown devices fall back to the earpiece when it does.
func WithSupportReceiver(b bool) Option {
	return func(c *config) {
		c.supportReceiver = b
	}
}

// WithFMViaA2DP declares that FM radio is rendered by an external bluetooth
// sink.
func WithFMViaA2DP(b bool) Option {
	return func(c *config) {
		c.fmViaA2DP = b
	}
}

// WithMuteWindow sets the delay before the VoIP mute burst.
func WithMuteWindow(d time.Duration) Option {
	return func(c *config) {
		c.muteWindow = d
	}
}
