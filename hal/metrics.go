package hal

import (
	"sync/atomic"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats are the counters of a device since it was opened.
type Stats struct {
	Routes          uint64 `json:"routes"`
	Reroutes        uint64 `json:"reroutes"`
	Resets          uint64 `json:"resets"`
	Skips           uint64 `json:"skips"`
	Keeps           uint64 `json:"keeps"`
	BackendErrors   uint64 `json:"backend_errors"`
	TransportErrors uint64 `json:"transport_errors"`
	BytesWritten    uint64 `json:"bytes_written"`
	BytesRead       uint64 `json:"bytes_read"`
}

// metrics holds the device counters. The prometheus collectors are only
// created when a registerer was provided.
type metrics struct {
	routes          atomic.Uint64
	reroutes        atomic.Uint64
	resets          atomic.Uint64
	skips           atomic.Uint64
	keeps           atomic.Uint64
	backendErrors   atomic.Uint64
	transportErrors atomic.Uint64
	bytesWritten    atomic.Uint64
	bytesRead       atomic.Uint64

	reg        prometheus.Registerer
	collectors []prometheus.Collector

	routeOps    *prometheus.CounterVec
	backendErrs prometheus.Counter
	xportErrs   prometheus.Counter
	openStreams *prometheus.GaugeVec
	offloadMsgs *prometheus.CounterVec
	transferred *prometheus.CounterVec
}

func newMetrics(id string, reg prometheus.Registerer) (m *metrics, err error) {
	m = &metrics{}
	if reg == nil {
		return m, nil
	}

	// promauto panics on registration errors.
	defer func() {
		if r := recover(); r != nil {
			m.unregister()
			if rerr, ok := r.(error); ok {
				err = rerr
				return
			}
			panic(r)
		}
	}()

	labels := prometheus.Labels{"device": id}
	f := promauto.With(registerTracker{reg: reg, m: m})
	m.reg = reg
	m.routeOps = f.NewCounterVec(prometheus.CounterOpts{
		Name:        "audiohal_route_operations",
		Help:        "Count of route state machine operations by direction and outcome",
		ConstLabels: labels,
	}, []string{"direction", "op"})
	m.backendErrs = f.NewCounter(prometheus.CounterOpts{
		Name:        "audiohal_backend_errors",
		Help:        "Count of failed route backend calls",
		ConstLabels: labels,
	})
	m.xportErrs = f.NewCounter(prometheus.CounterOpts{
		Name:        "audiohal_transport_errors",
		Help:        "Count of failed stream transport calls",
		ConstLabels: labels,
	})
	m.openStreams = f.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "audiohal_open_streams",
		Help:        "Number of open streams by direction",
		ConstLabels: labels,
	}, []string{"direction"})
	m.offloadMsgs = f.NewCounterVec(prometheus.CounterOpts{
		Name:        "audiohal_offload_messages",
		Help:        "Count of messages processed by offload workers",
		ConstLabels: labels,
	}, []string{"msg"})
	m.transferred = f.NewCounterVec(prometheus.CounterOpts{
		Name:        "audiohal_transferred_bytes",
		Help:        "Total bytes written to playback and read from capture streams",
		ConstLabels: labels,
	}, []string{"direction"})
	return m, nil
}

// registerTracker records the collectors registered through it, so they can
// be unregistered when the device is closed.
type registerTracker struct {
	reg prometheus.Registerer
	m   *metrics
}

func (t registerTracker) Register(c prometheus.Collector) error {
	if err := t.reg.Register(c); err != nil {
		return err
	}
	t.m.collectors = append(t.m.collectors, c)
	return nil
}

func (t registerTracker) MustRegister(cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := t.Register(c); err != nil {
			panic(err)
		}
	}
}

func (t registerTracker) Unregister(c prometheus.Collector) bool {
	return t.reg.Unregister(c)
}

func (m *metrics) unregister() {
	if m == nil || m.reg == nil {
		return
	}
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
	m.collectors = nil
}

func (m *metrics) routeOp(dir audiodef.Direction, op string) {
	if m == nil {
		return
	}
	switch op {
	case "route":
		m.routes.Add(1)
	case "reroute":
		m.reroutes.Add(1)
	case "reset":
		m.resets.Add(1)
	case "skip":
		m.skips.Add(1)
	case "keep":
		m.keeps.Add(1)
	}
	if m.routeOps != nil {
		m.routeOps.WithLabelValues(dir.String(), op).Inc()
	}
}

func (m *metrics) backendError() {
	if m == nil {
		return
	}
	m.backendErrors.Add(1)
	if m.backendErrs != nil {
		m.backendErrs.Inc()
	}
}

func (m *metrics) transportError() {
	if m == nil {
		return
	}
	m.transportErrors.Add(1)
	if m.xportErrs != nil {
		m.xportErrs.Inc()
	}
}

func (m *metrics) streamOpened(dir audiodef.Direction) {
	if m != nil && m.openStreams != nil {
		m.openStreams.WithLabelValues(dir.String()).Inc()
	}
}

func (m *metrics) streamClosed(dir audiodef.Direction) {
	if m != nil && m.openStreams != nil {
		m.openStreams.WithLabelValues(dir.String()).Dec()
	}
}

func (m *metrics) offloadMsg(msg string) {
	if m != nil && m.offloadMsgs != nil {
		m.offloadMsgs.WithLabelValues(msg).Inc()
	}
}

func (m *metrics) transfer(dir audiodef.Direction, n int) {
	if m == nil || n <= 0 {
		return
	}
	if dir == audiodef.Playback {
		m.bytesWritten.Add(uint64(n))
	} else {
		m.bytesRead.Add(uint64(n))
	}
	if m.transferred != nil {
		m.transferred.WithLabelValues(dir.String()).Add(float64(n))
	}
}

func (m *metrics) stats() Stats {
	return Stats{
		Routes:          m.routes.Load(),
		Reroutes:        m.reroutes.Load(),
		Resets:          m.resets.Load(),
		Skips:           m.skips.Load(),
		Keeps:           m.keeps.Load(),
		BackendErrors:   m.backendErrors.Load(),
		TransportErrors: m.transportErrors.Load(),
		BytesWritten:    m.bytesWritten.Load(),
		BytesRead:       m.bytesRead.Load(),
	}
}

// Stats returns the device counters.
func (d *Device) Stats() Stats {
	return d.metrics.stats()
}
