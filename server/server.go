// Package server runs the audio HAL daemon: it owns the audio hardware,
// programs the mixer and exposes the device over the websocket API.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/halrpc"
	"github.com/companyzero/audiohal/internal/audio"
	"github.com/companyzero/audiohal/internal/mixer"
	"github.com/companyzero/audiohal/internal/voice"
	"github.com/companyzero/audiohal/lockfile"
	"github.com/companyzero/audiohal/server/settings"
	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

//go:embed default_mixer_paths.toml
var defaultMixerPaths []byte

var _ hal.CallSignaling = (*voice.Manager)(nil)

// Server is the audio HAL daemon.
type Server struct {
	settings *settings.Settings
	logBknd  *logBackend
	log      slog.Logger
	reg      *prometheus.Registry

	readyChan chan struct{}

	mtx      sync.Mutex
	rpcAddrs []net.Addr
}

// NewServer creates the daemon. The hardware is only opened by Run, once the
// lock file is held.
func NewServer(cfg *settings.Settings) (*Server, error) {
	logBknd, err := newLogBackend(cfg.LogFile, cfg.DebugLevel, cfg.LogStdOut)
	if err != nil {
		return nil, err
	}

	s := &Server{
		settings:  cfg,
		logBknd:   logBknd,
		log:       logBknd.logger("HALD"),
		reg:       prometheus.NewRegistry(),
		readyChan: make(chan struct{}),
	}
	s.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.reg.MustRegister(collectors.NewGoCollector())

	s.log.Debugf("Settings %v", spew.Sdump(s.settings))

	// create paths
	err = os.MkdirAll(s.settings.Root, 0700)
	if err != nil {
		return nil, err
	}

	// print version
	s.log.Infof("%s version: %v (%s)", filepath.Base(os.Args[0]),
		cfg.Versioner(), runtime.Version())

	// Profiler
	if s.settings.Profiler != "" {
		s.log.Infof("Profiler enabled on http://%v/debug/pprof",
			s.settings.Profiler)
		go http.ListenAndServe(s.settings.Profiler, nil)
	}

	return s, nil
}

// Ready is closed once Run has opened the device and is serving the API.
func (s *Server) Ready() <-chan struct{} {
	return s.readyChan
}

// RPCAddrs returns the addresses the API is served on. Only valid after
// Ready is closed.
func (s *Server) RPCAddrs() []net.Addr {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.rpcAddrs
}

// mixerPathsFile returns the mixer paths file to load, writing the default
// paths when the file does not exist yet.
func (s *Server) mixerPathsFile() (string, error) {
	fname := s.settings.MixerPaths
	_, err := os.Stat(fname)
	if err == nil {
		return fname, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fname), 0700); err != nil {
		return "", err
	}
	s.log.Infof("Creating default mixer paths file %s", fname)
	return fname, os.WriteFile(fname, defaultMixerPaths, 0600)
}

// openMixer creates the mixer backend. The card restores the control values
// of the previous run from the state file.
func (s *Server) openMixer() (*mixer.Backend, error) {
	fname, err := s.mixerPathsFile()
	if err != nil {
		return nil, err
	}
	paths, _, err := mixer.LoadPaths(fname)
	if err != nil {
		return nil, err
	}
	mixLog := s.logBknd.logger("MIXR")
	card, err := mixer.NewStateCard(paths.Card, s.settings.CardStateFile, mixLog)
	if err != nil {
		return nil, err
	}
	mix, err := mixer.New(mixer.Config{
		PathsFile:  fname,
		Card:       card,
		LiveReload: s.settings.MixerLiveReload,
		Log:        mixLog,
	})
	if err != nil {
		card.Close()
		return nil, err
	}
	return mix, nil
}

func (s *Server) openProvider() (*audio.Provider, error) {
	return audio.NewProvider(audio.Config{
		PlaybackDevice:    audio.DeviceID(s.settings.PlaybackDevice),
		CaptureDevice:     audio.DeviceID(s.settings.CaptureDevice),
		Period:            s.settings.Period,
		Periods:           s.settings.Periods,
		OffloadBufferSize: s.settings.OffloadBufferSize,
		Driver:            s.settings.AudioDriver,
		Log:               s.logBknd.logger("XPRT"),
	})
}

func (s *Server) newCallSignaling() (hal.CallSignaling, error) {
	log := s.logBknd.logger("VOIC")
	return voice.New(voice.Config{
		RIL:         voice.NewLogRIL(log),
		Log:         log,
		VolumeSteps: s.settings.VolumeSteps,
	}), nil
}

func (s *Server) listenRPC() ([]net.Listener, error) {
	var res []net.Listener
	for _, addr := range s.settings.RPCListen {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range res {
				l.Close()
			}
			return nil, fmt.Errorf("could not listen on %s: %v", addr, err)
		}
		s.log.Infof("Listening for API clients on %s", l.Addr())
		res = append(res, l)
	}
	return res, nil
}

func (s *Server) runPrometheusListener(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	promHandler := promhttp.InstrumentMetricHandler(
		s.reg, promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}),
	)
	mux.Handle("/metrics", promHandler)
	hs := http.Server{
		Addr:        addr,
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     mux,
	}
	s.log.Infof("Exposing prometheus metrics on %s", addr)
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}()
	err := hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Run acquires the lock file, opens the audio device and serves the API
// until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.log.Infof("End of times")

	lock, err := lockfile.Acquire(ctx, s.settings.LockFile, s.settings.DeviceID)
	if err != nil {
		if owner, oerr := lockfile.ReadOwner(s.settings.LockFile); oerr == nil {
			s.log.Errorf("Lock file %s held by %s", s.settings.LockFile, owner)
		}
		return err
	}
	defer func() {
		if err := lock.Close(); err != nil {
			s.log.Warnf("Unable to release lock file: %v", err)
		}
	}()
	s.log.Debugf("Acquired lock file %s", lock.Path())

	if prio := s.settings.AudioPriority; prio != 0 {
		if err := setAudioPriority(prio); err != nil {
			s.log.Warnf("Running with the default priority: %v", err)
		} else {
			s.log.Infof("Set process priority to %d", prio)
		}
	}

	mix, err := s.openMixer()
	if err != nil {
		return err
	}
	defer mix.Close()

	prov, err := s.openProvider()
	if err != nil {
		return err
	}
	defer prov.Close()

	dev, err := hal.Open(s.settings.DeviceID,
		hal.WithLogBackend(s.logBknd.logger),
		hal.WithRouteBackend(mix),
		hal.WithTransportProvider(prov),
		hal.WithCallSignaling(s.newCallSignaling),
		hal.WithPrometheusRegisterer(s.reg),
		hal.WithSupportReceiver(s.settings.SupportReceiver),
		hal.WithFMViaA2DP(s.settings.FMViaA2DP),
		hal.WithMuteWindow(s.settings.MuteWindow),
	)
	if err != nil {
		return err
	}
	defer dev.Close()

	listeners, err := s.listenRPC()
	if err != nil {
		return err
	}
	tokens := make(map[string]struct{}, len(s.settings.RPCTokens))
	for _, tok := range s.settings.RPCTokens {
		tokens[tok] = struct{}{}
	}
	if len(tokens) == 0 {
		s.log.Warnf("No API tokens configured: every client is authorized")
	}
	rpcSrv, err := halrpc.New(dev,
		halrpc.WithListeners(listeners),
		halrpc.WithTokens(tokens),
		halrpc.WithLogger(s.logBknd.logger("RPCS")),
		halrpc.WithVersion(s.settings.Versioner()),
		halrpc.WithTransportStatus(prov.Status),
		halrpc.WithMixerStatus(mix.Applied),
		halrpc.WithIdleTimeout(s.settings.RPCIdleTimeout),
	)
	if err != nil {
		for _, l := range listeners {
			l.Close()
		}
		return err
	}

	addrs := make([]net.Addr, len(listeners))
	for i, l := range listeners {
		addrs[i] = l.Addr()
	}
	s.mtx.Lock()
	s.rpcAddrs = addrs
	s.mtx.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mix.Run(gctx) })
	g.Go(func() error { return rpcSrv.Run(gctx) })
	if s.settings.PromListen != "" {
		g.Go(func() error { return s.runPrometheusListener(gctx, s.settings.PromListen) })
	}
	statLog := s.logBknd.logger("STAT")
	g.Go(func() error {
		return runReportStatsLoop(gctx, dev, statLog, s.settings.StatsInterval)
	})
	close(s.readyChan)

	// Wait until all subsystems are done.
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = ctx.Err()
	}
	return err
}

// Close releases the log file.
func (s *Server) Close() error {
	return s.logBknd.close()
}
