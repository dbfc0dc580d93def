// Package halrpc exposes an audio device over a websocket JSON-RPC API.
package halrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/companyzero/audiohal/hal"
	"github.com/companyzero/audiohal/internal/logutil"
	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage   `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     json.RawMessage `json:"id"`
}

// session is one websocket connection. Streams opened by a session are
// closed when it ends.
type session struct {
	id     uint64
	remote string
	log    slog.Logger
}

type handler func(ctx context.Context, sess *session, params []json.RawMessage) (interface{}, error)

// Server serves the JSON-RPC API of a device.
type Server struct {
	cfg      config
	log      slog.Logger
	dev      *hal.Device
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	started  time.Time
	handlers map[string]handler

	lastSessID atomic.Uint64
	streams    *xsync.MapOf[uint64, *rpcStream]
}

// New creates a new RPC server for dev.
func New(dev *hal.Device, opts ...Option) (*Server, error) {
	if dev == nil {
		return nil, errors.New("device is required")
	}
	cfg := config{
		log:             slog.Disabled,
		tokens:          map[string]struct{}{},
		idleTimeout:     time.Minute,
		shutdownTimeout: time.Second,
		maxMsgSize:      4 * 1024 * 1024,
		maxReadSize:     1024 * 1024,
	}
	for _, o := range opts {
		o(&cfg)
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.log,
		dev:     dev,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 20 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		mux:     http.NewServeMux(),
		streams: xsync.NewMapOf[uint64, *rpcStream](),
	}
	s.handlers = map[string]handler{
		MethodStatus:              s.handleStatus,
		MethodSetParameters:       s.handleSetParameters,
		MethodGetParameters:       s.handleGetParameters,
		MethodSetMode:             s.handleSetMode,
		MethodSetVoiceVolume:      s.handleSetVoiceVolume,
		MethodSetMicMute:          s.handleSetMicMute,
		MethodDump:                s.handleDump,
		MethodOpenOutput:          s.handleOpenOutput,
		MethodOpenInput:           s.handleOpenInput,
		MethodWrite:               s.handleWrite,
		MethodRead:                s.handleRead,
		MethodStandby:             s.handleStandby,
		MethodSetStreamParameters: s.handleSetStreamParameters,
		MethodPause:               s.handlePause,
		MethodResume:              s.handleResume,
		MethodDrain:               s.handleDrain,
		MethodFlush:               s.handleFlush,
		MethodClose:               s.handleClose,
	}
	s.mux.HandleFunc(Path, s.handleWS)
	return s, nil
}

// Handler returns the http handler of the API.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves the API on the configured listeners until ctx is done. Streams
// still open are closed before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 20 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range s.cfg.listeners {
		lis := s.cfg.listeners[i]
		g.Go(func() error {
			s.log.Infof("Serving RPC API on %s", lis.Addr())
			err := srv.Serve(lis)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			s.log.Errorf("Unexpected (http.Server).Serve error on %s: %v",
				lis.Addr(), err)
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			s.log.Errorf("Ungraceful shutdown: %v", err)
		}
		return gctx.Err()
	})

	err := g.Wait()
	s.closeStreams(func(*rpcStream) bool { return true })
	return err
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.cfg.tokens) == 0 {
		return true
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	_, exists := s.cfg.tokens[token]
	return exists
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("Unable to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	sess := &session{
		id:     s.lastSessID.Add(1),
		remote: conn.RemoteAddr().String(),
	}
	sess.log = logutil.PrefixLogger(s.log, fmt.Sprintf("conn#%d:", sess.id))
	sess.log.Debugf("Connection from %s", sess.remote)
	defer func() {
		s.closeStreams(func(st *rpcStream) bool { return st.owner == sess.id })
		sess.log.Debugf("Connection closed")
	}()

	// Hijacked connections are not closed by the http server shutdown.
	ctx := r.Context()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(s.cfg.maxMsgSize)
	conn.SetPingHandler(func(str string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.idleTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(str),
			time.Now().Add(15*time.Second))
		if err != nil {
			sess.log.Errorf("Failed to send pong: %v", err)
			return err
		}
		return nil
	})

	conn.SetReadDeadline(time.Now().Add(s.cfg.idleTimeout))
	for {
		var req request
		err := conn.ReadJSON(&req)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway) && ctx.Err() == nil {
				sess.log.Debugf("Read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.idleTimeout))

		reply := s.dispatch(ctx, sess, &req)
		if err := conn.WriteJSON(reply); err != nil {
			sess.log.Errorf("Failed to write %s reply: %v", req.Method, err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session, req *request) *response {
	reply := &response{ID: req.ID}
	h, ok := s.handlers[req.Method]
	if !ok {
		sess.log.Warnf("Unhandled method %q", req.Method)
		reply.Error = toRPCError(fmt.Errorf("%w %q", errUnknownMethod, req.Method))
		return reply
	}

	sess.log.Tracef("Request %s", req.Method)
	res, err := h(ctx, sess, req.Params)
	if err == nil {
		reply.Result, err = json.Marshal(res)
	}
	if err != nil {
		sess.log.Debugf("Method %s failed: %v", req.Method, err)
		reply.Error = toRPCError(err)
		reply.Result = nil
	}
	return reply
}

// decodeParams decodes the first positional param into v.
func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return errNoParams
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return paramsError{err: err}
	}
	return nil
}
