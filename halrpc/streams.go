package halrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
)

// rpcStream is a stream opened through the API. Exactly one of out and in
// is set.
type rpcStream struct {
	id    uint64
	owner uint64
	out   *hal.OutStream
	in    *hal.InStream

	mtx    sync.Mutex
	events []string
}

func (st *rpcStream) pushEvent(e hal.Event) {
	st.mtx.Lock()
	st.events = append(st.events, e.String())
	st.mtx.Unlock()
}

// takeEvents returns and clears the events reported so far.
func (st *rpcStream) takeEvents() []string {
	st.mtx.Lock()
	res := st.events
	st.events = nil
	st.mtx.Unlock()
	return res
}

func (s *Server) stream(sess *session, id uint64) (*rpcStream, error) {
	st, ok := s.streams.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w %d", errUnknownStream, id)
	}
	if st.owner != sess.id {
		return nil, fmt.Errorf("%w: %d", errNotOwner, id)
	}
	return st, nil
}

func (s *Server) outStream(sess *session, id uint64) (*rpcStream, error) {
	st, err := s.stream(sess, id)
	if err != nil {
		return nil, err
	}
	if st.out == nil {
		return nil, fmt.Errorf("%w: stream %d is not an output", hal.ErrNotSupported, id)
	}
	return st, nil
}

func (s *Server) closeStream(st *rpcStream) {
	if st.out != nil {
		s.dev.CloseOutputStream(st.out)
	} else {
		s.dev.CloseInputStream(st.in)
	}
}

// closeStreams closes the registered streams selected by match.
func (s *Server) closeStreams(match func(*rpcStream) bool) {
	var ids []uint64
	s.streams.Range(func(id uint64, st *rpcStream) bool {
		if match(st) {
			ids = append(ids, id)
		}
		return true
	})
	for _, id := range ids {
		if st, ok := s.streams.LoadAndDelete(id); ok {
			s.log.Debugf("Closing stream %d of conn#%d", id, st.owner)
			s.closeStream(st)
		}
	}
}

func (s *Server) handleOpenOutput(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args hal.OutputConfig
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	out, err := s.dev.OpenOutputStream(args)
	if err != nil {
		return nil, err
	}
	st := &rpcStream{id: out.ID(), owner: sess.id, out: out}
	if out.Kind() == audiodef.KindCompressOffload {
		if err := out.SetCallback(st.pushEvent); err != nil {
			s.dev.CloseOutputStream(out)
			return nil, err
		}
	}
	s.streams.Store(st.id, st)
	sess.log.Debugf("Opened output %s", out)
	return &OpenResult{
		Stream:  st.id,
		Kind:    out.Kind().String(),
		Usage:   out.Usage().String(),
		State:   out.State().String(),
		Config:  out.Config(),
		Latency: out.Latency().Milliseconds(),
	}, nil
}

func (s *Server) handleOpenInput(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args hal.InputConfig
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	in, err := s.dev.OpenInputStream(args)
	if err != nil {
		return nil, err
	}
	st := &rpcStream{id: in.ID(), owner: sess.id, in: in}
	s.streams.Store(st.id, st)
	sess.log.Debugf("Opened input %s", in)
	return &OpenResult{
		Stream: st.id,
		Kind:   in.Kind().String(),
		Usage:  in.Usage().String(),
		State:  in.State().String(),
		Config: in.Config(),
	}, nil
}

func (s *Server) handleWrite(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args WriteArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	st, err := s.outStream(sess, args.Stream)
	if err != nil {
		return nil, err
	}
	n, err := st.out.Write(args.Data)
	if err != nil {
		return nil, err
	}
	return &WriteResult{N: n, Events: st.takeEvents()}, nil
}

func (s *Server) handleRead(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args ReadArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if args.Size <= 0 || args.Size > s.cfg.maxReadSize {
		return nil, fmt.Errorf("%w: read size %d", hal.ErrInvalid, args.Size)
	}
	st, err := s.stream(sess, args.Stream)
	if err != nil {
		return nil, err
	}
	if st.in == nil {
		return nil, fmt.Errorf("%w: stream %d is not an input", hal.ErrNotSupported, args.Stream)
	}
	buf := make([]byte, args.Size)
	n, err := st.in.Read(buf)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Data: buf[:n]}, nil
}

func (s *Server) handleStandby(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args StreamArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	st, err := s.stream(sess, args.Stream)
	if err != nil {
		return nil, err
	}
	if st.out != nil {
		err = st.out.Standby()
	} else {
		err = st.in.Standby()
	}
	return struct{}{}, err
}

func (s *Server) handleSetStreamParameters(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args StreamParametersArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	st, err := s.stream(sess, args.Stream)
	if err != nil {
		return nil, err
	}
	if st.out != nil {
		err = st.out.SetParameters(args.KV)
	} else {
		err = st.in.SetParameters(args.KV)
	}
	return struct{}{}, err
}

// offloadOp runs one of the offload control operations of an output.
func (s *Server) offloadOp(sess *session, params []json.RawMessage, op func(*hal.OutStream) error) (interface{}, error) {
	var args StreamArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	st, err := s.outStream(sess, args.Stream)
	if err != nil {
		return nil, err
	}
	if err := op(st.out); err != nil {
		return nil, err
	}
	return &EventsResult{Events: st.takeEvents()}, nil
}

func (s *Server) handlePause(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	return s.offloadOp(sess, params, (*hal.OutStream).Pause)
}

func (s *Server) handleResume(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	return s.offloadOp(sess, params, (*hal.OutStream).Resume)
}

func (s *Server) handleFlush(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	return s.offloadOp(sess, params, (*hal.OutStream).Flush)
}

func (s *Server) handleDrain(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args DrainArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	typ := hal.DrainAll
	if args.Partial {
		typ = hal.DrainEarlyNotify
	}
	return s.offloadOp(sess, params, func(out *hal.OutStream) error {
		return out.Drain(typ)
	})
}

func (s *Server) handleClose(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args StreamArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if _, err := s.stream(sess, args.Stream); err != nil {
		return nil, err
	}
	st, ok := s.streams.LoadAndDelete(args.Stream)
	if !ok {
		return nil, fmt.Errorf("%w %d", errUnknownStream, args.Stream)
	}
	s.closeStream(st)
	sess.log.Debugf("Closed stream %d", st.id)
	return struct{}{}, nil
}
