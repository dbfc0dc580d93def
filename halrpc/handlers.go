package halrpc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/companyzero/audiohal/audiodef"
)

func (s *Server) handleStatus(_ context.Context, _ *session, _ []json.RawMessage) (interface{}, error) {
	res := &StatusResult{
		Version: s.cfg.version,
		Uptime:  int64(time.Since(s.started).Seconds()),
		Device:  s.dev.Snapshot(),
		Stats:   s.dev.Stats(),
		Streams: s.streams.Size(),
	}
	if s.cfg.transportStatus != nil {
		st := s.cfg.transportStatus()
		res.Transport = &st
	}
	if s.cfg.mixerStatus != nil {
		paths, mods := s.cfg.mixerStatus()
		res.Mixer = &MixerStatus{Paths: paths, Modifiers: mods}
	}
	return res, nil
}

func (s *Server) handleSetParameters(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args ParametersArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	sess.log.Debugf("Set parameters %q", args.KV)
	return struct{}{}, s.dev.SetParameters(args.KV)
}

func (s *Server) handleGetParameters(_ context.Context, _ *session, params []json.RawMessage) (interface{}, error) {
	var args GetParametersArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	return &ParametersArgs{KV: s.dev.GetParameters(args.Keys)}, nil
}

func (s *Server) handleSetMode(_ context.Context, sess *session, params []json.RawMessage) (interface{}, error) {
	var args SetModeArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	mode, err := audiodef.ParseAudioMode(args.Mode)
	if err != nil {
		return nil, paramsError{err: err}
	}
	sess.log.Debugf("Set mode %s", mode)
	return struct{}{}, s.dev.SetMode(mode)
}

func (s *Server) handleSetVoiceVolume(_ context.Context, _ *session, params []json.RawMessage) (interface{}, error) {
	var args SetVoiceVolumeArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	return struct{}{}, s.dev.SetVoiceVolume(args.Volume)
}

func (s *Server) handleSetMicMute(_ context.Context, _ *session, params []json.RawMessage) (interface{}, error) {
	var args SetMicMuteArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	return struct{}{}, s.dev.SetMicMute(args.Mute)
}

func (s *Server) handleDump(_ context.Context, _ *session, _ []json.RawMessage) (interface{}, error) {
	var b strings.Builder
	if err := s.dev.Dump(&b); err != nil {
		return nil, err
	}
	return &DumpResult{Text: b.String()}, nil
}
