package halrpc

import (
	"context"

	"github.com/companyzero/audiohal/hal"
	"github.com/jrick/wsrpc/v2"
)

// Client is a typed client of the API.
type Client struct {
	ws *wsrpc.Client
}

// Dial connects to the API at url (for example ws://127.0.0.1:7878/api/v1/hal).
// An empty token dials without authorization.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	var opts []wsrpc.Option
	if token != "" {
		opts = append(opts, wsrpc.WithBearerAuthString(token))
	}
	ws, err := wsrpc.Dial(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{ws: ws}, nil
}

// Close closes the connection. The daemon closes the streams opened through
// it.
func (c *Client) Close() error {
	return c.ws.Close()
}

func (c *Client) call(ctx context.Context, method string, res interface{}, args ...interface{}) error {
	if res == nil {
		res = &struct{}{}
	}
	return c.ws.Call(ctx, method, res, args...)
}

func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.call(ctx, MethodStatus, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SetParameters(ctx context.Context, kv string) error {
	return c.call(ctx, MethodSetParameters, nil, ParametersArgs{KV: kv})
}

// GetParameters returns the k=v;k2=v2 reply of the keys.
func (c *Client) GetParameters(ctx context.Context, keys string) (string, error) {
	var res ParametersArgs
	err := c.call(ctx, MethodGetParameters, &res, GetParametersArgs{Keys: keys})
	return res.KV, err
}

func (c *Client) SetMode(ctx context.Context, mode string) error {
	return c.call(ctx, MethodSetMode, nil, SetModeArgs{Mode: mode})
}

func (c *Client) SetVoiceVolume(ctx context.Context, volume float32) error {
	return c.call(ctx, MethodSetVoiceVolume, nil, SetVoiceVolumeArgs{Volume: volume})
}

func (c *Client) SetMicMute(ctx context.Context, mute bool) error {
	return c.call(ctx, MethodSetMicMute, nil, SetMicMuteArgs{Mute: mute})
}

func (c *Client) Dump(ctx context.Context) (string, error) {
	var res DumpResult
	err := c.call(ctx, MethodDump, &res)
	return res.Text, err
}

func (c *Client) OpenOutput(ctx context.Context, cfg hal.OutputConfig) (*OpenResult, error) {
	var res OpenResult
	if err := c.call(ctx, MethodOpenOutput, &res, cfg); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) OpenInput(ctx context.Context, cfg hal.InputConfig) (*OpenResult, error) {
	var res OpenResult
	if err := c.call(ctx, MethodOpenInput, &res, cfg); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Write(ctx context.Context, stream uint64, data []byte) (*WriteResult, error) {
	var res WriteResult
	err := c.call(ctx, MethodWrite, &res, WriteArgs{Stream: stream, Data: data})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Read(ctx context.Context, stream uint64, size int) ([]byte, error) {
	var res ReadResult
	err := c.call(ctx, MethodRead, &res, ReadArgs{Stream: stream, Size: size})
	return res.Data, err
}

func (c *Client) Standby(ctx context.Context, stream uint64) error {
	return c.call(ctx, MethodStandby, nil, StreamArgs{Stream: stream})
}

func (c *Client) SetStreamParameters(ctx context.Context, stream uint64, kv string) error {
	return c.call(ctx, MethodSetStreamParameters, nil,
		StreamParametersArgs{Stream: stream, KV: kv})
}

func (c *Client) streamEvents(ctx context.Context, method string, args interface{}) ([]string, error) {
	var res EventsResult
	err := c.call(ctx, method, &res, args)
	return res.Events, err
}

func (c *Client) Pause(ctx context.Context, stream uint64) ([]string, error) {
	return c.streamEvents(ctx, MethodPause, StreamArgs{Stream: stream})
}

func (c *Client) Resume(ctx context.Context, stream uint64) ([]string, error) {
	return c.streamEvents(ctx, MethodResume, StreamArgs{Stream: stream})
}

func (c *Client) Flush(ctx context.Context, stream uint64) ([]string, error) {
	return c.streamEvents(ctx, MethodFlush, StreamArgs{Stream: stream})
}

// Drain queues a drain of the offload stream, or of its current track when
// partial is set. The drain-ready event is returned by a later call.
func (c *Client) Drain(ctx context.Context, stream uint64, partial bool) ([]string, error) {
	return c.streamEvents(ctx, MethodDrain, DrainArgs{Stream: stream, Partial: partial})
}

func (c *Client) CloseStream(ctx context.Context, stream uint64) error {
	return c.call(ctx, MethodClose, nil, StreamArgs{Stream: stream})
}
