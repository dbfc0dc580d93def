package halrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/companyzero/audiohal/hal"
)

var (
	errUnknownStream = errors.New("unknown stream")
	errNotOwner      = errors.New("stream opened by another connection")
	errUnknownMethod = errors.New("unknown method")
	errNoParams      = errors.New("missing params")
)

// RPCError is the error object of a reply.
type RPCError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// paramsError wraps errors decoding the params of a request.
type paramsError struct {
	err error
}

func (e paramsError) Error() string { return "invalid params: " + e.err.Error() }
func (e paramsError) Unwrap() error { return e.err }

// toRPCError converts the error of a handler to the error of the reply.
func toRPCError(err error) *RPCError {
	var pe paramsError
	code := int64(ErrCodeInternal)
	switch {
	case errors.As(err, &pe), errors.Is(err, errNoParams):
		code = ErrCodeInvalidParams
	case errors.Is(err, errUnknownMethod):
		code = ErrCodeMethodNotFound
	case errors.Is(err, errUnknownStream), errors.Is(err, errNotOwner):
		code = ErrCodeUnknownStream
	case errors.Is(err, hal.ErrNotSupported):
		code = ErrCodeNotSupported
	case errors.Is(err, hal.ErrInvalid):
		code = ErrCodeInvalid
	case errors.Is(err, hal.ErrExists):
		code = ErrCodeExists
	case errors.Is(err, hal.ErrNoDevice):
		code = ErrCodeNoDevice
	case errors.Is(err, hal.ErrClosed):
		code = ErrCodeClosed
	}
	return &RPCError{Code: code, Message: err.Error()}
}
