package wsrpc

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const jsonrpcVersion = "2.0"

// request is an outgoing call or notification frame. A zero ID marks
// a notification and is omitted from the wire form; call ids start at
// one.
type request struct {
	Version string `json:"jsonrpc"`
	ID      uint64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is an incoming reply to a call.
type response struct {
	Version string              `json:"jsonrpc"`
	ID      uint64              `json:"id"`
	Result  jsoniter.RawMessage `json:"result"`
	Error   *Error              `json:"error"`
}

// notification is an incoming server-initiated frame; it carries no
// id and expects no reply.
type notification struct {
	Method string              `json:"method"`
	Params jsoniter.RawMessage `json:"params"`
}

// Error is the error object of a failed call, as sent by the server.
type Error struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("wsrpc: server error %d: %s", e.Code, e.Message)
}

// callInfo travels as the input of a pending call's cell so the read
// loop can attribute the response in its logs.
type callInfo struct {
	method string
	sent   time.Time
}

// callResult is what lands in a pending call's cell: the raw result
// payload or an error, from the server or from teardown.
type callResult struct {
	result jsoniter.RawMessage
	err    error
}
