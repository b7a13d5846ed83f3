package wsrpc

import (
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

type options struct {
	header           http.Header
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	logger           *slog.Logger
	onNotify         func(method string, params jsoniter.RawMessage)
}

func defaultOptions() options {
	return options{
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		logger:           slog.Default(),
	}
}

// An Option configures a [Client] at dial time.
type Option func(*options)

// WithHTTPHeader sets extra headers sent with the websocket
// handshake.
func WithHTTPHeader(header http.Header) Option {
	return func(o *options) {
		o.header = header
	}
}

// WithHandshakeTimeout bounds the websocket handshake. The default is
// ten seconds.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = timeout
	}
}

// WithWriteTimeout bounds each outgoing frame write. The default is
// ten seconds.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// WithLogger sets the logger for connection events. The default is
// [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNotifyHandler sets the handler for server-initiated
// notifications. Without one they are dropped. The handler runs on
// the read loop and must not block.
func WithNotifyHandler(handler func(method string, params jsoniter.RawMessage)) Option {
	return func(o *options) {
		o.onNotify = handler
	}
}
