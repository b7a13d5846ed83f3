// Package wsrpc implements a minimal JSON-RPC 2.0 client on a
// websocket connection. Every in-flight call is tracked as a
// completion cell keyed by its request id; the read loop completes
// cells as responses arrive, waking the goroutines suspended in
// [Client.Call].
package wsrpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deedles.dev/awaitable"
	"deedles.dev/awaitable/inflight"
	"deedles.dev/awaitable/metric"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/valyala/bytebufferpool"
)

// ErrClosed is the reason pending and future calls fail after
// [Client.Close].
var ErrClosed = errors.New("wsrpc: client is closed")

var bufferPool bytebufferpool.Pool

// A Client is a JSON-RPC 2.0 client on a single websocket
// connection. It is safe for concurrent use. A client does not
// reconnect: once the connection fails or [Client.Close] is called,
// every call fails and the caller must dial anew.
type Client struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration
	onNotify     func(method string, params jsoniter.RawMessage)

	writeMu sync.Mutex

	calls inflight.Table[callInfo, callResult]

	pingMu sync.Mutex
	pong   awaitable.Cell[struct{}, time.Time]

	closeOnce sync.Once
	closed    chan struct{}
	reason    error
}

// Dial connects to url and starts the client's read loop.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dialer := websocket.Dialer{HandshakeTimeout: o.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, o.header)
	if err != nil {
		return nil, errors.WithMessagef(err, "dial %s", url)
	}

	c := &Client{
		conn:         conn,
		logger:       o.logger,
		writeTimeout: o.writeTimeout,
		onNotify:     o.onNotify,
		closed:       make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		// An unsolicited pong finds the cell unarmed; that is fine.
		_ = c.pong.Complete(time.Now())
		return nil
	})

	go c.readLoop()
	return c, nil
}

// Call sends method with params and waits for the matching response,
// returning its raw result payload. A failure reported by the server
// comes back as an [*Error]. If ctx ends first the call is abandoned:
// the server may still execute it, but the response will be dropped.
func (c *Client) Call(ctx context.Context, method string, params any) (jsoniter.RawMessage, error) {
	id, cell := c.calls.Add(callInfo{method: method, sent: time.Now()})

	err := c.send(request{Version: jsonrpcVersion, ID: id, Method: method, Params: params})
	if err != nil {
		c.calls.Evict(id)
		return nil, err
	}

	ready := make(chan struct{}, 1)
	done, err := cell.InstallWaker(awaitable.ChanWaker(ready))
	if err != nil {
		c.calls.Evict(id)
		return nil, err
	}
	if !done {
		select {
		case <-ready:
		case <-ctx.Done():
			c.calls.Evict(id)
			return nil, ctx.Err()
		}
	}

	res, ok := cell.TakeOutput()
	if !ok {
		return nil, errors.New("wsrpc: woken without a response")
	}
	if res.err != nil {
		return nil, res.err
	}
	return res.result, nil
}

// Notify sends method with params as a notification: no id, no
// response, no correlation.
func (c *Client) Notify(method string, params any) error {
	return c.send(request{Version: jsonrpcVersion, Method: method, Params: params})
}

// Ping measures the round trip to the server with a websocket
// ping/pong exchange. Pings are serialized; each one rearms the
// client's single pong cell, so a pong arriving after ctx ended is
// discarded by the next ping's reset.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()

	c.pong.ResetEmpty()
	start := time.Now()

	deadline := start.Add(c.writeTimeout)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return 0, errors.WithMessage(err, "write ping")
	}

	ready := make(chan struct{}, 1)
	done, err := c.pong.InstallWaker(awaitable.ChanWaker(ready))
	if err != nil {
		return 0, err
	}
	if !done {
		select {
		case <-ready:
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-c.closed:
			return 0, c.reason
		}
	}

	at, ok := c.pong.TakeOutput()
	if !ok {
		return 0, errors.New("wsrpc: pong lost")
	}
	return at.Sub(start), nil
}

// Close tears the connection down and fails pending calls with
// [ErrClosed]. It is safe to call more than once.
func (c *Client) Close() error {
	c.teardown(ErrClosed)
	return nil
}

// PendingMetric describes the client's in-flight call count as a
// gauge for [metric.Collector.Add].
func (c *Client) PendingMetric() metric.Metric {
	return c.calls.PendingMetric("wsrpc")
}

// send encodes frame and writes it as a single websocket message.
func (c *Client) send(frame any) error {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	stream := json.BorrowStream(buf)
	stream.WriteVal(frame)
	err := stream.Flush()
	json.ReturnStream(stream)
	if err != nil {
		return errors.WithMessage(err, "encode frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return c.reason
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, buf.B); err != nil {
		return errors.WithMessage(err, "write frame")
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.teardown(errors.WithMessage(err, "read"))
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one incoming frame. Responses carry an id and
// server notifications a method; anything else is dropped.
func (c *Client) dispatch(data []byte) {
	if id := gjson.GetBytes(data, "id"); id.Exists() {
		c.dispatchResponse(id.Uint(), data)
		return
	}
	if gjson.GetBytes(data, "method").Exists() {
		c.dispatchNotification(data)
		return
	}
	c.logger.Warn("wsrpc: dropping unroutable frame")
}

func (c *Client) dispatchResponse(id uint64, data []byte) {
	cell, ok := c.calls.Get(id)
	if !ok {
		c.logger.Warn("wsrpc: no pending call for response", "id", id)
		return
	}

	if info, ok, err := cell.TakeInput(); err == nil && ok {
		c.logger.Debug("wsrpc: response",
			"id", id,
			"method", info.method,
			"elapsed", time.Since(info.sent),
		)
	}

	var res callResult
	var resp response
	switch err := json.Unmarshal(data, &resp); {
	case err != nil:
		res.err = errors.WithMessagef(err, "decode response %d", id)
	case resp.Error != nil:
		res.err = resp.Error
	default:
		res.result = resp.Result
	}

	if err := c.calls.Complete(id, res); err != nil {
		c.logger.Warn("wsrpc: pending call abandoned before completion", "id", id, "err", err)
	}
}

func (c *Client) dispatchNotification(data []byte) {
	if c.onNotify == nil {
		return
	}

	var note notification
	if err := json.Unmarshal(data, &note); err != nil {
		c.logger.Warn("wsrpc: dropping malformed notification", "err", err)
		return
	}
	c.onNotify(note.Method, note.Params)
}

// teardown closes the connection once and fails every pending call
// with reason.
func (c *Client) teardown(reason error) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.closed)

		deadline := time.Now().Add(time.Second)
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close()

		if n := c.calls.Drain(callResult{err: reason}); n > 0 {
			c.logger.Warn("wsrpc: failed pending calls", "count", n, "err", reason)
		}
	})
}
