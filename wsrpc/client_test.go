package wsrpc_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deedles.dev/awaitable/wsrpc"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

var upgrader = websocket.Upgrader{}

// newServer starts a websocket server that feeds every incoming data
// frame to handle and returns its ws:// URL.
func newServer(t *testing.T, handle func(conn *websocket.Conn, data []byte)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			handle(conn, data)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCall(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		id := gjson.GetBytes(data, "id").Uint()
		n := gjson.GetBytes(data, "params").Int()
		conn.WriteMessage(websocket.TextMessage,
			fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%d,"result":%d}`, id, n*2))
	})

	client, err := wsrpc.Dial(context.Background(), url)
	require.NoError(err)
	defer client.Close()

	raw, err := client.Call(context.Background(), "double", 21)
	require.NoError(err)
	require.Equal("42", string(raw))
}

func TestCallConcurrent(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		id := gjson.GetBytes(data, "id").Uint()
		n := gjson.GetBytes(data, "params").Int()
		conn.WriteMessage(websocket.TextMessage,
			fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%d,"result":%d}`, id, n*2))
	})

	client, err := wsrpc.Dial(context.Background(), url)
	require.NoError(err)
	defer client.Close()

	var group errgroup.Group
	for i := range 20 {
		group.Go(func() error {
			raw, err := client.Call(context.Background(), "double", i)
			if err != nil {
				return err
			}
			if want := fmt.Sprint(i * 2); string(raw) != want {
				return fmt.Errorf("call %d: result %s, want %s", i, raw, want)
			}
			return nil
		})
	}
	require.NoError(group.Wait())
}

func TestCallServerError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		id := gjson.GetBytes(data, "id").Uint()
		conn.WriteMessage(websocket.TextMessage,
			fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, id))
	})

	client, err := wsrpc.Dial(context.Background(), url)
	require.NoError(err)
	defer client.Close()

	_, err = client.Call(context.Background(), "missing", nil)
	var rpcErr *wsrpc.Error
	require.ErrorAs(err, &rpcErr)
	require.Equal(-32601, rpcErr.Code)
	require.Contains(rpcErr.Error(), "method not found")
}

func TestCallContextExpires(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	// The server only answers "respond" calls; "ignore" calls hang
	// until the caller's context gives up on them.
	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		if gjson.GetBytes(data, "method").String() != "respond" {
			return
		}
		id := gjson.GetBytes(data, "id").Uint()
		conn.WriteMessage(websocket.TextMessage,
			fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%d,"result":1}`, id))
	})

	client, err := wsrpc.Dial(context.Background(), url, wsrpc.WithLogger(quietLogger()))
	require.NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "ignore", nil)
	require.ErrorIs(err, context.DeadlineExceeded)

	// An abandoned call must not wedge the client.
	raw, err := client.Call(context.Background(), "respond", nil)
	require.NoError(err)
	require.Equal("1", string(raw))
}

func TestNotify(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	frames := make(chan []byte, 1)
	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		frames <- data
	})

	client, err := wsrpc.Dial(context.Background(), url)
	require.NoError(err)
	defer client.Close()

	require.NoError(client.Notify("fire", 7))

	frame := <-frames
	require.Equal("fire", gjson.GetBytes(frame, "method").String())
	require.False(gjson.GetBytes(frame, "id").Exists(), "notification must not carry an id")
	require.Equal(int64(7), gjson.GetBytes(frame, "params").Int())
}

func TestServerNotification(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		id := gjson.GetBytes(data, "id").Uint()
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","method":"event","params":{"x":1}}`))
		conn.WriteMessage(websocket.TextMessage,
			fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%d,"result":true}`, id))
	})

	type note struct {
		method string
		params jsoniter.RawMessage
	}
	notes := make(chan note, 1)

	client, err := wsrpc.Dial(context.Background(), url,
		wsrpc.WithNotifyHandler(func(method string, params jsoniter.RawMessage) {
			notes <- note{method: method, params: params}
		}))
	require.NoError(err)
	defer client.Close()

	// The notification is written before the response, so it is
	// dispatched before this call completes.
	_, err = client.Call(context.Background(), "subscribe", nil)
	require.NoError(err)

	n := <-notes
	require.Equal("event", n.method)
	require.Equal(int64(1), gjson.GetBytes(n.params, "x").Int())
}

func TestPing(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	// The server's default ping handler answers with a pong while its
	// read loop is blocked in ReadMessage.
	url := newServer(t, func(conn *websocket.Conn, data []byte) {})

	client, err := wsrpc.Dial(context.Background(), url)
	require.NoError(err)
	defer client.Close()

	for range 3 {
		rtt, err := client.Ping(context.Background())
		require.NoError(err)
		require.GreaterOrEqual(rtt, time.Duration(0))
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	received := make(chan struct{}, 1)
	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		received <- struct{}{}
	})

	client, err := wsrpc.Dial(context.Background(), url, wsrpc.WithLogger(quietLogger()))
	require.NoError(err)

	errc := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "hang", nil)
		errc <- err
	}()

	<-received
	require.NoError(client.Close())
	require.ErrorIs(<-errc, wsrpc.ErrClosed, "pending call must fail on close")

	require.NoError(client.Close(), "close must be idempotent")

	_, err = client.Call(context.Background(), "late", nil)
	require.ErrorIs(err, wsrpc.ErrClosed)
}

func TestServerDisconnect(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	url := newServer(t, func(conn *websocket.Conn, data []byte) {
		conn.Close()
	})

	client, err := wsrpc.Dial(context.Background(), url, wsrpc.WithLogger(quietLogger()))
	require.NoError(err)
	defer client.Close()

	_, err = client.Call(context.Background(), "doomed", nil)
	require.Error(err)
	require.NotErrorIs(err, context.DeadlineExceeded)
}

func TestDialError(t *testing.T) {
	t.Parallel()

	_, err := wsrpc.Dial(context.Background(), "ws://127.0.0.1:1",
		wsrpc.WithHandshakeTimeout(time.Second))
	require.Error(t, err)
}

func TestPendingMetric(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	url := newServer(t, func(conn *websocket.Conn, data []byte) {})
	client, err := wsrpc.Dial(context.Background(), url)
	require.NoError(err)
	defer client.Close()

	m := client.PendingMetric()
	require.NotEmpty(m.Name)
	values := m.Collect()
	require.Len(values, 1)
	require.Zero(values[0].Value)
}
