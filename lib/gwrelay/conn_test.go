package gwrelay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer starts a server that hands every accepted Conn to onConn
func startTestServer(t *testing.T, onConn func(c *Conn)) (wsURL string) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		onConn(ConnFromWebsocket(wsConn, r.RemoteAddr))
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTestConn(t *testing.T, wsURL string) *Conn {
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return ConnFromWebsocket(wsConn, wsURL)
}

func TestConnSendReceive(t *testing.T) {
	received := make(chan *Message, 1)
	wsURL := startTestServer(t, func(c *Conn) {
		c.MessageHandler = func(m *Message) {
			received <- m
		}
		c.Listen()
	})

	client := dialTestConn(t, wsURL)
	defer client.Close()

	require.NoError(t, client.Send(OpAvailable, &AvailableData{Version: "1.0.0"}))

	select {
	case m := <-received:
		assert.Equal(t, OpAvailable, m.Op)
		assert.Equal(t, "1.0.0", m.DecodedBody.(*AvailableData).Version)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for frame")
	}
}

func TestConnCloseCodeReachesPeer(t *testing.T) {
	wsURL := startTestServer(t, func(c *Conn) {
		c.MessageHandler = func(m *Message) {
			c.CloseWithCode(CloseNotNeeded, "pool full")
		}
		c.Listen()
	})

	client := dialTestConn(t, wsURL)
	closed := make(chan int, 1)
	client.ConnClosedHandler = func(code int) {
		closed <- code
	}
	go client.Listen()

	require.NoError(t, client.Send(OpAvailable, &AvailableData{Version: "1.0.0"}))

	select {
	case code := <-closed:
		assert.Equal(t, CloseNotNeeded, code)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for close")
	}
}

func TestConnMalformedFrameClosesConnection(t *testing.T) {
	serverClosed := make(chan int, 1)
	wsURL := startTestServer(t, func(c *Conn) {
		c.MessageHandler = func(m *Message) {
			t.Error("message handler should not be called for malformed frames")
		}
		c.ConnClosedHandler = func(code int) {
			serverClosed <- code
		}
		c.Listen()
	})

	client := dialTestConn(t, wsURL)
	clientClosed := make(chan int, 1)
	client.ConnClosedHandler = func(code int) {
		clientClosed <- code
	}
	go client.Listen()

	require.NoError(t, client.SendRaw([]byte(`{"not":"a frame"`)))

	select {
	case code := <-clientClosed:
		assert.Equal(t, CloseProtocolViolation, code)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for client close")
	}

	select {
	case code := <-serverClosed:
		assert.Equal(t, CloseProtocolViolation, code)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for server close")
	}
}
