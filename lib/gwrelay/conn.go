package gwrelay

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// WriteTimeout is the deadline for writing a single frame
	WriteTimeout = time.Second * 10

	closeGracePeriod = time.Second
)

var lastConnID = new(int64)

// Conn represents a connection from either a worker to the broker or the other way around
// it implements common logic across both sides
type Conn struct {
	wsConn     *websocket.Conn
	remoteAddr string
	id         string
	logger     *logrus.Entry

	sendmu    sync.Mutex
	closeOnce sync.Once

	// called on incoming messages
	MessageHandler func(*Message)

	// called when the connection is closed, with the close code received or
	// websocket.CloseAbnormalClosure if the transport failed
	ConnClosedHandler func(closeCode int)
}

// ConnFromWebsocket wraps a Conn around a websocket connection
func ConnFromWebsocket(wsConn *websocket.Conn, remoteAddr string) *Conn {
	id := "conn-" + strconv.FormatInt(atomic.AddInt64(lastConnID, 1), 10)
	return &Conn{
		wsConn:     wsConn,
		remoteAddr: remoteAddr,
		id:         id,
		logger:     logger.WithField("conn", id),
	}
}

// GetID returns the process unique id of this connection
func (c *Conn) GetID() string {
	return c.id
}

// RemoteAddr returns the address of the other side
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Listen reads frames until the connection is closed, blocking
func (c *Conn) Listen() {
	c.logger.Debug("started listening for frames...")

	closeCode := websocket.CloseAbnormalClosure
	defer func() {
		c.wsConn.Close()
		c.logger.WithField("code", closeCode).Info("connection closed")

		if c.ConnClosedHandler != nil {
			c.ConnClosedHandler(closeCode)
		}
	}()

	for {
		_, raw, err := c.wsConn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode = ce.Code
			} else {
				c.logger.WithError(err).Debug("failed reading frame")
			}
			return
		}

		msg, err := DecodeMessage(raw)
		if err != nil {
			c.logger.WithError(err).Error("failed decoding frame, closing connection")
			c.CloseWithCode(CloseProtocolViolation, "malformed frame")
			closeCode = CloseProtocolViolation
			return
		}

		c.logger.Debugf("inc frame op: %s, len: %d", msg.Op, len(raw))
		if c.MessageHandler != nil {
			c.MessageHandler(msg)
		}
	}
}

// Send encodes and sends the frame over the connection, this locks the writer
func (c *Conn) Send(op Op, data interface{}) error {
	encoded, err := EncodeMessage(op, data)
	if err != nil {
		return errors.WithMessage(err, "EncodeMessage")
	}

	c.logger.Debugf("sending frame op: %s, len: %d", op, len(encoded))
	return c.SendRaw(encoded)
}

// SendRaw sends a already encoded frame, this locks the writer
func (c *Conn) SendRaw(encoded []byte) error {
	c.sendmu.Lock()
	defer c.sendmu.Unlock()

	c.wsConn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	err := c.wsConn.WriteMessage(websocket.TextMessage, encoded)
	return errors.WithMessage(err, "wsConn.WriteMessage")
}

// SendLogErr is the same as Send but logs the error
func (c *Conn) SendLogErr(op Op, data interface{}) {
	err := c.Send(op, data)
	if err != nil {
		c.logger.WithError(err).Error("failed sending frame")
	}
}

// CloseWithCode sends a close frame with the provided code and closes the connection,
// only the first call has any effect
func (c *Conn) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		c.logger.WithField("code", code).Infof("closing connection: %s (%s)", CloseCodeString(code), reason)

		// WriteControl is safe to call concurrently with WriteMessage
		err := c.wsConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeGracePeriod))
		if err != nil {
			c.logger.WithError(err).Debug("failed sending close frame")
		}

		c.wsConn.Close()
	})
}

// Close closes the connection with a normal closure code
func (c *Conn) Close() {
	c.CloseWithCode(websocket.CloseNormalClosure, "")
}
