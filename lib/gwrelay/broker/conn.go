package broker

import (
	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
)

// Conn is a worker connection as seen by the broker, implemented by *gwrelay.Conn
type Conn interface {
	GetID() string
	RemoteAddr() string
	Send(op gwrelay.Op, data interface{}) error
	CloseWithCode(code int, reason string)
}

var _ Conn = (*gwrelay.Conn)(nil)
