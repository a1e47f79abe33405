// Package gwrelay implements the protocol spoken between the gateway broker, which keeps the upstream
// discord gateway sessions alive, and the worker processes consuming the relayed events.
//
// Frames are json objects carried over a websocket, every frame has an "op" field, see events.go.
package gwrelay

import (
	"github.com/sirupsen/logrus"
)

// Websocket close codes used by the broker when it drops a worker connection
const (
	// CloseReconnect is sent when the connection was superseded by a newer worker build,
	// the worker should reconnect and advertise itself again
	CloseReconnect = 4000

	// CloseOutdated is sent when the worker build is older than everything currently in use,
	// it will never be used and should not reconnect
	CloseOutdated = 4001

	// CloseNotNeeded is sent when there's no free slot and the pool is at capacity
	CloseNotNeeded = 4002

	// CloseProtocolViolation is sent when the peer sent a frame we could not make sense of
	CloseProtocolViolation = 4003
)

// CloseCodeString returns a human readable name for the close code
func CloseCodeString(code int) string {
	switch code {
	case CloseReconnect:
		return "reconnect"
	case CloseOutdated:
		return "outdated"
	case CloseNotNeeded:
		return "not-needed"
	case CloseProtocolViolation:
		return "protocol-violation"
	}

	return "unknown"
}

var logger = logrus.WithField("p", "gwrelay")
