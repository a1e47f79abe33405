package broker

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/pkg/errors"
)

var lastMockConnID = new(int64)

// mockConn records every frame sent to it, decoded
type mockConn struct {
	id   string
	addr string

	sent      []*gwrelay.Message
	closed    bool
	closeCode int
	failSends bool
}

func newMockConn() *mockConn {
	n := atomic.AddInt64(lastMockConnID, 1)
	return &mockConn{
		id:   "mock-" + strconv.FormatInt(n, 10),
		addr: fmt.Sprintf("10.0.0.%d:4000", n),
	}
}

func (m *mockConn) GetID() string      { return m.id }
func (m *mockConn) RemoteAddr() string { return m.addr }

func (m *mockConn) Send(op gwrelay.Op, data interface{}) error {
	if m.failSends {
		return errors.New("broken pipe")
	}

	encoded, err := gwrelay.EncodeMessage(op, data)
	if err != nil {
		return err
	}

	msg, err := gwrelay.DecodeMessage(encoded)
	if err != nil {
		return err
	}

	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockConn) CloseWithCode(code int, reason string) {
	if m.closed {
		return
	}

	m.closed = true
	m.closeCode = code
}

// dispatched returns a short description of every relayed event, "t:guildID" for guild events and "t" otherwise
func (m *mockConn) dispatched() []string {
	var result []string
	for _, v := range m.sent {
		if v.Op != gwrelay.OpDispatch {
			continue
		}

		evt := v.DecodedBody.(*gwrelay.DispatchData).Event
		if evt.IsGuildAvailable() {
			id, _ := evt.GuildID()
			result = append(result, evt.Type+":"+id)
		} else {
			result = append(result, evt.Type)
		}
	}

	return result
}

func (m *mockConn) identifies() []*gwrelay.IdentifyData {
	var result []*gwrelay.IdentifyData
	for _, v := range m.sent {
		if v.Op == gwrelay.OpIdentify {
			result = append(result, v.DecodedBody.(*gwrelay.IdentifyData))
		}
	}

	return result
}

func guildEvent(guildID string) *gwrelay.Event {
	return &gwrelay.Event{Type: gwrelay.EventGuildCreate, RawData: []byte(`{"id":"` + guildID + `"}`)}
}

func otherEvent(t string) *gwrelay.Event {
	return &gwrelay.Event{Type: t, RawData: []byte(`{}`)}
}

func ackMessage(op gwrelay.Op, shardID int) *gwrelay.Message {
	return &gwrelay.Message{Op: op, DecodedBody: &gwrelay.ShardAckData{ShardID: shardID}}
}

func availableMessage(version string) *gwrelay.Message {
	return &gwrelay.Message{Op: gwrelay.OpAvailable, DecodedBody: &gwrelay.AvailableData{Version: version}}
}
