package gwrelay

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/buger/jsonparser"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Op represents a gwrelay protocol operation, sent in the "op" field of every frame
type Op string

const (
	// OpAvailable is the first frame on every connection
	// broker <- worker: advertise a fresh connection and the worker build version
	OpAvailable Op = "available"

	// OpIdentify binds a shard to the connection
	// broker -> worker: the connection now owns the shard, includes the guilds the shard is expected to hold.
	// The worker should reset any state it had for the shard and respond with OpReadyForGuilds
	OpIdentify Op = "identify"

	// OpReadyForGuilds is sent by the worker when it can accept guild catch-up events for the shard
	// broker <- worker: after this the broker replays the buffered guild state, and only that
	OpReadyForGuilds Op = "readyForGuilds"

	// OpReady is sent by the worker when it's fully initialized
	// broker <- worker: after this every queued event is relayed
	OpReady Op = "ready"

	// OpDispatch relays a single upstream event
	// broker -> worker: apply the event as if it was received from the gateway directly
	OpDispatch Op = "dispatch"
)

// OpDataMap is a mapping of ops to structs for their data
var OpDataMap = map[Op]interface{}{
	OpAvailable:      AvailableData{},
	OpIdentify:       IdentifyData{},
	OpReadyForGuilds: ShardAckData{},
	OpReady:          ShardAckData{},
	OpDispatch:       DispatchData{},
}

func (op Op) String() string {
	return string(op)
}

// Message represents a decoded protocol frame
type Message struct {
	Op Op

	Raw         []byte
	DecodedBody interface{}
}

// ShardID returns the shard id carried by the frame, ok is false for frames that don't carry one
func (m *Message) ShardID() (shardID int, ok bool) {
	switch t := m.DecodedBody.(type) {
	case *IdentifyData:
		return t.ShardID, true
	case *ShardAckData:
		return t.ShardID, true
	case *DispatchData:
		return t.ShardID, true
	}

	return 0, false
}

// EncodeMessage encodes data to a frame, setting the "op" field
// data needs to marshal to a json object
func EncodeMessage(op Op, data interface{}) ([]byte, error) {
	body := []byte("{}")
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			return nil, errors.WithMessage(err, "json.Marshal")
		}
	}

	encoded, err := jsonparser.Set(body, []byte(strconv.Quote(string(op))), "op")
	if err != nil {
		return nil, errors.WithMessage(err, "jsonparser.Set")
	}

	return encoded, nil
}

// UnknownOpError is returned when decoding a frame with an op we don't know about
type UnknownOpError struct {
	Op Op
}

func (uoe *UnknownOpError) Error() string {
	return fmt.Sprintf("unknown op: %q", string(uoe.Op))
}

// DecodeMessage decodes a frame according to its op
func DecodeMessage(raw []byte) (*Message, error) {
	opStr, err := jsonparser.GetString(raw, "op")
	if err != nil {
		return nil, errors.WithMessage(err, "missing op")
	}

	op := Op(opStr)
	t, ok := OpDataMap[op]
	if !ok {
		return nil, &UnknownOpError{Op: op}
	}

	clone := reflect.New(reflect.TypeOf(t)).Interface()
	err = json.Unmarshal(raw, clone)
	if err != nil {
		return nil, errors.WithMessage(err, "json.Unmarshal "+opStr)
	}

	return &Message{
		Op:          op,
		Raw:         raw,
		DecodedBody: clone,
	}, nil
}
