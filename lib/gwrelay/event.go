package gwrelay

import (
	"github.com/buger/jsonparser"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// EventGuildCreate is the dispatch type of guild-available events
const EventGuildCreate = "GUILD_CREATE"

// Event is a upstream gateway dispatch payload, relayed as is
type Event struct {
	Operation int                 `json:"op"`
	Sequence  int64               `json:"s"`
	Type      string              `json:"t"`
	RawData   jsoniter.RawMessage `json:"d"`
}

// IsGuildAvailable returns true if this is a guild-available event
func (e *Event) IsGuildAvailable() bool {
	return e.Type == EventGuildCreate
}

// GuildID returns the id of the guild in a guild-available event
func (e *Event) GuildID() (string, error) {
	id, err := jsonparser.GetString(e.RawData, "id")
	if err != nil {
		return "", errors.WithMessage(err, "guild id")
	}

	return id, nil
}

// ReadyGuildIDs extracts the ids of the guilds listed in the data of a READY event
func ReadyGuildIDs(readyData []byte) ([]string, error) {
	ids := make([]string, 0)

	var innerErr error
	_, err := jsonparser.ArrayEach(readyData, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if err != nil || innerErr != nil {
			return
		}

		id, err := jsonparser.GetString(value, "id")
		if err != nil {
			innerErr = errors.WithMessage(err, "guild id")
			return
		}

		ids = append(ids, id)
	}, "guilds")

	if err == jsonparser.KeyPathNotFoundError {
		return ids, nil
	}

	if err != nil {
		return nil, errors.WithMessage(err, "jsonparser.ArrayEach")
	}

	return ids, innerErr
}
