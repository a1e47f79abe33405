package gwrelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventGuildID(t *testing.T) {
	evt := &Event{Type: EventGuildCreate, RawData: []byte(`{"id":"10","name":"test guild","unavailable":false}`)}
	assert.True(t, evt.IsGuildAvailable())

	id, err := evt.GuildID()
	require.NoError(t, err)
	assert.Equal(t, "10", id)

	other := &Event{Type: "MESSAGE_CREATE", RawData: []byte(`{"channel_id":"5"}`)}
	assert.False(t, other.IsGuildAvailable())

	_, err = other.GuildID()
	assert.Error(t, err)
}

func TestReadyGuildIDs(t *testing.T) {
	ready := []byte(`{"v":10,"session_id":"abc","guilds":[{"id":"10","unavailable":true},{"id":"11","unavailable":true}]}`)

	ids, err := ReadyGuildIDs(ready)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, ids)

	ids, err = ReadyGuildIDs([]byte(`{"v":10,"session_id":"abc"}`))
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ReadyGuildIDs([]byte(`{"guilds":[{"name":"no id"}]}`))
	assert.Error(t, err)
}
