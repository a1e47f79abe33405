package worker

import (
	"testing"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/stretchr/testify/assert"
)

func TestStateAdapter(t *testing.T) {
	s := NewStateAdapter()

	var handled []string
	s.EventHandler = func(shardID int, evt *gwrelay.Event) {
		handled = append(handled, evt.Type)
	}

	s.ResetShard(2, []string{"10", "11"})
	assert.False(t, s.IsReady(2))

	s.InjectGuild(2, &gwrelay.Event{Type: gwrelay.EventGuildCreate, RawData: []byte(`{"id":"10","name":"a"}`)})
	s.InjectGuild(2, &gwrelay.Event{Type: gwrelay.EventGuildCreate, RawData: []byte(`{"id":"10","name":"b"}`)})
	s.InjectGuild(2, &gwrelay.Event{Type: gwrelay.EventGuildCreate, RawData: []byte(`{"id":"11","name":"c"}`)})

	data, ok := s.Guild(2, "10")
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"10","name":"b"}`, string(data))

	s.MarkReady(2)
	assert.True(t, s.IsReady(2))

	s.InjectEvent(2, &gwrelay.Event{Type: "GUILD_DELETE", RawData: []byte(`{"id":"11","unavailable":true}`)})
	s.InjectEvent(2, &gwrelay.Event{Type: "MESSAGE_CREATE", RawData: []byte(`{}`)})

	_, ok = s.Guild(2, "11")
	assert.False(t, ok)
	assert.EqualValues(t, 2, s.EventCount(2))
	assert.Equal(t, []string{"GUILD_DELETE", "MESSAGE_CREATE"}, handled)

	// a reset drops everything held for the shard
	s.ResetShard(2, nil)
	_, ok = s.Guild(2, "10")
	assert.False(t, ok)
	assert.False(t, s.IsReady(2))
	assert.EqualValues(t, 0, s.EventCount(2))
}
