package worker

import (
	"strconv"
	"sync"
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/karlseguin/ccache"
)

const eventGuildDelete = "GUILD_DELETE"

// guilds stay until the shard is reset or the guild goes away
const guildStateTTL = time.Hour * 24 * 365

// StateAdapter is a Adapter keeping the latest guild payload per shard in a ccache layered cache,
// handing every other event to EventHandler
type StateAdapter struct {
	// EventHandler is called for every non guild-available event, optional
	EventHandler func(shardID int, evt *gwrelay.Event)

	guilds *ccache.LayeredCache

	mu          sync.Mutex
	readyShards map[int]bool
	eventCounts map[int]int64
}

var _ Adapter = (*StateAdapter)(nil)

func NewStateAdapter() *StateAdapter {
	return &StateAdapter{
		guilds:      ccache.Layered(ccache.Configure().MaxSize(250000).ItemsToPrune(500)),
		readyShards: make(map[int]bool),
		eventCounts: make(map[int]int64),
	}
}

func shardKey(shardID int) string {
	return strconv.Itoa(shardID)
}

func (s *StateAdapter) ResetShard(shardID int, expectedGuilds []string) {
	s.guilds.DeleteAll(shardKey(shardID))

	s.mu.Lock()
	s.readyShards[shardID] = false
	s.eventCounts[shardID] = 0
	s.mu.Unlock()
}

func (s *StateAdapter) InjectGuild(shardID int, evt *gwrelay.Event) {
	guildID, err := evt.GuildID()
	if err != nil {
		logger.WithError(err).WithField("shard", shardID).Error("guild-available event without a guild id")
		return
	}

	s.guilds.Set(shardKey(shardID), guildID, []byte(evt.RawData), guildStateTTL)
}

func (s *StateAdapter) InjectEvent(shardID int, evt *gwrelay.Event) {
	if evt.Type == eventGuildDelete {
		if guildID, err := evt.GuildID(); err == nil {
			s.guilds.Delete(shardKey(shardID), guildID)
		}
	}

	s.mu.Lock()
	s.eventCounts[shardID]++
	s.mu.Unlock()

	if s.EventHandler != nil {
		s.EventHandler(shardID, evt)
	}
}

func (s *StateAdapter) MarkReady(shardID int) {
	s.mu.Lock()
	s.readyShards[shardID] = true
	s.mu.Unlock()
}

// Guild returns the latest guild-available payload received for the guild on the shard
func (s *StateAdapter) Guild(shardID int, guildID string) ([]byte, bool) {
	item := s.guilds.Get(shardKey(shardID), guildID)
	if item == nil {
		return nil, false
	}

	return item.Value().([]byte), true
}

func (s *StateAdapter) IsReady(shardID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readyShards[shardID]
}

// EventCount returns the number of non guild events applied to the shard since it was last reset
func (s *StateAdapter) EventCount(shardID int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.eventCounts[shardID]
}
