package worker

import (
	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
)

// Adapter applies relayed events to the bot running in the worker.
//
// Methods for a single shard are called in order, but MarkReady may be called from the ready timeout
// on another goroutine, so implementations need to be safe for concurrent use.
type Adapter interface {
	// ResetShard is called when the broker hands the shard to this worker, any state held for it should be dropped
	ResetShard(shardID int, expectedGuilds []string)

	// InjectGuild applies a guild-available event
	InjectGuild(shardID int, evt *gwrelay.Event)

	// InjectEvent applies any other event
	InjectEvent(shardID int, evt *gwrelay.Event)

	// MarkReady is called when the shard has caught up on its guilds, or gave up waiting for them
	MarkReady(shardID int)
}
