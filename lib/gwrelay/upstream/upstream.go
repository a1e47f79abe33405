// Package upstream defines the boundary between the broker and the upstream gateway sessions it keeps alive
package upstream

import (
	"context"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
)

// Handler receives the lifecycle events of upstream shard sessions.
// Events for a single shard are delivered in order, ready is always delivered before any dispatch.
type Handler interface {
	// OnUpstreamReady is called when the session is ready, with the ids of the guilds on the shard
	OnUpstreamReady(shardID int, guildIDs []string)

	OnUpstreamHello(shardID int)
	OnUpstreamResumed(shardID int)

	// OnUpstreamDispatch is called for every other dispatch received on the session
	OnUpstreamDispatch(shardID int, evt *gwrelay.Event)
}

// Launcher opens upstream sessions
type Launcher interface {
	// Launch opens the sessions for the shards of the worker slot, delivering their events to handler
	Launch(ctx context.Context, slot int, shardIDs []int, handler Handler) error

	// Close closes every session opened by the launcher
	Close() error
}
