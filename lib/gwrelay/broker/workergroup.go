package broker

import (
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/sirupsen/logrus"
)

// ShardIDsForSlot returns the shards handled by the worker slot, shard ids are routed by id mod clientCount
func ShardIDsForSlot(slot, clientCount, shardCount int) []int {
	result := make([]int, 0, shardCount/clientCount+1)
	for i := 0; i < shardCount; i++ {
		if i%clientCount == slot {
			result = append(result, i)
		}
	}

	return result
}

// WorkerGroup is a worker slot, it owns the shards routed to the slot and the worker connection currently serving them.
// The slot outlives the worker processes, when a worker is replaced the shards are handed to the new connection.
//
// WorkerGroup is not safe for concurrent use, the broker serializes access to it.
type WorkerGroup struct {
	ID       int
	ShardIDs []int

	current *AvailableConn
	boundAt time.Time

	shards map[int]*Shard

	logger *logrus.Entry
}

func NewWorkerGroup(id, clientCount, shardCount int) *WorkerGroup {
	return &WorkerGroup{
		ID:       id,
		ShardIDs: ShardIDsForSlot(id, clientCount, shardCount),
		shards:   make(map[int]*Shard),
		logger:   logger.WithField("slot", id),
	}
}

// Conn returns the bound connection, nil if none
func (g *WorkerGroup) Conn() Conn {
	if g.current == nil {
		return nil
	}

	return g.current.Conn
}

// Current returns the bound connection along with its version, nil if none
func (g *WorkerGroup) Current() *AvailableConn {
	return g.current
}

// Shard returns the shard if the upstream session for it has started
func (g *WorkerGroup) Shard(shardID int) *Shard {
	return g.shards[shardID]
}

// OnUpstreamReady is called when the upstream session for the shard is ready, with the guilds it holds
func (g *WorkerGroup) OnUpstreamReady(shardID int, guildIDs []string) {
	g.logger.Infof("shard %d initialized with %d guilds", shardID, len(guildIDs))

	shard, ok := g.shards[shardID]
	if !ok {
		shard = NewShard(shardID, guildIDs)
		g.shards[shardID] = shard
	} else {
		shard.AddExpectedGuilds(guildIDs)
	}

	if g.current != nil {
		shard.Attach(g.current.Conn)
	}
}

// OnUpstreamDispatch relays the event to the shard
func (g *WorkerGroup) OnUpstreamDispatch(shardID int, evt *gwrelay.Event) {
	shard, ok := g.shards[shardID]
	if !ok {
		g.logger.Warnf("dropping %s for shard %d that has not been initialized", evt.Type, shardID)
		return
	}

	if shard.Conn() == nil && g.current != nil {
		shard.Attach(g.current.Conn)
	}

	g.logger.Debugf("dispatching event %s to shard %d", evt.Type, shardID)
	shard.Dispatch(evt)
}

func (g *WorkerGroup) OnUpstreamHello(shardID int) {
	g.logger.Debugf("shard %d received hello", shardID)
}

func (g *WorkerGroup) OnUpstreamResumed(shardID int) {
	g.logger.Debugf("shard %d resumed", shardID)
}

// BindConnection makes the connection serve this slot and attaches it to every initialized shard
func (g *WorkerGroup) BindConnection(ac *AvailableConn) {
	g.logger.WithField("conn", ac.Conn.GetID()).Infof("handing connection from %s (v%s) to slot", ac.Addr, ac.Version)

	g.current = ac
	g.boundAt = time.Now()

	for _, id := range g.ShardIDs {
		if shard, ok := g.shards[id]; ok {
			shard.Attach(ac.Conn)
		}
	}
}

// UnbindConnection detaches the bound connection from the slot and its shards, returning it
func (g *WorkerGroup) UnbindConnection() *AvailableConn {
	if g.current == nil {
		return nil
	}

	old := g.current
	g.current = nil

	for _, shard := range g.shards {
		shard.Detach(old.Conn)
	}

	return old
}

// HandleMessage routes a worker ack to the shard it's meant for
func (g *WorkerGroup) HandleMessage(conn Conn, msg *gwrelay.Message) {
	shardID, ok := msg.ShardID()
	if !ok {
		return
	}

	shard, ok := g.shards[shardID]
	if !ok {
		g.logger.Debugf("ignoring %s for unknown shard %d", msg.Op, shardID)
		return
	}

	shard.HandleMessage(conn, msg)
}

// Status returns a snapshot of the slot's state
func (g *WorkerGroup) Status() *SlotStatus {
	status := &SlotStatus{
		SlotID:   g.ID,
		ShardIDs: g.ShardIDs,
		Shards:   make([]*ShardStatusInfo, 0, len(g.shards)),
	}

	if g.current != nil {
		status.Connected = true
		status.ConnID = g.current.Conn.GetID()
		status.Version = g.current.Version.String()
		status.Addr = g.current.Addr
		status.BoundAt = g.boundAt
	}

	for _, id := range g.ShardIDs {
		if shard, ok := g.shards[id]; ok {
			status.Shards = append(status.Shards, shard.Status())
		}
	}

	return status
}
