package broker

import (
	"context"
	"testing"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(clientCount, shardCount, slotsCreated int) *Broker {
	b := New(clientCount, shardCount, nil)
	b.SettleDelay = 0

	for i := 0; i < slotsCreated; i++ {
		b.AddWorkerGroup()
	}

	return b
}

// connectWorker advertises a new mock connection with the version
func connectWorker(b *Broker, version string) (*mockConn, Outcome) {
	conn := newMockConn()
	outcome := b.HandleAvailable(conn, gwrelay.MustParseVersion(version))
	return conn, outcome
}

func slotConn(b *Broker, slot int) Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.groups[slot].Conn()
}

func TestShardIDsForSlot(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, ShardIDsForSlot(0, 2, 6))
	assert.Equal(t, []int{1, 3, 5}, ShardIDsForSlot(1, 2, 6))
	assert.Equal(t, []int{2}, ShardIDsForSlot(2, 3, 3))
	assert.Empty(t, ShardIDsForSlot(3, 4, 2))
}

func TestHandoffBindsFreeSlot(t *testing.T) {
	b := newTestBroker(2, 2, 2)

	c1, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomeBoundFreeSlot, outcome)

	c2, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomeBoundFreeSlot, outcome)

	assert.True(t, slotConn(b, 0) == c1)
	assert.True(t, slotConn(b, 1) == c2)
}

func TestHandoffPoolsWhileStarting(t *testing.T) {
	b := newTestBroker(2, 2, 1)

	_, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomeBoundFreeSlot, outcome)

	c2, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomePooledStartup, outcome)
	assert.Len(t, b.Status().Pool, 1)

	// a newly created slot takes the head of the pool
	group, err := b.AddWorkerGroup()
	require.NoError(t, err)
	assert.True(t, group.Conn() == c2)
	assert.Empty(t, b.Status().Pool)

	_, err = b.AddWorkerGroup()
	assert.Equal(t, ErrAllSlotsUp, err)
}

func TestHandoffReplacesOldestSlot(t *testing.T) {
	b := newTestBroker(2, 2, 2)

	c129, _ := connectWorker(b, "1.2.9")
	c120, _ := connectWorker(b, "1.2.0")

	// both slots are one minor version behind, the older one has to go
	c130, outcome := connectWorker(b, "1.3.0")
	assert.Equal(t, OutcomeReplacedSlot, outcome)

	assert.True(t, slotConn(b, 0) == c129)
	assert.True(t, slotConn(b, 1) == c130)

	assert.True(t, c120.closed)
	assert.Equal(t, gwrelay.CloseReconnect, c120.closeCode)
	assert.False(t, c129.closed)
}

func TestHandoffReplaceTieGoesToLowestSlot(t *testing.T) {
	b := newTestBroker(2, 2, 2)

	c1, _ := connectWorker(b, "1.0.0")
	c2, _ := connectWorker(b, "1.0.0")

	c3, outcome := connectWorker(b, "1.1.0")
	assert.Equal(t, OutcomeReplacedSlot, outcome)
	assert.True(t, slotConn(b, 0) == c3)
	assert.True(t, c1.closed)
	assert.False(t, c2.closed)
}

func TestHandoffPoolsStandby(t *testing.T) {
	b := newTestBroker(1, 1, 1)

	connectWorker(b, "1.0.0")

	c2, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomePooled, outcome)
	assert.False(t, c2.closed)
	assert.Len(t, b.Status().Pool, 1)
}

func TestHandoffReplacesOlderPooled(t *testing.T) {
	b := newTestBroker(1, 1, 1)

	connectWorker(b, "2.0.0")
	old, outcome := connectWorker(b, "1.0.0")
	require.Equal(t, OutcomePooled, outcome)

	c3, outcome := connectWorker(b, "1.5.0")
	assert.Equal(t, OutcomeReplacedPooled, outcome)
	assert.True(t, old.closed)
	assert.Equal(t, gwrelay.CloseReconnect, old.closeCode)

	pool := b.Status().Pool
	require.Len(t, pool, 1)
	assert.Equal(t, c3.GetID(), pool[0].ConnID)
}

func TestHandoffOutdated(t *testing.T) {
	b := newTestBroker(1, 1, 1)

	connectWorker(b, "2.0.0")
	connectWorker(b, "2.0.0")

	c3, outcome := connectWorker(b, "1.9.9")
	assert.Equal(t, OutcomeOutdated, outcome)
	assert.True(t, c3.closed)
	assert.Equal(t, gwrelay.CloseOutdated, c3.closeCode)
}

func TestHandoffNotNeeded(t *testing.T) {
	b := newTestBroker(2, 2, 2)

	connectWorker(b, "2.0.0")
	connectWorker(b, "1.5.0")
	connectWorker(b, "1.5.0")
	connectWorker(b, "1.5.0")
	require.Len(t, b.Status().Pool, 2)

	// same version as the oldest slot, nothing pooled is older
	c5, outcome := connectWorker(b, "1.5.0")
	assert.Equal(t, OutcomeNotNeeded, outcome)
	assert.Equal(t, gwrelay.CloseNotNeeded, c5.closeCode)
}

func TestHandoffSameVersionAsEverySlotIsNotNeeded(t *testing.T) {
	b := newTestBroker(1, 1, 1)

	connectWorker(b, "2.0.0")
	connectWorker(b, "2.0.0")

	c3, outcome := connectWorker(b, "2.0.0")
	assert.Equal(t, OutcomeNotNeeded, outcome)
	assert.Equal(t, gwrelay.CloseNotNeeded, c3.closeCode)
}

func TestPoolNeverExceedsClientCount(t *testing.T) {
	b := newTestBroker(3, 6, 3)

	versions := []string{
		"1.0.0", "1.0.0", "1.0.0",
		"1.0.0", "1.0.0", "1.0.0", "1.0.0",
		"1.1.0", "0.9.0", "1.1.0", "1.2.0", "1.0.5",
		"1.2.0", "1.2.0", "1.2.0", "1.2.0", "1.3.0",
	}

	for _, v := range versions {
		connectWorker(b, v)

		status := b.Status()
		assert.LessOrEqual(t, len(status.Pool), 3)
		for _, slot := range status.Slots {
			assert.True(t, slot.Connected)
		}
	}
}

func TestHandoffStartupPoolIsBounded(t *testing.T) {
	b := newTestBroker(3, 3, 0)

	var conns []*mockConn
	for i := 0; i < 3; i++ {
		c, outcome := connectWorker(b, "1.0.0")
		assert.Equal(t, OutcomePooledStartup, outcome)
		conns = append(conns, c)
	}

	extra, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomeNotNeeded, outcome)
	assert.True(t, extra.closed)
	assert.Equal(t, gwrelay.CloseNotNeeded, extra.closeCode)
	assert.Len(t, b.Status().Pool, 3)

	// a newer one still replaces the oldest pooled entry
	newer, outcome := connectWorker(b, "1.1.0")
	assert.Equal(t, OutcomeReplacedPooled, outcome)
	assert.Equal(t, gwrelay.CloseReconnect, conns[0].closeCode)
	assert.Len(t, b.Status().Pool, 3)

	for i := 0; i < 3; i++ {
		_, err := b.AddWorkerGroup()
		require.NoError(t, err)
	}

	assert.True(t, slotConn(b, 0) == conns[1])
	assert.True(t, slotConn(b, 1) == conns[2])
	assert.True(t, slotConn(b, 2) == newer)
	assert.Empty(t, b.Status().Pool)
}

func TestClosingConnKeepsPooledSiblingFromSameHost(t *testing.T) {
	b := newTestBroker(2, 2, 1)

	bound, _ := connectWorker(b, "1.0.0")
	sibling := newMockConn()
	sibling.addr = "10.0.0.200:5001"
	b.HandleAvailable(sibling, gwrelay.MustParseVersion("1.0.0"))
	other := newMockConn()
	other.addr = "10.0.0.200:5002"
	b.HandleAvailable(other, gwrelay.MustParseVersion("1.0.0"))
	require.Len(t, b.Status().Pool, 2)

	b.HandleConnClosed(other)

	pool := b.Status().Pool
	require.Len(t, pool, 1)
	assert.Equal(t, sibling.GetID(), pool[0].ConnID)
	assert.True(t, slotConn(b, 0) == bound)
}

func TestFailoverPromotesOldestPooled(t *testing.T) {
	// only the first slot is created, everything after it is pooled
	b := newTestBroker(3, 3, 1)

	bound, _ := connectWorker(b, "1.0.0")
	p1, _ := connectWorker(b, "1.2.0")
	p2, _ := connectWorker(b, "1.1.0")
	p3, _ := connectWorker(b, "1.1.0")
	require.Len(t, b.Status().Pool, 3)

	b.HandleConnClosed(bound)
	assert.True(t, slotConn(b, 0) == p2)

	b.HandleConnClosed(p2)
	assert.True(t, slotConn(b, 0) == p3)

	pool := b.Status().Pool
	require.Len(t, pool, 1)
	assert.Equal(t, p1.GetID(), pool[0].ConnID)
}

func TestFailoverWithEmptyPool(t *testing.T) {
	b := newTestBroker(1, 1, 1)
	group := b.groups[0]
	group.OnUpstreamReady(0, nil)

	bound, _ := connectWorker(b, "1.0.0")
	b.HandleConnClosed(bound)

	assert.Nil(t, slotConn(b, 0))
	assert.Equal(t, "disconnected", group.Shard(0).Status().Status)

	// the next connection takes the free slot
	next, outcome := connectWorker(b, "1.0.0")
	assert.Equal(t, OutcomeBoundFreeSlot, outcome)
	assert.Len(t, next.identifies(), 1)
}

func TestClosedPooledConnIsRemoved(t *testing.T) {
	b := newTestBroker(1, 1, 1)
	connectWorker(b, "1.0.0")

	pooledConn, _ := connectWorker(b, "1.0.0")
	require.Len(t, b.Status().Pool, 1)

	b.HandleConnClosed(pooledConn)
	assert.Empty(t, b.Status().Pool)
}

func TestSecondAvailableIsProtocolViolation(t *testing.T) {
	b := newTestBroker(1, 1, 1)
	conn := newMockConn()

	b.HandleMessage(conn, availableMessage("1.0.0"))
	assert.False(t, conn.closed)

	b.HandleMessage(conn, availableMessage("1.0.0"))
	assert.True(t, conn.closed)
	assert.Equal(t, gwrelay.CloseProtocolViolation, conn.closeCode)
}

func TestInvalidVersionIsProtocolViolation(t *testing.T) {
	b := newTestBroker(1, 1, 1)
	conn := newMockConn()

	b.HandleMessage(conn, availableMessage("one.two"))
	assert.Equal(t, gwrelay.CloseProtocolViolation, conn.closeCode)
	assert.Nil(t, slotConn(b, 0))
}

func TestAcksFromPooledConnIgnored(t *testing.T) {
	b := newTestBroker(1, 1, 1)
	group := b.groups[0]
	group.OnUpstreamReady(0, nil)

	bound, _ := connectWorker(b, "1.0.0")
	standby, _ := connectWorker(b, "1.0.0")

	b.HandleMessage(standby, ackMessage(gwrelay.OpReadyForGuilds, 0))
	assert.Equal(t, "notReady", group.Shard(0).Status().ReadyState)

	b.HandleMessage(bound, ackMessage(gwrelay.OpReadyForGuilds, 0))
	assert.Equal(t, "readyForGuilds", group.Shard(0).Status().ReadyState)
}

func TestDisconnectSlot(t *testing.T) {
	b := newTestBroker(2, 2, 1)

	assert.Equal(t, ErrNotConnected, b.DisconnectSlot(0))
	assert.Equal(t, ErrUnknownSlot, b.DisconnectSlot(1))

	conn, _ := connectWorker(b, "1.0.0")
	require.NoError(t, b.DisconnectSlot(0))
	assert.Equal(t, gwrelay.CloseReconnect, conn.closeCode)
}

type fakeLauncher struct {
	handlers map[int]upstream.Handler
	shards   map[int][]int
}

func (f *fakeLauncher) Launch(ctx context.Context, slot int, shardIDs []int, handler upstream.Handler) error {
	f.handlers[slot] = handler
	f.shards[slot] = shardIDs
	return nil
}

func (f *fakeLauncher) Close() error {
	return nil
}

func TestRelayAcrossWorkerReplacement(t *testing.T) {
	launcher := &fakeLauncher{handlers: make(map[int]upstream.Handler), shards: make(map[int][]int)}
	b := New(2, 4, launcher)
	b.SettleDelay = 0

	require.NoError(t, b.Run(context.Background()))
	require.Len(t, launcher.handlers, 2)
	assert.Equal(t, []int{0, 2}, launcher.shards[0])

	h := launcher.handlers[0]
	h.OnUpstreamHello(2)
	h.OnUpstreamReady(2, []string{"10", "11"})
	h.OnUpstreamDispatch(2, guildEvent("10"))
	h.OnUpstreamDispatch(2, guildEvent("11"))
	h.OnUpstreamDispatch(2, otherEvent("MESSAGE_CREATE"))

	// never initialized upstream, dropped
	h.OnUpstreamDispatch(0, otherEvent("MESSAGE_CREATE"))

	first := newMockConn()
	b.HandleMessage(first, availableMessage("1.0.0"))

	other := newMockConn()
	b.HandleMessage(other, availableMessage("1.1.0"))
	assert.Empty(t, other.identifies(), "slot 1 has no initialized shards")

	identifies := first.identifies()
	require.Len(t, identifies, 1)
	assert.Equal(t, 2, identifies[0].ShardID)
	assert.Equal(t, []string{"10", "11"}, identifies[0].Data.ExpectedGuilds)

	b.HandleMessage(first, ackMessage(gwrelay.OpReadyForGuilds, 2))
	assert.Equal(t, []string{"GUILD_CREATE:10", "GUILD_CREATE:11"}, first.dispatched())

	b.HandleMessage(first, ackMessage(gwrelay.OpReady, 2))
	assert.Equal(t, []string{"GUILD_CREATE:10", "GUILD_CREATE:11", "MESSAGE_CREATE"}, first.dispatched())

	// a newer build takes over, events in between are held for it
	second := newMockConn()
	b.HandleMessage(second, availableMessage("1.1.0"))
	assert.Equal(t, gwrelay.CloseReconnect, first.closeCode)
	b.HandleConnClosed(first)

	h.OnUpstreamDispatch(2, otherEvent("MESSAGE_UPDATE"))
	h.OnUpstreamResumed(2)

	require.Len(t, second.identifies(), 1)
	b.HandleMessage(second, ackMessage(gwrelay.OpReadyForGuilds, 2))
	b.HandleMessage(second, ackMessage(gwrelay.OpReady, 2))
	assert.Equal(t, []string{"GUILD_CREATE:10", "GUILD_CREATE:11", "MESSAGE_UPDATE"}, second.dispatched())

	// the old connection never saw anything past the handoff
	assert.Len(t, first.dispatched(), 3)

	status := b.Status()
	require.Len(t, status.Slots, 2)
	assert.Equal(t, "1.1.0", status.Slots[0].Version)
	require.Len(t, status.Slots[0].Shards, 1)
	assert.Equal(t, "ready", status.Slots[0].Shards[0].ReadyState)
}
