package broker

import (
	"sort"
	"strconv"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type ShardStatus int

const (
	ShardStatusDisconnected ShardStatus = iota
	ShardStatusConnected
)

func (s ShardStatus) String() string {
	switch s {
	case ShardStatusDisconnected:
		return "disconnected"
	case ShardStatusConnected:
		return "connected"
	}

	return "unknown"
}

// ReadyState is how far the worker bound to the shard has come in initializing it
type ReadyState int

const (
	// ReadyStateNotReady means the worker has been sent identify but has not acked it yet, nothing is relayed
	ReadyStateNotReady ReadyState = iota

	// ReadyStateReadyForGuilds means only guild-available events are relayed
	ReadyStateReadyForGuilds

	// ReadyStateReady means everything is relayed
	ReadyStateReady
)

func (r ReadyState) String() string {
	switch r {
	case ReadyStateNotReady:
		return "notReady"
	case ReadyStateReadyForGuilds:
		return "readyForGuilds"
	case ReadyStateReady:
		return "ready"
	}

	return "unknown"
}

// Shard relays the events of a single upstream shard to the worker connection currently bound to it.
//
// Events are queued while there is no connection or the worker is not ready yet, and the latest
// guild-available event for every guild is kept around so a newly bound worker can be caught up.
//
// Shard is not safe for concurrent use, the broker serializes access to it.
type Shard struct {
	ID int

	status     ShardStatus
	readyState ReadyState
	conn       Conn
	attached   bool

	queue          eventQueue
	guilds         *guildBuffer
	expectedGuilds map[string]struct{}
	sentGuildCount int

	logger *logrus.Entry
}

// NewShard creates a new disconnected shard expecting the provided guilds
func NewShard(id int, expectedGuilds []string) *Shard {
	s := &Shard{
		ID:             id,
		guilds:         newGuildBuffer(),
		expectedGuilds: make(map[string]struct{}),
		logger:         logger.WithField("shard", id),
	}

	s.AddExpectedGuilds(expectedGuilds)
	s.logger.Debugf("expecting %d guilds", len(s.expectedGuilds))
	return s
}

// AddExpectedGuilds merges the guild ids into the set of guilds the shard is expected to hold
func (s *Shard) AddExpectedGuilds(guildIDs []string) {
	for _, v := range guildIDs {
		s.expectedGuilds[v] = struct{}{}
	}
}

// ExpectedGuildIDs returns the sorted ids of the guilds this shard is expected to hold
func (s *Shard) ExpectedGuildIDs() []string {
	result := make([]string, 0, len(s.expectedGuilds))
	for k := range s.expectedGuilds {
		result = append(result, k)
	}

	sort.Strings(result)
	return result
}

// Conn returns the currently bound connection, nil if none
func (s *Shard) Conn() Conn {
	return s.conn
}

// Attach binds the connection to the shard, replacing any previous one, and sends identify.
// The readiness of the worker starts over, even if it's the same connection.
func (s *Shard) Attach(conn Conn) {
	if s.attached {
		s.logger.WithField("conn", conn.GetID()).Info("reconnected")
	} else {
		s.logger.WithField("conn", conn.GetID()).Info("connected")
	}

	s.conn = conn
	s.attached = true
	s.status = ShardStatusConnected
	s.readyState = ReadyStateNotReady
	s.sentGuildCount = 0

	s.logger.Debug("sending identify")
	err := conn.Send(gwrelay.OpIdentify, &gwrelay.IdentifyData{
		ShardID: s.ID,
		Data: gwrelay.IdentifyPayload{
			ExpectedGuilds: s.ExpectedGuildIDs(),
		},
	})

	if err != nil {
		s.logger.WithError(err).Error("failed sending identify")
	}
}

// Detach marks the shard as disconnected if conn is the bound connection, queued events and guild state are kept
func (s *Shard) Detach(conn Conn) {
	if s.conn != conn {
		return
	}

	s.logger.WithField("conn", conn.GetID()).Info("disconnected")
	s.status = ShardStatusDisconnected
	s.conn = nil
}

// HandleMessage handles a ack from the worker, frames from connections not bound to this shard
// or meant for another shard are ignored
func (s *Shard) HandleMessage(conn Conn, msg *gwrelay.Message) {
	if conn != s.conn {
		s.logger.WithField("conn", conn.GetID()).Debugf("ignoring %s from a connection no longer bound", msg.Op)
		return
	}

	shardID, ok := msg.ShardID()
	if !ok || shardID != s.ID {
		return
	}

	s.logger.Debugf("received %s", msg.Op)

	switch msg.Op {
	case gwrelay.OpReadyForGuilds:
		s.logger.Debug("ready for guilds")
		s.readyState = ReadyStateReadyForGuilds
		s.spliceGuildState()
		s.attemptDelivery()
	case gwrelay.OpReady:
		s.logger.Info("ready!")
		s.readyState = ReadyStateReady
		s.attemptDelivery()
	}
}

// spliceGuildState puts the buffered guild events in front of the queue, queued copies of
// those guilds are dropped so every guild is relayed once with its latest event
func (s *Shard) spliceGuildState() {
	removed := s.queue.RemoveFunc(func(evt *gwrelay.Event) bool {
		if !evt.IsGuildAvailable() {
			return false
		}

		guildID, err := evt.GuildID()
		return err == nil && s.guilds.Has(guildID)
	})

	if removed > 0 {
		s.logger.Debugf("dropped %d queued guild events superseded by the guild state", removed)
	}

	s.queue.Prepend(s.guilds.Events())
}

// Dispatch queues the event for relaying and relays as much of the queue as possible
func (s *Shard) Dispatch(evt *gwrelay.Event) {
	if evt.IsGuildAvailable() {
		guildID, err := evt.GuildID()
		if err != nil {
			s.logger.WithError(err).Error("guild-available event without a guild id")
		} else {
			s.guilds.Put(guildID, evt)
			s.expectedGuilds[guildID] = struct{}{}
			s.logger.Debugf("added guild %s to state, %d guilds in state", guildID, s.guilds.Len())
		}

		// replayed from the guild state on readyForGuilds
		if s.readyState == ReadyStateNotReady {
			return
		}
	}

	s.queue.Push(evt)
	s.attemptDelivery()
}

func (s *Shard) attemptDelivery() {
	defer s.updateQueueMetric()

	for s.queue.Len() > 0 {
		if s.status != ShardStatusConnected {
			s.logger.Debug("not connected, deferring dispatch")
			return
		}

		if s.readyState == ReadyStateNotReady {
			s.logger.Debug("not ready, deferring dispatch")
			return
		}

		head := s.queue.Peek()
		if s.readyState == ReadyStateReadyForGuilds && !head.IsGuildAvailable() {
			s.logger.Debug("only ready for guilds, deferring dispatch")
			return
		}

		err := s.conn.Send(gwrelay.OpDispatch, &gwrelay.DispatchData{
			ShardID: s.ID,
			Event:   head,
		})
		if err != nil {
			// stays at the head of the queue, sent to whatever connection is bound next
			s.logger.WithError(err).Error("failed relaying event")
			return
		}

		s.queue.Pop()
		metricsEventsRelayed.With(prometheus.Labels{"type": head.Type}).Inc()

		if head.IsGuildAvailable() {
			s.sentGuildCount++
			s.logger.Debugf("sent guild, %d remaining", len(s.expectedGuilds)-s.sentGuildCount)
		}
	}
}

func (s *Shard) updateQueueMetric() {
	metricsQueueLength.With(prometheus.Labels{"shard": strconv.Itoa(s.ID)}).Set(float64(s.queue.Len()))
}

// Status returns a snapshot of the shard's state
func (s *Shard) Status() *ShardStatusInfo {
	info := &ShardStatusInfo{
		ShardID:        s.ID,
		Status:         s.status.String(),
		ReadyState:     s.readyState.String(),
		QueueLength:    s.queue.Len(),
		BufferedGuilds: s.guilds.Len(),
		ExpectedGuilds: len(s.expectedGuilds),
		SentGuilds:     s.sentGuildCount,
	}

	if s.conn != nil {
		info.ConnID = s.conn.GetID()
	}

	return info
}
