// Package worker implements the worker side of the relay protocol, connecting to the broker and
// applying the relayed events through an Adapter
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultReadyTimeout is how long to wait for the next expected guild before marking the shard ready anyway
const DefaultReadyTimeout = time.Second * 15

var logger = logrus.WithField("p", "worker")

// ErrOutdated is returned by Run when the broker told us our build is outdated
var ErrOutdated = errors.New("worker version is outdated")

// Conn represents the connection to the broker, reconnecting as needed
type Conn struct {
	// these fields are only safe to edit before calling Run

	ReadyTimeout time.Duration
	Dialer       *websocket.Dialer

	adapter   Adapter
	brokerURL string
	version   string

	// below fields are protected by the mutex
	mu     sync.Mutex
	shards map[int]*shardState
}

type shardState struct {
	// incremented every time the shard is identified, so stale timers can tell they're stale
	generation int

	pending   map[string]struct{}
	sentReady bool
	timer     *time.Timer
}

func NewConn(adapter Adapter, brokerURL string, version string) *Conn {
	return &Conn{
		ReadyTimeout: DefaultReadyTimeout,
		Dialer:       websocket.DefaultDialer,
		adapter:      adapter,
		brokerURL:    brokerURL,
		version:      version,
		shards:       make(map[int]*shardState),
	}
}

// Run connects to the broker and serves it until ctx is done, reconnecting when the connection is lost.
//
// Being superseded by a newer worker reconnects right away, not being needed or transport errors
// reconnect with a exponential backoff. Returns ErrOutdated if the broker deemed our version outdated.
func (c *Conn) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Second * 30
	bo.MaxElapsedTime = 0

	for {
		closeCode, bound, err := c.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if bound {
			bo.Reset()
		}

		l := logger.WithField("code", closeCode)
		var wait time.Duration
		switch {
		case err != nil:
			wait = bo.NextBackOff()
			l.WithError(err).Warnf("failed connecting to broker, retrying in %s", wait)
		case closeCode == gwrelay.CloseOutdated:
			l.Error("broker says this version is outdated, not reconnecting")
			return ErrOutdated
		case closeCode == gwrelay.CloseReconnect:
			l.Info("superseded by a newer worker, reconnecting")
		default:
			wait = bo.NextBackOff()
			l.Infof("connection closed (%s), reconnecting in %s", gwrelay.CloseCodeString(closeCode), wait)
		}

		if wait <= 0 {
			continue
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runConn runs a single connection to the broker until it's closed,
// bound is true if the broker handed us any shards on it
func (c *Conn) runConn(ctx context.Context) (closeCode int, bound bool, err error) {
	wsConn, _, err := c.Dialer.DialContext(ctx, c.brokerURL, nil)
	if err != nil {
		return 0, false, errors.WithMessage(err, "DialContext")
	}

	conn := gwrelay.ConnFromWebsocket(wsConn, c.brokerURL)

	closed := make(chan int, 1)
	var identified bool
	conn.MessageHandler = func(msg *gwrelay.Message) {
		if msg.Op == gwrelay.OpIdentify {
			identified = true
		}

		c.handleMessage(conn, msg)
	}
	conn.ConnClosedHandler = func(code int) {
		closed <- code
	}

	go conn.Listen()

	err = conn.Send(gwrelay.OpAvailable, &gwrelay.AvailableData{Version: c.version})
	if err != nil {
		conn.Close()
		<-closed
		return 0, false, err
	}

	logger.Infof("connected to broker, advertised version %s", c.version)

	select {
	case closeCode = <-closed:
	case <-ctx.Done():
		conn.Close()
		closeCode = <-closed
	}

	c.stopTimers()

	// the listener goroutine has returned, identified is not written anymore
	return closeCode, identified, nil
}

func (c *Conn) handleMessage(conn *gwrelay.Conn, msg *gwrelay.Message) {
	switch msg.Op {
	case gwrelay.OpIdentify:
		c.handleIdentify(conn, msg.DecodedBody.(*gwrelay.IdentifyData))
	case gwrelay.OpDispatch:
		c.handleDispatch(conn, msg.DecodedBody.(*gwrelay.DispatchData))
	default:
		logger.Warnf("ignoring unexpected op from broker: %s", msg.Op)
	}
}

func (c *Conn) handleIdentify(conn *gwrelay.Conn, data *gwrelay.IdentifyData) {
	shardID := data.ShardID
	expected := data.Data.ExpectedGuilds
	logger.WithField("shard", shardID).Infof("identified, expecting %d guilds", len(expected))

	c.adapter.ResetShard(shardID, expected)

	c.mu.Lock()
	st := c.resetShard(shardID, expected)
	gen := st.generation
	c.mu.Unlock()

	conn.SendLogErr(gwrelay.OpReadyForGuilds, &gwrelay.ShardAckData{ShardID: shardID})

	c.mu.Lock()
	if len(st.pending) < 1 {
		st.sentReady = true
		c.mu.Unlock()
		c.markReady(conn, shardID)
		return
	}

	st.timer = time.AfterFunc(c.ReadyTimeout, func() {
		c.readyTimeout(conn, shardID, gen)
	})
	c.mu.Unlock()
}

// resetShard drops the state of the shard, returning the fresh state, c.mu has to be held
func (c *Conn) resetShard(shardID int, expected []string) *shardState {
	gen := 0
	if old, ok := c.shards[shardID]; ok {
		if old.timer != nil {
			old.timer.Stop()
		}
		gen = old.generation
	}

	st := &shardState{
		generation: gen + 1,
		pending:    make(map[string]struct{}),
	}

	for _, v := range expected {
		st.pending[v] = struct{}{}
	}

	c.shards[shardID] = st
	return st
}

func (c *Conn) handleDispatch(conn *gwrelay.Conn, data *gwrelay.DispatchData) {
	evt := data.Event
	if evt == nil {
		return
	}

	if !evt.IsGuildAvailable() {
		c.adapter.InjectEvent(data.ShardID, evt)
		return
	}

	c.adapter.InjectGuild(data.ShardID, evt)

	c.mu.Lock()
	st, ok := c.shards[data.ShardID]
	if !ok || st.sentReady {
		c.mu.Unlock()
		return
	}

	if guildID, err := evt.GuildID(); err == nil {
		delete(st.pending, guildID)
	}

	if len(st.pending) > 0 {
		if st.timer != nil {
			st.timer.Reset(c.ReadyTimeout)
		}
		c.mu.Unlock()
		return
	}

	st.sentReady = true
	if st.timer != nil {
		st.timer.Stop()
	}
	c.mu.Unlock()

	c.markReady(conn, data.ShardID)
}

func (c *Conn) readyTimeout(conn *gwrelay.Conn, shardID int, gen int) {
	c.mu.Lock()
	st, ok := c.shards[shardID]
	if !ok || st.generation != gen || st.sentReady {
		c.mu.Unlock()
		return
	}

	st.sentReady = true
	logger.WithField("shard", shardID).Warnf("timed out waiting for %d guilds, marking ready", len(st.pending))
	c.mu.Unlock()

	c.markReady(conn, shardID)
}

func (c *Conn) markReady(conn *gwrelay.Conn, shardID int) {
	logger.WithField("shard", shardID).Info("shard ready")
	c.adapter.MarkReady(shardID)
	conn.SendLogErr(gwrelay.OpReady, &gwrelay.ShardAckData{ShardID: shardID})
}

func (c *Conn) stopTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range c.shards {
		if v.timer != nil {
			v.timer.Stop()
		}

		// timers that already fired see a new generation on the next identify
		v.generation++
	}
}
