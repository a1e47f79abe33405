// Package broker keeps the upstream gateway sessions alive and relays their events to the worker connected to each slot,
// handing slots over to newer worker builds as they connect.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay/upstream"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var logger = logrus.WithField("p", "broker")

var (
	ErrUnknownSlot  = errors.New("unknown slot")
	ErrAllSlotsUp   = errors.New("all slots already created")
	ErrNotConnected = errors.New("slot has no connection")
)

// Outcome is the result of a connection advertising itself as available
type Outcome int

const (
	// OutcomeBoundFreeSlot means the connection was bound to a created slot that had none
	OutcomeBoundFreeSlot Outcome = iota + 1

	// OutcomePooledStartup means the connection was pooled because not all slots were created yet
	OutcomePooledStartup

	// OutcomeReplacedSlot means the connection replaced the oldest slot connection, which was closed
	OutcomeReplacedSlot

	// OutcomePooled means the connection was pooled as a standby
	OutcomePooled

	// OutcomeReplacedPooled means the connection took the place of an older pooled one, which was closed
	OutcomeReplacedPooled

	// OutcomeOutdated means the connection was closed because every slot runs a newer version
	OutcomeOutdated

	// OutcomeNotNeeded means the connection was closed because there was no room for it
	OutcomeNotNeeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBoundFreeSlot:
		return "bound-free-slot"
	case OutcomePooledStartup:
		return "pooled-startup"
	case OutcomeReplacedSlot:
		return "replaced-slot"
	case OutcomePooled:
		return "pooled"
	case OutcomeReplacedPooled:
		return "replaced-pooled"
	case OutcomeOutdated:
		return "outdated"
	case OutcomeNotNeeded:
		return "not-needed"
	}

	return "unknown"
}

// Broker owns the worker slots and the pool of standby connections, and decides which worker connection serves which slot
type Broker struct {
	// these fields are only safe to edit before the broker is started

	ClientCount int
	ShardCount  int

	// the delay between starting the upstream sessions of each slot
	SettleDelay time.Duration

	Launcher upstream.Launcher

	// below fields are protected by the following mutex
	mu        sync.Mutex
	groups    []*WorkerGroup
	pool      ConnPool
	available map[Conn]*AvailableConn

	httpServer *http.Server
}

func New(clientCount, shardCount int, launcher upstream.Launcher) *Broker {
	return &Broker{
		ClientCount: clientCount,
		ShardCount:  shardCount,
		SettleDelay: time.Second * 5,
		Launcher:    launcher,
		available:   make(map[Conn]*AvailableConn),
	}
}

// Run creates every worker slot and launches its upstream sessions, spacing the slots by SettleDelay.
// Returns once all slots are up or ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	b.logSlotMap()

	limiter := rate.NewLimiter(rate.Every(b.SettleDelay), 1)
	for i := 0; i < b.ClientCount; i++ {
		err := limiter.Wait(ctx)
		if err != nil {
			return errors.WithMessage(err, "limiter.Wait")
		}

		group, err := b.AddWorkerGroup()
		if err != nil {
			return err
		}

		if b.Launcher == nil {
			continue
		}

		err = b.Launcher.Launch(ctx, group.ID, group.ShardIDs, &lockedHandler{b: b, group: group})
		if err != nil {
			return errors.WithMessage(err, fmt.Sprintf("launch slot %d", group.ID))
		}
	}

	logger.Info("all slots started")
	return nil
}

func (b *Broker) logSlotMap() {
	for i := 0; i < b.ClientCount; i++ {
		shardIDs := ShardIDsForSlot(i, b.ClientCount, b.ShardCount)
		strIDs := make([]string, len(shardIDs))
		for j, v := range shardIDs {
			strIDs[j] = fmt.Sprint(v)
		}

		logger.Infof("Shards [%s] => Slot %d", strings.Join(strIDs, ", "), i)
	}
}

// AddWorkerGroup creates the next worker slot, handing it the earliest pooled connection if any
func (b *Broker) AddWorkerGroup() (*WorkerGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.groups) >= b.ClientCount {
		return nil, ErrAllSlotsUp
	}

	group := NewWorkerGroup(len(b.groups), b.ClientCount, b.ShardCount)
	b.groups = append(b.groups, group)
	group.logger.Infof("slot is managing shards %v", group.ShardIDs)

	if ac := b.pool.Shift(); ac != nil {
		group.logger.Debug("assigning pooled connection to new slot")
		group.BindConnection(ac)
	}

	return group, nil
}

// HandleMessage handles a frame received from a worker connection
func (b *Broker) HandleMessage(conn Conn, msg *gwrelay.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch msg.Op {
	case gwrelay.OpAvailable:
		if _, ok := b.available[conn]; ok {
			conn.CloseWithCode(gwrelay.CloseProtocolViolation, "already available")
			return
		}

		version, err := gwrelay.ParseVersion(msg.DecodedBody.(*gwrelay.AvailableData).Version)
		if err != nil {
			logger.WithError(err).WithField("conn", conn.GetID()).Warn("worker advertised a invalid version")
			conn.CloseWithCode(gwrelay.CloseProtocolViolation, "invalid version")
			return
		}

		b.handleAvailable(conn, version)
	case gwrelay.OpReadyForGuilds, gwrelay.OpReady:
		group := b.groupForConn(conn)
		if group == nil {
			logger.WithField("conn", conn.GetID()).Debugf("ignoring %s from a connection without a slot", msg.Op)
			return
		}

		group.HandleMessage(conn, msg)
	default:
		logger.WithField("conn", conn.GetID()).Warnf("ignoring unexpected op from worker: %s", msg.Op)
	}
}

// HandleAvailable runs the handoff algorithm for a connection advertising itself as available
func (b *Broker) HandleAvailable(conn Conn, version gwrelay.Version) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.handleAvailable(conn, version)
}

func (b *Broker) handleAvailable(conn Conn, version gwrelay.Version) Outcome {
	ac := &AvailableConn{
		Conn:    conn,
		Version: version,
		Addr:    conn.RemoteAddr(),
		Since:   time.Now(),
	}

	l := logger.WithField("conn", conn.GetID()).WithField("version", version.String())
	l.Infof("new worker connection available from %s", ac.Addr)

	b.available[conn] = ac
	outcome := b.runHandoff(ac, l)
	metricsHandoffs.With(prometheus.Labels{"outcome": outcome.String()}).Inc()

	return outcome
}

func (b *Broker) runHandoff(ac *AvailableConn, l *logrus.Entry) Outcome {
	for _, g := range b.groups {
		if g.current == nil {
			l.Debugf("handing connection to free slot %d", g.ID)
			g.BindConnection(ac)
			return OutcomeBoundFreeSlot
		}
	}

	if len(b.groups) < b.ClientCount && b.pool.Len() < b.ClientCount {
		l.Debug("not all slots created yet, storing connection")
		b.pool.Push(ac)
		return OutcomePooledStartup
	}

	// every created slot is bound past this point
	var oldestGroup *WorkerGroup
	for _, g := range b.groups {
		if !g.current.Version.OlderThan(ac.Version) {
			continue
		}

		if oldestGroup == nil || g.current.Version.OlderThan(oldestGroup.current.Version) {
			oldestGroup = g
		}
	}

	if oldestGroup != nil {
		l.Infof("found outdated worker on slot %d (v%s), replacing it", oldestGroup.ID, oldestGroup.current.Version)
		old := oldestGroup.UnbindConnection()
		b.closeAvailable(old.Conn, gwrelay.CloseReconnect, "superseded by a newer version")
		oldestGroup.BindConnection(ac)
		return OutcomeReplacedSlot
	}

	if b.pool.Len() < b.ClientCount {
		l.Debugf("less than %d pooled connections, storing connection", b.ClientCount)
		b.pool.Push(ac)
		return OutcomePooled
	}

	if old := b.pool.PopOldestOlderThan(ac.Version); old != nil {
		l.Infof("found older pooled connection (v%s), replacing it", old.Version)
		b.closeAvailable(old.Conn, gwrelay.CloseReconnect, "superseded by a newer version")
		b.pool.Push(ac)
		return OutcomeReplacedPooled
	}

	allNewer := len(b.groups) > 0
	for _, g := range b.groups {
		if !ac.Version.OlderThan(g.current.Version) {
			allNewer = false
			break
		}
	}

	if allNewer {
		l.Info("connection is outdated and not needed, closing it")
		b.closeAvailable(ac.Conn, gwrelay.CloseOutdated, "outdated")
		return OutcomeOutdated
	}

	l.Info("already have enough pooled connections, closing this one")
	b.closeAvailable(ac.Conn, gwrelay.CloseNotNeeded, "not needed")
	return OutcomeNotNeeded
}

func (b *Broker) closeAvailable(conn Conn, code int, reason string) {
	delete(b.available, conn)
	conn.CloseWithCode(code, reason)
}

// HandleConnClosed forgets about the connection, if it was bound to a slot the oldest pooled connection takes over
func (b *Broker) HandleConnClosed(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.available, conn)

	addr := conn.RemoteAddr()
	for _, v := range b.pool.RemoveByAddr(addr) {
		logger.WithField("conn", v.Conn.GetID()).Debugf("removed pooled connection from %s", addr)
	}

	group := b.groupForConn(conn)
	if group == nil {
		return
	}

	group.logger.WithField("conn", conn.GetID()).Warn("worker connection closed")
	group.UnbindConnection()

	next := b.pool.PopOldest()
	if next == nil {
		metricsFailovers.With(prometheus.Labels{"promoted": "false"}).Inc()
		group.logger.Warn("no pooled connection to take over the slot")
		return
	}

	metricsFailovers.With(prometheus.Labels{"promoted": "true"}).Inc()
	group.logger.Info("assigning pooled connection to slot")
	group.BindConnection(next)
}

// DisconnectSlot closes the connection bound to the slot with the reconnect code, a pooled connection takes over if any
func (b *Broker) DisconnectSlot(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if slot < 0 || slot >= len(b.groups) {
		return ErrUnknownSlot
	}

	conn := b.groups[slot].Conn()
	if conn == nil {
		return ErrNotConnected
	}

	conn.CloseWithCode(gwrelay.CloseReconnect, "disconnected by operator")
	return nil
}

// Status returns a snapshot of every slot and the pool
func (b *Broker) Status() *Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := &Status{
		ClientCount: b.ClientCount,
		ShardCount:  b.ShardCount,
		Slots:       make([]*SlotStatus, 0, len(b.groups)),
		Pool:        make([]*PooledStatus, 0, b.pool.Len()),
	}

	for _, g := range b.groups {
		status.Slots = append(status.Slots, g.Status())
	}

	for _, v := range b.pool.Entries() {
		status.Pool = append(status.Pool, &PooledStatus{
			ConnID:  v.Conn.GetID(),
			Version: v.Version.String(),
			Addr:    v.Addr,
			Since:   v.Since,
		})
	}

	return status
}

// BoundAddrs returns the addresses of the workers currently bound to a slot
func (b *Broker) BoundAddrs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []string
	for _, g := range b.groups {
		if g.current != nil {
			result = append(result, g.current.Addr)
		}
	}

	return result
}

func (b *Broker) groupForConn(conn Conn) *WorkerGroup {
	for _, g := range b.groups {
		if g.current != nil && g.current.Conn == conn {
			return g
		}
	}

	return nil
}

// lockedHandler delivers upstream events to a worker group under the broker lock
type lockedHandler struct {
	b     *Broker
	group *WorkerGroup
}

var _ upstream.Handler = (*lockedHandler)(nil)

func (h *lockedHandler) OnUpstreamReady(shardID int, guildIDs []string) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	h.group.OnUpstreamReady(shardID, guildIDs)
}

func (h *lockedHandler) OnUpstreamHello(shardID int) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	h.group.OnUpstreamHello(shardID)
}

func (h *lockedHandler) OnUpstreamResumed(shardID int) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	h.group.OnUpstreamResumed(shardID)
}

func (h *lockedHandler) OnUpstreamDispatch(shardID int, evt *gwrelay.Event) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()

	h.group.OnUpstreamDispatch(shardID, evt)
}
