package broker

import (
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
)

// AvailableConn is a connection that has advertised itself as available, with the version it advertised
type AvailableConn struct {
	Conn    Conn
	Version gwrelay.Version
	Addr    string
	Since   time.Time
}

// ConnPool holds available connections not bound to any slot yet, in the order they were added
type ConnPool struct {
	entries []*AvailableConn
}

func (p *ConnPool) Len() int {
	return len(p.entries)
}

// Push adds the connection to the end of the pool
func (p *ConnPool) Push(ac *AvailableConn) {
	p.entries = append(p.entries, ac)
	metricsPoolSize.Set(float64(len(p.entries)))
}

// Shift removes and returns the earliest added connection, nil if the pool is empty
func (p *ConnPool) Shift() *AvailableConn {
	if len(p.entries) == 0 {
		return nil
	}

	return p.removeAt(0)
}

// PopOldest removes and returns the connection with the oldest version, the earliest added wins ties.
// Returns nil if the pool is empty.
func (p *ConnPool) PopOldest() *AvailableConn {
	if len(p.entries) == 0 {
		return nil
	}

	oldest := 0
	for i, v := range p.entries {
		if v.Version.OlderThan(p.entries[oldest].Version) {
			oldest = i
		}
	}

	return p.removeAt(oldest)
}

// PopOldestOlderThan removes and returns the connection with the oldest version strictly older than version,
// the earliest added wins ties. Returns nil if there's none.
func (p *ConnPool) PopOldestOlderThan(version gwrelay.Version) *AvailableConn {
	oldest := -1
	for i, v := range p.entries {
		if !v.Version.OlderThan(version) {
			continue
		}

		if oldest == -1 || v.Version.OlderThan(p.entries[oldest].Version) {
			oldest = i
		}
	}

	if oldest == -1 {
		return nil
	}

	return p.removeAt(oldest)
}

// RemoveByAddr removes every connection from the provided address, returning them
func (p *ConnPool) RemoveByAddr(addr string) []*AvailableConn {
	var removed []*AvailableConn

	kept := p.entries[:0]
	for _, v := range p.entries {
		if v.Addr == addr {
			removed = append(removed, v)
			continue
		}

		kept = append(kept, v)
	}

	for i := len(kept); i < len(p.entries); i++ {
		p.entries[i] = nil
	}

	p.entries = kept
	metricsPoolSize.Set(float64(len(p.entries)))
	return removed
}

// Entries returns a copy of the pooled connections in insertion order
func (p *ConnPool) Entries() []*AvailableConn {
	result := make([]*AvailableConn, len(p.entries))
	copy(result, p.entries)
	return result
}

func (p *ConnPool) removeAt(i int) *AvailableConn {
	ac := p.entries[i]
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	metricsPoolSize.Set(float64(len(p.entries)))
	return ac
}
