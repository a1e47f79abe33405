package broker

import (
	"time"
)

// Status is a snapshot of the broker, served by the rest api
type Status struct {
	ClientCount int `json:"client_count"`
	ShardCount  int `json:"shard_count"`

	Slots []*SlotStatus   `json:"slots"`
	Pool  []*PooledStatus `json:"pool"`
}

type SlotStatus struct {
	SlotID    int       `json:"slot_id"`
	ShardIDs  []int     `json:"shard_ids"`
	Connected bool      `json:"connected"`
	ConnID    string    `json:"conn_id,omitempty"`
	Version   string    `json:"version,omitempty"`
	Addr      string    `json:"addr,omitempty"`
	BoundAt   time.Time `json:"bound_at"`

	Shards []*ShardStatusInfo `json:"shards"`
}

type ShardStatusInfo struct {
	ShardID        int    `json:"shard_id"`
	Status         string `json:"status"`
	ReadyState     string `json:"ready_state"`
	ConnID         string `json:"conn_id,omitempty"`
	QueueLength    int    `json:"queue_length"`
	BufferedGuilds int    `json:"buffered_guilds"`
	ExpectedGuilds int    `json:"expected_guilds"`
	SentGuilds     int    `json:"sent_guilds"`
}

type PooledStatus struct {
	ConnID  string    `json:"conn_id"`
	Version string    `json:"version"`
	Addr    string    `json:"addr"`
	Since   time.Time `json:"since"`
}
