package broker

import (
	"context"
	"time"

	"github.com/mediocregopher/radix/v3"
)

// RedisWorkersKey is the sorted set of bound worker addresses, scored by the unix time they were last seen bound
const RedisWorkersKey = "gwrelay_workers_z"

// RunRedisRegistry periodically records the addresses of the bound workers in redis until ctx is done
func (b *Broker) RunRedisRegistry(ctx context.Context, client radix.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.updateRedisWorkers(client)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) updateRedisWorkers(client radix.Client) {
	addrs := b.BoundAddrs()
	if len(addrs) < 1 {
		return
	}

	now := time.Now().Unix()
	args := make([]interface{}, 0, len(addrs)*2)
	for _, v := range addrs {
		args = append(args, now, v)
	}

	err := client.Do(radix.FlatCmd(nil, "ZADD", RedisWorkersKey, args...))
	if err != nil {
		logger.WithError(err).Error("failed updating worker registry in redis")
	}
}
