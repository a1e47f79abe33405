package run

import (
	"context"
	"sync"
	"time"

	"github.com/botlabs-gg/gwrelay/common"
	"github.com/botlabs-gg/gwrelay/common/config"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay/broker"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay/broker/rest"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay/upstream"
)

var (
	confBotReplicas    = config.RegisterRequiredOption("gwrelay.bot_replicas", "Number of worker slots, one worker replica serves each", 0)
	confShardCount     = config.RegisterRequiredOption("gwrelay.shard_count", "Total number of gateway shards", 0)
	confDiscordToken   = config.RegisterRequiredOption("gwrelay.discord_token", "Bot token used for the gateway sessions", "")
	confListenAddr     = config.RegisterOption("gwrelay.listen_addr", "Address the broker accepts worker connections on", ":80")
	confRESTListenAddr = config.RegisterOption("gwrelay.rest_listen_addr", "Address the broker status api listens on, disabled if empty", "127.0.0.1:7448")
	confSettleDelayMS  = config.RegisterOption("gwrelay.settle_delay_ms", "Delay between starting the gateway sessions of each worker slot, in milliseconds", 5000)

	brokerLogger = common.GetFixedPrefixLogger("run_broker")
)

const redisRegistryInterval = time.Second * 10

func startBroker(ctx context.Context, wg *sync.WaitGroup) error {
	token := confDiscordToken.GetString()
	shardCount := confShardCount.GetInt()

	err := upstream.LogGatewayInfo(token)
	if err != nil {
		brokerLogger.WithError(err).Warn("Failed retrieving gateway info")
	}

	launcher := upstream.NewDiscordLauncher(token, shardCount)
	b := broker.New(confBotReplicas.GetInt(), shardCount, launcher)
	b.SettleDelay = time.Duration(confSettleDelayMS.GetInt()) * time.Millisecond

	err = b.Start(confListenAddr.GetString())
	if err != nil {
		return err
	}

	if addr := confRESTListenAddr.GetString(); addr != "" {
		api := rest.NewRESTAPI(b, addr)
		go func() {
			err := api.Run()
			if err != nil {
				brokerLogger.WithError(err).Error("Failed running rest api")
			}
		}()
	}

	if RedisPool != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RunRedisRegistry(ctx, RedisPool, redisRegistryInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		err := b.Run(ctx)
		if err != nil && ctx.Err() == nil {
			brokerLogger.WithError(err).Error("Failed starting all worker slots")
		}

		<-ctx.Done()
		b.Stop()
		launcher.Close()
	}()

	return nil
}
