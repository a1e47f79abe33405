package run

import (
	"context"
	"sync"

	"github.com/botlabs-gg/gwrelay/common"
	"github.com/botlabs-gg/gwrelay/common/config"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/botlabs-gg/gwrelay/lib/gwrelay/worker"
	"github.com/pkg/errors"
)

var (
	confBrokerURL     = config.RegisterOption("gwrelay.broker_url", "Websocket url of the broker, used by workers", "ws://127.0.0.1:80/")
	confWorkerVersion = config.RegisterOption("gwrelay.worker_version", "Version workers advertise to the broker, defaults to the build version", "")

	workerLogger = common.GetFixedPrefixLogger("run_worker")
)

func startWorker(ctx context.Context, wg *sync.WaitGroup, cancel context.CancelFunc) {
	version := confWorkerVersion.GetString()
	if version == "" {
		version = common.VERSION
	}

	adapter := worker.NewStateAdapter()
	adapter.EventHandler = func(shardID int, evt *gwrelay.Event) {
		workerLogger.WithField("shard", shardID).Debugf("event %s #%d", evt.Type, evt.Sequence)
	}

	conn := worker.NewConn(adapter, confBrokerURL.GetString(), version)

	wg.Add(1)
	go func() {
		defer wg.Done()

		err := conn.Run(ctx)
		if errors.Cause(err) == worker.ErrOutdated {
			workerLogger.Error("This worker build is outdated and will not be used, shutting down")
			cancel()
		}
	}()
}
