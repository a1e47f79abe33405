// Package run sets up the process (flags, config, logging, sentry) and starts the broker and/or worker
package run

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/botlabs-gg/gwrelay/common"
	"github.com/botlabs-gg/gwrelay/common/basicredispool"
	"github.com/botlabs-gg/gwrelay/common/config"
	"github.com/botlabs-gg/gwrelay/common/prom"
	"github.com/botlabs-gg/gwrelay/common/sentryhook"
	"github.com/getsentry/sentry-go"
	"github.com/mediocregopher/radix/v3"
	log "github.com/sirupsen/logrus"
)

var (
	flagRunBroker bool
	flagRunWorker bool

	flagLogTimestamp bool
	flagLogFile      string
	flagLogDebug     bool

	flagSysLog        bool
	flagLogAppName    string
	flagGenConfigDocs bool

	flagVersion bool
)

var (
	confRedis     = config.RegisterOption("gwrelay.redis", "Redis address, enables the redis config source and the worker registry", "")
	confSentryDSN = config.RegisterOption("gwrelay.sentry_dsn", "Sentry credentials for sentry logging hook", "")

	// RedisPool is set if gwrelay.redis is configured
	RedisPool radix.Client
)

func init() {
	flag.BoolVar(&flagRunBroker, "broker", false, "Set to run the broker, keeping the gateway sessions and relaying them to workers")
	flag.BoolVar(&flagRunWorker, "worker", false, "Set to run a worker connecting to the broker")

	flag.BoolVar(&flagLogTimestamp, "ts", false, "Set to include timestamps in log")
	flag.StringVar(&flagLogFile, "logfile", "", "Also write logs to this file, rotated every 100MB")
	flag.BoolVar(&flagLogDebug, "debug", false, "Set to enable debug logging")
	flag.BoolVar(&flagSysLog, "syslog", false, "Set to log to syslog (only linux)")
	flag.StringVar(&flagLogAppName, "logappname", "gwrelay", "When using syslog, the application name will be set to this")
	flag.BoolVar(&flagGenConfigDocs, "genconfigdocs", false, "Generate config docs and exit")

	flag.BoolVar(&flagVersion, "version", false, "Print the version and exit")
}

func Init() {
	if !flag.Parsed() {
		flag.Parse()
	}

	if flagVersion {
		fmt.Println(common.VERSION)
		os.Exit(0)
	}

	common.AddLogHook(common.ContextHook{})

	common.SetLogFormatter(&log.TextFormatter{
		DisableTimestamp: !flagLogTimestamp && !common.Testing,
		FullTimestamp:    true,
		ForceColors:      common.Testing,
		SortingFunc:      logrusSortingFunc,
	})
	common.RedirectStdLog()

	if flagLogDebug {
		log.SetLevel(log.DebugLevel)
	}

	if flagLogFile != "" {
		common.SetLogFile(flagLogFile, 100)
	}

	if flagSysLog {
		AddSyslogHooks()
	}

	if flagGenConfigDocs {
		GenConfigDocs()
		os.Exit(0)
	}

	if !flagRunBroker && !flagRunWorker {
		log.Error("Didnt specify what to run, see -h for more info")
		os.Exit(1)
	}

	log.Info("Starting gwrelay version " + common.VERSION)

	err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed loading config")
	}

	if confSentryDSN.GetString() != "" {
		addSentryHook()
	}

	var missing []string
	if flagRunBroker {
		missing = append(missing, config.MissingRequired()...)
	}
	if flagRunWorker && confBrokerURL.GetString() == "" {
		missing = append(missing, confBrokerURL.Name)
	}

	if len(missing) > 0 {
		log.Fatalf("Missing required configuration: %s", strings.Join(missing, ", "))
	}
}

func loadConfig() error {
	config.AddSource(&config.EnvSource{AllowUnprefixed: true})
	config.Load()

	addr := confRedis.GetString()
	if addr == "" {
		return nil
	}

	pool, err := basicredispool.NewPool(10, addr)
	if err != nil {
		return err
	}

	RedisPool = pool
	config.AddSource(&config.RedisConfigStore{Client: pool})
	config.Load()

	log.Infof("Loaded config from env and redis (%s)", addr)
	return nil
}

// Run starts what was selected with the flags and blocks until a shutdown signal is received
func Run() {
	ctx, cancel := context.WithCancel(context.Background())
	wg := new(sync.WaitGroup)

	err := prom.Start()
	if err != nil {
		log.WithError(err).Error("Failed starting prom server")
	}

	if flagRunBroker {
		err := startBroker(ctx, wg)
		if err != nil {
			log.WithError(err).Fatal("Failed starting broker")
		}
	}

	if flagRunWorker {
		startWorker(ctx, wg, cancel)
	}

	listenSignal(ctx)
	shutdown(cancel, wg)
}

func listenSignal(ctx context.Context) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
	case <-ctx.Done():
	}
}

func shutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	log.Info("SHUTTING DOWN... ")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 10):
		log.Warn("Timed out waiting for things to shut down")
	}

	if RedisPool != nil {
		RedisPool.Close()
	}

	sentry.Flush(time.Second * 2)
	log.Info("Bye..")
}

func addSentryHook() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     confSentryDSN.GetString(),
		Release: common.VERSION,
	})

	if err == nil {
		sentry.ConfigureScope(func(s *sentry.Scope) {
			if flagRunBroker {
				s.SetTag("role", "broker")
			} else {
				s.SetTag("role", "worker")
			}
		})

		common.AddLogHook(&sentryhook.Hook{})
		log.Info("Added Sentry Hook")
	} else {
		log.WithError(err).Error("Failed adding sentry hook")
	}
}

var logSortPriority = []string{
	"time",
	"level",
	"p",
	"msg",
	"stck",
}

func logrusSortingFunc(fields []string) {
	sort.Slice(fields, func(i, j int) bool {

		iPriority := findStringIndex(logSortPriority, fields[i])
		jPriority := findStringIndex(logSortPriority, fields[j])

		if iPriority != -1 && jPriority == -1 {
			return true
		} else if jPriority != -1 && iPriority == -1 {
			return false
		} else if iPriority == -1 && jPriority == -1 {
			return strings.Compare(fields[i], fields[j]) < 0
		}

		// both has priority
		return iPriority < jPriority
	})
}

func findStringIndex(slice []string, s string) int {
	for i, v := range slice {
		if v == s {
			return i
		}
	}

	return -1
}
