package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/config"
	"github.com/ntentasd/ecobin-api/internal/db"
	"github.com/ntentasd/ecobin-api/internal/emqx"
	"github.com/ntentasd/ecobin-api/internal/events"
	"github.com/ntentasd/ecobin-api/internal/kafka"
	"github.com/ntentasd/ecobin-api/internal/logging"
	"github.com/ntentasd/ecobin-api/internal/mqtt"
	"github.com/ntentasd/ecobin-api/internal/pairing"
	"github.com/ntentasd/ecobin-api/internal/realtime"
	"github.com/ntentasd/ecobin-api/internal/retry"
	routes "github.com/ntentasd/ecobin-api/internal/routes"
	"github.com/ntentasd/ecobin-api/internal/state"
	"github.com/ntentasd/ecobin-api/internal/telemetry"
	"github.com/ntentasd/ecobin-api/internal/tracing"
	"github.com/ntentasd/ecobin-api/internal/worker"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", false)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.TempoEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}

	store, err := db.Connect(cfg.ScyllaNodes, cfg.ScyllaMetaKeyspace, cfg.ScyllaDataKeyspace)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to connect to scylla")
	}
	defer store.Close()

	c, ranker := newCache(cfg, logger)
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("driver", cfg.CacheDriver).Msg("cache ping failed")
	}

	policy := retry.DefaultPolicy()
	policy.Notify = func(err error, next time.Duration) {
		logger.Debug().Err(err).Dur("next", next).Msg("retrying")
	}

	states := state.New[string, types.DeviceSnapshot]()
	recorder := telemetry.NewRecorder(store, c, states, cfg.CacheTTL, policy, logger)

	// telemetry in, commands out
	var (
		mqttClient paho.Client
		subscriber *mqtt.Subscriber
		publisher  *mqtt.Publisher
	)
	if cfg.MQTTBroker != "" {
		subscriber = mqtt.NewSubscriber(cfg.MQTTWorkers, mqtt.DefaultQueueSize, recorder, logger)
		mqttClient, err = mqtt.Connect(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: clientID(),
			Topic:    cfg.MQTTTopic,
			Handler:  subscriber.Handler(),
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("unable to connect to mqtt")
		}
		subscriber.Start(ctx)
		publisher = mqtt.NewPublisher(mqttClient)
	} else {
		logger.Warn().Msg("MQTT_BROKER not set, telemetry ingestion disabled")
	}

	var commands realtime.CommandPublisher
	if publisher != nil {
		commands = publisher
	}
	hub := realtime.NewHub(commands, logger)
	stopFollow := hub.Follow(states)

	handler := events.NewHandler(store, c, ranker, hub, policy, logger)

	if len(cfg.KafkaBrokers) > 0 {
		watcher := kafka.NewWatcher(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopicPrefix, handler, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("kafka watcher stopped")
			}
		}()
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, device events disabled")
	}

	var broker pairing.Broker
	if cfg.EmqxEnabled() {
		ec, err := emqx.New(cfg.EmqxURL, cfg.EmqxAPIKey, cfg.EmqxAPISecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid emqx settings")
		}
		broker = ec
	}
	pairer := pairing.New(store, broker, logger)

	refresher := worker.NewRefresher(recorder, cfg.RefreshInterval, logger)
	refresher.Ignore = func(err error) bool {
		return errors.Is(err, db.ErrNoReadings)
	}
	refresher.Start(ctx)

	app := routes.New(routes.Deps{
		Store:    store,
		Cache:    c,
		Ranker:   ranker,
		Pairer:   pairer,
		Eco:      handler,
		Commands: commands,
		States:   states,
		CacheTTL: cfg.CacheTTL,
		Policy:   policy,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes.NewMux(app, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	stopFollow()
	hub.Close()
	refresher.Stop()

	if mqttClient != nil {
		mqttClient.Disconnect(250)
		subscriber.Stop()
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown")
	}
}

// newCache builds the configured driver. Only Valkey keeps a ranking.
func newCache(cfg config.Config, logger zerolog.Logger) (cache.Cache, cache.Ranker) {
	switch cfg.CacheDriver {
	case config.CacheDriverMemcached:
		return cache.NewMemcached(cfg.MemcachedAddr), nil
	default:
		addrs, err := cfg.ResolveValkeyAddrs()
		if err != nil {
			logger.Fatal().Err(err).Msg("unable to resolve valkey")
		}
		v := cache.NewValkey(addrs)
		return v, v
	}
}

func clientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return "ecobin-api-" + host
}
