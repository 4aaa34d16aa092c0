// Command connector is the single entry point for every concrete
// connector this module implements: the connector_type field in the
// configuration file (table, vector, document, mqtt, webhook) selects
// which destination driver or source adapter is wired up at startup.
// Grounded on the teacher's cmd/replicator/main.go flag/flow shape
// (flag parsing, load-configure-log-run, signal-driven graceful
// shutdown) generalized from one hard-coded replication process to
// five connector types sharing one runtime contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/cohenjo/connectors/pkg/auth"
	"github.com/cohenjo/connectors/pkg/bus"
	"github.com/cohenjo/connectors/pkg/config"
	"github.com/cohenjo/connectors/pkg/connect"
	"github.com/cohenjo/connectors/pkg/destination/blobstore"
	"github.com/cohenjo/connectors/pkg/destination/document"
	"github.com/cohenjo/connectors/pkg/destination/mqttsource"
	"github.com/cohenjo/connectors/pkg/destination/table"
	"github.com/cohenjo/connectors/pkg/destination/vector"
	"github.com/cohenjo/connectors/pkg/destination/webhook"
	"github.com/cohenjo/connectors/pkg/metrics"
	"github.com/cohenjo/connectors/pkg/transform"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

// run holds everything that needs its deferred cleanup (telemetry
// shutdown, metrics server stop) to execute before the process exits.
// main only decides the exit code, since os.Exit bypasses defers.
func run() int {
	var (
		configPath  = flag.String("config", "", "Configuration file path (overrides CONNECTOR_CONFIG_PATH)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("connector %s (%s)\n", version, commit)
		return 0
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("CONNECTOR_CONFIG_PATH")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("connector_name", cfg.ConnectorName).
		Str("connector_type", cfg.ConnectorType).
		Msg("starting connector")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	connMetrics := metrics.NewPrometheusMetrics(registry)
	telemetry, err := metrics.NewTelemetryManager(metrics.TelemetryConfig{
		ServiceName:    cfg.ConnectorName,
		ServiceVersion: version,
		Registry:       registry,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer telemetry.Shutdown(context.Background())

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	runtime, err := buildRuntime(ctx, cfg, connMetrics)
	if err != nil {
		log.Error().Err(err).Msg("failed to build connector runtime")
		return 1
	}

	if err := runtime.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize connector")
		return 1
	}

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- runRuntime(ctx, runtime)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-runErrCh:
		switch {
		case err == nil:
		case connect.AsKind(err, connect.KindFatal):
			log.Error().Err(err).Msg("connector run loop exited with a fatal error, shutting down")
			exitCode = 1
		default:
			log.Error().Err(err).Msg("connector run loop exited with error")
			exitCode = 1
		}
		// A run loop that exits on its own (error or not) still needs
		// the signal context cancelled so anything else selecting on it
		// observes shutdown the same way it would on SIGTERM.
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		exitCode = 1
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error stopping metrics server")
		}
	}
	log.Info().Msg("connector stopped")
	return exitCode
}

// runRuntime drives the sink Run loop for sink connector types, or a
// simple poll-publish loop for source connector types — the two
// RuntimeContract implementations this module ships.
func runRuntime(ctx context.Context, rc connect.RuntimeContract) error {
	if src, ok := rc.(*connect.SourceRuntime); ok {
		return runSourceLoop(ctx, src)
	}
	if sink, ok := rc.(*connect.Runtime); ok {
		return sink.Run(ctx)
	}
	return fmt.Errorf("unrecognized runtime contract implementation")
}

func runSourceLoop(ctx context.Context, src *connect.SourceRuntime) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		recs, err := src.Poll(ctx)
		if err != nil {
			if connect.AsKind(err, connect.KindFatal) {
				return err
			}
			log.Error().Err(err).Msg("source poll failed")
			continue
		}
		for _, rec := range recs {
			if err := src.Producer.Publish(ctx, rec.Topic, rec.Key, rec.Value, rec.Headers); err != nil {
				if connect.AsKind(err, connect.KindFatal) {
					return err
				}
				log.Error().Err(err).Str("topic", rec.Topic).Msg("failed to publish polled record to bus")
			}
		}
	}
}

func buildRuntime(ctx context.Context, cfg *config.Config, connMetrics *metrics.PrometheusMetrics) (connect.RuntimeContract, error) {
	registry, err := cfg.ToRegistry()
	if err != nil {
		return nil, fmt.Errorf("build mapping registry: %w", err)
	}

	busCfg := bus.Config{
		Brokers:       cfg.Destination.Brokers,
		ConsumerGroup: cfg.Destination.ConsumerGroup,
		Username:      cfg.Destination.Username,
		Password:      cfg.Destination.Password,
		UseTLS:        cfg.Destination.UseTLS,
	}

	switch cfg.ConnectorType {
	case "table", "vector", "document":
		return buildSinkRuntime(ctx, cfg, registry, busCfg, connMetrics)
	case "mqtt":
		return buildMQTTRuntime(cfg, registry, busCfg)
	case "webhook":
		return buildWebhookRuntime(cfg, registry, busCfg)
	default:
		return nil, fmt.Errorf("unsupported connector_type %q", cfg.ConnectorType)
	}
}

func buildSinkRuntime(ctx context.Context, cfg *config.Config, registry *connect.Registry, busCfg bus.Config, connMetrics *metrics.PrometheusMetrics) (connect.RuntimeContract, error) {
	consumer, err := bus.NewKafkaConsumer(busCfg)
	if err != nil {
		return nil, fmt.Errorf("create bus consumer: %w", err)
	}

	writer, err := buildWriter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine := transform.NewEngine()
	return connect.NewRuntime(cfg.ConnectorName, registry, writer, consumer, engine, connMetrics, nil), nil
}

func buildWriter(ctx context.Context, cfg *config.Config) (connect.Writer, error) {
	switch cfg.ConnectorType {
	case "table":
		backend := blobstore.Backend(cfg.Destination.BlobProvider)
		storeFor := func(ctx context.Context, backend blobstore.Backend) (blobstore.Store, error) {
			switch backend {
			case blobstore.BackendObjectStore:
				return blobstore.NewS3Store(ctx, blobstore.S3Config{Bucket: cfg.Destination.BlobBucket})
			case blobstore.BackendAzureBlob:
				return blobstore.NewAzureBlobStore(blobstore.AzureConfig{ContainerName: cfg.Destination.BlobBucket})
			case blobstore.BackendGCS:
				return blobstore.NewGCSStore(ctx, blobstore.GCSConfig{Bucket: cfg.Destination.BlobBucket})
			default:
				return nil, fmt.Errorf("unsupported storage_backend %q", backend)
			}
		}
		return table.NewDriver(backend, storeFor), nil

	case "vector":
		return vector.NewDriver(vector.Config{
			BaseURL: cfg.Destination.VectorURL,
			APIKey:  cfg.Destination.VectorAPIKey,
		}), nil

	case "document":
		return document.NewDriver(ctx, document.Config{
			URI:      cfg.Destination.MongoURI,
			Database: cfg.Destination.MongoDatabase,
		})

	default:
		return nil, fmt.Errorf("connector_type %q has no sink writer", cfg.ConnectorType)
	}
}

func buildMQTTRuntime(cfg *config.Config, registry *connect.Registry, busCfg bus.Config) (connect.RuntimeContract, error) {
	producer, err := bus.NewKafkaProducer(busCfg)
	if err != nil {
		return nil, fmt.Errorf("create bus producer: %w", err)
	}

	engine := transform.NewEngine()
	routes := make([]mqttsource.TopicMapping, 0, len(cfg.Destination.MQTTTopics))
	for i, pattern := range cfg.Destination.MQTTTopics {
		mappings := registry.List()
		if i >= len(mappings) {
			break
		}
		routes = append(routes, mqttsource.TopicMapping{
			Pattern: pattern,
			Mapping: mappings[i],
			QoS:     cfg.Destination.MQTTQoS,
		})
	}

	adapter := mqttsource.NewAdapter(mqttsource.Config{
		BrokerHost:    cfg.Destination.MQTTBrokerURL,
		ClientID:      cfg.Destination.MQTTClientID,
		KeepAliveSecs: 30,
		QueueCapacity: 1000,
	}, routes, engine, producer)

	return connect.NewSourceRuntime(cfg.ConnectorName, registry, producer, adapter), nil
}

func buildWebhookRuntime(cfg *config.Config, registry *connect.Registry, busCfg bus.Config) (connect.RuntimeContract, error) {
	producer, err := bus.NewKafkaProducer(busCfg)
	if err != nil {
		return nil, fmt.Errorf("create bus producer: %w", err)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:        cfg.Destination.WebhookAuthMode,
		StaticKey:   cfg.Destination.WebhookAuthSecret,
		BearerToken: cfg.Destination.WebhookAuthSecret,
		HMACSecret:  cfg.Destination.WebhookAuthSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("build webhook verifier: %w", err)
	}

	mappings := registry.List()
	if len(mappings) == 0 {
		return nil, fmt.Errorf("webhook connector requires at least one topic mapping")
	}

	engine := transform.NewEngine()
	server := webhook.NewServer(webhook.Config{
		MaxBodyBytes:    cfg.Destination.WebhookMaxBodyBytes,
		RateLimitPerSec: cfg.Destination.WebhookRateLimitRPS,
	}, mappings[0], verifier, engine)

	return connect.NewSourceRuntime(cfg.ConnectorName, registry, producer, server), nil
}
