package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	drepo "SigTrack/internal/domain/repository"
	"SigTrack/internal/handler/api"
	"SigTrack/internal/repository"
	"SigTrack/internal/service/binance"
	"SigTrack/internal/service/cache"
	"SigTrack/internal/service/detector"
	"SigTrack/internal/service/validator"
	"SigTrack/internal/usecase"
	pkgch "SigTrack/pkg/clickhouse"
	"SigTrack/pkg/config"
	xhttp "SigTrack/pkg/http"
	pkgkafka "SigTrack/pkg/kafka"
	applogger "SigTrack/pkg/logger"
	"SigTrack/pkg/metrics"
	"SigTrack/pkg/server"
)

// Container exposes the pieces the CLI commands drive directly.
type Container struct {
	App       *server.App
	Evaluator *usecase.Evaluator
	Ingestor  *usecase.Ingestor
	Store     *repository.JSONStore
	Logger    *applogger.Logger
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) drepo.Metrics {
	return metrics.NewWithRegisterer(reg)
}

// ProvideBytesCache selects the market data cache backend. Redis is fronted
// by an in-process L1 capped at the price TTL; the cleanup closes its client.
func ProvideBytesCache(cfg *config.Config, log *applogger.Logger) (cache.BytesCache, func()) {
	if cfg.Cache.Backend == "redis" {
		rc := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		cleanup := func() {
			if err := rc.Close(); err != nil {
				log.Warn("redis cache close error", applogger.Error(err))
			}
		}
		return cache.NewLayeredCache(rc, cfg.Market.PricesTTL, nil), cleanup
	}
	return cache.NewTTLCache(), func() {}
}

// ProvideMarketData creates the Binance gate.
func ProvideMarketData(cfg *config.Config, store cache.BytesCache, log *applogger.Logger) drepo.MarketData {
	httpClient := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Market.Timeout),
		xhttp.WithUserAgent(cfg.Market.UserAgent),
	)
	return binance.New(binance.Config{
		BaseURL:         cfg.Market.BaseURL,
		Interval:        drepo.NormalizeInterval(cfg.Market.Interval),
		PageLimit:       cfg.Market.PageLimit,
		PageDelay:       cfg.Market.PageDelay,
		Retry:           cfg.Market.Retry,
		SymbolsTTL:      cfg.Market.SymbolsTTL,
		PricesTTL:       cfg.Market.PricesTTL,
		CandlesTTL:      cfg.Market.CandlesTTL,
		BreakerFailures: cfg.Market.Breaker.Failures,
		BreakerTimeout:  cfg.Market.Breaker.Timeout,
	},
		binance.WithHTTPClient(httpClient),
		binance.WithStore(store),
		binance.WithLogger(log.With(applogger.String("component", "binance"))),
	)
}

// ProvideValidator creates the signal validator in the configured timezone.
func ProvideValidator(cfg *config.Config) (*validator.Validator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return validator.New(loc), nil
}

// ProvideDetector creates the candle scanner.
func ProvideDetector(gate drepo.MarketData) *detector.Detector {
	return detector.New(gate)
}

// ProvideSignalStore loads the active and history documents.
func ProvideSignalStore(cfg *config.Config) (*repository.JSONStore, error) {
	store, err := repository.NewJSONStore(cfg.Storage.ActivePath, cfg.Storage.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("signal store: %w", err)
	}
	return store, nil
}

// ProvideAuditSink assembles the JSONL files plus the optional Kafka and
// ClickHouse mirrors. The cleanup closes every sink.
func ProvideAuditSink(cfg *config.Config, log *applogger.Logger) (drepo.AuditSink, func(), error) {
	files, err := repository.NewJSONLAuditSink(cfg.Audit.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("audit files: %w", err)
	}
	sinks := []drepo.AuditSink{files}

	if cfg.Audit.Kafka.Enabled {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Audit.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Audit.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Audit.Kafka.RequiredAcks),
			pkgkafka.WithTimeouts(cfg.Audit.Kafka.WriteTimeout, cfg.Audit.Kafka.ReadTimeout),
			pkgkafka.WithAsync(cfg.Audit.Kafka.Async),
		)
		if err != nil {
			_ = files.Close()
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		sinks = append(sinks, repository.NewKafkaAuditSink(producer, cfg.Audit.Kafka.TopicPrefix))
		log.Info("audit kafka mirror enabled",
			applogger.Strings("brokers", cfg.Audit.Kafka.Brokers),
			applogger.String("topic_prefix", cfg.Audit.Kafka.TopicPrefix))
	}

	if cfg.Audit.ClickHouse.Enabled {
		ch := cfg.Audit.ClickHouse
		client, err := pkgch.NewClient(
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithAsyncInsert(ch.AsyncInsert),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		)
		if err != nil {
			_ = repository.NewMultiSink(sinks...).Close()
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		chSink := repository.NewClickHouseAuditSink(client, ch.Table)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = chSink.Init(ctx)
		cancel()
		if err != nil {
			_ = client.Close()
			_ = repository.NewMultiSink(sinks...).Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		sinks = append(sinks, closingSink{AuditSink: chSink, close: client.Close})
		log.Info("audit clickhouse mirror enabled",
			applogger.String("host", ch.Host),
			applogger.String("table", ch.Table))
	}

	sink := repository.NewMultiSink(sinks...)
	cleanup := func() {
		if err := sink.Close(); err != nil {
			log.Warn("audit sink close error", applogger.Error(err))
		}
	}
	return sink, cleanup, nil
}

// closingSink releases the ClickHouse connection with the sink.
type closingSink struct {
	drepo.AuditSink
	close func() error
}

func (s closingSink) Close() error { return s.close() }

// ProvideAuditRecorder stamps the configured version tags.
func ProvideAuditRecorder(cfg *config.Config, sink drepo.AuditSink, m drepo.Metrics, log *applogger.Logger) *usecase.AuditRecorder {
	tags := usecase.AuditTags{
		AppVersion:   cfg.Audit.AppVersion,
		ModelVersion: cfg.Audit.ModelVersion,
		PromptID:     cfg.Audit.PromptID,
		SourceType:   cfg.Audit.SourceType,
		OriginID:     cfg.Audit.OriginID,
	}
	return usecase.NewAuditRecorder(sink, tags, m, log)
}

// ProvideEvaluator creates the tick evaluator.
func ProvideEvaluator(
	cfg *config.Config,
	store *repository.JSONStore,
	gate drepo.MarketData,
	det *detector.Detector,
	v *validator.Validator,
	audit *usecase.AuditRecorder,
	m drepo.Metrics,
	log *applogger.Logger,
) *usecase.Evaluator {
	return usecase.NewEvaluator(store, gate, det, v, audit, m, drepo.SystemClock{}, log,
		usecase.EvaluatorConfig{
			InvalidThreshold:  cfg.Evaluation.InvalidThreshold,
			IncludeFillCandle: cfg.Evaluation.IncludeFillCandle,
		})
}

// ProvideIngestor creates the signal importer.
func ProvideIngestor(store *repository.JSONStore, log *applogger.Logger) *usecase.Ingestor {
	return usecase.NewIngestor(store, log)
}

// ProvideHTTPServer creates the echo server with the API routes.
func ProvideHTTPServer(
	cfg *config.Config,
	store *repository.JSONStore,
	eval *usecase.Evaluator,
	ing *usecase.Ingestor,
	reg *prometheus.Registry,
	log *applogger.Logger,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(log.With(applogger.String("component", "http"))),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg))
	}
	return xhttp.NewServer(api.NewSignalsHandler(log, store, eval, ing), opts...)
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, eval *usecase.Evaluator, srv *xhttp.Server, log *applogger.Logger) *server.App {
	return server.New(eval, cfg.Evaluation.Interval, srv, log)
}

// ProvideContainer groups the command entry points.
func ProvideContainer(app *server.App, eval *usecase.Evaluator, ing *usecase.Ingestor, store *repository.JSONStore, log *applogger.Logger) *Container {
	return &Container{App: app, Evaluator: eval, Ingestor: ing, Store: store, Logger: log}
}
