// Package main runs the workbench service: the operator API over sessions,
// quotes, orders, withdrawals, transfer tracking and the transaction ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"custody-workbench/internal/api"
	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/config"
	"custody-workbench/internal/ledger"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/pricefeed"
	"custody-workbench/internal/session"
	"custody-workbench/internal/storage"
	chstore "custody-workbench/internal/storage/clickhouse"
	"custody-workbench/internal/storage/memory"
	"custody-workbench/internal/storage/migrations"
	pgstore "custody-workbench/internal/storage/postgres"
	"custody-workbench/internal/tracking"
	"custody-workbench/internal/upstream"
	"custody-workbench/internal/withdrawal"
)

func main() {
	cfg := config.Load()

	// Flags default to the loaded config
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "HTTP listen address")
	baseURL := flag.String("upstream", cfg.Upstream.BaseURL, "Custody API base URL")
	priceFeedURL := flag.String("price-feed", cfg.PriceFeed.URL, "Price feed websocket URL (empty disables)")
	postgresDSN := flag.String("postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.Storage.ClickhouseDSN, "ClickHouse connection string (empty keeps observations in PostgreSQL)")
	useMemory := flag.Bool("use-memory", cfg.Storage.UseMemory, "Use in-memory journal instead of PostgreSQL")
	redisAddr := flag.String("redis-addr", cfg.Redis.Addr, "Redis address for the collections cache (empty uses memory)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	cfg.HTTPAddr = *httpAddr
	cfg.Upstream.BaseURL = *baseURL
	cfg.PriceFeed.URL = *priceFeedURL
	cfg.Storage.PostgresDSN = *postgresDSN
	cfg.Storage.ClickhouseDSN = *clickhouseDSN
	cfg.Storage.UseMemory = *useMemory
	cfg.Redis.Addr = *redisAddr
	cfg.LogLevel = *logLevel

	setupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())

	journal, closeStores, err := createJournal(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create journal stores")
	}
	defer closeStores()

	backend, closeBackend, err := createCacheBackend(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cache backend")
	}
	defer closeBackend()

	notifier, recorder, closeNotifier := createNotifier(cfg.Kafka)
	defer closeNotifier()

	client := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithMaxRetries(cfg.Upstream.MaxRetries),
		upstream.WithRateLimit(cfg.Upstream.RPS, max(1, int(cfg.Upstream.RPS))),
		upstream.WithLogger(log.Logger),
	)
	cache := collections.New(client, backend, collections.WithLogger(log.Logger))

	clk := clock.New()
	bookOpts := []ledger.BookOption{ledger.WithClock(clk), ledger.WithLogger(log.Logger)}
	deps := api.Deps{
		Sessions: session.NewRegistry(clk),
		Upstream: client,
		Withdrawals: withdrawal.NewService(client, cache,
			withdrawal.WithNotifier(notifier),
			withdrawal.WithJournal(journal),
			withdrawal.WithClock(clk),
			withdrawal.WithLogger(log.Logger),
		),
		Cache:     cache,
		Notices:   recorder,
		Notifier:  notifier,
		Journal:   journal,
		Clock:     clk,
		QuoteTick: cfg.QuoteTick,
		PageSize:  cfg.LedgerPageSize,
		Logger:    log.Logger,
	}

	if cfg.PriceFeed.URL != "" {
		feed, err := pricefeed.Dial(ctx, cfg.PriceFeed.URL, cfg.PriceFeed.Markets, nil, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("price feed unavailable, market estimates disabled")
		} else {
			defer feed.Close()
			deps.Prices = feed
			bookOpts = append(bookOpts, ledger.WithPrices(feed))
		}
	}

	tracker := tracking.NewTracker(client,
		tracking.WithClock(clk),
		tracking.WithInterval(cfg.StatusPollInterval),
		tracking.WithInvalidator(cache),
		tracking.WithNotifier(notifier),
		tracking.WithJournal(journal),
		tracking.WithLogger(log.Logger),
	)
	defer tracker.Close()
	deps.Tracker = tracker

	book := ledger.NewBook(cache, bookOpts...)
	defer book.Close()
	deps.Book = book

	server := api.NewServer(deps)
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("upstream", cfg.Upstream.BaseURL).
		Bool("memory_journal", cfg.Storage.UseMemory).
		Bool("redis_cache", cfg.Redis.Addr != "").
		Msg("workbench starting")

	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("http server failed")
	}
	cancel()
	close(done)

	log.Info().Msg("shutdown complete")
}

// setupLogger configures the global zerolog logger.
func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if lvl > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}

// createJournal creates the audit journal over memory or database stores.
func createJournal(ctx context.Context, cfg config.StorageConfig) (*storage.Journal, func(), error) {
	if cfg.UseMemory {
		journal := storage.NewJournal(memory.NewSubmissionStore(), memory.NewStatusObservationStore(), log.Logger)
		return journal, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	submissions := pgstore.NewSubmissionStore(pool)
	if cfg.ClickhouseDSN == "" {
		journal := storage.NewJournal(submissions, pgstore.NewStatusObservationStore(pool), log.Logger)
		return journal, pool.Close, nil
	}

	// ClickHouse keeps the append-only poll timeline
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	journal := storage.NewJournal(submissions, chstore.NewStatusObservationStore(chConn), log.Logger)
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return journal, cleanup, nil
}

// createCacheBackend selects redis when configured, memory otherwise.
func createCacheBackend(ctx context.Context, cfg config.RedisConfig) (collections.Backend, func(), error) {
	if cfg.Addr == "" {
		return collections.NewMemoryBackend(cfg.TTL, nil), func() {}, nil
	}

	client, err := collections.Connect(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return collections.NewRedisBackend(client, cfg.TTL), func() { client.Close() }, nil
}

// createNotifier fans notices out to the log, the per-session recorder and
// kafka when a broker is configured.
func createNotifier(cfg config.KafkaConfig) (notify.Notifier, *notify.Recorder, func()) {
	recorder := notify.NewRecorder(notify.DefaultRecorderCapacity)
	sinks := []notify.Notifier{notify.NewLogSink(log.Logger), recorder}

	if cfg.Broker == "" {
		return notify.Multi(sinks...), recorder, func() {}
	}

	writer := notify.NewKafkaWriter(cfg.Broker, cfg.Topic)
	sinks = append(sinks, notify.NewKafkaSink(writer, log.Logger))
	cleanup := func() {
		if err := writer.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka writer close failed")
		}
	}
	return notify.Multi(sinks...), recorder, cleanup
}
