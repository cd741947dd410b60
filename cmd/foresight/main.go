package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TanmayDhobale/miniForesight/internal/audit"
	"github.com/TanmayDhobale/miniForesight/internal/auth"
	"github.com/TanmayDhobale/miniForesight/internal/config"
	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/ingestion"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
	"github.com/TanmayDhobale/miniForesight/internal/persistence"
	"github.com/TanmayDhobale/miniForesight/internal/projection"
	"github.com/TanmayDhobale/miniForesight/internal/query"
	"github.com/TanmayDhobale/miniForesight/internal/server"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("FORESIGHT_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLoggerWithLevel("foresight", observability.ParseLogLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("foresight stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	health := observability.NewHealthChecker()

	// --- Store ---
	var (
		st       store.Store
		db       *sql.DB
		eventLog *persistence.EventLogReader
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		m := store.NewMemory()
		m.OnConflict = metrics.StoreConflicts.Inc
		st = m
		logger.Warn().Msg("memory store: state is lost on exit")

	case config.BackendBadger:
		b, err := store.OpenBadger(store.BadgerOptions{Path: cfg.Store.BadgerDir})
		if err != nil {
			return err
		}
		b.OnConflict = metrics.StoreConflicts.Inc
		st = b
		logger.Info().Str("dir", cfg.Store.BadgerDir).Msg("badger store opened")

	case config.BackendPostgres:
		var err error
		db, err = openPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		pg.OnConflict = metrics.StoreConflicts.Inc
		st = pg
		eventLog = persistence.NewEventLogReader(db)
		health.AddCheck("postgres", db.PingContext)
	}
	defer st.Close()

	// --- Sequencer ---
	lastSeq, tip := int64(0), core.GenesisHash()
	if eventLog != nil {
		var err error
		lastSeq, tip, err = eventLog.ChainTip(ctx)
		if err != nil {
			return err
		}
	}
	sequencer := core.NewSequencer(lastSeq, tip, cfg.Pipeline.EmitBuffer, metrics, observability.NewLogger("sequencer"))
	logger.Info().Int64("sequence", lastSeq).Msg("event chain resumed")

	// Workers outlive the request-serving context so they can drain what the
	// sequencer flushes on shutdown; they stop when their channel closes.
	var (
		workers  errgroup.Group
		channels []chan core.CoreOutput
	)
	attach := func(name string) chan core.CoreOutput {
		ch := make(chan core.CoreOutput, cfg.Pipeline.ProjectionChanSize)
		sequencer.AddProjection(name, ch)
		channels = append(channels, ch)
		return ch
	}
	background := context.Background()

	if db != nil {
		ch := make(chan core.CoreOutput, cfg.Pipeline.PersistChanSize)
		sequencer.SetPersist(ch)
		channels = append(channels, ch)
		pw := persistence.NewPersistenceWorker(db, ch, cfg.Pipeline.PersistBatchSize, cfg.Pipeline.PersistFlushTimeout, metrics, observability.NewLogger("persistence"))
		workers.Go(func() error { return pw.Run(background) })
	}

	// --- Redis read cache ---
	var cache projection.MarketCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		health.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		cache = projection.NewRedisMarketCache(rdb, cfg.Redis.TTL)
		proj := projection.NewProjectionWorker(st, cache, attach("redis"), observability.NewLogger("projection"))
		workers.Go(func() error { return proj.Run(background) })
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis market cache enabled")
	}

	// --- Engine and read side ---
	engine := core.NewEngine(st,
		core.WithEmitter(sequencer),
		core.WithMetrics(metrics),
		core.WithLogger(observability.NewLogger("engine")),
	)
	qopts := []query.Option{query.WithDecimals(cfg.Display.Decimals), query.WithLogger(observability.NewLogger("query"))}
	if cache != nil {
		qopts = append(qopts, query.WithCache(cache))
	}
	qs := query.NewQueryService(st, qopts...)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if verifier.DevMode() {
		logger.Warn().Msg("no jwt secret configured: caller identity headers are trusted")
	}

	g, gctx := errgroup.WithContext(ctx)

	// --- NATS: commands in, events out ---
	if cfg.NATS.Enabled {
		nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, observability.NewLogger("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
			return err
		}
		health.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})

		idem := core.NewIdempotencyChecker(cfg.Pipeline.IdempotencyLRUCapacity, engine, metrics)
		subscriber := ingestion.NewCommandSubscriber(js, engine, verifier, idem, metrics, observability.NewLogger("commands"))
		if err := subscriber.Subscribe(gctx); err != nil {
			return err
		}
		defer subscriber.Stop()

		pub := ingestion.NewOutboundPublisher(ingestion.NewNATSSink(js), attach("nats"), metrics, observability.NewLogger("publisher"))
		workers.Go(func() error { return pub.Run(background) })
	}

	// --- Kafka: events out ---
	if cfg.Kafka.Enabled {
		sink := ingestion.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer sink.Close()
		pub := ingestion.NewOutboundPublisher(sink, attach("kafka"), metrics, observability.NewLogger("publisher"))
		workers.Go(func() error { return pub.Run(background) })
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka event sink enabled")
	}

	g.Go(func() error {
		err := sequencer.Run(gctx)
		for _, ch := range channels {
			close(ch)
		}
		return err
	})

	// --- gRPC and HTTP gateway ---
	srv, err := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		Engine:        engine,
		QueryService:  qs,
		Verifier:      verifier,
		HealthChecker: health,
		Logger:        observability.NewLogger("server"),
	})
	if err != nil {
		return err
	}
	g.Go(func() error { return srv.StartGRPC(gctx) })
	g.Go(func() error { return srv.StartHTTPGateway(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr, health, logger) })

	// --- Audit ---
	if cfg.Audit.Enabled {
		aopts := []audit.Option{audit.WithMetrics(metrics), audit.WithLogger(observability.NewLogger("audit"))}
		if eventLog != nil {
			aopts = append(aopts, audit.WithEventLog(eventLog, cfg.Audit.ChainPageSize))
		}
		sched := audit.NewScheduler(observability.NewLogger("audit"))
		if _, err := audit.ScheduleAudits(sched, audit.NewAuditor(st, aopts...), cfg.Audit.Schedule); err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	health.SetReady(true)
	logger.Info().
		Str("store", cfg.Store.Backend).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("foresight ready")

	err = g.Wait()
	health.SetReady(false)
	logger.Info().Msg("draining pipeline")
	if werr := workers.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		logger.Error().Err(werr).Msg("pipeline worker failed")
	}
	return err
}

func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := persistence.NewMigrator(db, cfg.Store.MigrationsDir, observability.NewLogger("migrate")).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("postgres connected, migrations applied")
	return db, nil
}

func serveMetrics(ctx context.Context, addr string, health *observability.HealthChecker, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
