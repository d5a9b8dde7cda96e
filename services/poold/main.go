package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	params "assetpool/config"
	"assetpool/core/events"
	"assetpool/core/state"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/native/loans"
	"assetpool/native/oracle"
	"assetpool/native/pool"
	"assetpool/observability"
	"assetpool/observability/logging"
	telemetry "assetpool/observability/otel"
	"assetpool/services/poold/config"
	"assetpool/services/poold/feeder"
	"assetpool/services/poold/notify"
	"assetpool/services/poold/server"
	auditstore "assetpool/services/poold/storage"
	"assetpool/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/poold/config.yaml", "path to poold configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("poold: load .env: %v", err)
	}
	env := strings.TrimSpace(os.Getenv("ASSETPOOL_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("poold: load config: %v", err)
	}
	logger := logging.SetupWithOptions("poold", env, logging.Options{
		Level:    logging.ParseLevel(cfg.Log.Level),
		FilePath: cfg.Log.File,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("poold", env))
	if err != nil {
		log.Fatalf("poold: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poold stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	p, err := params.Load(cfg.ParamsPath)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	resolved, err := p.Resolve()
	if err != nil {
		return fmt.Errorf("resolve params: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()
	journal := state.NewJournal(db)
	if err := journal.State().EnsureStateVersion(); err != nil {
		return err
	}
	ledger := journal.Ledger()

	pauses := nativecommon.NewPauseSet()
	ora := oracle.New(resolved.AssetA, resolved.Feeder)
	ora.SetPauses(pauses)
	market, err := pool.New(pool.Config{AssetA: resolved.AssetA, AssetB: resolved.AssetB, FeeBps: p.FeeBps, Admin: resolved.Admin}, ledger)
	if err != nil {
		return fmt.Errorf("configure pool: %w", err)
	}
	market.SetPauses(pauses)
	issuer, capability, err := loans.NewIssuer(resolved.PeggedAsset, p.PegSupplyCap, ledger)
	if err != nil {
		return fmt.Errorf("configure issuer: %w", err)
	}
	book, err := loans.NewBook(loans.Config{
		CollateralAsset:    resolved.AssetA,
		CollateralRatioPct: p.CollateralRatioPct,
		Treasury:           resolved.Treasury,
	}, ledger, issuer, capability)
	if err != nil {
		return fmt.Errorf("configure loan book: %w", err)
	}
	book.SetPauses(pauses)

	if err := journal.Restore(ora, market, book); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	journal.Attach(ora, market, book)
	st := market.State()
	logger.Info("state restored", "reserve_a", st.ReserveA, "reserve_b", st.ReserveB, "loans", len(book.List(crypto.Address{})), "peg_supply", issuer.Supply())

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	dsn, err := auditstore.FileDSN(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("resolve storage DSN: %w", err)
	}
	audit, err := auditstore.Open(dsn)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer audit.Close()

	hub := notify.NewHub(logger)
	targets := []notify.Target{notify.StoreTarget{Store: audit}, hub}
	if url := strings.TrimSpace(cfg.Notify.NATSURL); url != "" {
		conn, err := notify.ConnectNATS(url)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer conn.Drain()
		targets = append(targets, notify.NewNATSTarget(conn, cfg.Notify.NATSSubject))
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.Buffer, logger, targets...)

	emitter := events.Fanout{observability.Events(), dispatcher}
	ora.SetEmitter(emitter)
	market.SetEmitter(emitter)
	book.SetEmitter(emitter)

	auth, err := server.NewAuthenticator(server.AuthConfig{
		Disabled:   cfg.Auth.Disabled,
		HMACSecret: cfg.Auth.Secret(),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		return err
	}
	if cfg.Auth.Disabled {
		logger.Warn("authentication disabled; callers are identified by header", "header", server.DevAccountHeader)
	}
	quota := nativecommon.NewQuotaTracker(nativecommon.Quota{
		MaxRequestsPerEpoch: cfg.Quota.MaxRequests,
		MaxVolumePerEpoch:   cfg.Quota.MaxVolume,
		EpochSeconds:        uint32(cfg.Quota.Epoch.Duration.Seconds()),
	})
	srv, err := server.New(server.Config{
		ListenAddress:         cfg.ListenAddress,
		DefaultSlippageBps:    p.DefaultMaxSlippageBps,
		DefaultLoanDurationMs: p.DefaultLoanDuration,
		DefaultLoanRateBps:    p.DefaultLoanRateBps,
	}, server.Deps{
		Oracle:  ora,
		Pool:    market,
		Book:    book,
		Ledger:  ledger,
		Pauses:  pauses,
		Auth:    auth,
		Limiter: server.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Quota:   quota,
		Store:   audit,
		Stream:  hub,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("configure server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return dispatcher.Run(ctx) })
	group.Go(func() error { return srv.Run(ctx) })

	if cfg.Feeder.Enabled {
		mgr, err := buildFeeder(cfg.Feeder, p, resolved, ora, audit, logger)
		if err != nil {
			stop()
			_ = group.Wait()
			return err
		}
		group.Go(func() error { return mgr.Run(ctx) })
	}

	err = group.Wait()
	logger.Info("poold stopped", "dropped_notifications", dispatcher.Dropped())
	return err
}

// buildFeeder wires the price feeder. The keystore must hold the key of the
// configured feeder account so operators cannot run a feeder the oracle would
// reject.
func buildFeeder(cfg config.FeederConfig, p *params.Params, resolved params.Resolved, ora *oracle.Oracle, audit *auditstore.Storage, logger *slog.Logger) (*feeder.Manager, error) {
	key, err := crypto.LoadFromKeystore(p.FeederKeystorePath, p.Passphrase())
	if err != nil {
		return nil, fmt.Errorf("load feeder keystore: %w", err)
	}
	if addr := key.PubKey().Address(); addr != resolved.Feeder {
		return nil, fmt.Errorf("feeder keystore holds %s, params expect %s", addr, resolved.Feeder)
	}
	registry := feeder.NewRegistry()
	sources := make([]feeder.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		built, err := registry.Build(feeder.SourceConfig{
			Name:     src.Name,
			Type:     src.Type,
			Endpoint: src.Endpoint,
			APIKey:   src.APIKey,
			Assets:   src.Assets,
			Price:    src.Price,
		})
		if err != nil {
			return nil, fmt.Errorf("build source %s: %w", src.Name, err)
		}
		logger.Info("price source configured", "source", src.Name, "type", src.Type, logging.MaskField("api_key", src.APIKey))
		sources = append(sources, built)
	}
	return feeder.New(
		feeder.OraclePublisher{Oracle: ora, Feeder: resolved.Feeder},
		sources,
		feeder.Pair{Base: cfg.Base, Quote: cfg.Quote},
		cfg.Interval.Duration,
		cfg.MaxAge.Duration,
		cfg.MinFeeds,
		feeder.WithLogger(logger.With("component", "feeder")),
		feeder.WithStorage(audit),
	)
}
