package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"token-sentinel/internal/analyze"
	"token-sentinel/internal/backend"
	"token-sentinel/internal/config"
	"token-sentinel/internal/dedup"
	"token-sentinel/internal/dexapi"
	"token-sentinel/internal/ethchain"
	"token-sentinel/internal/gate"
	"token-sentinel/internal/logging"
	"token-sentinel/internal/normalize"
	"token-sentinel/internal/notify"
	"token-sentinel/internal/observability"
	"token-sentinel/internal/pipeline"
	"token-sentinel/internal/scan"
	"token-sentinel/internal/sources"
	"token-sentinel/internal/storage"
	"token-sentinel/internal/storage/memory"
	"token-sentinel/internal/storage/migrations"
	"token-sentinel/internal/storage/postgres"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the detection pipeline",
	RunE:  runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging).With().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		scored storage.ScoredCandidateStore
		alerts storage.AlertStore
	)
	if cfg.Database.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		scored = postgres.NewScoredCandidateStore(pool)
		alerts = postgres.NewAlertStore(pool)
		logger.Info().Msg("using postgres storage")
	} else {
		scored = memory.NewScoredCandidateStore()
		alerts = memory.NewAlertStore()
		logger.Info().Msg("using in-memory storage")
	}

	chain, err := ethchain.Dial(ctx, cfg.Scan.RPCEndpoint, logger)
	if err != nil {
		return fmt.Errorf("connect chain rpc: %w", err)
	}
	defer chain.Close()

	market := dexapi.NewClient(dexapi.Options{
		BaseURL: cfg.Scan.MarketAPI,
		Timeout: cfg.Scan.CallTimeout,
		Logger:  logger,
	})

	metrics := observability.NewMetrics("", nil)

	scanner := scan.New(scan.Options{
		Chain:       chain,
		Market:      market,
		Workers:     cfg.Scan.Workers,
		QueueDepth:  cfg.Scan.QueueDepth,
		CallTimeout: cfg.Scan.CallTimeout,
		MaxRetries:  cfg.Scan.MaxRetries,
		OnDegraded: func(fieldGroup string) {
			metrics.ScanDegraded.WithLabelValues(fieldGroup).Inc()
		},
		Logger: logger,
	})

	var scorer analyze.Scorer
	if cfg.Analysis.Stub {
		scorer = backend.NewStubScorer()
		logger.Warn().Msg("using stub scorer; no backend calls will be made")
	} else {
		scorer, err = backend.NewOpenAIScorer(backend.Options{
			APIKey:      cfg.Analysis.APIKey,
			Model:       cfg.Analysis.Model,
			MaxTokens:   cfg.Analysis.MaxTokens,
			Temperature: cfg.Analysis.Temperature,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("create scorer: %w", err)
		}
	}

	engine := analyze.New(analyze.Options{
		Scorer:        scorer,
		CacheCapacity: cfg.Analysis.CacheCapacity,
		CacheTTL:      cfg.Analysis.CacheTTL,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		CallTimeout:   cfg.Analysis.CallTimeout,
		CostCeiling:   cfg.Analysis.CostCeiling,
		CostWindow:    cfg.Analysis.CostWindow,
		Logger:        logger,
	})

	var notifier gate.Notifier
	if cfg.Alerting.Telegram.Enabled {
		notifier, err = notify.NewTelegramNotifier(notify.Options{
			BotToken:    cfg.Alerting.Telegram.BotToken,
			ChatID:      cfg.Alerting.Telegram.ChatID,
			BaseURL:     cfg.Alerting.Telegram.APIBase,
			HourlyLimit: cfg.Alerting.HourlyLimit,
			Alerts:      alerts,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("create notifier: %w", err)
		}
	} else {
		notifier = notify.NewNoopNotifier(logger)
	}

	alertGate := gate.New(gate.Options{
		Notifier:        pipeline.InstrumentNotifier(notifier, metrics),
		MinScore:        cfg.Alerting.MinScore,
		MinLiquidityUSD: cfg.Alerting.MinLiquidityUSD,
		Cooldown:        cfg.Alerting.Cooldown,
		Logger:          logger,
	})

	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}
	supervisor := sources.NewSupervisor(sources.SupervisorOptions{
		RestartDelay:    cfg.Sources.RestartDelay,
		MaxRestartDelay: cfg.Sources.MaxRestartDelay,
		OnRestart: func(adapter string) {
			metrics.SourceRestarts.WithLabelValues(adapter).Inc()
		},
		Logger: logger,
	}, adapters...)

	coord, err := pipeline.New(pipeline.Options{
		Sources:         supervisor,
		Normalizer:      normalize.New(),
		Dedup:           dedup.New(cfg.Dedup.Window),
		Scanner:         scanner,
		Engine:          engine,
		Gate:            alertGate,
		Scored:          scored,
		Alerts:          alerts,
		Metrics:         metrics,
		RehydrateWindow: cfg.Pipeline.RehydrateWindow,
		CooldownWindow:  cfg.Alerting.Cooldown,
		DrainGrace:      cfg.Pipeline.DrainGrace,
		SweepInterval:   cfg.Pipeline.SweepInterval,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	if cfg.Observability.Enabled {
		obs := observability.NewServer(cfg.Observability.ListenAddr, func() any {
			return coord.Health()
		}, logger)
		obs.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(shutdownCtx)
		}()
	}

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	logger.Info().Int("sources", len(adapters)).Msg("pipeline running")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.DrainGrace+5*time.Second)
	defer cancel()
	return coord.Stop(stopCtx)
}

func buildAdapters(cfg *config.Config, logger zerolog.Logger) ([]sources.Adapter, error) {
	var adapters []sources.Adapter

	if cfg.Sources.Chain.Enabled {
		chainSrc, err := sources.NewChainStreamAdapter(sources.ChainStreamOptions{
			Endpoint: cfg.Sources.Chain.WSEndpoint,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, chainSrc)
	}
	if cfg.Sources.Market.Enabled {
		marketSrc, err := sources.NewMarketPollerAdapter(sources.MarketPollerOptions{
			Endpoint:     cfg.Sources.Market.Endpoint,
			PollInterval: cfg.Sources.Market.PollInterval,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, marketSrc)
	}
	if cfg.Sources.Social.Enabled {
		socialSrc, err := sources.NewSocialFeedAdapter(sources.SocialFeedOptions{
			Client:       sources.NewHTTPFeedClient(cfg.Sources.Social.Endpoint, 0),
			PollInterval: cfg.Sources.Social.PollInterval,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, socialSrc)
	}

	return adapters, nil
}
