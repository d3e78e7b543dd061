package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalengine/config"
	"signalengine/internal/api"
	"signalengine/internal/auth"
	"signalengine/internal/autotrader"
	"signalengine/internal/broadcast"
	"signalengine/internal/cache"
	"signalengine/internal/logging"
	"signalengine/internal/moneymanagement"
	"signalengine/internal/persistence"
	"signalengine/internal/rulebook"
	"signalengine/internal/scanner"
	"signalengine/internal/secrets"
	"signalengine/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Pretty:    cfg.Logging.Pretty,
		Component: "signalengine",
	})
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vault, err := secrets.NewStore(secrets.Config{
		Enabled:    cfg.Vault.Enabled,
		Address:    cfg.Vault.Address,
		Token:      cfg.Vault.Token,
		SecretPath: cfg.Vault.SecretPath,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("construct vault store")
	}

	upstreamToken := cfg.Upstream.Token
	if cfg.Vault.Enabled {
		token, err := vault.UpstreamToken(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("read upstream token from vault")
		}
		if token != "" {
			upstreamToken = token
		} else if upstreamToken != "" {
			if err := vault.PutUpstreamToken(ctx, upstreamToken); err != nil {
				logger.Warn().Err(err).Msg("seed upstream token into vault")
			}
		}
	}

	book, err := rulebook.Load(cfg.Rulebook.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Rulebook.Path).Msg("load rulebook")
	}
	symbols := book.Symbols()
	if len(symbols) == 0 {
		logger.Fatal().Msg("rulebook has no active symbols")
	}

	redisCache := cache.New(cache.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if cfg.Redis.Enabled {
		if err := redisCache.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
	}

	var sink *persistence.DocumentSink
	if cfg.Persistence.PostgresDSN != "" {
		db, err := persistence.NewDB(ctx, persistence.Config{DSN: cfg.Persistence.PostgresDSN})
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to postgres")
		}
		defer db.Close()
		sink = persistence.NewDocumentSink(db, logger)
	} else {
		logger.Warn().Msg("no postgres dsn configured, trade history will not be persisted")
	}

	hub := broadcast.NewHub(logger)

	upstreamClient, err := upstream.Dial(ctx, cfg.Upstream.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.Upstream.URL).Msg("dial upstream")
	}
	defer upstreamClient.Close()

	moneyMode := moneymanagement.ModeFix
	if cfg.MoneyManagement.Mode == "martingale" {
		moneyMode = moneymanagement.ModeMartingale
	}

	session, err := autotrader.NewSession(autotrader.Config{
		Symbols:        symbols,
		DefaultOptions: cfg.Analysis,

		UpstreamToken:  upstreamToken,
		HistoryCount:   cfg.Upstream.HistoryCount,
		HistoryTimeout: time.Duration(cfg.Upstream.HistoryTimeoutSecs) * time.Second,
		BuyThrottle:    time.Duration(cfg.Upstream.BuyThrottleMillis) * time.Millisecond,

		MoneyMode:    moneyMode,
		InitialStake: cfg.MoneyManagement.InitialStake,
		TargetProfit: cfg.Lot.TargetProfit,
		TargetWin:    cfg.Lot.TargetWin,

		ContractDuration:     cfg.MoneyManagement.Duration,
		ContractDurationUnit: cfg.MoneyManagement.DurationUnit,
		Currency:             cfg.MoneyManagement.Currency,

		LotLogDir:     cfg.Lot.LogDir,
		HistoryLogDir: cfg.Lot.HistoryDir,
	}, autotrader.Dependencies{
		Client:   upstreamClient,
		Rulebook: book,
		Hub:      hub,
		Sink:     sink,
		Cache:    redisCache,
		Log:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("construct trading session")
	}

	assets := make([]scanner.AssetConfig, 0, len(symbols))
	for _, symbol := range symbols {
		assets = append(assets, scanner.AssetConfig{Symbol: symbol, Name: symbol})
	}
	scan := scanner.New(scanner.Config{
		CronSpec:        cfg.Scanner.CronSchedule,
		CandleCount:     cfg.Upstream.HistoryCount,
		IndicatorPeriod: cfg.Analysis.CIPeriod,
		SaveToSink:      sink != nil,
		Assets:          assets,
	}, upstreamClient, sink, logger)

	passwordHash, err := auth.HashPassword(cfg.Auth.Password)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash operator password")
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenDuration)

	server := api.NewServer(api.Dependencies{
		JWTManager:     jwtManager,
		Cache:          redisCache,
		Scanner:        scan,
		Control:        session,
		TradeHistory:   api.DocumentSinkTradeHistory{Sink: sink},
		LoginUser:      cfg.Auth.Username,
		LoginHash:      passwordHash,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            logger,
	})

	if cfg.Scanner.Enabled {
		if err := scan.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start scanner")
		}
	}

	sessionErrs := make(chan error, 1)
	go func() {
		sessionErrs <- session.Run(ctx)
	}()

	serverErrs := make(chan error, 1)
	go func() {
		serverErrs <- server.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-sessionErrs:
		if err != nil {
			logger.Error().Err(err).Msg("trading session exited")
		}
	case err := <-serverErrs:
		if err != nil {
			logger.Error().Err(err).Msg("http server exited")
		}
	}

	scan.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	if err := redisCache.Close(); err != nil {
		logger.Warn().Err(err).Msg("close redis cache")
	}

	logger.Info().Msg("signalengine stopped")
}
