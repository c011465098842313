package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/bingohall/cmd/bingo/shared"
	"github.com/lox/bingohall/internal/config"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/metrics"
	"github.com/lox/bingohall/internal/server"
	"github.com/lox/bingohall/internal/store"
	"github.com/lox/bingohall/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// ServeCmd runs the engine behind the WebSocket server
type ServeCmd struct {
	Config        string `short:"c" default:"bingo.hcl" env:"BINGO_CONFIG" help:"Path to HCL configuration file"`
	Addr          string `short:"a" env:"BINGO_ADDR" help:"Server address to bind to (overrides config)"`
	RedisAddr     string `env:"BINGO_REDIS_ADDR" help:"Redis address (overrides config; empty keeps wallets and history in memory)"`
	RedisPassword string `env:"BINGO_REDIS_PASSWORD" help:"Redis password (overrides config)"`
	Seed          *int64 `help:"Deterministic draw seed (optional)"`
	DispatchLimit int    `default:"16" help:"Maximum concurrent wallet and store calls"`
}

type roundStore interface {
	engine.Store
	server.History
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Server.LogLevel = g.LogLevel
	}
	if c.RedisAddr != "" {
		cfg.Redis.Address = c.RedisAddr
	}
	if c.RedisPassword != "" {
		cfg.Redis.Password = c.RedisPassword
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel)
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	var (
		wallets engine.Wallet
		rounds  roundStore
	)
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		w, err := wallet.NewRedis(&wallet.Config{RedisClient: rdb})
		if err != nil {
			return err
		}
		ttl, err := cfg.RoundTTL()
		if err != nil {
			return err
		}
		s, err := store.NewRedis(&store.Config{RedisClient: rdb, TTL: ttl})
		if err != nil {
			return err
		}
		wallets, rounds = w, s
		logger.Info("Using Redis gateways", "redis", cfg.Redis.Address, "db", cfg.Redis.DB)
	} else {
		wallets, rounds = wallet.NewMemory(quartz.NewReal()), store.NewMemory()
		logger.Warn("No Redis configured, wallets and round history are kept in memory")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := engine.Options{
		Config:        engineCfg,
		Wallet:        wallets,
		Store:         rounds,
		Logger:        logger,
		DispatchLimit: c.DispatchLimit,
	}
	if c.Seed != nil {
		opts.Seed = *c.Seed
		logger.Info("Using deterministic seed", "seed", *c.Seed)
	}
	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	eng.Bus().Subscribe(m)

	srv := server.NewServer(eng, logger, server.WithHistory(rounds), server.WithMetrics(m, reg))

	logger.Info("Starting bingo hall",
		"addr", addr,
		"bet", engineCfg.BetAmount,
		"payout", engineCfg.PayoutPercent.String()+"%",
		"min_players", engineCfg.MinPlayers,
		"max_players", engineCfg.MaxPlayers,
		"draw_interval", engineCfg.DrawInterval)

	ctx := shared.SetupSignalHandler(logger)
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := eng.Start(gctx); err != nil {
			return err
		}
		<-eng.Done()
		if err := eng.Err(); err != nil {
			return fmt.Errorf("engine halted: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return srv.Serve(gctx, addr)
	})

	err = group.Wait()
	eng.Stop()
	logger.Info("Server stopped")
	return err
}

// waitForRound blocks until the server at baseURL reports an open round.
func waitForRound(baseURL string, timeout time.Duration) (engine.Status, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	status, err := server.WaitForRound(ctx, baseURL)
	if err != nil {
		return engine.Status{}, fmt.Errorf("server at %s not ready: %w", baseURL, err)
	}
	return status, nil
}
