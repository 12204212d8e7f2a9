package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/api"
	"github.com/onemorebsmith/coinduel/src/cache"
	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/engine"
	"github.com/onemorebsmith/coinduel/src/metrics"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/postgres"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type serverConfig struct {
	common.CommonConfig `yaml:",inline"`
	engine.Config       `yaml:",inline"`
	ListenAddress       string `yaml:"listen_address"`
	MigrateOnStart      bool   `yaml:"migrate_on_start"`
}

func main() {
	pwd, _ := os.Getwd()
	cfg := serverConfig{
		CommonConfig:  common.CommonConfig{PromPort: ":2112", LogLevel: "info"},
		Config:        engine.DefaultConfig(),
		ListenAddress: ":8080",
	}
	if err := common.LoadConfig(path.Join(pwd, "config.yaml"), &cfg); err != nil {
		log.Printf("%s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.ListenAddress, "listen", cfg.ListenAddress, "address to serve the duel api, default `:8080`")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection, empty keeps ledgers in memory`)
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, `address of the redis instance, empty keeps sessions in memory`)
	flag.StringVar(&cfg.AgentURL, "agent", cfg.AgentURL, `url of the agent endpoint, empty disables the assistants`)
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level, default `info`")
	flag.BoolVar(&cfg.SampleData, "sample", cfg.SampleData, "seed new players with a demo history")
	flag.BoolVar(&cfg.MigrateOnStart, "migrate", cfg.MigrateOnStart, "apply postgres migrations before serving")
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing duel server")
	log.Printf("\tlisten:        %s", cfg.ListenAddress)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\tredis:         %s", cfg.RedisConfig)
	log.Printf("\tagents:        %s", cfg.AgentURL)
	log.Printf("\tplatform fee:  %s", cfg.PlatformFee)
	log.Printf("\twager tiers:   %v", cfg.WagerTiers)
	log.Printf("\tsample data:   %t", cfg.SampleData)
	log.Println("----------------------------------")

	logger := common.ConfigureZap(common.ParseLevel(cfg.LogLevel))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("duel server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	fee, err := cfg.Fee()
	if err != nil {
		return err
	}
	tiers, err := cfg.Tiers()
	if err != nil {
		return err
	}
	initial, err := cfg.Initial()
	if err != nil {
		return err
	}
	resolver, err := duel.NewResolver(fee, duel.WithLogger(logger))
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithContext(ctx),
		engine.WithTimings(cfg.Timings()),
		engine.WithInitialBalance(initial),
		engine.WithSampleData(cfg.SampleData),
	}
	simOpts := []poolsim.Option{poolsim.WithLogger(logger)}
	// journals and snapshots fall back to memory, shared so a reconnect
	// finds the ledger it left
	mem := engine.NewMemoryStore()

	if cfg.PostgresConfig != "" {
		postgres.ConfigurePostgres(cfg.PostgresConfig)
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.PostgresConfig); err != nil {
				return err
			}
		}
		opts = append(opts, engine.WithJournalStore(postgres.NewStore()))
	} else {
		logger.Warn("no postgres configured, ledgers live in memory only")
		opts = append(opts, engine.WithJournalStore(mem))
	}

	var rd *redis.Client
	if cfg.RedisConfig != "" {
		rd, err = cache.ConfigureRedis(ctx, cfg.RedisConfig)
		if err != nil {
			return err
		}
		defer rd.Close()
		opts = append(opts, engine.WithSnapshotStore(cache.NewSessionStore(rd)))
		simOpts = append(simOpts, poolsim.WithPublisher(cache.NewPoolMirror(rd)))
	} else {
		opts = append(opts, engine.WithSnapshotStore(mem))
	}

	if cfg.AgentURL != "" {
		collab := agent.NewHTTPCollaborator(cfg.AgentURL, cfg.AgentTimeout, logger)
		opts = append(opts, engine.WithDispatcher(agent.NewDispatcher(collab, cfg.Agents, cfg.AgentTimeout, logger)))
	}

	seed := cfg.PoolSeed
	if seed == 0 {
		if seed, err = common.NewSeed(); err != nil {
			return err
		}
	}
	pool := poolsim.NewSimulator(tiers, seed, simOpts...)
	go pool.RefreshThread(ctx, cfg.PoolRefresh)

	eng := engine.New(pool, resolver, opts...)

	if cfg.PromPort != "" {
		metrics.StartPromServer(logger, cfg.PromPort)
	}
	if cfg.HealthCheckPort != "" {
		go beginReadyzHandler(cfg, rd)
	}

	srv := api.NewServer(cfg.ListenAddress, eng, logger)
	errs := make(chan error, 1)
	go func() {
		logger.Info("serving duel api", zap.String("addr", cfg.ListenAddress))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "duel api failed")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	eng.Shutdown(shutdownCtx)
	return nil
}

func beginReadyzHandler(cfg serverConfig, rd *redis.Client) {
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.PostgresConfig != "" {
			if err := postgres.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
				return
			}
		}
		if rd != nil {
			if err := rd.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging redis").Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	http.ListenAndServe(cfg.HealthCheckPort, mux)
}
