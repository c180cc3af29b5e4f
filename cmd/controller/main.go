package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maumercado/taskdispatch/internal/api"
	"github.com/maumercado/taskdispatch/internal/config"
	"github.com/maumercado/taskdispatch/internal/controller"
	"github.com/maumercado/taskdispatch/internal/events"
	"github.com/maumercado/taskdispatch/internal/logger"
	"github.com/maumercado/taskdispatch/internal/reactor"
	"github.com/maumercado/taskdispatch/internal/store"
)

func main() {
	var (
		port      int
		dbPath    string
		adminAddr string
		verbose   bool
		help      bool
	)
	flag.IntVar(&port, "p", 0, "TCP port for worker connections (required, 1..8192)")
	flag.StringVar(&dbPath, "d", "", "database path (required, must already exist)")
	flag.StringVar(&adminAddr, "admin-addr", ":8090", "admin/observability HTTP address; empty disables it")
	flag.BoolVar(&verbose, "v", false, "log to stderr instead of a temp file")
	flag.BoolVar(&help, "h", false, "print usage")
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}
	if err := validateArgs(port, dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := logger.Init("controller", "info", verbose); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Get()
	if !verbose {
		log.Info().Str("log_file", logger.Path()).Msg("logging to temp file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load ambient config")
		os.Exit(1)
	}
	if adminAddr != ":8090" {
		cfg.Admin.Addr = adminAddr
	} else if cfg.Admin.Addr != "" {
		adminAddr = cfg.Admin.Addr
	}

	st, err := store.NewSQLite(dbPath)
	if err != nil {
		log.Error().Err(err).Str("db_path", dbPath).Msg("failed to open task store")
		os.Exit(1)
	}
	defer st.Close()

	bus := events.NewBus()
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		defer rdb.Close()
		mirror := events.NewRedisPubSub(rdb)
		go events.Mirror(ctx, bus, mirror)
		log.Info().Str("redis_addr", cfg.Redis.Addr).Msg("mirroring dispatch events to redis")
	}

	addr := net.JoinHostPort("", strconv.Itoa(port))
	rx := reactor.New(addr, cfg.Poll.Interval, nil)
	ctrl := controller.New(st, rx, bus, *log)
	rx.SetHandler(ctrl)

	if err := ctrl.Load(ctx); err != nil {
		log.Error().Err(err).Msg("startup failed: no open tasks or store unreachable")
		os.Exit(1)
	}

	storeOpen := func() error { return st.Open(context.Background()) }

	var adminServer *api.Server
	var httpServer *http.Server
	if adminAddr != "" {
		adminServer = api.NewServer(cfg, ctrl, rx, storeOpen, bus)
		adminServer.Start(ctx)
		httpServer = &http.Server{
			Addr:         adminAddr,
			Handler:      adminServer,
			ReadTimeout:  cfg.Admin.ReadTimeout,
			WriteTimeout: cfg.Admin.WriteTimeout,
			IdleTimeout:  cfg.Admin.IdleTimeout,
		}
		go func() {
			log.Info().Str("addr", adminAddr).Msg("admin HTTP surface listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin HTTP server error")
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- rx.Run() }()

	log.Info().Int("port", port).Str("db_path", dbPath).Msg("controller started")

	var exitCode int
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			log.Error().Err(err).Msg("reactor exited with error")
			exitCode = 1
		} else {
			log.Info().Msg("task table drained, exiting cleanly")
		}
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin HTTP server shutdown error")
		}
		shutdownCancel()
		adminServer.Stop()
	}

	os.Exit(exitCode)
}

func validateArgs(port int, dbPath string) error {
	if port < 1 || port > 8192 {
		return fmt.Errorf("-p is required and must be in 1..8192")
	}
	if dbPath == "" {
		return fmt.Errorf("-d is required")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("-d %q must already exist: %w", dbPath, err)
	}
	return nil
}
