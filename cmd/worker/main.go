package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/maumercado/taskdispatch/internal/logger"
	"github.com/maumercado/taskdispatch/internal/task"
	"github.com/maumercado/taskdispatch/internal/worker"
)

func main() {
	var (
		port     int
		workerID string
		slacker  bool
		verbose  bool
		help     bool
	)
	flag.IntVar(&port, "p", 0, "controller port (required, 1..8192)")
	flag.StringVar(&workerID, "w", "", "worker id (required, <=31 bytes)")
	flag.BoolVar(&slacker, "s", false, "enable slacker behavior (adds 20s to every assigned sleep)")
	flag.BoolVar(&verbose, "v", false, "log to stderr instead of a temp file")
	flag.BoolVar(&help, "h", false, "print usage")
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}
	if err := validateArgs(port, workerID); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := logger.Init("worker", "info", verbose); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Get()
	if !verbose {
		log.Info().Str("log_file", logger.Path()).Msg("logging to temp file")
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	c := worker.New(workerID, addr, slacker, *log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("worker_id", workerID).Str("controller_addr", addr).Bool("slacker", slacker).Msg("starting worker")
	if err := c.Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
	log.Info().Msg("worker stopped")
}

func validateArgs(port int, workerID string) error {
	if port < 1 || port > 8192 {
		return fmt.Errorf("-p is required and must be in 1..8192")
	}
	if workerID == "" {
		return fmt.Errorf("-w is required")
	}
	if len(workerID) > task.MaxNameLen {
		return fmt.Errorf("-w must be <= %d bytes", task.MaxNameLen)
	}
	return nil
}
