// titan serves the JavaScript actions under $TITAN_ROOT/actions over HTTP,
// executing them on a fixed pool of engine threads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/cryguy/titan"
	"github.com/cryguy/titan/internal/config"
	"github.com/cryguy/titan/internal/journal"
	"github.com/cryguy/titan/internal/logging"
	"github.com/cryguy/titan/internal/metrics"
	"github.com/cryguy/titan/internal/server"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	log, flush, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "titan: creating logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error(err, "titan exited")
		flush()
		os.Exit(1)
	}
	flush()
}

func run(cfg config.Config, log logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	restart := titan.RestartAlways
	if !cfg.RestartWorkers {
		restart = titan.RestartNever
	}
	engineCfg := titan.EngineConfig{
		MemoryLimitMB: cfg.MemoryLimitMB,
		ExecTimeout:   cfg.ExecTimeout,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	}

	log.Info("starting worker pool",
		"engine", titan.EngineName,
		"root", cfg.Root,
		"threads", cfg.Threads,
		"queueMultiplier", cfg.QueueMultiplier,
	)
	p, err := titan.New(ctx, cfg.Root, engineCfg, log.WithName("pool"),
		titan.WithThreads(cfg.Threads),
		titan.WithQueueMultiplier(cfg.QueueMultiplier),
		titan.WithRestartPolicy(restart),
		titan.WithCPUPinning(cfg.PinCPUs),
		titan.WithObserver(m),
	)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := p.Shutdown(drainCtx); err != nil {
			log.Error(err, "worker pool did not drain")
		}
	}()
	m.WatchPool(p)

	opts := []server.Option{
		server.WithMetrics(m),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		opts = append(opts, server.WithJournal(j))
	}

	srv := server.New(cfg.ListenAddr, p, log.WithName("http"), opts...)
	return srv.Run(ctx)
}
