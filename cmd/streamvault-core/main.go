// Command streamvault-core wires the twelve components (C1-C12) into one
// running process: config + DB first, then the queue/recording/postprocess
// pipeline, then the recovery and cleanup supervisors, then the metrics
// listener, then block on signals. Grounded on the teacher's main.go
// errgroup+signal-handling shutdown shape; HTTP request routing and REST
// handlers are out of scope (spec.md §1), so there is no API server here
// beyond the Prometheus /metrics listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/Serph91P/StreamVault-sub001/cleanup"
	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/fanout"
	"github.com/Serph91P/StreamVault-sub001/ffprobe"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/platform"
	"github.com/Serph91P/StreamVault-sub001/postprocess"
	"github.com/Serph91P/StreamVault-sub001/progress"
	"github.com/Serph91P/StreamVault-sub001/queue"
	"github.com/Serph91P/StreamVault-sub001/recording"
	"github.com/Serph91P/StreamVault-sub001/recovery"
	"github.com/Serph91P/StreamVault-sub001/subprocess"
)

func main() {
	fs := flag.NewFlagSet("streamvault-core", flag.ExitOnError)
	configPath := fs.String("config", "", "path to an optional YAML config file")
	fs.Parse(os.Args[1:])

	if err := config.Load(*configPath); err != nil {
		log.LogError("", "failed to load configuration", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		log.LogError("", "streamvault-core exited with error", err)
		os.Exit(1)
	}
}

func run() error {
	m := metrics.NewMetrics()

	gw, err := db.Open(config.DatabaseDSN, m)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer gw.Close()

	keyB64, err := gw.GetOrCreateEncryptionKey(context.Background())
	if err != nil {
		return fmt.Errorf("loading encryption key: %w", err)
	}
	crypto, err := db.NewCrypto(keyB64)
	if err != nil {
		return fmt.Errorf("initializing crypto: %w", err)
	}
	gw.SetCrypto(crypto)

	hub := fanout.NewHub(m)
	tracker := progress.New(config.CompletedTaskRetention)
	registry := queue.NewRegistry()
	q := queue.NewManager(gw, tracker, registry, hub, m)

	sup := subprocess.New(config.CaptureLogDir)
	var plat platform.Client = platform.StaticClient{URLTemplate: config.PlaybackURLTemplate}
	recMgr := recording.NewManager(gw, sup, tracker, q, hub, m, plat)

	pp := postprocess.NewHandlers(gw, m, ffprobe.Probe{})

	recoveryMgr := recovery.NewManager(gw, tracker, q, hub, m)
	recoverySup, err := recovery.NewSupervisor(recoveryMgr)
	if err != nil {
		return fmt.Errorf("starting recovery supervisor: %w", err)
	}

	registry.Register("start_capture", recMgr.StartCaptureHandler())
	registry.Register("postprocess_step", pp.PostProcessStepHandler())
	registry.Register(string(queue.KindOrphanRecoveryCheck), recoveryMgr.CheckOrphans)

	group, ctx := errgroup.WithContext(context.Background())

	log.LogNoRequestID("streamvault-core: running startup orphan scan")
	if err := recoveryMgr.StartupScan(ctx); err != nil {
		return fmt.Errorf("startup recovery scan: %w", err)
	}

	// hub.Run has no ctx and only returns once its register channel is
	// closed, which never happens during the process's life -- it runs
	// fire-and-forget rather than joining the errgroup, or group.Wait would
	// block past shutdown. q.Run likewise just spawns its own
	// ctx-cancellable loops and returns immediately.
	go hub.Run()
	q.Run(ctx)

	group.Go(func() error {
		return recoverySup.Serve(ctx)
	})
	group.Go(func() error {
		return cleanup.NewSupervisor(gw).Serve(ctx)
	})
	group.Go(func() error {
		return metrics.ListenAndServe(ctx, config.MetricsAddr)
	})
	group.Go(func() error {
		return handleSignals(ctx)
	})

	log.LogNoRequestID("streamvault-core: started", "version", config.Version, "metrics_addr", config.MetricsAddr)

	err = group.Wait()
	recMgr.GracefulShutdown(config.CaptureGracefulTimeout)
	q.Shutdown()
	return err
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			log.LogNoRequestID("streamvault-core: caught signal, shutting down", "signal", s.String())
			return fmt.Errorf("caught signal: %v", s)
		case <-ctx.Done():
			return nil
		}
	}
}
