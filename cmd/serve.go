package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/nextlevelbuilder/infercore/internal/chattemplate"
	"github.com/nextlevelbuilder/infercore/internal/config"
	"github.com/nextlevelbuilder/infercore/internal/generator"
	"github.com/nextlevelbuilder/infercore/internal/modelhost"
	"github.com/nextlevelbuilder/infercore/internal/scheduler"
	"github.com/nextlevelbuilder/infercore/internal/sweep"
)

var (
	sweepSchedule string
	batchSize     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the scheduler and block until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&sweepSchedule, "sweep-schedule", "*/5 * * * *", "cron expression for the periodic stats sweep")
	serveCmd.Flags().IntVar(&batchSize, "batch-size", 8, "generator batch size reported to ModelManager.BatchSize")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if configPath != "" {
		stopWatch, err := config.Watch(cfg, configPath)
		if err != nil {
			slog.Warn("serve: config hot-reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	meterProvider := metric.NewMeterProvider()
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()
	otel.SetMeterProvider(meterProvider)
	meter := meterProvider.Meter("infercore/scheduler")

	snap := cfg.Snapshot()

	host := modelhost.NewHost(batchSize)
	host.Load("default-model") // reference wiring: a real deployment loads its actual backend here
	host.SetConfig(snap.Backend)
	engine := chattemplate.NewEngine()
	gen := generator.NewEchoGenerator()

	schedCfg := scheduler.Config{
		MaxQueueSize:    snap.MaxQueueSize,
		WorkerThreads:   snap.WorkerThreads,
		CacheCapacity:   snap.CacheCapacity,
		ShutdownTimeout: snap.ShutdownTimeout,
	}
	sched := scheduler.New(schedCfg, host, engine, gen, meter)

	sweepJob := sweep.NewJob(sched, sweepSchedule)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		if err := sweepJob.Run(sweepCtx); err != nil {
			slog.Warn("serve: sweep job exited", "error", err)
		}
	}()

	slog.Info("serve: scheduler started", "workerThreads", schedCfg.WorkerThreads, "maxQueueSize", schedCfg.MaxQueueSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("serve: shutting down")
	stopSweep()
	sweepJob.Stop()
	finalStats := sched.ShutdownWithTimeout(schedCfg.ShutdownTimeout)
	slog.Info("serve: shutdown complete",
		"submitted", finalStats.Submitted,
		"completed", finalStats.Completed,
		"failed", finalStats.Failed,
		"cancelled", finalStats.Cancelled,
	)
	return nil
}
