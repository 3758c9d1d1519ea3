// Command worker runs the second-pass correction pipeline: a
// foreground job-processing loop plus a small admin HTTP surface,
// installable as a native OS service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secondpass/internal/adminapi"
	"secondpass/internal/asr"
	"secondpass/internal/audioslicer"
	"secondpass/internal/clustering"
	"secondpass/internal/config"
	"secondpass/internal/database"
	"secondpass/internal/dropzone"
	"secondpass/internal/multimodal"
	"secondpass/internal/progress"
	"secondpass/internal/store"
	"secondpass/internal/webhook"
	"secondpass/internal/worker"
	"secondpass/pkg/logger"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var svcLogger service.Logger

func main() {
	root := &cobra.Command{
		Use:   "worker",
		Short: "second-pass transcription correction worker",
	}

	root.AddCommand(runCmd(), sweepCmd(), serviceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the worker loop and admin server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground(context.Background())
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "move stale PROCESSING jobs back to PENDING once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := bootConfig()
			if err := database.Initialize(cfg.DatabasePath); err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer database.Close()

			st := store.New(database.DB)
			n, err := st.SweepStaleProcessing(context.Background(), cfg.StaleProcessingAfter)
			if err != nil {
				return fmt.Errorf("sweep stale processing: %w", err)
			}
			logger.Info("sweep complete", "jobs_reset", n)
			return nil
		},
	}
}

// program adapts runForeground to kardianos/service's Start/Stop
// lifecycle: Start must return quickly, so the actual work runs in a
// goroutine; Stop cancels the context runForeground is watching.
type program struct {
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- runForeground(ctx) }()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
		svcLogger.Warning("worker did not stop within 30s of service stop request")
	}
	return nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service [install|uninstall|start|stop]",
		Short: "manage the worker as a native OS service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcConfig := &service.Config{
				Name:        "secondpass-worker",
				DisplayName: "Second-Pass Transcription Worker",
				Description: "Runs the second-pass transcription correction pipeline.",
			}

			prg := &program{}
			s, err := service.New(prg, svcConfig)
			if err != nil {
				return fmt.Errorf("construct service: %w", err)
			}
			svcLogger, err = s.Logger(nil)
			if err != nil {
				return fmt.Errorf("construct service logger: %w", err)
			}

			return service.Control(s, args[0])
		},
	}
	return cmd
}

func bootConfig() *config.Config {
	cfg := config.Load()
	logger.Init(os.Getenv("LOG_LEVEL"))
	return cfg
}

// runForeground wires every component and runs the worker loop and
// admin server under one cancellation signal, returning once both
// have exited. ctx cancellation (or SIGINT/SIGTERM when this is the
// top-level process) cancels the context the worker loop runs under
// and stops the worker, so no new job is claimed and the in-flight
// job's pending calls are cancelled, then shuts the admin server down.
func runForeground(ctx context.Context) error {
	cfg := bootConfig()
	logger.Startup("config", "configuration loaded")

	if err := database.Initialize(cfg.DatabasePath); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()
	logger.Startup("database", "database connection established")

	if cfg.SweepOnStart {
		st := store.New(database.DB)
		if n, err := st.SweepStaleProcessing(ctx, cfg.StaleProcessingAfter); err != nil {
			logger.Warn("startup sweep failed", "error", err)
		} else if n > 0 {
			logger.Info("startup sweep reset stale jobs", "count", n)
		}
	}

	st := store.New(database.DB)
	asrClient := asr.New(cfg.ASRURL, cfg.ASRModel)
	slicer := audioslicer.New(cfg.FFmpegPath, cfg.ClipsDir)
	mmClient := multimodal.New(cfg.MultimodalURL, cfg.MultimodalModel)
	wh := webhook.NewService()
	broadcaster := progress.NewBroadcaster()
	defer broadcaster.Shutdown()

	w := worker.New(st, asrClient, slicer, mmClient, wh, broadcaster, worker.Params{
		ClusteringParams: clustering.Params{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			ProximitySeconds:    cfg.ClusteringProximitySeconds,
			CorrectionWindow:    cfg.CorrectionWindowSeconds,
		},
		WebhookURL:   cfg.DefaultWebhookURL,
		PollInterval: cfg.PollInterval,
	})

	admin := adminapi.New(st, broadcaster)
	httpSrv := &http.Server{Addr: cfg.Addr(), Handler: admin.Handler()}

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	var dz *dropzone.Service
	if cfg.DropzoneEnabled {
		dz = dropzone.NewService(cfg.DropzoneDir, cfg.DropzoneUserID, st)
		if err := dz.Start(); err != nil {
			logger.Warn("dropzone failed to start", "error", err)
			dz = nil
		}
	}

	group, groupCtx := errgroup.WithContext(sigCtx)

	group.Go(func() error {
		logger.Startup("worker", "worker loop started")
		return w.Run(groupCtx)
	})

	group.Go(func() error {
		logger.Startup("admin", fmt.Sprintf("admin API listening on %s", cfg.Addr()))
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()

		select {
		case <-groupCtx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		w.Stop()
		return nil
	})

	err := group.Wait()
	if dz != nil {
		if stopErr := dz.Stop(); stopErr != nil {
			logger.Warn("dropzone stop failed", "error", stopErr)
		}
	}
	return err
}
