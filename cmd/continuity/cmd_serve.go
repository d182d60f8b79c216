package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/continuity/internal/deadline"
	"github.com/danielpatrickdp/continuity/internal/health"
)

var serveSession string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deadline monitor with health and metrics endpoints",
	Long: `Resumes the newest (or --session) record, then ticks the deadline
monitor every backup_interval seconds until SIGINT or SIGTERM. When
health_addr is set the gRPC health service reports the monitor state;
when metrics_addr is set Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSession, "session", "", "Session to resume (default: newest)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	resumed, err := rt.resume(serveSession)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	logger.Info("session resumed", zap.String("session_id", resumed))

	if cfg.Retention() > 0 {
		removed, err := rt.store.Prune(time.Now(), cfg.Retention())
		if err != nil {
			logger.Warn("prune failed", zap.Error(err))
		} else if len(removed) > 0 {
			logger.Info("pruned expired sessions", zap.Int("count", len(removed)))
		}
	}

	set, err := deadline.FromConfig(cfg)
	if err != nil {
		return err
	}
	mon := deadline.NewMonitor(set, rt.store, deadline.Options{
		Interval: cfg.TickInterval(),
		Recorder: rt.audit,
		Metrics:  rt.metrics,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	var hs *health.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("health listen: %w", err)
		}
		hs = health.NewServer(logger)
		hs.SetServing(health.ServiceState, true)
		g.Go(func() error { return hs.Serve(lis) })
		g.Go(func() error {
			<-gctx.Done()
			hs.Stop()
			return nil
		})
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if hs != nil {
			hs.SetServing(health.ServiceDeadline, true)
			defer hs.SetServing(health.ServiceDeadline, false)
		}
		if err := mon.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()
	logger.Info("continuity daemon exiting")
	return err
}
