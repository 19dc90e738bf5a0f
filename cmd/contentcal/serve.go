package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/contentcal/internal/api"
	"github.com/rahul/contentcal/internal/observability"
	"github.com/rahul/contentcal/internal/session"
	"github.com/rahul/contentcal/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, session sweeper and chat gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	dashboard := observability.IsTerminal()
	if dashboard {
		observability.PrintBanner()
		observability.InitializeTerminal()
		// Route all log output through the terminal mutex so it never
		// interrupts the dashboard's cursor save/restore sequence.
		log.SetOutput(observability.NewTermWriter())
		defer observability.CleanupTerminal()
	}

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Printf("Warning: Failed to initialize telemetry: %v", err)
	} else {
		defer shutdownTelemetry(context.Background())
	}

	if h := a.service.Health(); !h.Healthy {
		return fmt.Errorf("pipeline is not healthy: %v %s", h.Steps.Issues, h.Store)
	}
	if err := a.service.Restore(ctx); err != nil {
		return err
	}

	srv := api.NewServer(a.service, a.metrics)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweeper := a.service.Sweeper(session.CleanupPolicy{
		MaxAge:     cfg.Sessions.MaxAge,
		MaxPerUser: cfg.Sessions.MaxPerUser,
		StaleAfter: cfg.Sessions.StaleAfter,
	}, cfg.Sessions.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("[API] Listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[API] Shutdown: %v", err)
		}
		return a.service.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	if a.telegram != nil {
		g.Go(func() error {
			if err := a.telegram.Start(gctx); err != nil {
				log.Printf("\033[91m[ FAIL ] TELEGRAM GATEWAY ERROR: %v\033[0m", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		heartbeat := time.NewTicker(30 * time.Second)
		defer heartbeat.Stop()
		refresh := time.NewTicker(time.Second)
		defer refresh.Stop()
		observability.Heartbeat()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-heartbeat.C:
				observability.Heartbeat()
				a.logger.LogHeartbeat()
			case <-refresh.C:
				if dashboard {
					observability.PrintLiveStatus()
				}
			}
		}
	})

	err = g.Wait()
	log.Println("\033[95m[ EXIT ] CONTENTCAL STOPPED.\033[0m")
	return err
}
