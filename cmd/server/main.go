// Command server runs the signal API, the metrics endpoint and, when
// enabled, the Binance ticker stream.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"crypto-signals/config"
	"crypto-signals/internal/api"
	"crypto-signals/internal/app"
	"crypto-signals/internal/logger"
	"crypto-signals/internal/metrics"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[server] starting...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[server] %v", err)
	}
	logger.Init("crypto-signals", logger.ParseLevel(cfg.LogLevel))

	a, err := app.New(cfg, nil)
	if err != nil {
		log.Fatalf("[server] wiring failed: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Health.StartLivenessChecker(ctx, a.Redis, a.Store.DB(), 15*time.Second)

	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, a.Health)
		metricsSrv.Start()
	}

	srv := api.NewServer(cfg.HTTPAddr, api.Options{
		Store:           a.Store,
		Signals:         a.Signals,
		Hub:             a.Hub,
		Market:          a.Market,
		Engines:         a.Engines(),
		Panic:           a.Panic,
		Health:          a.Health,
		CronSecret:      cfg.CronSecret,
		PanicTOTPSecret: cfg.PanicTOTPSecret,
		KlineInterval:   cfg.KlineInterval,
		KlineLimit:      cfg.KlineLimit,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.Stream != nil {
		g.Go(func() error {
			if err := a.Stream.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[server] ticker stream stopped: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[server] shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			metricsSrv.Stop(shutdownCtx)
		}
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("[server] exited with error: %v", err)
		a.Close()
		os.Exit(1)
	}
	log.Println("[server] stopped")
}
