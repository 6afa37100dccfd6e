// Package main runs the holdings tracker: it values wallet holdings from
// validated Jupiter/DexScreener prices, signals auto-sells, runs the
// paper-trading simulator and serves a small JSON API with Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-trade-tracker/internal/config"
	"solana-trade-tracker/internal/logging"
	"solana-trade-tracker/internal/observability"
	"solana-trade-tracker/internal/papertrading"
	"solana-trade-tracker/internal/pricefeed"
	"solana-trade-tracker/internal/pricevalidation"
	"solana-trade-tracker/internal/solana"
	"solana-trade-tracker/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of a database")
	httpAddr := flag.String("http-addr", "", "HTTP API and metrics address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *useMemory, logger); err != nil {
		logger.WithError(err).Fatal("Tracker failed")
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, useMemory bool, logger *logrus.Logger) error {
	st, cleanup, err := createStores(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var validator *pricevalidation.Validator
	if cfg.PriceValidation.Enabled {
		validator = pricevalidation.New(cfg.PriceValidation.Config)
	}

	client := pricefeed.NewHTTPClient(cfg.FeedClientOptions()...)
	feeds := []pricefeed.Feed{
		pricefeed.NewJupiterClient(cfg.Feeds.JupiterURL, client),
		pricefeed.NewDexScreenerClient(cfg.Feeds.DexScreenerURL, cfg.Feeds.DexID, client),
	}
	var resolverOpts []pricefeed.ResolverOption
	if st.samples != nil {
		resolverOpts = append(resolverOpts, pricefeed.WithArchive(st.samples))
	}
	resolver := pricefeed.NewResolver(cfg.ResolverConfig(), feeds, validator, logger, resolverOpts...)

	// validator is a typed nil when disabled; keep the interface nil too.
	var history tracker.HistoryClearer
	if validator != nil {
		history = validator
	}
	seller := tracker.LogSeller{Log: logger.WithField("component", "seller")}
	holdingsTracker := tracker.New(cfg.TrackerConfig(), st.holdings, resolver, history, seller, logger)

	var sim *papertrading.Simulator
	if cfg.PaperTrading.Enabled {
		sim = papertrading.NewSimulator(cfg.PaperTrading, st.paper, resolver, logger)
	}

	var rpc solana.RPCClient
	if cfg.Solana.RPCURL != "" {
		rpc = solana.NewHTTPClient(cfg.Solana.RPCURL, cfg.RPCClientOptions()...)
	}

	api := newAPIServer(st, holdingsTracker, sim, rpc, cfg.Solana.Wallet, logger)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"driver":       st.driver,
		"validation":   cfg.PriceValidation.Enabled,
		"price_source": cfg.Sell.PriceSource,
		"paper":        cfg.PaperTrading.Enabled,
		"rpc":          rpc != nil,
		"http":         cfg.HTTP.Addr,
	}).Info("Starting tracker")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(holdingsTracker.Run(gctx))
	})
	if sim != nil {
		g.Go(func() error {
			return ignoreCanceled(sim.Run(gctx))
		})
	}
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				observability.AddUptime(1)
			}
		}
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
