package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/crossengine/internal/broadcast"
	"github.com/atmx/crossengine/internal/config"
	"github.com/atmx/crossengine/internal/futures"
	"github.com/atmx/crossengine/internal/httpapi"
	"github.com/atmx/crossengine/internal/ledger"
	"github.com/atmx/crossengine/internal/metrics"
	"github.com/atmx/crossengine/internal/options"
	"github.com/atmx/crossengine/internal/quote"
	"github.com/atmx/crossengine/internal/snapshot"
	"github.com/atmx/crossengine/internal/spot"
	"github.com/atmx/crossengine/internal/store"
	"github.com/atmx/crossengine/internal/watchlist"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Durable stores ---
	portfolioStore := store.NewPortfolioStore(cfg.Storage.DataDir)
	futuresStore := store.NewFuturesStore(cfg.Storage.DataDir)
	optionsStore := store.NewOptionsStore(cfg.Storage.DataDir)
	watchlistStore := store.NewWatchlistStore(cfg.Storage.DataDir)

	led, err := ledger.New(portfolioStore)
	if err != nil {
		slog.Error("ledger load failed", "err", err)
		os.Exit(1)
	}

	// --- Quote provider: Alpaca for equities, Binance for crypto pairs ---
	stockVendor := quote.NewAlpacaVendor(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	cryptoVendor := quote.NewBinanceVendor(cfg.Binance.BaseURL)
	quotes := quote.NewCachingProvider(quote.NewRoutingVendor(stockVendor, cryptoVendor))

	// --- Broadcaster: in-process WebSocket hub, optionally fanned out to Redis ---
	wsHub := broadcast.NewWSHub()
	go wsHub.Run()

	var cleanup []func()
	var bcast broadcast.Broadcaster = wsHub
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid redis url", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		redisBcast := broadcast.NewRedisBroadcaster(context.Background(), rdb)
		bcast = broadcast.Multi{wsHub, redisBcast}
		slog.Info("redis event fan-out enabled")
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Product engines ---
	futuresEngine, err := futures.New(futuresStore, led, quotes, bcast)
	if err != nil {
		slog.Error("futures engine load failed", "err", err)
		os.Exit(1)
	}
	optionsEngine, err := options.New(optionsStore, led, quotes, bcast)
	if err != nil {
		slog.Error("options engine load failed", "err", err)
		os.Exit(1)
	}
	spotEngine := spot.New(led, quotes)
	watchlistEngine, err := watchlist.New(watchlistStore)
	if err != nil {
		slog.Error("watchlist load failed", "err", err)
		os.Exit(1)
	}
	aggregator := snapshot.New(led, futuresEngine, optionsEngine, quotes)

	// --- Background sweeps ---
	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	liqMonitor := futures.NewLiquidationMonitor(futuresEngine)
	go liqMonitor.Run(ctx)

	settler := options.NewExpirySettler(optionsEngine)
	go settler.Run(ctx)

	// --- HTTP router ---
	api := httpapi.New(led, spotEngine, futuresEngine, optionsEngine, watchlistEngine, aggregator, bcast)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"crossengine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api/v1/ws", wsHub.HandleWS)
	api.Routes(r)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("crossengine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-quitCh

	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down crossengine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("crossengine stopped")
}
