// Command penny runs an automated momentum paper-trading bot for low-priced
// cryptocurrencies. It scans exchange markets (Binance, Bybit), scores
// candidates with technical indicators, and trades a simulated portfolio
// toward profit-target, stop-loss or trailing-stop exits.
//
// Usage:
//
//	penny --config config.yaml
//	penny --platform binance --quote USDT
//	penny setup   (interactive configuration wizard)
//
// Market data is public; no API keys are required for paper trading.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/penny/config"
	"github.com/vadiminshakov/penny/internal"
	"github.com/vadiminshakov/penny/internal/services/ledger"
	"github.com/vadiminshakov/penny/internal/services/pricefeed"
	"github.com/vadiminshakov/penny/internal/services/scanner"
	"github.com/vadiminshakov/penny/internal/services/strategy/momentum"
	"github.com/vadiminshakov/penny/internal/setup"
	"github.com/vadiminshakov/penny/internal/storage/decisions"
	"github.com/vadiminshakov/penny/internal/storage/portfolio"
	"github.com/vadiminshakov/penny/internal/web"
	"go.uber.org/zap"
)

const candleCacheTTL = 30 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		cfg *config.Config
		err error
	)
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			logger.Fatal("setup wizard failed", zap.Error(err))
		}
		cfg, err = config.Load(setup.GeneratedConfigFile)
	} else {
		cfg, err = config.Get()
	}
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := portfolio.NewStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("failed to init portfolio store", zap.Error(err))
	}

	journal, err := decisions.NewJournal(filepath.Join(cfg.DataDir, "wal", "decisions"))
	if err != nil {
		logger.Fatal("failed to init decision journal", zap.Error(err))
	}
	defer journal.Close()

	book, err := ledger.New(logger, cfg, store)
	if err != nil {
		logger.Fatal("failed to init paper trading ledger", zap.Error(err))
	}

	counter := pricefeed.NewCallCounter()
	cache := pricefeed.NewCandleCache(candleCacheTTL)

	var source pricefeed.Source
	switch cfg.Platform {
	case "binance":
		source = pricefeed.NewBinanceSource(binance.NewClient("", ""), counter, cache)
	case "bybit":
		source = pricefeed.NewBybitSource(pricefeed.NewBybitClient(), counter, cache)
	default:
		logger.Fatal("unsupported platform", zap.String("platform", cfg.Platform))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var feed *pricefeed.Feed
	if cfg.FeedEnabled && cfg.Platform == "binance" {
		feed = pricefeed.NewFeed(logger, 0)
		go feed.Run(ctx)
	}

	strat := momentum.New(logger, cfg, book, source, feed, journal)
	scan := scanner.New(logger, cfg, source, feed)
	bot := internal.NewTradingBot(logger, cfg, scan, strat)

	if cfg.WebAddr != "" {
		server := web.NewServer(cfg.WebAddr, logger, book, journal)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("web server stopped", zap.Error(err))
			}
		}()
		logger.Info("status page available", zap.String("addr", cfg.WebAddr))
	}

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("trading bot stopped", zap.Error(err))
	}
}
