package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/price-spread/internal/app"
	"github.com/maltedev/price-spread/internal/config"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/notify"
	"github.com/maltedev/price-spread/internal/scraper"
	"github.com/maltedev/price-spread/internal/session"
	"github.com/maltedev/price-spread/pkg/logger"
)

func main() {
	var (
		query    = flag.String("query", "", "Search query")
		shop     = flag.String("shop", "", "Marketplace: wildberries, ozon or yandex_market")
		output   = flag.String("output", ".", "Directory the spreadsheet is copied to")
		headless = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	if *query == "" || *shop == "" {
		fmt.Println("Please provide a query with -query and a marketplace with -shop")
		flag.Usage()
		os.Exit(1)
	}

	m, err := models.ParseMarketplace(*shop)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Browser.Headless = *headless && cfg.Browser.Headless

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting price spread crawl", "marketplace", m, "query", *query)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	runner := app.NewRunner(cfg, session.NewMetrics(nil), logger)
	n := notify.NewConsoleNotifier(os.Stdout, *output)

	res, err := runner.Run(ctx, m, *query, n)
	if err != nil {
		if errors.Is(err, scraper.ErrFatalFetch) {
			logger.Error("marketplace unreachable", "error", err)
		} else {
			logger.Error("crawl failed", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("crawl finished",
		"session_id", res.ID,
		"outcome", res.Outcome.Kind,
		"pages", res.Diagnostics.Pages,
		"candidates", res.Diagnostics.Candidates,
		"accepted", res.Diagnostics.Accepted,
		"dropped", res.Diagnostics.Dropped,
		"spreadsheet", n.Saved(),
	)
}
