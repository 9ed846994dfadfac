package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auction "auction-engine/internal/auctionService"
	"auction-engine/internal/config"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/postgres"
	"auction-engine/internal/server"
	"auction-engine/internal/sweeper"
	"auction-engine/utils"

	"github.com/brianvoe/gofakeit/v6"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)

	store, closeStore, err := newStore(cfg)
	if err != nil {
		utils.Fatal("failed to open auction store", map[string]any{"error": err.Error()})
	}

	dispatcher := notify.NewDispatcher(store, notify.LogSender{}, cfg.NotifyBuffer, cfg.NotifyThrottle)
	auctionSvc := auction.NewAuctionService(store, dispatcher, auction.WithRetryLimit(cfg.BidRetryLimit))

	if cfg.SeedDemoData && cfg.StoreBackend == "memory" {
		seedDemoAuctions(auctionSvc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweep := sweeper.NewSweeper(auctionSvc, cfg.SweepInterval)
	go sweep.Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      server.SetupRouter(auctionSvc),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"address": cfg.ServerAddress, "store": cfg.StoreBackend})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Fatal("http server error", map[string]any{"error": err.Error()})
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	utils.Info("received signal, shutting down", map[string]any{"signal": sig.String()})

	cancel() // stop the sweeper

	timeout, tcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer tcancel()
	if err := httpServer.Shutdown(timeout); err != nil {
		utils.Error("http server shutdown error", map[string]any{"error": err.Error()})
	}

	dispatcher.Close() // drain pending notifications

	if err := closeStore(); err != nil {
		utils.Error("store closing error", map[string]any{"error": err.Error()})
	}
	utils.Info("exiting", nil)
}

// newStore builds the configured AuctionStore backend and a close func.
func newStore(cfg *config.Config) (repository.AuctionStore, func() error, error) {
	switch cfg.StoreBackend {
	case "postgres":
		store, err := postgres.NewStore(nil, &cfg.PostgresConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return repository.NewMemoryStore(), func() error { return nil }, nil
	}
}

// seedDemoAuctions adds sample auctions to the in-memory store
func seedDemoAuctions(svc *auction.AuctionService) {
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		spec := auction.CreateAuctionSpec{
			Name:              gofakeit.ProductName(),
			Description:       gofakeit.Sentence(8),
			PrizeDescription:  gofakeit.ProductDescription(),
			InitialPrice:      int64(gofakeit.Number(50, 500)),
			MinBidIncrement:   int64(gofakeit.Number(5, 25)),
			StartTime:         now,
			EndTime:           now.Add(time.Duration(gofakeit.Number(30, 120)) * time.Minute),
			AutoExtendMinutes: 5,
			CreatedBy:         "admin",
		}

		a, err := svc.CreateAuction(context.Background(), spec)
		if err != nil {
			utils.Warn("failed to seed demo auction", map[string]any{"error": err.Error()})
			continue
		}
		utils.Info("seeded demo auction", map[string]any{"auction_id": a.AuctionID, "name": a.Name})
	}
}
