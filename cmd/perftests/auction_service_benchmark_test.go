package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	auction "auction-engine/internal/auctionService"
	model "auction-engine/internal/models"
	repository "auction-engine/internal/repository"
)

// discardPublisher drops notification intents so benchmarks measure
// the bidding path alone.
type discardPublisher struct{}

func (discardPublisher) Publish(intent model.NotificationIntent) {}

func seedAuction(store *repository.MemoryStore, id string) {
	_, err := store.CreateAuction(context.Background(), model.Auction{
		AuctionID:       id,
		Name:            "benchmark " + id,
		InitialPrice:    100,
		MinBidIncrement: 1,
		Status:          model.StatusActive,
		StartTime:       time.Now().Add(-time.Hour),
		EndTime:         time.Now().Add(24 * time.Hour),
		CreatedBy:       "bench",
	})
	if err != nil {
		panic(err)
	}
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{})
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		seedAuction(store, fmt.Sprintf("auction_%d", i))
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user_%d", i)
		auctionID := fmt.Sprintf("auction_%d", i)
		amount := int64(100 + rand.Intn(100))
		if _, err := svc.PlaceBid(ctx, auctionID, userID, amount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{}, auction.WithRetryLimit(10))
	ctx := context.Background()

	seedAuction(store, "shared_auction_1")

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 100

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_parallel_%d", rnd.Int())

			// Monotonic amounts keep most bids acceptable; losers of the
			// version race fail validation and that is part of the workload.
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			_, _ = svc.PlaceBid(ctx, "shared_auction_1", userID, nextBid)
		}
	})
}

// Benchmark 3: GetWinningBid - Single-Threaded (Low Contention)
func Benchmark_GetWinningBid_SingleThreaded(b *testing.B) {
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{})
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		seedAuction(store, auctionID)

		for j := 0; j < 10; j++ {
			userID := fmt.Sprintf("user_%d_%d", i, j)
			amount := int64(100 + j*10)
			_, _ = svc.PlaceBid(ctx, auctionID, userID, amount)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		if _, err := svc.GetWinningBid(ctx, auctionID); err != nil {
			b.Fatalf("failed to get winning bid: %v", err)
		}
	}
}

// Benchmark 4: GetWinningBid - Concurrent (High Contention)
func Benchmark_GetWinningBid_ConcurrentSharedAuction(b *testing.B) {
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{})
	ctx := context.Background()

	seedAuction(store, "shared_auction_1")

	for j := 0; j < 100; j++ {
		userID := fmt.Sprintf("user_%d", j)
		amount := int64(100 + j)
		_, _ = svc.PlaceBid(ctx, "shared_auction_1", userID, amount)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var counter int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetWinningBid(ctx, "shared_auction_1"); err != nil {
				b.Fatalf("failed to get winning bid: %v", err)
			}
			atomic.AddInt64(&counter, 1)
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{}, auction.WithRetryLimit(10))
	ctx := context.Background()

	seedAuction(store, "shared_auction_1")

	for j := 0; j < 50; j++ {
		userID := fmt.Sprintf("user_seed_%d", j)
		amount := int64(100 + j*2)
		_, _ = svc.PlaceBid(ctx, "shared_auction_1", userID, amount)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 200
	var counter int64

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			opType := rnd.Intn(10)
			switch {
			case opType < 3:
				// Writer: place a new bid
				userID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = svc.PlaceBid(ctx, "shared_auction_1", userID, nextBid)
			default:
				// Reader: get the winning bid
				_, _ = svc.GetWinningBid(ctx, "shared_auction_1")
			}
			atomic.AddInt64(&counter, 1)
		}
	})
}
