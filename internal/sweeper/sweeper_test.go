package sweeper

import (
	"context"
	"testing"
	"time"

	auction "auction-engine/internal/auctionService"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/stretchr/testify/require"
)

// discardPublisher drops intents; sweeper tests assert on store state.
type discardPublisher struct{}

func (discardPublisher) Publish(models.NotificationIntent) {}

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestFixture(t *testing.T) (*Sweeper, *repository.MemoryStore, *auction.AuctionService) {
	t.Helper()
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{},
		auction.WithClock(func() time.Time { return testNow }))
	return NewSweeper(svc, time.Minute), store, svc
}

func createAuction(t *testing.T, svc *auction.AuctionService, start, end time.Time) models.Auction {
	t.Helper()
	a, err := svc.CreateAuction(context.Background(), auction.CreateAuctionSpec{
		Name:              "sweep test",
		PrizeDescription:  "prize",
		InitialPrice:      100,
		MinBidIncrement:   10,
		StartTime:         start,
		EndTime:           end,
		AutoExtendMinutes: 5,
		CreatedBy:         "admin",
	})
	require.NoError(t, err)
	return a
}

func TestSweep_FinalizesExpiredExactlyOnce(t *testing.T) {
	sweep, store, svc := newTestFixture(t)

	createAuction(t, svc, testNow.Add(-time.Hour), testNow.Add(-time.Minute))
	// Activate, then let it expire.
	_, err := svc.ActivateDue(context.Background(), testNow.Add(-time.Hour))
	require.NoError(t, err)

	first := sweep.Sweep(context.Background(), testNow)
	require.Len(t, first, 1)

	got, err := store.GetAuction(context.Background(), first[0])
	require.NoError(t, err)
	require.Equal(t, models.StatusEnded, got.Status)
	require.Empty(t, got.WinnerID, "no bids means no winner")
	require.NotNil(t, got.EndedAt)
	require.Equal(t, testNow, *got.EndedAt)

	// Idempotence: an immediate second sweep finds nothing to do.
	second := sweep.Sweep(context.Background(), testNow)
	require.Empty(t, second)

	after, err := store.GetAuction(context.Background(), got.AuctionID)
	require.NoError(t, err)
	require.Equal(t, got.Version, after.Version, "second sweep must not touch the row")
}

func TestSweep_ActivatesPendingBeforeFinalizing(t *testing.T) {
	sweep, store, svc := newTestFixture(t)

	a := createAuction(t, svc, testNow.Add(-time.Minute), testNow.Add(time.Hour))

	finalized := sweep.Sweep(context.Background(), testNow)
	require.Empty(t, finalized)

	got, err := store.GetAuction(context.Background(), a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, got.Status)
}

func TestSweep_LeavesRunningAuctionsAlone(t *testing.T) {
	sweep, store, svc := newTestFixture(t)

	a := createAuction(t, svc, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	_, err := svc.ActivateDue(context.Background(), testNow)
	require.NoError(t, err)

	finalized := sweep.Sweep(context.Background(), testNow)
	require.Empty(t, finalized)

	got, err := store.GetAuction(context.Background(), a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, got.Status)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := auction.NewAuctionService(store, discardPublisher{})
	sweep := NewSweeper(svc, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
