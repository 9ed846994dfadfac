package repository

import (
	"context"
	"time"

	"auction-engine/internal/models"
)

// AuctionStore is the durable system of record for auctions, bids and
// participants. Every mutating write to an Auction row is conditional:
// it applies only when the stored Version matches the Version the
// caller read, and fails with ErrVersionConflict otherwise. That
// per-row conditional write is the engine's only concurrency-control
// primitive; implementations must not require callers to hold any
// further locks.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a models.Auction) (models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)

	// ListAuctions returns auctions filtered by status; an empty
	// status returns all auctions.
	ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error)

	// ListDueAuctions returns auctions in the given status whose
	// trigger time has passed: StartTime for pending auctions,
	// EndTime for active ones.
	ListDueAuctions(ctx context.Context, status models.AuctionStatus, now time.Time) ([]models.Auction, error)

	// UpdateAuction persists a's mutable fields conditioned on
	// a.Version and returns the row with the version incremented.
	UpdateAuction(ctx context.Context, a models.Auction) (models.Auction, error)

	// ApplyBid atomically persists an accepted bid: the auction's
	// bid/deadline fields (conditioned on a.Version), the bid row
	// with IsWinning set, the previous winning bid cleared, and the
	// bidder's participant row created if missing.
	ApplyBid(ctx context.Context, a models.Auction, bid models.Bid) (models.Auction, error)

	GetBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)

	// AddParticipant registers a watcher, enforcing the auction's
	// participant cap atomically. Registering an existing
	// participant is a no-op.
	AddParticipant(ctx context.Context, p models.AuctionParticipant) error
	GetParticipant(ctx context.Context, auctionID, userID string) (models.AuctionParticipant, bool, error)
	ListParticipants(ctx context.Context, auctionID string) ([]models.AuctionParticipant, error)
	CountParticipants(ctx context.Context, auctionID string) (int, error)
	MarkParticipantNotified(ctx context.Context, auctionID, userID string, at time.Time) error

	// ListAuctionsByUser returns the auctions a user participates in.
	ListAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error)
}
