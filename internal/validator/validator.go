// Package validator holds the pure bid-acceptance rules. Evaluate has
// no side effects and never touches storage; callers supply a snapshot
// of the auction state and receive either an outcome or a rejection.
package validator

import (
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
)

// ProposedBid is a bid under evaluation.
type ProposedBid struct {
	UserID string
	Amount int64
}

// Snapshot is the auction state a bid is judged against. The caller
// must condition the subsequent write on this exact state.
type Snapshot struct {
	Auction          models.Auction
	ParticipantCount int
	IsParticipant    bool
}

// Outcome describes an accepted bid. NewDeadline is nil when the
// auction deadline does not move.
type Outcome struct {
	NewHighest  int64
	NewDeadline *time.Time
}

// Evaluate applies the acceptance preconditions in order: auction
// open, participant cap, amount floor, no self-outbidding. On accept
// it also computes the anti-sniping extension: a bid landing within
// the auto-extend window pushes the deadline to now plus the window,
// never shortening it. There is no cap on the number of extensions,
// so every qualifying late bid guarantees a fresh quiet period.
func Evaluate(s Snapshot, bid ProposedBid, now time.Time) (Outcome, error) {
	a := s.Auction

	if a.Status != models.StatusActive || !now.Before(a.EndTime) {
		return Outcome{}, fmt.Errorf("validator: auction %s in status %s: %w", a.AuctionID, a.Status, auctionerrors.ErrNotOpen)
	}

	if a.MaxParticipants > 0 && !s.IsParticipant && s.ParticipantCount >= a.MaxParticipants {
		return Outcome{}, fmt.Errorf("validator: auction %s capped at %d participants: %w", a.AuctionID, a.MaxParticipants, auctionerrors.ErrParticipantLimitReached)
	}

	if min := a.MinAcceptableBid(); bid.Amount < min {
		return Outcome{}, fmt.Errorf("validator: bid %d below minimum %d: %w", bid.Amount, min, auctionerrors.ErrBidTooLow)
	}

	if a.HighestBidderID != "" && a.HighestBidderID == bid.UserID {
		return Outcome{}, fmt.Errorf("validator: user %s: %w", bid.UserID, auctionerrors.ErrAlreadyHighestBidder)
	}

	out := Outcome{NewHighest: bid.Amount}
	if window := a.ExtendWindow(); window > 0 && a.EndTime.Sub(now) <= window {
		deadline := now.Add(window)
		if deadline.After(a.EndTime) {
			out.NewDeadline = &deadline
		}
	}

	return out, nil
}
