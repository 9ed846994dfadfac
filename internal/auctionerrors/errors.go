package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrVersionConflict = errors.New("auction was modified concurrently")
)

// Business logic errors. All are recoverable, user-facing rejections;
// only ErrContention is retryable by resubmission.
var (
	ErrInvalidAuction          = errors.New("invalid auction")
	ErrInvalidBid              = errors.New("invalid bid")
	ErrNotOpen                 = errors.New("auction is not open for bidding")
	ErrParticipantLimitReached = errors.New("auction participant limit reached")
	ErrBidTooLow               = errors.New("bid amount too low")
	ErrAlreadyHighestBidder    = errors.New("bidder already holds the highest bid")
	ErrContention              = errors.New("bid could not commit due to contention")
	ErrCancellationNotAllowed  = errors.New("auction cancellation not allowed")
	ErrForbidden               = errors.New("actor has no permission for this operation")
)
