package models

import "time"

// AuctionStatus is the lifecycle state of an auction.
// Transitions are monotone: Pending -> Active -> {Ended, Cancelled}.
type AuctionStatus string

const (
	StatusPending   AuctionStatus = "pending"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
)

// ValidStatus reports whether s is one of the known auction statuses.
func ValidStatus(s AuctionStatus) bool {
	switch s {
	case StatusPending, StatusActive, StatusEnded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a final state.
func (s AuctionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Auction is the single mutable entity of the engine. Only the bid,
// deadline and status fields change after creation; every mutating
// write is conditioned on Version.
type Auction struct {
	AuctionID        string `json:"auction_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PrizeDescription string `json:"prize_description"`
	InitialPrice     int64  `json:"initial_price"`
	MinBidIncrement  int64  `json:"min_bid_increment"`

	CurrentHighestBid int64  `json:"current_highest_bid"`
	HighestBidderID   string `json:"highest_bidder_id,omitempty"`
	WinnerID          string `json:"winner_id,omitempty"`

	Status    AuctionStatus `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`

	// MaxParticipants of 0 means no cap.
	MaxParticipants   int `json:"max_participants,omitempty"`
	AutoExtendMinutes int `json:"auto_extend_minutes"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// Version is the optimistic-concurrency token, incremented on
	// every committed mutation.
	Version int `json:"-"`
}

// ExtendWindow is the anti-sniping window as a duration.
func (a Auction) ExtendWindow() time.Duration {
	return time.Duration(a.AutoExtendMinutes) * time.Minute
}

// MinAcceptableBid is the lowest amount the next bid may carry: the
// initial price while no bid exists, otherwise the current highest
// bid plus the minimum increment.
func (a Auction) MinAcceptableBid() int64 {
	if a.CurrentHighestBid == 0 {
		return a.InitialPrice
	}
	return a.CurrentHighestBid + a.MinBidIncrement
}

// Bid is an append-only log entry. Rows never mutate after insert
// except for the denormalized IsWinning flag, which is corrected in
// the same atomic unit as each accepted bid.
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	IsWinning bool      `json:"is_winning"`
}

// AuctionParticipant joins a user to an auction, created on first bid
// or an explicit watch. At most one row per (auction, user).
type AuctionParticipant struct {
	AuctionID            string     `json:"auction_id"`
	UserID               string     `json:"user_id"`
	JoinedAt             time.Time  `json:"joined_at"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	LastNotifiedAt       *time.Time `json:"last_notified_at,omitempty"`
}
