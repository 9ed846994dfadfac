package helpers

import "time"

// Request/Response DTOs
type CreateAuctionRequest struct {
	Name              string    `json:"name" binding:"required"`
	Description       string    `json:"description"`
	PrizeDescription  string    `json:"prize_description" binding:"required"`
	InitialPrice      int64     `json:"initial_price" binding:"min=0"`
	MinBidIncrement   int64     `json:"min_bid_increment" binding:"required,gt=0"`
	StartTime         time.Time `json:"start_time" binding:"required"`
	EndTime           time.Time `json:"end_time" binding:"required"`
	MaxParticipants   int       `json:"max_participants" binding:"min=0"`
	AutoExtendMinutes int       `json:"auto_extend_minutes" binding:"min=0"`
	CreatedBy         string    `json:"created_by" binding:"required"`
}

type PlaceBidRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

type CancelAuctionRequest struct {
	ActorID    string `json:"actor_id" binding:"required"`
	Privileged bool   `json:"privileged"`
}

type JoinAuctionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	CreatedAt string `json:"created_at"`
}
