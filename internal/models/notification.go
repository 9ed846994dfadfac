package models

// NotificationKind identifies the event a notification intent carries.
type NotificationKind string

const (
	NotifyBidAccepted      NotificationKind = "bid_accepted"
	NotifyOutbid           NotificationKind = "outbid"
	NotifyDeadlineExtended NotificationKind = "deadline_extended"
	NotifyAuctionWon       NotificationKind = "auction_won"
	NotifyAuctionLost      NotificationKind = "auction_lost"
	NotifyAuctionNoBids    NotificationKind = "auction_ended_no_bids"
	NotifyAuctionCancelled NotificationKind = "auction_cancelled"
)

// NotificationIntent is the engine's sole output channel to the
// messaging layer. Intents are fire-and-forget: delivery failures
// never affect the state transition that produced them.
type NotificationIntent struct {
	Kind          NotificationKind `json:"kind"`
	AuctionID     string           `json:"auction_id"`
	TargetUserIDs []string         `json:"target_user_ids"`
	Payload       map[string]any   `json:"payload,omitempty"`
}
