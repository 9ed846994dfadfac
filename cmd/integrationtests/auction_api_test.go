package integrationtests

import (
	"net/http"
	"testing"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/services/auction/helpers"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func activeAuction(id string, initialPrice, increment int64, endsIn time.Duration, extendMinutes int) model.Auction {
	return model.Auction{
		AuctionID:         id,
		Name:              "auction " + id,
		PrizeDescription:  "prize " + id,
		InitialPrice:      initialPrice,
		MinBidIncrement:   increment,
		Status:            model.StatusActive,
		StartTime:         baseTime.Add(-time.Hour),
		EndTime:           baseTime.Add(endsIn),
		AutoExtendMinutes: extendMinutes,
		CreatedBy:         "admin",
		CreatedAt:         baseTime.Add(-2 * time.Hour),
	}
}

// CreateAuctionHandler Tests
func TestCreateAuctionHandler(t *testing.T) {
	tests := []struct {
		name       string
		request    any
		wantStatus int
	}{
		{
			name: "Valid_Auction",
			request: helpers.CreateAuctionRequest{
				Name:             "Vintage Camera",
				PrizeDescription: "1970s rangefinder",
				InitialPrice:     100,
				MinBidIncrement:  10,
				StartTime:        time.Now().Add(time.Hour).UTC(),
				EndTime:          time.Now().Add(2 * time.Hour).UTC(),
				CreatedBy:        "admin",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Invalid_JSON",
			request:    "{name: 'missing quotes'}",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "End_Before_Start",
			request: helpers.CreateAuctionRequest{
				Name:             "Backwards",
				PrizeDescription: "prize",
				InitialPrice:     100,
				MinBidIncrement:  10,
				StartTime:        time.Now().Add(2 * time.Hour).UTC(),
				EndTime:          time.Now().Add(time.Hour).UTC(),
				CreatedBy:        "admin",
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouter()
			resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				require.Equal(t, "Vintage Camera", resp["name"])
				require.Equal(t, "1970s rangefinder", resp["prize_description"])
				require.Equal(t, 100.0, resp["initial_price"])
				require.Equal(t, string(model.StatusPending), resp["status"])
				require.NotEmpty(t, resp["auction_id"])
			}
		})
	}
}

// PlaceBidHandler Tests
func TestPlaceBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		auctions   []model.Auction
		auctionID  string
		request    any
		wantStatus int
	}{
		{
			name:       "Valid_First_Bid",
			auctions:   []model.Auction{activeAuction("auction1", 100, 10, time.Hour, 0)},
			auctionID:  "auction1",
			request:    helpers.PlaceBidRequest{UserID: "user1", Amount: 100},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Below_Initial_Price",
			auctions:   []model.Auction{activeAuction("auction1", 100, 10, time.Hour, 0)},
			auctionID:  "auction1",
			request:    helpers.PlaceBidRequest{UserID: "user1", Amount: 99},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Auction_Not_Found",
			auctions:   nil,
			auctionID:  "nonexistent",
			request:    helpers.PlaceBidRequest{UserID: "user1", Amount: 100},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "Already_Ended",
			auctions: []model.Auction{
				activeAuction("auction1", 100, 10, -time.Minute, 0),
			},
			auctionID:  "auction1",
			request:    helpers.PlaceBidRequest{UserID: "user1", Amount: 100},
			wantStatus: http.StatusConflict,
		},
		{
			name: "Pending_Not_Yet_Due",
			auctions: []model.Auction{func() model.Auction {
				a := activeAuction("auction1", 100, 10, 2*time.Hour, 0)
				a.Status = model.StatusPending
				a.StartTime = baseTime.Add(time.Hour)
				return a
			}()},
			auctionID:  "auction1",
			request:    helpers.PlaceBidRequest{UserID: "user1", Amount: 100},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Invalid_JSON",
			auctions:   []model.Auction{activeAuction("auction1", 100, 10, time.Hour, 0)},
			auctionID:  "auction1",
			request:    "{user_id: 'missing quotes', amount: 100}",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing_Amount",
			auctions:   []model.Auction{activeAuction("auction1", 100, 10, time.Hour, 0)},
			auctionID:  "auction1",
			request:    map[string]any{"user_id": "user1"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouterWithAuctions(newTestClock(baseTime), tt.auctions...)
			resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/"+tt.auctionID+"/bids", tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				require.Equal(t, "auction1", resp["auction_id"])
				require.Equal(t, "user1", resp["user_id"])
				require.Equal(t, 100.0, resp["amount"])
				require.Equal(t, true, resp["is_winning"])
				require.NotEmpty(t, resp["bid_id"])

				_, err := time.Parse(time.RFC3339, resp["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

func TestPlaceBidHandler_OutbidRules(t *testing.T) {
	clock := newTestClock(baseTime)
	router := SetupTestRouterWithAuctions(clock, activeAuction("auction1", 100, 10, time.Hour, 0))

	// Opening bid at the initial price.
	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids",
		helpers.PlaceBidRequest{UserID: "user1", Amount: 100})
	require.Equal(t, http.StatusCreated, w.Code)

	// Outbid below the minimum increment is rejected.
	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids",
		helpers.PlaceBidRequest{UserID: "user2", Amount: 105})
	require.Equal(t, http.StatusConflict, w.Code)

	// The current leader cannot raise their own bid.
	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids",
		helpers.PlaceBidRequest{UserID: "user1", Amount: 200})
	require.Equal(t, http.StatusConflict, w.Code)

	// A full increment from a different user wins.
	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids",
		helpers.PlaceBidRequest{UserID: "user2", Amount: 110})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 110.0, resp["amount"])
}

func TestPlaceBidHandler_LateBidExtendsDeadline(t *testing.T) {
	clock := newTestClock(baseTime)
	router := SetupTestRouterWithAuctions(clock, activeAuction("auction1", 100, 10, 5*time.Minute, 5))

	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids",
		helpers.PlaceBidRequest{UserID: "user1", Amount: 100})
	require.Equal(t, http.StatusCreated, w.Code)

	// Two minutes later the auction is inside its extension window, so
	// the next accepted bid pushes the deadline out.
	clock.Advance(2 * time.Minute)
	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids",
		helpers.PlaceBidRequest{UserID: "user2", Amount: 110})
	require.Equal(t, http.StatusCreated, w.Code)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/auction1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp["data"].(map[string]any)
	require.Equal(t, 110.0, data["current_highest_bid"])
	require.Equal(t, "user2", data["highest_bidder_id"])

	endTime, err := time.Parse(time.RFC3339, data["end_time"].(string))
	require.NoError(t, err)
	require.True(t, endTime.Equal(baseTime.Add(7*time.Minute)), "deadline should now be bid time plus the extension window")
}

// CancelAuctionHandler Tests
func TestCancelAuctionHandler(t *testing.T) {
	pending := func() model.Auction {
		a := activeAuction("auction1", 100, 10, 2*time.Hour, 0)
		a.Status = model.StatusPending
		a.StartTime = baseTime.Add(time.Hour)
		return a
	}

	tests := []struct {
		name       string
		auction    model.Auction
		request    helpers.CancelAuctionRequest
		wantStatus int
	}{
		{
			name:       "Creator_Cancels_Pending",
			auction:    pending(),
			request:    helpers.CancelAuctionRequest{ActorID: "admin"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Non_Creator_Forbidden",
			auction:    pending(),
			request:    helpers.CancelAuctionRequest{ActorID: "user1"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "Privileged_Actor_Cancels",
			auction:    pending(),
			request:    helpers.CancelAuctionRequest{ActorID: "moderator", Privileged: true},
			wantStatus: http.StatusOK,
		},
		{
			name: "Running_With_Bids_Not_Cancellable",
			auction: func() model.Auction {
				a := activeAuction("auction1", 100, 10, time.Hour, 0)
				a.CurrentHighestBid = 120
				a.HighestBidderID = "user1"
				return a
			}(),
			request:    helpers.CancelAuctionRequest{ActorID: "admin"},
			wantStatus: http.StatusConflict,
		},
		{
			name: "Already_Cancelled",
			auction: func() model.Auction {
				a := pending()
				a.Status = model.StatusCancelled
				return a
			}(),
			request:    helpers.CancelAuctionRequest{ActorID: "admin"},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouterWithAuctions(newTestClock(baseTime), tt.auction)
			_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/cancel", tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/auction1", nil)
				require.Equal(t, http.StatusOK, w.Code)
				data := resp["data"].(map[string]any)
				require.Equal(t, string(model.StatusCancelled), data["status"])
			}
		})
	}
}

// JoinAuctionHandler Tests
func TestJoinAuctionHandler(t *testing.T) {
	t.Run("Watch_And_List_By_User", func(t *testing.T) {
		router := SetupTestRouterWithAuctions(newTestClock(baseTime), activeAuction("auction1", 100, 10, time.Hour, 0))

		_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/watch",
			helpers.JoinAuctionRequest{UserID: "user1"})
		require.Equal(t, http.StatusOK, w.Code)

		resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/users/user1/auctions", nil)
		require.Equal(t, http.StatusOK, w.Code)

		auctions := resp["data"].([]any)
		require.Len(t, auctions, 1)
		require.Equal(t, "auction1", auctions[0].(map[string]any)["auction_id"])
	})

	t.Run("Participant_Cap_Reached", func(t *testing.T) {
		capped := activeAuction("auction1", 100, 10, time.Hour, 0)
		capped.MaxParticipants = 1
		router := SetupTestRouterWithAuctions(newTestClock(baseTime), capped)

		_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/watch",
			helpers.JoinAuctionRequest{UserID: "user1"})
		require.Equal(t, http.StatusOK, w.Code)

		_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/watch",
			helpers.JoinAuctionRequest{UserID: "user2"})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Terminal_Auction_Not_Joinable", func(t *testing.T) {
		ended := activeAuction("auction1", 100, 10, time.Hour, 0)
		ended.Status = model.StatusEnded
		router := SetupTestRouterWithAuctions(newTestClock(baseTime), ended)

		_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/watch",
			helpers.JoinAuctionRequest{UserID: "user1"})
		require.Equal(t, http.StatusConflict, w.Code)
	})
}

// ListAuctionsHandler Tests
func TestListAuctionsHandler(t *testing.T) {
	pendingFuture := activeAuction("auction2", 50, 5, 3*time.Hour, 0)
	pendingFuture.Status = model.StatusPending
	pendingFuture.StartTime = baseTime.Add(2 * time.Hour)

	ended := activeAuction("auction3", 50, 5, time.Hour, 0)
	ended.Status = model.StatusEnded

	router := SetupTestRouterWithAuctions(newTestClock(baseTime),
		activeAuction("auction1", 100, 10, time.Hour, 0),
		pendingFuture,
		ended,
	)

	tests := []struct {
		name       string
		url        string
		wantCount  int
		wantStatus int
	}{
		{name: "All", url: "/auctions", wantCount: 3, wantStatus: http.StatusOK},
		{name: "Active_Only", url: "/auctions?status=active", wantCount: 1, wantStatus: http.StatusOK},
		{name: "Pending_Only", url: "/auctions?status=pending", wantCount: 1, wantStatus: http.StatusOK},
		{name: "Unknown_Status", url: "/auctions?status=bogus", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, tt.url, nil)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				auctions := resp["data"].([]any)
				require.Len(t, auctions, tt.wantCount)
			}
		})
	}
}

// GetBidsHandler Tests
func TestGetBidsHandler(t *testing.T) {
	tests := []struct {
		name      string
		seedBids  []helpers.PlaceBidRequest
		wantCount int
	}{
		{
			name: "With_Bids",
			seedBids: []helpers.PlaceBidRequest{
				{UserID: "user1", Amount: 100},
				{UserID: "user2", Amount: 110},
			},
			wantCount: 2,
		},
		{
			name:      "No_Bids",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouterWithAuctions(newTestClock(baseTime), activeAuction("auction1", 100, 10, time.Hour, 0))
			for _, bid := range tt.seedBids {
				_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids", bid)
				require.Equal(t, http.StatusCreated, w.Code)
			}

			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/auction1/bids", nil)
			require.Equal(t, http.StatusOK, w.Code)

			bids := resp["data"].([]any)
			require.Len(t, bids, tt.wantCount)
		})
	}
}

// GetWinningBidHandler Tests
func TestGetWinningBidHandler(t *testing.T) {
	t.Run("With_Bids", func(t *testing.T) {
		router := SetupTestRouterWithAuctions(newTestClock(baseTime), activeAuction("auction1", 100, 10, time.Hour, 0))

		bids := []helpers.PlaceBidRequest{
			{UserID: "user1", Amount: 100},
			{UserID: "user2", Amount: 115},
			{UserID: "user1", Amount: 130},
		}
		for _, bid := range bids {
			_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/auction1/bids", bid)
			require.Equal(t, http.StatusCreated, w.Code)
		}

		resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/auction1/winning", nil)
		require.Equal(t, http.StatusOK, w.Code)

		data := resp["data"].(map[string]any)
		require.Equal(t, "user1", data["user_id"])
		require.Equal(t, 130.0, data["amount"])
		require.Equal(t, true, data["is_winning"])
	})

	t.Run("No_Bids", func(t *testing.T) {
		router := SetupTestRouterWithAuctions(newTestClock(baseTime), activeAuction("auction1", 100, 10, time.Hour, 0))

		_, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/auction1/winning", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Auction_Not_Found", func(t *testing.T) {
		router := SetupTestRouter()

		_, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/nonexistent/winning", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

// GetAuctionHandler lazily activates a due pending auction on read.
func TestGetAuctionHandler_LazyActivation(t *testing.T) {
	due := activeAuction("auction1", 100, 10, 2*time.Hour, 0)
	due.Status = model.StatusPending
	due.StartTime = baseTime.Add(-time.Minute)

	router := SetupTestRouterWithAuctions(newTestClock(baseTime), due)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/auction1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp["data"].(map[string]any)
	require.Equal(t, string(model.StatusActive), data["status"])
}
