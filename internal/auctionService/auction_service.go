package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/validator"
	"auction-engine/utils"
)

// IntentPublisher is the non-blocking notification boundary. Publish
// must never fail the operation that triggered it.
type IntentPublisher interface {
	Publish(intent models.NotificationIntent)
}

// defaultRetryLimit bounds optimistic retries on a contended auction
// before the bidder sees ErrContention.
const defaultRetryLimit = 3

// AuctionService orchestrates auction state transitions against the
// store. All mutations go through version-guarded writes; conflicting
// writers retry against fresh state up to the retry limit.
type AuctionService struct {
	store      repository.AuctionStore
	publisher  IntentPublisher
	retryLimit int
	now        func() time.Time
}

type Option func(*AuctionService)

// WithRetryLimit overrides the bounded retry count for contended bids.
func WithRetryLimit(n int) Option {
	return func(s *AuctionService) {
		if n > 0 {
			s.retryLimit = n
		}
	}
}

// WithClock overrides the service clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *AuctionService) {
		s.now = now
	}
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(store repository.AuctionStore, publisher IntentPublisher, opts ...Option) *AuctionService {
	s := &AuctionService{
		store:      store,
		publisher:  publisher,
		retryLimit: defaultRetryLimit,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAuctionSpec carries the caller-supplied fields for a new auction.
type CreateAuctionSpec struct {
	Name              string
	Description       string
	PrizeDescription  string
	InitialPrice      int64
	MinBidIncrement   int64
	StartTime         time.Time
	EndTime           time.Time
	MaxParticipants   int
	AutoExtendMinutes int
	CreatedBy         string
}

// CreateAuction validates the spec and persists a new Pending auction.
func (s *AuctionService) CreateAuction(ctx context.Context, spec CreateAuctionSpec) (models.Auction, error) {
	if err := validateSpec(spec); err != nil {
		return models.Auction{}, err
	}

	a := models.Auction{
		AuctionID:         utils.GenerateID(),
		Name:              spec.Name,
		Description:       spec.Description,
		PrizeDescription:  spec.PrizeDescription,
		InitialPrice:      spec.InitialPrice,
		MinBidIncrement:   spec.MinBidIncrement,
		Status:            models.StatusPending,
		StartTime:         spec.StartTime,
		EndTime:           spec.EndTime,
		MaxParticipants:   spec.MaxParticipants,
		AutoExtendMinutes: spec.AutoExtendMinutes,
		CreatedBy:         spec.CreatedBy,
		CreatedAt:         s.now(),
	}

	a, err := s.store.CreateAuction(ctx, a)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction %q: %w", spec.Name, err)
	}
	return a, nil
}

func validateSpec(spec CreateAuctionSpec) error {
	switch {
	case spec.Name == "" || spec.CreatedBy == "":
		return fmt.Errorf("service: %w - missing name or creator", auctionerrors.ErrInvalidAuction)
	case spec.InitialPrice < 0:
		return fmt.Errorf("service: %w - negative initial price", auctionerrors.ErrInvalidAuction)
	case spec.MinBidIncrement <= 0:
		return fmt.Errorf("service: %w - non-positive bid increment", auctionerrors.ErrInvalidAuction)
	case !spec.EndTime.After(spec.StartTime):
		return fmt.Errorf("service: %w - end time not after start time", auctionerrors.ErrInvalidAuction)
	case spec.MaxParticipants < 0 || spec.AutoExtendMinutes < 0:
		return fmt.Errorf("service: %w - negative participant cap or extend window", auctionerrors.ErrInvalidAuction)
	}
	return nil
}

// PlaceBid validates and commits a bid for an auction. The read of
// the auction state, the validation against it and the conditional
// write form one optimistic attempt; a version conflict means another
// bid committed in between, and the whole attempt restarts from a
// fresh read. After retryLimit conflicts the bid fails with
// ErrContention, which the caller may resubmit.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, userID string, amount int64) (models.Bid, error) {
	if auctionID == "" || userID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing auctionID or userID", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return models.Bid{}, fmt.Errorf("service: %w - non-positive bid amount", auctionerrors.ErrInvalidBid)
	}

	for attempt := 0; attempt < s.retryLimit; attempt++ {
		bid, err := s.tryPlaceBid(ctx, auctionID, userID, amount)
		if errors.Is(err, auctionerrors.ErrVersionConflict) {
			utils.Debug("PlaceBid: retrying after version conflict", map[string]any{
				"auction_id": auctionID,
				"user_id":    userID,
				"attempt":    attempt + 1,
			})
			continue
		}
		return bid, err
	}

	return models.Bid{}, fmt.Errorf("service: bid on auction %s by user %s: %w", auctionID, userID, auctionerrors.ErrContention)
}

func (s *AuctionService) tryPlaceBid(ctx context.Context, auctionID, userID string, amount int64) (models.Bid, error) {
	now := s.now()

	a, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	// Lazy Pending->Active flip before validation, so a due auction
	// accepts its first bid even if no sweep has run yet.
	if a.Status == models.StatusPending && !a.StartTime.After(now) {
		a.Status = models.StatusActive
		a, err = s.store.UpdateAuction(ctx, a)
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: failed to activate auction %s: %w", auctionID, err)
		}
	}

	snapshot := validator.Snapshot{Auction: a}
	if a.MaxParticipants > 0 {
		snapshot.ParticipantCount, err = s.store.CountParticipants(ctx, auctionID)
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: failed to count participants for auction %s: %w", auctionID, err)
		}
		_, snapshot.IsParticipant, err = s.store.GetParticipant(ctx, auctionID, userID)
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: failed to load participant for auction %s: %w", auctionID, err)
		}
	}

	outcome, err := validator.Evaluate(snapshot, validator.ProposedBid{UserID: userID, Amount: amount}, now)
	if err != nil {
		return models.Bid{}, err
	}

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		CreatedAt: now,
		IsWinning: true,
	}

	previousBidder := a.HighestBidderID
	a.CurrentHighestBid = outcome.NewHighest
	a.HighestBidderID = userID
	extended := false
	if outcome.NewDeadline != nil {
		a.EndTime = *outcome.NewDeadline
		extended = true
	}

	a, err = s.store.ApplyBid(ctx, a, bid)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrVersionConflict) {
			return models.Bid{}, err
		}
		return models.Bid{}, fmt.Errorf("service: failed to record bid on auction %s by user %s: %w", auctionID, userID, err)
	}

	s.publishBidIntents(ctx, a, bid, previousBidder, extended)
	return bid, nil
}

// publishBidIntents emits the fire-and-forget notifications for an
// accepted bid: acceptance to the bidder, outbid to the displaced
// bidder, and the new deadline to all participants when it moved.
func (s *AuctionService) publishBidIntents(ctx context.Context, a models.Auction, bid models.Bid, previousBidder string, extended bool) {
	s.publisher.Publish(models.NotificationIntent{
		Kind:          models.NotifyBidAccepted,
		AuctionID:     a.AuctionID,
		TargetUserIDs: []string{bid.UserID},
		Payload:       map[string]any{"amount": bid.Amount},
	})

	if previousBidder != "" && previousBidder != bid.UserID {
		s.publisher.Publish(models.NotificationIntent{
			Kind:          models.NotifyOutbid,
			AuctionID:     a.AuctionID,
			TargetUserIDs: []string{previousBidder},
			Payload:       map[string]any{"amount": bid.Amount},
		})
	}

	if extended {
		s.publisher.Publish(models.NotificationIntent{
			Kind:          models.NotifyDeadlineExtended,
			AuctionID:     a.AuctionID,
			TargetUserIDs: s.participantIDs(ctx, a.AuctionID),
			Payload:       map[string]any{"end_time": a.EndTime},
		})
	}
}

func (s *AuctionService) participantIDs(ctx context.Context, auctionID string) []string {
	participants, err := s.store.ListParticipants(ctx, auctionID)
	if err != nil {
		utils.Warn("failed to list participants for notification", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return nil
	}

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// CancelAuction transitions a Pending or Active auction to Cancelled.
// Only the creator or a privileged actor may cancel, and never once a
// winning bid exists on an auction past its start time.
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID, actorID string, privileged bool) error {
	for attempt := 0; attempt < s.retryLimit; attempt++ {
		a, err := s.store.GetAuction(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}

		if a.Status.Terminal() {
			return fmt.Errorf("service: auction %s already %s: %w", auctionID, a.Status, auctionerrors.ErrCancellationNotAllowed)
		}
		if actorID != a.CreatedBy && !privileged {
			return fmt.Errorf("service: user %s cannot cancel auction %s: %w", actorID, auctionID, auctionerrors.ErrForbidden)
		}
		if a.HighestBidderID != "" && s.now().After(a.StartTime) {
			return fmt.Errorf("service: auction %s has live bids: %w", auctionID, auctionerrors.ErrCancellationNotAllowed)
		}

		now := s.now()
		a.Status = models.StatusCancelled
		a.EndedAt = &now

		_, err = s.store.UpdateAuction(ctx, a)
		if errors.Is(err, auctionerrors.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
		}

		s.publisher.Publish(models.NotificationIntent{
			Kind:          models.NotifyAuctionCancelled,
			AuctionID:     auctionID,
			TargetUserIDs: s.participantIDs(ctx, auctionID),
		})
		return nil
	}

	return fmt.Errorf("service: cancel auction %s: %w", auctionID, auctionerrors.ErrContention)
}

// ActivateDue flips every Pending auction whose start time has passed
// to Active. Losing a version race on one auction just skips it; the
// bid path or the next sweep picks it up.
func (s *AuctionService) ActivateDue(ctx context.Context, now time.Time) ([]string, error) {
	due, err := s.store.ListDueAuctions(ctx, models.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list due pending auctions: %w", err)
	}

	var activated []string
	for _, a := range due {
		a.Status = models.StatusActive
		if _, err := s.store.UpdateAuction(ctx, a); err != nil {
			if errors.Is(err, auctionerrors.ErrVersionConflict) {
				continue
			}
			return activated, fmt.Errorf("service: failed to activate auction %s: %w", a.AuctionID, err)
		}
		activated = append(activated, a.AuctionID)
	}
	return activated, nil
}

// FinalizeExpired closes every Active auction whose deadline has
// passed, exactly once. The version-guarded Active->Ended write is the
// exclusivity mechanism: a racing sweep or bid makes the update miss,
// and the auction is simply re-evaluated next cycle.
func (s *AuctionService) FinalizeExpired(ctx context.Context, now time.Time) ([]string, error) {
	expired, err := s.store.ListDueAuctions(ctx, models.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list expired auctions: %w", err)
	}

	var finalized []string
	for _, a := range expired {
		endedAt := now
		a.Status = models.StatusEnded
		a.WinnerID = a.HighestBidderID
		a.EndedAt = &endedAt

		updated, err := s.store.UpdateAuction(ctx, a)
		if errors.Is(err, auctionerrors.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return finalized, fmt.Errorf("service: failed to finalize auction %s: %w", a.AuctionID, err)
		}

		finalized = append(finalized, a.AuctionID)
		s.publishFinalizeIntents(ctx, updated)
	}
	return finalized, nil
}

func (s *AuctionService) publishFinalizeIntents(ctx context.Context, a models.Auction) {
	if a.WinnerID == "" {
		s.publisher.Publish(models.NotificationIntent{
			Kind:      models.NotifyAuctionNoBids,
			AuctionID: a.AuctionID,
		})
		return
	}

	s.publisher.Publish(models.NotificationIntent{
		Kind:          models.NotifyAuctionWon,
		AuctionID:     a.AuctionID,
		TargetUserIDs: []string{a.WinnerID},
		Payload:       map[string]any{"amount": a.CurrentHighestBid},
	})

	var losers []string
	for _, id := range s.participantIDs(ctx, a.AuctionID) {
		if id != a.WinnerID {
			losers = append(losers, id)
		}
	}
	if len(losers) > 0 {
		s.publisher.Publish(models.NotificationIntent{
			Kind:          models.NotifyAuctionLost,
			AuctionID:     a.AuctionID,
			TargetUserIDs: losers,
		})
	}
}

// JoinAuction registers userID as a watcher of the auction without
// bidding, honoring the participant cap.
func (s *AuctionService) JoinAuction(ctx context.Context, auctionID, userID string) error {
	if auctionID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", auctionerrors.ErrInvalidBid)
	}

	a, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return fmt.Errorf("service: auction %s in status %s: %w", auctionID, a.Status, auctionerrors.ErrNotOpen)
	}

	err = s.store.AddParticipant(ctx, models.AuctionParticipant{
		AuctionID:            auctionID,
		UserID:               userID,
		JoinedAt:             s.now(),
		NotificationsEnabled: true,
	})
	if err != nil {
		return fmt.Errorf("service: failed to join auction %s: %w", auctionID, err)
	}
	return nil
}

// GetAuction returns an auction, performing the lazy Pending->Active
// flip when its start time has passed. The flip is best effort: a
// version race leaves the stored row to the winner and still reports
// the auction as Active.
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidAuction)
	}

	a, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}

	if a.Status == models.StatusPending && !a.StartTime.After(s.now()) {
		a.Status = models.StatusActive
		updated, err := s.store.UpdateAuction(ctx, a)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, auctionerrors.ErrVersionConflict) {
			return models.Auction{}, fmt.Errorf("service: failed to activate auction %s: %w", auctionID, err)
		}
	}
	return a, nil
}

// ListAuctions returns auctions filtered by status; empty status means all.
func (s *AuctionService) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, fmt.Errorf("service: %w - unknown status %q", auctionerrors.ErrInvalidAuction, status)
	}

	auctions, err := s.store.ListAuctions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// GetBidsForAuction returns the full bid log for an auction.
func (s *AuctionService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidAuction)
	}

	bids, err := s.store.GetBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the currently winning bid for an auction.
func (s *AuctionService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidAuction)
	}

	bid, err := s.store.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return bid, nil
}

// GetAuctionsByUser returns all auctions a user participates in.
func (s *AuctionService) GetAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", auctionerrors.ErrInvalidBid)
	}

	auctions, err := s.store.ListAuctionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}
	return auctions, nil
}
