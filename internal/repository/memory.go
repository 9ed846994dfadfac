package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
)

// MemoryStore is a concurrency-safe in-memory implementation of
// AuctionStore. The mutex serializes map access; version checks give
// callers the same conditional-write semantics as the SQL store, so
// optimistic retry loops behave identically against either backend.
type MemoryStore struct {
	mu           sync.RWMutex
	auctions     map[string]models.Auction               // key: auctionID
	bids         map[string][]models.Bid                 // key: auctionID -> append-only log
	participants map[string]map[string]models.AuctionParticipant // key: auctionID -> userID
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:     make(map[string]models.Auction),
		bids:         make(map[string][]models.Bid),
		participants: make(map[string]map[string]models.AuctionParticipant),
	}
}

func (s *MemoryStore) CreateAuction(ctx context.Context, a models.Auction) (models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.AuctionID]; ok {
		return models.Auction{}, fmt.Errorf("store: auction %s already exists: %w", a.AuctionID, auctionerrors.ErrInvalidAuction)
	}

	a.Version = 1
	s.auctions[a.AuctionID] = a
	s.participants[a.AuctionID] = make(map[string]models.AuctionParticipant)
	return a, nil
}

func (s *MemoryStore) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("store: get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

func (s *MemoryStore) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Auction
	for _, a := range s.auctions {
		if status == "" || a.Status == status {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) ListDueAuctions(ctx context.Context, status models.AuctionStatus, now time.Time) ([]models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Auction
	for _, a := range s.auctions {
		if a.Status != status {
			continue
		}
		switch status {
		case models.StatusPending:
			if !a.StartTime.After(now) {
				result = append(result, a)
			}
		case models.StatusActive:
			if !a.EndTime.After(now) {
				result = append(result, a)
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateAuction(ctx context.Context, a models.Auction) (models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.auctions[a.AuctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("store: update auction %s: %w", a.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if stored.Version != a.Version {
		return models.Auction{}, fmt.Errorf("store: update auction %s at version %d (stored %d): %w",
			a.AuctionID, a.Version, stored.Version, auctionerrors.ErrVersionConflict)
	}

	a.Version++
	s.auctions[a.AuctionID] = a
	return a, nil
}

func (s *MemoryStore) ApplyBid(ctx context.Context, a models.Auction, bid models.Bid) (models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.auctions[a.AuctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("store: apply bid to auction %s: %w", a.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if stored.Version != a.Version {
		return models.Auction{}, fmt.Errorf("store: apply bid to auction %s at version %d (stored %d): %w",
			a.AuctionID, a.Version, stored.Version, auctionerrors.ErrVersionConflict)
	}

	if err := s.ensureParticipantLocked(stored, bid.UserID, bid.CreatedAt, true); err != nil {
		return models.Auction{}, err
	}

	log := s.bids[a.AuctionID]
	for i := range log {
		log[i].IsWinning = false
	}
	bid.IsWinning = true
	s.bids[a.AuctionID] = append(log, bid)

	a.Version++
	s.auctions[a.AuctionID] = a
	return a, nil
}

// ensureParticipantLocked creates the (auction, user) join row if
// missing, enforcing the participant cap. Caller holds the lock.
func (s *MemoryStore) ensureParticipantLocked(a models.Auction, userID string, at time.Time, notify bool) error {
	members := s.participants[a.AuctionID]
	if members == nil {
		members = make(map[string]models.AuctionParticipant)
		s.participants[a.AuctionID] = members
	}
	if _, ok := members[userID]; ok {
		return nil
	}
	if a.MaxParticipants > 0 && len(members) >= a.MaxParticipants {
		return fmt.Errorf("store: auction %s capped at %d participants: %w",
			a.AuctionID, a.MaxParticipants, auctionerrors.ErrParticipantLimitReached)
	}
	members[userID] = models.AuctionParticipant{
		AuctionID:            a.AuctionID,
		UserID:               userID,
		JoinedAt:             at,
		NotificationsEnabled: notify,
	}
	return nil
}

func (s *MemoryStore) GetBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids, ok := s.bids[auctionID]
	if !ok || len(bids) == 0 {
		return nil, fmt.Errorf("store: get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return append([]models.Bid(nil), bids...), nil
}

func (s *MemoryStore) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids, ok := s.bids[auctionID]
	if !ok || len(bids) == 0 {
		return models.Bid{}, fmt.Errorf("store: get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}

	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].IsWinning {
			return bids[i], nil
		}
	}
	return models.Bid{}, fmt.Errorf("store: get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
}

func (s *MemoryStore) AddParticipant(ctx context.Context, p models.AuctionParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[p.AuctionID]
	if !ok {
		return fmt.Errorf("store: add participant to auction %s: %w", p.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	return s.ensureParticipantLocked(a, p.UserID, p.JoinedAt, p.NotificationsEnabled)
}

func (s *MemoryStore) GetParticipant(ctx context.Context, auctionID, userID string) (models.AuctionParticipant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[auctionID][userID]
	return p, ok, nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, auctionID string) ([]models.AuctionParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.participants[auctionID]
	result := make([]models.AuctionParticipant, 0, len(members))
	for _, p := range members {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (s *MemoryStore) CountParticipants(ctx context.Context, auctionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.participants[auctionID]), nil
}

func (s *MemoryStore) MarkParticipantNotified(ctx context.Context, auctionID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.participants[auctionID]
	p, ok := members[userID]
	if !ok {
		return nil
	}
	p.LastNotifiedAt = &at
	members[userID] = p
	return nil
}

func (s *MemoryStore) ListAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Auction
	for auctionID, members := range s.participants {
		if _, ok := members[userID]; !ok {
			continue
		}
		if a, exists := s.auctions[auctionID]; exists {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
