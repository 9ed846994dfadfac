// Package postgres implements the AuctionStore on PostgreSQL. Every
// auction mutation is a version-guarded UPDATE; a write that matches
// zero rows means another writer got there first and surfaces as
// ErrVersionConflict so the caller can retry against fresh state.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/config"
	"auction-engine/internal/models"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
}

// NewStore opens the database, pings it and applies migrations when
// configured to. A nil db lets tests inject their own connection.
func NewStore(db *sql.DB, cfg *config.PostgresConfig) (*Store, error) {
	var err error

	if cfg == nil {
		cfg, err = config.NewPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("postgres.NewStore: %w", err)
		}
	}

	if db == nil {
		db, err = sql.Open("postgres", cfg.Conn)
		if err != nil {
			return nil, fmt.Errorf("postgres.NewStore: %w", err)
		}
		if err = db.Ping(); err != nil {
			return nil, fmt.Errorf("postgres.NewStore: ping failed: %w", err)
		}
	}

	if cfg.AutoMigrateUp {
		if err = MigrateUp(db); err != nil {
			return nil, fmt.Errorf("postgres.NewStore: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection. Intended for tests only.
func (s *Store) DB() *sql.DB {
	return s.db
}

const auctionColumns = `
	id,
	name,
	description,
	prize_description,
	initial_price,
	min_bid_increment,
	current_highest_bid,
	highest_bidder_id,
	winner_id,
	status,
	start_time,
	end_time,
	ended_at,
	max_participants,
	auto_extend_minutes,
	created_by,
	created_at,
	version
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (models.Auction, error) {
	var (
		a             models.Auction
		highestBidder sql.NullString
		winner        sql.NullString
		endedAt       sql.NullTime
	)

	err := row.Scan(
		&a.AuctionID, &a.Name, &a.Description, &a.PrizeDescription,
		&a.InitialPrice, &a.MinBidIncrement, &a.CurrentHighestBid,
		&highestBidder, &winner, &a.Status, &a.StartTime, &a.EndTime,
		&endedAt, &a.MaxParticipants, &a.AutoExtendMinutes,
		&a.CreatedBy, &a.CreatedAt, &a.Version,
	)
	if err != nil {
		return a, err
	}

	a.HighestBidderID = highestBidder.String
	a.WinnerID = winner.String
	if endedAt.Valid {
		t := endedAt.Time
		a.EndedAt = &t
	}
	return a, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func wrapRollbackErr(tx *sql.Tx, err error) error {
	rollerr := tx.Rollback()
	if rollerr == nil {
		return err
	}
	return fmt.Errorf("failed to rollback transaction after previous error: %w, %w", rollerr, err)
}

func (s *Store) CreateAuction(ctx context.Context, a models.Auction) (models.Auction, error) {
	query := `
	INSERT INTO auctions
		(id, name, description, prize_description, initial_price, min_bid_increment,
		 current_highest_bid, highest_bidder_id, winner_id, status, start_time, end_time,
		 max_participants, auto_extend_minutes, created_by, created_at, version)
	VALUES
		($1, $2, $3, $4, $5, $6, 0, NULL, NULL, $7, $8, $9, $10, $11, $12, $13, 1)
	`

	result := a
	result.Version = 1
	_, err := s.db.ExecContext(ctx, query,
		a.AuctionID, a.Name, a.Description, a.PrizeDescription,
		a.InitialPrice, a.MinBidIncrement, a.Status, a.StartTime, a.EndTime,
		a.MaxParticipants, a.AutoExtendMinutes, a.CreatedBy, a.CreatedAt,
	)
	if err != nil {
		return models.Auction{}, fmt.Errorf("postgres.Store.CreateAuction: %w", err)
	}
	return result, nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)

	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Auction{}, fmt.Errorf("postgres.Store.GetAuction: %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	} else if err != nil {
		return models.Auction{}, fmt.Errorf("postgres.Store.GetAuction: %w", err)
	}
	return a, nil
}

func (s *Store) queryAuctions(ctx context.Context, query string, args ...any) ([]models.Auction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		result = append(result, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return result, nil
}

func (s *Store) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE ($1 = '' OR status = $1) ORDER BY created_at`

	result, err := s.queryAuctions(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListAuctions: %w", err)
	}
	return result, nil
}

func (s *Store) ListDueAuctions(ctx context.Context, status models.AuctionStatus, now time.Time) ([]models.Auction, error) {
	var query string
	switch status {
	case models.StatusPending:
		query = `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND start_time <= $2`
	case models.StatusActive:
		query = `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND end_time <= $2`
	default:
		return nil, fmt.Errorf("postgres.Store.ListDueAuctions: no due condition for status %s", status)
	}

	result, err := s.queryAuctions(ctx, query, string(status), now)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListDueAuctions: %w", err)
	}
	return result, nil
}

const updateAuctionQuery = `
	UPDATE auctions
	SET (current_highest_bid, highest_bidder_id, winner_id, status, end_time, ended_at, version) =
		($1, $2, $3, $4, $5, $6, version + 1)
	WHERE id = $7 AND version = $8
`

func (s *Store) UpdateAuction(ctx context.Context, a models.Auction) (models.Auction, error) {
	result, err := s.db.ExecContext(ctx, updateAuctionQuery,
		a.CurrentHighestBid, nullable(a.HighestBidderID), nullable(a.WinnerID),
		a.Status, a.EndTime, nullableTime(a.EndedAt), a.AuctionID, a.Version,
	)
	if err != nil {
		return models.Auction{}, fmt.Errorf("postgres.Store.UpdateAuction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return models.Auction{}, fmt.Errorf("postgres.Store.UpdateAuction: %w", err)
	}
	if affected == 0 {
		return models.Auction{}, fmt.Errorf("postgres.Store.UpdateAuction: auction %s at version %d: %w",
			a.AuctionID, a.Version, auctionerrors.ErrVersionConflict)
	}

	a.Version++
	return a, nil
}

func (s *Store) ApplyBid(ctx context.Context, a models.Auction, bid models.Bid) (models.Auction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Auction{}, fmt.Errorf("postgres.Store.ApplyBid: failed to start transaction: %w", err)
	}

	// Conditional auction update first: it decides the race.
	result, err := tx.ExecContext(ctx, updateAuctionQuery,
		a.CurrentHighestBid, nullable(a.HighestBidderID), nullable(a.WinnerID),
		a.Status, a.EndTime, nullableTime(a.EndedAt), a.AuctionID, a.Version,
	)
	if err != nil {
		return models.Auction{}, wrapRollbackErr(tx, fmt.Errorf("postgres.Store.ApplyBid: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.Auction{}, wrapRollbackErr(tx, fmt.Errorf("postgres.Store.ApplyBid: %w", err))
	}
	if affected == 0 {
		return models.Auction{}, wrapRollbackErr(tx, fmt.Errorf("postgres.Store.ApplyBid: auction %s at version %d: %w",
			a.AuctionID, a.Version, auctionerrors.ErrVersionConflict))
	}

	if err = ensureParticipantTx(ctx, tx, a.AuctionID, bid.UserID, bid.CreatedAt, true); err != nil {
		return models.Auction{}, wrapRollbackErr(tx, fmt.Errorf("postgres.Store.ApplyBid: %w", err))
	}

	_, err = tx.ExecContext(ctx, `UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND is_winning`, a.AuctionID)
	if err != nil {
		return models.Auction{}, wrapRollbackErr(tx, fmt.Errorf("postgres.Store.ApplyBid: %w", err))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, user_id, amount, created_at, is_winning) VALUES ($1, $2, $3, $4, $5, TRUE)`,
		bid.BidID, bid.AuctionID, bid.UserID, bid.Amount, bid.CreatedAt,
	)
	if err != nil {
		return models.Auction{}, wrapRollbackErr(tx, fmt.Errorf("postgres.Store.ApplyBid: %w", err))
	}

	if err = tx.Commit(); err != nil {
		return models.Auction{}, fmt.Errorf("postgres.Store.ApplyBid: failed to commit transaction: %w", err)
	}

	a.Version++
	return a, nil
}

// ensureParticipantTx inserts the (auction, user) join row unless it
// exists, refusing when the auction's participant cap is full.
func ensureParticipantTx(ctx context.Context, tx *sql.Tx, auctionID, userID string, at time.Time, notify bool) error {
	query := `
	INSERT INTO auction_participants (auction_id, user_id, joined_at, notifications_enabled)
	SELECT $1, $2, $3, $4
	WHERE NOT EXISTS (
		SELECT 1 FROM auction_participants WHERE auction_id = $1 AND user_id = $2
	)
	AND (
		(SELECT max_participants FROM auctions WHERE id = $1) = 0
		OR (SELECT COUNT(*) FROM auction_participants WHERE auction_id = $1) <
		   (SELECT max_participants FROM auctions WHERE id = $1)
	)
	`

	result, err := tx.ExecContext(ctx, query, auctionID, userID, at, notify)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// Nothing inserted: fine when already a participant, a cap
	// violation otherwise.
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM auction_participants WHERE auction_id = $1 AND user_id = $2`, auctionID, userID)
	var dummy int
	err = row.Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("auction %s: %w", auctionID, auctionerrors.ErrParticipantLimitReached)
	}
	return err
}

func (s *Store) GetBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	query := `
	SELECT id, auction_id, user_id, amount, created_at, is_winning
	FROM bids
	WHERE auction_id = $1
	ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.GetBids: %w", err)
	}
	defer rows.Close()

	var result []models.Bid
	for rows.Next() {
		var b models.Bid
		err = rows.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt, &b.IsWinning)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.GetBids: row scan failed: %w", err)
		}
		result = append(result, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("postgres.Store.GetBids: %w", rows.Err())
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("postgres.Store.GetBids: auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return result, nil
}

func (s *Store) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	query := `
	SELECT id, auction_id, user_id, amount, created_at, is_winning
	FROM bids
	WHERE auction_id = $1 AND is_winning
	LIMIT 1
	`

	var b models.Bid
	row := s.db.QueryRowContext(ctx, query, auctionID)
	err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt, &b.IsWinning)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bid{}, fmt.Errorf("postgres.Store.GetWinningBid: auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	} else if err != nil {
		return models.Bid{}, fmt.Errorf("postgres.Store.GetWinningBid: %w", err)
	}
	return b, nil
}

func (s *Store) AddParticipant(ctx context.Context, p models.AuctionParticipant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres.Store.AddParticipant: failed to start transaction: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = $1`, p.AuctionID)
	var dummy int
	if err = row.Scan(&dummy); errors.Is(err, sql.ErrNoRows) {
		return wrapRollbackErr(tx, fmt.Errorf("postgres.Store.AddParticipant: %s: %w", p.AuctionID, auctionerrors.ErrAuctionNotFound))
	} else if err != nil {
		return wrapRollbackErr(tx, fmt.Errorf("postgres.Store.AddParticipant: %w", err))
	}

	if err = ensureParticipantTx(ctx, tx, p.AuctionID, p.UserID, p.JoinedAt, p.NotificationsEnabled); err != nil {
		return wrapRollbackErr(tx, fmt.Errorf("postgres.Store.AddParticipant: %w", err))
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres.Store.AddParticipant: failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, auctionID, userID string) (models.AuctionParticipant, bool, error) {
	query := `
	SELECT auction_id, user_id, joined_at, notifications_enabled, last_notified_at
	FROM auction_participants
	WHERE auction_id = $1 AND user_id = $2
	`

	var (
		p            models.AuctionParticipant
		lastNotified sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, query, auctionID, userID)
	err := row.Scan(&p.AuctionID, &p.UserID, &p.JoinedAt, &p.NotificationsEnabled, &lastNotified)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	} else if err != nil {
		return p, false, fmt.Errorf("postgres.Store.GetParticipant: %w", err)
	}

	if lastNotified.Valid {
		t := lastNotified.Time
		p.LastNotifiedAt = &t
	}
	return p, true, nil
}

func (s *Store) ListParticipants(ctx context.Context, auctionID string) ([]models.AuctionParticipant, error) {
	query := `
	SELECT auction_id, user_id, joined_at, notifications_enabled, last_notified_at
	FROM auction_participants
	WHERE auction_id = $1
	ORDER BY joined_at
	`

	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListParticipants: %w", err)
	}
	defer rows.Close()

	var result []models.AuctionParticipant
	for rows.Next() {
		var (
			p            models.AuctionParticipant
			lastNotified sql.NullTime
		)
		err = rows.Scan(&p.AuctionID, &p.UserID, &p.JoinedAt, &p.NotificationsEnabled, &lastNotified)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.ListParticipants: row scan failed: %w", err)
		}
		if lastNotified.Valid {
			t := lastNotified.Time
			p.LastNotifiedAt = &t
		}
		result = append(result, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("postgres.Store.ListParticipants: %w", rows.Err())
	}
	return result, nil
}

func (s *Store) CountParticipants(ctx context.Context, auctionID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auction_participants WHERE auction_id = $1`, auctionID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres.Store.CountParticipants: %w", err)
	}
	return count, nil
}

func (s *Store) MarkParticipantNotified(ctx context.Context, auctionID, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auction_participants SET last_notified_at = $1 WHERE auction_id = $2 AND user_id = $3`,
		at, auctionID, userID,
	)
	if err != nil {
		return fmt.Errorf("postgres.Store.MarkParticipantNotified: %w", err)
	}
	return nil
}

func (s *Store) ListAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	query := `
	SELECT ` + auctionColumns + `
	FROM auctions
	WHERE id IN (SELECT auction_id FROM auction_participants WHERE user_id = $1)
	ORDER BY created_at
	`

	result, err := s.queryAuctions(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListAuctionsByUser: %w", err)
	}
	return result, nil
}
