package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/openbid/auction-pipeline/internal/auction"
)

const auctionColumns = `id, title, status, starting_price, current_price, min_increment,
	reserve_price, start_time, end_time, original_end_time, auto_extend_seconds,
	total_bids, unique_bidders, winner_id, version, created_at, updated_at`

// AuctionStore persists auction aggregates with optimistic concurrency.
type AuctionStore struct {
	db *sql.DB
}

// NewAuctionStore returns a store backed by the client's connection pool.
func NewAuctionStore(c *Client) *AuctionStore {
	return &AuctionStore{db: c.db}
}

// Get loads one auction by ID.
func (s *AuctionStore) Get(ctx context.Context, id string) (*auction.Auction, error) {
	query := fmt.Sprintf(`SELECT %s FROM auctions WHERE id = $1`, auctionColumns)
	a, err := scanAuction(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auction %s: %w", id, err)
	}
	return a, nil
}

// Create inserts a new auction at its current version.
func (s *AuctionStore) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (id, title, status, starting_price, current_price,
			min_increment, reserve_price, start_time, end_time, original_end_time,
			auto_extend_seconds, total_bids, unique_bidders, winner_id, version,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Title, string(a.Status), a.StartingPrice, a.CurrentPrice,
		a.MinIncrement, a.ReservePrice, a.StartTime, a.EndTime, a.OriginalEndTime,
		a.AutoExtendSeconds, a.TotalBids, pq.Array(bidderSlice(a)), a.WinnerID,
		a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction %s: %w", a.ID, err)
	}
	return nil
}

// Update writes the aggregate back, guarded by its version. The write only
// lands when the stored version still matches; a concurrent writer that got
// there first leaves this call with ErrVersionConflict and an untouched row.
func (s *AuctionStore) Update(ctx context.Context, a *auction.Auction) error {
	query := `
		UPDATE auctions
		SET title = $1,
		    status = $2,
		    current_price = $3,
		    end_time = $4,
		    total_bids = $5,
		    unique_bidders = $6,
		    winner_id = $7,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $8 AND version = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		a.Title, string(a.Status), a.CurrentPrice, a.EndTime, a.TotalBids,
		pq.Array(bidderSlice(a)), a.WinnerID, a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction %s: %w", a.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return auction.ErrVersionConflict
	}

	a.Version++
	return nil
}

// DuePending returns pending auctions whose start time has passed.
func (s *AuctionStore) DuePending(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	return s.list(ctx, `status = 'pending' AND start_time < $1`, now)
}

// DueActive returns active auctions whose end time has passed.
func (s *AuctionStore) DueActive(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	return s.list(ctx, `status = 'active' AND end_time < $1`, now)
}

func (s *AuctionStore) list(ctx context.Context, where string, args ...any) ([]*auction.Auction, error) {
	query := fmt.Sprintf(`SELECT %s FROM auctions WHERE %s ORDER BY id`, auctionColumns, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var (
		a       auction.Auction
		status  string
		bidders []string
	)

	err := row.Scan(
		&a.ID, &a.Title, &status, &a.StartingPrice, &a.CurrentPrice,
		&a.MinIncrement, &a.ReservePrice, &a.StartTime, &a.EndTime,
		&a.OriginalEndTime, &a.AutoExtendSeconds, &a.TotalBids,
		pq.Array(&bidders), &a.WinnerID, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = auction.Status(status)
	a.UniqueBidders = make(map[string]struct{}, len(bidders))
	for _, b := range bidders {
		a.UniqueBidders[b] = struct{}{}
	}
	return &a, nil
}

func bidderSlice(a *auction.Auction) []string {
	bidders := make([]string, 0, len(a.UniqueBidders))
	for b := range a.UniqueBidders {
		bidders = append(bidders, b)
	}
	return bidders
}

// BidStore archives accepted and rejected bids.
type BidStore struct {
	db *sql.DB
}

// NewBidStore returns a bid archive backed by the client's connection pool.
func NewBidStore(c *Client) *BidStore {
	return &BidStore{db: c.db}
}

// Insert archives one bid record. Redelivered events hit the primary key and
// become no-ops, so the archive never double-counts a bid.
func (s *BidStore) Insert(ctx context.Context, bid *auction.BidRecord) error {
	query := `
		INSERT INTO bids (id, auction_id, bidder_id, amount, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.Status, bid.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid %s: %w", bid.ID, err)
	}
	return nil
}
