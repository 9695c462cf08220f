package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openbid/auction-pipeline/internal/stats"
)

// StatsStore persists per-user stats and the achievement ledger.
type StatsStore struct {
	db *sql.DB
}

// NewStatsStore returns a store backed by the client's connection pool.
func NewStatsStore(c *Client) *StatsStore {
	return &StatsStore{db: c.db}
}

// Get loads a user's stats, returning an empty aggregate when the user has
// no row yet.
func (s *StatsStore) Get(ctx context.Context, userID string) (*stats.UserStats, error) {
	query := `
		SELECT total_bids, total_spent, auctions_won, biggest_win, bids_today, last_bid_date
		FROM user_stats
		WHERE user_id = $1
	`

	u := stats.NewUserStats(userID)
	var lastBid sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&u.TotalBids, &u.TotalSpent, &u.AuctionsWon, &u.BiggestWin,
		&u.BidsToday, &lastBid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for %s: %w", userID, err)
	}
	if lastBid.Valid {
		u.LastBidDate = lastBid.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT auction_id FROM user_active_auctions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active auctions for %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan active auction: %w", err)
		}
		u.ActiveAuctionIDs[id] = struct{}{}
	}
	return u, rows.Err()
}

// Save upserts the stats row and records any newly active auctions. Auctions
// only leave the active set through ClearActiveAuction, so the set is written
// additively here.
func (s *StatsStore) Save(ctx context.Context, u *stats.UserStats) error {
	query := `
		INSERT INTO user_stats (user_id, total_bids, total_spent, auctions_won,
			biggest_win, bids_today, last_bid_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			total_bids = EXCLUDED.total_bids,
			total_spent = EXCLUDED.total_spent,
			auctions_won = EXCLUDED.auctions_won,
			biggest_win = EXCLUDED.biggest_win,
			bids_today = EXCLUDED.bids_today,
			last_bid_date = EXCLUDED.last_bid_date,
			updated_at = CURRENT_TIMESTAMP
	`

	var lastBid sql.NullTime
	if !u.LastBidDate.IsZero() {
		lastBid = sql.NullTime{Time: u.LastBidDate, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		u.UserID, u.TotalBids, u.TotalSpent, u.AuctionsWon,
		u.BiggestWin, u.BidsToday, lastBid,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats for %s: %w", u.UserID, err)
	}

	for auctionID := range u.ActiveAuctionIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO user_active_auctions (user_id, auction_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, auction_id) DO NOTHING
		`, u.UserID, auctionID)
		if err != nil {
			return fmt.Errorf("failed to record active auction %s: %w", auctionID, err)
		}
	}
	return nil
}

// ClearActiveAuction removes the auction from every user's active set.
func (s *StatsStore) ClearActiveAuction(ctx context.Context, auctionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_active_auctions WHERE auction_id = $1`, auctionID)
	if err != nil {
		return fmt.Errorf("failed to clear active auction %s: %w", auctionID, err)
	}
	return nil
}

// MarkUnlocked records an achievement grant. The primary key makes the grant
// exactly-once: a second attempt reports false so no duplicate notification
// goes out.
func (s *StatsStore) MarkUnlocked(ctx context.Context, userID, achievementID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, userID, achievementID)
	if err != nil {
		return false, fmt.Errorf("failed to record achievement %s for %s: %w", achievementID, userID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
