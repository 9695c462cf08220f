package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Client wraps the PostgreSQL database connection shared by the stores.
type Client struct {
	db *sql.DB
}

// New opens a connection pool and verifies the database is reachable.
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// InitSchema creates the necessary database tables.
func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		id VARCHAR(255) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'draft',
		starting_price DECIMAL(12, 2) NOT NULL,
		current_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		min_increment DECIMAL(12, 2) NOT NULL DEFAULT 0,
		reserve_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		original_end_time TIMESTAMPTZ NOT NULL,
		auto_extend_seconds INT NOT NULL DEFAULT 0,
		total_bids INT NOT NULL DEFAULT 0,
		unique_bidders TEXT[] NOT NULL DEFAULT '{}',
		winner_id VARCHAR(255) NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		amount DECIMAL(12, 2) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'accepted',
		timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_stats (
		user_id VARCHAR(255) PRIMARY KEY,
		total_bids INT NOT NULL DEFAULT 0,
		total_spent DECIMAL(14, 2) NOT NULL DEFAULT 0,
		auctions_won INT NOT NULL DEFAULT 0,
		biggest_win DECIMAL(12, 2) NOT NULL DEFAULT 0,
		bids_today INT NOT NULL DEFAULT 0,
		last_bid_date TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_active_auctions (
		user_id VARCHAR(255) NOT NULL,
		auction_id VARCHAR(255) NOT NULL,
		PRIMARY KEY (user_id, auction_id)
	);

	CREATE TABLE IF NOT EXISTS user_achievements (
		user_id VARCHAR(255) NOT NULL,
		achievement_id VARCHAR(255) NOT NULL,
		unlocked_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, achievement_id)
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_status_start ON auctions(status, start_time);
	CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_time);
	CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids(auction_id);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
	CREATE INDEX IF NOT EXISTS idx_active_auctions_auction ON user_active_auctions(auction_id);
	`

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
