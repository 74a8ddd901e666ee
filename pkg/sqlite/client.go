// Package sqlite opens the embedded SQLite corpus database through sqlx using
// the pure-Go modernc driver.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
)

type Client struct {
	DB   *sqlx.DB
	path string
}

// New opens (creating if needed) the database at cfg.Path in WAL mode.
func New(cfg config.SQLiteConfig) (*Client, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return &Client{DB: db, path: cfg.Path}, nil
}

func (c *Client) Path() string {
	return c.path
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
