// Package postgres opens the PostgreSQL corpus database through sqlx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/resilience"
)

// connectRetry covers a database that is still starting next to the
// service.
var connectRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     4 * time.Second,
	ShouldRetry:  func(err error) bool { return !IsFatal(err) },
}

type Client struct {
	DB *sqlx.DB
}

// New opens a pool and waits for the server to answer. Credential and
// missing-database errors fail at once; connection errors are retried.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = resilience.Retry(ctx, "postgres-connect", connectRetry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// SQLSTATE classes and codes that no amount of retrying fixes.
const (
	classInvalidAuthorization = "28"
	codeInvalidCatalogName    = "3D000"
)

// IsFatal reports whether err is a server error about credentials or a
// missing database.
func IsFatal(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code.Class()) == classInvalidAuthorization || string(pqErr.Code) == codeInvalidCatalogName
}
