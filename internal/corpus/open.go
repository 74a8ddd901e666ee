package corpus

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/sqlite"
)

// Opened is a migrated store together with its database handle.
type Opened struct {
	*SQLStore
	DB *sqlx.DB
}

func (o *Opened) Close() error {
	return o.DB.Close()
}

func (o *Opened) Ping(ctx context.Context) error {
	return o.DB.PingContext(ctx)
}

// Open connects to the database named by cfg.Corpus.Driver and migrates the
// schema.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Opened, error) {
	var db *sqlx.DB
	switch cfg.Corpus.Driver {
	case "sqlite", "":
		c, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		db = c.DB
	case "postgres":
		c, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		db = c.DB
	default:
		return nil, fmt.Errorf("unknown corpus driver %q", cfg.Corpus.Driver)
	}
	s := NewSQLStore(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Opened{SQLStore: s, DB: db}, nil
}
