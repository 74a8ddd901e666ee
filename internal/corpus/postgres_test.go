package corpus

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/postgres"
)

// Run against a local database with:
//
//	TEST_POSTGRES_HOST=localhost go test ./internal/corpus/...
func newPostgresStore(t *testing.T) (*SQLStore, *testclock.Clock) {
	t.Helper()
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("TEST_POSTGRES_HOST not set")
	}
	db, err := postgres.New(config.PostgresConfig{
		Host:            os.Getenv("TEST_POSTGRES_HOST"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "searchengine_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "searchengine"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := testclock.NewClock(epoch)
	s := NewSQLStore(db.DB, WithClock(clk))
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	_, err = db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id LIKE 'pgtest-%'`)
	require.NoError(t, err)
	return s, clk
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s, clk := newPostgresStore(t)
	ctx := context.Background()
	l := &recordingListener{}
	s.Subscribe(l)

	require.NoError(t, s.Put(ctx, &Document{ID: "pgtest-a", Title: "Fattura", Category: "invoices"}))
	clk.Advance(time.Second)
	require.NoError(t, s.Put(ctx, &Document{ID: "pgtest-b", Body: "nota di credito"}))
	clk.Advance(time.Second)
	require.NoError(t, s.Put(ctx, &Document{ID: "pgtest-a", Title: "Fattura elettronica"}))

	got, err := s.GetDocument(ctx, "pgtest-a")
	require.NoError(t, err)
	assert.Equal(t, "Fattura elettronica", got.Title)
	assert.Equal(t, epoch.Add(2*time.Second), got.UpdatedAt)

	changed, err := s.ListChangedSince(ctx, epoch.Add(time.Second))
	require.NoError(t, err)
	var ids []string
	for _, d := range changed {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"pgtest-b", "pgtest-a"}, ids)

	require.NoError(t, s.Delete(ctx, "pgtest-b"))
	assert.ErrorIs(t, s.Delete(ctx, "pgtest-b"), apperrors.ErrDocumentNotFound)
	assert.Equal(t, []string{"pgtest-a", "pgtest-b", "pgtest-a"}, l.changed)
	assert.Equal(t, []string{"pgtest-b"}, l.removed)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
