package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// UniqueToken returns a token that no other test has written.
func UniqueToken(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

// SeedLookup inserts one lookup_log row and returns it.
func SeedLookup(t *testing.T, pool *pgxpool.Pool, token string, outcome domain.LookupOutcome, createdAt time.Time) domain.LookupRecord {
	t.Helper()

	rec := domain.LookupRecord{
		ID:          uuid.New(),
		Token:       token,
		Outcome:     outcome,
		ResultCount: 1,
		Attempts:    1,
		Duration:    15 * time.Millisecond,
		CreatedAt:   createdAt.UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO lookup_log (id, token, outcome, result_count, attempts, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Token, string(rec.Outcome), rec.ResultCount, rec.Attempts, rec.Duration.Milliseconds(), rec.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: seed lookup: %v", err)
	}

	return rec
}
