// Package lookuplog persists lookup outcomes in the lookup_log table.
// Queries are built with squirrel.
package lookuplog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	postgres "github.com/heartmarshall/featurelens/internal/adapter/postgres"
	"github.com/heartmarshall/featurelens/internal/domain"
)

const table = "lookup_log"

var columns = []string{
	"id", "token", "outcome", "result_count", "status_code", "attempts", "duration_ms", "created_at",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Token   string
	Outcome domain.LookupOutcome
	Since   time.Time
	Limit   int
}

// Repo provides lookup log persistence backed by PostgreSQL.
type Repo struct {
	q   postgres.Querier
	now func() time.Time
}

// New creates a new lookup log repository.
func New(q postgres.Querier) *Repo {
	return &Repo{q: q, now: time.Now}
}

// Log appends rec. A zero CreatedAt is set to the current time.
func (r *Repo) Log(ctx context.Context, rec domain.LookupRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	var status *int32
	if rec.StatusCode != nil {
		v := int32(*rec.StatusCode)
		status = &v
	}

	query, args, err := psql.Insert(table).
		Columns(columns...).
		Values(
			rec.ID,
			rec.Token,
			string(rec.Outcome),
			rec.ResultCount,
			status,
			rec.Attempts,
			rec.Duration.Milliseconds(),
			rec.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert lookup: %w", err)
	}

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "lookup", rec.ID.String())
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]domain.LookupRecord, error) {
	return r.List(ctx, Filter{Limit: limit})
}

// List returns records matching f, newest first.
func (r *Repo) List(ctx context.Context, f Filter) ([]domain.LookupRecord, error) {
	if f.Outcome != "" && !f.Outcome.IsValid() {
		return nil, domain.NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", f.Outcome))
	}

	sb := psql.Select(columns...).From(table)
	if f.Token != "" {
		sb = sb.Where(squirrel.Eq{"token": f.Token})
	}
	if f.Outcome != "" {
		sb = sb.Where(squirrel.Eq{"outcome": string(f.Outcome)})
	}
	if !f.Since.IsZero() {
		sb = sb.Where(squirrel.GtOrEq{"created_at": f.Since.UTC()})
	}
	sb = sb.OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		sb = sb.Limit(uint64(f.Limit))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select lookups: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, table, "")
	}
	defer rows.Close()

	records := []domain.LookupRecord{}
	for rows.Next() {
		var (
			rec        domain.LookupRecord
			outcome    string
			status     *int32
			durationMs int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Token, &outcome, &rec.ResultCount, &status, &rec.Attempts, &durationMs, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lookup: %w", err)
		}
		rec.Outcome = domain.LookupOutcome(outcome)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if status != nil {
			code := int(*status)
			rec.StatusCode = &code
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, table, "")
	}

	return records, nil
}

// CountByOutcome returns how many records exist per outcome since the given
// time. A zero since counts everything.
func (r *Repo) CountByOutcome(ctx context.Context, since time.Time) (map[domain.LookupOutcome]int, error) {
	sb := psql.Select("outcome", "count(*)").From(table).GroupBy("outcome")
	if !since.IsZero() {
		sb = sb.Where(squirrel.GtOrEq{"created_at": since.UTC()})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count lookups: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, table, "")
	}
	defer rows.Close()

	counts := make(map[domain.LookupOutcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan lookup count: %w", err)
		}
		counts[domain.LookupOutcome(outcome)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, table, "")
	}

	return counts, nil
}

func validate(rec domain.LookupRecord) error {
	var errs []domain.FieldError
	if rec.ID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "id", Message: "required"})
	}
	if strings.TrimSpace(rec.Token) == "" {
		errs = append(errs, domain.FieldError{Field: "token", Message: "required"})
	}
	if !rec.Outcome.IsValid() {
		errs = append(errs, domain.FieldError{Field: "outcome", Message: fmt.Sprintf("unknown outcome %q", rec.Outcome)})
	}
	if rec.ResultCount < 0 {
		errs = append(errs, domain.FieldError{Field: "result_count", Message: "must not be negative"})
	}
	if rec.Attempts < 1 {
		errs = append(errs, domain.FieldError{Field: "attempts", Message: "must be at least 1"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}
