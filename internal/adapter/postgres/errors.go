package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// ErrSchemaMissing means the lookup log tables do not exist yet.
var ErrSchemaMissing = errors.New("lookup log schema missing, run `featurelens migrate up`")

// SQLSTATE codes the lookup log can hit, mapped to the error they wrap.
var pgCodes = map[string]error{
	"23505": domain.ErrAlreadyExists, // unique_violation: duplicate lookup id
	"23514": domain.ErrValidation,    // check_violation: bad outcome or negative count
	"23502": domain.ErrValidation,    // not_null_violation
	"22001": domain.ErrValidation,    // string_data_right_truncation: token too long
	"42P01": ErrSchemaMissing,        // undefined_table
}

// MapError wraps err with the entity label and, where one applies, a
// domain sentinel. Context errors are wrapped unchanged.
func MapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}

	label := entity
	if id != "" {
		label = entity + " " + id
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", label, err)
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", label, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sentinel, ok := pgCodes[pgErr.Code]; ok {
			return fmt.Errorf("%s: %w: %s", label, sentinel, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", label, err)
}
