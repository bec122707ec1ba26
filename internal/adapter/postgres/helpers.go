package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/planforge/planforge/internal/domain"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// pgTextArray normalizes a string slice for a TEXT[] column so nil and
// empty round-trip as an empty array instead of NULL.
func pgTextArray(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// notFoundWrap maps pgx.ErrNoRows onto domain.ErrNotFound, otherwise wraps
// the error with the given context.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne checks an Exec result for errors and treats zero affected
// rows as not found.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return nil
}
