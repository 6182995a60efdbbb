package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrConstraint marks a statement rejected by a UNIQUE, FOREIGN KEY,
// NOT NULL or CHECK constraint. The driver error stays in the chain.
var ErrConstraint = errors.New("constraint violation")

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

// classify tags driver constraint errors with ErrConstraint.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrConstraint) {
		return err
	}

	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) && cgoErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}

	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) && pureErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}

	return err
}
