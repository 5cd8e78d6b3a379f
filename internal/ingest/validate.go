package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bookcat.org/internal/catalog"
)

// Policy decides what happens to a row that fails validation.
type Policy string

const (
	// PolicySkip drops invalid rows and keeps going.
	PolicySkip Policy = "SKIP"
	// PolicyRaiseError aborts the import on the first invalid row.
	PolicyRaiseError Policy = "RAISE_ERROR"
)

var (
	ErrInvalidPolicy = errors.New("ingest: invalid validation error policy")
	ErrInvalidRow    = errors.New("ingest: invalid row")
)

// ParsePolicy accepts SKIP or RAISE_ERROR in any case. Empty means RAISE_ERROR.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return PolicyRaiseError, nil
	case PolicySkip, PolicyRaiseError:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// RowError reports the row that stopped a RAISE_ERROR import.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrInvalidRow, e.Err} }

// ValidateBatch applies the single-create rules to every row. Under
// PolicySkip it returns the valid books and the number dropped; under
// PolicyRaiseError the first invalid row fails the whole batch.
func ValidateBatch(rows []Row, policy Policy, now time.Time) ([]catalog.NewBook, int, error) {
	books := make([]catalog.NewBook, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		nb, err := row.Validate(now)
		if err == nil {
			books = append(books, nb)
			continue
		}
		if policy == PolicySkip {
			skipped++
			continue
		}
		return nil, 0, &RowError{Line: row.Line, Err: err}
	}
	return books, skipped, nil
}
