package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// MinPublishedYear is exclusive: a book must be published after it.
const MinPublishedYear = 1800

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidationError collects every field failure of one input.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is matches ErrValidation, and ErrInvalidSortColumn when order_by was rejected.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrInvalidSortColumn:
		for _, fe := range e.Errors {
			if fe.Field == "order_by" {
				return true
			}
		}
	}
	return false
}

func (e *ValidationError) add(field, typ, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg, Type: typ})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// RawBook holds book fields as they arrive over the wire. A nil field was absent.
type RawBook struct {
	Title         *string
	PublishedYear *string
	Genre         *string
}

// Validate applies the creation rules: every field present, title not
// blank or numeric, year in (1800, current year], genre known.
func (r RawBook) Validate(now time.Time) (NewBook, error) {
	var (
		verr ValidationError
		out  NewBook
	)
	if r.Title == nil {
		verr.add("title", "missing", "Field required")
	} else if msg := checkText(*r.Title, "title"); msg != "" {
		verr.add("title", "value_error", msg)
	} else {
		out.Title = *r.Title
	}

	if r.PublishedYear == nil {
		verr.add("published_year", "missing", "Field required")
	} else if year, typ, msg := parseYear(*r.PublishedYear, now); msg != "" {
		verr.add("published_year", typ, msg)
	} else {
		out.PublishedYear = year
	}

	if r.Genre == nil {
		verr.add("genre", "missing", "Field required")
	} else if g, ok := ParseGenre(strings.TrimSpace(*r.Genre)); !ok {
		verr.add("genre", "enum", genreMessage())
	} else {
		out.Genre = g
	}

	if err := verr.orNil(); err != nil {
		return NewBook{}, err
	}
	return out, nil
}

// Patch validates only the fields that are present.
func (r RawBook) Patch(now time.Time) (BookPatch, error) {
	var (
		verr  ValidationError
		patch BookPatch
	)
	if r.Title != nil {
		if msg := checkText(*r.Title, "title"); msg != "" {
			verr.add("title", "value_error", msg)
		} else {
			title := *r.Title
			patch.Title = &title
		}
	}
	if r.PublishedYear != nil {
		if year, typ, msg := parseYear(*r.PublishedYear, now); msg != "" {
			verr.add("published_year", typ, msg)
		} else {
			patch.PublishedYear = &year
		}
	}
	if r.Genre != nil {
		if g, ok := ParseGenre(strings.TrimSpace(*r.Genre)); !ok {
			verr.add("genre", "enum", genreMessage())
		} else {
			patch.Genre = &g
		}
	}
	if err := verr.orNil(); err != nil {
		return BookPatch{}, err
	}
	return patch, nil
}

func parseYear(raw string, now time.Time) (int, string, string) {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, "int_parsing", "Input should be a valid integer"
	}
	if msg := checkYear(year, now); msg != "" {
		return 0, "value_error", msg
	}
	return year, "", ""
}

func checkYear(year int, now time.Time) string {
	if year <= MinPublishedYear {
		return fmt.Sprintf("published_year must be above %d", MinPublishedYear)
	}
	if current := now.Year(); year > current {
		return fmt.Sprintf("published_year cannot be greater than %d", current)
	}
	return ""
}

func checkText(v, field string) string {
	if strings.TrimSpace(v) == "" {
		return field + " cannot be empty"
	}
	if isNumeric(v) {
		return field + " cannot be a number"
	}
	return ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

func genreMessage() string {
	names := make([]string, len(Genres))
	for i, g := range Genres {
		names[i] = "'" + string(g) + "'"
	}
	return "Input should be " + strings.Join(names, ", ")
}
