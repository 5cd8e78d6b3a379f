package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookcat.org/internal/auth"
	"bookcat.org/internal/catalog"
	"bookcat.org/internal/export"
	"bookcat.org/internal/ingest"
	"bookcat.org/internal/objectstore"
	"bookcat.org/internal/obs"
)

const (
	msgBadCredentials   = "invalid email or password"
	msgForbidden        = "You have not enough rights"
	msgUserExists       = "User with this email already exists"
	msgTokenType        = "invalid token type"
	msgPrincipalMissing = "token invalid (user not found)"
	msgImportFailed     = "Unexpected error while bulk importing books: "
)

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeValidation renders field failures as 422 {"detail": [...]}.
func writeValidation(w http.ResponseWriter, r *http.Request, details []catalog.FieldError) {
	if details == nil {
		details = []catalog.FieldError{}
	}
	payload := map[string]any{
		"detail": details,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusUnprocessableEntity, payload)
}

func invalidField(w http.ResponseWriter, r *http.Request, field, typ, msg string) {
	writeValidation(w, r, []catalog.FieldError{{Field: field, Message: msg, Type: typ}})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, msgBadCredentials)
	case errors.Is(err, auth.ErrInvalidTokenType):
		writeError(w, r, http.StatusUnauthorized, msgTokenType)
	case errors.Is(err, auth.ErrPrincipalNotFound):
		writeError(w, r, http.StatusUnauthorized, msgPrincipalMissing)
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, msgForbidden)
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusBadRequest, msgUserExists)
	case errors.Is(err, auth.ErrInvalidInput):
		invalidField(w, r, "body", "value_error", strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "))
	default:
		obs.Logger().ErrorContext(r.Context(), "auth request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, export.ErrUnsupportedFormat):
		writeError(w, r, http.StatusBadRequest, err.Error())
	// import failures wrap the row's ValidationError; match them first
	case errors.Is(err, ingest.ErrImportFailed):
		writeError(w, r, http.StatusBadRequest, msgImportFailed+strings.TrimPrefix(err.Error(), ingest.ErrImportFailed.Error()+": "))
	case errors.As(err, &verr):
		writeValidation(w, r, verr.Errors)
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, msgForbidden)
	case errors.Is(err, objectstore.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "File not found")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Book not found")
	case errors.Is(err, catalog.ErrUnsupportedFileType), errors.Is(err, catalog.ErrUnsupportedFileSize):
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "catalog: "))
	default:
		obs.Logger().ErrorContext(r.Context(), "catalog request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// bookID reads the {id} path segment; only positive integers are accepted.
func bookID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func parsePositiveInt(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.New("Input should be a valid integer")
	}
	if val < 1 {
		return 0, errors.New("Input should be greater than 0")
	}
	return val, nil
}
