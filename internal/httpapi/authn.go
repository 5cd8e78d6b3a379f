package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bookcat.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth resolves the bearer token of tokenType and stores the
// principal in the request context.
func (a *API) requireAuth(tokenType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := a.authenticate(w, r, tokenType)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// authenticate writes the 401 itself when it returns false.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request, tokenType string) (auth.Principal, bool) {
	if a.gate == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
		return auth.Principal{}, false
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return auth.Principal{}, false
	}
	p, err := a.gate.ResolvePrincipal(r.Context(), token, tokenType)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		handleAuthError(w, r, err)
		return auth.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
