package httpapi

import (
	"net/http"
	"strings"
	"time"

	"bookcat.org/internal/audit"
	"bookcat.org/internal/auth"
	"bookcat.org/internal/catalog"
)

const tokenTypeBearer = "Bearer"

// signupRequest carries the plaintext password in password_hash; the
// field name is part of the public API.
type signupRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password_hash"`
}

type tokenInfo struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if a.gate == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var missing []catalog.FieldError
	for _, f := range []struct {
		name string
		v    *string
	}{{"name", req.Name}, {"email", req.Email}, {"password_hash", req.Password}} {
		if f.v == nil {
			missing = append(missing, catalog.FieldError{Field: f.name, Message: "Field required", Type: "missing"})
		}
	}
	if len(missing) > 0 {
		writeValidation(w, r, missing)
		return
	}

	p, err := a.gate.Register(r.Context(), *req.Name, *req.Email, *req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.WithPrincipal(r.Context(), p), "auth.signup", map[string]any{
		"email": p.Email,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"user": p})
}

// handleLogin takes OAuth2 password-flow form fields: username is the email.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.gate == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form body")
		return
	}
	var missing []catalog.FieldError
	for _, field := range []string{"username", "password"} {
		if !r.PostForm.Has(field) {
			missing = append(missing, catalog.FieldError{Field: field, Message: "Field required", Type: "missing"})
		}
	}
	if len(missing) > 0 {
		writeValidation(w, r, missing)
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("username"))
	pair, p, err := a.gate.IssueTokenPair(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": email})
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.WithPrincipal(r.Context(), p), "auth.login", map[string]any{
		"access_expires_at":  pair.AccessExpiresAt.Format(time.RFC3339),
		"refresh_expires_at": pair.RefreshExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenInfo{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenTypeBearer,
	})
}

// handleRefresh exchanges the refresh token in the Authorization header
// for a new access token.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, ok := a.authenticate(w, r, auth.RefreshToken)
	if !ok {
		return
	}
	token, expiresAt, err := a.gate.IssueAccessToken(p)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.WithPrincipal(r.Context(), p), "auth.refresh", map[string]any{
		"access_expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusCreated, tokenInfo{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
	})
}
