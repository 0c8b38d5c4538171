package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingTokenIssuer       = errors.New("session validator: token issuer required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

const bearerPrefix = "Bearer "

// SessionValidatorConfig describes where sessions are read from.
type SessionValidatorConfig struct {
	Tokens     *TokenIssuer
	CookieName string
}

// SessionValidator resolves the current user id from a request's session cookie
// or Authorization header.
type SessionValidator struct {
	tokens     *TokenIssuer
	cookieName string
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Tokens == nil {
		return nil, ErrMissingTokenIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	return &SessionValidator{
		tokens:     cfg.Tokens,
		cookieName: cookieName,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateRequest extracts the session token from the request and returns the user id.
// The cookie wins over the Authorization header when both are present.
func (v *SessionValidator) ValidateRequest(r *http.Request) (int64, error) {
	if r == nil {
		return 0, ErrMissingSessionToken
	}
	token := ""
	if cookie, err := r.Cookie(v.cookieName); err == nil && cookie != nil {
		token = cookie.Value
	}
	if strings.TrimSpace(token) == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, bearerPrefix) {
			token = strings.TrimPrefix(header, bearerPrefix)
		}
	}
	claims, err := v.tokens.ParseToken(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}
