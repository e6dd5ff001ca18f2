// Package session issues and verifies the signed cookie that carries an anonymous chat session id.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
)

// CookieName is the cookie that stores the signed session token.
const CookieName = "janvani_session"

const issuer = "janvani"

var ErrInvalidToken = errors.New("invalid session token")

// Manager signs session ids with HS256.
type Manager struct {
	secret []byte
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

// NewManager builds a Manager. maxAge bounds the cookie lifetime; secure sets the Secure flag.
func NewManager(secret string, maxAge time.Duration, secure bool) *Manager {
	return &Manager{
		secret: []byte(secret),
		maxAge: maxAge,
		secure: secure,
		now:    time.Now,
	}
}

// Sign returns a token for sessionID.
func (m *Manager) Sign(sessionID string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify returns the session id carried by token.
func (m *Manager) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !chat.ValidSessionID(claims.Subject) {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// FromRequest returns the session id from a valid cookie, or "" when absent or invalid.
func (m *Manager) FromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	id, err := m.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return id
}

// Resolve picks the session id for a request: an explicit id wins, then the cookie, then a fresh
// UUID. The cookie is (re)issued whenever it does not already carry the chosen id.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request, explicit string) (string, error) {
	if explicit != "" && !chat.ValidSessionID(explicit) {
		return "", errs.New(errs.KindInvalidInput, "session.Resolve", "invalid session id")
	}
	fromCookie := m.FromRequest(r)

	id := explicit
	if id == "" {
		id = fromCookie
	}
	if id == "" {
		id = uuid.NewString()
	}

	if id != fromCookie {
		if err := m.SetCookie(w, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// SetCookie writes the signed cookie for sessionID.
func (m *Manager) SetCookie(w http.ResponseWriter, sessionID string) error {
	token, err := m.Sign(sessionID)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
