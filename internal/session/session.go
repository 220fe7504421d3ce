// Package session identifies the resource owner browsing the consent
// and management pages via the product's first-party JWT cookie. It is
// only an identity check; the bearer-token endpoints never use it.
package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ContextKey is where the middleware stores the authenticated userUUID.
const ContextKey = "sessionUserUUID"

type Manager struct {
	secret     []byte
	cookieName string
	loginURL   string
}

func NewManager(secret []byte, cookieName, loginURL string) *Manager {
	return &Manager{secret: secret, cookieName: cookieName, loginURL: loginURL}
}

// IssueToken signs a session token for a user. The main login system
// lives outside this subsystem; this is used by first-party callers and
// tests.
func (m *Manager) IssueToken(userUUID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userUUID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("could not sign session token: %w", err)
	}

	return signed, nil
}

func (m *Manager) parse(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("session token has no subject")
	}

	return sub, nil
}

// Middleware requires a valid session cookie. Without one the browser
// is sent to the login page carrying the original URL for replay after
// login.
func (m *Manager) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(e echo.Context) error {
		cookie, err := e.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			return e.Redirect(302, m.loginRedirect(e))
		}

		userUUID, err := m.parse(cookie.Value)
		if err != nil {
			return e.Redirect(302, m.loginRedirect(e))
		}

		e.Set(ContextKey, userUUID)
		return next(e)
	}
}

func (m *Manager) loginRedirect(e echo.Context) string {
	return m.loginURL + "?redirect=" + url.QueryEscape(e.Request().RequestURI)
}

// UserUUID reads the authenticated user from the request context.
func UserUUID(e echo.Context) string {
	if v, ok := e.Get(ContextKey).(string); ok {
		return v
	}
	return ""
}
