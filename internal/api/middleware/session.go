package middleware

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// CookieName is the browser-facing session cookie. Its value is a signed
// token carrying only the gateway session ID; the upstream bearer token never
// reaches the browser.
const CookieName = "qd_session"

// ctxSessionID is the echo context key the resolved session ID is stored
// under.
const ctxSessionID = "session_id"

// CookieManager issues, reads, and revokes the signed session cookie.
type CookieManager struct {
	secret []byte
	ttl    time.Duration
}

// NewCookieManager builds a manager. ttl doubles as the cookie Max-Age and
// the signed token's expiry, mirroring the credential store's horizon.
func NewCookieManager(secret string, ttl time.Duration) *CookieManager {
	return &CookieManager{secret: []byte(secret), ttl: ttl}
}

// Issue sets the session cookie on the response.
func (m *CookieManager) Issue(c echo.Context, sid string) error {
	now := time.Now()
	claims := jwt.MapClaims{
		"sid": sid,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Revoke expires the session cookie immediately.
func (m *CookieManager) Revoke(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ReadSessionID extracts and validates the session ID from the request
// cookie. Absent, malformed, or expired cookies yield "".
func (m *CookieManager) ReadSessionID(c echo.Context) string {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !tkn.Valid {
		return ""
	}

	sid, _ := claims["sid"].(string)
	return sid
}

// Session resolves the session cookie on every request and stashes the
// session ID in the echo context. Resolution never fails the request: routes
// that require a session enforce that themselves.
func Session(cm *CookieManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sid := cm.ReadSessionID(c); sid != "" {
				c.Set(ctxSessionID, sid)
			}
			return next(c)
		}
	}
}

// SessionID returns the session ID resolved by the Session middleware, or "".
func SessionID(c echo.Context) string {
	sid, _ := c.Get(ctxSessionID).(string)
	return sid
}
