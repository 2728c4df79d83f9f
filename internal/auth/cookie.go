package auth

import (
	"net/http"

	"gunnforge/internal/domain"
)

// DefaultCookieName is the cookie that carries the session token.
const DefaultCookieName = "auth-token"

// CookieManager writes, clears and reads the session cookie.
type CookieManager struct {
	auth   *Authenticator
	name   string
	secure bool
}

func NewCookieManager(auth *Authenticator, name string, secure bool) *CookieManager {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieManager{
		auth:   auth,
		name:   name,
		secure: secure,
	}
}

func (m *CookieManager) Name() string {
	return m.name
}

// SetAuthCookie stores token in an HTTP-only, strict same-site cookie that
// lives exactly as long as the token.
func (m *CookieManager) SetAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.auth.TTL().Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookie expires the session cookie. It is safe to call without one.
func (m *CookieManager) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// CurrentUser returns the identity in the request's session cookie, or nil
// when there is no cookie or it does not verify. A nil result means anonymous.
func (m *CookieManager) CurrentUser(r *http.Request) *domain.UserPayload {
	cookie, err := r.Cookie(m.name)
	if err != nil || cookie.Value == "" {
		return nil
	}
	user, err := m.auth.ParseToken(cookie.Value)
	if err != nil {
		return nil
	}
	return user
}
