package auth

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName   = "refresh_token"
	TwoFactorCookieName = "twofa_token"
)

// Cookie is a transport-agnostic cookie instruction produced by the service
// layer. Handlers translate it to http.Cookie so services never touch the
// response writer.
type Cookie struct {
	Name     string
	Value    string
	TTL      time.Duration
	HttpOnly bool
}

func NewRefreshCookie(token string, ttl time.Duration) *Cookie {
	return &Cookie{Name: RefreshCookieName, Value: token, TTL: ttl, HttpOnly: true}
}

func NewTwoFactorCookie(token string, ttl time.Duration) *Cookie {
	return &Cookie{Name: TwoFactorCookieName, Value: token, TTL: ttl, HttpOnly: true}
}

// ToHTTP converts the instruction to a concrete http.Cookie. Secure is set
// by the handler based on the environment.
func (c *Cookie) ToHTTP(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: c.HttpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie returns a deletion instruction for the named cookie.
func ExpiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
