package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// TokenCookie is the name of the cookie holding the session token.
const TokenCookie = "token"

// TokenSource reports the current session token. A present token only means
// "possibly authenticated"; the backend's current-user call decides.
type TokenSource interface {
	Token() (string, bool)
}

// NewJar returns a cookie jar suitable for talking to the gateway.
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return jar, nil
}

// JarTokenSource reads the token cookie a jar would send to one URL.
// The jar is written by whoever performs the login; this type only reads it.
type JarTokenSource struct {
	jar http.CookieJar
	url *url.URL
}

// NewJarTokenSource returns a TokenSource for the cookies jar holds for rawURL.
func NewJarTokenSource(jar http.CookieJar, rawURL string) (*JarTokenSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("token source url: %w", err)
	}
	return &JarTokenSource{jar: jar, url: u}, nil
}

// Token returns the token cookie value, if any.
func (s *JarTokenSource) Token() (string, bool) {
	for _, c := range s.jar.Cookies(s.url) {
		if c.Name == TokenCookie && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
