package service

import (
	"net/http"
	"strings"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// identityNameFragments select cookies worth forwarding to the identity provider.
var identityNameFragments = []string{"token", "auth", "refresh"}

// RelayCookies builds a Cookie header containing only identity-related cookies.
// A cookie is kept when its name case-insensitively contains one of the identity
// fragments or equals one of the configured names. Input order is preserved.
func RelayCookies(cookies []*http.Cookie, names domainauth.CookieNames) string {
	allow := names.AllowList()
	var b strings.Builder
	for _, c := range cookies {
		if c == nil || c.Name == "" || !isIdentityCookie(c.Name, allow) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

func isIdentityCookie(name string, allow []string) bool {
	for _, a := range allow {
		if name == a {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, frag := range identityNameFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
