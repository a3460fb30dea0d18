package service

import (
	"strings"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// ClassifyTokens reports which credentials appear in a relayed Cookie header.
// It checks for "name=" by substring only and never inspects values.
func ClassifyTokens(header string, names domainauth.CookieNames) domainauth.Presence {
	names = names.WithDefaults()
	return domainauth.Presence{
		Access:  strings.Contains(header, names.Access+"="),
		Refresh: strings.Contains(header, names.Refresh+"="),
	}
}
