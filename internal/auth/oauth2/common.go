// Package oauth2 obtains bearer tokens for the HTTP legacy document source.
package oauth2

import (
	"errors"
	"strings"

	golangoauth2 "golang.org/x/oauth2"
)

// headerOrDefault returns Authorization if empty
func headerOrDefault(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return "Authorization"
	}
	return h
}

// normalizeOAuth2Token builds the Authorization header value from an oauth2.Token.
func normalizeOAuth2Token(header string, tok *golangoauth2.Token) (string, string, error) {
	if tok == nil || !tok.Valid() || strings.TrimSpace(tok.AccessToken) == "" {
		return "", "", errors.New("oauth2: received invalid token")
	}
	typ := strings.TrimSpace(tok.TokenType)
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return headerOrDefault(header), typ + " " + tok.AccessToken, nil
}
