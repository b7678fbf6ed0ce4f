package oauth2

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentialsConfig holds configuration for the Client Credentials grant.
type ClientCredentialsConfig struct {
	Header    string   `mapstructure:"header" yaml:"header,omitempty"`
	ClientID  string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSec string   `mapstructure:"client_secret" yaml:"client_secret"`
	TokenURL  string   `mapstructure:"token_url" yaml:"token_url"`
	Scopes    []string `mapstructure:"scopes" yaml:"scopes,omitempty"`
}

// Enabled reports whether any client-credentials field is set.
func (c ClientCredentialsConfig) Enabled() bool {
	return strings.TrimSpace(c.TokenURL) != "" || strings.TrimSpace(c.ClientID) != ""
}

// Validate checks that the grant can be attempted.
func (c ClientCredentialsConfig) Validate() error {
	if strings.TrimSpace(c.TokenURL) == "" {
		return errors.New("oauth2: token_url is required for client_credentials grant")
	}
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSec) == "" {
		return errors.New("oauth2: client_id and client_secret are required for client_credentials grant")
	}
	return nil
}

// TokenSource issues authorization header values, refreshing the token when
// it expires. Safe for concurrent use.
type TokenSource struct {
	header string
	mu     sync.Mutex
	src    oauth2.TokenSource
	cfg    *clientcredentials.Config
}

// NewTokenSource validates c and prepares a caching token source.
func NewTokenSource(c ClientCredentialsConfig) (*TokenSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSec),
		TokenURL:     strings.TrimSpace(c.TokenURL),
		Scopes:       c.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return &TokenSource{header: c.Header, cfg: cc}, nil
}

// Acquire returns the header name and value to attach to a request.
func (t *TokenSource) Acquire(ctx context.Context) (string, string, error) {
	t.mu.Lock()
	if t.src == nil {
		// the token source keeps ctx for refreshes, so detach it from request cancellation
		t.src = oauth2.ReuseTokenSource(nil, t.cfg.TokenSource(context.WithoutCancel(ctx)))
	}
	src := t.src
	t.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", "", err
	}
	return normalizeOAuth2Token(t.header, tok)
}
