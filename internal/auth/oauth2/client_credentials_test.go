package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

func TestTokenSource_AcquireAndReuse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		if r.Form.Get("client_id") != "svc" || r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResp{AccessToken: "t-cc", TokenType: "bearer", ExpiresIn: 3600})
	}))
	defer srv.Close()

	ts, err := NewTokenSource(ClientCredentialsConfig{ClientID: "svc", ClientSec: "secret", TokenURL: srv.URL + "/token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		h, v, err := ts.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h != "Authorization" {
			t.Fatalf("unexpected header: %q", h)
		}
		if v != "Bearer t-cc" {
			t.Fatalf("unexpected value: %q", v)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected token to be cached, got %d token requests", got)
	}
}

func TestTokenSource_CustomHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResp{AccessToken: "abc"})
	}))
	defer srv.Close()

	ts, err := NewTokenSource(ClientCredentialsConfig{Header: "X-Api-Token", ClientID: "svc", ClientSec: "s", TokenURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, v, err := ts.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != "X-Api-Token" || v != "Bearer abc" {
		t.Fatalf("unexpected header %q value %q", h, v)
	}
}

func TestTokenSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts, err := NewTokenSource(ClientCredentialsConfig{ClientID: "svc", ClientSec: "bad", TokenURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := ts.Acquire(context.Background()); err == nil {
		t.Fatal("expected error from token endpoint")
	}
}

func TestClientCredentialsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientCredentialsConfig
		wantErr bool
		enabled bool
	}{
		{name: "empty", cfg: ClientCredentialsConfig{}, wantErr: true, enabled: false},
		{name: "missing secret", cfg: ClientCredentialsConfig{ClientID: "a", TokenURL: "http://t"}, wantErr: true, enabled: true},
		{name: "complete", cfg: ClientCredentialsConfig{ClientID: "a", ClientSec: "b", TokenURL: "http://t"}, enabled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.cfg.Enabled() != tt.enabled {
				t.Fatalf("Enabled() = %v, want %v", tt.cfg.Enabled(), tt.enabled)
			}
		})
	}
}
