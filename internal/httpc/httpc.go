// Package httpc builds the resty clients used for outbound HTTP.
package httpc

import (
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
)

type Httpc struct {
	TlsConfig *tls.Config
	Timeout   time.Duration
	// InsecureSkipVerify disables certificate checks (self-signed legacy hosts).
	InsecureSkipVerify bool
}

// New returns a resty.Client configured according to the receiver's TLS settings.
// Defaults: MinVersion TLS1.2 when a TLS config is applied and MinVersion is zero.
func (h *Httpc) New() *resty.Client {
	c := resty.New()
	if h.Timeout > 0 {
		c.SetTimeout(h.Timeout)
	}
	cfg := h.TlsConfig
	if cfg == nil && !h.InsecureSkipVerify {
		return c
	}
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if h.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true // #nosec G402 -- opt-in for self-signed legacy hosts
	}
	c.SetTLSClientConfig(cfg)
	return c
}
