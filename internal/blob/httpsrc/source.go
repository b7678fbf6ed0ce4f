// Package httpsrc reads legacy documents over HTTP(S).
package httpsrc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/loykin/woodlandmigrate/internal/blob/core"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/httpc"
)

// Authorizer supplies the header attached to every request.
type Authorizer interface {
	Acquire(ctx context.Context) (header, value string, err error)
}

// Options configures a Source.
type Options struct {
	BaseURL            string
	Container          string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Auth               Authorizer
}

// Source fetches documents with GET <base>/<container>/<key>.
type Source struct {
	client *resty.Client
	base   *url.URL
	auth   Authorizer
}

// New creates a Source.
func New(opts Options) (*Source, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("http source: unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("http source: missing host")
	}
	if c := strings.Trim(opts.Container, "/"); c != "" {
		base = base.JoinPath(c)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPSourceTimeout
	}
	client := (&httpc.Httpc{Timeout: timeout, InsecureSkipVerify: opts.InsecureSkipVerify}).New()
	return &Source{client: client, base: base, auth: opts.Auth}, nil
}

func (s *Source) Driver() core.Driver { return core.DriverHTTP }

// URL returns the request URL for key.
func (s *Source) URL(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	return s.base.JoinPath(segments...).String()
}

// Get streams the document body. The caller closes the reader.
func (s *Source) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	req := s.client.R().SetContext(ctx).SetDoNotParseResponse(true)
	if s.auth != nil {
		h, v, err := s.auth.Acquire(ctx)
		if err != nil {
			return core.Info{}, nil, fmt.Errorf("http source auth: %w", err)
		}
		req.SetHeader(h, v)
	}
	resp, err := req.Get(s.URL(key))
	if err != nil {
		return core.Info{}, nil, err
	}
	body := resp.RawBody()
	switch {
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone:
		_ = body.Close()
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	case resp.StatusCode() < 200 || resp.StatusCode() > 299:
		_ = body.Close()
		return core.Info{}, nil, fmt.Errorf("http source: GET %s: status %d", key, resp.StatusCode())
	}
	info := core.Info{
		Key:         key,
		ContentType: resp.Header().Get("Content-Type"),
		ETag:        strings.Trim(resp.Header().Get("ETag"), "\""),
	}
	if resp.RawResponse != nil {
		info.Size = resp.RawResponse.ContentLength
	}
	if lm, err := http.ParseTime(resp.Header().Get("Last-Modified")); err == nil {
		info.LastModified = lm.UTC()
	}
	return info, body, nil
}
