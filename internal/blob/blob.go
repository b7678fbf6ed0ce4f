// Package blob opens blob stores and legacy document sources from
// connection strings:
//
//	mem://                                   in-process store
//	file:///var/blobs                        directory (container is a subdirectory)
//	s3://?region=eu-west-2&endpoint=...      bucket named by the container
//	s3://bucket?path_style=true              bucket in the host; container becomes a key prefix
//	https://legacy.example/files             read-only HTTP source (sources only)
package blob

import (
	"context"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loykin/woodlandmigrate/internal/blob/core"
	"github.com/loykin/woodlandmigrate/internal/blob/fs"
	"github.com/loykin/woodlandmigrate/internal/blob/httpsrc"
	"github.com/loykin/woodlandmigrate/internal/blob/memory"
	"github.com/loykin/woodlandmigrate/internal/blob/s3"
	"github.com/loykin/woodlandmigrate/internal/domain"
)

// SourceOptions configures HTTP sources.
type SourceOptions struct {
	Auth               httpsrc.Authorizer
	InsecureSkipVerify bool
}

// OpenStore opens a writable blob store.
func OpenStore(ctx context.Context, connectionString, container string) (core.Store, error) {
	u, err := parse(connectionString)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "mem", "memory":
		return withPrefix(memory.New(), container), nil
	case "file":
		root := u.Path
		if u.Host != "" && u.Host != "localhost" {
			root = filepath.Join(u.Host, u.Path)
		}
		if root == "" {
			return nil, domain.FatalConfiguration("blob connection string %q has no path", u.Redacted())
		}
		if c := strings.Trim(container, "/"); c != "" {
			root = filepath.Join(root, filepath.FromSlash(c))
		}
		st, err := fs.New(root)
		if err != nil {
			return nil, domain.FatalConfiguration("open fs blob store: %v", err)
		}
		return st, nil
	case "s3":
		return openS3(ctx, u, container)
	default:
		return nil, domain.FatalConfiguration("unsupported blob scheme %q", u.Scheme)
	}
}

// OpenSource opens a read-only legacy document source.
func OpenSource(ctx context.Context, connectionString, container string, opts SourceOptions) (core.Source, error) {
	u, err := parse(connectionString)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		src, err := httpsrc.New(httpsrc.Options{
			BaseURL:            connectionString,
			Container:          container,
			Auth:               opts.Auth,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		})
		if err != nil {
			return nil, domain.FatalConfiguration("%v", err)
		}
		return src, nil
	}
	return OpenStore(ctx, connectionString, container)
}

func parse(connectionString string) (*url.URL, error) {
	raw := strings.TrimSpace(connectionString)
	if raw == "" {
		return nil, domain.FatalConfiguration("blob connection string is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, domain.FatalConfiguration("invalid blob connection string: %v", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

func openS3(ctx context.Context, u *url.URL, container string) (core.Store, error) {
	q := u.Query()
	bucket := u.Host
	prefix := ""
	if bucket == "" {
		bucket = strings.Trim(container, "/")
	} else {
		prefix = container
	}
	if bucket == "" {
		return nil, domain.FatalConfiguration("s3 blob store needs a bucket (host or container)")
	}
	pathStyle := false
	if v := q.Get("path_style"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, domain.FatalConfiguration("invalid path_style %q", v)
		}
		pathStyle = b
	}
	cfg := s3.Config{
		Region:          q.Get("region"),
		Bucket:          bucket,
		Endpoint:        q.Get("endpoint"),
		AccessKeyID:     q.Get("access_key_id"),
		SecretAccessKey: q.Get("secret_access_key"),
		SessionToken:    q.Get("session_token"),
		PathStyle:       pathStyle,
	}
	if u.User != nil {
		cfg.AccessKeyID = u.User.Username()
		cfg.SecretAccessKey, _ = u.User.Password()
	}
	st, err := s3.New(ctx, cfg)
	if err != nil {
		return nil, domain.FatalConfiguration("open s3 blob store: %v", err)
	}
	return withPrefix(st, prefix), nil
}

// withPrefix scopes every key of st under prefix.
func withPrefix(st core.Store, prefix string) core.Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return st
	}
	return &prefixed{Store: st, prefix: prefix}
}

type prefixed struct {
	core.Store
	prefix string
}

func (p *prefixed) key(k string) string { return path.Join(p.prefix, k) }

func (p *prefixed) strip(info core.Info) core.Info {
	info.Key = strings.TrimPrefix(strings.TrimPrefix(info.Key, p.prefix), "/")
	return info
}

func (p *prefixed) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	info, err := p.Store.Put(ctx, p.key(key), r, opts)
	return p.strip(info), err
}

func (p *prefixed) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, rc, err := p.Store.Get(ctx, p.key(key))
	return p.strip(info), rc, err
}

func (p *prefixed) Head(ctx context.Context, key string) (core.Info, error) {
	info, err := p.Store.Head(ctx, p.key(key))
	return p.strip(info), err
}

func (p *prefixed) Delete(ctx context.Context, key string) (bool, error) {
	return p.Store.Delete(ctx, p.key(key))
}

func (p *prefixed) List(ctx context.Context, prefix string) ([]core.Info, error) {
	infos, err := p.Store.List(ctx, p.key(prefix))
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i] = p.strip(infos[i])
	}
	return infos, nil
}

// Describe returns a loggable form of the connection string with secrets removed.
func Describe(connectionString string) string {
	u, err := url.Parse(strings.TrimSpace(connectionString))
	if err != nil {
		return "<invalid>"
	}
	q := u.Query()
	for _, k := range []string{"secret_access_key", "session_token"} {
		if q.Has(k) {
			q.Set(k, "xxxxx")
		}
	}
	u.RawQuery = q.Encode()
	return u.Redacted()
}
