package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/loykin/woodlandmigrate/internal/blob/core"
)

func TestMockStore_Basic(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	if _, err := s.Put(ctx, "woodland-owners/o1/a.txt", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := s.Put(ctx, "woodland-owners/o1/a.txt", bytes.NewReader([]byte("hello again")), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != int64(len("hello again")) {
		t.Fatalf("expected overwritten size, got %d", info.Size)
	}

	_, rc, err := s.Get(ctx, "woodland-owners/o1/a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "hello again" {
		t.Fatalf("unexpected body %q", b)
	}

	list, err := s.List(ctx, "woodland-owners/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	if ok, err := s.Delete(ctx, "woodland-owners/o1/a.txt"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestMockStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
	s, err := New(context.Background(), Config{Bucket: "b", Endpoint: "http://localhost:9000", PathStyle: true, AccessKeyID: "a", SecretAccessKey: "b"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Bucket() != "b" {
		t.Fatalf("bucket = %q", s.Bucket())
	}
}

func TestDecodeChunked(t *testing.T) {
	dec, ok := decodeChunked([]byte("3\r\nabc\r\n0\r\n"))
	if !ok || string(dec) != "abc" {
		t.Fatalf("unexpected decode: %v %q", ok, dec)
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatal("expected decode failure")
	}
	if _, err := parseHex("zz"); err == nil {
		t.Fatal("expected parseHex error")
	}
}
