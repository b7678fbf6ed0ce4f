package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/woodlandmigrate/internal/blob/core"
)

func TestStore_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver")
	}

	if _, err := s.Put(ctx, "woodland-owners/o1/map.pdf", bytes.NewReader([]byte("v1")), core.PutOptions{ContentType: "application/pdf"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := s.Put(ctx, "woodland-owners/o1/map.pdf", bytes.NewReader([]byte("v22")), core.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := s.Get(ctx, "woodland-owners/o1/map.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "v22" || got.ContentType != "application/pdf" {
		t.Fatalf("unexpected get %q %+v", b, got)
	}

	head, err := s.Head(ctx, "woodland-owners/o1/map.pdf")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head: %v %+v", err, head)
	}

	list, err := s.List(ctx, "woodland-owners/")
	if err != nil || len(list) != 1 || list[0].Key != "woodland-owners/o1/map.pdf" {
		t.Fatalf("list: %v %+v", err, list)
	}

	ok, err := s.Delete(ctx, "woodland-owners/o1/map.pdf")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, "woodland-owners/o1/map.pdf"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestStore_PlainFileWithoutSidecar(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "legacy"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "legacy", "100"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	info, rc, err := s.Get(context.Background(), "legacy/100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	if info.Size != 5 {
		t.Fatalf("size = %d", info.Size)
	}
	if _, _, err := s.Get(context.Background(), "legacy/404"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{key: "a/b.txt"},
		{key: "", wantErr: true},
		{key: "../etc/passwd", wantErr: true},
		{key: "/abs", wantErr: true},
		{key: "a/../../b", wantErr: true},
	}
	for _, tt := range tests {
		if _, err := sanitizeKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("sanitizeKey(%q) err = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
	if _, err := New(""); err == nil {
		t.Error("expected error for empty root")
	}
}
