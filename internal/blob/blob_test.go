package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/woodlandmigrate/internal/blob/core"
	"github.com/loykin/woodlandmigrate/internal/blob/memory"
	"github.com/loykin/woodlandmigrate/internal/domain"
)

func TestOpenStore_Schemes(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenStore(ctx, "mem://", "")
	require.NoError(t, err)
	assert.Equal(t, core.DriverMemory, mem.Driver())

	dir := t.TempDir()
	fsStore, err := OpenStore(ctx, "file://"+filepath.ToSlash(dir), "woodland-owner-files")
	require.NoError(t, err)
	assert.Equal(t, core.DriverFilesystem, fsStore.Driver())
	_, err = fsStore.Put(ctx, "a/b.txt", bytes.NewReader([]byte("x")), core.PutOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "woodland-owner-files", "a", "b.txt"))

	s3Store, err := OpenStore(ctx, "s3://?region=eu-west-2&endpoint=http://localhost:9000&path_style=true&access_key_id=a&secret_access_key=b", "bucket")
	require.NoError(t, err)
	assert.Equal(t, core.DriverS3, s3Store.Driver())
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		connectionString string
		container        string
	}{
		{connectionString: ""},
		{connectionString: "ftp://x"},
		{connectionString: "s3://?region=x"},
		{connectionString: "s3://?path_style=maybe", container: "bucket"},
		{connectionString: "https://legacy.example"},
	}
	for _, tt := range tests {
		_, err := OpenStore(ctx, tt.connectionString, tt.container)
		require.Error(t, err, tt.connectionString)
		assert.ErrorIs(t, err, domain.ErrFatalConfigurationError, tt.connectionString)
	}
}

func TestOpenSource(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSource(ctx, "https://legacy.example/api", "files", SourceOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.DriverHTTP, src.Driver())

	src, err = OpenSource(ctx, "mem://", "", SourceOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.DriverMemory, src.Driver())
}

func TestPrefixed(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	st := withPrefix(inner, "/legacy/")

	info, err := st.Put(ctx, "a.txt", bytes.NewReader([]byte("x")), core.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Key)

	_, err = inner.Head(ctx, "legacy/a.txt")
	require.NoError(t, err)

	list, err := st.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a.txt", list[0].Key)

	_, _, err = st.Get(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	assert.Same(t, inner, withPrefix(inner, "").(*memory.Store))
}

func TestDescribe(t *testing.T) {
	got := Describe("s3://user:pw@bucket?region=x&secret_access_key=shh")
	assert.NotContains(t, got, "pw")
	assert.NotContains(t, got, "shh")
}
