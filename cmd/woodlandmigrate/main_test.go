package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/loykin/woodlandmigrate/internal/legacy/legacytest"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/store/sqlite"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// fixture lays out a legacy SQLite store, a legacy files directory and a
// config file pointing at a fresh SQLite target and blob directory.
type fixture struct {
	dir       string
	cfgPath   string
	targetDSN string
	blobDir   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	legacyDSN := sqlite.PathDSN(filepath.Join(dir, "legacy.db"))
	targetDSN := sqlite.PathDSN(filepath.Join(dir, "target.db"))
	filesDir := filepath.Join(dir, "legacy-files")
	blobDir := filepath.Join(dir, "blobs")

	db, err := store.Open(store.Config{Driver: "sqlite", DSN: legacyDSN})
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	defer func() { _ = db.Close() }()
	legacytest.MustExec(t, legacytest.Create(ctx, db))
	legacytest.MustExec(t, legacytest.InsertUser(ctx, db, legacytest.User{ID: 1, FirstName: "Ann", LastName: "Oak", Email: "ann@x.com", Role: "woodland_owner"}))
	legacytest.MustExec(t, legacytest.InsertUser(ctx, db, legacytest.User{ID: 2, FirstName: "Ben", LastName: "Ash", Email: "ben@x.com", Role: "woodland_owner"}))
	legacytest.MustExec(t, legacytest.InsertOwner(ctx, db, legacytest.Owner{ID: 1, SelfManaged: true, UserID: 1, FirstName: "Ann", LastName: "Oak"}))
	legacytest.MustExec(t, legacytest.InsertOwner(ctx, db, legacytest.Owner{ID: 2, SelfManaged: true, UserID: 2, FirstName: "Ben", LastName: "Ash"}))
	legacytest.MustExec(t, legacytest.InsertDocument(ctx, db, legacytest.Document{ID: 10, OwnerID: 1, FileName: "plan.pdf", StorageKey: "legacy/10"}))
	// Owner 2's document has no file on disk.
	legacytest.MustExec(t, legacytest.InsertDocument(ctx, db, legacytest.Document{ID: 20, OwnerID: 2, FileName: "map.png", StorageKey: "legacy/20"}))
	writeFile(t, filesDir, "legacy/10", "plan")

	cfg := fmt.Sprintf(`source:
  driver: sqlite
  dsn: %q
target:
  driver: sqlite
  dsn: %q
blob:
  connection_string: %q
legacy_files:
  connection_string: %q
max_degree_of_parallelism: 2
retry:
  max_retries: 1
  initial_delay: 1ms
  max_delay: 2ms
logging:
  level: error
`, legacyDSN, targetDSN, "file://"+filepath.ToSlash(blobDir), "file://"+filepath.ToSlash(filesDir))

	return fixture{
		dir:       dir,
		cfgPath:   writeFile(t, dir, "config.yaml", cfg),
		targetDSN: targetDSN,
		blobDir:   blobDir,
	}
}

func useConfig(t *testing.T, path string) {
	t.Helper()
	v := viper.GetViper()
	v.Set("config", path)
	t.Cleanup(func() { v.Set("config", "") })
}

func runCommand(t *testing.T, run func() error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	runCmd.SetOut(&buf)
	statusCmd.SetOut(&buf)
	t.Cleanup(func() {
		runCmd.SetOut(nil)
		statusCmd.SetOut(nil)
	})
	err := run()
	return buf.String(), err
}
