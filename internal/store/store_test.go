package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/loykin/woodlandmigrate/internal/store/postgresql"
	"github.com/loykin/woodlandmigrate/internal/store/sqlite"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: "postgresql", want: "postgresql"},
		{driver: "Postgres", want: "postgresql"},
		{driver: "sqlite", want: "sqlite"},
		{driver: " sqlite3 ", want: "sqlite"},
		{driver: "mysql", wantErr: true},
		{driver: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.driver)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.DriverName() != tt.want {
				t.Errorf("DriverName() = %q, want %q", d.DriverName(), tt.want)
			}
		})
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open(Config{Driver: "sqlite"}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestRebind(t *testing.T) {
	pg := postgresql.NewDialect()
	got := Rebind(pg, `SELECT id FROM t WHERE a = ? AND b = '?' AND c = ?`)
	want := `SELECT id FROM t WHERE a = $1 AND b = '?' AND c = $2`
	if got != want {
		t.Errorf("Rebind(pg) = %q, want %q", got, want)
	}

	lite := sqlite.NewDialect()
	q := `SELECT 1 WHERE a = ?`
	if got := Rebind(lite, q); got != q {
		t.Errorf("Rebind(sqlite) = %q, want unchanged", got)
	}
}

func TestInTx_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t").WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	d := Wrap(db, postgresql.NewDialect())
	err = d.InTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), d.Rebind("INSERT INTO t (k) VALUES (?)"), "a")
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t").WillReturnError(boom)
	mock.ExpectRollback()

	d := Wrap(db, sqlite.NewDialect())
	err = d.InTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "INSERT INTO t (k) VALUES (?)", "a")
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInTx_BeginFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
	d := Wrap(db, sqlite.NewDialect())
	called := false
	err = d.InTx(context.Background(), func(*sql.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected ErrConnDone, got %v", err)
	}
	if called {
		t.Error("fn must not run when begin fails")
	}
}
