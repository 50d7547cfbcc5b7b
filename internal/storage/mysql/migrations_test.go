package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"AgentWallet-Kit/deploy/migrations"
	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/storage/sqltest"
)

const recordMigration = `INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

func TestEmbeddedMigrationsAreReadable(t *testing.T) {
	files, err := readMigrations(migrations.Files)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(files) == 0 || files[0].version != "0001" || len(files[0].statements) == 0 {
		t.Fatalf("unexpected migrations %+v", files)
	}
}

func TestMigrateAppliesPendingFilesInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_index.sql":  {Data: []byte("CREATE INDEX idx ON t (a);")},
		"0001_create.sql": {Data: []byte("-- base table\nCREATE TABLE t (a INT);\nCREATE TABLE u (b INT);")},
		"README.md":       {Data: []byte("ignored")},
	}
	db, script := sqltest.Open(t,
		sqltest.Exec(createMigrationsTable, 0),
		sqltest.Query(`SELECT version FROM schema_migrations`, []string{"version"}),
		sqltest.Begin(),
		sqltest.Exec("CREATE TABLE t (a INT)", 0),
		sqltest.Exec("CREATE TABLE u (b INT)", 0),
		sqltest.Exec(recordMigration, 1),
		sqltest.Commit(),
		sqltest.Begin(),
		sqltest.Exec("CREATE INDEX idx ON t (a)", 0),
		sqltest.Exec(recordMigration, 1),
		sqltest.Commit(),
	)

	if err := migrate(context.Background(), db, fsys, fixedNow); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	script.AssertConsumed(t)

	args := script.Args(5)
	if len(args) != 3 || args[0] != "0001" || args[1] != "0001_create.sql" || args[2] != int64(1700000000) {
		t.Fatalf("unexpected version args %v", args)
	}
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	fsys := fstest.MapFS{"0001_create.sql": {Data: []byte("CREATE TABLE t (a INT);")}}
	db, script := sqltest.Open(t,
		sqltest.Exec(createMigrationsTable, 0),
		sqltest.Query(`SELECT version FROM schema_migrations`, []string{"version"}, []driver.Value{"0001"}),
	)
	if err := migrate(context.Background(), db, fsys, fixedNow); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	script.AssertConsumed(t)
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	fsys := fstest.MapFS{"0001_create.sql": {Data: []byte("CREATE TABLE t (a INT);")}}
	db, script := sqltest.Open(t,
		sqltest.Exec(createMigrationsTable, 0),
		sqltest.Query(`SELECT version FROM schema_migrations`, []string{"version"}),
		sqltest.Begin(),
		sqltest.Exec("CREATE TABLE t (a INT)", 0).Fail(errors.New("syntax error")),
		sqltest.Rollback(),
	)
	err := migrate(context.Background(), db, fsys, fixedNow)
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
	script.AssertConsumed(t)
}

func TestReadMigrationsRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := readMigrations(fsys); err == nil {
		t.Fatal("expected duplicate versions to be rejected")
	}
}

func TestSplitAndVersion(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (id INT);\n-- comment; with semicolon\n ; CREATE TABLE b (id INT);")
	if len(stmts) != 2 {
		t.Fatalf("unexpected statements %v", stmts)
	}
	if v := versionOf("0002_add_index.sql"); v != "0002" {
		t.Fatalf("unexpected version %s", v)
	}
	if v := versionOf("0003.sql"); v != "0003" {
		t.Fatalf("unexpected version %s", v)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected empty DSN to fail, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{MaxOpenConns: 4}.withDefaults()
	if cfg.MaxOpenConns != 4 || cfg.MaxIdleConns != 4 || cfg.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg := (Config{}).withDefaults(); cfg.MaxOpenConns != 20 || cfg.MaxIdleConns != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
