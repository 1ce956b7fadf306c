package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func cleanDatabase(t *testing.T, ctx context.Context, dbc *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS sync_runs CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	} {
		if _, err := dbc.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("clean database: %v", err)
		}
	}
}

func tableExists(t *testing.T, dbc *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := dbc.QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables WHERE table_name = $1
	)`, table).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return exists
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Errorf("embedded migrations up=%d down=%d", up, down)
	}
}

func TestRunMigrationsUpDown(t *testing.T) {
	dbc := openTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, dbc)

	if err := RunMigrations(dbc); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if !tableExists(t, dbc, "sync_runs") {
		t.Fatal("sync_runs missing after migration")
	}
	v1, dirty, err := GetMigrationVersion(dbc)
	if err != nil || dirty || v1 < 1 {
		t.Fatalf("version = %d dirty = %v err = %v", v1, dirty, err)
	}

	// Second run is a no-op.
	if err := RunMigrations(dbc); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
	if v2, _, _ := GetMigrationVersion(dbc); v2 != v1 {
		t.Errorf("version changed: %d -> %d", v1, v2)
	}

	if err := MigrateDown(dbc); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, dbc, "sync_runs") {
		t.Error("sync_runs should be dropped after rolling back 000001")
	}
	if err := RunMigrations(dbc); err != nil {
		t.Fatalf("RunMigrations() after rollback error = %v", err)
	}
}
