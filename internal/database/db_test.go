package database

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrationsOrderAndFiltering(t *testing.T) {
	fsys := fstest.MapFS{
		"002_upload_records.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE b ()")},
		"001_billing_schema.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE a ()")},
		"001_billing_schema.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE a")},
		"notes.md":                    &fstest.MapFile{Data: []byte("not sql")},
	}

	pending, err := pendingMigrations(fsys, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"001_billing_schema.up.sql", "002_upload_records.up.sql"}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for i, name := range want {
		if pending[i] != name {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i], name)
		}
	}
}

func TestPendingMigrationsSkipsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"001_billing_schema.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE a ()")},
		"002_upload_records.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE b ()")},
	}
	applied := map[string]bool{"001_billing_schema.up.sql": true}

	pending, err := pendingMigrations(fsys, applied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0] != "002_upload_records.up.sql" {
		t.Errorf("pending = %v, want only the unapplied migration", pending)
	}
}

func TestPendingMigrationsAllApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"001_billing_schema.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE a ()")},
	}
	applied := map[string]bool{"001_billing_schema.up.sql": true}

	pending, err := pendingMigrations(fsys, applied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
}
