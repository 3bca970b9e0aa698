package database

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Errorf("migration %d (%s) is missing SQL", m.Version, m.Name)
		}
	}
	if migrations[2].Name != "create_interval_buckets" {
		t.Errorf("unexpected name %q", migrations[2].Name)
	}
}

func TestLoadMigrationsFromFSErrors(t *testing.T) {
	tests := []struct {
		name string
		fs   fstest.MapFS
	}{
		{
			name: "missing down migration",
			fs: fstest.MapFS{
				"m/001_init.up.sql": {Data: []byte("SELECT 1;")},
			},
		},
		{
			name: "bad version",
			fs: fstest.MapFS{
				"m/abc_init.up.sql":   {Data: []byte("SELECT 1;")},
				"m/abc_init.down.sql": {Data: []byte("SELECT 1;")},
			},
		},
		{
			name: "duplicate version",
			fs: fstest.MapFS{
				"m/001_a.up.sql":   {Data: []byte("SELECT 1;")},
				"m/001_a.down.sql": {Data: []byte("SELECT 1;")},
				"m/1_b.up.sql":     {Data: []byte("SELECT 1;")},
				"m/1_b.down.sql":   {Data: []byte("SELECT 1;")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMigrationsFromFS(tt.fs, "m"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		wantErr bool
	}{
		{file: "003_create_interval_buckets.up.sql", version: 3, name: "create_interval_buckets"},
		{file: "10_x.up.sql", version: 10, name: "x"},
		{file: "init.up.sql", wantErr: true},
		{file: "000_zero.up.sql", wantErr: true},
		{file: "004_.up.sql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, err := parseMigrationFile(tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("got (%d, %q), want (%d, %q)", version, name, tt.version, tt.name)
			}
		})
	}
}

func TestLoadMigrationsFromFSOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.up.sql":   {Data: []byte("SELECT 10;")},
		"m/010_later.down.sql": {Data: []byte("SELECT -10;")},
		"m/002_first.up.sql":   {Data: []byte("SELECT 2;")},
		"m/002_first.down.sql": {Data: []byte("SELECT -2;")},
		"m/README.md":          {Data: []byte("ignored")},
	}
	migrations, err := LoadMigrationsFromFS(fsys, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 2 || migrations[0].Version != 2 || migrations[1].Name != "later" {
		t.Fatalf("unexpected migrations %+v", migrations)
	}
	if migrations[1].DownSQL != "SELECT -10;" {
		t.Errorf("down SQL = %q", migrations[1].DownSQL)
	}
}
