package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0012_add_trends.sql", true, 12, "add_trends"},
		{"001_invalid.sql", false, 0, ""},        // wrong number format
		{"0001_test", false, 0, ""},              // missing .sql
		{"0001.sql", false, 0, ""},               // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("ParseFilename(%q) ok = %v, want %v", tt.filename, ok, tt.valid)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("got (%d, %q), want (%d, %q)", version, name, tt.version, tt.name)
			}
		})
	}
}

func TestLoadFS_SortsAndChecksums(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_second.sql": {Data: []byte("CREATE TABLE b (id INT);")},
		"sql/0001_first.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"sql/README.md":       {Data: []byte("not a migration")},
	}

	got, err := LoadFS(fsys, "sql")
	if err != nil {
		t.Fatalf("LoadFS failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Label() != "0001_first" || got[1].Label() != "0002_second" {
		t.Errorf("unexpected order: %s, %s", got[0].Label(), got[1].Label())
	}
	if got[0].Checksum == got[1].Checksum || len(got[0].Checksum) != 64 {
		t.Errorf("unexpected checksums %q %q", got[0].Checksum, got[1].Checksum)
	}

	again, _ := LoadFS(fsys, "sql")
	if again[0].Checksum != got[0].Checksum {
		t.Error("same content should produce the same checksum")
	}
}

func TestLoadFS_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0001_a.sql": {Data: []byte("SELECT 1;")},
		"sql/0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := LoadFS(fsys, "sql"); err == nil {
		t.Error("expected duplicate version error")
	}
}

func TestRender(t *testing.T) {
	m := Migration{SQL: "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.trends` (id STRING);"}
	got := m.Render(map[string]string{"PROJECT_ID": "proj", "DATASET_ID": "finance"})
	if got != "CREATE TABLE `proj.finance.trends` (id STRING);" {
		t.Errorf("Render = %s", got)
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := Pending(all, map[int]bool{1: true, 3: true})
	if len(got) != 1 || got[0].Version != 2 {
		t.Errorf("Pending = %+v", got)
	}
}

func TestEmbeddedDialects(t *testing.T) {
	for _, dialect := range []string{DialectBigQuery, DialectSQLite, DialectPostgres} {
		t.Run(dialect, func(t *testing.T) {
			ms, err := Load(dialect)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(ms) < 2 {
				t.Fatalf("expected at least 2 migrations, got %d", len(ms))
			}
			if !strings.Contains(ms[len(ms)-1].SQL, "analysis_runs") {
				t.Error("last migration should create analysis_runs")
			}
		})
	}
}
