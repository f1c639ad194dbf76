// Package migrations holds the versioned schema files for every store
// backend and the loader shared by cmd/migrate and the SQL store.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Dialect directories inside FS.
const (
	DialectBigQuery = "bigquery"
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

//go:embed bigquery/*.sql sqlite/*.sql postgres/*.sql
var FS embed.FS

// Pattern matches migration files: 0001_name.sql
var Pattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// Label is the "0001_name" form used in logs.
func (m Migration) Label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// Render replaces {{KEY}} placeholders with vars.
func (m Migration) Render(vars map[string]string) string {
	sql := m.SQL
	for k, v := range vars {
		sql = strings.ReplaceAll(sql, "{{"+k+"}}", v)
	}
	return sql
}

// ParseFilename extracts version and name from a migration filename.
func ParseFilename(filename string) (int, string, bool) {
	matches := Pattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// Load reads all migrations of dialect from the embedded FS.
func Load(dialect string) ([]Migration, error) {
	return LoadFS(FS, dialect)
}

// LoadFS reads all migration files in dir of fsys, sorted by version. Files
// that do not match Pattern are skipped. The checksum covers the raw content,
// before placeholders are rendered.
func LoadFS(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("LoadFS: reading %s: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("LoadFS: duplicate version %04d in %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("LoadFS: reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Pending returns the migrations whose version is not in applied.
func Pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}
