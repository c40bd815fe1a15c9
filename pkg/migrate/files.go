package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

// SourceRoot holds one migration directory per dialect. Both dialects carry
// the same versions so sqlite test databases match production.
const SourceRoot = "pkg/migrate/migrations"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	unsafeRe    = regexp.MustCompile(`[^a-z0-9_]+`)
	dialectDirs = []string{"postgres", "sqlite"}
)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s (%[2]s)
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s (%[2]s)
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty migration named
// <YYYYMMDDHHMMSS>_<name>.sql into every dialect directory under root and
// returns the created paths.
func CreateSQLMigration(root, name string, now time.Time) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	safe := unsafeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return nil, fmt.Errorf("name %q has no usable characters", name)
	}
	file := fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), safe)

	paths := make([]string, 0, len(dialectDirs))
	for _, dialect := range dialectDirs {
		dir := filepath.Join(root, dialect)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", dir, err)
		}
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", path)
		}
		paths = append(paths, path)
	}
	for i, path := range paths {
		body := fmt.Sprintf(migrationTemplate, safe, dialectDirs[i])
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return nil, fmt.Errorf("write migration %q: %w", path, err)
		}
	}
	return paths, nil
}

// ValidateDir checks file names and goose markers of the migrations in dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	_, err := versions(os.DirFS(dir), ".")
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	return nil
}

// ValidateRoot validates every dialect directory under root and requires them
// to hold the same versions.
func ValidateRoot(root string) error {
	return validateTwins(os.DirFS(root), ".")
}

// ValidateEmbedded runs the same checks over the migrations compiled into the
// binary.
func ValidateEmbedded() error {
	return validateTwins(embedded, "migrations")
}

func validateTwins(fsys fs.FS, base string) error {
	var reference []string
	for _, dialect := range dialectDirs {
		found, err := versions(fsys, filepath.ToSlash(filepath.Join(base, dialect)))
		if err != nil {
			return fmt.Errorf("%s: %w", dialect, err)
		}
		if reference == nil {
			reference = found
			continue
		}
		if !slices.Equal(reference, found) {
			return fmt.Errorf("%s migrations %v differ from %s migrations %v", dialect, found, dialectDirs[0], reference)
		}
	}
	return nil
}

// versions returns the sorted migration versions in dir.
func versions(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	seen := map[string]string{}
	out := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		body, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, err
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return nil, fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
		out = append(out, m[1])
	}
	slices.Sort(out)
	return out, nil
}
