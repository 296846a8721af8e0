package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const versionLayout = "20060102150405"

var (
	upTemplate = template.Must(template.New("up").Parse(`-- {{.Name}}
-- Created: {{.Created}}

BEGIN;

COMMIT;
`))
	downTemplate = template.Must(template.New("down").Parse(`-- {{.Name}} (rollback)

BEGIN;

COMMIT;
`))

	nonWord       = regexp.MustCompile(`[^a-z0-9]+`)
	migrationFile = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.up\.sql$`)
)

// File is one up/down pair of a migrations directory
type File struct {
	Version  uint
	Name     string
	Created  string
	UpPath   string
	DownPath string
}

// Create writes an empty up/down pair versioned by the given time
func Create(dir, name string, now time.Time) (*File, error) {
	slug := Slug(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	stamp := now.UTC().Format(versionLayout)
	version, _ := strconv.ParseUint(stamp, 10, 64)
	base := filepath.Join(dir, stamp+"_"+slug)
	f := &File{
		Version:  uint(version),
		Name:     slug,
		Created:  now.UTC().Format(time.RFC3339),
		UpPath:   base + ".up.sql",
		DownPath: base + ".down.sql",
	}

	if err := render(f.UpPath, upTemplate, f); err != nil {
		return nil, err
	}
	if err := render(f.DownPath, downTemplate, f); err != nil {
		_ = os.Remove(f.UpPath)
		return nil, err
	}
	return f, nil
}

// Slug lowercases a name and collapses every non-alphanumeric run to one underscore
func Slug(name string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// ListMigrations returns the up files of dir ordered by version.
// A missing directory yields no files.
func ListMigrations(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []File
	for _, entry := range entries {
		match := migrationFile.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, _ := strconv.ParseUint(match[1], 10, 64)
		base := filepath.Join(dir, match[1]+"_"+match[2])
		files = append(files, File{
			Version:  uint(version),
			Name:     match[2],
			UpPath:   base + ".up.sql",
			DownPath: base + ".down.sql",
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func render(path string, tmpl *template.Template, f *File) error {
	// O_EXCL: never overwrite an existing migration
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer out.Close()

	if err := tmpl.Execute(out, f); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return nil
}
