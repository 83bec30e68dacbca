package migrations

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
)

var filenamePattern = regexp.MustCompile(`^([0-9]{5})_([a-z0-9_]+)\.sql$`)

// Lint checks the embedded migrations: goose file naming, Up and Down
// annotations, unique versions, and that every dialect ships the same
// versions under the same names. It returns human-readable issues.
func Lint() ([]string, error) {
	return lintFS(files, []Dialect{Postgres, SQLite})
}

func lintFS(fsys fs.FS, dialects []Dialect) ([]string, error) {
	var issues []string
	sets := map[Dialect]map[string]string{}

	for _, dialect := range dialects {
		dir := string(dialect)
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}

		versions := map[string]string{}
		for _, entry := range entries {
			name := path.Join(dir, entry.Name())
			if entry.IsDir() {
				issues = append(issues, fmt.Sprintf("unexpected subdirectory %s", name))
				continue
			}
			matches := filenamePattern.FindStringSubmatch(entry.Name())
			if matches == nil {
				issues = append(issues, fmt.Sprintf("%s: filename must match <NNNNN>_<slug>.sql", name))
				continue
			}
			version, slug := matches[1], matches[2]
			if prev, ok := versions[version]; ok {
				issues = append(issues, fmt.Sprintf("%s: version %s already used by %s", name, version, prev))
				continue
			}
			versions[version] = slug

			body, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
				if !strings.Contains(string(body), marker) {
					issues = append(issues, fmt.Sprintf("%s: missing %q", name, marker))
				}
			}
		}
		sets[dialect] = versions
	}

	if len(dialects) > 1 {
		reference := dialects[0]
		for _, dialect := range dialects[1:] {
			issues = append(issues, compareSets(reference, sets[reference], dialect, sets[dialect])...)
		}
	}
	sort.Strings(issues)
	return issues, nil
}

func compareSets(refName Dialect, ref map[string]string, name Dialect, other map[string]string) []string {
	var issues []string
	for version, slug := range ref {
		got, ok := other[version]
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("%s: missing version %s (%s) present in %s", name, version, slug, refName))
		case got != slug:
			issues = append(issues, fmt.Sprintf("%s: version %s is %q, %s calls it %q", name, version, got, refName, slug))
		}
	}
	for version, slug := range other {
		if _, ok := ref[version]; !ok {
			issues = append(issues, fmt.Sprintf("%s: version %s (%s) has no %s counterpart", name, version, slug, refName))
		}
	}
	return issues
}
