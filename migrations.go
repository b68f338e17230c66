package websub

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// MigrationFiles contains the SQL schema of adapters/relica, one directory
// per driver name ("mysql", "postgres", "sqlite3"). Tables use the default
// "websub_" prefix.
//
// Example with goose:
//
//	goose.SetBaseFS(websub.MigrationFiles)
//	if err := goose.Up(db, "migrations/mysql"); err != nil {
//	    log.Fatal(err)
//	}
//
//go:embed migrations
var MigrationFiles embed.FS

// MigrationStatements returns the schema statements for driver in file
// order, split on ";". It is enough for the hub binary's database.migrate setting and
// for tests; use a migration tool for anything else.
func MigrationStatements(driver string) ([]string, error) {
	dir := path.Join("migrations", driver)
	entries, err := fs.ReadDir(MigrationFiles, dir)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, fmt.Sprintf("no migrations for driver %q", driver), err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var statements []string
	for _, name := range names {
		data, err := fs.ReadFile(MigrationFiles, path.Join(dir, name))
		if err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to read migration "+name, err)
		}
		for _, stmt := range strings.Split(string(data), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				statements = append(statements, stmt)
			}
		}
	}
	return statements, nil
}
