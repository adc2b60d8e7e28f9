package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"brain-alpha-lab/internal/storage/postgres"
)

// postgresDir is the embedded directory holding the SQL files.
const postgresDir = "postgres"

// RunPostgresMigrations applies every embedded SQL file in apply
// order. The statements are idempotent (CREATE ... IF NOT EXISTS), so
// re-running against an existing database is safe; every binary runs
// this on startup before touching the store.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := migrationFiles(PostgresFS, postgresDir)
	if err != nil {
		return err
	}
	for _, file := range files {
		sql, err := fs.ReadFile(PostgresFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(sql)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// migrationFiles lists the .sql files under dir in apply order. Glob
// results come back sorted, which is exactly the 00N_ prefix ordering.
// An empty directory is an error: it means the embed went wrong.
func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	files, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations in %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no migrations embedded under %s", dir)
	}
	return files, nil
}
