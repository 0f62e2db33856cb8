package store

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/waypoint/pkg/schema"
)

// Schema scripts are named NNN_description.sql and applied in version order.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
	script  string
}

// loadMigrations reads the embedded scripts sorted by version.
func loadMigrations() ([]migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		base := strings.TrimSuffix(e.Name(), ".sql")
		num, name, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "migration %q is not named NNN_description.sql", e.Name())
		}
		raw, err := migrationFiles.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: name, script: string(raw)})
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "duplicate migration version %d", out[i].version)
		}
	}
	return out, nil
}

// runMigrations applies every script newer than the recorded version, one
// transaction per script, and returns the versions it applied.
func runMigrations(ctx context.Context, db *sql.DB) ([]int, error) {
	all, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS waypoint_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return nil, migrationErr("create migrations table", err)
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, m := range all {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.version)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return migrationErr("begin migration "+m.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(m.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return migrationErr("migration "+strconv.Itoa(m.version)+" ("+m.name+")", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO waypoint_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return migrationErr("record migration "+m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return migrationErr("commit migration "+m.name, err)
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM waypoint_migrations`).Scan(&v); err != nil {
		return 0, migrationErr("read schema version", err)
	}
	return v, nil
}

func migrationErr(what string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", what, err.Error()).WithCause(err)
}

// splitStatements drops "--" comment lines, then splits the rest on ";".
// Scripts must not put semicolons inside string literals.
func splitStatements(script string) []string {
	var body strings.Builder
	sc := bufio.NewScanner(strings.NewReader(script))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var stmts []string
	for _, part := range strings.Split(body.String(), ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
