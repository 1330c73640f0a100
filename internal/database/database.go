package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/openslate/openslate/internal/config"
)

// driverName maps the config's logical driver ("postgres"/"sqlite") to
// the name its driver registers itself under via database/sql.
func driverName(cfg config.DatabaseConfig) string {
	if cfg.Driver == "sqlite" {
		return "sqlite"
	}
	return "postgres"
}

// New creates a new database connection for whichever driver cfg.Driver
// names. Both lib/pq (postgres) and modernc.org/sqlite (sqlite) are
// blank-imported above so both are registered regardless of which one a
// given deployment uses.
func New(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName(cfg), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// placeholder rewrites PostgreSQL-style ($1, $2) placeholders to
// SQLite-style (?) when the config names the sqlite driver. Mirrors
// internal/repository's q helper; duplicated rather than imported to
// avoid a database<->repository import cycle.
func placeholder(cfg config.DatabaseConfig, query string) string {
	if cfg.Driver != "sqlite" {
		return query
	}
	re := regexp.MustCompile(`\$\d+`)
	return re.ReplaceAllString(query, "?")
}

// Migrate runs pending .up.sql files from cfg.MigrationsPath against db,
// tracking applied versions in a schema_migrations table. Takes the full
// config (not just a path) so it can rewrite each migration's
// placeholders and its own bookkeeping queries for the target driver.
func Migrate(db *sql.DB, cfg config.DatabaseConfig) error {
	migrationsTable := placeholder(cfg, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if cfg.Driver != "sqlite" {
		migrationsTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`
	}
	_, err := db.Exec(migrationsTable)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	// Get migration files
	files, err := os.ReadDir(cfg.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []string
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".up.sql") {
			migrations = append(migrations, f.Name())
		}
	}
	sort.Strings(migrations)

	// Apply pending migrations
	for _, migration := range migrations {
		version := strings.TrimSuffix(migration, ".up.sql")
		if applied[version] {
			continue
		}

		content, err := os.ReadFile(filepath.Join(cfg.MigrationsPath, migration))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", migration, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(placeholder(cfg, string(content))); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", migration, err)
		}

		if _, err := tx.Exec(placeholder(cfg, "INSERT INTO schema_migrations (version) VALUES ($1)"), version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", migration, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration, err)
		}

		fmt.Printf("Applied migration: %s\n", version)
	}

	return nil
}
