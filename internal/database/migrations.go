package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Migrations holds the schema migrations shipped with the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// ErrNothingToRollBack is returned by Down when no migration is applied.
var ErrNothingToRollBack = errors.New("no applied migration to roll back")

// Migration is one numbered schema change with its inverse.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// MigrationManager applies migrations and records them in schema_migrations.
type MigrationManager struct {
	*Repository
	logger *zap.Logger
}

func NewMigrationManager(conn *Connection, logger *zap.Logger) *MigrationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationManager{Repository: NewRepository(conn), logger: logger}
}

// LoadMigrations returns the embedded migrations sorted by version.
func LoadMigrations() ([]*Migration, error) {
	return LoadMigrationsFromFS(Migrations, "migrations")
}

// LoadMigrationsFromFS reads NNN_name.up.sql files and their .down.sql pairs from dir.
func LoadMigrationsFromFS(fsys fs.FS, dir string) ([]*Migration, error) {
	ups, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string, len(ups))
	migrations := make([]*Migration, 0, len(ups))
	for _, up := range ups {
		version, name, err := parseMigrationFile(path.Base(up))
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, other, name)
		}
		seen[version] = name

		upSQL, err := fs.ReadFile(fsys, up)
		if err != nil {
			return nil, err
		}
		downSQL, err := fs.ReadFile(fsys, strings.TrimSuffix(up, ".up.sql")+".down.sql")
		if err != nil {
			return nil, fmt.Errorf("migration %03d_%s has no down file: %w", version, name, err)
		}
		migrations = append(migrations, &Migration{Version: version, Name: name, UpSQL: string(upSQL), DownSQL: string(downSQL)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func parseMigrationFile(file string) (int, string, error) {
	prefix, name, ok := strings.Cut(strings.TrimSuffix(file, ".up.sql"), "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("migration %q: want NNN_name.up.sql", file)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration %q: bad version %q", file, prefix)
	}
	return version, name, nil
}

func (m *MigrationManager) applied(ctx context.Context) (map[int]time.Time, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := m.conn.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	rows, err := m.conn.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Up applies every pending migration in version order, each in its own transaction.
func (m *MigrationManager) Up(ctx context.Context, migrations []*Migration) error {
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for _, mig := range migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		m.logger.Info("applied migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))
	}
	return nil
}

// Down reverts the highest applied migration.
func (m *MigrationManager) Down(ctx context.Context, migrations []*Migration) error {
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	var last *Migration
	for _, mig := range migrations {
		if _, ok := done[mig.Version]; ok {
			last = mig
		}
	}
	if last == nil {
		return ErrNothingToRollBack
	}

	err = m.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, last.DownSQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("rollback %03d_%s: %w", last.Version, last.Name, err)
	}
	m.logger.Info("rolled back migration", zap.Int("version", last.Version), zap.String("name", last.Name))
	return nil
}

func (m *MigrationManager) Status(ctx context.Context, migrations []*Migration) ([]MigrationStatus, error) {
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]MigrationStatus, len(migrations))
	for i, mig := range migrations {
		at, ok := done[mig.Version]
		statuses[i] = MigrationStatus{Version: mig.Version, Name: mig.Name, Applied: ok, AppliedAt: at}
	}
	return statuses, nil
}
