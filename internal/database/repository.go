package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository provides common database operations
type Repository struct {
	conn *Connection
}

// NewRepository creates a new repository instance
func NewRepository(conn *Connection) *Repository {
	return &Repository{
		conn: conn,
	}
}

// Connection returns the underlying database connection
func (r *Repository) Connection() *Connection {
	return r.conn
}

// WithTransaction executes a function within a database transaction
func (r *Repository) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RetryableOperation executes an operation with exponential backoff retry logic
func (r *Repository) RetryableOperation(ctx context.Context, maxRetries int, operation func() error) error {
	return retry(ctx, maxRetries, 100*time.Millisecond, operation)
}

func retry(ctx context.Context, maxRetries int, backoff time.Duration, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > 10*time.Second {
					backoff = 10 * time.Second
				}
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !IsRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// HealthCheck performs a basic health check on the database
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := r.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("database query returned unexpected result: %d", result)
	}

	return nil
}

// GetConnectionStats returns database connection pool statistics
func (r *Repository) GetConnectionStats() sql.DBStats {
	return r.conn.Stats()
}

// SiteRepository maps target internal names to site ids.
type SiteRepository struct {
	*Repository
}

// NewSiteRepository creates a new sites repository
func NewSiteRepository(conn *Connection) *SiteRepository {
	return &SiteRepository{Repository: NewRepository(conn)}
}

// EnsureSite returns the id of internalName, creating the row if needed.
func (r *SiteRepository) EnsureSite(ctx context.Context, internalName string) (int64, error) {
	// the no-op update makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO sites (internal_name)
		VALUES ($1)
		ON CONFLICT (internal_name) DO UPDATE SET internal_name = EXCLUDED.internal_name
		RETURNING site_id`

	var id int64
	if err := r.conn.QueryRowContext(ctx, query, internalName).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to ensure site %s: %w", internalName, err)
	}
	return id, nil
}

// FindSite looks up the id of internalName. It returns sql.ErrNoRows when the
// site does not exist.
func (r *SiteRepository) FindSite(ctx context.Context, internalName string) (int64, error) {
	var id int64
	err := r.conn.QueryRowContext(ctx, "SELECT site_id FROM sites WHERE internal_name = $1", internalName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to find site %s: %w", internalName, err)
	}
	return id, nil
}

// ListSites returns all known internal names keyed to their ids.
func (r *SiteRepository) ListSites(ctx context.Context) (map[string]int64, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT internal_name, site_id FROM sites ORDER BY internal_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	sites := make(map[string]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("failed to scan site row: %w", err)
		}
		sites[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site rows: %w", err)
	}
	return sites, nil
}
