// Package mariadb implements the identity store on MariaDB/MySQL with JSON-encoded embeddings.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	// Timestamps and attendance days are scanned into time.Time.
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id               CHAR(36) NOT NULL PRIMARY KEY,
		seq              BIGINT NOT NULL AUTO_INCREMENT UNIQUE,
		name             VARCHAR(255) NOT NULL,
		name_key         VARCHAR(255) NOT NULL UNIQUE,
		phone            VARCHAR(64) NOT NULL DEFAULT '',
		loyalty_points   INT NOT NULL DEFAULT 0,
		attendance_count INT NOT NULL DEFAULT 0,
		created_at       DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at       DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS identity_embeddings (
		id          BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		identity_id CHAR(36) NOT NULL,
		embedding   LONGTEXT NOT NULL,
		created_at  DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_identity_embeddings_identity (identity_id, id),
		CONSTRAINT fk_embeddings_identity FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance (
		identity_id CHAR(36) NOT NULL,
		day         DATE NOT NULL,
		created_at  DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (identity_id, day),
		CONSTRAINT fk_attendance_identity FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables if they are missing.
func (p *Pool) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Open connects, creates the schema and returns the identity repository.
func Open(ctx context.Context, dsn string) (*IdentityRepository, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return NewIdentityRepository(pool), nil
}
