// Package mariadb is the MySQL/MariaDB store over the legacy ai_image_embeddings table,
// where vectors are kept as serialized TEXT.
package mariadb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/mamage/photo-similarity/internal/config"
	"github.com/mamage/photo-similarity/internal/database"
)

// Driver is the DATABASE_DRIVER value selecting this backend.
const Driver = config.DriverMySQL

func init() {
	database.RegisterBackend(Driver, Open)
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sqlx.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := NormalizeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// NewPoolFromDB wraps an already opened handle.
func NewPoolFromDB(db *sqlx.DB) *Pool {
	return &Pool{db: db}
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

// NormalizeDSN accepts either a native driver DSN (user:pass@tcp(host:3306)/db) or a
// mysql:// URL and returns a driver DSN with parseTime enabled.
func NormalizeDSN(raw string) (string, error) {
	if !strings.HasPrefix(raw, "mysql://") && !strings.HasPrefix(raw, "mariadb://") {
		cfg, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("invalid MariaDB DSN: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid MariaDB URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS photos (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		project_id BIGINT NULL,
		url TEXT NULL,
		KEY idx_photos_project_id (project_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_image_embeddings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		photo_id BIGINT NOT NULL,
		model_name VARCHAR(128) NOT NULL,
		embedding LONGTEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_ai_image_embeddings_model_photo (model_name, photo_id)
	)`,
}

// EnsureSchema creates the tables when they are missing. Existing legacy tables are
// left untouched.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Open connects and returns the store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewRepository(pool), nil
}
