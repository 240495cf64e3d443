// Package backupstore implements usersync.LocalBackupStore over SQLite,
// grounded on the teacher's storage/sqlite event store: same Config/
// DefaultConfig shape, WAL pragma, and connection-pool tuning, applied to
// versioned resource snapshots instead of an event log.
package backupstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Go SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"

	"github.com/tembleque/usersync"
	syncerrors "github.com/tembleque/usersync/errors"
	"github.com/tembleque/usersync/logging"
)

// Config configures a Store's underlying database connection.
type Config struct {
	DataSourceName string
	EnableWAL      bool
	TableName      string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	Logger *logging.Logger
}

func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "resource_backups"
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		c.DataSourceName += sep + "_journal_mode=WAL"
	}
}

// DefaultConfig returns a production-ready Config for the given database
// file, with WAL mode enabled and a modest connection pool.
func DefaultConfig(dataSourceName string) *Config {
	c := &Config{DataSourceName: dataSourceName, EnableWAL: true}
	c.setDefaults()
	return c
}

// Store is a SQLite-backed usersync.LocalBackupStore: every local backup
// write is appended as a new version row, ordered by insertion.
type Store struct {
	db        *sql.DB
	tableName string
	logger    *logging.Logger
}

// New opens (creating if necessary) the backup database described by cfg.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg.setDefaults()
	if cfg.DataSourceName == "" {
		return nil, fmt.Errorf("data source name is required")
	}

	db, err := sql.Open("sqlite3", cfg.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to sqlite database: %w", err)
	}

	s := &Store{db: db, tableName: cfg.TableName, logger: cfg.Logger}
	if err := s.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup backup schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) setupSchema() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		ref        TEXT PRIMARY KEY,
		resource   TEXT NOT NULL,
		content    BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_%s_resource ON %s (resource, created_at);
	`, s.tableName, s.tableName, s.tableName)
	_, err := s.db.Exec(query)
	return err
}

// Backup implements usersync.LocalBackupStore: it inserts a new version row
// and returns a handle to it. Backups are append-only; nothing is ever
// overwritten or pruned here.
func (s *Store) Backup(ctx context.Context, resource usersync.Resource, content []byte) (usersync.SyncResourceHandle, error) {
	ref := uuid.NewString()
	created := time.Now().UTC()

	query := fmt.Sprintf(`INSERT INTO %s (ref, resource, content, created_at) VALUES (?, ?, ?, ?)`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, ref, string(resource), content, created); err != nil {
		return usersync.SyncResourceHandle{}, syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "local-backup-store", err)
	}
	return usersync.NewLocalBackupHandle(resource, ref, created), nil
}

// ResolveContent implements usersync.LocalBackupStore.
func (s *Store) ResolveContent(ctx context.Context, resource usersync.Resource, ref string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE resource = ? AND ref = ?`, s.tableName)
	row := s.db.QueryRowContext(ctx, query, string(resource), ref)

	var content []byte
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return nil, syncerrors.ErrNotFound
		}
		return nil, syncerrors.NewWithComponent(syncerrors.OpResolveContent, "local-backup-store", err)
	}
	return content, nil
}

// GetAllRefs implements usersync.LocalBackupStore, oldest first.
func (s *Store) GetAllRefs(ctx context.Context, resource usersync.Resource) ([]usersync.SyncResourceHandle, error) {
	query := fmt.Sprintf(`SELECT ref, created_at FROM %s WHERE resource = ? ORDER BY created_at ASC`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query, string(resource))
	if err != nil {
		return nil, syncerrors.NewWithComponent(syncerrors.OpListHandles, "local-backup-store", err)
	}
	defer rows.Close()

	var handles []usersync.SyncResourceHandle
	for rows.Next() {
		var ref string
		var created time.Time
		if err := rows.Scan(&ref, &created); err != nil {
			return nil, syncerrors.NewWithComponent(syncerrors.OpListHandles, "local-backup-store", err)
		}
		handles = append(handles, usersync.NewLocalBackupHandle(resource, ref, created))
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.NewWithComponent(syncerrors.OpListHandles, "local-backup-store", err)
	}
	return handles, nil
}

var _ usersync.LocalBackupStore = (*Store)(nil)
