package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// SQLStore is a SQL-backed session store.
// It works with any database/sql driver for PostgreSQL, MySQL or SQLite.
// Expiry is stored as Unix milliseconds so comparisons behave the same on
// every dialect. CreateTable creates the schema:
//
//	CREATE TABLE storefront_sessions (
//	    id         VARCHAR(64) PRIMARY KEY,
//	    data       BLOB NOT NULL,
//	    expires_at BIGINT NOT NULL,
//	    updated_at BIGINT NOT NULL
//	);
//	CREATE INDEX idx_storefront_sessions_expires ON storefront_sessions(expires_at);
type SQLStore struct {
	db              *sql.DB
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	clock           clock.WithTicker
	logger          *slog.Logger
	closed          atomic.Bool
	done            chan struct{}
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite
)

// ParseDialect maps a driver name to a dialect.
func ParseDialect(driver string) (SQLDialect, error) {
	switch driver {
	case "postgres", "pgx", "postgresql":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return 0, fmt.Errorf("session: unknown SQL driver %q", driver)
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	clock           clock.WithTicker
	logger          *slog.Logger
}

// WithSQLTableName sets the table name for session storage.
// Default: "storefront_sessions".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// WithSQLCleanupInterval sets how often expired sessions are cleaned up.
// Default: 5 minutes.
func WithSQLCleanupInterval(d time.Duration) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithSQLClock sets the clock used for expiry and the sweep ticker.
func WithSQLClock(clk clock.WithTicker) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.clock = clk
	}
}

// WithSQLLogger sets the logger used by the sweep loop.
func WithSQLLogger(logger *slog.Logger) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.logger = logger
	}
}

// NewSQLStore creates a new SQL-backed session store. The caller keeps
// ownership of db.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName:       "storefront_sessions",
		dialect:         DialectPostgreSQL,
		cleanupInterval: 5 * time.Minute,
		clock:           clock.RealClock{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	store := &SQLStore{
		db:              db,
		tableName:       cfg.tableName,
		dialect:         cfg.dialect,
		cleanupInterval: cfg.cleanupInterval,
		clock:           cfg.clock,
		logger:          cfg.logger.With("component", "session-sql"),
		done:            make(chan struct{}),
	}

	go store.cleanupLoop(cfg.clock.NewTicker(cfg.cleanupInterval))
	return store
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertQuery() string {
	p1, p2, p3, p4 := s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4)
	if s.dialect == DialectMySQL {
		return fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES (%s, %s, %s, %s)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				expires_at = VALUES(expires_at),
				updated_at = VALUES(updated_at)
		`, s.tableName, p1, p2, p3, p4)
	}
	return fmt.Sprintf(`
		INSERT INTO %s (id, data, expires_at, updated_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, s.tableName, p1, p2, p3, p4)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Save stores session data with an expiration time.
func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), sessionID, data, millis(expiresAt), millis(s.clock.Now()))
	if err != nil {
		return fmt.Errorf("session: save %s: %w", sessionID, err)
	}
	return nil
}

// Load retrieves session data if it exists and hasn't expired.
func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s AND expires_at > %s`,
		s.tableName, s.placeholder(1), s.placeholder(2))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, millis(s.clock.Now())).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", sessionID, err)
	}
	return data, nil
}

// Delete removes a session from the database.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.tableName, s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("session: delete %s: %w", sessionID, err)
	}
	return nil
}

// Touch updates the expiration time for a session.
func (s *SQLStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	query := fmt.Sprintf(`UPDATE %s SET expires_at = %s, updated_at = %s WHERE id = %s`,
		s.tableName, s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := s.db.ExecContext(ctx, query, millis(expiresAt), millis(s.clock.Now()), sessionID); err != nil {
		return fmt.Errorf("session: touch %s: %w", sessionID, err)
	}
	return nil
}

// SaveAll saves multiple sessions using a transaction.
func (s *SQLStore) SaveAll(ctx context.Context, sessions map[string]Data) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if len(sessions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return fmt.Errorf("session: prepare: %w", err)
	}
	defer stmt.Close()

	now := millis(s.clock.Now())
	for id, sd := range sessions {
		if _, err := stmt.ExecContext(ctx, id, sd.Data, millis(sd.ExpiresAt), now); err != nil {
			return fmt.Errorf("session: save %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close stops the sweep loop. It does not close the database, which may be
// shared with other components.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	return nil
}

func (s *SQLStore) cleanupLoop(ticker clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// cleanup removes expired sessions from the database.
func (s *SQLStore) cleanup() {
	if s.closed.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, s.tableName, s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, millis(s.clock.Now()))
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("swept expired sessions", "count", n)
	}
}

// CreateTable creates the session table and its expiry index if they don't
// exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	idType, dataType := "VARCHAR(64)", "BLOB"
	switch s.dialect {
	case DialectPostgreSQL:
		dataType = "BYTEA"
	case DialectSQLite:
		idType = "TEXT"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id %s PRIMARY KEY,
			data %s NOT NULL,
			expires_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)
	`, s.tableName, idType, dataType)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("session: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at)`, s.tableName, s.tableName)
	if s.dialect == DialectMySQL {
		// MySQL has no IF NOT EXISTS for indexes; a duplicate index error is expected on rerun.
		indexQuery = fmt.Sprintf(`CREATE INDEX idx_%s_expires ON %s(expires_at)`, s.tableName, s.tableName)
		s.db.ExecContext(ctx, indexQuery)
		return nil
	}
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("session: create index: %w", err)
	}
	return nil
}
