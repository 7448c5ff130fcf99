package db

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"burnbin/pkg/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", withPragmas(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

// withPragmas puts connection settings in the DSN so every pooled
// connection gets them, not just the one that ran the migration.
func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL"
}

func (s *SQLite) checkCircuit() error {
	switch atomic.LoadInt32(&s.circuitState) {
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		max_views INTEGER,
		views INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(query)
	return err
}
func (s *SQLite) Create(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (id, content, created_at, expires_at, max_views, views)
	VALUES (?, ?, ?, ?, ?, 0)
	`
	var expiresAt sql.NullInt64
	if p.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: p.ExpiresAt.UnixMilli(), Valid: true}
	}
	var maxViews sql.NullInt64
	if p.MaxViews != nil {
		maxViews = sql.NullInt64{Int64: int64(*p.MaxViews), Valid: true}
	}
	_, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.Content, p.CreatedAt.UnixMilli(), expiresAt, maxViews,
	)
	s.recordError(err)
	return errors.Wrap(err, "db create")
}
func (s *SQLite) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT id, content, created_at, expires_at, max_views, views FROM pastes WHERE id = ?`
	var (
		p         domain.Paste
		createdAt int64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
	)
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(
		&p.ID, &p.Content, &createdAt, &expiresAt, &maxViews, &p.Views,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		p.ExpiresAt = &t
	}
	if maxViews.Valid {
		n := int(maxViews.Int64)
		p.MaxViews = &n
	}
	return &p, nil
}
func (s *SQLite) IncrViews(ctx context.Context, id string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `UPDATE pastes SET views = views + 1 WHERE id = ?`
	_, err := s.db.ExecContext(queryCtx, q, id)
	s.recordError(err)
	return errors.Wrap(err, "incr views")
}
func (s *SQLite) IncrViewsCapped(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `UPDATE pastes SET views = views + 1 WHERE id = ? AND (max_views IS NULL OR views < max_views)`
	res, err := s.db.ExecContext(queryCtx, q, id)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "incr views capped")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}
func (s *SQLite) Ping(ctx context.Context) error {
	var result int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
func (s *SQLite) Close() error {
	return s.db.Close()
}
