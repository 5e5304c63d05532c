package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	logx "newsroom/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("pending article not found")

// Config configures the sqlite-backed store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store persists pending articles and the published article/category/media
// tables in a single sqlite database.
type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question), log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.settleInterrupted(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// settleInterrupted moves rows stranded in publishing by a crash into
// error status. A publishing row is owned by a live promotion; at open
// there is none, so whatever is left never got settled and needs a manual
// republish decision.
func (s *Store) settleInterrupted(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_articles SET status = ?, error_message = ?, last_attempt_at = ? WHERE status = ?`,
		StatusError, "interrupted while publishing", time.Now().UTC().UnixMilli(), StatusPublishing,
	)
	if err != nil {
		return fmt.Errorf("settle interrupted rows: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Warn("settled publications interrupted by a previous shutdown", logx.Int64("rows", n))
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside a single storage transaction. Any error (or panic)
// rolls the whole transaction back, so "article + categories + media" is
// observed atomically or not at all.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = dbtx.Rollback()
		}
	}()
	if err := fn(&Tx{tx: dbtx, sb: s.sb}); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullMilli(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
