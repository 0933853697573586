package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("record not found")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	Driver string // sqlite or postgres
	DSN    string
	Table  string
}

type PersistentStore struct {
	db     *sql.DB
	driver string
	table  string
}

func Open(cfg Config) (*PersistentStore, error) {
	if cfg.Table == "" {
		cfg.Table = "posts"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	var db *sql.DB
	var err error
	switch cfg.Driver {
	case "", "sqlite":
		cfg.Driver = "sqlite"
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", cfg.DSN+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	case "postgres":
		db, err = sql.Open("pgx", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	s := &PersistentStore{db: db, driver: cfg.Driver, table: cfg.Table}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	log.Debug().Str("op", "store/Open").Str("driver", cfg.Driver).Str("table", cfg.Table).Msg("Store opened")
	return s, nil
}

func (s *PersistentStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			tags TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL DEFAULT 0,
			creator_id BIGINT,
			author TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			md5 TEXT NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			file_ext TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			rating TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			parent_id BIGINT,
			has_children BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT '',
			down_flag BOOLEAN NOT NULL DEFAULT FALSE,
			state TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			recorded_at BIGINT NOT NULL DEFAULT 0
		)`, s.table))
	return err
}

// rebind turns ? placeholders into $n for postgres.
func (s *PersistentStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}

// NewRunID returns a sortable identifier for one crawl invocation.
func NewRunID() string {
	return ksuid.New().String()
}
