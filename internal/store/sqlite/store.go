// Package sqlite persists klines in SQLite, one table per (broker, ticker)
// holding only the finest time frame. Coarser frames are synthesized on read.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"didibot/internal/clock"
	"didibot/internal/model"
)

const (
	defaultBatchSize   = 500
	appendAttempts     = 3
	appendRetryBackoff = 200 * time.Millisecond
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Config configures the klines store.
type Config struct {
	DBPath    string // path to SQLite database file, e.g. "data/klines.db"
	BatchSize int
}

// Store owns the database handle shared by every klines table.
type Store struct {
	db        *sql.DB
	batchSize int

	mu     sync.Mutex
	tables map[string]*Table
}

// New opens the database in WAL mode.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite open: %v", model.ErrStorage, err)
	}

	// Single writer per table; one connection keeps WAL writes serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite ping: %v", model.ErrStorage, err)
	}

	bs := cfg.BatchSize
	if bs <= 0 {
		bs = defaultBatchSize
	}
	log.Printf("[sqlite] opened klines database at %s", cfg.DBPath)
	return &Store{db: db, batchSize: bs, tables: make(map[string]*Table)}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// TableName is the klines table of (broker, symbol).
func TableName(broker, symbol string) string {
	clean := func(v string) string { return unsafeChars.ReplaceAllString(strings.ToLower(v), "_") }
	return "klines_" + clean(broker) + "_" + clean(symbol)
}

// Table returns the klines table of (broker, ticker), creating it if needed.
// finestTF is the broker's finest time frame, the grain of stored bars.
func (s *Store) Table(ctx context.Context, broker string, ticker model.Ticker, finestTF string) (*Table, error) {
	step, err := clock.SecondsIn(finestTF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	name := TableName(broker, ticker.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			open_time INTEGER PRIMARY KEY,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL
		)`, name))
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", model.ErrStorage, name, err)
	}
	t := &Table{db: s.db, name: name, step: step, finestTF: finestTF, batchSize: s.batchSize}
	s.tables[name] = t
	return t, nil
}
