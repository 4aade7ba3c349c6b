// Package operations persists Operations, their Monitors (position and last
// check) and trading logs through sqlx, on SQLite or PostgreSQL.
package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"didibot/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	mode       TEXT NOT NULL,
	broker     TEXT NOT NULL,
	setup      TEXT NOT NULL,
	wallet     TEXT NOT NULL,
	is_running BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS monitors (
	id                   TEXT PRIMARY KEY,
	operation_id         TEXT NOT NULL REFERENCES operations(id) ON DELETE CASCADE,
	symbol               TEXT NOT NULL,
	base                 TEXT NOT NULL,
	quote                TEXT NOT NULL,
	is_master            BOOLEAN NOT NULL,
	is_active            BOOLEAN NOT NULL,
	side                 TEXT NOT NULL,
	size                 DOUBLE PRECISION NOT NULL,
	enter_price          DOUBLE PRECISION NOT NULL,
	enter_timestamp      BIGINT NOT NULL,
	exit_reference_price DOUBLE PRECISION NOT NULL,
	by_score             DOUBLE PRECISION NOT NULL,
	by_classifier_at     BIGINT NOT NULL,
	by_stoploss_at       BIGINT NOT NULL,
	UNIQUE (operation_id, symbol)
);

CREATE TABLE IF NOT EXISTS trading_log (
	id         TEXT PRIMARY KEY,
	monitor_id TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	ts         BIGINT NOT NULL,
	signal     TEXT NOT NULL,
	fulfilled  BOOLEAN NOT NULL,
	payload    TEXT NOT NULL
);
`

// Store is the relational operation store.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn ("sqlite3://path" or "postgres://...") and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := splitDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", model.ErrStorage, driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: schema: %v", model.ErrStorage, err)
		}
	}
	log.Printf("[operations] opened %s store", driver)
	return &Store{db: db}, nil
}

func splitDSN(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite3://"):
		path := strings.TrimPrefix(dsn, "sqlite3://")
		return "sqlite3", path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	}
	return "", "", fmt.Errorf("%w: unsupported operations DSN %q", model.ErrValue, dsn)
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type operationRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Mode      string `db:"mode"`
	Broker    string `db:"broker"`
	Setup     string `db:"setup"`
	Wallet    string `db:"wallet"`
	IsRunning bool   `db:"is_running"`
	UpdatedAt int64  `db:"updated_at"`
}

type monitorRow struct {
	ID                 string  `db:"id"`
	OperationID        string  `db:"operation_id"`
	Symbol             string  `db:"symbol"`
	Base               string  `db:"base"`
	Quote              string  `db:"quote"`
	IsMaster           bool    `db:"is_master"`
	IsActive           bool    `db:"is_active"`
	Side               string  `db:"side"`
	Size               float64 `db:"size"`
	EnterPrice         float64 `db:"enter_price"`
	EnterTimestamp     int64   `db:"enter_timestamp"`
	ExitReferencePrice float64 `db:"exit_reference_price"`
	ByScore            float64 `db:"by_score"`
	ByClassifierAt     int64   `db:"by_classifier_at"`
	ByStoplossAt       int64   `db:"by_stoploss_at"`
}

func toMonitorRow(m *model.Monitor) monitorRow {
	return monitorRow{
		ID:                 m.ID,
		OperationID:        m.OperationID,
		Symbol:             m.Ticker.Symbol,
		Base:               m.Ticker.Base,
		Quote:              m.Ticker.Quote,
		IsMaster:           m.IsMaster,
		IsActive:           m.IsActive,
		Side:               string(m.Position.Side),
		Size:               m.Position.Size,
		EnterPrice:         m.Position.EnterPrice,
		EnterTimestamp:     m.Position.EnterTimestamp,
		ExitReferencePrice: m.Position.ExitReferencePrice,
		ByScore:            m.Position.ByScore,
		ByClassifierAt:     m.LastCheck.ByClassifierAt,
		ByStoplossAt:       m.LastCheck.ByStoplossAt,
	}
}

func (r monitorRow) monitor() *model.Monitor {
	return &model.Monitor{
		ID:          r.ID,
		OperationID: r.OperationID,
		Ticker:      model.Ticker{Symbol: r.Symbol, Base: r.Base, Quote: r.Quote},
		IsMaster:    r.IsMaster,
		IsActive:    r.IsActive,
		Position: model.Position{
			Side:               model.Side(r.Side),
			Size:               r.Size,
			EnterPrice:         r.EnterPrice,
			EnterTimestamp:     r.EnterTimestamp,
			ExitReferencePrice: r.ExitReferencePrice,
			ByScore:            r.ByScore,
		},
		LastCheck: model.LastCheck{ByClassifierAt: r.ByClassifierAt, ByStoplossAt: r.ByStoplossAt},
	}
}

// SaveOperation inserts or updates the operation and all its monitors in one
// transaction. Missing ids are generated.
func (s *Store) SaveOperation(ctx context.Context, op *model.Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	setup, err := json.Marshal(op.Setup)
	if err != nil {
		return fmt.Errorf("marshal setup: %w", err)
	}
	wallet, err := json.Marshal(op.Wallet)
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrStorage, err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO operations (id, name, mode, broker, setup, wallet, is_running, updated_at)
		VALUES (:id, :name, :mode, :broker, :setup, :wallet, :is_running, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, mode = excluded.mode, broker = excluded.broker,
			setup = excluded.setup, wallet = excluded.wallet,
			is_running = excluded.is_running, updated_at = excluded.updated_at`,
		operationRow{
			ID:        op.ID,
			Name:      op.Name,
			Mode:      string(op.Mode),
			Broker:    op.Broker,
			Setup:     string(setup),
			Wallet:    string(wallet),
			IsRunning: op.IsRunning,
			UpdatedAt: time.Now().Unix(),
		})
	if err != nil {
		return fmt.Errorf("%w: save operation %s: %v", model.ErrStorage, op.Name, err)
	}

	for _, m := range op.Monitors {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.OperationID = op.ID
		if err := upsertMonitor(ctx, tx, m); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStorage, err)
	}
	return nil
}

func upsertMonitor(ctx context.Context, ext sqlx.ExtContext, m *model.Monitor) error {
	_, err := sqlx.NamedExecContext(ctx, ext, `
		INSERT INTO monitors (id, operation_id, symbol, base, quote, is_master, is_active,
			side, size, enter_price, enter_timestamp, exit_reference_price, by_score,
			by_classifier_at, by_stoploss_at)
		VALUES (:id, :operation_id, :symbol, :base, :quote, :is_master, :is_active,
			:side, :size, :enter_price, :enter_timestamp, :exit_reference_price, :by_score,
			:by_classifier_at, :by_stoploss_at)
		ON CONFLICT (id) DO UPDATE SET
			is_master = excluded.is_master, is_active = excluded.is_active, side = excluded.side, size = excluded.size,
			enter_price = excluded.enter_price, enter_timestamp = excluded.enter_timestamp,
			exit_reference_price = excluded.exit_reference_price, by_score = excluded.by_score,
			by_classifier_at = excluded.by_classifier_at, by_stoploss_at = excluded.by_stoploss_at`,
		toMonitorRow(m))
	if err != nil {
		return fmt.Errorf("%w: save monitor %s: %v", model.ErrStorage, m.Ticker.Symbol, err)
	}
	return nil
}

// SaveMonitor persists the position and last check of one monitor.
func (s *Store) SaveMonitor(ctx context.Context, m *model.Monitor) error {
	if m.ID == "" || m.OperationID == "" {
		return fmt.Errorf("%w: monitor %s has no id", model.ErrValue, m.Ticker.Symbol)
	}
	return upsertMonitor(ctx, s.db, m)
}

// SaveWallet persists the wallet of a backtesting or test operation.
func (s *Store) SaveWallet(ctx context.Context, operationID string, wallet map[string]float64) error {
	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`UPDATE operations SET wallet = ?, updated_at = ? WHERE id = ?`),
		string(data), time.Now().Unix(), operationID)
	if err != nil {
		return fmt.Errorf("%w: save wallet: %v", model.ErrStorage, err)
	}
	return nil
}

// SetRunning flags the operation as running or stopped.
func (s *Store) SetRunning(ctx context.Context, operationID string, running bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE operations SET is_running = ?, updated_at = ? WHERE id = ?`),
		running, time.Now().Unix(), operationID)
	if err != nil {
		return fmt.Errorf("%w: set running: %v", model.ErrStorage, err)
	}
	return nil
}

// LoadOperation reads an operation and its monitors by name.
func (s *Store) LoadOperation(ctx context.Context, name string) (*model.Operation, error) {
	var row operationRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM operations WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: operation %q", model.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load operation %q: %v", model.ErrStorage, name, err)
	}

	op := &model.Operation{
		ID:        row.ID,
		Name:      row.Name,
		Mode:      model.Mode(row.Mode),
		Broker:    row.Broker,
		IsRunning: row.IsRunning,
	}
	if err := json.Unmarshal([]byte(row.Setup), &op.Setup); err != nil {
		return nil, fmt.Errorf("decode setup of %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(row.Wallet), &op.Wallet); err != nil {
		return nil, fmt.Errorf("decode wallet of %q: %w", name, err)
	}

	var monitors []monitorRow
	err = s.db.SelectContext(ctx, &monitors,
		s.db.Rebind(`SELECT * FROM monitors WHERE operation_id = ? ORDER BY is_master DESC, symbol ASC`), op.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load monitors of %q: %v", model.ErrStorage, name, err)
	}
	for _, m := range monitors {
		op.Monitors = append(op.Monitors, m.monitor())
	}
	return op, nil
}

// ListOperations returns every operation name.
func (s *Store) ListOperations(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM operations ORDER BY name`); err != nil {
		return nil, fmt.Errorf("%w: list operations: %v", model.ErrStorage, err)
	}
	return names, nil
}

// DeleteOperation removes an operation with its monitors and trading logs.
func (s *Store) DeleteOperation(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrStorage, err)
	}
	defer tx.Rollback()

	var id string
	if err := tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM operations WHERE name = ?`), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: operation %q", model.ErrNotFound, name)
		}
		return fmt.Errorf("%w: delete %q: %v", model.ErrStorage, name, err)
	}
	stmts := []string{
		`DELETE FROM trading_log WHERE monitor_id IN (SELECT id FROM monitors WHERE operation_id = ?)`,
		`DELETE FROM monitors WHERE operation_id = ?`,
		`DELETE FROM operations WHERE id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), id); err != nil {
			return fmt.Errorf("%w: delete %q: %v", model.ErrStorage, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStorage, err)
	}
	return nil
}
