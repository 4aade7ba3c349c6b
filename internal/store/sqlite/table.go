package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"didibot/internal/clock"
	"didibot/internal/marketdata/tfbuilder"
	"didibot/internal/model"
)

// Table is the klines table of one (broker, ticker).
type Table struct {
	db        *sql.DB
	name      string
	step      int64
	finestTF  string
	batchSize int
}

// Name returns the SQL table name.
func (t *Table) Name() string { return t.name }

// FinestTimeFrame is the grain of the stored bars.
func (t *Table) FinestTimeFrame() string { return t.finestTF }

// Append stores bars, replacing any bar with the same open_time.
// Bars are inserted in fixed-size transactions; a failed batch is retried.
func (t *Table) Append(ctx context.Context, ks []model.Kline) error {
	for start := 0; start < len(ks); start += t.batchSize {
		end := start + t.batchSize
		if end > len(ks) {
			end = len(ks)
		}
		var err error
		for attempt := 1; attempt <= appendAttempts; attempt++ {
			if err = t.insertBatch(ctx, ks[start:end]); err == nil {
				break
			}
			log.Printf("[sqlite] %s batch insert attempt %d failed: %v", t.name, attempt, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(appendRetryBackoff * time.Duration(attempt)):
			}
		}
		if err != nil {
			return fmt.Errorf("%w: append to %s: %v", model.ErrStorage, t.name, err)
		}
	}
	return nil
}

func (t *Table) insertBatch(ctx context.Context, ks []model.Kline) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)`, t.name))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, k := range ks {
		if _, err := stmt.ExecContext(ctx, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// OldestOpenTime returns the first stored open_time; ok is false on an empty table.
func (t *Table) OldestOpenTime(ctx context.Context) (int64, bool, error) {
	return t.edge(ctx, "MIN")
}

// NewestOpenTime returns the last stored open_time; ok is false on an empty table.
func (t *Table) NewestOpenTime(ctx context.Context) (int64, bool, error) {
	return t.edge(ctx, "MAX")
}

func (t *Table) edge(ctx context.Context, agg string) (int64, bool, error) {
	var ts sql.NullInt64
	err := t.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s(open_time) FROM %s`, agg, t.name)).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s open_time of %s: %v", model.ErrStorage, agg, t.name, err)
	}
	return ts.Int64, ts.Valid, nil
}

// Raw returns the stored bars with open_time in [since, until], ascending.
func (t *Table) Raw(ctx context.Context, since, until int64) ([]model.Kline, error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT open_time, open, high, low, close, volume
		FROM %s
		WHERE open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC`, t.name), since, until)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", model.ErrStorage, t.name, err)
	}
	defer rows.Close()

	var ks []model.Kline
	for rows.Next() {
		var k model.Kline
		if err := rows.Scan(&k.OpenTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", model.ErrStorage, t.name, err)
		}
		ks = append(ks, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrStorage, t.name, err)
	}
	return ks, nil
}

// GetByTimeRange returns tf bars whose open_time lies in [since, until].
// Missing finest bars are linearly interpolated from their neighbours before
// aggregation, and a bar not yet closed at now is dropped.
func (t *Table) GetByTimeRange(ctx context.Context, since, until int64, tf string, now int64) ([]model.Kline, error) {
	tfs, err := clock.SecondsIn(tf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	if tfs < t.step || tfs%t.step != 0 {
		return nil, fmt.Errorf("%w: time frame %s is not a multiple of the stored %s", model.ErrValue, tf, t.finestTF)
	}
	if since > until {
		since, until = until, since
	}
	from := clock.Align(since, tfs)
	to := clock.Align(until, tfs) + tfs - 1

	raw, err := t.Raw(ctx, from, to)
	if err != nil {
		return nil, err
	}
	filled := tfbuilder.FillGaps(raw, t.step)
	bars := tfbuilder.Resample(filled, tfs)
	return model.DropUnclosed(bars, tfs, now), nil
}
