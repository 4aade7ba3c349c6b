package operations

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"didibot/internal/model"
)

type logRow struct {
	ID        string `db:"id"`
	MonitorID string `db:"monitor_id"`
	TS        int64  `db:"ts"`
	Signal    string `db:"signal"`
	Fulfilled bool   `db:"fulfilled"`
	Payload   string `db:"payload"`
}

// AppendTradingLog stores an executed order for the monitor.
func (s *Store) AppendTradingLog(ctx context.Context, monitorID string, o model.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO trading_log (id, monitor_id, ts, signal, fulfilled, payload)
		VALUES (:id, :monitor_id, :ts, :signal, :fulfilled, :payload)`,
		logRow{
			ID:        o.ID,
			MonitorID: monitorID,
			TS:        o.Timestamp,
			Signal:    string(o.Signal),
			Fulfilled: o.Fulfilled,
			Payload:   string(payload),
		})
	if err != nil {
		return fmt.Errorf("%w: append trading log: %v", model.ErrStorage, err)
	}
	return nil
}

// TradingLog returns the last limit orders of the monitor, oldest first.
func (s *Store) TradingLog(ctx context.Context, monitorID string, limit int) ([]model.Order, error) {
	var rows []logRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT * FROM (
			SELECT * FROM trading_log WHERE monitor_id = ? ORDER BY ts DESC, id DESC LIMIT ?
		) recent ORDER BY ts ASC`), monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: read trading log: %v", model.ErrStorage, err)
	}
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		var o model.Order
		if err := json.Unmarshal([]byte(r.Payload), &o); err != nil {
			return nil, fmt.Errorf("decode trading log %s: %w", r.ID, err)
		}
		out = append(out, o)
	}
	return out, nil
}
