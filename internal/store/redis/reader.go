package redis

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"didibot/internal/model"
)

// Results returns the last n results of a monitor, oldest first.
func (s *Series) Results(ctx context.Context, operation, symbol string, n int) ([]model.AnalysisResult, error) {
	var out []model.AnalysisResult
	err := s.readLast(ctx, KindResults, operation, symbol, n, func(data []byte) error {
		var r model.AnalysisResult
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// Orders returns the last n orders of a monitor, oldest first.
func (s *Series) Orders(ctx context.Context, operation, symbol string, n int) ([]model.Order, error) {
	var out []model.Order
	err := s.readLast(ctx, KindOrders, operation, symbol, n, func(data []byte) error {
		var o model.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

func (s *Series) readLast(ctx context.Context, kind, operation, symbol string, n int, decode func([]byte) error) error {
	if n <= 0 {
		return nil
	}
	msgs, err := s.client.XRevRangeN(ctx, StreamKey(kind, operation, symbol), "+", "-", int64(n)).Result()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("%w: redis XREVRANGE %s: %v", model.ErrStorage, kind, err)
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		if err := decode([]byte(raw)); err != nil {
			return fmt.Errorf("decode %s entry %s: %w", kind, msgs[i].ID, err)
		}
	}
	return nil
}

// Subscribe hands every result and order published under operation to fn
// until ctx is done.
func (s *Series) Subscribe(ctx context.Context, operation string, fn func(channel string, payload []byte)) error {
	sub := s.client.Subscribe(ctx, Channel(KindResults, operation), Channel(KindOrders, operation))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: redis subscribe: %v", model.ErrStorage, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Channel, []byte(msg.Payload))
		}
	}
}
