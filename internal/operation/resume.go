package operation

import (
	"context"
	"errors"
	"log"

	"didibot/internal/model"
)

// Repository loads and saves whole Operations.
type Repository interface {
	LoadOperation(ctx context.Context, name string) (*model.Operation, error)
	SaveOperation(ctx context.Context, op *model.Operation) error
	DeleteOperation(ctx context.Context, name string) error
}

// Resume merges a freshly defined Operation with the stored one of the same
// name and saves the result. Real and test Operations keep their ids,
// positions, last checks and wallet; the setup always comes from fresh.
// Monitors missing from fresh are kept inactive. Backtests always restart
// from scratch.
func Resume(ctx context.Context, repo Repository, fresh *model.Operation) (*model.Operation, error) {
	stored, err := repo.LoadOperation(ctx, fresh.Name)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fresh, repo.SaveOperation(ctx, fresh)
	case err != nil:
		return nil, err
	}

	if fresh.Mode == model.ModeBacktesting || stored.Mode != fresh.Mode {
		log.Printf("[operation] %s: replacing stored %s operation", fresh.Name, stored.Mode)
		if err := repo.DeleteOperation(ctx, fresh.Name); err != nil {
			return nil, err
		}
		return fresh, repo.SaveOperation(ctx, fresh)
	}

	stored.Setup = fresh.Setup
	stored.Broker = fresh.Broker
	if len(stored.Wallet) == 0 {
		stored.Wallet = fresh.Wallet
	}

	wanted := make(map[string]*model.Monitor, len(fresh.Monitors))
	for _, m := range fresh.Monitors {
		wanted[m.Ticker.Symbol] = m
	}
	for _, m := range stored.Monitors {
		f, ok := wanted[m.Ticker.Symbol]
		m.IsActive = ok && f.IsActive
		m.IsMaster = ok && f.IsMaster
		delete(wanted, m.Ticker.Symbol)
	}
	for _, m := range fresh.Monitors {
		if _, added := wanted[m.Ticker.Symbol]; added {
			m.OperationID = stored.ID
			stored.Monitors = append(stored.Monitors, m)
		}
	}

	log.Printf("[operation] %s: resumed with %d monitors", stored.Name, len(stored.Monitors))
	return stored, repo.SaveOperation(ctx, stored)
}
