package engine

import (
	"context"
	"fmt"
	"strings"

	"maintline/internal/domain"
	"maintline/internal/events"
)

type CreateStoreOptions struct {
	MachineCode   int64
	Name          string
	Unit          string
	Amount        float64
	MinimumAmount float64
	ActorID       string
}

// CreateStore adds a store line to a machine. A soft-deleted line with the
// same name is revived with the new unit and amounts instead of duplicated.
func (e Engine) CreateStore(ctx context.Context, opts CreateStoreOptions) (domain.Store, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	switch {
	case opts.MachineCode <= 0:
		return domain.Store{}, validation("machine_code is required")
	case opts.Name == "":
		return domain.Store{}, validation("name is required")
	case opts.Unit == "":
		return domain.Store{}, validation("unit is required")
	case opts.Amount < 0 || opts.MinimumAmount < 0:
		return domain.Store{}, validation("amounts must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Store{}, internal("begin transaction", err)
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetMachineTx(ctx, tx, opts.MachineCode); err != nil {
		return domain.Store{}, classify(err, fmt.Sprintf("machine %d", opts.MachineCode))
	}
	s, revived, err := e.Repo.SaveStoreTx(ctx, tx, domain.Store{
		MachineCode:   opts.MachineCode,
		Name:          opts.Name,
		Unit:          opts.Unit,
		Amount:        opts.Amount,
		MinimumAmount: opts.MinimumAmount,
	}, e.now())
	if err != nil {
		return domain.Store{}, classify(err, "store")
	}
	if err := e.appendEvent(ctx, tx, events.StoreSaved, "store", s.ID, opts.ActorID, events.EventPayload{
		"machine_code": s.MachineCode,
		"name":         s.Name,
		"amount":       s.Amount,
		"revived":      revived,
	}); err != nil {
		return domain.Store{}, internal("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Store{}, internal("commit store", err)
	}
	return s, nil
}

// ListStores returns live store lines; machineCode 0 lists every machine.
func (e Engine) ListStores(ctx context.Context, machineCode int64) ([]domain.Store, error) {
	list, err := e.Repo.ListStores(ctx, machineCode)
	if err != nil {
		return nil, classify(err, "stores")
	}
	if list == nil {
		list = []domain.Store{}
	}
	return list, nil
}

func (e Engine) DeleteStore(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return internal("begin transaction", err)
	}
	defer tx.Rollback()
	if err := e.Repo.SoftDeleteStoreTx(ctx, tx, id, e.now()); err != nil {
		return classify(err, fmt.Sprintf("store %d", id))
	}
	if err := e.appendEvent(ctx, tx, events.StoreDeleted, "store", id, actorID, nil); err != nil {
		return internal("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return internal("commit store delete", err)
	}
	return nil
}
