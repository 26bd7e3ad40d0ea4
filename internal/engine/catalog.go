package engine

import (
	"context"
	"fmt"
	"strings"

	"maintline/internal/domain"
)

func (e Engine) CreateMachine(ctx context.Context, name, location string) (domain.Machine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Machine{}, validation("name is required")
	}
	m, err := e.Repo.InsertMachine(ctx, domain.Machine{Name: name, Location: location, CreatedAt: e.now()})
	if err != nil {
		return m, classify(err, "machine")
	}
	return m, nil
}

func (e Engine) ListMachines(ctx context.Context) ([]domain.MachineSummary, error) {
	list, err := e.Repo.MachineSummaries(ctx)
	if err != nil {
		return nil, classify(err, "machines")
	}
	return list, nil
}

func (e Engine) CreateEngine(ctx context.Context, machineCode int64, function string) (domain.Engine, error) {
	function = strings.TrimSpace(function)
	if function == "" {
		return domain.Engine{}, validation("function is required")
	}
	if _, err := e.Repo.GetMachine(ctx, machineCode); err != nil {
		return domain.Engine{}, classify(err, fmt.Sprintf("machine %d", machineCode))
	}
	eng, err := e.Repo.InsertEngine(ctx, domain.Engine{MachineCode: machineCode, Function: function, CreatedAt: e.now()})
	if err != nil {
		return eng, classify(err, "engine")
	}
	return eng, nil
}

type CreateActivityOptions struct {
	MachineCode    int64
	Name           string
	Type           domain.ActivityType
	FrequencyHours *int
	CheckItems     []string
}

func (e Engine) CreateActivity(ctx context.Context, opts CreateActivityOptions) (domain.Activity, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	switch {
	case opts.Name == "":
		return domain.Activity{}, validation("name is required")
	case !opts.Type.Valid():
		return domain.Activity{}, validation("invalid activity type %q", opts.Type)
	case opts.FrequencyHours != nil && *opts.FrequencyHours <= 0:
		return domain.Activity{}, validation("frequency_hours must be positive")
	case len(opts.CheckItems) > 0 && opts.Type != domain.ActivityInspection:
		return domain.Activity{}, validation("check items are only allowed on %s activities", domain.ActivityInspection)
	}
	if _, err := e.Repo.GetMachine(ctx, opts.MachineCode); err != nil {
		return domain.Activity{}, classify(err, fmt.Sprintf("machine %d", opts.MachineCode))
	}
	a := domain.Activity{
		MachineCode:    opts.MachineCode,
		Name:           opts.Name,
		Type:           opts.Type,
		FrequencyHours: opts.FrequencyHours,
		CreatedAt:      e.now(),
	}
	for _, desc := range opts.CheckItems {
		a.CheckItems = append(a.CheckItems, domain.CheckItem{Description: desc})
	}
	a, err := e.Repo.InsertActivity(ctx, a)
	if err != nil {
		return a, classify(err, "activity")
	}
	return a, nil
}

func (e Engine) GetActivity(ctx context.Context, code int64) (domain.Activity, error) {
	a, err := e.Repo.GetActivityTx(ctx, e.DB, code)
	if err != nil {
		return a, classify(err, fmt.Sprintf("activity %d", code))
	}
	return a, nil
}
