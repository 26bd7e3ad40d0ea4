package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"maintline/internal/daterange"
	"maintline/internal/domain"
	"maintline/internal/events"
	"maintline/internal/repo"
)

// GetSchedule returns the weekly schedule around date. Strict mode keeps only
// orders planned on a day of that week; lenient mode adds orders flagged on
// schedule without a day and the open backlog of the month.
func (e Engine) GetSchedule(ctx context.Context, date time.Time, strict bool) ([]domain.WorkOrder, error) {
	week, err := e.Calendar.For(daterange.Weekly, date)
	if err != nil {
		return nil, validation("%v", err)
	}
	win := repo.Window{GTE: week.GTE, LTE: week.LTE}
	planned, err := e.Repo.ListWorkOrdersDayScheduled(ctx, win)
	if err != nil {
		return nil, classify(err, "schedule")
	}
	res := withOnSchedule(planned, func(domain.WorkOrder) bool { return true })
	if strict {
		return annotateAll(res), nil
	}

	flagged, err := e.Repo.ListWorkOrdersFlagged(ctx, win)
	if err != nil {
		return nil, classify(err, "schedule")
	}
	res = append(res, withOnSchedule(flagged, func(domain.WorkOrder) bool { return true })...)

	month, err := e.Calendar.For(daterange.Monthly, date)
	if err != nil {
		return nil, validation("%v", err)
	}
	backlog, err := e.Repo.ListWorkOrdersBacklog(ctx, month.LTE)
	if err != nil {
		return nil, classify(err, "schedule")
	}
	res = append(res, withOnSchedule(backlog, func(w domain.WorkOrder) bool {
		return w.DaySchedule != nil || week.Contains(w.CreatedAt)
	})...)

	sort.SliceStable(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return annotateAll(dedupe(res)), nil
}

func withOnSchedule(list []domain.WorkOrder, on func(domain.WorkOrder) bool) []domain.WorkOrder {
	for i := range list {
		v := on(list[i])
		list[i].OnSchedule = &v
	}
	return list
}

// dedupe drops repeated codes from a list sorted by code.
func dedupe(list []domain.WorkOrder) []domain.WorkOrder {
	out := list[:0]
	for i, w := range list {
		if i > 0 && w.Code == list[i-1].Code {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ScheduleUpdate replaces the schedule fields of a work order.
type ScheduleUpdate struct {
	DaySchedule *time.Time
	OnSchedule  *bool
	ActorID     string
}

// SetOnSchedule stores the schedule of a work order. Being on schedule and
// having a planned day are exclusive: onSchedule=true clears the day.
func (e Engine) SetOnSchedule(ctx context.Context, code int64, in ScheduleUpdate) (domain.WorkOrder, error) {
	if in.DaySchedule == nil && in.OnSchedule == nil {
		return domain.WorkOrder{}, validation("day_schedule or on_schedule is required")
	}
	day := in.DaySchedule
	if in.OnSchedule != nil && *in.OnSchedule {
		day = nil
	}
	if day != nil {
		d := day.UTC().Truncate(time.Second)
		day = &d
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkOrder{}, internal("begin transaction", err)
	}
	defer tx.Rollback()
	what := fmt.Sprintf("work order %d", code)
	if err := e.Repo.SetScheduleTx(ctx, tx, code, day, in.OnSchedule, e.now()); err != nil {
		return domain.WorkOrder{}, classify(err, what)
	}
	payload := events.EventPayload{"on_schedule": in.OnSchedule}
	if day != nil {
		payload["day_schedule"] = repo.FormatTime(*day)
	}
	if err := e.appendEvent(ctx, tx, events.WorkOrderScheduled, "work_order", code, in.ActorID, payload); err != nil {
		return domain.WorkOrder{}, internal("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkOrder{}, internal("commit schedule", err)
	}
	return e.GetWorkOrder(ctx, code)
}

// GetIndicators groups the work orders of the month around date by machine and
// sums their worked hours. Groups are ordered by hours, highest first; equal
// totals keep machine code order.
func (e Engine) GetIndicators(ctx context.Context, date time.Time, strict bool) ([]domain.MachineIndicator, error) {
	month, err := e.Calendar.For(daterange.Monthly, date)
	if err != nil {
		return nil, validation("%v", err)
	}
	win := repo.Window{GTE: month.GTE, LTE: month.LTE}
	list, err := e.Repo.ListWorkOrdersDayScheduled(ctx, win)
	if err != nil {
		return nil, classify(err, "indicators")
	}
	if !strict {
		active, err := e.Repo.ListWorkOrdersActive(ctx, win)
		if err != nil {
			return nil, classify(err, "indicators")
		}
		list = append(list, active...)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Code < list[j].Code })
		list = dedupe(list)
	}
	return groupByMachine(annotateAll(list)), nil
}

func groupByMachine(list []domain.WorkOrder) []domain.MachineIndicator {
	index := map[int64]int{}
	groups := []domain.MachineIndicator{}
	for _, w := range list {
		i, ok := index[w.MachineCode]
		if !ok {
			i = len(groups)
			index[w.MachineCode] = i
			groups = append(groups, domain.MachineIndicator{MachineCode: w.MachineCode, MachineName: w.MachineName, WorkOrders: []domain.WorkOrder{}})
		}
		if w.TotalHours != nil {
			groups[i].Hours += *w.TotalHours
		}
		groups[i].WorkOrders = append(groups[i].WorkOrders, w)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Hours != groups[j].Hours {
			return groups[i].Hours > groups[j].Hours
		}
		return groups[i].MachineCode < groups[j].MachineCode
	})
	return groups
}
