package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"maintline/internal/daterange"
	"maintline/internal/domain"
	"maintline/internal/events"
	"maintline/internal/repo"
	"maintline/internal/telemetry"
	"maintline/internal/workflow"
)

// CreateWorkOrderOptions are parameters for creating a work order.
type CreateWorkOrderOptions struct {
	MachineCode  int64
	EngineCode   *int64
	ActivityCode *int64
	Priority     domain.Priority
	ActorID      string
}

func (e Engine) CreateWorkOrder(ctx context.Context, opts CreateWorkOrderOptions) (res domain.WorkOrder, err error) {
	ctx, span := e.Tracer.Start(ctx, "workorder.create", attribute.Int64("machine.code", opts.MachineCode))
	defer func() { telemetry.End(span, err) }()

	if opts.MachineCode <= 0 {
		return res, validation("machine_code is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityNormal
	}
	if !opts.Priority.Valid() {
		return res, validation("invalid priority %q", opts.Priority)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, internal("begin transaction", err)
	}
	defer tx.Rollback()

	w, err := e.resolveWorkOrder(ctx, tx, opts.MachineCode, opts.EngineCode, opts.ActivityCode)
	if err != nil {
		return res, err
	}
	w.Priority = opts.Priority
	code, err := e.insertWorkOrder(ctx, tx, w, opts.ActorID)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, internal("commit work order", err)
	}
	e.Metrics.WorkOrderCreated()
	e.Log.Info().Int64("work_order", code).Int64("machine", opts.MachineCode).Msg("work order created")
	return e.GetWorkOrder(ctx, code)
}

// resolveWorkOrder checks the references of a new work order and copies the
// engine function and activity name and type onto it.
func (e Engine) resolveWorkOrder(ctx context.Context, tx *sql.Tx, machineCode int64, engineCode, activityCode *int64) (domain.WorkOrder, error) {
	w := domain.WorkOrder{MachineCode: machineCode}
	if _, err := e.Repo.GetMachineTx(ctx, tx, machineCode); err != nil {
		return w, classify(err, fmt.Sprintf("machine %d", machineCode))
	}
	if engineCode != nil {
		eng, err := e.Repo.GetEngineTx(ctx, tx, *engineCode)
		if err != nil {
			return w, classify(err, fmt.Sprintf("engine %d", *engineCode))
		}
		if eng.MachineCode != machineCode {
			return w, validation("engine %d does not belong to machine %d", eng.Code, machineCode)
		}
		w.EngineCode = &eng.Code
		w.EngineFunction = &eng.Function
	}
	if activityCode != nil {
		act, err := e.Repo.GetActivityTx(ctx, tx, *activityCode)
		if err != nil {
			return w, classify(err, fmt.Sprintf("activity %d", *activityCode))
		}
		if act.MachineCode != machineCode {
			return w, validation("activity %d does not belong to machine %d", act.Code, machineCode)
		}
		w.ActivityCode = &act.Code
		w.ActivityName = &act.Name
		w.ActivityType = &act.Type
	}
	return w, nil
}

func (e Engine) insertWorkOrder(ctx context.Context, tx *sql.Tx, w domain.WorkOrder, actorID string) (int64, error) {
	code, err := e.Repo.NextWorkOrderCodeTx(ctx, tx)
	if err != nil {
		return 0, internal("allocate work order code", err)
	}
	now := e.now()
	w.Code = code
	w.State = workflow.Initial
	w.CreatedAt = now
	w.UpdatedAt = now
	if err := e.Repo.InsertWorkOrderTx(ctx, tx, w); err != nil {
		return 0, internal("insert work order", err)
	}
	if err := e.appendEvent(ctx, tx, events.WorkOrderCreated, "work_order", code, actorID, events.EventPayload{
		"machine_code": w.MachineCode,
		"priority":     w.Priority,
	}); err != nil {
		return 0, internal("append event", err)
	}
	return code, nil
}

func (e Engine) GetWorkOrder(ctx context.Context, code int64) (domain.WorkOrder, error) {
	w, err := e.Repo.GetWorkOrder(ctx, code)
	if err != nil {
		return w, classify(err, fmt.Sprintf("work order %d", code))
	}
	return annotate(w), nil
}

// ListOptions selects the window of ListWorkOrders.
type ListOptions struct {
	Range daterange.Kind
	Date  time.Time
}

// ParseListOptions reads the range keyword and reference date of a list
// request. Empty values default to the current week.
func (e Engine) ParseListOptions(rangeKeyword, date string) (ListOptions, error) {
	opts := ListOptions{Range: daterange.Weekly}
	if rangeKeyword != "" {
		kind, err := daterange.ParseKind(rangeKeyword)
		if err != nil {
			return opts, validation("%v", err)
		}
		opts.Range = kind
	}
	ref, err := e.ReferenceDate(date)
	if err != nil {
		return opts, err
	}
	opts.Date = ref
	return opts, nil
}

// ReferenceDate parses a request date in the calendar zone; empty means now.
func (e Engine) ReferenceDate(date string) (time.Time, error) {
	if date == "" {
		return e.now(), nil
	}
	t, err := e.Calendar.ParseDate(date)
	if err != nil {
		return t, validation("%v", err)
	}
	return t, nil
}

// ListWorkOrders returns the orders created in the window, still open from
// before it, or completed inside it.
func (e Engine) ListWorkOrders(ctx context.Context, opts ListOptions) ([]domain.WorkOrder, error) {
	if opts.Range == "" {
		opts.Range = daterange.Weekly
	}
	if opts.Date.IsZero() {
		opts.Date = e.now()
	}
	r, err := e.Calendar.For(opts.Range, opts.Date)
	if err != nil {
		return nil, validation("%v", err)
	}
	list, err := e.Repo.ListWorkOrdersActive(ctx, repo.Window{GTE: r.GTE, LTE: r.LTE})
	if err != nil {
		return nil, classify(err, "work orders")
	}
	return annotateAll(list), nil
}

// UpdateWorkOrder advances a work order one step. The read, the checks and
// every side effect of the transition share one write transaction.
func (e Engine) UpdateWorkOrder(ctx context.Context, code int64, p workflow.Payload, actorID string) (res domain.WorkOrder, err error) {
	if p == nil {
		return res, validation("transition payload is required")
	}
	target := p.Target()
	ctx, span := e.Tracer.Start(ctx, "workorder.transition",
		attribute.Int64("work_order.code", code),
		attribute.String("work_order.target", string(target)))
	defer func() {
		if err != nil {
			e.Metrics.Transition(string(target), string(KindOf(err)))
		} else {
			e.Metrics.Transition(string(target), "ok")
		}
		telemetry.End(span, err)
	}()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, internal("begin transaction", err)
	}
	defer tx.Rollback()

	what := fmt.Sprintf("work order %d", code)
	cur, err := e.Repo.GetWorkOrderTx(ctx, tx, code)
	if err != nil {
		return res, classify(err, what)
	}
	if err := workflow.CheckAdvance(cur.State, target); err != nil {
		return res, classify(err, what)
	}

	now := e.now()
	next := cur
	next.State = target
	next.UpdatedAt = now

	switch p := p.(type) {
	case workflow.DoingPayload:
		start := now
		if p.StartDate != nil {
			start = p.StartDate.UTC().Truncate(time.Second)
		}
		next.StartDate = &start
		next.SecurityMeasures = p.SecurityMeasures
		next.ProtectionEquipments = p.ProtectionEquipments
	case workflow.DonePayload:
		if err := e.complete(ctx, tx, cur, &next, p, actorID); err != nil {
			return res, err
		}
	}

	if err := e.Repo.UpdateWorkOrderTx(ctx, tx, next, cur.State); err != nil {
		return res, classify(err, what)
	}
	if err := e.appendEvent(ctx, tx, events.WorkOrderTransitioned, "work_order", code, actorID, events.EventPayload{
		"from": cur.State,
		"to":   next.State,
	}); err != nil {
		return res, internal("append event", err)
	}
	var draft *domain.DraftWorkOrder
	if next.State == domain.StateDone && cur.Kind() == domain.ActivityPlannedPreventive && cur.FrequencyHours != nil {
		if draft, err = e.createDraft(ctx, tx, *next.EndDate, *cur.FrequencyHours, code, actorID); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, internal("commit transition", err)
	}
	if draft != nil {
		e.Metrics.Draft("created")
	}
	e.Log.Info().Int64("work_order", code).Str("from", string(cur.State)).Str("to", string(next.State)).Str("actor", actorID).Msg("work order transitioned")
	return e.GetWorkOrder(ctx, code)
}

// complete applies the DONE side effects: end date, worked hours, check-list
// results and store consumption.
func (e Engine) complete(ctx context.Context, tx *sql.Tx, cur domain.WorkOrder, next *domain.WorkOrder, p workflow.DonePayload, actorID string) error {
	now := next.UpdatedAt
	end := now
	if p.EndDate != nil {
		end = p.EndDate.UTC().Truncate(time.Second)
	}
	next.EndDate = &end
	hours := workedHours(cur.UpdatedAt, now)
	next.TotalHours = &hours
	next.Observations = p.Observations
	if cur.Kind() == domain.ActivityCorrective {
		next.FailureCause = p.FailureCause
	} else {
		next.FailureCause = nil
	}

	if cur.Kind() == domain.ActivityInspection && len(p.CheckListVerified) > 0 {
		items := map[int64]bool{}
		if cur.ActivityCode != nil {
			act, err := e.Repo.GetActivityTx(ctx, tx, *cur.ActivityCode)
			if err != nil {
				return classify(err, fmt.Sprintf("activity %d", *cur.ActivityCode))
			}
			for _, it := range act.CheckItems {
				items[it.ID] = true
			}
		}
		for _, v := range p.CheckListVerified {
			if !items[v.CheckItemID] {
				return validation("check item %d does not belong to the activity of work order %d", v.CheckItemID, cur.Code)
			}
			if err := e.Repo.InsertCheckListTx(ctx, tx, cur.Code, v); err != nil {
				return internal("record check list", err)
			}
		}
	}

	for _, c := range p.Stores {
		store, err := e.Repo.DecrementStoreTx(ctx, tx, cur.MachineCode, c.Name, c.Amount, now)
		if err != nil {
			e.Metrics.StockDecrement(string(KindOf(classify(err, ""))))
			return classify(err, fmt.Sprintf("store %q", c.Name))
		}
		e.Metrics.StockDecrement("ok")
		c.StoreID = store.ID
		if err := e.Repo.InsertConsumptionTx(ctx, tx, cur.Code, c); err != nil {
			return internal("record consumption", err)
		}
		if err := e.appendEvent(ctx, tx, events.StoreConsumed, "store", store.ID, actorID, events.EventPayload{
			"work_order_code": cur.Code,
			"amount":          c.Amount,
			"remaining":       store.Amount,
		}); err != nil {
			return internal("append event", err)
		}
		if store.Amount < store.MinimumAmount {
			e.Log.Warn().Int64("store", store.ID).Str("name", store.Name).Float64("amount", store.Amount).Msg("store below minimum")
			if err := e.appendEvent(ctx, tx, events.StoreBelowMinimum, "store", store.ID, actorID, events.EventPayload{
				"amount":         store.Amount,
				"minimum_amount": store.MinimumAmount,
			}); err != nil {
				return internal("append event", err)
			}
		}
	}
	return nil
}

// workedHours rounds the time since the last transition up to whole hours.
func workedHours(since, now time.Time) int {
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}
	return int((d + time.Hour - 1) / time.Hour)
}

// DeleteWorkOrder removes a work order that is not DONE.
func (e Engine) DeleteWorkOrder(ctx context.Context, code int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return internal("begin transaction", err)
	}
	defer tx.Rollback()
	what := fmt.Sprintf("work order %d", code)
	w, err := e.Repo.GetWorkOrderTx(ctx, tx, code)
	if err != nil {
		return classify(err, what)
	}
	if !workflow.Deletable(w.State) {
		return classify(fmt.Errorf("%w: work order %d is %s", workflow.ErrNotDeletable, code, w.State), what)
	}
	if err := e.Repo.DeleteWorkOrderTx(ctx, tx, code); err != nil {
		return classify(err, what)
	}
	if err := e.appendEvent(ctx, tx, events.WorkOrderDeleted, "work_order", code, actorID, events.EventPayload{"state": w.State}); err != nil {
		return internal("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return internal("commit delete", err)
	}
	return nil
}

// CountWorkOrders reports the sequence high-water mark with the machine
// cross-reference used by creation forms.
func (e Engine) CountWorkOrders(ctx context.Context) (domain.WorkOrderCount, error) {
	current, err := e.Repo.CurrentWorkOrderCode(ctx)
	if err != nil {
		return domain.WorkOrderCount{}, classify(err, "counter")
	}
	machines, err := e.Repo.MachineSummaries(ctx)
	if err != nil {
		return domain.WorkOrderCount{}, classify(err, "machines")
	}
	return domain.WorkOrderCount{Current: current, Machines: machines}, nil
}
