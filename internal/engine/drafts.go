package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maintline/internal/daterange"
	"maintline/internal/domain"
	"maintline/internal/events"
	"maintline/internal/repo"
)

// createDraft plans the next occurrence of a recurring activity frequencyHours
// after from. A zero frequency plans nothing.
func (e Engine) createDraft(ctx context.Context, tx *sql.Tx, from time.Time, frequencyHours int, workOrderCode int64, actorID string) (*domain.DraftWorkOrder, error) {
	if frequencyHours <= 0 {
		return nil, nil
	}
	d, err := e.Repo.InsertDraftTx(ctx, tx, domain.DraftWorkOrder{
		PlannedDay:    from.Add(time.Duration(frequencyHours) * time.Hour),
		WorkOrderCode: workOrderCode,
		CreatedAt:     e.now(),
	})
	if err != nil {
		return nil, internal("create draft", err)
	}
	if err := e.appendEvent(ctx, tx, events.DraftCreated, "draft", d.Code, actorID, events.EventPayload{
		"work_order_code": workOrderCode,
		"planned_day":     repo.FormatTime(d.PlannedDay),
	}); err != nil {
		return nil, internal("append event", err)
	}
	return &d, nil
}

// ListDrafts returns drafts planned in the week around date.
func (e Engine) ListDrafts(ctx context.Context, date time.Time) ([]domain.DraftWorkOrder, error) {
	week, err := e.Calendar.For(daterange.Weekly, date)
	if err != nil {
		return nil, validation("%v", err)
	}
	list, err := e.Repo.ListDrafts(ctx, repo.Window{GTE: week.GTE, LTE: week.LTE})
	if err != nil {
		return nil, classify(err, "drafts")
	}
	return list, nil
}

// PromoteDraft turns a draft into a new PLANNED work order, copying the
// references of the order that produced the draft. An empty priority keeps
// the priority of that order.
func (e Engine) PromoteDraft(ctx context.Context, code int64, priority domain.Priority, actorID string) (domain.WorkOrder, error) {
	if priority != "" && !priority.Valid() {
		return domain.WorkOrder{}, validation("invalid priority %q", priority)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkOrder{}, internal("begin transaction", err)
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDraftTx(ctx, tx, code)
	if err != nil {
		return domain.WorkOrder{}, classify(err, fmt.Sprintf("draft %d", code))
	}
	origin, err := e.Repo.GetWorkOrderTx(ctx, tx, d.WorkOrderCode)
	if err != nil {
		return domain.WorkOrder{}, internal("load draft origin", err)
	}
	if priority == "" {
		priority = origin.Priority
	}
	w := domain.WorkOrder{
		MachineCode:    origin.MachineCode,
		EngineCode:     origin.EngineCode,
		EngineFunction: origin.EngineFunction,
		ActivityCode:   origin.ActivityCode,
		ActivityName:   origin.ActivityName,
		ActivityType:   origin.ActivityType,
		Priority:       priority,
	}
	newCode, err := e.insertWorkOrder(ctx, tx, w, actorID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if err := e.Repo.DeleteDraftTx(ctx, tx, code); err != nil {
		return domain.WorkOrder{}, internal("delete promoted draft", err)
	}
	if err := e.appendEvent(ctx, tx, events.DraftPromoted, "draft", code, actorID, events.EventPayload{
		"work_order_code": newCode,
	}); err != nil {
		return domain.WorkOrder{}, internal("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkOrder{}, internal("commit promotion", err)
	}
	e.Metrics.Draft("promoted")
	e.Metrics.WorkOrderCreated()
	e.Log.Info().Int64("draft", code).Int64("work_order", newCode).Msg("draft promoted")
	return e.GetWorkOrder(ctx, newCode)
}

func (e Engine) DeleteDraft(ctx context.Context, code int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return internal("begin transaction", err)
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDraftTx(ctx, tx, code); err != nil {
		return classify(err, fmt.Sprintf("draft %d", code))
	}
	if err := e.appendEvent(ctx, tx, events.DraftDeleted, "draft", code, actorID, nil); err != nil {
		return internal("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return internal("commit delete", err)
	}
	e.Metrics.Draft("deleted")
	return nil
}
