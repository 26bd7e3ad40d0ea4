package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maintline/internal/domain"
)

const workOrderSelect = `SELECT w.code, w.machine_code, m.name, w.engine_code, w.engine_function,
	w.activity_code, w.activity_name, w.activity_type, a.frequency_hours, w.state, w.priority,
	w.created_at, w.updated_at, w.start_date, w.end_date, w.failure_cause, w.total_hours,
	w.on_schedule, w.day_schedule, w.observations, w.security_measures_json, w.protection_equipments_json
	FROM work_orders w
	JOIN machines m ON m.code = w.machine_code
	LEFT JOIN activities a ON a.code = w.activity_code`

func scanWorkOrder(row scanner) (domain.WorkOrder, error) {
	var w domain.WorkOrder
	var engineCode, activityCode, freq, totalHours, onSchedule sql.NullInt64
	var engineFunction, activityName, activityType, failureCause, observations sql.NullString
	var startDate, endDate, daySchedule, measures, equipments sql.NullString
	var state, priority, created, updated string
	err := row.Scan(&w.Code, &w.MachineCode, &w.MachineName, &engineCode, &engineFunction,
		&activityCode, &activityName, &activityType, &freq, &state, &priority,
		&created, &updated, &startDate, &endDate, &failureCause, &totalHours,
		&onSchedule, &daySchedule, &observations, &measures, &equipments)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.State = domain.State(state)
	w.Priority = domain.Priority(priority)
	if engineCode.Valid {
		w.EngineCode = &engineCode.Int64
	}
	if engineFunction.Valid {
		w.EngineFunction = &engineFunction.String
	}
	if activityCode.Valid {
		w.ActivityCode = &activityCode.Int64
	}
	if activityName.Valid {
		w.ActivityName = &activityName.String
	}
	if activityType.Valid {
		t := domain.ActivityType(activityType.String)
		w.ActivityType = &t
	}
	if freq.Valid {
		f := int(freq.Int64)
		w.FrequencyHours = &f
	}
	if failureCause.Valid {
		w.FailureCause = &failureCause.String
	}
	if observations.Valid {
		w.Observations = &observations.String
	}
	if totalHours.Valid {
		h := int(totalHours.Int64)
		w.TotalHours = &h
	}
	if onSchedule.Valid {
		b := onSchedule.Int64 != 0
		w.OnSchedule = &b
	}
	if w.CreatedAt, err = parseTime(created); err != nil {
		return w, err
	}
	if w.UpdatedAt, err = parseTime(updated); err != nil {
		return w, err
	}
	if w.StartDate, err = parseNullTime(startDate); err != nil {
		return w, err
	}
	if w.EndDate, err = parseNullTime(endDate); err != nil {
		return w, err
	}
	if w.DaySchedule, err = parseNullTime(daySchedule); err != nil {
		return w, err
	}
	if w.SecurityMeasures, err = unmarshalList[domain.SecurityMeasure](measures); err != nil {
		return w, fmt.Errorf("work order %d security measures: %w", w.Code, err)
	}
	if w.ProtectionEquipments, err = unmarshalList[string](equipments); err != nil {
		return w, fmt.Errorf("work order %d protection equipments: %w", w.Code, err)
	}
	return w, nil
}

// NextWorkOrderCodeTx bumps the persistent work-order sequence. Codes are never
// reused, even after deletes.
func (r Repo) NextWorkOrderCodeTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var code int64
	err := tx.QueryRowContext(ctx, `UPDATE counters SET value = value + 1 WHERE name='work_order' RETURNING value`).Scan(&code)
	if err != nil {
		return 0, fmt.Errorf("next work order code: %w", err)
	}
	return code, nil
}

// CurrentWorkOrderCode is the high-water mark of the sequence.
func (r Repo) CurrentWorkOrderCode(ctx context.Context) (int64, error) {
	var code int64
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM counters WHERE name='work_order'`).Scan(&code)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return code, err
}

func (r Repo) InsertWorkOrderTx(ctx context.Context, tx *sql.Tx, w domain.WorkOrder) error {
	var activityType any
	if w.ActivityType != nil {
		activityType = string(*w.ActivityType)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO work_orders(code,machine_code,engine_code,engine_function,activity_code,activity_name,activity_type,state,priority,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		w.Code, w.MachineCode, nullableInt64Ptr(w.EngineCode), nullableStringPtr(w.EngineFunction),
		nullableInt64Ptr(w.ActivityCode), nullableStringPtr(w.ActivityName), activityType,
		string(w.State), string(w.Priority), FormatTime(w.CreatedAt), FormatTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert work order: %w", err)
	}
	return nil
}

func (r Repo) GetWorkOrder(ctx context.Context, code int64) (domain.WorkOrder, error) {
	return r.GetWorkOrderTx(ctx, r.DB, code)
}

// GetWorkOrderTx loads the joined row together with its check-list results and
// store consumptions.
func (r Repo) GetWorkOrderTx(ctx context.Context, q Querier, code int64) (domain.WorkOrder, error) {
	w, err := scanWorkOrder(q.QueryRowContext(ctx, workOrderSelect+` WHERE w.code=?`, code))
	if err != nil {
		return w, err
	}
	if w.CheckListVerified, err = r.ListCheckList(ctx, q, code); err != nil {
		return w, err
	}
	if w.StoresConsumed, err = r.ListConsumptions(ctx, q, code); err != nil {
		return w, err
	}
	return w, nil
}

// UpdateWorkOrderTx persists the transition fields of w. The write only lands
// when the stored state still equals expected; otherwise ErrStale.
func (r Repo) UpdateWorkOrderTx(ctx context.Context, tx *sql.Tx, w domain.WorkOrder, expected domain.State) error {
	measures, err := marshalList(w.SecurityMeasures)
	if err != nil {
		return err
	}
	equipments, err := marshalList(w.ProtectionEquipments)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE work_orders SET state=?, updated_at=?, start_date=?, end_date=?, failure_cause=?,
		total_hours=?, observations=?, security_measures_json=?, protection_equipments_json=?
		WHERE code=? AND state=?`,
		string(w.State), FormatTime(w.UpdatedAt), nullableTime(w.StartDate), nullableTime(w.EndDate),
		nullableStringPtr(w.FailureCause), nullableIntPtr(w.TotalHours), nullableStringPtr(w.Observations),
		measures, equipments, w.Code, string(expected))
	if err != nil {
		return fmt.Errorf("update work order %d: %w", w.Code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// SetScheduleTx writes both schedule columns as given; nil clears a column.
func (r Repo) SetScheduleTx(ctx context.Context, tx *sql.Tx, code int64, daySchedule *time.Time, onSchedule *bool, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_orders SET day_schedule=?, on_schedule=?, updated_at=? WHERE code=?`,
		nullableTime(daySchedule), nullableBool(onSchedule), FormatTime(now), code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteWorkOrderTx(ctx context.Context, tx *sql.Tx, code int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM work_orders WHERE code=?`, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertCheckListTx(ctx context.Context, tx *sql.Tx, workOrderCode int64, v domain.CheckListVerification) error {
	verified := 0
	if v.Verified {
		verified = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO check_list_verifications(work_order_code,check_item_id,verified,note) VALUES (?,?,?,?)
		ON CONFLICT(work_order_code,check_item_id) DO UPDATE SET verified=excluded.verified, note=excluded.note`,
		workOrderCode, v.CheckItemID, verified, nullable(v.Note))
	if err != nil {
		return fmt.Errorf("check item %d: %w", v.CheckItemID, err)
	}
	return nil
}

func (r Repo) ListCheckList(ctx context.Context, q Querier, workOrderCode int64) ([]domain.CheckListVerification, error) {
	rows, err := q.QueryContext(ctx, `SELECT check_item_id,verified,note FROM check_list_verifications WHERE work_order_code=? ORDER BY check_item_id`, workOrderCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CheckListVerification
	for rows.Next() {
		var v domain.CheckListVerification
		var verified int
		var note sql.NullString
		if err := rows.Scan(&v.CheckItemID, &verified, &note); err != nil {
			return nil, err
		}
		v.Verified = verified != 0
		v.Note = note.String
		res = append(res, v)
	}
	return res, rows.Err()
}

// Window is an inclusive time interval, bound as storage strings.
type Window struct {
	GTE time.Time
	LTE time.Time
}

func (w Window) args() (string, string) {
	return FormatTime(w.GTE), FormatTime(w.LTE)
}

// ListWorkOrdersActive returns the orders relevant to a window: created inside
// it, still open from before it, or completed inside it.
func (r Repo) ListWorkOrdersActive(ctx context.Context, win Window) ([]domain.WorkOrder, error) {
	gte, lte := win.args()
	return r.listWorkOrders(ctx, `WHERE (w.created_at BETWEEN ? AND ?)
		OR (w.created_at < ? AND w.state <> 'DONE')
		OR (w.state = 'DONE' AND w.updated_at BETWEEN ? AND ?)`,
		gte, lte, gte, gte, lte)
}

// ListWorkOrdersDayScheduled returns orders whose day schedule falls in win.
func (r Repo) ListWorkOrdersDayScheduled(ctx context.Context, win Window) ([]domain.WorkOrder, error) {
	gte, lte := win.args()
	return r.listWorkOrders(ctx, `WHERE w.day_schedule BETWEEN ? AND ?`, gte, lte)
}

// ListWorkOrdersFlagged returns orders flagged on schedule without a specific
// day that are still open or were completed inside win.
func (r Repo) ListWorkOrdersFlagged(ctx context.Context, win Window) ([]domain.WorkOrder, error) {
	gte, lte := win.args()
	return r.listWorkOrders(ctx, `WHERE w.day_schedule IS NULL AND w.on_schedule = 1
		AND (w.state <> 'DONE' OR w.updated_at BETWEEN ? AND ?)`, gte, lte)
}

// ListWorkOrdersBacklog returns open orders not flagged on schedule that were
// created on or before createdBefore, whether or not they have a planned day.
func (r Repo) ListWorkOrdersBacklog(ctx context.Context, createdBefore time.Time) ([]domain.WorkOrder, error) {
	return r.listWorkOrders(ctx, `WHERE w.state <> 'DONE'
		AND (w.on_schedule IS NULL OR w.on_schedule = 0) AND w.created_at <= ?`, FormatTime(createdBefore))
}

func (r Repo) listWorkOrders(ctx context.Context, where string, args ...any) ([]domain.WorkOrder, error) {
	rows, err := r.DB.QueryContext(ctx, workOrderSelect+" "+where+` ORDER BY w.code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.WorkOrder{}
	for rows.Next() {
		w, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
