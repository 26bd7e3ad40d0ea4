package repo

import (
	"context"
	"database/sql"
	"fmt"

	"maintline/internal/domain"
)

const draftSelect = `SELECT d.code, d.planned_day, d.work_order_code, d.created_at, w.priority, COALESCE(w.activity_name, ''), m.name
	FROM draft_work_orders d
	JOIN work_orders w ON w.code = d.work_order_code
	JOIN machines m ON m.code = w.machine_code`

func scanDraft(row scanner) (domain.DraftWorkOrder, error) {
	var d domain.DraftWorkOrder
	var planned, created, priority string
	err := row.Scan(&d.Code, &planned, &d.WorkOrderCode, &created, &priority, &d.ActivityName, &d.MachineName)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Priority = domain.Priority(priority)
	if d.PlannedDay, err = parseTime(planned); err != nil {
		return d, err
	}
	d.CreatedAt, err = parseTime(created)
	return d, err
}

func (r Repo) InsertDraftTx(ctx context.Context, tx *sql.Tx, d domain.DraftWorkOrder) (domain.DraftWorkOrder, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO draft_work_orders(planned_day,work_order_code,created_at) VALUES (?,?,?)`,
		FormatTime(d.PlannedDay), d.WorkOrderCode, FormatTime(d.CreatedAt))
	if err != nil {
		return d, fmt.Errorf("insert draft: %w", err)
	}
	d.Code, err = res.LastInsertId()
	return d, err
}

func (r Repo) GetDraftTx(ctx context.Context, q Querier, code int64) (domain.DraftWorkOrder, error) {
	return scanDraft(q.QueryRowContext(ctx, draftSelect+` WHERE d.code=?`, code))
}

func (r Repo) DeleteDraftTx(ctx context.Context, tx *sql.Tx, code int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM draft_work_orders WHERE code=?`, code)
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

// ListDrafts returns drafts planned inside win, earliest first.
func (r Repo) ListDrafts(ctx context.Context, win Window) ([]domain.DraftWorkOrder, error) {
	gte, lte := win.args()
	rows, err := r.DB.QueryContext(ctx, draftSelect+` WHERE d.planned_day BETWEEN ? AND ? ORDER BY d.planned_day, d.code`, gte, lte)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DraftWorkOrder{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
