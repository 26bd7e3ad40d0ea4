package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maintline/internal/domain"
)

const storeColumns = `id,machine_code,name,unit,amount,minimum_amount,deleted,created_at,updated_at`

func scanStore(row scanner) (domain.Store, error) {
	var s domain.Store
	var deleted int
	var created, updated string
	err := row.Scan(&s.ID, &s.MachineCode, &s.Name, &s.Unit, &s.Amount, &s.MinimumAmount, &deleted, &created, &updated)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Deleted = deleted != 0
	if s.CreatedAt, err = parseTime(created); err != nil {
		return s, err
	}
	s.UpdatedAt, err = parseTime(updated)
	return s, err
}

// SaveStoreTx inserts a store line, or revives the soft-deleted line with the
// same machine and name. A live line with that name is ErrConflict.
func (r Repo) SaveStoreTx(ctx context.Context, tx *sql.Tx, s domain.Store, now time.Time) (domain.Store, bool, error) {
	existing, err := scanStore(tx.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE machine_code=? AND name=?`, s.MachineCode, s.Name))
	switch {
	case err == ErrNotFound:
		ts := FormatTime(now)
		res, err := tx.ExecContext(ctx, `INSERT INTO stores(machine_code,name,unit,amount,minimum_amount,deleted,created_at,updated_at) VALUES (?,?,?,?,?,0,?,?)`,
			s.MachineCode, s.Name, s.Unit, s.Amount, s.MinimumAmount, ts, ts)
		if err != nil {
			return s, false, fmt.Errorf("insert store: %w", err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return s, false, err
		}
		s.CreatedAt, _ = parseTime(ts)
		s.UpdatedAt = s.CreatedAt
		return s, false, nil
	case err != nil:
		return s, false, err
	case !existing.Deleted:
		return existing, false, fmt.Errorf("store %q on machine %d: %w", s.Name, s.MachineCode, ErrConflict)
	}
	ts := FormatTime(now)
	if _, err := tx.ExecContext(ctx, `UPDATE stores SET unit=?, amount=?, minimum_amount=?, deleted=0, updated_at=? WHERE id=?`,
		s.Unit, s.Amount, s.MinimumAmount, ts, existing.ID); err != nil {
		return s, false, fmt.Errorf("revive store: %w", err)
	}
	s.ID = existing.ID
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt, _ = parseTime(ts)
	return s, true, nil
}

func (r Repo) GetStoreTx(ctx context.Context, q Querier, id int64) (domain.Store, error) {
	return scanStore(q.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id=? AND deleted=0`, id))
}

// ListStores returns live store lines, optionally for one machine.
func (r Repo) ListStores(ctx context.Context, machineCode int64) ([]domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE deleted=0`
	var args []any
	if machineCode != 0 {
		query += ` AND machine_code=?`
		args = append(args, machineCode)
	}
	query += ` ORDER BY machine_code, name`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) SoftDeleteStoreTx(ctx context.Context, tx *sql.Tx, id int64, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE stores SET deleted=1, updated_at=? WHERE id=? AND deleted=0`, FormatTime(now), id)
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

// DecrementStoreTx subtracts amount from the live store line only when enough
// stock remains. It returns ErrNotFound when no such line exists and
// ErrInsufficientStock when the line exists but holds less than amount.
func (r Repo) DecrementStoreTx(ctx context.Context, tx *sql.Tx, machineCode int64, name string, amount float64, now time.Time) (domain.Store, error) {
	s, err := scanStore(tx.QueryRowContext(ctx, `UPDATE stores SET amount = amount - ?, updated_at=?
		WHERE machine_code=? AND name=? AND deleted=0 AND amount >= ?
		RETURNING `+storeColumns, amount, FormatTime(now), machineCode, name, amount))
	if err != ErrNotFound {
		return s, err
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE machine_code=? AND name=? AND deleted=0`, machineCode, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return s, fmt.Errorf("store %q on machine %d: %w", name, machineCode, ErrNotFound)
	}
	if err != nil {
		return s, err
	}
	return s, fmt.Errorf("store %q on machine %d: %w", name, machineCode, ErrInsufficientStock)
}

func (r Repo) InsertConsumptionTx(ctx context.Context, tx *sql.Tx, workOrderCode int64, c domain.StoreConsumption) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO store_consumptions(work_order_code,store_id,name,amount) VALUES (?,?,?,?)`,
		workOrderCode, c.StoreID, c.Name, c.Amount)
	return err
}

func (r Repo) ListConsumptions(ctx context.Context, q Querier, workOrderCode int64) ([]domain.StoreConsumption, error) {
	rows, err := q.QueryContext(ctx, `SELECT store_id,name,amount FROM store_consumptions WHERE work_order_code=? ORDER BY id`, workOrderCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StoreConsumption
	for rows.Next() {
		var c domain.StoreConsumption
		if err := rows.Scan(&c.StoreID, &c.Name, &c.Amount); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
