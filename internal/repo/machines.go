package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"maintline/internal/domain"
)

func (r Repo) InsertMachine(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO machines(name,location,created_at) VALUES (?,?,?)`,
		m.Name, nullable(m.Location), FormatTime(m.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return m, fmt.Errorf("machine %s: %w", m.Name, ErrConflict)
		}
		return m, err
	}
	m.Code, err = res.LastInsertId()
	return m, err
}

func (r Repo) GetMachine(ctx context.Context, code int64) (domain.Machine, error) {
	return r.GetMachineTx(ctx, r.DB, code)
}

func (r Repo) GetMachineTx(ctx context.Context, q Querier, code int64) (domain.Machine, error) {
	return scanMachine(q.QueryRowContext(ctx, `SELECT code,name,location,created_at FROM machines WHERE code=?`, code))
}

func scanMachine(row scanner) (domain.Machine, error) {
	var m domain.Machine
	var location sql.NullString
	var created string
	err := row.Scan(&m.Code, &m.Name, &location, &created)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Location = location.String
	m.CreatedAt, err = parseTime(created)
	return m, err
}

func (r Repo) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT code,name,location,created_at FROM machines ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertEngine(ctx context.Context, e domain.Engine) (domain.Engine, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO engines(machine_code,function,created_at) VALUES (?,?,?)`,
		e.MachineCode, e.Function, FormatTime(e.CreatedAt))
	if err != nil {
		return e, err
	}
	e.Code, err = res.LastInsertId()
	return e, err
}

func (r Repo) GetEngineTx(ctx context.Context, q Querier, code int64) (domain.Engine, error) {
	var e domain.Engine
	var created string
	err := q.QueryRowContext(ctx, `SELECT code,machine_code,function,created_at FROM engines WHERE code=?`, code).
		Scan(&e.Code, &e.MachineCode, &e.Function, &created)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.CreatedAt, err = parseTime(created)
	return e, err
}

// InsertActivity stores the activity and its check-list template atomically.
func (r Repo) InsertActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `INSERT INTO activities(machine_code,name,type,frequency_hours,created_at) VALUES (?,?,?,?,?)`,
		a.MachineCode, a.Name, string(a.Type), nullableIntPtr(a.FrequencyHours), FormatTime(a.CreatedAt))
	if err != nil {
		return a, err
	}
	if a.Code, err = res.LastInsertId(); err != nil {
		return a, err
	}
	for i := range a.CheckItems {
		item := &a.CheckItems[i]
		item.ActivityCode = a.Code
		res, err := tx.ExecContext(ctx, `INSERT INTO check_items(activity_code,description) VALUES (?,?)`, a.Code, item.Description)
		if err != nil {
			return a, err
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return a, err
		}
	}
	return a, tx.Commit()
}

func (r Repo) GetActivityTx(ctx context.Context, q Querier, code int64) (domain.Activity, error) {
	var a domain.Activity
	var typ, created string
	var freq sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT code,machine_code,name,type,frequency_hours,created_at FROM activities WHERE code=?`, code).
		Scan(&a.Code, &a.MachineCode, &a.Name, &typ, &freq, &created)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Type = domain.ActivityType(typ)
	if freq.Valid {
		f := int(freq.Int64)
		a.FrequencyHours = &f
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id,activity_code,description FROM check_items WHERE activity_code=? ORDER BY id`, code)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.CheckItem
		if err := rows.Scan(&it.ID, &it.ActivityCode, &it.Description); err != nil {
			return a, err
		}
		a.CheckItems = append(a.CheckItems, it)
	}
	return a, rows.Err()
}

// MachineSummaries lists every machine with its activities and engines.
func (r Repo) MachineSummaries(ctx context.Context) ([]domain.MachineSummary, error) {
	machines, err := r.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]domain.MachineSummary, 0, len(machines))
	index := make(map[int64]int, len(machines))
	for i, m := range machines {
		index[m.Code] = i
		res = append(res, domain.MachineSummary{Code: m.Code, Name: m.Name, Activities: []domain.ActivityRef{}, Engines: []domain.EngineRef{}})
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT machine_code,code,name,type,frequency_hours FROM activities ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var machine int64
		var ref domain.ActivityRef
		var typ string
		var freq sql.NullInt64
		if err := rows.Scan(&machine, &ref.Code, &ref.Name, &typ, &freq); err != nil {
			return nil, err
		}
		ref.Type = domain.ActivityType(typ)
		if freq.Valid {
			f := int(freq.Int64)
			ref.FrequencyHours = &f
		}
		if i, ok := index[machine]; ok {
			res[i].Activities = append(res[i].Activities, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	engines, err := r.DB.QueryContext(ctx, `SELECT machine_code,code,function FROM engines ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer engines.Close()
	for engines.Next() {
		var machine int64
		var ref domain.EngineRef
		if err := engines.Scan(&machine, &ref.Code, &ref.Function); err != nil {
			return nil, err
		}
		if i, ok := index[machine]; ok {
			res[i].Engines = append(res[i].Engines, ref)
		}
	}
	return res, engines.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
