package queries

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type VMCreateParams struct {
	SliceID       int64
	Name          string
	ImageID       pgtype.Int8
	Cpu           int32
	Ram           int32
	Disk          int32
	NumInterfaces int32
	State         VmState
}

const vmCreate = `
INSERT INTO vms (slice_id, name, image_id, cpu, ram, disk, num_interfaces, state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, slice_id, name, image_id, cpu, ram, disk, num_interfaces, state, worker_id, pid, vnc_port
`

func (q *Queries) VMCreate(ctx context.Context, arg VMCreateParams) (Vm, error) {
	row := q.db.QueryRow(ctx, vmCreate,
		arg.SliceID, arg.Name, arg.ImageID, arg.Cpu, arg.Ram, arg.Disk, arg.NumInterfaces, arg.State)
	return scanVm(row)
}

const vmFindBySlice = `
SELECT id, slice_id, name, image_id, cpu, ram, disk, num_interfaces, state, worker_id, pid, vnc_port
FROM vms
WHERE slice_id = $1
ORDER BY id
`

func (q *Queries) VMFindBySlice(ctx context.Context, sliceID int64) ([]Vm, error) {
	rows, err := q.db.Query(ctx, vmFindBySlice, sliceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVms(rows)
}

const vmFindPendingBySlice = `
SELECT id, slice_id, name, image_id, cpu, ram, disk, num_interfaces, state, worker_id, pid, vnc_port
FROM vms
WHERE slice_id = $1 AND state = 'PENDING'
ORDER BY id
`

func (q *Queries) VMFindPendingBySlice(ctx context.Context, sliceID int64) ([]Vm, error) {
	rows, err := q.db.Query(ctx, vmFindPendingBySlice, sliceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVms(rows)
}

const vmUpdateName = `
UPDATE vms SET name = $2 WHERE id = $1
`

func (q *Queries) VMUpdateName(ctx context.Context, id int64, name string) error {
	_, err := q.db.Exec(ctx, vmUpdateName, id, name)
	return err
}

type VMRecordDeployParams struct {
	ID       int64
	State    VmState
	WorkerID pgtype.Int4
	Pid      pgtype.Int4
	VncPort  pgtype.Int4
}

const vmRecordDeploy = `
UPDATE vms SET state = $2, worker_id = $3, pid = $4, vnc_port = $5 WHERE id = $1
`

// VMRecordDeploy records the outcome of one remote provisioning attempt.
func (q *Queries) VMRecordDeploy(ctx context.Context, arg VMRecordDeployParams) error {
	_, err := q.db.Exec(ctx, vmRecordDeploy, arg.ID, arg.State, arg.WorkerID, arg.Pid, arg.VncPort)
	return err
}

const vmDeleteBySlice = `
DELETE FROM vms WHERE slice_id = $1
`

func (q *Queries) VMDeleteBySlice(ctx context.Context, sliceID int64) error {
	_, err := q.db.Exec(ctx, vmDeleteBySlice, sliceID)
	return err
}

const vmCountByExactName = `
SELECT count(*) FROM vms WHERE name = $1 AND id <> $2
`

func (q *Queries) VMCountByExactName(ctx context.Context, name string, excludeID int64) (int64, error) {
	row := q.db.QueryRow(ctx, vmCountByExactName, name, excludeID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const vmCountByNamePrefix = `
SELECT count(*) FROM vms WHERE name LIKE $1 || '%' AND id <> $2
`

func (q *Queries) VMCountByNamePrefix(ctx context.Context, base string, excludeID int64) (int64, error) {
	row := q.db.QueryRow(ctx, vmCountByNamePrefix, base, excludeID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

func scanVm(row pgx.Row) (Vm, error) {
	var v Vm
	err := row.Scan(&v.ID, &v.SliceID, &v.Name, &v.ImageID, &v.Cpu, &v.Ram, &v.Disk,
		&v.NumInterfaces, &v.State, &v.WorkerID, &v.Pid, &v.VncPort)
	return v, err
}

func collectVms(rows pgx.Rows) ([]Vm, error) {
	var items []Vm
	for rows.Next() {
		v, err := scanVm(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
