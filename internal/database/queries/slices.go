package queries

import (
	"context"
)

type SliceCreateParams struct {
	OwnerID  int64
	Name     string
	Status   SliceStatus
	Template []byte
}

const sliceCreate = `
INSERT INTO slices (owner_id, name, status, template)
VALUES ($1, $2, $3, $4)
RETURNING id, owner_id, name, status, template, created_at
`

func (q *Queries) SliceCreate(ctx context.Context, arg SliceCreateParams) (Slice, error) {
	row := q.db.QueryRow(ctx, sliceCreate, arg.OwnerID, arg.Name, arg.Status, arg.Template)
	var s Slice
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Status, &s.Template, &s.CreatedAt)
	return s, err
}

const sliceFindByID = `
SELECT id, owner_id, name, status, template, created_at
FROM slices
WHERE id = $1
`

func (q *Queries) SliceFindByID(ctx context.Context, id int64) (Slice, error) {
	row := q.db.QueryRow(ctx, sliceFindByID, id)
	var s Slice
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Status, &s.Template, &s.CreatedAt)
	return s, err
}

// SliceWithVMIDs is a listing row: one slice plus the ids of its VMs.
type SliceWithVMIDs struct {
	Slice
	VmIDs []int64
}

const sliceFindByOwner = `
SELECT s.id, s.owner_id, s.name, s.status, s.template, s.created_at,
       COALESCE(array_agg(v.id ORDER BY v.id) FILTER (WHERE v.id IS NOT NULL), '{}') AS vm_ids
FROM slices s
LEFT JOIN vms v ON v.slice_id = s.id
WHERE s.owner_id = $1
GROUP BY s.id
ORDER BY s.id
`

func (q *Queries) SliceFindByOwner(ctx context.Context, ownerID int64) ([]SliceWithVMIDs, error) {
	rows, err := q.db.Query(ctx, sliceFindByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SliceWithVMIDs
	for rows.Next() {
		var s SliceWithVMIDs
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Status, &s.Template, &s.CreatedAt, &s.VmIDs); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const sliceUpdateStatus = `
UPDATE slices SET status = $2 WHERE id = $1
`

func (q *Queries) SliceUpdateStatus(ctx context.Context, id int64, status SliceStatus) error {
	_, err := q.db.Exec(ctx, sliceUpdateStatus, id, status)
	return err
}

const sliceUpdateName = `
UPDATE slices SET name = $2 WHERE id = $1
`

func (q *Queries) SliceUpdateName(ctx context.Context, id int64, name string) error {
	_, err := q.db.Exec(ctx, sliceUpdateName, id, name)
	return err
}

type SliceReplaceTopologyParams struct {
	ID       int64
	Name     string
	Template []byte
}

const sliceReplaceTopology = `
UPDATE slices SET name = $2, template = $3, status = 'PENDING' WHERE id = $1
`

// SliceReplaceTopology swaps name and template and resets status to
// PENDING; the caller reinserts VMs and links in the same transaction.
func (q *Queries) SliceReplaceTopology(ctx context.Context, arg SliceReplaceTopologyParams) error {
	_, err := q.db.Exec(ctx, sliceReplaceTopology, arg.ID, arg.Name, arg.Template)
	return err
}

const sliceDelete = `
DELETE FROM slices WHERE id = $1
`

func (q *Queries) SliceDelete(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, sliceDelete, id)
	return err
}

const sliceCountByExactName = `
SELECT count(*) FROM slices WHERE name = $1 AND id <> $2
`

// SliceCountByExactName counts other slices carrying exactly this name.
func (q *Queries) SliceCountByExactName(ctx context.Context, name string, excludeID int64) (int64, error) {
	row := q.db.QueryRow(ctx, sliceCountByExactName, name, excludeID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const sliceCountByNamePrefix = `
SELECT count(*) FROM slices WHERE name LIKE $1 || '%' AND id <> $2
`

// SliceCountByNamePrefix counts other slices whose name starts with the
// given base string. Used to pick the -<N> rename suffix at deploy time.
func (q *Queries) SliceCountByNamePrefix(ctx context.Context, base string, excludeID int64) (int64, error) {
	row := q.db.QueryRow(ctx, sliceCountByNamePrefix, base, excludeID)
	var n int64
	err := row.Scan(&n)
	return n, err
}
