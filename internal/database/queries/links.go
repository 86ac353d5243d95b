package queries

import (
	"context"
)

type LinkCreateParams struct {
	SliceID int64
	VmAID   int64
	VmBID   int64
	VlanID  int32
}

const linkCreate = `
INSERT INTO links (slice_id, vm_a_id, vm_b_id, vlan_id)
VALUES ($1, $2, $3, $4)
RETURNING id, slice_id, vm_a_id, vm_b_id, vlan_id
`

func (q *Queries) LinkCreate(ctx context.Context, arg LinkCreateParams) (Link, error) {
	row := q.db.QueryRow(ctx, linkCreate, arg.SliceID, arg.VmAID, arg.VmBID, arg.VlanID)
	var l Link
	err := row.Scan(&l.ID, &l.SliceID, &l.VmAID, &l.VmBID, &l.VlanID)
	return l, err
}

const linkFindBySlice = `
SELECT id, slice_id, vm_a_id, vm_b_id, vlan_id
FROM links
WHERE slice_id = $1
ORDER BY id
`

func (q *Queries) LinkFindBySlice(ctx context.Context, sliceID int64) ([]Link, error) {
	rows, err := q.db.Query(ctx, linkFindBySlice, sliceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.SliceID, &l.VmAID, &l.VmBID, &l.VlanID); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const linkDeleteBySlice = `
DELETE FROM links WHERE slice_id = $1
`

func (q *Queries) LinkDeleteBySlice(ctx context.Context, sliceID int64) error {
	_, err := q.db.Exec(ctx, linkDeleteBySlice, sliceID)
	return err
}
