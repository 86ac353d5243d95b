package queries

import (
	"context"
)

const imageFindByID = `
SELECT id, name, path, sha256, size, reference_count
FROM images
WHERE id = $1
`

func (q *Queries) ImageFindByID(ctx context.Context, id int64) (Image, error) {
	row := q.db.QueryRow(ctx, imageFindByID, id)
	var i Image
	err := row.Scan(&i.ID, &i.Name, &i.Path, &i.Sha256, &i.Size, &i.ReferenceCount)
	return i, err
}

const imageFindAll = `
SELECT id, name, path, sha256, size, reference_count
FROM images
ORDER BY id
`

func (q *Queries) ImageFindAll(ctx context.Context) ([]Image, error) {
	rows, err := q.db.Query(ctx, imageFindAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Image
	for rows.Next() {
		var i Image
		if err := rows.Scan(&i.ID, &i.Name, &i.Path, &i.Sha256, &i.Size, &i.ReferenceCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const imageFindByNameAndSize = `
SELECT id, name, path, sha256, size, reference_count
FROM images
WHERE name = $1 AND size = $2
`

func (q *Queries) ImageFindByNameAndSize(ctx context.Context, name string, size int64) (Image, error) {
	row := q.db.QueryRow(ctx, imageFindByNameAndSize, name, size)
	var i Image
	err := row.Scan(&i.ID, &i.Name, &i.Path, &i.Sha256, &i.Size, &i.ReferenceCount)
	return i, err
}

type ImageCreateParams struct {
	Name   string
	Path   string
	Sha256 string
	Size   int64
}

const imageCreate = `
INSERT INTO images (name, path, sha256, size, reference_count)
VALUES ($1, $2, $3, $4, 0)
RETURNING id, name, path, sha256, size, reference_count
`

func (q *Queries) ImageCreate(ctx context.Context, arg ImageCreateParams) (Image, error) {
	row := q.db.QueryRow(ctx, imageCreate, arg.Name, arg.Path, arg.Sha256, arg.Size)
	var i Image
	err := row.Scan(&i.ID, &i.Name, &i.Path, &i.Sha256, &i.Size, &i.ReferenceCount)
	return i, err
}

const imageDelete = `
DELETE FROM images WHERE id = $1
`

func (q *Queries) ImageDelete(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, imageDelete, id)
	return err
}

const flavorFindAll = `
SELECT id, name, cpu, ram, disk
FROM flavors
ORDER BY id
`

func (q *Queries) FlavorFindAll(ctx context.Context) ([]Flavor, error) {
	rows, err := q.db.Query(ctx, flavorFindAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Flavor
	for rows.Next() {
		var f Flavor
		if err := rows.Scan(&f.ID, &f.Name, &f.Cpu, &f.Ram, &f.Disk); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
