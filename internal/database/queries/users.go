package queries

import (
	"context"
)

const userFindByUsername = `
SELECT id, username, password_hash, role
FROM users
WHERE username = $1
`

func (q *Queries) UserFindByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRow(ctx, userFindByUsername, username)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	return u, err
}
