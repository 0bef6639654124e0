// Package friends stores friendships as ordered username pairs.
package friends

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophrelay/internal/dbx"
	"github.com/dmitrijs2005/gophrelay/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Add(ctx context.Context, f models.Friendship) (bool, error) {
	query :=
		`INSERT INTO friendships (user_a, user_b)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, f.UserA, f.UserB)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) Exists(ctx context.Context, f models.Friendship) (bool, error) {
	query :=
		`SELECT EXISTS (
		     SELECT 1 FROM friendships WHERE user_a = $1 AND user_b = $2
		 )
		 `

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, f.UserA, f.UserB).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *SQLRepository) ListFor(ctx context.Context, user string) ([]string, error) {
	query :=
		`SELECT user_b FROM friendships WHERE user_a = $1
		 UNION
		 SELECT user_a FROM friendships WHERE user_b = $1
		 ORDER BY 1
		 `

	rows, err := r.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
