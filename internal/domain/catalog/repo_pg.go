package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type analysisRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &analysisRepoPG{pool: pool}
}

func (r *analysisRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const analysisCols = `id, name, description, wait_days, cost, parameters, created_at, updated_at`

func (r *analysisRepoPG) scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	var params []byte
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.WaitDays, &a.Cost, &params, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &a.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &a, nil
}

func (r *analysisRepoPG) Create(ctx context.Context, a *Analysis) error {
	a.ID = uuid.New()
	params, err := json.Marshal(a.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO analysis (id, name, description, wait_days, cost, parameters)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Name, a.Description, a.WaitDays, a.Cost, params)
	return err
}

func (r *analysisRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	return r.scanAnalysis(r.conn(ctx).QueryRow(ctx, `SELECT `+analysisCols+` FROM analysis WHERE id = $1`, id))
}

func (r *analysisRepoPG) Update(ctx context.Context, a *Analysis) error {
	params, err := json.Marshal(a.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE analysis SET name=$2, description=$3, wait_days=$4, cost=$5, parameters=$6, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Name, a.Description, a.WaitDays, a.Cost, params)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *analysisRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM analysis WHERE id = $1`, id)
	return err
}

func (r *analysisRepoPG) List(ctx context.Context, limit, offset int) ([]*Analysis, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM analysis`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+analysisCols+` FROM analysis ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Analysis
	for rows.Next() {
		a, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
