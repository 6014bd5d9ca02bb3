package samples

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type sampleRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &sampleRepoPG{pool: pool}
}

func (r *sampleRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sampleCols = `id, order_id, analysis_id, state, results, created_at, updated_at`

func (r *sampleRepoPG) scanSample(row pgx.Row) (*Sample, error) {
	var s Sample
	var results []byte
	err := row.Scan(&s.ID, &s.OrderID, &s.AnalysisID, &s.State, &results, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(results, &s.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return &s, nil
}

func (r *sampleRepoPG) Create(ctx context.Context, s *Sample) error {
	s.ID = uuid.New()
	results, err := json.Marshal(s.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO sample (id, order_id, analysis_id, state, results)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.OrderID, s.AnalysisID, s.State, results)
	return err
}

func (r *sampleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Sample, error) {
	return r.scanSample(r.conn(ctx).QueryRow(ctx, `SELECT `+sampleCols+` FROM sample WHERE id = $1`, id))
}

func (r *sampleRepoPG) ReplaceResults(ctx context.Context, id uuid.UUID, results []Result, state string) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE sample SET results=$2, state=$3, updated_at=NOW() WHERE id = $1`,
		id, payload, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sampleRepoPG) UpdateState(ctx context.Context, id uuid.UUID, state string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE sample SET state=$2, updated_at=NOW() WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sampleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM sample WHERE id = $1`, id)
	return err
}

func (r *sampleRepoPG) List(ctx context.Context, limit, offset int) ([]*Sample, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM sample`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+sampleCols+` FROM sample ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *sampleRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Sample, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+sampleCols+` FROM sample WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *sampleRepoPG) ListIDsByOrder(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id FROM sample WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *sampleRepoPG) LockOrderForGeneration(ctx context.Context, orderID uuid.UUID) error {
	var id uuid.UUID
	return r.conn(ctx).QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
}

func (r *sampleRepoPG) ListCompletedForUser(ctx context.Context, userID uuid.UUID) ([]*Sample, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.id, s.order_id, s.analysis_id, s.state, s.results, s.created_at, s.updated_at
		FROM sample s
		JOIN orders o ON o.id = s.order_id
		WHERE o.user_id = $1 AND o.payment_status = 'paid' AND s.state = 'completed'
		ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *sampleRepoPG) collect(rows pgx.Rows) ([]*Sample, error) {
	var items []*Sample
	for rows.Next() {
		s, err := r.scanSample(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
