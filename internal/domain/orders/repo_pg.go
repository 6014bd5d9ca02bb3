package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, user_id, payment_status, payment_method, line_items,
	total_due, amount_paid, discount, notes, created_at, updated_at`

func (r *orderRepoPG) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var items []byte
	err := row.Scan(&o.ID, &o.UserID, &o.PaymentStatus, &o.PaymentMethod, &items,
		&o.TotalDue, &o.AmountPaid, &o.Discount, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO orders (id, user_id, payment_status, payment_method, line_items,
			total_due, amount_paid, discount, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.UserID, o.PaymentStatus, o.PaymentMethod, items,
		o.TotalDue, o.AmountPaid, o.Discount, o.Notes)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
}

// Update persists the patchable payment fields. Line items and totals are
// fixed at creation and deliberately absent from the statement.
func (r *orderRepoPG) Update(ctx context.Context, o *Order) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET payment_status=$2, payment_method=$3, amount_paid=$4, notes=$5, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.PaymentStatus, o.PaymentMethod, o.AmountPaid, o.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *orderRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	return err
}

func (r *orderRepoPG) List(ctx context.Context, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}
