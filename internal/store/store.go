// Package store persists orders and products in Postgres. Status writes are
// conditional on the expected prior status so concurrent deliveries either
// apply exactly once or visibly no-op.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/seamark/payrecon/internal/domain"
	"github.com/seamark/payrecon/internal/order"
)

// Product is the authoritative catalog record consulted at checkout.
type Product struct {
	ID            string
	TenantID      string
	Name          string
	PriceCents    int64
	Active        bool
	InStock       bool
	StockQuantity int
}

// Store wraps the Postgres connection pool.
type Store struct {
	db *sql.DB
}

// New creates a Store over db.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InsertOrder writes the order row and its items in one transaction.
func (s *Store) InsertOrder(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "begin order insert")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, tenant_id, order_number, status, subtotal_cents, shipping_cents,
		                     total_cents, currency, customer_email, customer_name, customer_phone,
		                     ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
		                     created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)`,
		o.ID, o.TenantID, o.Number, o.Status, o.SubtotalCents, o.ShippingCents,
		o.TotalCents, o.Currency, o.CustomerEmail, o.CustomerName, o.CustomerPhone,
		o.ShippingAddress.Line1, o.ShippingAddress.Line2, o.ShippingAddress.City,
		o.ShippingAddress.Region, o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.CreatedAt)
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "insert order")
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, quantity, unit_price_cents, line_total_cents)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.Name, it.Quantity, it.UnitPriceCents, it.LineTotalCents)
		if err != nil {
			return domain.Wrap(domain.EUNAVAILABLE, err, "insert order item")
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "commit order insert")
	}
	return nil
}

const orderColumns = `id, tenant_id, order_number, status, COALESCE(authorization_ref, ''),
	subtotal_cents, shipping_cents, total_cents, currency,
	customer_email, customer_name, COALESCE(customer_phone, ''),
	ship_line1, COALESCE(ship_line2, ''), ship_city, ship_region, ship_postal_code, ship_country,
	COALESCE(tracking_number, ''), COALESCE(tracking_url, ''), stock_decremented,
	review_invited_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	var o order.Order
	var reviewInvitedAt sql.NullTime
	err := row.Scan(&o.ID, &o.TenantID, &o.Number, &o.Status, &o.AuthorizationRef,
		&o.SubtotalCents, &o.ShippingCents, &o.TotalCents, &o.Currency,
		&o.CustomerEmail, &o.CustomerName, &o.CustomerPhone,
		&o.ShippingAddress.Line1, &o.ShippingAddress.Line2, &o.ShippingAddress.City,
		&o.ShippingAddress.Region, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.TrackingNumber, &o.TrackingURL, &o.StockDecremented,
		&reviewInvitedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reviewInvitedAt.Valid {
		t := reviewInvitedAt.Time
		o.ReviewInvitedAt = &t
	}
	return &o, nil
}

func (s *Store) loadItems(ctx context.Context, o *order.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, name, quantity, unit_price_cents, line_total_cents
		 FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPriceCents, &it.LineTotalCents); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// GetOrder fetches an order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, domain.Errorf(domain.ENOTFOUND, "order %s not found", id)
	}
	if err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch order")
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch order items")
	}
	return o, nil
}

// GetOrderForCustomer fetches an order only when the supplied email matches
// exactly. Possession of the email is the authorization.
func (s *Store) GetOrderForCustomer(ctx context.Context, id, email string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND customer_email = $2`, id, email)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, domain.Errorf(domain.ENOTFOUND, "order %s not found", id)
	}
	if err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch order")
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch order items")
	}
	return o, nil
}

// FindOrderByAuthRef resolves an order from a payment authorization reference.
func (s *Store) FindOrderByAuthRef(ctx context.Context, ref string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE authorization_ref = $1`, ref)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, domain.Errorf(domain.ENOTFOUND, "order not found for reference %s", ref)
	}
	if err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch order by reference")
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch order items")
	}
	return o, nil
}

// SetAuthorizationRef patches the authorization reference onto a freshly
// created order. The guard keeps the field set-at-most-once.
func (s *Store) SetAuthorizationRef(ctx context.Context, id, ref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET authorization_ref = $2, updated_at = $3
		 WHERE id = $1 AND authorization_ref IS NULL`,
		id, ref, time.Now().UTC())
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "set authorization reference")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Errorf(domain.ECONFLICT, "order %s already has an authorization reference", id)
	}
	return nil
}

// UpdateStatusIf moves the order to a new status only when it still holds the
// expected prior status. Returns false when the guard lost, which callers
// treat as a benign no-op.
func (s *Store) UpdateStatusIf(ctx context.Context, id string, to, from order.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $4 WHERE id = $1 AND status = $3`,
		id, to, from, time.Now().UTC())
	if err != nil {
		return false, domain.Wrap(domain.EUNAVAILABLE, err, "update order status")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ClaimStockDecrement flips the stock_decremented flag and reports whether
// this call won that claim. Recording the flag before the decrement call means
// a crash between decrement and ledger bookkeeping cannot double-decrement on
// a later replay.
func (s *Store) ClaimStockDecrement(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET stock_decremented = TRUE, updated_at = $2
		 WHERE id = $1 AND NOT stock_decremented`,
		id, time.Now().UTC())
	if err != nil {
		return false, domain.Wrap(domain.EUNAVAILABLE, err, "claim stock decrement")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// DecrementStock reduces stock for every line item in one transaction. A line
// without sufficient stock aborts the whole decrement.
func (s *Store) DecrementStock(ctx context.Context, items []order.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "begin stock decrement")
	}
	defer tx.Rollback()

	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock_quantity = stock_quantity - $2
			 WHERE id = $1 AND stock_quantity >= $2`,
			it.ProductID, it.Quantity)
		if err != nil {
			return domain.Wrap(domain.EUNAVAILABLE, err, "decrement stock")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Errorf(domain.ECONFLICT, "insufficient stock for product %s", it.ProductID)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "commit stock decrement")
	}
	return nil
}

// DeleteOrder removes an order and its items. Used only as the compensating
// action immediately after creation, before any customer-visible side effect.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "begin order delete")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "delete order items")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "delete order")
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "commit order delete")
	}
	return nil
}

// MarkCompensationFailed flags an orphan left behind by a failed compensating
// delete so a reconciliation sweep can find it.
func (s *Store) MarkCompensationFailed(ctx context.Context, id, note string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, compensation_note = $3, updated_at = $4 WHERE id = $1`,
		id, order.StatusFailed, note, time.Now().UTC())
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "flag compensation failure")
	}
	return nil
}

// SetTracking records shipment tracking details.
func (s *Store) SetTracking(ctx context.Context, id, number, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET tracking_number = $2, tracking_url = $3, updated_at = $4 WHERE id = $1`,
		id, number, url, time.Now().UTC())
	if err != nil {
		return domain.Wrap(domain.EUNAVAILABLE, err, "set tracking")
	}
	return nil
}

// ProductsByIDs fetches catalog records for the tenant, keyed by product id.
// Missing ids are simply absent from the result.
func (s *Store) ProductsByIDs(ctx context.Context, tenantID string, ids []string) (map[string]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, price_cents, active, in_stock, stock_quantity
		 FROM products WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, pq.Array(ids))
	if err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "fetch products")
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.PriceCents, &p.Active, &p.InStock, &p.StockQuantity); err != nil {
			return nil, domain.Wrap(domain.EUNAVAILABLE, err, "scan product")
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.EUNAVAILABLE, err, "scan products")
	}
	return out, nil
}

// String renders a product for log lines.
func (p Product) String() string {
	return fmt.Sprintf("%s (%s, %d¢, stock %d)", p.ID, p.Name, p.PriceCents, p.StockQuantity)
}
