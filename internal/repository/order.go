package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-engine/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, status,
		subtotal, discount_code, discount_amount, shipping_cost, total,
		ship_name, ship_phone, ship_address, ship_city, ship_postal,
		note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, variant_id, product_name, variant_name, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	orderColumns = `id, order_number, user_id, status,
		subtotal, discount_code, discount_amount, shipping_cost, total,
		ship_name, ship_phone, ship_address, ship_city, ship_postal,
		note, created_at, paid_at, shipped_at, completed_at, cancelled_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	orderNumberExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`

	getOrderItemsSQL = `SELECT id, variant_id, product_name, variant_name, price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, note = $3,
		paid_at = $4, shipped_at = $5, completed_at = $6, cancelled_at = $7
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// live in their own table; both loaders return the order fully hydrated.
type OrderRepository struct {
	db querier
}

// NewOrderRepository returns an OrderRepository that uses the given
// connection or transaction.
func NewOrderRepository(db querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order together with its items.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.db.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, string(o.Status),
		o.Subtotal, o.DiscountCode, o.DiscountAmount, o.ShippingCost, o.Total,
		o.Shipping.Name, o.Shipping.Phone, o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode,
		o.Note, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}

	for _, item := range o.Items {
		_, err := r.db.Exec(ctx, createOrderItemSQL,
			item.ID, o.ID, item.VariantID, item.ProductName, item.VariantName,
			item.Price, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("creating item for order %q: %w", o.Number, err)
		}
	}
	return nil
}

// GetByID returns the order with its items, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns the order with its items, or order.ErrNotFound.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	itemRows, err := r.db.Query(ctx, getOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", o.Number, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items for order %q: %w", o.Number, err)
	}
	return &o, nil
}

// NumberExists reports whether an order number is already taken.
func (r *OrderRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, orderNumberExistsSQL, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order number %q: %w", number, err)
	}
	return exists, nil
}

// UpdateStatus persists the order's status, note and lifecycle timestamps.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), o.Note,
		o.PaidAt, o.ShippedAt, o.CompletedAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		status   string
		subtotal, discountAmount, shippingCost, total decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &status,
		&subtotal, &o.DiscountCode, &discountAmount, &shippingCost, &total,
		&o.Shipping.Name, &o.Shipping.Phone, &o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode,
		&o.Note, &o.CreatedAt, &o.PaidAt, &o.ShippedAt, &o.CompletedAt, &o.CancelledAt,
	)
	o.Status = order.Status(status)
	o.Subtotal = subtotal
	o.DiscountAmount = discountAmount
	o.ShippingCost = shippingCost
	o.Total = total
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.OrderItem, error) {
	var (
		item  order.OrderItem
		price decimal.Decimal
	)
	err := row.Scan(&item.ID, &item.VariantID, &item.ProductName, &item.VariantName, &price, &item.Quantity)
	item.Price = price
	return item, err
}
