package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/shopstack/orderdesk/internal/domain"
	"github.com/shopstack/orderdesk/internal/inventory"
)

// CheckoutLine is one requested line in a checkout. Prices are resolved from
// the product row inside the transaction; the discount fields are snapshotted
// onto the line item as a historical record.
type CheckoutLine struct {
	ProductID      int64
	Quantity       int
	DiscountID     *int64
	DiscountType   string
	DiscountAmount int64
}

type OrderRepository struct {
	db     *sql.DB
	ledger *inventory.Ledger
}

func NewOrderRepository(db *sql.DB, ledger *inventory.Ledger) *OrderRepository {
	return &OrderRepository{db: db, ledger: ledger}
}

// CreateOrder runs the checkout as one transaction: draw the order number,
// validate every line against live stock under row locks, insert the order and
// its items, then decrement stock. Any failure before commit leaves no order,
// no items, and no stock change behind.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order, lines []CheckoutLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("next order number: %w", err)
	}
	order.OrderNumber = fmt.Sprintf("SO-%06d", seq)

	items := make([]domain.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		var product domain.Product
		err := tx.QueryRowContext(ctx, `
			SELECT id, name, price, stock_quantity
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, line.ProductID).Scan(&product.ID, &product.Name, &product.Price, &product.StockQuantity)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %d: %w", line.ProductID, domain.ErrProductNotFound)
		}
		if err != nil {
			return fmt.Errorf("load product %d: %w", line.ProductID, err)
		}

		if line.Quantity > product.StockQuantity {
			return fmt.Errorf("product %d: %w", line.ProductID, domain.ErrInsufficientStock)
		}

		unitPrice := product.Price - line.DiscountAmount
		if unitPrice < 0 {
			unitPrice = 0
		}

		items = append(items, domain.OrderLineItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPrice:      unitPrice,
			OriginalPrice:  product.Price,
			DiscountID:     line.DiscountID,
			DiscountType:   line.DiscountType,
			DiscountAmount: line.DiscountAmount,
			Subtotal:       int64(line.Quantity) * unitPrice,
		})
	}

	order.Subtotal = 0
	for _, item := range items {
		order.Subtotal += item.Subtotal
	}
	order.Total = order.Subtotal + order.ShippingFee - order.DiscountAmount
	if order.Total < 0 {
		order.Total = 0
	}

	var guestName, guestPhone, guestEmail *string
	if order.Guest != nil {
		guestName, guestPhone, guestEmail = &order.Guest.Name, &order.Guest.Phone, &order.Guest.Email
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, status, subtotal, shipping_fee, discount_amount, total,
			shipping_address, payment_method,
			customer_id, guest_name, guest_phone, guest_email,
			manual_discount_id, auto_discount_ids, discount_usage_recorded,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, order.OrderNumber, order.Status, order.Subtotal, order.ShippingFee,
		order.DiscountAmount, order.Total, order.ShippingAddress, order.PaymentMethod,
		order.CustomerID, guestName, guestPhone, guestEmail,
		order.ManualDiscountID, pq.Array(order.AutoDiscountIDs),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_line_items (
				order_id, product_id, quantity, unit_price, original_price,
				discount_id, discount_type, discount_amount, subtotal
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, items[i].OrderID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice,
			items[i].OriginalPrice, items[i].DiscountID, nullableString(items[i].DiscountType),
			items[i].DiscountAmount, items[i].Subtotal,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}

	// All lines validated and persisted; only now touch stock.
	for _, item := range items {
		if err := r.ledger.Decrement(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("product %d: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	order.Items = items
	return nil
}

const orderColumns = `
	id, order_number, status, subtotal, shipping_fee, discount_amount, total,
	shipping_address, payment_method,
	customer_id, guest_name, guest_phone, guest_email,
	manual_discount_id, auto_discount_ids, discount_usage_recorded,
	approved_by, created_at, updated_at, approved_at, shipped_at, delivered_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var guestName, guestPhone, guestEmail sql.NullString
	var autoDiscountIDs pq.Int64Array

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.Status,
		&order.Subtotal, &order.ShippingFee, &order.DiscountAmount, &order.Total,
		&order.ShippingAddress, &order.PaymentMethod,
		&order.CustomerID, &guestName, &guestPhone, &guestEmail,
		&order.ManualDiscountID, &autoDiscountIDs, &order.DiscountUsageRecorded,
		&order.ApprovedBy, &order.CreatedAt, &order.UpdatedAt,
		&order.ApprovedAt, &order.ShippedAt, &order.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}

	order.AutoDiscountIDs = autoDiscountIDs
	if guestEmail.Valid {
		order.Guest = &domain.GuestContact{
			Name:  guestName.String,
			Phone: guestPhone.String,
			Email: guestEmail.String,
		}
	}

	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getOne(ctx, `WHERE order_number = $1`, number)
}

func (r *OrderRepository) getOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// loadItems always returns a non-nil slice; an order with zero items is an
// empty list, never a placeholder.
func (r *OrderRepository) loadItems(ctx context.Context, orderID int64) ([]domain.OrderLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT li.id, li.order_id, li.product_id, COALESCE(p.name, ''),
		       li.quantity, li.unit_price, li.original_price,
		       li.discount_id, COALESCE(li.discount_type, ''), li.discount_amount, li.subtotal
		FROM order_line_items li
		LEFT JOIN products p ON p.id = li.product_id
		WHERE li.order_id = $1
		ORDER BY li.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []domain.OrderLineItem{}
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.OriginalPrice,
			&item.DiscountID, &item.DiscountType, &item.DiscountAmount, &item.Subtotal,
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	return items, nil
}

// TransitionStatus applies one status edge under a row lock on the order, with
// the inventory side effects of that edge inside the same transaction. It
// returns the hydrated order after commit.
func (r *OrderRepository) TransitionStatus(ctx context.Context, orderID int64, to domain.OrderStatus, staffID *int64) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var from domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrIllegalTransition)
	}

	switch {
	case to == domain.OrderStatusApproved && from == domain.OrderStatusPendingApproval:
		if err := r.ledger.Adjust(ctx, tx, orderID, inventory.DirectionDecrease); err != nil {
			return nil, fmt.Errorf("commit stock: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET approved_by = $2, approved_at = NOW() WHERE id = $1
		`, orderID, staffID); err != nil {
			return nil, fmt.Errorf("record approval: %w", err)
		}

	case to == domain.OrderStatusCancelled && domain.RestocksOnCancel(from):
		if err := r.ledger.Adjust(ctx, tx, orderID, inventory.DirectionIncrease); err != nil {
			return nil, fmt.Errorf("restock: %w", err)
		}

	case to == domain.OrderStatusShipping:
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET shipped_at = NOW() WHERE id = $1`, orderID); err != nil {
			return nil, fmt.Errorf("record shipment: %w", err)
		}

	case to == domain.OrderStatusDelivered:
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET delivered_at = NOW() WHERE id = $1`, orderID); err != nil {
			return nil, fmt.Errorf("record delivery: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, orderID, to); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return r.GetByID(ctx, orderID)
}

// RunDeliverySweep moves orders that entered shipping before cutoff straight
// to delivered, modeling carrier-delivery inference without a webhook.
func (r *OrderRepository) RunDeliverySweep(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, delivered_at = NOW(), updated_at = NOW()
		WHERE status = $2 AND shipped_at IS NOT NULL AND shipped_at < $3
	`, domain.OrderStatusDelivered, domain.OrderStatusShipping, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delivery sweep: %w", err)
	}

	return result.RowsAffected()
}

// RecordDiscountUsage bumps the used counters of the order's discounts exactly
// once. It runs after checkout commits and is best-effort by policy: a failure
// here never rolls back the order.
func (r *OrderRepository) RecordDiscountUsage(ctx context.Context, orderID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var manualID sql.NullInt64
	var autoIDs pq.Int64Array
	var recorded bool
	err = tx.QueryRowContext(ctx, `
		SELECT manual_discount_id, auto_discount_ids, discount_usage_recorded
		FROM orders WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&manualID, &autoIDs, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("load discount linkage: %w", err)
	}

	if recorded {
		return nil
	}

	ids := []int64(autoIDs)
	if manualID.Valid {
		ids = append(ids, manualID.Int64)
	}

	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE discounts SET used_count = used_count + 1 WHERE id = ANY($1)
		`, pq.Array(ids)); err != nil {
			return fmt.Errorf("bump discount usage: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET discount_usage_recorded = true, updated_at = NOW() WHERE id = $1
	`, orderID); err != nil {
		return fmt.Errorf("flag discount usage: %w", err)
	}

	return tx.Commit()
}

// List returns all orders newest first, hydrating items with one batched query.
func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Items = []domain.OrderLineItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT li.id, li.order_id, li.product_id, COALESCE(p.name, ''),
		       li.quantity, li.unit_price, li.original_price,
		       li.discount_id, COALESCE(li.discount_type, ''), li.discount_amount, li.subtotal
		FROM order_line_items li
		LEFT JOIN products p ON p.id = li.product_id
		WHERE li.order_id = ANY($1)
		ORDER BY li.id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderLineItem
		if err := itemRows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.OriginalPrice,
			&item.DiscountID, &item.DiscountType, &item.DiscountAmount, &item.Subtotal,
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
