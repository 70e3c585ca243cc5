package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopstack/orderdesk/internal/domain"
)

type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so ledger writes can run
// inside the transaction that triggered them.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger is the only writer of product stock. Compensating increases floor at
// zero instead of failing so a restock is never blocked by underflow.
type Ledger struct {
	logger *slog.Logger
}

func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// Adjust applies the order's line quantities to product stock in the given
// direction. Missing products or items are logged and skipped rather than
// aborting the whole adjustment; per-item write failures abort a decrease but
// are logged and skipped on a compensating increase.
func (l *Ledger) Adjust(ctx context.Context, db DBTX, orderID int64, direction Direction) error {
	rows, err := db.QueryContext(ctx, `
		SELECT li.product_id, li.quantity, p.id
		FROM order_line_items li
		LEFT JOIN products p ON p.id = li.product_id
		WHERE li.order_id = $1
	`, orderID)
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type adjustment struct {
		productID int64
		quantity  int
	}

	var pending []adjustment
	for rows.Next() {
		var productID int64
		var quantity int
		var matched sql.NullInt64
		if err := rows.Scan(&productID, &quantity, &matched); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		if !matched.Valid {
			l.logger.Warn("skipping stock adjustment for missing product",
				"order_id", orderID, "product_id", productID)
			continue
		}
		pending = append(pending, adjustment{productID: productID, quantity: quantity})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate line items: %w", err)
	}

	if len(pending) == 0 {
		l.logger.Warn("no adjustable line items for order", "order_id", orderID)
		return nil
	}

	query := `UPDATE products SET stock_quantity = GREATEST(0, stock_quantity - $2) WHERE id = $1`
	if direction == DirectionIncrease {
		query = `UPDATE products SET stock_quantity = stock_quantity + $2 WHERE id = $1`
	}

	for _, adj := range pending {
		if _, err := db.ExecContext(ctx, query, adj.productID, adj.quantity); err != nil {
			if direction == DirectionDecrease {
				return fmt.Errorf("decrease stock for product %d: %w", adj.productID, err)
			}
			l.logger.Error("failed to restock product, skipping",
				"error", err, "order_id", orderID, "product_id", adj.productID)
		}
	}

	return nil
}

// Decrement is the checkout-path guarded decrement: it only succeeds when the
// product still has at least quantity in stock, serializing concurrent
// checkouts on the product row.
func (l *Ledger) Decrement(ctx context.Context, db DBTX, productID int64, quantity int) error {
	result, err := db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if affected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}
