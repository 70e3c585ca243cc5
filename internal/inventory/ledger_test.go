package inventory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopstack/orderdesk/internal/domain"
)

// stubConn serves canned line item rows and records every stock write, so the
// ledger's adjustment policy can be tested without a database.
type stubConn struct {
	lineRows     [][]driver.Value
	execErr      map[int64]error
	execAffected map[int64]int64
	execs        []execCall
}

type execCall struct {
	query     string
	productID int64
	quantity  int64
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

func (c *stubConn) QueryContext(_ context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	return &stubRows{rows: c.lineRows}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	productID := args[0].Value.(int64)
	if err := c.execErr[productID]; err != nil {
		return nil, err
	}

	c.execs = append(c.execs, execCall{query: query, productID: productID, quantity: args[1].Value.(int64)})

	affected := int64(1)
	if c.execAffected != nil {
		if n, ok := c.execAffected[productID]; ok {
			affected = n
		}
	}
	return driver.RowsAffected(affected), nil
}

type stubRows struct {
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return []string{"product_id", "quantity", "id"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type stubConnector struct{ conn *stubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

func stubDB(conn *stubConn) *sql.DB {
	return sql.OpenDB(stubConnector{conn: conn})
}

// lineRow builds one joined line item row; matched reports whether the
// product row still exists.
func lineRow(productID, quantity int64, matched bool) []driver.Value {
	var joined driver.Value
	if matched {
		joined = productID
	}
	return []driver.Value{productID, quantity, joined}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLedger_Adjust(t *testing.T) {
	ctx := context.Background()

	t.Run("decrease floors at zero", func(t *testing.T) {
		conn := &stubConn{lineRows: [][]driver.Value{lineRow(1, 5, true)}}
		ledger := NewLedger(testLogger())

		if err := ledger.Adjust(ctx, stubDB(conn), 10, DirectionDecrease); err != nil {
			t.Fatalf("adjust failed: %v", err)
		}

		if len(conn.execs) != 1 {
			t.Fatalf("expected 1 stock write, got %d", len(conn.execs))
		}
		if !strings.Contains(conn.execs[0].query, "GREATEST(0") {
			t.Errorf("decrease must floor stock at zero, got query %q", conn.execs[0].query)
		}
		if conn.execs[0].quantity != 5 {
			t.Errorf("expected quantity 5, got %d", conn.execs[0].quantity)
		}
	})

	t.Run("missing product is skipped, not fatal", func(t *testing.T) {
		conn := &stubConn{lineRows: [][]driver.Value{
			lineRow(1, 2, false),
			lineRow(2, 3, true),
		}}
		ledger := NewLedger(testLogger())

		if err := ledger.Adjust(ctx, stubDB(conn), 10, DirectionDecrease); err != nil {
			t.Fatalf("adjust must survive a deleted product: %v", err)
		}

		if len(conn.execs) != 1 {
			t.Fatalf("expected 1 stock write, got %d", len(conn.execs))
		}
		if conn.execs[0].productID != 2 {
			t.Errorf("expected a write for product 2 only, got %d", conn.execs[0].productID)
		}
	})

	t.Run("no adjustable items is a no-op", func(t *testing.T) {
		conn := &stubConn{lineRows: [][]driver.Value{lineRow(1, 2, false)}}
		ledger := NewLedger(testLogger())

		if err := ledger.Adjust(ctx, stubDB(conn), 10, DirectionDecrease); err != nil {
			t.Fatalf("adjust failed: %v", err)
		}
		if len(conn.execs) != 0 {
			t.Errorf("expected no stock writes, got %d", len(conn.execs))
		}
	})

	t.Run("write failure aborts a decrease", func(t *testing.T) {
		conn := &stubConn{
			lineRows: [][]driver.Value{lineRow(1, 2, true), lineRow(2, 3, true)},
			execErr:  map[int64]error{1: errors.New("products table unavailable")},
		}
		ledger := NewLedger(testLogger())

		if err := ledger.Adjust(ctx, stubDB(conn), 10, DirectionDecrease); err == nil {
			t.Fatal("expected a failed decrease to surface")
		}
	})

	t.Run("write failure is skipped on a compensating increase", func(t *testing.T) {
		conn := &stubConn{
			lineRows: [][]driver.Value{lineRow(1, 2, true), lineRow(2, 3, true)},
			execErr:  map[int64]error{1: errors.New("products table unavailable")},
		}
		ledger := NewLedger(testLogger())

		if err := ledger.Adjust(ctx, stubDB(conn), 10, DirectionIncrease); err != nil {
			t.Fatalf("a restock must not abort on one failed product: %v", err)
		}

		if len(conn.execs) != 1 || conn.execs[0].productID != 2 {
			t.Fatalf("expected the surviving product to be restocked, got %+v", conn.execs)
		}
		if !strings.Contains(conn.execs[0].query, "stock_quantity + ") {
			t.Errorf("increase must add stock, got query %q", conn.execs[0].query)
		}
	})
}

func TestLedger_Decrement(t *testing.T) {
	ctx := context.Background()

	t.Run("guarded decrement succeeds with stock", func(t *testing.T) {
		conn := &stubConn{}
		ledger := NewLedger(testLogger())

		if err := ledger.Decrement(ctx, stubDB(conn), 1, 2); err != nil {
			t.Fatalf("decrement failed: %v", err)
		}

		if len(conn.execs) != 1 {
			t.Fatalf("expected 1 stock write, got %d", len(conn.execs))
		}
		if !strings.Contains(conn.execs[0].query, "stock_quantity >= ") {
			t.Errorf("decrement must guard on available stock, got query %q", conn.execs[0].query)
		}
	})

	t.Run("insufficient stock is reported", func(t *testing.T) {
		conn := &stubConn{execAffected: map[int64]int64{1: 0}}
		ledger := NewLedger(testLogger())

		err := ledger.Decrement(ctx, stubDB(conn), 1, 2)
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
	})
}
