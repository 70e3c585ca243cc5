package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopstack/orderdesk/internal/domain"
)

type fakeOrders struct {
	orders map[int64]*domain.Order
}

func (f *fakeOrders) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	return f.orders[id], nil
}

func (f *fakeOrders) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	for _, order := range f.orders {
		if order.OrderNumber == number {
			return order, nil
		}
	}
	return nil, nil
}

type fakeDirectory struct {
	customers map[int64]*domain.Customer
}

func (f *fakeDirectory) GetByID(_ context.Context, id int64) (*domain.Customer, error) {
	return f.customers[id], nil
}

type capturingPublisher struct {
	events []any
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.events = append(p.events, event)
	return nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, errors.New("limiter backend down")
}

func ownerID(id int64) *int64 {
	return &id
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func guestOrder() *domain.Order {
	return &domain.Order{
		ID:          1,
		OrderNumber: "SO-000001",
		Status:      domain.OrderStatusShipping,
		Guest:       &domain.GuestContact{Name: "Bob", Phone: "555-0101", Email: "bob@example.com"},
		CreatedAt:   time.Now().UTC(),
	}
}

func newTestService(orders *fakeOrders, directory *fakeDirectory) (*Service, *MemoryCodeStore, *capturingPublisher) {
	store := NewMemoryCodeStore()
	producer := &capturingPublisher{}
	service := NewService(orders, directory, store, store, producer, testLogger())
	return service, store, producer
}

func TestService_RequestCode(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a code when email matches", func(t *testing.T) {
		service, store, producer := newTestService(&fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}, &fakeDirectory{})

		if err := service.RequestCode(ctx, "client-1", "SO-000001", "Bob@Example.com"); err != nil {
			t.Fatalf("request failed: %v", err)
		}

		if len(producer.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(producer.events))
		}
		event := producer.events[0].(domain.TrackingCodeIssuedEvent)
		if len(event.Code) != 6 {
			t.Errorf("expected a 6-digit code, got %q", event.Code)
		}

		ok, err := store.VerifyAndDelete(ctx, codeKey("SO-000001", "bob@example.com"), event.Code)
		if err != nil || !ok {
			t.Errorf("expected stored code to verify, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("email mismatch stores nothing", func(t *testing.T) {
		service, store, producer := newTestService(&fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}, &fakeDirectory{})

		err := service.RequestCode(ctx, "client-1", "SO-000001", "eve@example.com")
		if !errors.Is(err, domain.ErrEmailMismatch) {
			t.Fatalf("expected ErrEmailMismatch, got %v", err)
		}
		if len(producer.events) != 0 {
			t.Errorf("no event expected, got %d", len(producer.events))
		}
		if len(store.codes) != 0 {
			t.Errorf("no code must be stored, got %d", len(store.codes))
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		service, _, _ := newTestService(&fakeOrders{orders: map[int64]*domain.Order{}}, &fakeDirectory{})

		err := service.RequestCode(ctx, "client-1", "SO-999999", "bob@example.com")
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("fourth request within the window is rejected", func(t *testing.T) {
		service, _, _ := newTestService(&fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}, &fakeDirectory{})

		for i := 0; i < 3; i++ {
			if err := service.RequestCode(ctx, "client-1", "SO-000001", "bob@example.com"); err != nil {
				t.Fatalf("request %d failed: %v", i+1, err)
			}
		}

		err := service.RequestCode(ctx, "client-1", "SO-000001", "bob@example.com")
		if !errors.Is(err, domain.ErrTooManyRequests) {
			t.Fatalf("expected ErrTooManyRequests, got %v", err)
		}
	})

	t.Run("mismatched requests still burn the budget", func(t *testing.T) {
		service, _, _ := newTestService(&fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}, &fakeDirectory{})

		for i := 0; i < 3; i++ {
			err := service.RequestCode(ctx, "client-1", "SO-000001", "eve@example.com")
			if !errors.Is(err, domain.ErrEmailMismatch) {
				t.Fatalf("expected ErrEmailMismatch, got %v", err)
			}
		}

		err := service.RequestCode(ctx, "client-1", "SO-000001", "eve@example.com")
		if !errors.Is(err, domain.ErrTooManyRequests) {
			t.Fatalf("expected ErrTooManyRequests, got %v", err)
		}
	})

	t.Run("limiter failure denies the request", func(t *testing.T) {
		orders := &fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}
		store := NewMemoryCodeStore()
		service := NewService(orders, &fakeDirectory{}, store, failingLimiter{}, nil, testLogger())

		err := service.RequestCode(ctx, "client-1", "SO-000001", "bob@example.com")
		if !errors.Is(err, domain.ErrTooManyRequests) {
			t.Fatalf("expected ErrTooManyRequests on limiter failure, got %v", err)
		}
	})

	t.Run("resolves registered customer email", func(t *testing.T) {
		order := &domain.Order{
			ID: 2, OrderNumber: "SO-000002",
			Status: domain.OrderStatusApproved, CustomerID: ownerID(7),
		}
		directory := &fakeDirectory{customers: map[int64]*domain.Customer{
			7: {ID: 7, Email: "ana@example.com", Phone: "555-0202", Role: domain.RoleCustomer},
		}}
		service, _, producer := newTestService(&fakeOrders{orders: map[int64]*domain.Order{2: order}}, directory)

		if err := service.RequestCode(ctx, "client-1", "2", "ana@example.com"); err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if len(producer.events) != 1 {
			t.Errorf("expected 1 event, got %d", len(producer.events))
		}
	})
}

func TestService_VerifyCode(t *testing.T) {
	ctx := context.Background()

	issue := func(t *testing.T) (*Service, *MemoryCodeStore, string) {
		t.Helper()

		service, store, producer := newTestService(&fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}, &fakeDirectory{})
		if err := service.RequestCode(ctx, "client-1", "SO-000001", "bob@example.com"); err != nil {
			t.Fatalf("request failed: %v", err)
		}
		code := producer.events[0].(domain.TrackingCodeIssuedEvent).Code
		return service, store, code
	}

	t.Run("correct code verifies exactly once", func(t *testing.T) {
		service, _, code := issue(t)

		if !service.VerifyCode(ctx, "SO-000001", "bob@example.com", code) {
			t.Fatal("expected first verification to succeed")
		}
		if service.VerifyCode(ctx, "SO-000001", "bob@example.com", code) {
			t.Error("expected second verification to fail")
		}
	})

	t.Run("wrong code fails and keeps the pending code", func(t *testing.T) {
		service, _, code := issue(t)

		if service.VerifyCode(ctx, "SO-000001", "bob@example.com", "000000") {
			t.Error("expected wrong code to fail")
		}
		if !service.VerifyCode(ctx, "SO-000001", "bob@example.com", code) {
			t.Error("expected real code to still verify")
		}
	})

	t.Run("expired code fails", func(t *testing.T) {
		service, store, code := issue(t)

		store.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
		if service.VerifyCode(ctx, "SO-000001", "bob@example.com", code) {
			t.Error("expected expired code to fail")
		}
	})

	t.Run("wrong email fails", func(t *testing.T) {
		service, _, code := issue(t)

		if service.VerifyCode(ctx, "SO-000001", "eve@example.com", code) {
			t.Error("expected mismatched email to fail")
		}
	})
}

func TestService_VerifyKnownFact(t *testing.T) {
	ctx := context.Background()

	t.Run("guest order", func(t *testing.T) {
		service, _, _ := newTestService(&fakeOrders{orders: map[int64]*domain.Order{1: guestOrder()}}, &fakeDirectory{})

		if !service.VerifyKnownFact(ctx, 1, "BOB@example.com") {
			t.Error("expected guest email to verify")
		}
		if !service.VerifyKnownFact(ctx, 1, "555-0101") {
			t.Error("expected guest phone to verify")
		}
		if service.VerifyKnownFact(ctx, 1, "eve@example.com") {
			t.Error("expected unknown fact to fail")
		}
		if service.VerifyKnownFact(ctx, 1, "") {
			t.Error("expected empty fact to fail")
		}
	})

	t.Run("registered customer order", func(t *testing.T) {
		order := &domain.Order{ID: 2, OrderNumber: "SO-000002", CustomerID: ownerID(7)}
		directory := &fakeDirectory{customers: map[int64]*domain.Customer{
			7: {ID: 7, Email: "ana@example.com", Phone: "555-0202"},
		}}
		service, _, _ := newTestService(&fakeOrders{orders: map[int64]*domain.Order{2: order}}, directory)

		if !service.VerifyKnownFact(ctx, 2, "ana@example.com") {
			t.Error("expected customer email to verify")
		}
		if !service.VerifyKnownFact(ctx, 2, "555-0202") {
			t.Error("expected customer phone to verify")
		}
		if service.VerifyKnownFact(ctx, 2, "555-9999") {
			t.Error("expected unknown fact to fail")
		}
	})
}

func TestService_CheckAccess(t *testing.T) {
	order := &domain.Order{ID: 2, CustomerID: ownerID(7)}
	owner := &domain.Customer{ID: 7, Role: domain.RoleCustomer}
	other := &domain.Customer{ID: 8, Role: domain.RoleCustomer}
	staff := &domain.Customer{ID: 3, Role: domain.RoleStaff}

	service, _, _ := newTestService(&fakeOrders{}, &fakeDirectory{})

	if !service.CheckAccess(order, owner) {
		t.Error("owner must have access")
	}
	if !service.CheckAccess(order, staff) {
		t.Error("staff must have access")
	}
	if service.CheckAccess(order, other) {
		t.Error("other customer must not have access")
	}
	if service.CheckAccess(order, nil) {
		t.Error("anonymous caller must not have access")
	}
	if service.CheckAccess(guestOrder(), other) {
		t.Error("guest order has no owning customer")
	}
}

func TestDetail(t *testing.T) {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	approved := created.Add(2 * time.Hour)
	shipped := created.Add(24 * time.Hour)

	order := &domain.Order{
		ID:          1,
		OrderNumber: "SO-000001",
		Status:      domain.OrderStatusShipping,
		Subtotal:    3000,
		Total:       3300,
		ShippingFee: 300,
		CreatedAt:   created,
		ApprovedAt:  &approved,
		ShippedAt:   &shipped,
	}

	detail := Detail(order, 3)

	if len(detail.Activity) != 3 {
		t.Fatalf("expected 3 activity entries, got %d", len(detail.Activity))
	}
	if detail.Activity[0].Status != domain.OrderStatusPendingApproval {
		t.Errorf("expected timeline to start at pending_approval, got %s", detail.Activity[0].Status)
	}
	if detail.EstimatedDelivery == nil {
		t.Fatal("expected an estimated delivery for a shipping order")
	}
	if want := shipped.Add(3 * 24 * time.Hour); !detail.EstimatedDelivery.Equal(want) {
		t.Errorf("expected estimate %v, got %v", want, detail.EstimatedDelivery)
	}

	delivered := created.Add(48 * time.Hour)
	order.DeliveredAt = &delivered
	order.Status = domain.OrderStatusDelivered

	detail = Detail(order, 3)
	if detail.EstimatedDelivery != nil {
		t.Error("delivered orders carry no estimate")
	}
	if len(detail.Activity) != 4 {
		t.Errorf("expected 4 activity entries, got %d", len(detail.Activity))
	}
}
