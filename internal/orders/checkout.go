package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopstack/orderdesk/internal/domain"
	"github.com/shopstack/orderdesk/internal/storage"
	"github.com/shopstack/orderdesk/internal/telemetry"
)

// OrderStore is the persistence boundary for orders. The Postgres
// implementation in internal/storage owns the transactions behind these calls.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order, lines []storage.CheckoutLine) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	TransitionStatus(ctx context.Context, orderID int64, to domain.OrderStatus, staffID *int64) (*domain.Order, error)
	RunDeliverySweep(ctx context.Context, cutoff time.Time) (int64, error)
	RecordDiscountUsage(ctx context.Context, orderID int64) error
	List(ctx context.Context) ([]domain.Order, error)
}

// ProductCatalog is the read side of the product table, used to reject
// checkouts against unknown products before a transaction is opened.
type ProductCatalog interface {
	BatchGet(ctx context.Context, ids []int64) ([]domain.Product, error)
}

// CustomerDirectory resolves customers; not-found is (nil, nil).
type CustomerDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
}

// Publisher is the event sink for post-commit notifications; a nil Publisher
// disables them.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type CheckoutLineRequest struct {
	ProductID      int64  `json:"product_id"`
	Quantity       int    `json:"quantity"`
	DiscountID     *int64 `json:"discount_id,omitempty"`
	DiscountType   string `json:"discount_type,omitempty"`
	DiscountAmount int64  `json:"discount_amount,omitempty"`
}

type CheckoutRequest struct {
	CustomerID       *int64                `json:"customer_id,omitempty"`
	Guest            *domain.GuestContact  `json:"guest,omitempty"`
	ShippingAddress  string                `json:"shipping_address"`
	PaymentMethod    string                `json:"payment_method"`
	ShippingFee      int64                 `json:"shipping_fee"`
	DiscountAmount   int64                 `json:"discount_amount"`
	ManualDiscountID *int64                `json:"manual_discount_id,omitempty"`
	AutoDiscountIDs  []int64               `json:"auto_discount_ids,omitempty"`
	Lines            []CheckoutLineRequest `json:"lines"`
}

type CheckoutService struct {
	store     OrderStore
	catalog   ProductCatalog
	directory CustomerDirectory
	producer  Publisher
	logger    *slog.Logger
}

func NewCheckoutService(store OrderStore, catalog ProductCatalog, directory CustomerDirectory, producer Publisher, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		store:     store,
		catalog:   catalog,
		directory: directory,
		producer:  producer,
		logger:    logger,
	}
}

// Checkout turns a cart into a persisted order. The stock checks, order and
// line inserts, and stock decrements all commit or roll back as one unit in
// the store; discount bookkeeping and event publication happen after commit
// and never undo a valid order.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	var contactEmail string
	if req.CustomerID != nil {
		customer, err := s.directory.GetByID(ctx, *req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("resolve customer: %w", err)
		}
		if customer == nil {
			return nil, fmt.Errorf("customer %d: %w", *req.CustomerID, domain.ErrCustomerNotFound)
		}
		contactEmail = customer.Email
	} else if req.Guest != nil {
		contactEmail = req.Guest.Email
	}

	if err := s.validateProducts(ctx, req.Lines); err != nil {
		return nil, err
	}

	order := &domain.Order{
		Status:           domain.OrderStatusPendingApproval,
		ShippingFee:      req.ShippingFee,
		DiscountAmount:   req.DiscountAmount,
		ShippingAddress:  req.ShippingAddress,
		PaymentMethod:    req.PaymentMethod,
		CustomerID:       req.CustomerID,
		Guest:            req.Guest,
		ManualDiscountID: req.ManualDiscountID,
		AutoDiscountIDs:  req.AutoDiscountIDs,
	}

	lines := make([]storage.CheckoutLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, storage.CheckoutLine{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			DiscountID:     line.DiscountID,
			DiscountType:   line.DiscountType,
			DiscountAmount: line.DiscountAmount,
		})
	}

	// The store locks product rows in line order; a stable sort keeps two
	// concurrent multi-line checkouts from locking the same rows in opposite
	// order and deadlocking.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	if err := s.store.CreateOrder(ctx, order, lines); err != nil {
		return nil, err
	}
	telemetry.CountOrderCreated(ctx)

	if order.ManualDiscountID != nil || len(order.AutoDiscountIDs) > 0 {
		if err := s.store.RecordDiscountUsage(ctx, order.ID); err != nil {
			s.logger.Error("failed to record discount usage", "error", err, "order_id", order.ID)
		}
	}

	if s.producer != nil {
		event := domain.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Email:       contactEmail,
			Total:       order.Total,
			Timestamp:   order.CreatedAt,
		}
		if err := s.producer.Publish(ctx, order.OrderNumber, event); err != nil {
			s.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "total", order.Total)
	return order, nil
}

// validateProducts rejects carts naming unknown products before any
// transaction is opened. The store re-checks existence under its row locks.
func (s *CheckoutService) validateProducts(ctx context.Context, lines []CheckoutLineRequest) error {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := s.catalog.BatchGet(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve products: %w", err)
	}

	found := make(map[int64]bool, len(products))
	for _, product := range products {
		found[product.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
		}
	}

	return nil
}
