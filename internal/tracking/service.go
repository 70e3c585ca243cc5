package tracking

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopstack/orderdesk/internal/domain"
)

const (
	codeTTL          = 15 * time.Minute
	codeRequestLimit = 3
	rateLimitWindow  = time.Hour
)

// CodeStore is the TTL-capable store for one-time tracking codes. It is
// injected so a shared backend (Redis) can serve multi-instance deployments
// while tests run against the in-memory implementation.
type CodeStore interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	VerifyAndDelete(ctx context.Context, key, code string) (bool, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// OrderFinder is the narrow read surface tracking needs; not-found is (nil, nil).
type OrderFinder interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
}

type CustomerDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	orders    OrderFinder
	directory CustomerDirectory
	codes     CodeStore
	limiter   RateLimiter
	producer  Publisher
	logger    *slog.Logger
}

func NewService(orders OrderFinder, directory CustomerDirectory, codes CodeStore, limiter RateLimiter, producer Publisher, logger *slog.Logger) *Service {
	return &Service{
		orders:    orders,
		directory: directory,
		codes:     codes,
		limiter:   limiter,
		producer:  producer,
		logger:    logger,
	}
}

// CheckAccess reports whether the caller may see full order detail without a
// code challenge: the owning customer, or any staff/admin actor.
func (s *Service) CheckAccess(order *domain.Order, caller *domain.Customer) bool {
	if order == nil || caller == nil {
		return false
	}
	if caller.IsStaff() {
		return true
	}
	return order.CustomerID != nil && *order.CustomerID == caller.ID
}

// Resolve finds an order by numeric id or by order number.
func (s *Service) Resolve(ctx context.Context, identifier string) (*domain.Order, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		order, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}

	return s.orders.GetByNumber(ctx, identifier)
}

// RequestCode issues a one-time code for anonymous tracking access. The rate
// limit and the email match are both checked before any code is generated, so
// a rejected request leaves nothing behind. Callers must present a uniform
// outcome regardless of which check failed.
func (s *Service) RequestCode(ctx context.Context, clientID, identifier, email string) error {
	order, err := s.Resolve(ctx, identifier)
	if err != nil {
		return fmt.Errorf("resolve order: %w", err)
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}

	email = normalizeEmail(email)

	rlKey := clientID + ":" + email + ":" + order.OrderNumber
	allowed, err := s.limiter.Allow(ctx, rlKey, codeRequestLimit, rateLimitWindow)
	if err != nil {
		s.logger.Error("rate limiter unavailable, denying code request", "error", err, "order_number", order.OrderNumber)
		return domain.ErrTooManyRequests
	}
	if !allowed {
		return domain.ErrTooManyRequests
	}

	contact, err := s.contactEmail(ctx, order)
	if err != nil {
		return err
	}
	if contact == "" || normalizeEmail(contact) != email {
		return domain.ErrEmailMismatch
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	if err := s.codes.Put(ctx, codeKey(order.OrderNumber, email), code, codeTTL); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	if s.producer != nil {
		event := domain.TrackingCodeIssuedEvent{
			OrderNumber: order.OrderNumber,
			Email:       email,
			Code:        code,
			ExpiresAt:   time.Now().UTC().Add(codeTTL),
			Timestamp:   time.Now().UTC(),
		}
		if err := s.producer.Publish(ctx, order.OrderNumber, event); err != nil {
			s.logger.Error("failed to publish tracking code event", "error", err, "order_number", order.OrderNumber)
		}
	}

	s.logger.Info("tracking code issued", "order_number", order.OrderNumber)
	return nil
}

// VerifyCode consumes the pending code for (order, email). It fails closed:
// any lookup error, a missing or expired entry, or a digit mismatch all
// verify as false, and a correct code verifies exactly once.
func (s *Service) VerifyCode(ctx context.Context, identifier, email, code string) bool {
	order, err := s.Resolve(ctx, identifier)
	if err != nil || order == nil {
		return false
	}

	ok, err := s.codes.VerifyAndDelete(ctx, codeKey(order.OrderNumber, normalizeEmail(email)), code)
	if err != nil {
		s.logger.Error("code verification failed closed", "error", err, "order_number", order.OrderNumber)
		return false
	}

	return ok
}

// VerifyKnownFact is the code-less verification path: the caller proves
// control of the order by presenting its stored email or phone number.
func (s *Service) VerifyKnownFact(ctx context.Context, orderID int64, fact string) bool {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil || order == nil {
		return false
	}

	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false
	}

	if order.Guest != nil {
		if normalizeEmail(fact) == normalizeEmail(order.Guest.Email) && order.Guest.Email != "" {
			return true
		}
		if fact == order.Guest.Phone && order.Guest.Phone != "" {
			return true
		}
		return false
	}

	if order.CustomerID == nil {
		return false
	}

	customer, err := s.directory.GetByID(ctx, *order.CustomerID)
	if err != nil || customer == nil {
		return false
	}

	if normalizeEmail(fact) == normalizeEmail(customer.Email) && customer.Email != "" {
		return true
	}
	return fact == customer.Phone && customer.Phone != ""
}

func (s *Service) contactEmail(ctx context.Context, order *domain.Order) (string, error) {
	if order.Guest != nil {
		return order.Guest.Email, nil
	}
	if order.CustomerID == nil {
		return "", nil
	}

	customer, err := s.directory.GetByID(ctx, *order.CustomerID)
	if err != nil {
		return "", fmt.Errorf("resolve customer: %w", err)
	}
	if customer == nil {
		return "", nil
	}

	return customer.Email, nil
}

func codeKey(orderNumber, email string) string {
	return orderNumber + ":" + email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCode draws a uniform 6-digit numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
