package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/shopstack/orderdesk/internal/domain"
)

var ErrOrderNotApproved = errors.New("order has not been approved")

// Client talks to the external payment gateway. Calls run through a circuit
// breaker so a degraded gateway cannot pile up blocked checkout staff.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("payment gateway circuit state changed",
				"circuit", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetTimeout(10 * time.Second).
			SetRetryCount(0),
		breaker: breaker,
		logger:  logger,
	}
}

type PaymentLink struct {
	URL       string `json:"url"`
	Reference string `json:"reference"`
}

type createLinkRequest struct {
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"`
}

// CreatePaymentLink requests a hosted payment page for an approved order.
// Approval is the precondition: money is never collected for an order the
// business has not committed stock to.
func (c *Client) CreatePaymentLink(ctx context.Context, order *domain.Order) (*PaymentLink, error) {
	if order.Status != domain.OrderStatusApproved {
		return nil, fmt.Errorf("order %s is %s: %w", order.OrderNumber, order.Status, ErrOrderNotApproved)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		var link PaymentLink
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", uuid.NewString()).
			SetBody(createLinkRequest{OrderNumber: order.OrderNumber, Amount: order.Total}).
			SetResult(&link).
			Post("/payment-links")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode())
		}
		return &link, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}

	return result.(*PaymentLink), nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// CheckStatus polls the gateway for the payment state of an order.
func (c *Client) CheckStatus(ctx context.Context, orderNumber string) (string, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		var status statusResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", uuid.NewString()).
			SetResult(&status).
			Get("/payments/" + orderNumber)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode())
		}
		return status.Status, nil
	})
	if err != nil {
		return "", fmt.Errorf("check payment status: %w", err)
	}

	return result.(string), nil
}
