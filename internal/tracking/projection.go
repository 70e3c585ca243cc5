package tracking

import (
	"time"

	"github.com/shopstack/orderdesk/internal/domain"
)

// OrderSummary is what an unverified anonymous caller may see.
type OrderSummary struct {
	ID          int64              `json:"id"`
	OrderNumber string             `json:"order_number"`
	Status      domain.OrderStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ActivityEntry is one step of the order's activity timeline. Display text is
// rendered by the consumer; this core only records what happened and when.
type ActivityEntry struct {
	Status domain.OrderStatus `json:"status"`
	At     time.Time          `json:"at"`
}

// OrderDetail is the full projection shown to owners, staff, and
// email-verified anonymous callers.
type OrderDetail struct {
	OrderSummary

	Subtotal        int64                  `json:"subtotal"`
	ShippingFee     int64                  `json:"shipping_fee"`
	DiscountAmount  int64                  `json:"discount_amount"`
	Total           int64                  `json:"total"`
	ShippingAddress string                 `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	Items           []domain.OrderLineItem `json:"items"`

	Activity          []ActivityEntry `json:"activity"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
}

func Summarize(order *domain.Order) OrderSummary {
	return OrderSummary{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
	}
}

// Detail builds the full projection. The estimated delivery is inferred from
// the shipment timestamp plus the configured transit window until the order
// is actually delivered.
func Detail(order *domain.Order, transitDays int) OrderDetail {
	detail := OrderDetail{
		OrderSummary:    Summarize(order),
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		DiscountAmount:  order.DiscountAmount,
		Total:           order.Total,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		Items:           order.Items,
	}

	detail.Activity = append(detail.Activity, ActivityEntry{
		Status: domain.OrderStatusPendingApproval,
		At:     order.CreatedAt,
	})
	if order.ApprovedAt != nil {
		detail.Activity = append(detail.Activity, ActivityEntry{Status: domain.OrderStatusApproved, At: *order.ApprovedAt})
	}
	if order.ShippedAt != nil {
		detail.Activity = append(detail.Activity, ActivityEntry{Status: domain.OrderStatusShipping, At: *order.ShippedAt})
	}
	if order.DeliveredAt != nil {
		detail.Activity = append(detail.Activity, ActivityEntry{Status: domain.OrderStatusDelivered, At: *order.DeliveredAt})
	}

	if order.DeliveredAt == nil && order.ShippedAt != nil {
		estimated := order.ShippedAt.Add(time.Duration(transitDays) * 24 * time.Hour)
		detail.EstimatedDelivery = &estimated
	}

	return detail
}
