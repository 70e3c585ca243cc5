package domain

import "time"

type OrderStatus string

const (
	OrderStatusPendingApproval OrderStatus = "pending_approval"
	OrderStatusApproved        OrderStatus = "approved"
	OrderStatusPaymentSuccess  OrderStatus = "payment_success"
	OrderStatusPaymentFailure  OrderStatus = "payment_failure"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipping        OrderStatus = "shipping"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// transitions is the exhaustive set of legal status edges. delivered and
// cancelled are terminal; payment_failure -> approved is the payment retry path.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingApproval: {OrderStatusApproved, OrderStatusCancelled},
	OrderStatusApproved:        {OrderStatusPaymentSuccess, OrderStatusPaymentFailure, OrderStatusCancelled},
	OrderStatusPaymentSuccess:  {OrderStatusProcessing},
	OrderStatusPaymentFailure:  {OrderStatusApproved, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:        {OrderStatusDelivered},
	OrderStatusDelivered:       {},
	OrderStatusCancelled:       {},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a status the transition table knows about.
func ValidStatus(s OrderStatus) bool {
	_, ok := transitions[s]
	return ok
}

// RestocksOnCancel reports whether cancelling an order currently in status from
// must return its committed stock. Stock is committed to an order at approval
// time, so only cancellations after that point carry a compensating increase.
func RestocksOnCancel(from OrderStatus) bool {
	return from == OrderStatusApproved || from == OrderStatusPaymentSuccess
}

type OrderLineItem struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	OriginalPrice  int64  `json:"original_price"`
	DiscountID     *int64 `json:"discount_id,omitempty"`
	DiscountType   string `json:"discount_type,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
	Subtotal       int64  `json:"subtotal"`
}

// GuestContact identifies an order placed without a customer account. An order
// carries either a CustomerID or a guest contact, never both.
type GuestContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Order struct {
	ID          int64       `json:"id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`

	Subtotal       int64 `json:"subtotal"`
	ShippingFee    int64 `json:"shipping_fee"`
	DiscountAmount int64 `json:"discount_amount"`
	Total          int64 `json:"total"`

	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`

	CustomerID *int64        `json:"customer_id,omitempty"`
	Guest      *GuestContact `json:"guest,omitempty"`

	ManualDiscountID      *int64  `json:"manual_discount_id,omitempty"`
	AutoDiscountIDs       []int64 `json:"auto_discount_ids,omitempty"`
	DiscountUsageRecorded bool    `json:"discount_usage_recorded"`

	Items []OrderLineItem `json:"items"`

	ApprovedBy  *int64     `json:"approved_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// IsGuest reports whether the order was placed without a customer account.
func (o *Order) IsGuest() bool {
	return o.CustomerID == nil
}
