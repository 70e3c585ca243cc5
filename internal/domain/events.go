package domain

import "time"

type OrderCreatedEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	Total       int64     `json:"total"`
	Timestamp   time.Time `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	To          OrderStatus `json:"to"`
	Email       string      `json:"email"`
	StaffID     *int64      `json:"staff_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

type TrackingCodeIssuedEvent struct {
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	Timestamp   time.Time `json:"timestamp"`
}
